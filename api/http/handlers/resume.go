package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pavel8512/hhpilot/api/http/presenter"
	"github.com/pavel8512/hhpilot/pkg/resume"
)

type ResumeHandler struct {
	resumes resume.Repository
}

func NewResumeHandler(resumes resume.Repository) *ResumeHandler {
	return &ResumeHandler{resumes: resumes}
}

type resumeRequest struct {
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	IsPrimary  bool   `json:"isPrimary"`
}

type resumeView struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	IsPrimary  bool      `json:"isPrimary"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toResumeView(res resume.Resume) resumeView {
	return resumeView{
		ID:         res.ID.String(),
		ExternalID: res.ExternalID,
		Title:      res.Title,
		Summary:    res.Summary,
		FirstName:  res.FirstName,
		LastName:   res.LastName,
		IsPrimary:  res.IsPrimary,
		IsActive:   res.IsActive,
		CreatedAt:  res.CreatedAt,
	}
}

// Create registers a platform resume for use in applications.
// @Summary Add resume
// @Tags    resumes
// @Accept  json
// @Produce json
// @Param   input body resumeRequest true "resume payload"
// @Success 201 {object} resumeView
// @Failure 400 {object} presenter.ErrorResponse
// @Router  /resumes [post]
func (h *ResumeHandler) Create(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	var req resumeRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return presenter.Error(c, http.StatusBadRequest, "externalId is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return presenter.Error(c, http.StatusBadRequest, "title is required")
	}
	res := resume.Resume{
		ID:         uuid.New(),
		UserID:     userID,
		ExternalID: strings.TrimSpace(req.ExternalID),
		Title:      strings.TrimSpace(req.Title),
		Summary:    req.Summary,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		IsPrimary:  req.IsPrimary,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.resumes.Create(c.Context(), res); err != nil {
		return presenter.Error(c, http.StatusInternalServerError, "failed to save resume")
	}
	return presenter.JSON(c, http.StatusCreated, toResumeView(res))
}

// List returns the user's resumes, primary first.
// @Summary List resumes
// @Tags    resumes
// @Produce json
// @Success 200 {array} resumeView
// @Router  /resumes [get]
func (h *ResumeHandler) List(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	items, err := h.resumes.ListByOwner(c.Context(), userID)
	if err != nil {
		return presenter.Error(c, http.StatusInternalServerError, "failed to list resumes")
	}
	views := make([]resumeView, 0, len(items))
	for _, res := range items {
		views = append(views, toResumeView(res))
	}
	return presenter.JSON(c, http.StatusOK, views)
}

// SetPrimary marks one resume as the default for new applications.
// @Summary Set primary resume
// @Tags    resumes
// @Param   id path string true "resume id"
// @Success 204
// @Failure 404 {object} presenter.ErrorResponse
// @Router  /resumes/{id}/primary [post]
func (h *ResumeHandler) SetPrimary(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid resume id")
	}
	if err := h.resumes.SetPrimary(c.Context(), userID, id); err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			return presenter.Error(c, http.StatusNotFound, "resume not found")
		}
		return presenter.Error(c, http.StatusInternalServerError, "failed to set primary resume")
	}
	return c.SendStatus(http.StatusNoContent)
}

// Delete removes a resume.
// @Summary Delete resume
// @Tags    resumes
// @Param   id path string true "resume id"
// @Success 204
// @Failure 404 {object} presenter.ErrorResponse
// @Router  /resumes/{id} [delete]
func (h *ResumeHandler) Delete(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid resume id")
	}
	if err := h.resumes.DeleteForOwner(c.Context(), userID, id); err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			return presenter.Error(c, http.StatusNotFound, "resume not found")
		}
		return presenter.Error(c, http.StatusInternalServerError, "failed to delete resume")
	}
	return c.SendStatus(http.StatusNoContent)
}
