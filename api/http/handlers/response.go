package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pavel8512/hhpilot/api/http/presenter"
	"github.com/pavel8512/hhpilot/pkg/response"
)

// ResponseSyncer pulls current application states from the platform for one
// user's open responses.
type ResponseSyncer interface {
	SyncUserCount(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type ResponseHandler struct {
	responses response.Repository
	syncer    ResponseSyncer
}

func NewResponseHandler(responses response.Repository, syncer ResponseSyncer) *ResponseHandler {
	return &ResponseHandler{responses: responses, syncer: syncer}
}

type responseView struct {
	ID       string `json:"id"`
	SearchID string `json:"searchId"`

	Vacancy struct {
		ExternalID string `json:"externalId"`
		Title      string `json:"title"`
		Employer   string `json:"employer"`
		Area       string `json:"area,omitempty"`
		URL        string `json:"url,omitempty"`
	} `json:"vacancy"`

	Letter struct {
		Text string `json:"text,omitempty"`
		Mode string `json:"mode"`
	} `json:"letter"`

	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	ViewedAt    *time.Time `json:"viewedAt,omitempty"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func toResponseView(rec response.Response) responseView {
	var v responseView
	v.ID = rec.ID.String()
	v.SearchID = rec.SearchID.String()
	v.Vacancy.ExternalID = rec.Vacancy.ExternalID
	v.Vacancy.Title = rec.Vacancy.Title
	v.Vacancy.Employer = rec.Vacancy.Employer.Name
	v.Vacancy.Area = rec.Vacancy.Area.Name
	v.Vacancy.URL = rec.Vacancy.URL
	v.Letter.Text = rec.Letter.Text
	v.Letter.Mode = rec.Letter.Mode
	v.Status = string(rec.Status)
	v.Result = string(rec.Result)
	v.CreatedAt = rec.CreatedAt
	if !rec.SentAt.IsZero() {
		t := rec.SentAt
		v.SentAt = &t
	}
	if !rec.ViewedAt.IsZero() {
		t := rec.ViewedAt
		v.ViewedAt = &t
	}
	if !rec.RespondedAt.IsZero() {
		t := rec.RespondedAt
		v.RespondedAt = &t
	}
	if rec.Error != nil {
		v.Error = rec.Error.Message
	}
	return v
}

// List returns the user's responses, newest first.
// @Summary List responses
// @Tags    responses
// @Produce json
// @Success 200 {array} responseView
// @Router  /responses [get]
func (h *ResponseHandler) List(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	limit, offset := parseLimitOffset(c, 50)
	items, err := h.responses.ListByOwner(c.Context(), userID, limit, offset)
	if err != nil {
		return presenter.Error(c, http.StatusInternalServerError, "failed to list responses")
	}
	views := make([]responseView, 0, len(items))
	for _, rec := range items {
		views = append(views, toResponseView(rec))
	}
	return presenter.JSON(c, http.StatusOK, views)
}

// Get returns one response by id.
// @Summary Get response
// @Tags    responses
// @Produce json
// @Param   id path string true "response id"
// @Success 200 {object} responseView
// @Failure 404 {object} presenter.ErrorResponse
// @Router  /responses/{id} [get]
func (h *ResponseHandler) Get(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid response id")
	}
	rec, err := h.responses.GetByIDForOwner(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return presenter.Error(c, http.StatusNotFound, "response not found")
		}
		return presenter.Error(c, http.StatusInternalServerError, "failed to load response")
	}
	return presenter.JSON(c, http.StatusOK, toResponseView(rec))
}

// Stats aggregates the user's responses by status.
// @Summary Response statistics
// @Tags    responses
// @Produce json
// @Success 200 {object} map[string]int
// @Router  /responses/stats [get]
func (h *ResponseHandler) Stats(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	counts, err := h.responses.CountsByOwner(c.Context(), userID)
	if err != nil {
		return presenter.Error(c, http.StatusInternalServerError, "failed to load statistics")
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{
		"total":    counts.Total,
		"sent":     counts.Sent,
		"viewed":   counts.Viewed,
		"invited":  counts.Invited,
		"rejected": counts.Rejected,
		"failed":   counts.Failed,
	})
}

// Sync reconciles the user's open responses against the platform on demand,
// without waiting for the periodic pass.
// @Summary Sync response states
// @Tags    responses
// @Produce json
// @Success 200 {object} map[string]int
// @Router  /responses/sync [post]
func (h *ResponseHandler) Sync(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	synced, err := h.syncer.SyncUserCount(c.Context(), userID)
	if err != nil {
		return presenter.Error(c, http.StatusBadGateway, "failed to sync with the platform")
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{"synced": synced})
}
