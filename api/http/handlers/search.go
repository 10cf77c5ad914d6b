package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pavel8512/hhpilot/api/http/presenter"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// SearchRunner triggers one immediate processing cycle for a search.
type SearchRunner interface {
	RunSearch(ctx context.Context, s search.Search)
}

type SearchHandler struct {
	useCase search.UseCase
	runner  SearchRunner
}

func NewSearchHandler(useCase search.UseCase, runner SearchRunner) *SearchHandler {
	return &SearchHandler{useCase: useCase, runner: runner}
}

type salaryRangeDTO struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Currency string `json:"currency"`
}

type criteriaDTO struct {
	Keywords        string         `json:"keywords"`
	ExcludeKeywords string         `json:"excludeKeywords"`
	AreaIDs         []string       `json:"areaIds"`
	Salary          salaryRangeDTO `json:"salary"`
	Experience      string         `json:"experience"`
	Schedule        string         `json:"schedule"`
	Employment      string         `json:"employment"`
	Specializations []string       `json:"specializations"`
	Industries      []string       `json:"industries"`
}

type searchRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Criteria    criteriaDTO `json:"criteria"`
	LetterMode  string      `json:"letterMode"`
	CoverLetter string      `json:"coverLetter"`
	ResumeID    string      `json:"resumeId"`
	DailyLimit  int         `json:"dailyLimit"`
	TotalLimit  int         `json:"totalLimit"`
	RunInterval int         `json:"runInterval"`
}

func (req searchRequest) toDomain(userID uuid.UUID) (search.Search, error) {
	s := search.Search{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Criteria: search.Criteria{
			Keywords:        req.Criteria.Keywords,
			ExcludeKeywords: req.Criteria.ExcludeKeywords,
			AreaIDs:         req.Criteria.AreaIDs,
			Salary: search.SalaryRange{
				From:     req.Criteria.Salary.From,
				To:       req.Criteria.Salary.To,
				Currency: req.Criteria.Salary.Currency,
			},
			Experience:      req.Criteria.Experience,
			Schedule:        req.Criteria.Schedule,
			Employment:      req.Criteria.Employment,
			Specializations: req.Criteria.Specializations,
			Industries:      req.Criteria.Industries,
		},
		LetterMode:  search.LetterMode(req.LetterMode),
		CoverLetter: req.CoverLetter,
		DailyLimit:  req.DailyLimit,
		TotalLimit:  req.TotalLimit,
		RunInterval: req.RunInterval,
	}
	if req.ResumeID != "" {
		id, err := uuid.Parse(req.ResumeID)
		if err != nil {
			return search.Search{}, errors.New("resumeId must be a valid UUID")
		}
		s.ResumeID = id
	}
	return s, nil
}

type searchView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Criteria    criteriaDTO `json:"criteria"`
	LetterMode  string      `json:"letterMode"`
	CoverLetter string      `json:"coverLetter,omitempty"`
	ResumeID    string      `json:"resumeId,omitempty"`
	DailyLimit  int         `json:"dailyLimit"`
	TotalLimit  int         `json:"totalLimit"`
	RunInterval int         `json:"runInterval"`

	Status           string     `json:"status"`
	ResponsesCount   int        `json:"responsesCount"`
	InvitationsCount int        `json:"invitationsCount"`
	RejectionsCount  int        `json:"rejectionsCount"`
	LastRunAt        *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt        *time.Time `json:"nextRunAt,omitempty"`
	ErrorCount       int        `json:"errorCount,omitempty"`
	LastError        string     `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toSearchView(s search.Search) searchView {
	v := searchView{
		ID:          s.ID.String(),
		Name:        s.Name,
		Description: s.Description,
		Criteria: criteriaDTO{
			Keywords:        s.Criteria.Keywords,
			ExcludeKeywords: s.Criteria.ExcludeKeywords,
			AreaIDs:         s.Criteria.AreaIDs,
			Salary: salaryRangeDTO{
				From:     s.Criteria.Salary.From,
				To:       s.Criteria.Salary.To,
				Currency: s.Criteria.Salary.Currency,
			},
			Experience:      s.Criteria.Experience,
			Schedule:        s.Criteria.Schedule,
			Employment:      s.Criteria.Employment,
			Specializations: s.Criteria.Specializations,
			Industries:      s.Criteria.Industries,
		},
		LetterMode:       string(s.LetterMode),
		CoverLetter:      s.CoverLetter,
		DailyLimit:       s.DailyLimit,
		TotalLimit:       s.TotalLimit,
		RunInterval:      s.RunInterval,
		Status:           string(s.Status),
		ResponsesCount:   s.ResponsesCount,
		InvitationsCount: s.InvitationsCount,
		RejectionsCount:  s.RejectionsCount,
		ErrorCount:       s.ErrorCount,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.ResumeID != uuid.Nil {
		v.ResumeID = s.ResumeID.String()
	}
	if !s.LastRunAt.IsZero() {
		t := s.LastRunAt
		v.LastRunAt = &t
	}
	if !s.NextRunAt.IsZero() {
		t := s.NextRunAt
		v.NextRunAt = &t
	}
	if s.LastError != nil {
		v.LastError = s.LastError.Message
	}
	return v
}

func searchError(c *fiber.Ctx, err error) error {
	var vErr search.ErrValidation
	switch {
	case errors.As(err, &vErr):
		return presenter.Error(c, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, search.ErrNotFound):
		return presenter.Error(c, http.StatusNotFound, "search not found")
	case errors.Is(err, search.ErrHasResponses):
		return presenter.Error(c, http.StatusConflict, "search has recorded responses and cannot be deleted")
	default:
		return presenter.Error(c, http.StatusInternalServerError, "internal error")
	}
}

// Create registers a new saved search; it becomes due immediately.
// @Summary Create search
// @Tags    searches
// @Accept  json
// @Produce json
// @Param   input body searchRequest true "search payload"
// @Success 201 {object} searchView
// @Failure 400 {object} presenter.ErrorResponse
// @Router  /searches [post]
func (h *SearchHandler) Create(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	s, err := req.toDomain(userID)
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, err.Error())
	}
	created, err := h.useCase.Create(c.Context(), s)
	if err != nil {
		return searchError(c, err)
	}
	return presenter.JSON(c, http.StatusCreated, toSearchView(created))
}

// List returns the user's searches, newest first.
// @Summary List searches
// @Tags    searches
// @Produce json
// @Success 200 {array} searchView
// @Router  /searches [get]
func (h *SearchHandler) List(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	limit, offset := parseLimitOffset(c, 50)
	items, err := h.useCase.List(c.Context(), userID, limit, offset)
	if err != nil {
		return searchError(c, err)
	}
	views := make([]searchView, 0, len(items))
	for _, s := range items {
		views = append(views, toSearchView(s))
	}
	return presenter.JSON(c, http.StatusOK, views)
}

// Get returns one search by id.
// @Summary Get search
// @Tags    searches
// @Produce json
// @Param   id path string true "search id"
// @Success 200 {object} searchView
// @Failure 404 {object} presenter.ErrorResponse
// @Router  /searches/{id} [get]
func (h *SearchHandler) Get(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid search id")
	}
	s, err := h.useCase.Get(c.Context(), userID, id)
	if err != nil {
		return searchError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, toSearchView(s))
}

// Update rewrites the user-editable fields of a search.
// @Summary Update search
// @Tags    searches
// @Accept  json
// @Produce json
// @Param   id path string true "search id"
// @Param   input body searchRequest true "search payload"
// @Success 200 {object} searchView
// @Failure 400 {object} presenter.ErrorResponse
// @Failure 404 {object} presenter.ErrorResponse
// @Router  /searches/{id} [put]
func (h *SearchHandler) Update(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid search id")
	}
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	s, err := req.toDomain(userID)
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, err.Error())
	}
	s.ID = id
	updated, err := h.useCase.Update(c.Context(), s)
	if err != nil {
		return searchError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, toSearchView(updated))
}

// Delete removes a search that has no recorded responses.
// @Summary Delete search
// @Tags    searches
// @Param   id path string true "search id"
// @Success 204
// @Failure 404 {object} presenter.ErrorResponse
// @Failure 409 {object} presenter.ErrorResponse
// @Router  /searches/{id} [delete]
func (h *SearchHandler) Delete(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid search id")
	}
	if err := h.useCase.Delete(c.Context(), userID, id); err != nil {
		return searchError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Pause suspends scheduling for a search.
// @Summary Pause search
// @Tags    searches
// @Param   id path string true "search id"
// @Success 204
// @Router  /searches/{id}/pause [post]
func (h *SearchHandler) Pause(c *fiber.Ctx) error {
	return h.setState(c, h.useCase.Pause)
}

// Resume re-enables a paused search.
// @Summary Resume search
// @Tags    searches
// @Param   id path string true "search id"
// @Success 204
// @Router  /searches/{id}/resume [post]
func (h *SearchHandler) Resume(c *fiber.Ctx) error {
	return h.setState(c, h.useCase.Resume)
}

// Reactivate clears the failure streak of an errored search and returns it
// to the schedule.
// @Summary Reactivate search
// @Tags    searches
// @Param   id path string true "search id"
// @Success 204
// @Router  /searches/{id}/reactivate [post]
func (h *SearchHandler) Reactivate(c *fiber.Ctx) error {
	return h.setState(c, h.useCase.Reactivate)
}

func (h *SearchHandler) setState(c *fiber.Ctx, op func(ctx context.Context, ownerID, id uuid.UUID) error) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid search id")
	}
	if err := op(c.Context(), userID, id); err != nil {
		return searchError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Run triggers one processing cycle immediately, outside the regular
// schedule. The cycle runs in the background; budget checks still apply.
// @Summary Run search now
// @Tags    searches
// @Produce json
// @Param   id path string true "search id"
// @Success 202 {object} map[string]string
// @Failure 409 {object} presenter.ErrorResponse
// @Router  /searches/{id}/run [post]
func (h *SearchHandler) Run(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid search id")
	}
	s, err := h.useCase.Get(c.Context(), userID, id)
	if err != nil {
		return searchError(c, err)
	}
	if s.Status != search.StatusActive {
		return presenter.Error(c, http.StatusConflict, "only an active search can be run")
	}
	// Detached from the request: the cycle can outlive the HTTP call.
	go h.runner.RunSearch(context.Background(), s)
	return presenter.JSON(c, http.StatusAccepted, fiber.Map{"status": "started"})
}
