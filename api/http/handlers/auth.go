package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pavel8512/hhpilot/api/http/presenter"
	"github.com/pavel8512/hhpilot/pkg/auth"
)

type AuthHandler struct {
	useCase auth.AuthUseCase
	users   auth.UserRepository
}

func NewAuthHandler(useCase auth.AuthUseCase, users auth.UserRepository) *AuthHandler {
	return &AuthHandler{useCase: useCase, users: users}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user registration.
// @Summary Register user
// @Tags    auth
// @Accept  json
// @Produce json
// @Param   input body registerRequest true "registration payload"
// @Success 201 {object} map[string]any
// @Failure 400 {object} presenter.ErrorResponse
// @Failure 409 {object} presenter.ErrorResponse
// @Router  /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return presenter.Error(c, http.StatusBadRequest, "email and password are required")
	}

	result, err := h.useCase.Register(c.Context(), req.Email, req.Password)
	if err != nil {
		switch err {
		case auth.ErrUserAlreadyExists:
			return presenter.Error(c, http.StatusConflict, "user already exists")
		default:
			return presenter.Error(c, http.StatusInternalServerError, "failed to register user")
		}
	}

	return presenter.JSON(c, http.StatusCreated, fiber.Map{
		"id":        result.User.ID.String(),
		"email":     result.User.Email,
		"createdAt": result.User.CreatedAt,
		"token":     result.Token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles user login.
// @Summary Login
// @Tags    auth
// @Accept  json
// @Produce json
// @Param   input body loginRequest true "login payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} presenter.ErrorResponse
// @Failure 401 {object} presenter.ErrorResponse
// @Router  /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return presenter.Error(c, http.StatusBadRequest, "email and password are required")
	}

	result, err := h.useCase.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			return presenter.Error(c, http.StatusUnauthorized, "invalid credentials")
		}
		return presenter.Error(c, http.StatusInternalServerError, "failed to login")
	}

	return presenter.JSON(c, http.StatusOK, fiber.Map{
		"id":    result.User.ID.String(),
		"email": result.User.Email,
		"token": result.Token,
	})
}

// Me returns the authenticated user's profile and quota usage.
// @Summary Current user
// @Tags    auth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 401 {object} presenter.ErrorResponse
// @Router  /me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.users.GetByID(c.Context(), userID)
	if err != nil {
		if err == auth.ErrNotFound {
			return presenter.Error(c, http.StatusNotFound, "user not found")
		}
		return presenter.Error(c, http.StatusInternalServerError, "failed to load user")
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{
		"id":            user.ID.String(),
		"email":         user.Email,
		"firstName":     user.FirstName,
		"lastName":      user.LastName,
		"hasPlatformToken": user.AccessToken != "",
		"subscription": fiber.Map{
			"plan":           user.Subscription.Plan,
			"active":         user.Subscription.Active,
			"responsesUsed":  user.Subscription.ResponsesUsed,
			"responsesLimit": user.Subscription.ResponsesLimit,
		},
		"createdAt": user.CreatedAt,
	})
}

type setTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

// SetPlatformToken stores the user's HH access token. The token itself is
// never echoed back.
// @Summary Set platform access token
// @Tags    auth
// @Accept  json
// @Produce json
// @Param   input body setTokenRequest true "token payload"
// @Success 204
// @Failure 400 {object} presenter.ErrorResponse
// @Router  /me/platform-token [put]
func (h *AuthHandler) SetPlatformToken(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	var req setTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return presenter.Error(c, http.StatusBadRequest, "accessToken is required")
	}
	if err := h.users.SetAccessToken(c.Context(), userID, strings.TrimSpace(req.AccessToken)); err != nil {
		return presenter.Error(c, http.StatusInternalServerError, "failed to store token")
	}
	return c.SendStatus(http.StatusNoContent)
}
