package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/middleware"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/services"
)

// UserHandler handles profile and search requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterUserRoutes registers user-related routes. /users/search and
// /users/profile are static and take priority over /users/:id.
func (h *UserHandler) RegisterUserRoutes(g *echo.Group) {
	g.GET("/users/search", h.SearchUsers)
	g.PUT("/users/profile", h.UpdateProfile)
	g.GET("/users/:id", h.GetUser)
}

// GetUser returns a profile with followers and following expanded
func (h *UserHandler) GetUser(c echo.Context) error {
	profile, err := h.userService.GetProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// UpdateProfile edits the caller's own profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}

	user, err := h.userService.UpdateProfile(c.Request().Context(), middleware.ActorID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// SearchUsers matches usernames case-insensitively, excluding the caller
func (h *UserHandler) SearchUsers(c echo.Context) error {
	users, err := h.userService.Search(c.Request().Context(), middleware.ActorID(c), c.QueryParam("query"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}
