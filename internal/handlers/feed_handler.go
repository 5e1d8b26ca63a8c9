package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/middleware"
	"github.com/anonto42/circle/backend/internal/services"
)

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	postService *services.PostService
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(postService *services.PostService) *FeedHandler {
	return &FeedHandler{postService: postService}
}

// RegisterFeedRoutes registers feed-related routes. It must be registered
// before /posts/:id.
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/posts/feed", h.GetFeed)
}

// GetFeed returns the caller's posts and those of the users they follow,
// newest first. Missing or malformed page and limit fall back to defaults.
func (h *FeedHandler) GetFeed(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	feed, err := h.postService.Feed(c.Request().Context(), middleware.ActorID(c), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, feed)
}
