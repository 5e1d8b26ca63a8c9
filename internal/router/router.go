package router

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/anonto42/circle/backend/internal/handlers"
	"github.com/anonto42/circle/backend/internal/media"
	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/internal/middleware"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/services"
	"github.com/anonto42/circle/backend/internal/validation"
	"github.com/anonto42/circle/backend/pkg/config"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Store    *repositories.Store
	Ingestor *media.Ingestor
	// Firebase is nil when Firebase sign-in is not configured.
	Firebase middleware.TokenVerifier
}

// New returns an echo instance with middleware and routes installed.
func New(cfg *config.Config, deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.Validator = validation.NewValidator()
	e.HTTPErrorHandler = handlers.HTTPErrorHandler

	SetupMiddleware(e, cfg)
	SetupRoutes(e, cfg, deps)
	return e
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORSWithConfig(eMiddleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	// uploads plus room for the multipart envelope
	e.Use(eMiddleware.BodyLimit(fmt.Sprintf("%dK", (cfg.MediaMaxBytes+(1<<20))>>10)))
	e.Use(metrics.Middleware())
	logging.Debug().Msg("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, cfg *config.Config, deps Deps) {
	store := deps.Store

	e.GET("/api/v1/health", handlers.HealthCheck)
	if cfg.MediaDriver == config.MediaLocal && strings.HasPrefix(cfg.MediaBaseURL, "/") {
		e.Static(cfg.MediaBaseURL, cfg.MediaDir)
	}

	// --- Services ---
	userService := services.NewUserService(store.Users)
	followService := services.NewFollowService(store.Users, store.Follows)
	postService := services.NewPostService(store.Posts, store.Users)
	commentService := services.NewCommentService(store.Comments, store.Posts, store.Users)

	// --- Unprotected routes for authentication ---
	authHandler := handlers.NewAuthHandler(store.Users, deps.Firebase, cfg.JWTSecret, cfg.JWTTTL)
	authHandler.RegisterAuthRoutes(e.Group("/api/v1/auth"))

	// --- Protected routes (require JWT authentication) ---
	var firebaseAuth *middleware.FirebaseAuthenticator
	if deps.Firebase != nil {
		firebaseAuth = middleware.NewFirebaseAuthenticator(deps.Firebase, store.Users)
	}
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret, firebaseAuth))

	authHandler.RegisterMeRoute(api)
	handlers.NewUserHandler(userService).RegisterUserRoutes(api)
	handlers.NewFollowHandler(followService).RegisterFollowRoutes(api)
	handlers.NewFeedHandler(postService).RegisterFeedRoutes(api)
	handlers.NewPostHandler(postService).RegisterPostRoutes(api)
	handlers.NewLikeHandler(postService).RegisterLikeRoutes(api)
	handlers.NewCommentHandler(commentService).RegisterCommentRoutes(api)
	if deps.Ingestor != nil {
		handlers.NewUploadHandler(deps.Ingestor).RegisterUploadRoutes(api)
	}

	logging.Info().Int("routes", len(e.Routes())).Msg("All routes configured.")
}
