package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/middleware"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	firebaseAuth   middleware.TokenVerifier
	jwtSecret      string
	jwtTTL         time.Duration
}

// NewAuthHandler creates a new AuthHandler. firebaseAuth may be nil, in which
// case the firebase-login route is not registered.
func NewAuthHandler(userRepo repositories.UserRepository, firebaseAuth middleware.TokenVerifier, jwtSecret string, jwtTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		firebaseAuth:   firebaseAuth,
		jwtSecret:      jwtSecret,
		jwtTTL:         jwtTTL,
	}
}

// RegisterAuthRoutes registers the unauthenticated authentication routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	if h.firebaseAuth != nil {
		g.POST("/firebase-login", h.FirebaseLogin)
	}
}

// RegisterMeRoute registers GET /auth/me on a group that requires a token.
func (h *AuthHandler) RegisterMeRoute(g *echo.Group) {
	g.GET("/auth/me", h.Me)
}

// Register creates a local account with email and password
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
	}
	if err := h.userRepository.CreateUser(c.Request().Context(), user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return apperrors.Conflict("User already exists")
		}
		return apperrors.Internal(err)
	}

	return h.respondWithToken(c, http.StatusCreated, user)
}

// Login authenticates a local account with email and password
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.userRepository.GetUserByEmail(c.Request().Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.Unauthorized("Invalid credentials")
		}
		return apperrors.Internal(err)
	}
	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return apperrors.Unauthorized("Invalid credentials")
	}

	return h.respondWithToken(c, http.StatusOK, user)
}

// Me returns the authenticated user
func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.userRepository.GetUserByID(c.Request().Context(), middleware.ActorID(c))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NotFound("User not found")
		}
		return apperrors.Internal(err)
	}
	return c.JSON(http.StatusOK, user)
}

// FirebaseLogin verifies a Firebase ID token and issues a local JWT,
// creating or linking the local account on first sign-in.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req models.FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := h.firebaseAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return apperrors.Unauthorized("Invalid Firebase ID token")
	}

	firebaseUID := token.UID
	email, _ := token.Claims["email"].(string)
	email = strings.ToLower(email)

	// Try to find user by Firebase UID, then by email
	user, err := h.userRepository.GetUserByFirebaseUID(ctx, firebaseUID)
	if err == nil {
		return h.respondWithToken(c, http.StatusOK, user)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if email != "" {
		user, err = h.userRepository.GetUserByEmail(ctx, email)
		if err == nil {
			if user.FirebaseUID != nil && *user.FirebaseUID != firebaseUID {
				return apperrors.Conflict("Email is linked to another Firebase account")
			}
			// Linking an existing local account is left to an explicit flow.
			return apperrors.Conflict("An account with this email already exists; sign in with your password")
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return apperrors.Internal(err)
		}
	}

	newUser := &models.User{
		Username:    firebaseUsername(token.Claims, firebaseUID),
		Email:       email,
		FirebaseUID: &firebaseUID,
	}
	if newUser.Email == "" {
		newUser.Email = firebaseUID + "@firebase.local"
	}
	if err := h.userRepository.CreateUser(ctx, newUser); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return apperrors.Conflict("User already exists")
		}
		return apperrors.Internal(err)
	}
	logging.Ctx(ctx).Info().Str("user", newUser.ID).Msg("created user from firebase login")

	return h.respondWithToken(c, http.StatusCreated, newUser)
}

func (h *AuthHandler) respondWithToken(c echo.Context, status int, user *models.User) error {
	token, err := middleware.IssueToken(h.jwtSecret, h.jwtTTL, user)
	if err != nil {
		return apperrors.Internal(err)
	}
	return c.JSON(status, models.AuthResponse{Token: token, User: user})
}

// firebaseUsername derives a username from the token's display name, falling
// back to a prefix of the UID.
func firebaseUsername(claims map[string]interface{}, uid string) string {
	name, _ := claims["name"].(string)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.':
			b.WriteRune('_')
		}
	}
	base := b.String()
	if len(base) < 3 {
		base = "user"
	}
	if len(base) > 20 {
		base = base[:20]
	}
	suffix := uid
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "_" + suffix
}
