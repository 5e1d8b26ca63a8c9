package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
)

// ActorKey is the echo context key holding the authenticated user id.
const ActorKey = "actorID"

// ActorID returns the authenticated user id set by JWTAuthMiddleware.
func ActorID(c echo.Context) string {
	id, _ := c.Get(ActorKey).(string)
	return id
}

// IssueToken signs an HS256 token for the user.
func IssueToken(secret string, ttl time.Duration, user *models.User) (string, error) {
	now := time.Now()
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", apperrors.Unauthorized("Missing Authorization header")
	}

	// Expecting "Bearer <token>"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperrors.Unauthorized("Invalid Authorization header format")
	}
	return parts[1], nil
}

func parseToken(secret, tokenString string) (*models.JwtCustomClaims, error) {
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, apperrors.Unauthorized("Invalid token")
	}
	return claims, nil
}

// JWTAuthMiddleware checks for a valid JWT and stores the user id under
// ActorKey. When firebase is non-nil, a bearer token that is not a local JWT
// is tried as a Firebase ID token.
func JWTAuthMiddleware(secret string, firebase *FirebaseAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := parseToken(secret, tokenString)
			if err != nil {
				if firebase == nil {
					return err
				}
				actorID, fbErr := firebase.Authenticate(c.Request().Context(), tokenString)
				if fbErr != nil {
					return fbErr
				}
				c.Set(ActorKey, actorID)
				return next(c)
			}

			c.Set("user", claims)
			c.Set(ActorKey, claims.UserID)
			return next(c)
		}
	}
}
