package middleware

import (
	"context"
	"errors"

	"firebase.google.com/go/v4/auth"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthenticator maps a Firebase ID token to a local user id.
type FirebaseAuthenticator struct {
	verifier TokenVerifier
	users    repositories.UserRepository
}

func NewFirebaseAuthenticator(verifier TokenVerifier, users repositories.UserRepository) *FirebaseAuthenticator {
	return &FirebaseAuthenticator{verifier: verifier, users: users}
}

// Authenticate verifies the token and returns the id of the user linked to
// its Firebase UID. Users sign in through /auth/firebase-login first; an
// unknown UID is rejected.
func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, idToken string) (string, error) {
	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", apperrors.Unauthorized("Invalid or expired token")
	}

	user, err := a.users.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperrors.Unauthorized("No account is linked to this Firebase user")
		}
		logging.Ctx(ctx).Error().Err(err).Msg("firebase user lookup failed")
		return "", apperrors.Internal(err)
	}
	return user.ID, nil
}
