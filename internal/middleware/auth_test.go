package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories/memory"
	"github.com/anonto42/circle/backend/pkg/logging"
)

const testSecret = "test-secret"

type fakeVerifier map[string]string // id token -> firebase uid

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, ok := f[idToken]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: uid}, nil
}

func runAuth(t *testing.T, mw echo.MiddlewareFunc, header string) (string, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var actor string
	err := mw(func(c echo.Context) error {
		actor = ActorID(c)
		return nil
	})(c)
	return actor, err
}

func TestJWTAuthMiddleware(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "a@example.com"}
	valid, err := IssueToken(testSecret, time.Hour, user)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := IssueToken(testSecret, -time.Minute, user)
	foreign, _ := IssueToken("other-secret", time.Hour, user)

	tests := []struct {
		name      string
		header    string
		wantActor string
	}{
		{name: "valid token", header: "Bearer " + valid, wantActor: "user-1"},
		{name: "lowercase scheme", header: "bearer " + valid, wantActor: "user-1"},
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + foreign},
		{name: "garbage", header: "Bearer not.a.jwt"},
	}

	mw := JWTAuthMiddleware(testSecret, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, err := runAuth(t, mw, tt.header)
			if tt.wantActor == "" {
				if apperrors.KindOf(err) != apperrors.KindUnauthorized {
					t.Fatalf("got %v, want unauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actor != tt.wantActor {
				t.Errorf("actor = %q, want %q", actor, tt.wantActor)
			}
		})
	}
}

func TestJWTAuthMiddleware_FirebaseFallback(t *testing.T) {
	store := memory.New()
	uid := "fb-uid-1"
	linked := &models.User{Username: "linked", Email: "linked@example.com", FirebaseUID: &uid}
	if err := store.CreateUser(context.Background(), linked); err != nil {
		t.Fatal(err)
	}

	fa := NewFirebaseAuthenticator(fakeVerifier{"id-token": uid, "orphan-token": "fb-uid-2"}, store)
	mw := JWTAuthMiddleware(testSecret, fa)

	actor, err := runAuth(t, mw, "Bearer id-token")
	if err != nil {
		t.Fatalf("firebase token: %v", err)
	}
	if actor != linked.ID {
		t.Errorf("actor = %q, want %q", actor, linked.ID)
	}

	if _, err := runAuth(t, mw, "Bearer orphan-token"); apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Errorf("unlinked uid: got %v", err)
	}
	if _, err := runAuth(t, mw, "Bearer nope"); apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Errorf("invalid token: got %v", err)
	}
}

func TestRequestID_PropagatesToContext(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = logging.RequestID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "given-id")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if seen != "given-id" || rec.Header().Get(echo.HeaderXRequestID) != "given-id" {
		t.Errorf("seen=%q header=%q", seen, rec.Header().Get(echo.HeaderXRequestID))
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Errorf("generated id %q is not a uuid", seen)
	}
}
