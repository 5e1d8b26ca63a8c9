package services

import (
	"context"
	"errors"
	"strings"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/validation"
)

// SearchLimit caps the number of users returned by Search.
const SearchLimit = 10

// UserService serves profile reads, own-profile edits and user search.
type UserService struct {
	users repositories.UserRepository
}

func NewUserService(users repositories.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetProfile returns the user with followers and following expanded to
// summaries.
func (s *UserService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	ids := make([]string, 0, len(user.Followers)+len(user.Following))
	ids = append(ids, user.Followers...)
	ids = append(ids, user.Following...)
	known, err := summaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}

	return &models.Profile{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Bio:          user.Bio,
		ProfileImage: user.ProfileImage,
		Followers:    expand(user.Followers, known),
		Following:    expand(user.Following, known),
		CreatedAt:    user.CreatedAt,
	}, nil
}

// UpdateProfile edits the actor's own record. There is no target id.
func (s *UserService) UpdateProfile(ctx context.Context, actorID string, req models.UpdateProfileRequest) (*models.User, error) {
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		req.Username = &trimmed
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateProfile(ctx, actorID, req)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, apperrors.Conflict("Username is already taken")
	}
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	return user, nil
}

// Search matches username or email case-insensitively, never returning the
// actor and at most SearchLimit users.
func (s *UserService) Search(ctx context.Context, actorID, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Validation("Search query is required")
	}
	users, err := s.users.SearchUsers(ctx, query, actorID, SearchLimit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return users, nil
}
