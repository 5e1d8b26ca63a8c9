// Package services implements the user, follow, post and comment operations
// on top of the repositories. Every operation receives the acting user's id
// explicitly; ownership checks happen here, not in the stores.
package services

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
)

// storeError converts repository failures into application errors. Not-found
// becomes msg; anything unexpected becomes an internal error.
func storeError(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return apperrors.NotFound(notFound)
	default:
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.Internal(err)
	}
}

// summaries loads the compact form of every user in ids.
func summaries(ctx context.Context, users repositories.UserRepository, ids []string) (map[string]models.UserSummary, error) {
	ids = lo.Uniq(ids)
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	for i := range found {
		out[found[i].ID] = found[i].Summary()
	}
	return out, nil
}

// expand resolves ids to summaries, keeping the order of ids and dropping
// users that no longer exist.
func expand(ids []string, known map[string]models.UserSummary) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := known[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// withAuthors normalizes posts for the legacy media field and attaches the
// author summary to each.
func withAuthors(ctx context.Context, users repositories.UserRepository, posts []models.Post) ([]models.Post, error) {
	authors, err := summaries(ctx, users, lo.Map(posts, func(p models.Post, _ int) string { return p.UserID }))
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Normalize()
		if s, ok := authors[posts[i].UserID]; ok {
			author := s
			posts[i].Author = &author
		}
	}
	return posts, nil
}
