package services

import (
	"context"
	"errors"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// FollowService maintains the follow edges and the arrays mirrored on users.
type FollowService struct {
	users   repositories.UserRepository
	follows repositories.FollowRepository
}

func NewFollowService(users repositories.UserRepository, follows repositories.FollowRepository) *FollowService {
	return &FollowService{users: users, follows: follows}
}

// Follow checks self-follow, then target existence, then duplicates.
func (s *FollowService) Follow(ctx context.Context, actorID, targetID string) (err error) {
	defer func() { metrics.RecordFollow("follow", followOutcome(err)) }()

	if actorID == targetID {
		return apperrors.ErrSelfFollow
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return storeError(err, "User not found")
	}

	err = s.follows.Follow(ctx, actorID, targetID)
	if errors.Is(err, repositories.ErrDuplicate) {
		return apperrors.ErrAlreadyFollowing
	}
	return storeError(err, "User not found")
}

// Unfollow removes the edge if there is one. It does not fail when the
// actor was not following the target.
func (s *FollowService) Unfollow(ctx context.Context, actorID, targetID string) (err error) {
	defer func() { metrics.RecordFollow("unfollow", followOutcome(err)) }()
	return storeError(s.follows.Unfollow(ctx, actorID, targetID), "User not found")
}

func followOutcome(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindConflict:
		return "conflict"
	case apperrors.KindNotFound:
		return "not_found"
	}
	if err != nil {
		return "error"
	}
	return "ok"
}

// Repair rebuilds every user's followers and following arrays from the edge
// set. Each user is rebuilt under its own row lock, so follows that run
// during the pass are not overwritten.
func (s *FollowService) Repair(ctx context.Context) (models.RepairReport, error) {
	var report models.RepairReport

	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return report, apperrors.Internal(err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		repaired, err := s.follows.RebuildGraph(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, apperrors.Internal(err)
		}
		report.UsersScanned++
		if !repaired {
			continue
		}
		report.UsersRepaired++
		logging.Ctx(ctx).Warn().Str("user", id).Msg("repaired follow arrays")
	}
	return report, nil
}
