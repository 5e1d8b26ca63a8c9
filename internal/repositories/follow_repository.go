package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anonto42/circle/backend/internal/models"
)

// FollowRepository defines the interface for follow data operations.
// Follow and Unfollow change the edge and both users' arrays as one unit.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	GetFollowerIDs(ctx context.Context, userID string) ([]string, error)
	GetFollowingIDs(ctx context.Context, userID string) ([]string, error)
	// RebuildGraph recomputes the user's arrays from the edges and reports
	// whether they had drifted.
	RebuildGraph(ctx context.Context, userID string) (bool, error)
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

// lockFollower takes a row lock on the follower so follow and unfollow
// requests from the same actor run one after another.
func lockFollower(tx *gorm.DB, followerID string) error {
	var user models.User
	return translate(tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Where("id = ?", followerID).Take(&user).Error)
}

// Follow inserts the edge and appends to both arrays in one transaction.
// A second follow of the same pair fails on the unique index with ErrDuplicate.
func (r *PostgresFollowRepository) Follow(ctx context.Context, followerID, followingID string) error {
	if _, err := uuid.Parse(followerID); err != nil {
		return ErrNotFound
	}
	if _, err := uuid.Parse(followingID); err != nil {
		return ErrNotFound
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockFollower(tx, followerID); err != nil {
			return err
		}
		if err := tx.Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error; err != nil {
			return translate(err)
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND NOT (?::text = ANY(following))", followerID, followingID).
			Update("following", gorm.Expr("array_append(following, ?::text)", followingID))
		if res.Error != nil {
			return res.Error
		}
		res = tx.Model(&models.User{}).
			Where("id = ? AND NOT (?::text = ANY(followers))", followingID, followerID).
			Update("followers", gorm.Expr("array_append(followers, ?::text)", followerID))
		return res.Error
	})
}

// Unfollow removes the edge if present and strips both arrays. Calling it for
// a pair that is not connected is a no-op.
func (r *PostgresFollowRepository) Unfollow(ctx context.Context, followerID, followingID string) error {
	if _, err := uuid.Parse(followerID); err != nil {
		return ErrNotFound
	}
	if _, err := uuid.Parse(followingID); err != nil {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockFollower(tx, followerID); err != nil {
			return err
		}
		if err := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).
			Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", followerID).
			Update("following", gorm.Expr("array_remove(following, ?::text)", followingID)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", followingID).
			Update("followers", gorm.Expr("array_remove(followers, ?::text)", followerID)).Error
	})
}

func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	if _, err := uuid.Parse(followingID); err != nil {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresFollowRepository) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_id = ?", userID).Order("id").Pluck("follower_id", &ids).Error
	return ids, err
}

func (r *PostgresFollowRepository) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).Order("id").Pluck("following_id", &ids).Error
	return ids, err
}

// RebuildGraph rewrites a user's cached arrays from the follows table in one
// transaction holding the user's row lock. Follow and unfollow update the same
// row, so an edge that commits meanwhile is either read here or applied on
// top of the rebuilt arrays.
func (r *PostgresFollowRepository) RebuildGraph(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, ErrNotFound
	}

	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := translate(tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "followers", "following").Where("id = ?", userID).Take(&user).Error); err != nil {
			return err
		}

		followers := []string{}
		if err := tx.Model(&models.Follow{}).Where("following_id = ?", userID).
			Order("id").Pluck("follower_id", &followers).Error; err != nil {
			return err
		}
		following := []string{}
		if err := tx.Model(&models.Follow{}).Where("follower_id = ?", userID).
			Order("id").Pluck("following_id", &following).Error; err != nil {
			return err
		}
		if SameIDSet(user.Followers, followers) && SameIDSet(user.Following, following) {
			return nil
		}

		changed = true
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]interface{}{
				"followers": pq.StringArray(followers),
				"following": pq.StringArray(following),
			}).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
