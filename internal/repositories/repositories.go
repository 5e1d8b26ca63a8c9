package repositories

import (
	"errors"

	"github.com/samber/lo"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// Store groups the repositories a server instance runs against.
type Store struct {
	Users    UserRepository
	Follows  FollowRepository
	Posts    PostRepository
	Comments CommentRepository
}

// SameIDSet reports whether cached holds exactly the ids in edges, once each.
func SameIDSet(cached, edges []string) bool {
	if len(cached) != len(edges) || len(lo.Uniq(cached)) != len(cached) {
		return false
	}
	missing, extra := lo.Difference(edges, cached)
	return len(missing) == 0 && len(extra) == 0
}
