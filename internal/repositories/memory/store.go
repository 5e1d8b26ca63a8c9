// Package memory is an in-process implementation of every repository
// interface. It backs STORE_DRIVER=memory and the unit tests, and follows the
// same rules as the database store: unique follow edges, like counts derived
// from the like set, floored comment counters and cascading post deletes.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
)

type edge struct {
	follower  string
	following string
}

type postRecord struct {
	post models.Post
	seq  uint64
}

type commentRecord struct {
	comment models.Comment
	seq     uint64
}

// Store holds all records behind a single mutex.
type Store struct {
	mu       sync.RWMutex
	seq      uint64
	users    map[string]*models.User
	follows  map[edge]uint64
	posts    map[primitive.ObjectID]*postRecord
	comments map[primitive.ObjectID]*commentRecord
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		follows:  make(map[edge]uint64),
		posts:    make(map[primitive.ObjectID]*postRecord),
		comments: make(map[primitive.ObjectID]*commentRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewStore returns the repository set backed by a fresh in-memory store.
func NewStore() *repositories.Store {
	s := New()
	return &repositories.Store{Users: s, Follows: s, Posts: s, Comments: s}
}

var (
	_ repositories.UserRepository    = (*Store)(nil)
	_ repositories.FollowRepository  = (*Store)(nil)
	_ repositories.PostRepository    = (*Store)(nil)
	_ repositories.CommentRepository = (*Store)(nil)
)

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Followers = append([]string{}, u.Followers...)
	c.Following = append([]string{}, u.Following...)
	return &c
}

func clonePost(p *models.Post) models.Post {
	c := *p
	if p.Likes != nil {
		c.Likes = append([]string{}, p.Likes...)
	}
	if p.Media != nil {
		m := *p.Media
		c.Media = &m
	}
	return c
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrDuplicate
		}
		if user.FirebaseUID != nil && u.FirebaseUID != nil && *u.FirebaseUID == *user.FirebaseUID {
			return repositories.ErrDuplicate
		}
	}
	user.Prepare()
	if _, ok := s.users[user.ID]; ok {
		return repositories.ErrDuplicate
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *Store) GetUserByFirebaseUID(_ context.Context, firebaseUID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.FirebaseUID != nil && *u.FirebaseUID == firebaseUID {
			return cloneUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []models.User{}
	for _, id := range lo.Uniq(ids) {
		if u, ok := s.users[id]; ok {
			users = append(users, *cloneUser(u))
		}
	}
	return users, nil
}

func (s *Store) UpdateProfile(_ context.Context, id string, req models.UpdateProfileRequest) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if req.Username != nil && *req.Username != u.Username {
		for _, other := range s.users {
			if other.ID != id && other.Username == *req.Username {
				return nil, repositories.ErrDuplicate
			}
		}
		u.Username = *req.Username
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	if req.ProfileImage != nil {
		u.ProfileImage = *req.ProfileImage
	}
	u.UpdatedAt = s.now()
	return cloneUser(u), nil
}

func (s *Store) SearchUsers(_ context.Context, query, excludeID string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	matches := lo.Filter(lo.Values(s.users), func(u *models.User, _ int) bool {
		if u.ID == excludeID {
			return false
		}
		return strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q)
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].Username < matches[j].Username })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return lo.Map(matches, func(u *models.User, _ int) models.User { return *cloneUser(u) }), nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := lo.Values(s.users)
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return lo.Map(users, func(u *models.User, _ int) string { return u.ID }), nil
}

// ---- follows ----

func (s *Store) Follow(_ context.Context, followerID, followingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, ok := s.users[followerID]
	if !ok {
		return repositories.ErrNotFound
	}
	target, ok := s.users[followingID]
	if !ok {
		return repositories.ErrNotFound
	}
	e := edge{follower: followerID, following: followingID}
	if _, exists := s.follows[e]; exists {
		return repositories.ErrDuplicate
	}

	s.follows[e] = s.next()
	if !lo.Contains(follower.Following, followingID) {
		follower.Following = append(follower.Following, followingID)
	}
	if !lo.Contains(target.Followers, followerID) {
		target.Followers = append(target.Followers, followerID)
	}
	return nil
}

func (s *Store) Unfollow(_ context.Context, followerID, followingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, ok := s.users[followerID]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(s.follows, edge{follower: followerID, following: followingID})
	follower.Following = lo.Without(follower.Following, followingID)
	if target, ok := s.users[followingID]; ok {
		target.Followers = lo.Without(target.Followers, followerID)
	}
	return nil
}

func (s *Store) IsFollowing(_ context.Context, followerID, followingID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.follows[edge{follower: followerID, following: followingID}]
	return ok, nil
}

func (s *Store) edgeIDs(match func(edge) (string, bool)) []string {
	type found struct {
		id  string
		seq uint64
	}
	var hits []found
	for e, seq := range s.follows {
		if id, ok := match(e); ok {
			hits = append(hits, found{id: id, seq: seq})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
	}
	return ids
}

func (s *Store) GetFollowerIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeIDs(func(e edge) (string, bool) { return e.follower, e.following == userID }), nil
}

func (s *Store) GetFollowingIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeIDs(func(e edge) (string, bool) { return e.following, e.follower == userID }), nil
}

func (s *Store) RebuildGraph(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	followers := s.edgeIDs(func(e edge) (string, bool) { return e.follower, e.following == userID })
	following := s.edgeIDs(func(e edge) (string, bool) { return e.following, e.follower == userID })
	if repositories.SameIDSet(u.Followers, followers) && repositories.SameIDSet(u.Following, following) {
		return false, nil
	}
	u.Followers = followers
	u.Following = following
	return true, nil
}

// SetGraph overwrites a user's cached arrays without touching the edges,
// leaving them out of step with the edge set until the next RebuildGraph.
func (s *Store) SetGraph(userID string, followers, following []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Followers = append([]string{}, followers...)
	u.Following = append([]string{}, following...)
	return nil
}

// ---- posts ----

func (s *Store) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	post.ID = primitive.NewObjectID()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Likes == nil {
		post.Likes = []string{}
	}
	post.LikesCount = len(post.Likes)
	s.posts[post.ID] = &postRecord{post: clonePost(post), seq: s.next()}
	return nil
}

func (s *Store) lookupPost(id string) (*postRecord, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repositories.ErrNotFound
	}
	rec, ok := s.posts[objID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return rec, nil
}

func (s *Store) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookupPost(id)
	if err != nil {
		return nil, err
	}
	p := clonePost(&rec.post)
	return &p, nil
}

func (s *Store) postsBy(authors []string) []*postRecord {
	recs := lo.Filter(lo.Values(s.posts), func(r *postRecord, _ int) bool {
		return lo.Contains(authors, r.post.UserID)
	})
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.seq > b.seq
	})
	return recs
}

func toPosts(recs []*postRecord) []models.Post {
	return lo.Map(recs, func(r *postRecord, _ int) models.Post { return clonePost(&r.post) })
}

func (s *Store) GetPostsByUserID(_ context.Context, userID string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return toPosts(s.postsBy([]string{userID})), nil
}

func (s *Store) GetFeedPosts(_ context.Context, userIDs []string, skip, limit int64) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.postsBy(userIDs)
	if skip < 0 || skip >= int64(len(recs)) {
		return []models.Post{}, nil
	}
	recs = recs[skip:]
	if limit > 0 && int64(len(recs)) > limit {
		recs = recs[:limit]
	}
	return toPosts(recs), nil
}

func (s *Store) CountFeedPosts(_ context.Context, userIDs []string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.postsBy(userIDs))), nil
}

func (s *Store) UpdatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.posts[post.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	post.UpdatedAt = s.now()
	rec.post.Content = post.Content
	rec.post.Image = post.Image
	rec.post.UpdatedAt = post.UpdatedAt
	if post.Media != nil {
		m := *post.Media
		rec.post.Media = &m
	} else {
		rec.post.Media = nil
	}
	return nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupPost(id)
	if err != nil {
		return err
	}
	for cid, c := range s.comments {
		if c.comment.PostID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.posts, rec.post.ID)
	return nil
}

func (s *Store) ToggleLike(_ context.Context, postID, userID string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupPost(postID)
	if err != nil {
		return nil, err
	}
	if lo.Contains(rec.post.Likes, userID) {
		rec.post.Likes = lo.Without(rec.post.Likes, userID)
	} else {
		rec.post.Likes = append(rec.post.Likes, userID)
	}
	rec.post.LikesCount = len(rec.post.Likes)
	p := clonePost(&rec.post)
	return &p, nil
}

func (s *Store) IncrementCommentsCount(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupPost(postID)
	if err != nil {
		return err
	}
	rec.post.CommentsCount++
	return nil
}

func (s *Store) DecrementCommentsCount(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupPost(postID)
	if err != nil {
		return err
	}
	if rec.post.CommentsCount > 0 {
		rec.post.CommentsCount--
	}
	return nil
}

func (s *Store) BackfillMedia(_ context.Context) (models.BackfillReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := models.BackfillReport{TotalPosts: int64(len(s.posts))}
	for _, rec := range s.posts {
		if rec.post.Media != nil && rec.post.Media.Kind != "" {
			continue
		}
		m := models.MediaFromLegacy(rec.post.Image)
		rec.post.Media = &m
		report.FixedPosts++
	}
	return report, nil
}

// ---- comments ----

func (s *Store) CreateComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment.ID = primitive.NewObjectID()
	comment.CreatedAt = s.now()
	s.comments[comment.ID] = &commentRecord{comment: *comment, seq: s.next()}
	return nil
}

func (s *Store) GetCommentByID(_ context.Context, id string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repositories.ErrNotFound
	}
	rec, ok := s.comments[objID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := rec.comment
	return &c, nil
}

func (s *Store) GetCommentsByPostID(_ context.Context, postID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := lo.Filter(lo.Values(s.comments), func(r *commentRecord, _ int) bool {
		return r.comment.PostID == postID
	})
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.comment.CreatedAt.Equal(b.comment.CreatedAt) {
			return a.comment.CreatedAt.After(b.comment.CreatedAt)
		}
		return a.seq > b.seq
	})
	return lo.Map(recs, func(r *commentRecord, _ int) models.Comment { return r.comment }), nil
}

func (s *Store) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repositories.ErrNotFound
	}
	if _, ok := s.comments[objID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.comments, objID)
	return nil
}
