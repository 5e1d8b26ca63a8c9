package services

import (
	"context"
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/validation"
	"github.com/anonto42/circle/backend/pkg/logging"
)

const (
	DefaultFeedLimit = 10
	MaxFeedLimit     = 50
)

// PostService handles posts, likes and the feed.
type PostService struct {
	posts repositories.PostRepository
	users repositories.UserRepository
}

func NewPostService(posts repositories.PostRepository, users repositories.UserRepository) *PostService {
	return &PostService{posts: posts, users: users}
}

// resolveMedia builds the stored descriptor from either the structured media
// object or the legacy bare URL.
func resolveMedia(media *models.MediaInput, legacy string) (models.Media, error) {
	if media == nil {
		return models.MediaFromLegacy(legacy), nil
	}
	url := strings.TrimSpace(media.URL)
	if media.Kind == models.MediaNone {
		return models.Media{URL: "", Kind: models.MediaNone}, nil
	}
	if url == "" {
		return models.Media{}, apperrors.Validation("url is required for image and video media")
	}
	return models.Media{URL: url, Kind: media.Kind}, nil
}

func (s *PostService) Create(ctx context.Context, actorID string, req models.CreatePostRequest) (*models.Post, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	media, err := resolveMedia(req.Media, req.Image)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:  actorID,
		Content: req.Content,
		Media:   &media,
		Likes:   []string{},
	}
	if req.Media == nil && media.Kind == models.MediaImage {
		post.Image = media.URL
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.decorate(ctx, post)
}

// Feed returns one page of posts by the viewer and everyone the viewer
// follows, newest first. page and limit are clamped to sane values.
func (s *PostService) Feed(ctx context.Context, viewerID string, page, limit int) (*models.FeedPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	viewer, err := s.users.GetUserByID(ctx, viewerID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	scope := lo.Uniq(append([]string{viewerID}, viewer.Following...))

	total, err := s.posts.CountFeedPosts(ctx, scope)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	feed := &models.FeedPage{
		Posts:       []models.Post{},
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		Total:       total,
	}
	// past the last page; also keeps skip from overflowing
	if page > feed.TotalPages {
		return feed, nil
	}

	skip := int64(page-1) * int64(limit)
	posts, err := s.posts.GetFeedPosts(ctx, scope, skip, int64(limit))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if feed.Posts, err = withAuthors(ctx, s.users, posts); err != nil {
		return nil, err
	}
	return feed, nil
}

// UserPosts returns every post by one author, newest first.
func (s *PostService) UserPosts(ctx context.Context, userID string) ([]models.Post, error) {
	posts, err := s.posts.GetPostsByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return withAuthors(ctx, s.users, posts)
}

func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Post not found")
	}
	return s.decorate(ctx, post)
}

// owned loads a post and checks that actorID wrote it.
func (s *PostService) owned(ctx context.Context, actorID, id, action string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Post not found")
	}
	if post.UserID != actorID {
		return nil, apperrors.Forbidden("Not authorized to " + action + " this post")
	}
	return post, nil
}

// Update lets the author change content and media. Empty content keeps the
// old text. A structured media object replaces media wholesale; otherwise a
// legacy image value, including "", rebuilds it.
func (s *PostService) Update(ctx context.Context, actorID, id string, req models.UpdatePostRequest) (*models.Post, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	post, err := s.owned(ctx, actorID, id, "update")
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		if content := strings.TrimSpace(*req.Content); content != "" {
			post.Content = content
		}
	}
	switch {
	case req.Media != nil:
		media, err := resolveMedia(req.Media, "")
		if err != nil {
			return nil, err
		}
		post.Media = &media
		post.Image = ""
	case req.Image != nil:
		media := models.MediaFromLegacy(*req.Image)
		post.Media = &media
		post.Image = media.URL
	default:
		post.Normalize()
	}

	if err := s.posts.UpdatePost(ctx, post); err != nil {
		return nil, storeError(err, "Post not found")
	}
	return s.decorate(ctx, post)
}

// Delete removes the post and every comment attached to it.
func (s *PostService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.owned(ctx, actorID, id, "delete"); err != nil {
		return err
	}
	if err := s.posts.DeletePost(ctx, id); err != nil {
		return storeError(err, "Post not found")
	}
	logging.Ctx(ctx).Info().Str("post", id).Str("user", actorID).Msg("post deleted")
	return nil
}

// ToggleLike adds the actor to the like set, or removes them if present.
func (s *PostService) ToggleLike(ctx context.Context, actorID, id string) (*models.LikeResult, error) {
	post, err := s.posts.ToggleLike(ctx, id, actorID)
	if err != nil {
		return nil, storeError(err, "Post not found")
	}
	liked := post.LikedBy(actorID)
	metrics.RecordLikeToggle(liked)
	return &models.LikeResult{Likes: post.LikesCount, Liked: liked}, nil
}

// BackfillMedia persists the structured media field on legacy posts. Reads
// do not depend on it; they normalize on their own.
func (s *PostService) BackfillMedia(ctx context.Context) (models.BackfillReport, error) {
	report, err := s.posts.BackfillMedia(ctx)
	if err != nil {
		return report, apperrors.Internal(err)
	}
	return report, nil
}

func (s *PostService) decorate(ctx context.Context, post *models.Post) (*models.Post, error) {
	posts, err := withAuthors(ctx, s.users, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}
