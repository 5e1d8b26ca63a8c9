package services

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/validation"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// CommentService handles comments and keeps the post's comment counter.
type CommentService struct {
	comments repositories.CommentRepository
	posts    repositories.PostRepository
	users    repositories.UserRepository
}

func NewCommentService(comments repositories.CommentRepository, posts repositories.PostRepository, users repositories.UserRepository) *CommentService {
	return &CommentService{comments: comments, posts: posts, users: users}
}

// Add stores the comment and increments the post's counter by one.
func (s *CommentService) Add(ctx context.Context, actorID, postID string, req models.CreateCommentRequest) (*models.Comment, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.posts.GetPostByID(ctx, postID); err != nil {
		return nil, storeError(err, "Post not found")
	}

	comment := &models.Comment{PostID: postID, UserID: actorID, Text: req.Text}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.posts.IncrementCommentsCount(ctx, postID); err != nil {
		// The post went away after the existence check; do not leave the
		// comment behind.
		if delErr := s.comments.DeleteComment(ctx, comment.ID.Hex()); delErr != nil && !errors.Is(delErr, repositories.ErrNotFound) {
			logging.Ctx(ctx).Error().Err(delErr).Str("comment", comment.ID.Hex()).Msg("failed to remove orphaned comment")
		}
		return nil, storeError(err, "Post not found")
	}

	decorated, err := s.decorate(ctx, []models.Comment{*comment})
	if err != nil {
		return nil, err
	}
	return &decorated[0], nil
}

// List returns a post's comments, newest first. A missing post yields an
// empty list.
func (s *CommentService) List(ctx context.Context, postID string) ([]models.Comment, error) {
	comments, err := s.comments.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.decorate(ctx, comments)
}

// Delete lets the author remove a comment and decrements the counter,
// never below zero.
func (s *CommentService) Delete(ctx context.Context, actorID, commentID string) error {
	comment, err := s.comments.GetCommentByID(ctx, commentID)
	if err != nil {
		return storeError(err, "Comment not found")
	}
	if comment.UserID != actorID {
		return apperrors.Forbidden("Not authorized to delete this comment")
	}

	if err := s.comments.DeleteComment(ctx, commentID); err != nil {
		return storeError(err, "Comment not found")
	}
	err = s.posts.DecrementCommentsCount(ctx, comment.PostID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *CommentService) decorate(ctx context.Context, comments []models.Comment) ([]models.Comment, error) {
	authors, err := summaries(ctx, s.users, lo.Map(comments, func(c models.Comment, _ int) string { return c.UserID }))
	if err != nil {
		return nil, err
	}
	for i := range comments {
		if a, ok := authors[comments[i].UserID]; ok {
			author := a
			comments[i].Author = &author
		}
	}
	return comments, nil
}
