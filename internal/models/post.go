package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MediaKind classifies the media attached to a post.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaNone  MediaKind = "none"
)

// Media is the structured media descriptor of a post. Kind is stored under
// "type" so documents written before the Go backend decode unchanged.
type Media struct {
	URL  string    `json:"url" bson:"url"`
	Kind MediaKind `json:"type" bson:"type"`
}

// MediaFromLegacy builds the descriptor for a post that only carries the old
// bare image URL.
func MediaFromLegacy(image string) Media {
	if strings.TrimSpace(image) == "" {
		return Media{URL: "", Kind: MediaNone}
	}
	return Media{URL: image, Kind: MediaImage}
}

// Post represents a social media post stored in MongoDB
type Post struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID        string             `json:"userId" bson:"user"`
	Content       string             `json:"content" bson:"content"`
	Media         *Media             `json:"media" bson:"media,omitempty"`
	Image         string             `json:"image,omitempty" bson:"image,omitempty"` // legacy bare image URL
	Likes         []string           `json:"likes" bson:"likes"`
	LikesCount    int                `json:"likesCount" bson:"likesCount"`
	CommentsCount int                `json:"commentsCount" bson:"commentsCount"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`

	Author *UserSummary `json:"user,omitempty" bson:"-"`
}

// Normalize synthesizes the structured media descriptor from the legacy
// image field when it is absent. It only touches the in-memory value.
func (p *Post) Normalize() {
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Media != nil && p.Media.Kind != "" {
		return
	}
	m := MediaFromLegacy(p.Image)
	p.Media = &m
}

// LikedBy reports whether userID is in the like set.
func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// MediaInput is the structured media object accepted on create and update.
type MediaInput struct {
	URL  string    `json:"url" validate:"max=2048"`
	Kind MediaKind `json:"type" validate:"required,oneof=image video none"`
}

// CreatePostRequest defines the request body for creating a new post.
// Image is the legacy bare URL form and is only used when Media is absent.
type CreatePostRequest struct {
	Content string      `json:"content" validate:"required,max=2000"`
	Media   *MediaInput `json:"media,omitempty" validate:"omitempty"`
	Image   string      `json:"image,omitempty" validate:"max=2048"`
}

// UpdatePostRequest defines the request body for editing a post. An empty or
// missing content keeps the old text; Image set to "" clears legacy media.
type UpdatePostRequest struct {
	Content *string     `json:"content,omitempty" validate:"omitempty,max=2000"`
	Media   *MediaInput `json:"media,omitempty" validate:"omitempty"`
	Image   *string     `json:"image,omitempty" validate:"omitempty,max=2048"`
}

// FeedPage is one page of the reverse-chronological feed.
type FeedPage struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	Total       int64  `json:"total"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

// BackfillReport summarizes a legacy media backfill pass.
type BackfillReport struct {
	TotalPosts int64 `json:"totalPosts"`
	FixedPosts int64 `json:"fixedPosts"`
}
