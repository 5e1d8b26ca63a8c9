package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is the profile and social-graph record of an account (PostgreSQL).
// Followers and Following mirror the follows table and are only written
// together with it.
type User struct {
	ID           string         `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string         `json:"username" gorm:"size:30;uniqueIndex;not null"`
	Email        string         `json:"email" gorm:"uniqueIndex;not null"`
	Password     string         `json:"-"`
	FirebaseUID  *string        `json:"-" gorm:"uniqueIndex"`
	Bio          string         `json:"bio" gorm:"size:200"`
	ProfileImage string         `json:"profileImage"`
	Followers    pq.StringArray `json:"followers" gorm:"type:text[];not null;default:'{}'"`
	Following    pq.StringArray `json:"following" gorm:"type:text[];not null;default:'{}'"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// BeforeCreate assigns an id and empty graph arrays to new users.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	u.Prepare()
	return nil
}

// Prepare fills the fields a new record needs before it is stored.
func (u *User) Prepare() {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Followers == nil {
		u.Followers = pq.StringArray{}
	}
	if u.Following == nil {
		u.Following = pq.StringArray{}
	}
}

// Summary returns the compact form embedded in posts, comments and profiles.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfileImage: u.ProfileImage}
}

// UserSummary is the author/follower form of a user.
type UserSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
}

// Profile is a user with followers and following expanded to summaries.
type Profile struct {
	ID           string        `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	Bio          string        `json:"bio"`
	ProfileImage string        `json:"profileImage"`
	Followers    []UserSummary `json:"followers"`
	Following    []UserSummary `json:"following"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// UpdateProfileRequest defines the request body for editing the caller's own profile.
// Nil fields are left unchanged.
type UpdateProfileRequest struct {
	Username     *string `json:"username,omitempty" validate:"omitempty,min=3,max=30,username"`
	Bio          *string `json:"bio,omitempty" validate:"omitempty,max=200"`
	ProfileImage *string `json:"profileImage,omitempty" validate:"omitempty,max=2048"`
}

// RegisterRequest defines the request body for creating a local account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the request body for a password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// FirebaseLoginRequest defines the request body for exchanging a Firebase ID token.
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// AuthResponse is returned by every login flow.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
