package models

import "time"

// Follow is a directed edge follower -> following. The unique index makes it
// the serialization point for concurrent follow requests.
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  string    `json:"followerId" gorm:"type:uuid;index;uniqueIndex:idx_follower_following"`
	FollowingID string    `json:"followingId" gorm:"type:uuid;index;uniqueIndex:idx_follower_following"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RepairReport summarizes a follow-graph reconciliation pass.
type RepairReport struct {
	UsersScanned  int `json:"usersScanned"`
	UsersRepaired int `json:"usersRepaired"`
}
