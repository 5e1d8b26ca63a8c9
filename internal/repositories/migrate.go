package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"

	"github.com/anonto42/circle/backend/internal/models"
)

const (
	PostsCollection    = "posts"
	CommentsCollection = "comments"
)

// Migrate creates the PostgreSQL tables and the MongoDB indexes.
func Migrate(ctx context.Context, pg *gorm.DB, mdb *mongo.Database) error {
	if err := pg.WithContext(ctx).AutoMigrate(&models.User{}, &models.Follow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	indexes := map[string]mongo.IndexModel{
		PostsCollection: {
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt"),
		},
		CommentsCollection: {
			Keys:    bson.D{{Key: "post", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("post_createdAt"),
		},
	}
	for coll, model := range indexes {
		if _, err := mdb.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", coll, err)
		}
	}
	return nil
}

// NewDatabaseStore wires the PostgreSQL and MongoDB repositories.
func NewDatabaseStore(pg *gorm.DB, mdb *mongo.Database, mongoTransactions bool) *Store {
	return &Store{
		Users:    NewPostgresUserRepository(pg),
		Follows:  NewPostgresFollowRepository(pg),
		Posts:    NewMongoPostRepository(mdb, mongoTransactions),
		Comments: NewMongoCommentRepository(mdb),
	}
}
