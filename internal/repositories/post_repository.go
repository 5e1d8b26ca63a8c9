package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/circle/backend/internal/models"
)

// PostRepository defines the interface for post data operations.
// Posts are returned as stored; callers apply the legacy media shim.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	GetPostsByUserID(ctx context.Context, userID string) ([]models.Post, error)
	GetFeedPosts(ctx context.Context, userIDs []string, skip, limit int64) ([]models.Post, error)
	CountFeedPosts(ctx context.Context, userIDs []string) (int64, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, postID, userID string) (*models.Post, error)
	IncrementCommentsCount(ctx context.Context, postID string) error
	DecrementCommentsCount(ctx context.Context, postID string) error
	BackfillMedia(ctx context.Context) (models.BackfillReport, error)
}

// MongoPostRepository implements PostRepository for MongoDB
type MongoPostRepository struct {
	client        *mongo.Client
	collection    *mongo.Collection
	comments      *mongo.Collection
	transactional bool
}

// NewMongoPostRepository creates a new MongoPostRepository. With
// transactional set, the comment cascade on delete runs in a session
// transaction, which requires a replica set.
func NewMongoPostRepository(db *mongo.Database, transactional bool) *MongoPostRepository {
	return &MongoPostRepository{
		client:        db.Client(),
		collection:    db.Collection(PostsCollection),
		comments:      db.Collection(CommentsCollection),
		transactional: transactional,
	}
}

// CreatePost creates a new post in MongoDB
func (r *MongoPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.Likes == nil {
		post.Likes = []string{}
	}
	post.LikesCount = len(post.Likes)
	_, err := r.collection.InsertOne(ctx, post)
	return err
}

// GetPostByID retrieves a post by ID from MongoDB
func (r *MongoPostRepository) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var post models.Post
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// GetPostsByUserID retrieves every post by one author, newest first.
func (r *MongoPostRepository) GetPostsByUserID(ctx context.Context, userID string) ([]models.Post, error) {
	return r.find(ctx, bson.M{"user": userID}, options.Find().SetSort(newestFirst))
}

// GetFeedPosts retrieves one page of posts authored by any of userIDs.
func (r *MongoPostRepository) GetFeedPosts(ctx context.Context, userIDs []string, skip, limit int64) ([]models.Post, error) {
	if skip < 0 {
		return []models.Post{}, nil
	}
	findOptions := options.Find().SetSort(newestFirst).SetSkip(skip).SetLimit(limit)
	return r.find(ctx, bson.M{"user": bson.M{"$in": userIDs}}, findOptions)
}

func (r *MongoPostRepository) CountFeedPosts(ctx context.Context, userIDs []string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"user": bson.M{"$in": userIDs}})
}

func (r *MongoPostRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Post, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// UpdatePost writes the editable fields of post. Author, likes and counters
// are left to their own operations.
func (r *MongoPostRepository) UpdatePost(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"content":   post.Content,
			"media":     post.Media,
			"image":     post.Image,
			"updatedAt": post.UpdatedAt,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": post.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes the post's comments and then the post itself.
func (r *MongoPostRepository) DeletePost(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	if !r.transactional {
		return r.deleteCascade(ctx, id, objID)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, r.deleteCascade(sc, id, objID)
	})
	return err
}

func (r *MongoPostRepository) deleteCascade(ctx context.Context, id string, objID primitive.ObjectID) error {
	if _, err := r.comments.DeleteMany(ctx, bson.M{"post": id}); err != nil {
		return err
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleLike flips userID's membership in the like set and recomputes
// likesCount from the resulting set, in a single document update.
func (r *MongoPostRepository) ToggleLike(ctx context.Context, postID, userID string) (*models.Post, error) {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return nil, ErrNotFound
	}

	user := bson.D{{Key: "$literal", Value: userID}}
	likes := bson.D{{Key: "$ifNull", Value: bson.A{"$likes", bson.A{}}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "likes", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{user, likes}}},
			bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: likes},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", user}}}},
			}}},
			bson.D{{Key: "$concatArrays", Value: bson.A{likes, bson.A{user}}}},
		}}}}}}},
		{{Key: "$set", Value: bson.D{{Key: "likesCount", Value: bson.D{{Key: "$size", Value: "$likes"}}}}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post models.Post
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// IncrementCommentsCount increments the comments count of a post
func (r *MongoPostRepository) IncrementCommentsCount(ctx context.Context, postID string) error {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$inc": bson.M{"commentsCount": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementCommentsCount decrements the comments count of a post, never
// below zero.
func (r *MongoPostRepository) DecrementCommentsCount(ctx context.Context, postID string) error {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return ErrNotFound
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "commentsCount", Value: bson.D{{Key: "$max", Value: bson.A{
			0,
			bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$commentsCount", 0}}}, -1}}},
		}}}}}}},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// BackfillMedia writes a structured media field, derived from the legacy
// image URL, on every post that lacks one.
func (r *MongoPostRepository) BackfillMedia(ctx context.Context) (models.BackfillReport, error) {
	var report models.BackfillReport

	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return report, err
	}
	report.TotalPosts = total

	image := bson.D{{Key: "$ifNull", Value: bson.A{"$image", ""}}}
	hasImage := bson.D{{Key: "$gt", Value: bson.A{
		bson.D{{Key: "$strLenCP", Value: bson.D{{Key: "$trim", Value: bson.D{{Key: "input", Value: image}}}}}},
		0,
	}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "media", Value: bson.D{{Key: "$cond", Value: bson.A{
			hasImage,
			bson.D{{Key: "url", Value: "$image"}, {Key: "type", Value: string(models.MediaImage)}},
			bson.D{{Key: "url", Value: ""}, {Key: "type", Value: string(models.MediaNone)}},
		}}}}}}},
	}

	res, err := r.collection.UpdateMany(ctx, bson.M{"media.type": bson.M{"$in": bson.A{nil, ""}}}, update)
	if err != nil {
		return report, err
	}
	report.FixedPosts = res.ModifiedCount
	return report, nil
}
