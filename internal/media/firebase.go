package media

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// FirebaseUploader stores objects in a Firebase Storage (Cloud Storage)
// bucket and returns their public URL.
type FirebaseUploader struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewFirebaseUploader(bucket *storage.BucketHandle, bucketName string) *FirebaseUploader {
	return &FirebaseUploader{bucket: bucket, bucketName: bucketName}
}

func (u *FirebaseUploader) Name() string { return "firebase" }

func (u *FirebaseUploader) Upload(ctx context.Context, obj Object) (string, error) {
	w := u.bucket.Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = "public, max-age=31536000"

	if _, err := io.Copy(w, obj.Body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("firebase upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("firebase upload: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucketName, obj.Key), nil
}
