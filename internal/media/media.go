// Package media accepts uploaded files, checks them against the size and
// format limits, and stores them through an Uploader that returns a durable
// URL.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// Object is a validated file ready to be stored.
type Object struct {
	Key         string
	ContentType string
	Kind        models.MediaKind
	Size        int64
	Body        io.Reader
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, obj Object) (string, error)
}

// format is one allowed upload format.
type format struct {
	mime string
	kind models.MediaKind
}

var allowedExtensions = map[string]format{
	".jpg":  {mime: "image/jpeg", kind: models.MediaImage},
	".jpeg": {mime: "image/jpeg", kind: models.MediaImage},
	".png":  {mime: "image/png", kind: models.MediaImage},
	".gif":  {mime: "image/gif", kind: models.MediaImage},
	".mp4":  {mime: "video/mp4", kind: models.MediaVideo},
	".mov":  {mime: "video/quicktime", kind: models.MediaVideo},
}

var sniffedKinds = []format{
	{mime: "image/jpeg", kind: models.MediaImage},
	{mime: "image/png", kind: models.MediaImage},
	{mime: "image/gif", kind: models.MediaImage},
	{mime: "video/mp4", kind: models.MediaVideo},
	{mime: "video/quicktime", kind: models.MediaVideo},
}

var (
	errFormat = apperrors.Validation("Only image and video files (jpg, jpeg, png, gif, mp4, mov) are allowed")
	errEmpty  = apperrors.Validation("No file uploaded")
)

// Ingestor validates uploads before handing them to the Uploader.
type Ingestor struct {
	uploader Uploader
	maxBytes int64
}

func NewIngestor(uploader Uploader, maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingestor{uploader: uploader, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted file.
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

func (i *Ingestor) tooLarge() error {
	if i.maxBytes >= 1<<20 {
		return apperrors.Validation(fmt.Sprintf("File too large: maximum size is %d MB", i.maxBytes>>20))
	}
	return apperrors.Validation(fmt.Sprintf("File too large: maximum size is %d bytes", i.maxBytes))
}

// Ingest checks the declared size, the extension and the sniffed content
// type, then stores the file. declaredType is only logged; the content
// decides the kind.
func (i *Ingestor) Ingest(ctx context.Context, filename, declaredType string, size int64, r io.Reader) (*models.UploadResult, error) {
	if size > i.maxBytes {
		return nil, i.tooLarge()
	}
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedExtensions[ext]
	if !ok {
		return nil, errFormat
	}

	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, apperrors.Validation("Could not read uploaded file")
	}
	if len(data) == 0 {
		return nil, errEmpty
	}
	if int64(len(data)) > i.maxBytes {
		return nil, i.tooLarge()
	}

	detected := mimetype.Detect(data)
	sniffed, ok := classify(detected)
	if !ok || sniffed.kind != want.kind {
		logging.Ctx(ctx).Info().
			Str("filename", filename).
			Str("declared", declaredType).
			Str("detected", detected.String()).
			Msg("rejected upload")
		return nil, errFormat
	}

	obj := Object{
		Key:         string(sniffed.kind) + "s/" + uuid.NewString() + ext,
		ContentType: sniffed.mime,
		Kind:        sniffed.kind,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
	url, err := i.uploader.Upload(ctx, obj)
	metrics.RecordMediaUpload(i.uploader.Name(), string(obj.Kind), obj.Size, err)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.Unavailable("Media host is unavailable, try again later", err)
		}
		return nil, apperrors.Internal(err)
	}

	logging.Ctx(ctx).Info().
		Str("driver", i.uploader.Name()).
		Str("kind", string(obj.Kind)).
		Int64("bytes", obj.Size).
		Msg("media stored")
	return &models.UploadResult{URL: url, Kind: obj.Kind}, nil
}

func classify(m *mimetype.MIME) (format, bool) {
	for _, f := range sniffedKinds {
		if m.Is(f.mime) {
			return f, true
		}
	}
	return format{}, false
}
