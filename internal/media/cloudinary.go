package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/anonto42/circle/backend/internal/models"
)

const cloudinaryAPI = "https://api.cloudinary.com"

// CloudinaryConfig holds the account used for signed uploads.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

// CloudinaryUploader sends objects to Cloudinary's signed upload API.
type CloudinaryUploader struct {
	cfg    CloudinaryConfig
	client *resty.Client
	now    func() time.Time
}

func NewCloudinaryUploader(cfg CloudinaryConfig) *CloudinaryUploader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = cloudinaryAPI
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(60 * time.Second)
	return &CloudinaryUploader{cfg: cfg, client: client, now: time.Now}
}

func (u *CloudinaryUploader) Name() string { return "cloudinary" }

// Close releases the HTTP client.
func (u *CloudinaryUploader) Close() error {
	return u.client.Close()
}

type cloudinaryResponse struct {
	SecureURL    string `json:"secure_url"`
	ResourceType string `json:"resource_type"`
}

func (u *CloudinaryUploader) Upload(ctx context.Context, obj Object) (string, error) {
	resourceType := "image"
	if obj.Kind == models.MediaVideo {
		resourceType = "video"
	}

	params := map[string]string{
		"folder":    u.cfg.Folder,
		"public_id": strings.TrimSuffix(path.Base(obj.Key), path.Ext(obj.Key)),
		"timestamp": strconv.FormatInt(u.now().Unix(), 10),
	}
	form := map[string]string{
		"api_key":   u.cfg.APIKey,
		"signature": signParams(params, u.cfg.APISecret),
	}
	for k, v := range params {
		if v != "" {
			form[k] = v
		}
	}

	res, err := u.client.R().WithContext(ctx).
		SetMultipartFormData(form).
		SetFileReader("file", path.Base(obj.Key), obj.Body).
		SetResult(&cloudinaryResponse{}).
		Post(fmt.Sprintf("/v1_1/%s/%s/upload", u.cfg.CloudName, resourceType))
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("cloudinary upload: %s: %s", res.Status(), res.String())
	}

	out, ok := res.Result().(*cloudinaryResponse)
	if !ok || out.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload: response carried no secure_url")
	}
	return out.SecureURL, nil
}

// signParams computes the request signature: the non-empty parameters sorted
// by name as k=v pairs joined with &, followed by the API secret, SHA-1 hex.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
