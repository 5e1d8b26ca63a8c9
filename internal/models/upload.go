package models

// UploadResult is returned by the media upload endpoint.
type UploadResult struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"type"`
}
