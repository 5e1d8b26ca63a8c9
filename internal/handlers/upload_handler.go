package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/media"
)

// UploadHandler handles media uploads
type UploadHandler struct {
	ingestor *media.Ingestor
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(ingestor *media.Ingestor) *UploadHandler {
	return &UploadHandler{ingestor: ingestor}
}

// RegisterUploadRoutes registers upload routes
func (h *UploadHandler) RegisterUploadRoutes(g *echo.Group) {
	g.POST("/upload/image", h.UploadMedia)
}

// UploadMedia stores the multipart field "file" and returns its public URL
// and media kind.
func (h *UploadHandler) UploadMedia(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return apperrors.Validation("No file uploaded")
		}
		return &apperrors.Error{Kind: apperrors.KindValidation, Message: "Invalid upload", Err: err}
	}

	file, err := fh.Open()
	if err != nil {
		return apperrors.Internal(err)
	}
	defer file.Close()

	result, err := h.ingestor.Ingest(c.Request().Context(), fh.Filename, fh.Header.Get(echo.HeaderContentType), fh.Size, file)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
