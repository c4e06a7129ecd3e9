// handlers_upload.go - Upload registry handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/models"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	registry Registry
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(registry Registry) UploadHandler {
	return &UploadHandlerImpl{registry: registry}
}

// HandleCacheUploads caches a batch of external sources
func (h *UploadHandlerImpl) HandleCacheUploads(c echo.Context) error {
	var req cacheUploadsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	result, err := h.registry.CacheUploads(c.Request().Context(), req.Sources)
	if err != nil {
		return FromDomainError(err)
	}
	if result.Records == nil {
		result.Records = []models.UploadRecord{}
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleIngestInline caches a single data URL
func (h *UploadHandlerImpl) HandleIngestInline(c echo.Context) error {
	var req ingest.InlineSource
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if strings.TrimSpace(req.DataURL) == "" {
		return NewValidationError("dataUrl")
	}

	rec, err := h.registry.IngestInline(c.Request().Context(), req)
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// HandleListUploads returns the registry snapshot
func (h *UploadHandlerImpl) HandleListUploads(c echo.Context) error {
	snap := h.registry.Snapshot()
	if snap.Records == nil {
		snap.Records = []models.UploadRecord{}
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleGetUpload returns one record
func (h *UploadHandlerImpl) HandleGetUpload(c echo.Context) error {
	id := c.Param("id")
	rec, ok := h.registry.Get(id)
	if !ok {
		return NewNotFoundError("upload", id)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleRemoveUpload deletes a record and its cached file
func (h *UploadHandlerImpl) HandleRemoveUpload(c echo.Context) error {
	if err := h.registry.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return FromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleClearUploads purges every cached file
func (h *UploadHandlerImpl) HandleClearUploads(c echo.Context) error {
	if err := h.registry.ClearAll(c.Request().Context()); err != nil {
		return FromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleReportError marks a record as failed
func (h *UploadHandlerImpl) HandleReportError(c echo.Context) error {
	id := c.Param("id")
	var req reportErrorRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	if _, ok := h.registry.Get(id); !ok {
		return NewNotFoundError("upload", id)
	}

	h.registry.ReportError(id, req.Message)
	rec, _ := h.registry.Get(id)
	return c.JSON(http.StatusOK, rec)
}

// HandleEncodeSelection returns data URLs for the selected records, or all
// records when no ids are given
func (h *UploadHandlerImpl) HandleEncodeSelection(c echo.Context) error {
	var req encodeSelectionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	payloads, err := h.registry.EncodeSelection(c.Request().Context(), req.IDs)
	if err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"payloads": payloads,
	})
}

// Request types

type cacheUploadsRequest struct {
	Sources []ingest.ExternalSource `json:"sources"`
}

func (r *cacheUploadsRequest) validate() error {
	if len(r.Sources) == 0 {
		return NewValidationError("sources")
	}
	for _, src := range r.Sources {
		if strings.TrimSpace(src.URI) == "" {
			return NewValidationError("sources.uri")
		}
	}
	return nil
}

type reportErrorRequest struct {
	Message string `json:"message"`
}

func (r *reportErrorRequest) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return NewValidationError("message")
	}
	return nil
}

type encodeSelectionRequest struct {
	IDs []string `json:"ids"`
}
