// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/models"
	"github.com/homework-lens/backend/internal/upload"
)

// UploadHandler handles the upload registry operations
type UploadHandler interface {
	HandleCacheUploads(c echo.Context) error
	HandleIngestInline(c echo.Context) error
	HandleListUploads(c echo.Context) error
	HandleGetUpload(c echo.Context) error
	HandleRemoveUpload(c echo.Context) error
	HandleClearUploads(c echo.Context) error
	HandleReportError(c echo.Context) error
	HandleEncodeSelection(c echo.Context) error
}

// WorkflowHandler submits cached uploads to the correction workflow
type WorkflowHandler interface {
	HandleRunWorkflow(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Registry is the part of upload.Manager the handlers use.
// This allows mocking in tests
type Registry interface {
	CacheUploads(ctx context.Context, sources []ingest.ExternalSource) (upload.BatchResult, error)
	IngestInline(ctx context.Context, src ingest.InlineSource) (models.UploadRecord, error)
	EncodeSelection(ctx context.Context, ids []string) ([]models.EncodedPayload, error)
	Remove(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	ReportError(id, message string)
	Get(id string) (models.UploadRecord, bool)
	Snapshot() upload.Snapshot
	Subscribe() (<-chan upload.Snapshot, func())
}

// WorkflowRunner calls the remote correction workflow.
type WorkflowRunner interface {
	Run(ctx context.Context, input models.WorkflowInput) (*models.WorkflowResult, error)
}
