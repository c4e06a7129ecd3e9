// handlers_workflow.go - Correction workflow submission
package api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/homework-lens/backend/internal/models"
)

// WorkflowHandlerImpl implements the WorkflowHandler interface
type WorkflowHandlerImpl struct {
	registry Registry
	runner   WorkflowRunner
	logger   *slog.Logger
}

// NewWorkflowHandler creates a new workflow handler instance
func NewWorkflowHandler(registry Registry, runner WorkflowRunner, logger *slog.Logger) WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowHandlerImpl{registry: registry, runner: runner, logger: logger}
}

// HandleRunWorkflow encodes the selected uploads and submits them. When the
// workflow call fails every submitted record is marked as errored.
func (h *WorkflowHandlerImpl) HandleRunWorkflow(c echo.Context) error {
	var req runWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	payloads, err := h.registry.EncodeSelection(ctx, req.IDs)
	if err != nil {
		return FromDomainError(err)
	}
	if len(payloads) == 0 {
		return NewValidationError("ids")
	}

	result, err := h.runner.Run(ctx, models.WorkflowInput{
		StudentID: req.StudentID,
		Subject:   req.Subject,
		Images:    models.ImagesFromPayloads(payloads),
		Metadata:  req.Metadata,
	})
	if err != nil {
		for _, p := range payloads {
			h.registry.ReportError(p.ID, err.Error())
		}
		h.logger.ErrorContext(ctx, "workflow submission failed", "images", len(payloads), "error", err)
		return FromDomainError(err)
	}

	return c.JSON(http.StatusOK, result)
}

type runWorkflowRequest struct {
	StudentID string         `json:"studentId"`
	Subject   string         `json:"subject"`
	IDs       []string       `json:"ids"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *runWorkflowRequest) validate() error {
	if r.StudentID == "" {
		return NewValidationError("studentId")
	}
	if r.Subject == "" {
		return NewValidationError("subject")
	}
	return nil
}
