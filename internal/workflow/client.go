// Package workflow submits encoded homework images to the remote correction
// workflow and decodes its answer.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/models"
)

// MissingSummary is returned when the workflow omits the correction summary.
const MissingSummary = "未返回批改结果"

// RemoteError is a non-success answer from the workflow endpoint.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("workflow failed: %d %s", e.StatusCode, e.Body)
}

// Client calls the workflow run endpoint.
type Client struct {
	cfg    config.WorkflowConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a workflow client. A nil httpClient gets one with the
// configured request timeout.
func NewClient(cfg config.WorkflowConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger.With("component", "workflow")}
}

type runRequest struct {
	Inputs runInputs `json:"inputs"`
}

type runInputs struct {
	StudentID string                 `json:"student_id"`
	Subject   string                 `json:"subject"`
	Images    []models.WorkflowImage `json:"images"`
	Metadata  map[string]any         `json:"metadata"`
}

type runResponse struct {
	Data *struct {
		CorrectionSummary *string  `json:"correction_summary"`
		Explanations      []string `json:"explanations"`
		FollowUpQuestions []string `json:"follow_up_questions"`
	} `json:"data"`
}

// Run submits input and returns the parsed correction. Missing configuration
// fails before any request is made.
func (c *Client) Run(ctx context.Context, input models.WorkflowInput) (*models.WorkflowResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	images := input.Images
	if images == nil {
		images = []models.WorkflowImage{}
	}
	body, err := json.Marshal(runRequest{Inputs: runInputs{
		StudentID: input.StudentID,
		Subject:   input.Subject,
		Images:    images,
		Metadata:  metadata,
	}})
	if err != nil {
		return nil, fmt.Errorf("encoding workflow request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/workflows/%s/run", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.WorkflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling workflow: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading workflow response: %w", err)
	}
	c.logger.InfoContext(ctx, "workflow call finished",
		"status", resp.StatusCode, "images", len(images), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return parseResult(raw)
}

func parseResult(raw []byte) (*models.WorkflowResult, error) {
	var parsed runResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding workflow response: %w", err)
	}
	var rawMap map[string]any
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("decoding workflow response: %w", err)
	}

	result := &models.WorkflowResult{
		CorrectionSummary: MissingSummary,
		Explanations:      []string{},
		FollowUpQuestions: []string{},
		Raw:               rawMap,
	}
	if d := parsed.Data; d != nil {
		if d.CorrectionSummary != nil {
			result.CorrectionSummary = *d.CorrectionSummary
		}
		if d.Explanations != nil {
			result.Explanations = d.Explanations
		}
		if d.FollowUpQuestions != nil {
			result.FollowUpQuestions = d.FollowUpQuestions
		}
	}
	return result, nil
}
