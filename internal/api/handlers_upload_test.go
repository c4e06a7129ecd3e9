// handlers_upload_test.go - Tests for upload handlers
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/models"
	"github.com/homework-lens/backend/internal/storage"
	"github.com/homework-lens/backend/internal/testutil"
	"github.com/homework-lens/backend/internal/upload"
)

// newTestRegistry builds a registry whose local sources are limited to roots.
func newTestRegistry(t *testing.T, roots ...string) *upload.Manager {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	engine := ingest.NewEngine(store, ingest.DefaultOpeners(nil), nil, ingest.WithAllowedRoots(roots...))
	return upload.NewManager(engine, store, upload.Options{})
}

func newJSONContext(method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected APIError, got %T", err)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, code, apiErr.Code)
}

func TestUploadHandler_HandleCacheUploads(t *testing.T) {
	srcDir := t.TempDir()
	photo := testutil.WriteFixture(t, srcDir, "page1.png", testutil.PNGHeader)
	secret := testutil.WriteFixture(t, t.TempDir(), "id_rsa", []byte("PRIVATE KEY MATERIAL"))

	tests := []struct {
		name       string
		request    cacheUploadsRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:       "file uri",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: testutil.FileURI(photo)}}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "data uri",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: testutil.PNGDataURL, FileName: "scan.png"}}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "no sources",
			request:    cacheUploadsRequest{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "blank uri",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: "  "}}},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "missing file",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: filepath.Join(srcDir, "gone.png")}}},
			wantStatus: http.StatusUnprocessableEntity,
			wantErr:    true,
			errCode:    "CACHE_FAILED",
		},
		{
			name:       "outside allowed roots",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: secret}}},
			wantStatus: http.StatusForbidden,
			wantErr:    true,
			errCode:    "SOURCE_NOT_ALLOWED",
		},
		{
			name:       "file uri outside allowed roots",
			request:    cacheUploadsRequest{Sources: []ingest.ExternalSource{{URI: testutil.FileURI(secret)}}},
			wantStatus: http.StatusForbidden,
			wantErr:    true,
			errCode:    "SOURCE_NOT_ALLOWED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUploadHandler(newTestRegistry(t, srcDir))
			c, rec := newJSONContext(http.MethodPost, "/api/uploads", tt.request)

			err := handler.HandleCacheUploads(c)

			if tt.wantErr {
				requireAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var result upload.BatchResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			require.Len(t, result.Records, len(tt.request.Sources))
			assert.NotEmpty(t, result.Records[0].ID)
			assert.Equal(t, "image/png", result.Records[0].MimeType)
			assert.Equal(t, models.UploadStatusReady, result.Records[0].Status)
		})
	}
}

func TestUploadHandler_HandleIngestInline(t *testing.T) {
	tests := []struct {
		name       string
		request    ingest.InlineSource
		wantStatus int
		errCode    string
	}{
		{"valid", ingest.InlineSource{DataURL: testutil.PNGDataURL, SuggestedName: "hw.png"}, http.StatusCreated, ""},
		{"empty", ingest.InlineSource{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not base64 data url", ingest.InlineSource{DataURL: "data:text/plain,hello"}, http.StatusBadRequest, "UNSUPPORTED_PAYLOAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUploadHandler(newTestRegistry(t))
			c, rec := newJSONContext(http.MethodPost, "/api/uploads/inline", tt.request)

			err := handler.HandleIngestInline(c)

			if tt.errCode != "" {
				requireAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var got models.UploadRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Contains(t, got.FileName, "hw.png")
			assert.Equal(t, fmt.Sprintf("data:image/png;base64,…(%d bytes)", len(testutil.PNGHeader)), got.OriginalSource)
		})
	}
}

func TestUploadHandler_Lifecycle(t *testing.T) {
	registry := newTestRegistry(t)
	handler := NewUploadHandler(registry)
	ctx := t.Context()

	first, err := registry.IngestInline(ctx, ingest.InlineSource{DataURL: testutil.PNGDataURL})
	require.NoError(t, err)
	second, err := registry.IngestInline(ctx, ingest.InlineSource{DataURL: testutil.PNGDataURL})
	require.NoError(t, err)

	// List returns most recent first
	c, rec := newJSONContext(http.MethodGet, "/api/uploads", nil)
	require.NoError(t, handler.HandleListUploads(c))
	var snap upload.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Records, 2)
	assert.Equal(t, second.ID, snap.Records[0].ID)
	assert.Equal(t, int64(2*len(testutil.PNGHeader)), snap.TotalSize)

	// Get
	c, rec = newJSONContext(http.MethodGet, "/api/uploads/"+first.ID, nil)
	require.NoError(t, handler.HandleGetUpload(withID(c, first.ID)))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, _ = newJSONContext(http.MethodGet, "/api/uploads/nope", nil)
	requireAPIError(t, handler.HandleGetUpload(withID(c, "nope")), http.StatusNotFound, "NOT_FOUND")

	// Report error keeps the record
	c, rec = newJSONContext(http.MethodPost, "/api/uploads/"+first.ID+"/error", reportErrorRequest{Message: "blurry"})
	require.NoError(t, handler.HandleReportError(withID(c, first.ID)))
	var errored models.UploadRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errored))
	assert.Equal(t, models.UploadStatusError, errored.Status)
	assert.Equal(t, "blurry", errored.ErrorMessage)

	c, _ = newJSONContext(http.MethodPost, "/api/uploads/x/error", reportErrorRequest{})
	requireAPIError(t, handler.HandleReportError(withID(c, "x")), http.StatusBadRequest, "VALIDATION_ERROR")

	// Remove is idempotent
	for i := 0; i < 2; i++ {
		c, rec = newJSONContext(http.MethodDelete, "/api/uploads/"+first.ID, nil)
		require.NoError(t, handler.HandleRemoveUpload(withID(c, first.ID)))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	_, ok := registry.Get(first.ID)
	assert.False(t, ok)

	// Clear
	c, rec = newJSONContext(http.MethodDelete, "/api/uploads", nil)
	require.NoError(t, handler.HandleClearUploads(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, registry.Snapshot().Records)
}

func TestUploadHandler_HandleEncodeSelection(t *testing.T) {
	registry := newTestRegistry(t)
	handler := NewUploadHandler(registry)

	rec1, err := registry.IngestInline(t.Context(), ingest.InlineSource{DataURL: testutil.PNGDataURL, SuggestedName: "a.png"})
	require.NoError(t, err)
	_, err = registry.IngestInline(t.Context(), ingest.InlineSource{DataURL: testutil.PNGDataURL, SuggestedName: "b.png"})
	require.NoError(t, err)

	t.Run("all records", func(t *testing.T) {
		c, rec := newJSONContext(http.MethodPost, "/api/uploads/encode", encodeSelectionRequest{})
		require.NoError(t, handler.HandleEncodeSelection(c))

		var resp struct {
			Payloads []models.EncodedPayload `json:"payloads"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Payloads, 2)
		assert.Equal(t, testutil.PNGDataURL, resp.Payloads[0].DataURL)
	})

	t.Run("selected", func(t *testing.T) {
		c, rec := newJSONContext(http.MethodPost, "/api/uploads/encode", encodeSelectionRequest{IDs: []string{rec1.ID}})
		require.NoError(t, handler.HandleEncodeSelection(c))
		assert.Contains(t, rec.Body.String(), rec1.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		before := registry.Snapshot()
		c, _ := newJSONContext(http.MethodPost, "/api/uploads/encode", encodeSelectionRequest{IDs: []string{"missing"}})
		requireAPIError(t, handler.HandleEncodeSelection(c), http.StatusNotFound, "NOT_FOUND")
		assert.Equal(t, before, registry.Snapshot())
	})
}
