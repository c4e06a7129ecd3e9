package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/models"
)

func testConfig(url string) config.WorkflowConfig {
	return config.WorkflowConfig{APIURL: url, APIKey: "test-key", WorkflowID: "wf-42", RequestTimeoutSeconds: 5}
}

func TestClient_Run(t *testing.T) {
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/workflows/wf-42/run", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"correction_summary":"2 of 3 correct","explanations":["a","b"],"follow_up_questions":["why?"]}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL+"/"), srv.Client(), nil)
	res, err := client.Run(context.Background(), models.WorkflowInput{
		StudentID: "s-1",
		Subject:   "math",
		Images:    []models.WorkflowImage{{FileName: "a.png", DataURL: "data:image/png;base64,AAAA", MimeType: "image/png"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "2 of 3 correct", res.CorrectionSummary)
	assert.Equal(t, []string{"a", "b"}, res.Explanations)
	assert.Equal(t, []string{"why?"}, res.FollowUpQuestions)
	assert.NotNil(t, res.Raw["data"])

	assert.Equal(t, "s-1", got.Inputs.StudentID)
	assert.Equal(t, "math", got.Inputs.Subject)
	require.Len(t, got.Inputs.Images, 1)
	assert.Equal(t, "a.png", got.Inputs.Images[0].FileName)
	assert.NotNil(t, got.Inputs.Metadata)
}

func TestClient_Run_Defaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	res, err := NewClient(testConfig(srv.URL), srv.Client(), nil).Run(context.Background(), models.WorkflowInput{})
	require.NoError(t, err)
	assert.Equal(t, MissingSummary, res.CorrectionSummary)
	assert.Equal(t, []string{}, res.Explanations)
	assert.Equal(t, []string{}, res.FollowUpQuestions)
}

func TestClient_Run_NonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL), srv.Client(), nil).Run(context.Background(), models.WorkflowInput{})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestClient_Run_MissingConfigMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.WorkflowID = ""
	_, err := NewClient(cfg, srv.Client(), nil).Run(context.Background(), models.WorkflowInput{})

	var missing *config.MissingConfigError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, config.EnvWorkflowID, missing.Key)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Run_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(testConfig(url), nil, nil).Run(context.Background(), models.WorkflowInput{})
	assert.ErrorContains(t, err, "calling workflow")
}

func TestClient_Run_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL), srv.Client(), nil).Run(context.Background(), models.WorkflowInput{})
	assert.ErrorContains(t, err, "decoding workflow response")
}
