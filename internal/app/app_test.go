package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/testutil"
	"github.com/homework-lens/backend/internal/upload"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDirectory = dir
	cfg.Storage.UploadsDirectory = filepath.Join(dir, "uploads")
	cfg.Storage.ManifestFile = filepath.Join(dir, "uploads.manifest")
	return cfg
}

func TestNew_RestoresAcrossInstances(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	rec, err := first.Registry.IngestInline(t.Context(), ingest.InlineSource{DataURL: testutil.PNGDataURL})
	require.NoError(t, err)

	second, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	got, ok := second.Registry.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.LocalPath, got.LocalPath)
}

func TestNew_PersistenceDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.EnablePersistence = false

	first, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	_, err = first.Registry.IngestInline(t.Context(), ingest.InlineSource{DataURL: testutil.PNGDataURL})
	require.NoError(t, err)

	second, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Registry.List())
}

func TestNew_SourceRestrictions(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testutil.PNGHeader)
	}))
	defer remote.Close()

	scans := t.TempDir()
	inside := testutil.WriteFixture(t, scans, "page.png", testutil.PNGHeader)
	outside := testutil.WriteFixture(t, t.TempDir(), "id_rsa", []byte("PRIVATE KEY MATERIAL"))

	cfg := testConfig(t)
	cfg.Storage.AllowedSourceRoots = []string{scans}
	served, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)

	_, err = served.Registry.CacheUploads(t.Context(), []ingest.ExternalSource{{URI: inside}})
	require.NoError(t, err)
	_, err = served.Registry.CacheUploads(t.Context(), []ingest.ExternalSource{{URI: outside}})
	assert.ErrorIs(t, err, ingest.ErrSourceNotAllowed)
	_, err = served.Registry.CacheUploads(t.Context(), []ingest.ExternalSource{{URI: remote.URL + "/page.png"}})
	assert.ErrorIs(t, err, ingest.ErrSourceUnresolvable)

	trusted, err := New(t.Context(), testConfig(t), nil, WithTrustedCaller())
	require.NoError(t, err)
	res, err := trusted.Registry.CacheUploads(t.Context(), []ingest.ExternalSource{
		{URI: outside},
		{URI: remote.URL + "/page.png"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestParsePolicy(t *testing.T) {
	p, err := parsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, upload.BatchAllOrNothing, p)

	p, err = parsePolicy("partial")
	require.NoError(t, err)
	assert.Equal(t, upload.BatchPartial, p)

	_, err = parsePolicy("sometimes")
	assert.ErrorContains(t, err, "unknown batch policy")
}
