package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"file:///tmp/a.png", "/tmp/a.png", false},
		{"file://localhost/tmp/a.png", "/tmp/a.png", false},
		{"/var/mobile/a.jpg", "/var/mobile/a.jpg", false},
		{"relative/a.jpg", "relative/a.jpg", false},
		{"content://media/external/1", "", true},
		{"ph://ABC-123", "", true},
		{"https://example.com/a.png", "", true},
		{"file://otherhost/a.png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := localPath(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSourceUnresolvable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpeners_UnknownScheme(t *testing.T) {
	_, err := DefaultOpeners(nil).Open(context.Background(), "content://x")
	assert.ErrorIs(t, err, ErrSourceUnresolvable)
}

func TestHTTPOpener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	openers := DefaultOpeners(srv.Client())

	rc, err := openers.Open(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "image-bytes", string(data))

	_, err = openers.Open(context.Background(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "unexpected status 404")
}
