package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// PNGHeader is the 8-byte PNG signature, enough to stand in for an image.
var PNGHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// PNGDataURL is a minimal PNG data URL.
const PNGDataURL = "data:image/png;base64,iVBORw0KGgo="

// WriteFixture writes data to dir/name and returns the path.
func WriteFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	return path
}

// FileURI returns a file:// URI for an absolute path.
func FileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}
