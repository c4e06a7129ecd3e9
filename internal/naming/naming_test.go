package naming

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowed = regexp.MustCompile(`^[a-zA-Z0-9_.-]*$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already safe", "photo_01.png", "photo_01.png"},
		{"spaces", "my homework.jpg", "my_homework.jpg"},
		{"path separators", "../etc/passwd", ".._etc_passwd"},
		{"unicode", "作业 1.heic", "___1.heic"},
		{"empty", "", ""},
		{"query", "a.png?x=1&y=2", "a.png_x_1_y_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_TotalAndIdempotent(t *testing.T) {
	inputs := []string{
		"", " ", "a/b\\c", "日本語.png", "x\x00y", "tab\there", "emoji😀.gif",
		"content://media/external/images/1234", strings.Repeat("%", 50),
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Regexp(t, allowed, once, "input %q", in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestInferExtension(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"file:///tmp/a.png", ".png"},
		{"IMG_0001.JPG", ".jpg"},
		{"https://cdn.example.com/x.webp?sig=abc", ".webp"},
		{"content://media/external/images/1234", ""},
		{"noext", ""},
		{"", ""},
		{"archive.tar.gz", ".gz"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, InferExtension(tt.input))
		})
	}
}

func TestMimeTable_Bidirectional(t *testing.T) {
	for mime, ext := range extByMime {
		assert.Equal(t, mime, MimeForExtension(ext), "ext %s", ext)
		assert.Equal(t, ext, ExtensionForMime(mime), "mime %s", mime)
	}
	assert.Equal(t, "image/jpeg", MimeForExtension(".jpeg"))
	assert.Equal(t, DefaultMime, MimeForExtension(".bmp"))
	assert.Equal(t, "", ExtensionForMime("application/pdf"))
}

func TestResolveMime(t *testing.T) {
	assert.Equal(t, "image/heic", ResolveMime("image/heic", ".png"))
	assert.Equal(t, "image/png", ResolveMime("", ".png"))
	assert.Equal(t, DefaultMime, ResolveMime("", ""))
	assert.Equal(t, DefaultMime, ResolveMime("", ".txt"))
}

func TestCacheName(t *testing.T) {
	assert.Equal(t, "id1-my_page.png", CacheName("id1", "my page.png", ".png"))
	assert.Equal(t, "id1-id1.png", CacheName("id1", "", ".png"))
}

func TestNewID_Unique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s after %d draws", id, i)
		seen[id] = struct{}{}
	}
}
