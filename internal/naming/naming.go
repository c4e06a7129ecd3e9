// Package naming generates upload identifiers and derives safe file names,
// extensions and media types from untrusted input.
package naming

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultMime is used whenever a media type cannot be determined.
const DefaultMime = "application/octet-stream"

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	extensionRe = regexp.MustCompile(`\.([a-zA-Z0-9]+)(?:\?.*)?$`)

	mimeByExt = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".gif":  "image/gif",
		".heic": "image/heic",
	}
	extByMime = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
		"image/gif":  ".gif",
		"image/heic": ".heic",
	}
)

// NewID returns a random identifier used as the on-disk name prefix.
func NewID() string {
	return uuid.New().String()
}

// Sanitize replaces every character outside [A-Za-z0-9_.-] with '_'.
// It never fails and Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// InferExtension returns the lower-cased trailing extension of a name or URI,
// including the leading dot, ignoring any query string. Returns "" if none.
func InferExtension(nameOrURI string) string {
	if nameOrURI == "" {
		return ""
	}
	m := extensionRe.FindStringSubmatch(nameOrURI)
	if m == nil {
		return ""
	}
	return "." + strings.ToLower(m[1])
}

// MimeForExtension maps a dotted extension to a media type, or DefaultMime.
func MimeForExtension(ext string) string {
	if mime, ok := mimeByExt[strings.ToLower(ext)]; ok {
		return mime
	}
	return DefaultMime
}

// ExtensionForMime maps a media type to its canonical dotted extension, or "".
func ExtensionForMime(mime string) string {
	return extByMime[strings.ToLower(strings.TrimSpace(mime))]
}

// ResolveMime picks the explicit type if given, else derives it from ext.
func ResolveMime(explicit, ext string) string {
	if explicit != "" {
		return explicit
	}
	if ext == "" {
		return DefaultMime
	}
	return MimeForExtension(ext)
}

// CacheName composes the on-disk name {id}-{sanitized name}. When name is
// empty the id plus extension stands in for it.
func CacheName(id, name, ext string) string {
	if name == "" {
		name = id + ext
	}
	return id + "-" + Sanitize(name)
}
