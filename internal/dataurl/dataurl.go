// Package dataurl parses and formats base64 data URLs of the form
// "data:<mime>;base64,<payload>".
package dataurl

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	scheme       = "data:"
	base64Marker = ";base64,"
)

// Parsed is a data URL split into its media type and still-encoded body.
type Parsed struct {
	MimeType string
	Body     string
}

// Parse splits s into media type and body. ok is false when s is not a
// base64 data URL with a non-empty media type and body.
func Parse(s string) (p Parsed, ok bool) {
	rest, found := strings.CutPrefix(s, scheme)
	if !found {
		return Parsed{}, false
	}
	mime, body, found := strings.Cut(rest, base64Marker)
	if !found || mime == "" || body == "" || strings.Contains(mime, ";") {
		return Parsed{}, false
	}
	if strings.ContainsAny(body, "\r\n") {
		return Parsed{}, false
	}
	return Parsed{MimeType: mime, Body: body}, true
}

// Bytes decodes the body.
func (p Parsed) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 body: %w", err)
	}
	return data, nil
}

// Format builds a data URL from an already base64-encoded body.
func Format(mime, encodedBody string) string {
	return scheme + mime + base64Marker + encodedBody
}

// Encode builds a data URL from raw bytes.
func Encode(mime string, data []byte) string {
	return Format(mime, base64.StdEncoding.EncodeToString(data))
}

// Describe returns a short stand-in for a data URL, keeping its media type
// and decoded size: "data:image/png;base64,…(1024 bytes)". Anything that is
// not a base64 data URL is returned unchanged.
func Describe(s string) string {
	p, ok := Parse(s)
	if !ok {
		return s
	}
	n := base64.StdEncoding.DecodedLen(len(p.Body))
	n -= len(p.Body) - len(strings.TrimRight(p.Body, "="))
	return fmt.Sprintf("%s%s%s…(%d bytes)", scheme, p.MimeType, base64Marker, n)
}

// Decode parses s and returns its media type and decoded bytes.
func Decode(s string) (string, []byte, error) {
	p, ok := Parse(s)
	if !ok {
		return "", nil, fmt.Errorf("not a base64 data URL")
	}
	data, err := p.Bytes()
	if err != nil {
		return "", nil, err
	}
	return p.MimeType, data, nil
}
