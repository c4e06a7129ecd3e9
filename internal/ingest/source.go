package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/homework-lens/backend/internal/dataurl"
)

// ErrSourceUnresolvable means a copy mechanism cannot address the source URI.
// It is the only failure class that triggers the read/write fallback.
var ErrSourceUnresolvable = errors.New("source cannot be resolved")

// SourceOpener reads a source URI that the direct copy path cannot handle.
type SourceOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// SourceOpenerFunc adapts a function to SourceOpener.
type SourceOpenerFunc func(ctx context.Context, uri string) (io.ReadCloser, error)

func (f SourceOpenerFunc) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return f(ctx, uri)
}

// Openers dispatches on URI scheme.
type Openers map[string]SourceOpener

// Open implements SourceOpener.
func (o Openers) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme := uriScheme(uri)
	opener, ok := o[scheme]
	if !ok {
		return nil, fmt.Errorf("no opener for scheme %q: %w", scheme, ErrSourceUnresolvable)
	}
	return opener.Open(ctx, uri)
}

// DefaultOpeners handles http, https and data URIs.
func DefaultOpeners(client *http.Client) Openers {
	httpOpener := HTTPOpener{Client: client}
	return Openers{
		"http":  httpOpener,
		"https": httpOpener,
		"data":  SourceOpenerFunc(openDataURL),
	}
}

// HTTPOpener fetches remote sources with a GET request.
type HTTPOpener struct {
	Client *http.Client
}

// Open implements SourceOpener.
func (h HTTPOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", uri, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", uri, resp.StatusCode)
	}
	return resp.Body, nil
}

func openDataURL(_ context.Context, uri string) (io.ReadCloser, error) {
	_, data, err := dataurl.Decode(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// localPath returns the filesystem path for file:// URIs and bare paths.
// Any other scheme cannot be copied directly.
func localPath(uri string) (string, error) {
	scheme := uriScheme(uri)
	switch scheme {
	case "":
		return uri, nil
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", uri, ErrSourceUnresolvable)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("remote file host %q: %w", u.Host, ErrSourceUnresolvable)
		}
		return u.Path, nil
	default:
		return "", fmt.Errorf("scheme %q: %w", scheme, ErrSourceUnresolvable)
	}
}

// uriScheme returns the lower-cased scheme, or "" for plain paths. Single
// letter schemes are Windows drive letters.
func uriScheme(uri string) string {
	i := strings.Index(uri, ":")
	if i <= 1 {
		return ""
	}
	scheme := uri[:i]
	for j, r := range scheme {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isAlpha && (j == 0 || !(r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.')) {
			return ""
		}
	}
	return strings.ToLower(scheme)
}
