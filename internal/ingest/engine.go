// Package ingest adopts external resources into the managed upload directory
// and converts cached files back into inline data URLs.
package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/homework-lens/backend/internal/dataurl"
	"github.com/homework-lens/backend/internal/models"
	"github.com/homework-lens/backend/internal/naming"
	"github.com/homework-lens/backend/internal/storage"
)

// ErrUnsupportedPayload is returned when an inline payload is not a base64 data URL.
var ErrUnsupportedPayload = errors.New("unsupported data URL provided")

// ErrSourceNotAllowed is returned when a local source lies outside every
// allowed root.
var ErrSourceNotAllowed = errors.New("local source not allowed")

// CacheError reports a copy or write that left no usable file behind.
type CacheError struct {
	URI string
	Err error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to cache file from uri: %s: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("failed to cache file from uri: %s", e.URI)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ExternalSource is an asset reference from a picker or camera.
type ExternalSource struct {
	URI      string `json:"uri"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// InlineSource is a ready-made data URL.
type InlineSource struct {
	DataURL       string `json:"dataUrl"`
	SuggestedName string `json:"suggestedName,omitempty"`
}

// Result is a cached file plus the size observed right after caching.
type Result struct {
	File      models.CachedFile
	SizeBytes int64
}

// Engine caches sources into a Store. It holds no mutable state of its own,
// so concurrent calls for different sources are safe.
//
// Local paths and file URIs are refused unless they resolve under one of the
// allowed roots, or the engine was built WithUnrestrictedLocalSources.
type Engine struct {
	store   storage.Store
	openers SourceOpener
	logger  *slog.Logger

	roots        []string
	unrestricted bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAllowedRoots permits local sources under the given directories.
func WithAllowedRoots(roots ...string) EngineOption {
	return func(e *Engine) {
		for _, root := range roots {
			if root == "" {
				continue
			}
			e.roots = append(e.roots, resolveLocal(root))
		}
	}
}

// WithUnrestrictedLocalSources permits any readable local path.
func WithUnrestrictedLocalSources() EngineOption {
	return func(e *Engine) {
		e.unrestricted = true
	}
}

// NewEngine creates an ingestion engine. openers handles URIs the direct copy
// path cannot resolve; nil disables the fallback.
func NewEngine(store storage.Store, openers SourceOpener, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:   store,
		openers: openers,
		logger:  logger.With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdoptExternal copies the source into the managed directory.
func (e *Engine) AdoptExternal(ctx context.Context, src ExternalSource) (Result, error) {
	if src.URI == "" {
		return Result{}, &CacheError{URI: src.URI, Err: errors.New("empty uri")}
	}
	if err := e.store.EnsureDirectory(); err != nil {
		return Result{}, err
	}

	id := naming.NewID()
	ext := naming.InferExtension(src.URI)
	if src.FileName != "" {
		ext = naming.InferExtension(src.FileName)
	}
	finalName := naming.CacheName(id, src.FileName, ext)

	dest, err := e.copyDirect(src.URI, finalName)
	if errors.Is(err, ErrSourceUnresolvable) {
		e.logger.DebugContext(ctx, "direct copy unavailable, falling back", "uri", src.URI, "reason", err)
		dest, err = e.copyViaEncoded(ctx, src.URI, finalName)
	}
	if err != nil {
		return Result{}, &CacheError{URI: src.URI, Err: err}
	}

	st, err := e.store.Stat(dest)
	if err != nil {
		return Result{}, err
	}
	if !st.Exists || st.SizeBytes == 0 {
		e.store.Delete(dest)
		return Result{}, &CacheError{URI: src.URI}
	}

	file := models.CachedFile{
		ID:        id,
		FileName:  finalName,
		MimeType:  naming.ResolveMime(src.MimeType, ext),
		LocalPath: dest,
	}
	e.logger.InfoContext(ctx, "cached external source", "id", id, "file", finalName, "bytes", st.SizeBytes)
	return Result{File: file, SizeBytes: st.SizeBytes}, nil
}

// AdoptInline decodes a data URL into the managed directory.
func (e *Engine) AdoptInline(ctx context.Context, src InlineSource) (Result, error) {
	parsed, ok := dataurl.Parse(src.DataURL)
	if !ok {
		return Result{}, ErrUnsupportedPayload
	}
	if err := e.store.EnsureDirectory(); err != nil {
		return Result{}, err
	}

	id := naming.NewID()
	ext := naming.InferExtension(src.SuggestedName)
	if ext == "" {
		ext = naming.ExtensionForMime(parsed.MimeType)
	}
	finalName := naming.CacheName(id, src.SuggestedName, ext)

	dest, err := e.store.WriteEncoded(finalName, parsed.Body)
	if err != nil {
		return Result{}, err
	}

	st, err := e.store.Stat(dest)
	if err != nil {
		return Result{}, err
	}

	file := models.CachedFile{
		ID:        id,
		FileName:  finalName,
		MimeType:  parsed.MimeType,
		LocalPath: dest,
	}
	e.logger.InfoContext(ctx, "cached inline payload", "id", id, "file", finalName, "bytes", st.SizeBytes)
	return Result{File: file, SizeBytes: st.SizeBytes}, nil
}

func (e *Engine) copyDirect(uri, name string) (string, error) {
	path, err := localPath(uri)
	if err != nil {
		return "", err
	}
	if !e.localAllowed(path) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotAllowed, path)
	}
	return e.store.CopyFrom(path, name)
}

func (e *Engine) localAllowed(path string) bool {
	if e.unrestricted {
		return true
	}
	resolved := resolveLocal(path)
	for _, root := range e.roots {
		if isWithin(root, resolved) {
			return true
		}
	}
	return false
}

// resolveLocal returns the absolute, symlink-free form of path. A missing
// final element is joined onto its resolved parent.
func resolveLocal(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// copyViaEncoded reads the whole source as base64 text and writes the decoded
// bytes, producing the same file the direct copy would.
func (e *Engine) copyViaEncoded(ctx context.Context, uri, name string) (string, error) {
	if e.openers == nil {
		return "", ErrSourceUnresolvable
	}

	rc, err := e.openers.Open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", uri, err)
	}
	return e.store.WriteEncoded(name, base64.StdEncoding.EncodeToString(data))
}
