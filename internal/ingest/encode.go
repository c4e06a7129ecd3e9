package ingest

import (
	"context"

	"github.com/homework-lens/backend/internal/dataurl"
	"github.com/homework-lens/backend/internal/naming"
)

// ToInlinePayload reads a cached file and returns it as a base64 data URL.
// The media type is mimeType if set, else derived from the file extension.
func (e *Engine) ToInlinePayload(ctx context.Context, localPath, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	encoded, err := e.store.ReadEncoded(localPath)
	if err != nil {
		return "", err
	}
	mime := naming.ResolveMime(mimeType, naming.InferExtension(localPath))
	return dataurl.Format(mime, encoded), nil
}
