package upload

import (
	"context"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// digest returns the BLAKE3 hex digest of a cached file, or "" if it cannot
// be read. A missing digest never fails an ingestion.
func (m *Manager) digest(ctx context.Context, path string) string {
	data, err := m.store.ReadBytes(path)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to digest cached file", "path", path, "error", err)
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest re-hashes the cached file of id and compares it with the
// digest recorded at ingestion.
func (m *Manager) VerifyDigest(ctx context.Context, id string) (bool, error) {
	rec, ok := m.Get(id)
	if !ok {
		return false, &NotFoundError{ID: id}
	}
	if rec.Digest == "" {
		return false, nil
	}
	data, err := m.store.ReadBytes(rec.LocalPath)
	if err != nil {
		return false, err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]) == rec.Digest, nil
}
