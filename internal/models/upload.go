package models

import "time"

// UploadStatus represents the lifecycle state of a cached upload.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusReady      UploadStatus = "ready"
	UploadStatusError      UploadStatus = "error"
)

// UploadRecord is the registry entry backing a single cached file.
type UploadRecord struct {
	ID             string       `json:"id" msgpack:"id"`
	OriginalSource string       `json:"originalSource" msgpack:"originalSource"`
	LocalPath      string       `json:"localPath" msgpack:"localPath"`
	FileName       string       `json:"fileName" msgpack:"fileName"`
	MimeType       string       `json:"mimeType" msgpack:"mimeType"`
	SizeBytes      *int64       `json:"sizeBytes,omitempty" msgpack:"sizeBytes,omitempty"`
	Digest         string       `json:"digest,omitempty" msgpack:"digest,omitempty"` // BLAKE3 hex of the cached bytes
	Status         UploadStatus `json:"status" msgpack:"status"`
	ErrorMessage   string       `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt      time.Time    `json:"createdAt" msgpack:"createdAt"`
}

// NewUploadRecord builds a ready record for a freshly cached file.
func NewUploadRecord(file CachedFile, originalSource string, size *int64) UploadRecord {
	return UploadRecord{
		ID:             file.ID,
		OriginalSource: originalSource,
		LocalPath:      file.LocalPath,
		FileName:       file.FileName,
		MimeType:       file.MimeType,
		SizeBytes:      size,
		Status:         UploadStatusReady,
		CreatedAt:      time.Now().UTC(),
	}
}

// EncodedPayload is the transport-ready form of a cached upload. It is never persisted.
type EncodedPayload struct {
	ID       string `json:"id"`
	DataURL  string `json:"dataUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}
