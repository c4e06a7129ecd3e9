package models

// CachedFile is a durable local copy of an externally supplied resource.
// LocalPath always lies inside the managed upload directory.
type CachedFile struct {
	ID        string `json:"id" msgpack:"id"`
	FileName  string `json:"fileName" msgpack:"fileName"`
	MimeType  string `json:"mimeType" msgpack:"mimeType"`
	LocalPath string `json:"localPath" msgpack:"localPath"`
}
