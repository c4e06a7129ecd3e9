package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store defines the interface for the managed upload directory.
type Store interface {
	Dir() string
	EnsureDirectory() error
	Path(name string) (string, error)
	WriteBytes(name string, data []byte) (string, error)
	WriteEncoded(name string, encoded string) (string, error)
	CopyFrom(srcPath string, name string) (string, error)
	Stat(path string) (FileStat, error)
	ReadBytes(path string) ([]byte, error)
	ReadEncoded(path string) (string, error)
	Delete(path string) error
	PurgeAll() error
	List() ([]string, error)
}

// FileStat describes a path inside the managed directory.
type FileStat struct {
	Exists    bool
	SizeBytes int64
}

// IOError is returned for every failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrOutsideDirectory is wrapped by IOError when a path escapes the managed directory.
var ErrOutsideDirectory = errors.New("path is outside the managed directory")

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	// mu serializes directory-wide operations (ensure/purge) against writes.
	mu        sync.RWMutex
	uploadDir string
}

// NewLocalStore creates a new LocalStore and ensures its directory exists.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	abs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, &IOError{Op: "resolve", Path: uploadDir, Err: err}
	}

	s := &LocalStore{uploadDir: abs}
	if err := s.EnsureDirectory(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the absolute managed directory.
func (s *LocalStore) Dir() string {
	return s.uploadDir
}

// EnsureDirectory creates the managed directory and any missing parents.
func (s *LocalStore) EnsureDirectory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

func (s *LocalStore) ensureLocked() error {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: s.uploadDir, Err: err}
	}
	return nil
}

// Path returns the absolute path for a file name inside the managed directory.
func (s *LocalStore) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &IOError{Op: "resolve", Path: name, Err: ErrOutsideDirectory}
	}
	return filepath.Join(s.uploadDir, name), nil
}

// WriteBytes writes data to name, replacing any existing file.
func (s *LocalStore) WriteBytes(name string, data []byte) (string, error) {
	return s.writeFrom(name, "write", func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteEncoded decodes a base64 body and writes the bytes to name.
func (s *LocalStore) WriteEncoded(name string, encoded string) (string, error) {
	return s.writeFrom(name, "write", func(w io.Writer) error {
		dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded))
		_, err := io.Copy(w, dec)
		return err
	})
}

// CopyFrom copies a local source file into the managed directory as name.
func (s *LocalStore) CopyFrom(srcPath string, name string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", &IOError{Op: "open", Path: srcPath, Err: err}
	}
	defer src.Close()

	return s.writeFrom(name, "copy", func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

// writeFrom streams into a temp file next to the destination and renames it
// into place, so a failed write never leaves a truncated file under name.
func (s *LocalStore) writeFrom(name, op string, fill func(io.Writer) error) (string, error) {
	dest, err := s.Path(name)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tmp, err := os.CreateTemp(s.uploadDir, "."+name+".*.tmp")
	if err != nil {
		return "", &IOError{Op: op, Path: dest, Err: err}
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", &IOError{Op: op, Path: dest, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", &IOError{Op: op, Path: dest, Err: err}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", &IOError{Op: op, Path: dest, Err: err}
	}

	return dest, nil
}

// Stat reports whether path exists and its size. A missing file is not an error.
func (s *LocalStore) Stat(path string) (FileStat, error) {
	if err := s.checkInside(path); err != nil {
		return FileStat{}, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileStat{}, nil
	}
	if err != nil {
		return FileStat{}, &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return FileStat{}, &IOError{Op: "stat", Path: path, Err: errors.New("is a directory")}
	}
	return FileStat{Exists: true, SizeBytes: info.Size()}, nil
}

// ReadBytes returns the full contents of path.
func (s *LocalStore) ReadBytes(path string) ([]byte, error) {
	if err := s.checkInside(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// ReadEncoded returns the full contents of path as standard base64.
func (s *LocalStore) ReadEncoded(path string) (string, error) {
	data, err := s.ReadBytes(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Delete removes path. Deleting a missing file succeeds.
func (s *LocalStore) Delete(path string) error {
	if err := s.checkInside(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// PurgeAll removes the managed directory with everything in it and
// recreates it empty.
func (s *LocalStore) PurgeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.uploadDir); err != nil {
		return &IOError{Op: "purge", Path: s.uploadDir, Err: err}
	}
	return s.ensureLocked()
}

// List returns the names of cached files, sorted. Temp files are skipped.
func (s *LocalStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, &IOError{Op: "list", Path: s.uploadDir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) checkInside(path string) error {
	rel, err := filepath.Rel(s.uploadDir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.ContainsRune(rel, filepath.Separator) {
		return &IOError{Op: "resolve", Path: path, Err: ErrOutsideDirectory}
	}
	return nil
}
