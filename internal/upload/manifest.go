package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/homework-lens/backend/internal/models"
)

const manifestVersion = 1

// ManifestDoc is the on-disk form of the registry.
type ManifestDoc struct {
	Version   int                   `msgpack:"version"`
	Records   []models.UploadRecord `msgpack:"records"` // most-recent-first
	LastError string                `msgpack:"lastError,omitempty"`
}

// Manifest persists registry state next to the cached files so records
// survive a process restart. Several processes may share one manifest: every
// change is applied to the latest persisted state under an exclusive file lock.
type Manifest struct {
	path string

	mu   sync.Mutex // serializes use of lock within this process
	lock *flock.Flock
}

// NewManifest returns a manifest stored at path, locked through path+".lock".
func NewManifest(path string) *Manifest {
	return &Manifest{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

// Save writes s atomically. The busy flag is not persisted.
func (m *Manifest) Save(s State) error {
	doc := ManifestDoc{
		Version:   manifestVersion,
		Records:   s.Records(),
		LastError: s.LastError,
	}
	data, err := msgpack.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

// Load reads the manifest. A missing file yields an empty document.
func (m *Manifest) Load() (ManifestDoc, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ManifestDoc{Version: manifestVersion}, nil
	}
	if err != nil {
		return ManifestDoc{}, fmt.Errorf("reading manifest: %w", err)
	}

	var doc ManifestDoc
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return ManifestDoc{}, fmt.Errorf("decoding manifest: %w", err)
	}
	if doc.Version != manifestVersion {
		return ManifestDoc{}, fmt.Errorf("unsupported manifest version %d", doc.Version)
	}
	return doc, nil
}

// Read returns the persisted state under a shared lock.
func (m *Manifest) Read() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lockFile(true); err != nil {
		return State{}, err
	}
	defer m.lock.Unlock()

	doc, err := m.Load()
	if err != nil {
		return State{}, err
	}
	return stateFromDoc(doc), nil
}

// Update applies fn to the persisted state and writes the result back, all
// under an exclusive lock, so concurrent writers never drop each other's
// records.
func (m *Manifest) Update(fn func(State) State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lockFile(false); err != nil {
		return State{}, err
	}
	defer m.lock.Unlock()

	doc, err := m.Load()
	if err != nil {
		return State{}, err
	}
	next := fn(stateFromDoc(doc))
	if err := m.Save(next); err != nil {
		return State{}, err
	}
	return next, nil
}

func (m *Manifest) lockFile(shared bool) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	var err error
	if shared {
		err = m.lock.RLock()
	} else {
		err = m.lock.Lock()
	}
	if err != nil {
		return fmt.Errorf("locking manifest: %w", err)
	}
	return nil
}

func stateFromDoc(doc ManifestDoc) State {
	return Reduce(NewState(), Restored{Records: doc.Records, LastError: doc.LastError})
}
