// mock_storage.go - Store and source doubles for testing
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/homework-lens/backend/internal/storage"
)

// MockStorage wraps a real store and lets tests inject failures per operation.
type MockStorage struct {
	storage.Store

	mu           sync.Mutex
	CopyErr      error
	WriteErr     error
	ReadErr      error
	DeleteErr    error
	PurgeErr     error
	EmptyWrites  bool // write zero bytes regardless of input
	DeletedPaths []string
}

// NewMockStorage wraps inner.
func NewMockStorage(inner storage.Store) *MockStorage {
	return &MockStorage{Store: inner}
}

func (m *MockStorage) CopyFrom(srcPath string, name string) (string, error) {
	if m.CopyErr != nil {
		return "", m.CopyErr
	}
	if m.EmptyWrites {
		return m.Store.WriteBytes(name, nil)
	}
	return m.Store.CopyFrom(srcPath, name)
}

func (m *MockStorage) WriteEncoded(name string, encoded string) (string, error) {
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	if m.EmptyWrites {
		return m.Store.WriteBytes(name, nil)
	}
	return m.Store.WriteEncoded(name, encoded)
}

func (m *MockStorage) ReadEncoded(path string) (string, error) {
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	return m.Store.ReadEncoded(path)
}

func (m *MockStorage) Delete(path string) error {
	m.mu.Lock()
	m.DeletedPaths = append(m.DeletedPaths, path)
	m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	return m.Store.Delete(path)
}

func (m *MockStorage) PurgeAll() error {
	if m.PurgeErr != nil {
		return m.PurgeErr
	}
	return m.Store.PurgeAll()
}

// MockOpener serves fixed content for URIs the direct copy path rejects.
type MockOpener struct {
	mu      sync.Mutex
	Content map[string][]byte
	Calls   []string
}

// NewMockOpener creates an opener serving content keyed by URI.
func NewMockOpener(content map[string][]byte) *MockOpener {
	return &MockOpener{Content: content}
}

func (m *MockOpener) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, uri)
	data, ok := m.Content[uri]
	if !ok {
		return nil, fmt.Errorf("mock opener: no content for %s", uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// CallCount returns how many times Open was called.
func (m *MockOpener) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
