package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/homework-lens/backend/internal/dataurl"
	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/models"
	"github.com/homework-lens/backend/internal/storage"
)

// BatchPolicy controls how a batch ingestion treats item failures.
type BatchPolicy string

const (
	// BatchAllOrNothing rejects the batch on the first failure and commits nothing.
	BatchAllOrNothing BatchPolicy = "all-or-nothing"
	// BatchPartial commits every item that succeeded and reports the rest.
	BatchPartial BatchPolicy = "partial"
)

// NotFoundError is returned when an id is not in the registry.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("upload %s not found", e.ID)
}

// Ingester caches sources and encodes cached files.
type Ingester interface {
	AdoptExternal(ctx context.Context, src ingest.ExternalSource) (ingest.Result, error)
	AdoptInline(ctx context.Context, src ingest.InlineSource) (ingest.Result, error)
	ToInlinePayload(ctx context.Context, localPath, mimeType string) (string, error)
}

// ItemFailure describes one failed item of a partial batch.
type ItemFailure struct {
	Index int    `json:"index"`
	URI   string `json:"uri"`
	Error string `json:"error"`
}

// BatchResult is the outcome of CacheUploads.
type BatchResult struct {
	Records  []models.UploadRecord `json:"records"`
	Failures []ItemFailure         `json:"failures,omitempty"`
}

// Snapshot is a read-only view of the registry.
type Snapshot struct {
	Records   []models.UploadRecord `json:"records"`
	IsBusy    bool                  `json:"isBusy"`
	LastError string                `json:"lastError,omitempty"`
	TotalSize int64                 `json:"totalSize"`
}

// Options configures a Manager.
type Options struct {
	Policy        BatchPolicy
	MaxConcurrent int       // 0 means unbounded
	Manifest      *Manifest // nil disables persistence
	Logger        *slog.Logger
}

// Manager owns the registry state and runs the operations that change it.
// Every change goes through Reduce. IsBusy is advisory: concurrent batches
// are not excluded.
type Manager struct {
	mu     sync.RWMutex
	state  State
	engine Ingester
	store  storage.Store
	opts   Options
	logger *slog.Logger

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// NewManager creates a registry manager with empty state.
func NewManager(engine Ingester, store storage.Store, opts Options) *Manager {
	if opts.Policy == "" {
		opts.Policy = BatchAllOrNothing
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		state:  NewState(),
		engine: engine,
		store:  store,
		opts:   opts,
		logger: logger.With("component", "registry"),
		subs:   make(map[int]chan Snapshot),
	}
}

// Restore loads the manifest and drops records whose file is gone.
func (m *Manager) Restore(ctx context.Context) error {
	if m.opts.Manifest == nil {
		return nil
	}

	var total, kept int
	m.mu.Lock()
	next, err := m.opts.Manifest.Update(func(shared State) State {
		records := shared.Records()
		alive := make([]models.UploadRecord, 0, len(records))
		for _, rec := range records {
			st, err := m.store.Stat(rec.LocalPath)
			if err != nil || !st.Exists {
				m.logger.WarnContext(ctx, "dropping manifest record without file", "id", rec.ID, "path", rec.LocalPath)
				continue
			}
			alive = append(alive, rec)
		}
		total, kept = len(records), len(alive)
		return Reduce(shared, Restored{Records: alive, LastError: shared.LastError})
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	snap := snapshotOf(m.state)
	m.mu.Unlock()

	m.publish(snap)
	m.logger.InfoContext(ctx, "registry restored", "records", kept, "dropped", total-kept)
	return nil
}

// CacheUploads ingests sources concurrently and commits them to the registry.
func (m *Manager) CacheUploads(ctx context.Context, sources []ingest.ExternalSource) (BatchResult, error) {
	m.dispatch(CacheStarted{})

	records := make([]*models.UploadRecord, len(sources))
	failures := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if m.opts.MaxConcurrent > 0 {
		g.SetLimit(m.opts.MaxConcurrent)
	}
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failures[i] = err
				return err
			}
			rec, err := m.adoptExternal(gctx, src)
			if err != nil {
				failures[i] = err
				if m.opts.Policy == BatchAllOrNothing {
					return err
				}
				return nil
			}
			records[i] = &rec
			return nil
		})
	}
	batchErr := g.Wait()

	if batchErr != nil {
		// Nothing from a rejected batch is committed; drop what siblings cached.
		for _, rec := range records {
			if rec != nil {
				if err := m.store.Delete(rec.LocalPath); err != nil {
					m.logger.WarnContext(ctx, "failed to remove file from rejected batch", "id", rec.ID, "error", err)
				}
			}
		}
		m.dispatch(CacheFailed{Message: batchErr.Error()})
		m.logger.ErrorContext(ctx, "batch ingestion failed", "items", len(sources), "error", batchErr)
		return BatchResult{}, batchErr
	}

	var result BatchResult
	var messages []string
	for i, rec := range records {
		if rec != nil {
			result.Records = append(result.Records, *rec)
			continue
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, ItemFailure{Index: i, URI: sources[i].URI, Error: failures[i].Error()})
			messages = append(messages, failures[i].Error())
		}
	}

	m.dispatch(CacheSucceeded{Records: result.Records, FailureMessage: strings.Join(messages, "; ")})
	m.logger.InfoContext(ctx, "batch ingestion complete", "cached", len(result.Records), "failed", len(result.Failures))
	return result, nil
}

func (m *Manager) adoptExternal(ctx context.Context, src ingest.ExternalSource) (models.UploadRecord, error) {
	res, err := m.engine.AdoptExternal(ctx, src)
	if err != nil {
		return models.UploadRecord{}, err
	}
	size := res.SizeBytes
	rec := models.NewUploadRecord(res.File, dataurl.Describe(src.URI), &size)
	rec.Digest = m.digest(ctx, rec.LocalPath)
	return rec, nil
}

// IngestInline caches a single data URL and commits it.
func (m *Manager) IngestInline(ctx context.Context, src ingest.InlineSource) (models.UploadRecord, error) {
	res, err := m.engine.AdoptInline(ctx, src)
	if err != nil {
		return models.UploadRecord{}, err
	}

	size := res.SizeBytes
	rec := models.NewUploadRecord(res.File, dataurl.Describe(src.DataURL), &size)
	rec.Digest = m.digest(ctx, rec.LocalPath)
	m.dispatch(InlineIngested{Record: rec})
	return rec, nil
}

// EncodeSelection returns data URLs for ids, or for every record when ids is
// empty. An unknown id fails the whole call without touching the registry.
func (m *Manager) EncodeSelection(ctx context.Context, ids []string) ([]models.EncodedPayload, error) {
	state := m.current()

	targets := ids
	if len(targets) == 0 {
		targets = state.Order
	}

	selected := make([]models.UploadRecord, len(targets))
	for i, id := range targets {
		rec, ok := state.ByID[id]
		if !ok {
			return nil, &NotFoundError{ID: id}
		}
		selected[i] = rec
	}

	out := make([]models.EncodedPayload, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range selected {
		g.Go(func() error {
			data, err := m.engine.ToInlinePayload(gctx, rec.LocalPath, rec.MimeType)
			if err != nil {
				return fmt.Errorf("encoding upload %s: %w", rec.ID, err)
			}
			out[i] = models.EncodedPayload{
				ID:       rec.ID,
				DataURL:  data,
				FileName: rec.FileName,
				MimeType: rec.MimeType,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.dispatch(EncodeFailed{Message: err.Error()})
		return nil, err
	}
	return out, nil
}

// Remove deletes the cached file and then the record. Unknown ids are a no-op.
func (m *Manager) Remove(ctx context.Context, id string) error {
	rec, ok := m.Get(id)
	if !ok {
		return nil
	}
	if err := m.store.Delete(rec.LocalPath); err != nil {
		return err
	}
	m.dispatch(Removed{ID: id})
	m.logger.InfoContext(ctx, "upload removed", "id", id)
	return nil
}

// ClearAll purges the managed directory and resets the registry.
func (m *Manager) ClearAll(ctx context.Context) error {
	if err := m.store.PurgeAll(); err != nil {
		return err
	}
	m.dispatch(Cleared{})
	m.logger.InfoContext(ctx, "registry cleared")
	return nil
}

// ReportError marks a record as failed. The record and its file are kept.
func (m *Manager) ReportError(id, message string) {
	m.dispatch(ErrorReported{ID: id, Message: message})
}

// List returns every record, most recent first.
func (m *Manager) List() []models.UploadRecord {
	return m.current().Records()
}

// Get returns a single record.
func (m *Manager) Get(id string) (models.UploadRecord, bool) {
	rec, ok := m.current().ByID[id]
	return rec, ok
}

// TotalSize sums the sizes of all records.
func (m *Manager) TotalSize() int64 {
	return m.current().TotalSize()
}

// IsBusy reports whether a batch ingestion is in flight.
func (m *Manager) IsBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsBusy
}

// LastError returns the most recent failure message.
func (m *Manager) LastError() string {
	return m.current().LastError
}

// Snapshot returns the current registry view.
func (m *Manager) Snapshot() Snapshot {
	return snapshotOf(m.current())
}

// CheckConsistency validates the order/map invariant of the current state.
func (m *Manager) CheckConsistency() error {
	return m.current().Validate()
}

// Subscribe returns a channel receiving a snapshot after every change.
// Slow subscribers miss intermediate snapshots. Call cancel to unsubscribe.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// current returns the registry state, picking up changes other processes
// wrote to a shared manifest.
func (m *Manager) current() State {
	if m.opts.Manifest == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.state
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	shared, err := m.opts.Manifest.Read()
	if err != nil {
		m.logger.Warn("failed to read manifest", "path", m.opts.Manifest.Path(), "error", err)
		return m.state
	}
	shared.IsBusy = m.state.IsBusy
	m.state = shared
	return m.state
}

func (m *Manager) dispatch(ev Event) {
	m.mu.Lock()
	m.state = m.apply(ev)
	if err := m.state.Validate(); err != nil {
		m.logger.Error("registry invariant violated", "event", fmt.Sprintf("%T", ev), "error", err)
	}
	snap := snapshotOf(m.state)
	m.mu.Unlock()

	m.publish(snap)
}

// apply reduces ev onto the latest persisted state when a manifest is
// configured, falling back to the in-memory state if the manifest fails.
// Callers hold m.mu.
func (m *Manager) apply(ev Event) State {
	if m.opts.Manifest == nil {
		return Reduce(m.state, ev)
	}
	busy := m.state.IsBusy
	next, err := m.opts.Manifest.Update(func(shared State) State {
		shared.IsBusy = busy
		return Reduce(shared, ev)
	})
	if err != nil {
		m.logger.Warn("failed to persist manifest", "path", m.opts.Manifest.Path(), "error", err)
		return Reduce(m.state, ev)
	}
	return next
}

func (m *Manager) publish(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func snapshotOf(s State) Snapshot {
	return Snapshot{
		Records:   s.Records(),
		IsBusy:    s.IsBusy,
		LastError: s.LastError,
		TotalSize: s.TotalSize(),
	}
}
