package upload

import (
	"fmt"

	"github.com/homework-lens/backend/internal/models"
)

// State is the registry contents. Order is most-recent-first and holds
// exactly the keys of ByID.
type State struct {
	ByID      map[string]models.UploadRecord
	Order     []string
	IsBusy    bool
	LastError string
}

// NewState returns the empty, idle registry.
func NewState() State {
	return State{ByID: make(map[string]models.UploadRecord)}
}

// Event is a registry transition.
type Event interface {
	isEvent()
}

// CacheStarted marks the start of a batch ingestion.
type CacheStarted struct{}

// CacheSucceeded commits records from a batch. A non-empty FailureMessage
// means some items of a partial batch failed.
type CacheSucceeded struct {
	Records        []models.UploadRecord
	FailureMessage string
}

// CacheFailed rejects a whole batch.
type CacheFailed struct {
	Message string
}

// InlineIngested commits a single data URL ingestion.
type InlineIngested struct {
	Record models.UploadRecord
}

// EncodeFailed records an I/O failure while encoding a selection.
type EncodeFailed struct {
	Message string
}

// Removed drops a record.
type Removed struct {
	ID string
}

// Cleared resets the registry.
type Cleared struct{}

// ErrorReported marks a record as failed.
type ErrorReported struct {
	ID      string
	Message string
}

// Restored replaces the registry with persisted records, most-recent-first.
type Restored struct {
	Records   []models.UploadRecord
	LastError string
}

func (CacheStarted) isEvent()   {}
func (CacheSucceeded) isEvent() {}
func (CacheFailed) isEvent()    {}
func (InlineIngested) isEvent() {}
func (EncodeFailed) isEvent()   {}
func (Removed) isEvent()        {}
func (Cleared) isEvent()        {}
func (ErrorReported) isEvent()  {}
func (Restored) isEvent()       {}

// Reduce applies ev to s and returns the new state. s is not modified.
func Reduce(s State, ev Event) State {
	next := s.clone()

	switch e := ev.(type) {
	case CacheStarted:
		next.IsBusy = true
		next.LastError = ""
	case CacheSucceeded:
		for _, rec := range e.Records {
			next.upsert(rec)
		}
		next.IsBusy = false
		if e.FailureMessage != "" {
			next.LastError = e.FailureMessage
		}
	case CacheFailed:
		next.IsBusy = false
		next.LastError = e.Message
	case InlineIngested:
		next.upsert(e.Record)
	case EncodeFailed:
		next.LastError = e.Message
	case Removed:
		if _, ok := next.ByID[e.ID]; ok {
			delete(next.ByID, e.ID)
			next.Order = removeID(next.Order, e.ID)
		}
	case Cleared:
		return NewState()
	case ErrorReported:
		if rec, ok := next.ByID[e.ID]; ok {
			rec.Status = models.UploadStatusError
			rec.ErrorMessage = e.Message
			next.ByID[e.ID] = rec
		}
		next.LastError = e.Message
	case Restored:
		next = NewState()
		// Records arrive most-recent-first; insert oldest first so the
		// front-insertion in upsert reproduces the same order.
		for i := len(e.Records) - 1; i >= 0; i-- {
			next.upsert(e.Records[i])
		}
		next.LastError = e.LastError
	}

	return next
}

// Records returns the records in order.
func (s State) Records() []models.UploadRecord {
	out := make([]models.UploadRecord, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.ByID[id])
	}
	return out
}

// TotalSize sums the known sizes of all records.
func (s State) TotalSize() int64 {
	var total int64
	for _, rec := range s.ByID {
		if rec.SizeBytes != nil {
			total += *rec.SizeBytes
		}
	}
	return total
}

// Validate checks that Order and ByID describe the same set of ids and
// that Order has no duplicates.
func (s State) Validate() error {
	seen := make(map[string]struct{}, len(s.Order))
	for _, id := range s.Order {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate id in order: %s", id)
		}
		seen[id] = struct{}{}
		if _, ok := s.ByID[id]; !ok {
			return fmt.Errorf("ordered id without record: %s", id)
		}
	}
	for id := range s.ByID {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("record missing from order: %s", id)
		}
	}
	return nil
}

func (s State) clone() State {
	byID := make(map[string]models.UploadRecord, len(s.ByID))
	for id, rec := range s.ByID {
		byID[id] = rec
	}
	return State{
		ByID:      byID,
		Order:     append([]string(nil), s.Order...),
		IsBusy:    s.IsBusy,
		LastError: s.LastError,
	}
}

func (s *State) upsert(rec models.UploadRecord) {
	if _, ok := s.ByID[rec.ID]; !ok {
		s.Order = append([]string{rec.ID}, s.Order...)
	}
	s.ByID[rec.ID] = rec
}

func removeID(order []string, id string) []string {
	out := order[:0]
	for _, existing := range order {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
