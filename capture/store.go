package capture

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/google/uuid"
)

// Store holds captured exchanges keyed by flow ID. Thread-safe.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Exchange
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Exchange)}
}

// Add registers an exchange under a fresh flow ID and returns the ID.
// CapturedAt is stamped if unset.
func (s *Store) Add(ex *Exchange) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	flowID := uuid.NewString()
	for s.byID[flowID] != nil {
		flowID = uuid.NewString()
	}

	ex.FlowID = flowID
	if ex.CapturedAt.IsZero() {
		ex.CapturedAt = time.Now()
	}
	s.byID[flowID] = ex

	return flowID
}

// Get retrieves an exchange by flow ID. Returns nil and false if not found.
func (s *Store) Get(flowID string) (*Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.byID[flowID]
	return ex, ok
}

// Delete removes an exchange by flow ID.
func (s *Store) Delete(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byID, flowID)
}

// AllFlowIDs returns all registered flow IDs.
func (s *Store) AllFlowIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return bulk.MapKeysSlice(s.byID)
}

// All returns every stored exchange sorted by capture time, oldest first.
func (s *Store) All() []*Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exchanges := make([]*Exchange, 0, len(s.byID))
	for _, ex := range s.byID {
		exchanges = append(exchanges, ex)
	}
	sortByCaptureTime(exchanges)
	return exchanges
}

// Count returns the number of stored exchanges.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byID)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Exchange)
}

func sortByCaptureTime(exchanges []*Exchange) {
	slices.SortFunc(exchanges, func(a, b *Exchange) int {
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return strings.Compare(a.FlowID, b.FlowID)
	})
}
