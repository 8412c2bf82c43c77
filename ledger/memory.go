package ledger

import (
	"sort"
	"sync"
)

// memStore implements Store in memory. Used by tests and for running the
// daemon without durability (not recommended outside development: crash
// recovery depends on a persistent ledger).
type memStore struct {
	mu        sync.Mutex
	entries   map[uint64]*Entry
	watermark uint64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memStore{entries: make(map[uint64]*Entry)}
}

func dup(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

func (s *memStore) Get(round uint64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dup(s.entries[round]), nil
}

func (s *memStore) Record(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkTransition(s.entries[entry.Round], entry); err != nil {
		return err
	}
	s.entries[entry.Round] = dup(entry)
	return nil
}

func (s *memStore) Unresolved() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	for _, entry := range s.entries {
		if !entry.Status.Terminal() {
			out = append(out, dup(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (s *memStore) MaxRound() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max uint64
	for round := range s.entries {
		if round > max {
			max = round
		}
	}
	return max, nil
}

func (s *memStore) LastConfirmed() (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *Entry
	for _, entry := range s.entries {
		if entry.Status != StatusConfirmed {
			continue
		}
		if last == nil || entry.Round > last.Round {
			last = entry
		}
	}
	return dup(last), nil
}

func (s *memStore) Watermark() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

func (s *memStore) SetWatermark(block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = block
	return nil
}

func (s *memStore) Close() error { return nil }
