// Package jobstest provides an in-memory jobs.Store for tests. It enforces the
// same preconditions as the Firestore store and records every status a job
// passes through, so tests can assert on the full history.
package jobstest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Lllllllleong/obraflow/internal/jobs"
)

// Store is an in-memory jobs.Store keyed by job id.
type Store struct {
	mu      sync.Mutex
	machine *jobs.Machine
	docs    map[string]map[string]any
	history map[string][]jobs.Status
	writes  int

	// BeforeClaim and BeforeAdvance run before the write is attempted, outside
	// the store lock. A non-nil error is returned as the write's failure.
	BeforeClaim   func(id string) error
	BeforeAdvance func(id string, from, to jobs.Status) error
}

var _ jobs.Store = (*Store)(nil)

// New returns an empty store validating transitions against m.
func New(m *jobs.Machine) *Store {
	return &Store{
		machine: m,
		docs:    make(map[string]map[string]any),
		history: make(map[string][]jobs.Status),
	}
}

// Put seeds a record, the way the UI would create it.
func (s *Store) Put(id string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	s.docs[id] = cp
	if st, ok := cp["status"]; ok {
		s.history[id] = append(s.history[id], toStatus(st))
	}
}

// SetStatus overwrites the status without validation, simulating a write made
// by another activation.
func (s *Store) SetStatus(id string, st jobs.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id]["status"] = string(st)
	s.history[id] = append(s.history[id], st)
}

// Status returns the stored status of id.
func (s *Store) Status(id string) jobs.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return toStatus(s.docs[id]["status"])
}

// History returns every status id has held, oldest first.
func (s *Store) History(id string) []jobs.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.Status, len(s.history[id]))
	copy(out, s.history[id])
	return out
}

// Field returns the value at a dot separated path.
func (s *Store) Field(id, path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur any = s.docs[id]
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Writes counts successful Claim and Advance writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) Claim(_ context.Context, id string, from, to jobs.Status, dst any) error {
	if s.BeforeClaim != nil {
		if err := s.BeforeClaim(id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.expect(id, from)
	if err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "firestore",
		Result:  dst,
	})
	if err != nil {
		return err
	}
	decodeErr := dec.Decode(doc)

	if from != to {
		if err := s.machine.Check(from, to); err != nil {
			return err
		}
		doc["status"] = string(to)
		doc["startedAt"] = time.Now().UTC()
		s.history[id] = append(s.history[id], to)
		s.writes++
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %s: %v", jobs.ErrInvalidRecord, id, decodeErr)
	}
	return nil
}

func (s *Store) Advance(_ context.Context, id string, from, to jobs.Status, fields jobs.Fields) error {
	if s.BeforeAdvance != nil {
		if err := s.BeforeAdvance(id, from, to); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.expect(id, from)
	if err != nil {
		return err
	}
	if err := s.machine.Check(from, to); err != nil {
		return err
	}
	for path, v := range fields {
		setPath(doc, path, v)
	}
	doc["status"] = string(to)
	if to.IsTerminal() {
		doc["processedAt"] = time.Now().UTC()
	}
	s.history[id] = append(s.history[id], to)
	s.writes++
	return nil
}

func (s *Store) expect(id string, from jobs.Status) (map[string]any, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	if current := toStatus(doc["status"]); current != from {
		return nil, fmt.Errorf("%w: %s is %q, expected %q", jobs.ErrStatusMismatch, id, current, from)
	}
	return doc, nil
}

func setPath(doc map[string]any, path string, v any) {
	keys := strings.Split(path, ".")
	cur := doc
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = v
}

func toStatus(v any) jobs.Status {
	switch st := v.(type) {
	case string:
		return jobs.Status(st)
	case jobs.Status:
		return st
	}
	return ""
}
