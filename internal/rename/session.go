package rename

import (
	"errors"

	"github.com/google/uuid"
)

// ErrExhausted is returned when a bounded generator has no unique names left.
var ErrExhausted = errors.New("short identifier space exhausted")

// Session is the identifier map of one compaction session: original names,
// the short names issued for them, and the generator counter. It only grows.
// A Session is not safe for concurrent use.
type Session struct {
	ID string

	gen     Generator
	names   map[string]string // original -> short
	order   []string          // originals in issue order
	counter int
}

// NewSession creates an empty session using gen. A nil gen selects
// ColumnGenerator.
func NewSession(gen Generator) *Session {
	if gen == nil {
		gen = ColumnGenerator{}
	}
	return &Session{
		ID:    uuid.New().String(),
		gen:   gen,
		names: make(map[string]string),
	}
}

// Generator returns the generator backing the session.
func (s *Session) Generator() Generator {
	return s.gen
}

// NextShortID returns the counter value the next generated name will use.
func (s *Session) NextShortID() int {
	return s.counter
}

// Len returns the number of mapped identifiers.
func (s *Session) Len() int {
	return len(s.names)
}

// Lookup returns the short name already issued for name.
func (s *Session) Lookup(name string) (string, bool) {
	short, ok := s.names[name]
	return short, ok
}

// Assign returns the short name for name, issuing a new one if needed.
// Generated candidates for which avoid returns true are skipped; the counter
// still advances past them.
func (s *Session) Assign(name string, avoid func(string) bool) (string, error) {
	if short, ok := s.names[name]; ok {
		return short, nil
	}

	limit := s.gen.Limit()
	for {
		if limit > 0 && s.counter >= limit {
			return "", ErrExhausted
		}
		candidate := s.gen.Name(s.counter)
		s.counter++
		if avoid != nil && avoid(candidate) {
			continue
		}
		s.names[name] = candidate
		s.order = append(s.order, name)
		return candidate, nil
	}
}

// Mapping is one entry of the identifier map.
type Mapping struct {
	Original string `json:"original" yaml:"original" toml:"original"`
	Short    string `json:"short" yaml:"short" toml:"short"`
}

// Mappings returns a copy of the identifier map in issue order.
func (s *Session) Mappings() []Mapping {
	out := make([]Mapping, 0, len(s.order))
	for _, orig := range s.order {
		out = append(out, Mapping{Original: orig, Short: s.names[orig]})
	}
	return out
}
