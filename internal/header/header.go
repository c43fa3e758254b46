// Package header implements the MIME header store collaborator: a
// name/value bag parsed from a raw `\r\n`-delimited byte stream, queried
// by matching/non-matching name, and merged according to the
// partial-vs-complete FETCH rules a folder applies to BODY[HEADER...]
// responses. It is a thin domain wrapper around go-message's
// message.Header, which already implements RFC 2822 folding, duplicate
// field ordering, and encoded-word-aware field access.
package header

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/emersion/go-message"

	"github.com/eslider/goimap/internal/protocol"
)

// Store is a mutable set of header fields for one message (or one nested
// MESSAGE/RFC822 part).
type Store struct {
	h message.Header
}

// New returns an empty Store.
func New() *Store { return &Store{} }

// ParseRaw parses a `\r\n`-terminated (and blank-line-terminated) raw
// header block, as delivered by a BODY[HEADER] or BODY[HEADER.FIELDS
// (...)] FETCH response.
func ParseRaw(raw []byte) (*Store, error) {
	h, err := message.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, err
	}
	return &Store{h: h}, nil
}

// Get returns the decoded value of the first field named key, or "" if
// absent.
func (s *Store) Get(key string) string { return s.h.Get(key) }

// Has reports whether any field named key is present.
func (s *Store) Has(key string) bool { return s.h.Has(key) }

// Set replaces all fields named key with a single field with value.
func (s *Store) Set(key, value string) { s.h.Set(key, value) }

// Add appends a new field named key, preserving any existing fields with
// that name (used for repeated headers like Received).
func (s *Store) Add(key, value string) { s.h.Add(key, value) }

// Del removes every field named key.
func (s *Store) Del(key string) { s.h.Del(key) }

// Names returns every distinct field name present, in first-seen order.
func (s *Store) Names() []string {
	seen := make(map[string]bool)
	var out []string
	fields := s.h.Fields()
	for fields.Next() {
		k := strings.ToLower(fields.Key())
		if !seen[k] {
			seen[k] = true
			out = append(out, fields.Key())
		}
	}
	return out
}

// Matching returns a new Store containing only the fields whose name
// appears in names (case-insensitive), preserving field order.
func (s *Store) Matching(names []string) *Store {
	want := toLowerSet(names)
	out := &Store{}
	fields := s.h.Fields()
	for fields.Next() {
		if want[strings.ToLower(fields.Key())] {
			text, _ := fields.Text()
			out.h.Add(fields.Key(), text)
		}
	}
	return out
}

// NonMatching returns a new Store containing every field whose name is
// NOT in names, preserving field order. This implements the HEADER.FIELDS.NOT
// and partial-merge "retain what the new set didn't replace" rules.
func (s *Store) NonMatching(names []string) *Store {
	skip := toLowerSet(names)
	out := &Store{}
	fields := s.h.Fields()
	for fields.Next() {
		if !skip[strings.ToLower(fields.Key())] {
			text, _ := fields.Text()
			out.h.Add(fields.Key(), text)
		}
	}
	return out
}

func toLowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

// MergePartial implements the folder engine's partial-header-merge rule:
// result = newStore ∪ { h ∈ oldStore : name(h) ∉ names(newStore) }. All
// values for a retained name come from oldStore as a unit; all values
// for a replaced name come from newStore as a unit.
func MergePartial(old, fresh *Store) *Store {
	if old == nil {
		return fresh
	}
	if fresh == nil {
		return old
	}
	retained := old.NonMatching(fresh.Names())
	merged := &Store{}
	fields := retained.h.Fields()
	for fields.Next() {
		text, _ := fields.Text()
		merged.h.Add(fields.Key(), text)
	}
	fields = fresh.h.Fields()
	for fields.Next() {
		text, _ := fields.Text()
		merged.h.Add(fields.Key(), text)
	}
	return merged
}

// SetAddressList renders addrs as an RFC 2822 address-list header value
// and stores it under key. This is the corrected form of the
// open-question "updateHeader" behavior: the header is built from the
// addresses actually supplied, not implicitly from envelope.From
// regardless of which field is being updated.
func SetAddressList(s *Store, key string, addrs []protocol.Address) {
	if len(addrs) == 0 {
		s.Del(key)
		return
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	s.Set(key, strings.Join(parts, ", "))
}

// Raw renders the header back to its `\r\n`-terminated wire form.
func (s *Store) Raw() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.h.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
