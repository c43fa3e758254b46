// Package folder implements the folder/message bookkeeping engine: the
// sequence-number-indexed message cache, the UID cache, EXPUNGE-safe
// renumbering, and fetch-profile-driven prefetch/merge. It is the direct
// analogue of the teacher's internal/sync/imap folder-walking loop, but
// generalized from "download everything once" into a long-lived,
// randomly-accessed cache a caller queries interactively.
package folder

import (
	"time"

	"github.com/eslider/goimap/internal/header"
	"github.com/eslider/goimap/internal/protocol"
)

// Message is a lazy, per-folder cached view of one message. All fields
// besides SeqNum are optional and populated on demand by Folder.Fetch.
// Message never holds a connection; every operation that needs one asks
// its folder, which is why Folder is a plain back-reference here, not an
// owning pointer.
type Message struct {
	folder *Folder

	SeqNum   uint32 // invalidated to 0 once Expunged is true
	Expunged bool

	UID             uint32
	HasUID          bool
	Envelope        *protocol.Envelope
	BodyStructure   *protocol.BodyStructure
	Flags           protocol.FlagSet
	HasFlags        bool
	InternalDate    time.Time
	HasInternalDate bool
	Size            uint32
	HasSize         bool

	Headers             *header.Store
	AllHeadersRetrieved bool
	requestedHeaders    map[string]bool // names already satisfied by a prior HEADER.FIELDS fetch

	Section string // dotted path for a nested message part; "" for top-level
}

// Folder exposes the folder that owns this message, for callers that
// need to issue further commands (fetch a body section, set flags) scoped
// to it.
func (m *Message) Folder() *Folder { return m.folder }

// IsSet reports whether name is present in the message's cached flag set.
func (m *Message) IsSet(name string) bool { return m.Flags.Contains(name) }

// satisfiesProfile reports whether this message's cached state already
// has everything profile asks for, per §4.6 step 1.
func (m *Message) satisfiesProfile(p *protocol.FetchProfile) bool {
	if p.UID && !m.HasUID {
		return false
	}
	if p.Envelope && m.Envelope == nil {
		return false
	}
	if p.Flags && !m.HasFlags {
		return false
	}
	if p.BodyStructure && m.BodyStructure == nil {
		return false
	}
	if p.InternalDate && !m.HasInternalDate {
		return false
	}
	if p.Size && !m.HasSize {
		return false
	}
	for _, sec := range p.Sections {
		if sec.Section.Kind == protocol.SectionHeaders {
			if !m.AllHeadersRetrieved {
				return false
			}
			continue
		}
		if sec.Section.Kind == protocol.SectionHeaderSubset {
			for _, name := range sec.Section.HeaderNames {
				if !m.requestedHeaders[lower(name)] {
					return false
				}
			}
			continue
		}
		// Body/MIME/text sections are never considered "already satisfied";
		// callers asking for one always mean "fetch it now".
		return false
	}
	return true
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// merge folds a FETCH response's decoded items into the message's cached
// state, per §4.6 "Per-message merge".
func (m *Message) merge(items []*protocol.FetchItem) {
	for _, item := range items {
		switch item.Kind {
		case protocol.FetchEnvelope:
			m.Envelope = item.Envelope
			m.syncHeadersFromEnvelope()
		case protocol.FetchInternalDate:
			m.InternalDate = item.InternalDate
			m.HasInternalDate = true
		case protocol.FetchRFC822Size:
			m.Size = item.Size
			m.HasSize = true
		case protocol.FetchFlagsItem:
			m.Flags = item.Flags
			m.HasFlags = true
		case protocol.FetchUIDItem:
			m.UID = item.UID
			m.HasUID = true
			if m.folder != nil {
				m.folder.registerUID(m)
			}
		case protocol.FetchBodyStructureItem:
			m.BodyStructure = item.BodyStructure
			m.syncHeadersFromBodyStructure()
		case protocol.FetchHeaderItem:
			m.mergeHeaders(item)
		case protocol.FetchTextItem, protocol.FetchBodyItem:
			// Body/text payloads are not cached on the message; they are
			// only available in the FetchResult items Conn.Fetch returns.
		}
	}
}

func (m *Message) mergeHeaders(item *protocol.FetchItem) {
	fresh, err := header.ParseRaw(item.Bytes)
	if err != nil {
		return
	}
	if item.IsComplete {
		m.Headers = fresh
		m.AllHeadersRetrieved = true
		return
	}
	m.Headers = header.MergePartial(m.Headers, fresh)
	if m.requestedHeaders == nil {
		m.requestedHeaders = map[string]bool{}
	}
	for _, name := range fresh.Names() {
		m.requestedHeaders[lower(name)] = true
	}
}

// syncHeadersFromEnvelope derives the address/subject/message-id header
// fields an ENVELOPE carries, per the §4.6 merge rule, using the
// corrected (argument-driven, not always-From) address stringification.
func (m *Message) syncHeadersFromEnvelope() {
	if m.Envelope == nil {
		return
	}
	if m.Headers == nil {
		m.Headers = header.New()
	}
	e := m.Envelope
	header.SetAddressList(m.Headers, "From", e.From)
	header.SetAddressList(m.Headers, "To", e.To)
	header.SetAddressList(m.Headers, "Cc", e.CC)
	header.SetAddressList(m.Headers, "Bcc", e.BCC)
	header.SetAddressList(m.Headers, "Reply-To", e.ReplyTo)
	header.SetAddressList(m.Headers, "Sender", e.Sender)
	if e.Subject != "" {
		m.Headers.Set("Subject", e.Subject)
	}
	if e.MessageID != "" {
		m.Headers.Set("Message-Id", e.MessageID)
	}
}

// syncHeadersFromBodyStructure derives Content-* header fields a
// BODYSTRUCTURE carries.
func (m *Message) syncHeadersFromBodyStructure() {
	bs := m.BodyStructure
	if bs == nil || bs.MultiPart {
		return
	}
	if m.Headers == nil {
		m.Headers = header.New()
	}
	ct := bs.MIMEType + "/" + bs.MIMESubtype
	m.Headers.Set("Content-Type", ct)
	if bs.Encoding != "" {
		m.Headers.Set("Content-Transfer-Encoding", bs.Encoding)
	}
	if bs.ID != "" {
		m.Headers.Set("Content-Id", bs.ID)
	}
	if bs.Description != "" {
		m.Headers.Set("Content-Description", bs.Description)
	}
	if bs.Disposition != "" {
		m.Headers.Set("Content-Disposition", bs.Disposition)
	}
	if len(bs.Languages) > 0 {
		m.Headers.Set("Content-Language", bs.Languages[0])
	}
	if bs.HasLines {
		m.Headers.Set("Lines", itoa(bs.Lines))
	}
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
