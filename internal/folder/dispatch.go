package folder

import (
	"github.com/eslider/goimap/internal/connection"
	"github.com/eslider/goimap/internal/protocol"
)

// Handle implements connection.Handler: it claims EXISTS, EXPUNGE,
// RECENT, FETCH (flags-only), and BYE, exactly the untagged keywords
// §4.6 assigns to the folder handler. Everything else is left for the
// next handler in the chain (the store handler).
func (f *Folder) Handle(r *protocol.Response) bool {
	if r.Kind == protocol.ResponseUntagged && r.Status == "BYE" {
		f.handleBye()
		return true
	}
	switch r.Label {
	case "EXISTS":
		f.handleExists(r.Number)
		return true
	case "RECENT":
		f.mu.Lock()
		f.status.Recent = r.Number
		f.mu.Unlock()
		return true
	case "EXPUNGE":
		f.handleExpunge(r.Number)
		return true
	case "FETCH":
		return f.handleUnsolicitedFetch(r)
	}
	return false
}

// handleExists processes an untagged EXISTS that changes the known
// message count. When it grows beyond maxSeq, the newly-announced
// messages are lazily created (not eagerly fetched — that happens the
// first time a caller asks for them).
func (f *Folder) handleExists(newCount uint32) {
	f.mu.Lock()
	old := f.maxSeq
	f.status.Messages = newCount
	grew := newCount > old
	if grew {
		if f.seqCache == nil {
			f.seqCache = map[uint32]*Message{}
		}
		for n := old + 1; n <= newCount; n++ {
			if _, ok := f.seqCache[n]; !ok {
				f.seqCache[n] = &Message{folder: f, SeqNum: n}
			}
		}
		f.maxSeq = newCount
	}
	f.mu.Unlock()

	if grew {
		f.emit(Event{Kind: EventMessagesAdded, Start: old + 1, End: newCount})
	}
}

// handleExpunge applies the §3/§4.6 renumbering invariant for one
// EXPUNGE(seqNum=s): the expunged message is removed from both caches,
// and every cached message with a higher sequence number shifts down by
// one, keeping maxSeq and cache keys consistent before any later command
// can observe a stale sequence number.
func (f *Folder) handleExpunge(s uint32) {
	f.mu.Lock()
	if f.seqCache == nil {
		f.seqCache = map[uint32]*Message{}
	}
	removed, ok := f.seqCache[s]
	if !ok {
		removed = &Message{folder: f, SeqNum: s}
	}
	removed.Expunged = true
	removed.SeqNum = 0
	if removed.HasUID {
		delete(f.uidCache, removed.UID)
	}

	renumbered := make(map[uint32]*Message, len(f.seqCache))
	for seq, m := range f.seqCache {
		switch {
		case seq == s:
			// dropped
		case seq > s:
			m.SeqNum = seq - 1
			renumbered[seq-1] = m
		default:
			renumbered[seq] = m
		}
	}
	f.seqCache = renumbered
	if f.maxSeq > 0 {
		f.maxSeq--
	}
	f.status.Messages = f.maxSeq
	f.mu.Unlock()

	f.emit(Event{Kind: EventExpunged, SeqNums: []uint32{s}})
}

// handleUnsolicitedFetch processes an untagged FETCH the folder didn't
// explicitly ask for (a flag change pushed by another client). Only
// FLAGS-bearing FETCH responses are ours to claim; anything else (a
// FETCH response belonging to an in-flight command) was already pulled
// out of the pending queue by that command and never reaches Handle.
func (f *Folder) handleUnsolicitedFetch(r *protocol.Response) bool {
	attrs, err := r.Fetch()
	if err != nil {
		return true
	}
	var sawFlags bool
	var items []*protocol.FetchItem
	for _, a := range attrs {
		item, err := protocol.DecodeFetchAttr(a)
		if err != nil {
			continue
		}
		if item.Kind == protocol.FetchFlagsItem {
			sawFlags = true
		}
		items = append(items, item)
	}
	if !sawFlags {
		return false
	}

	f.mu.Lock()
	m, ok := f.seqCache[r.Number]
	if ok {
		m.merge(items)
	}
	hook := f.onPollFlagHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	f.emit(Event{Kind: EventFlagsChanged, SeqNums: []uint32{r.Number}})
	return true
}

// handleBye performs the same teardown as Close(expunge=false), marking
// the connection as server-disconnected so it is never returned to the
// pool.
func (f *Folder) handleBye() {
	f.mu.Lock()
	conn := f.conn
	f.open = false
	f.conn = nil
	f.seqCache = nil
	f.uidCache = nil
	f.mu.Unlock()

	if conn != nil {
		conn.DetachHandler(f)
		conn.Close()
	}
	f.emit(Event{Kind: EventClosed})
}

var _ connection.Handler = (*Folder)(nil)
