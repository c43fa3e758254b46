package folder

import (
	"strings"
	"testing"

	"github.com/eslider/goimap/internal/protocol"
)

func newTestFolder() *Folder {
	return New("INBOX", nil)
}

func TestHandleExistsLazilyCreatesNewMessages(t *testing.T) {
	f := newTestFolder()
	f.maxSeq = 3
	f.seqCache = map[uint32]*Message{
		1: {folder: f, SeqNum: 1},
		2: {folder: f, SeqNum: 2},
		3: {folder: f, SeqNum: 3},
	}

	var events []Event
	f.OnEvent(func(e Event) { events = append(events, e) })

	ok := f.Handle(&protocol.Response{Kind: protocol.ResponseUntagged, Label: "EXISTS", Number: 5})
	if !ok {
		t.Fatal("expected Handle to claim EXISTS")
	}

	if f.maxSeq != 5 {
		t.Fatalf("maxSeq = %d, want 5", f.maxSeq)
	}
	if _, ok := f.seqCache[4]; !ok {
		t.Error("expected seq 4 lazily created")
	}
	if _, ok := f.seqCache[5]; !ok {
		t.Error("expected seq 5 lazily created")
	}
	if len(events) != 1 || events[0].Kind != EventMessagesAdded || events[0].Start != 4 || events[0].End != 5 {
		t.Fatalf("events = %+v", events)
	}
}

// TestHandleExpungeRenumbersAndShrinksMaxSeq reproduces the renumbering
// invariant for a folder with messages at sequence numbers 5,6,7,8: two
// EXPUNGE(6) responses in a row leave the message originally at seq 8
// sitting at seq 6, with maxSeq == 6.
func TestHandleExpungeRenumbersAndShrinksMaxSeq(t *testing.T) {
	f := newTestFolder()
	f.maxSeq = 8
	msg8 := &Message{folder: f, SeqNum: 8, HasUID: true, UID: 108}
	f.seqCache = map[uint32]*Message{
		5: {folder: f, SeqNum: 5},
		6: {folder: f, SeqNum: 6},
		7: {folder: f, SeqNum: 7},
		8: msg8,
	}
	f.uidCache = map[uint32]*Message{108: msg8}

	f.handleExpunge(6)
	if f.maxSeq != 7 {
		t.Fatalf("after first expunge maxSeq = %d, want 7", f.maxSeq)
	}

	f.handleExpunge(6)
	if f.maxSeq != 6 {
		t.Fatalf("after second expunge maxSeq = %d, want 6", f.maxSeq)
	}

	got, ok := f.seqCache[6]
	if !ok {
		t.Fatal("expected something cached at seq 6")
	}
	if got != msg8 {
		t.Fatalf("expected original seq-8 message renumbered to seq 6, got %+v", got)
	}
	if got.SeqNum != 6 {
		t.Errorf("message SeqNum = %d, want 6", got.SeqNum)
	}
}

func TestHandleUnsolicitedFetchUpdatesCachedFlags(t *testing.T) {
	f := newTestFolder()
	msg := &Message{folder: f, SeqNum: 3}
	f.seqCache = map[uint32]*Message{3: msg}

	var events []Event
	f.OnEvent(func(e Event) { events = append(events, e) })

	raw := "* 3 FETCH (FLAGS (\\Seen \\Flagged))\r\n"
	line, err := protocol.NewLineReader(strings.NewReader(raw), 0).ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := protocol.ClassifyResponse(line)
	if err != nil {
		t.Fatal(err)
	}

	ok := f.Handle(resp)
	if !ok {
		t.Fatal("expected Handle to claim the FLAGS FETCH")
	}
	if !msg.Flags.Contains(protocol.FlagSeen) || !msg.Flags.Contains(protocol.FlagFlagged) {
		t.Errorf("flags = %v", msg.Flags.Names())
	}
	if len(events) != 1 || events[0].Kind != EventFlagsChanged {
		t.Fatalf("events = %+v", events)
	}
}
