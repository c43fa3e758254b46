package folder

import (
	"sort"
	"sync"
	"time"

	"github.com/eslider/goimap/internal/connection"
	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/protocol"
)

// Releaser returns a folder-scoped connection to its pool. It is the
// narrow slice of *pool.Pool a Folder needs, kept as an interface here so
// this package doesn't import internal/pool (the dependency runs the
// other way: the root store package wires a Folder to a Pool).
type Releaser interface {
	Release(c *connection.Conn, detach connection.Handler)
}

// Event is a folder lifecycle/state-change notification, delivered
// synchronously from whatever goroutine triggered it (always after the
// folder's mutex has been released, per §5's re-entrancy rule).
type Event struct {
	Kind     EventKind
	SeqNums  []uint32 // EXPUNGE: the expunged sequence numbers, in order
	Start    uint32   // MessagesAdded: first new sequence number
	End      uint32   // MessagesAdded: last new sequence number
}

type EventKind int

const (
	EventOpened EventKind = iota
	EventClosed
	EventMessagesAdded
	EventFlagsChanged
	EventExpunged
)

// Status mirrors connection.MailboxStatus plus the bits the folder keeps
// live across the open period.
type Status struct {
	Mode           connection.Mode
	Messages       uint32
	Recent         uint32
	Unseen         uint32
	UIDValidity    uint32
	UIDNext        uint32
	Flags          protocol.FlagSet
	PermanentFlags protocol.FlagSet
}

// Folder is one open IMAP mailbox: the sequence/UID message caches, the
// mailbox status mirror, and the single borrowed connection it holds for
// its entire open period.
type Folder struct {
	pool     Releaser
	fullName string

	mu       sync.Mutex
	open     bool
	conn     *connection.Conn
	status   Status
	seqCache map[uint32]*Message
	uidCache map[uint32]*Message
	maxSeq   uint32

	onEvent        func(Event)
	onPollFlagHook func() // set only during Poll, to detect FETCH(FLAGS) activity
}

// New constructs a closed Folder bound to fullName. Open must be called
// before any other operation.
func New(fullName string, pool Releaser) *Folder {
	return &Folder{fullName: fullName, pool: pool}
}

// OnEvent registers the (single) event sink for this folder. Call before
// Open to avoid missing the initial Opened event.
func (f *Folder) OnEvent(fn func(Event)) { f.onEvent = fn }

func (f *Folder) emit(ev Event) {
	if f.onEvent != nil {
		f.onEvent(ev)
	}
}

// Name returns the folder's full hierarchical name.
func (f *Folder) Name() string { return f.fullName }

// IsOpen reports whether the folder currently holds a connection.
func (f *Folder) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Status returns a snapshot of the folder's last-known server state.
func (f *Folder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Open acquires a connection from the pool, issues SELECT or EXAMINE,
// and attaches this folder as the connection's untagged-response
// handler, per §4.6 "Open".
func (f *Folder) Open(acquire func() (*connection.Conn, error), readOnly bool) error {
	f.mu.Lock()
	if f.open {
		f.mu.Unlock()
		return errs.New(errs.KindFolderClosed, "folder already open")
	}
	f.mu.Unlock()

	conn, err := acquire()
	if err != nil {
		return err
	}
	conn.AttachHandler(f)

	st, err := conn.Select(f.fullName, readOnly)
	if err != nil {
		conn.DetachHandler(f)
		f.pool.Release(conn, nil)
		return err
	}
	if !readOnly && st.Mode == connection.ModeReadOnly {
		// Server forced read-only for a caller that explicitly asked for
		// read-write: surface this distinctly rather than silently
		// downgrading the caller's expectations.
		conn.DetachHandler(f)
		f.pool.Release(conn, nil)
		return errs.New(errs.KindReadOnlyFolder, f.fullName+" is read-only")
	}

	f.mu.Lock()
	f.conn = conn
	f.status = Status{
		Mode: st.Mode, Messages: st.Messages, Recent: st.Recent, Unseen: st.Unseen,
		UIDValidity: st.UIDValidity, UIDNext: st.UIDNext, Flags: st.Flags, PermanentFlags: st.PermanentFlags,
	}
	f.seqCache = make(map[uint32]*Message, st.Messages)
	f.uidCache = make(map[uint32]*Message, st.Messages)
	f.maxSeq = st.Messages
	f.open = true
	f.mu.Unlock()

	conn.ProcessPendingResponses()
	f.emit(Event{Kind: EventOpened})
	return nil
}

// Close issues CLOSE (or, to dodge CLOSE's implicit expunge, re-EXAMINEs
// first) and releases the connection, per §4.6 "Close".
func (f *Folder) Close(expunge bool) error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return errs.New(errs.KindFolderClosed, "folder already closed")
	}
	conn := f.conn
	mode := f.status.Mode
	f.mu.Unlock()

	var err error
	if conn.IsAlive(0) {
		if mode == connection.ModeReadWrite && !expunge {
			if _, rerr := conn.Select(f.fullName, true); rerr != nil {
				err = rerr
			}
		}
		if cerr := conn.CloseMailbox(); cerr != nil && err == nil {
			err = cerr
		}
	}

	conn.DetachHandler(f)
	f.pool.Release(conn, nil)

	f.mu.Lock()
	f.open = false
	f.conn = nil
	f.seqCache = nil
	f.uidCache = nil
	f.mu.Unlock()

	f.emit(Event{Kind: EventClosed})
	return err
}

func (f *Folder) requireOpen() error {
	if !f.IsOpen() {
		return errs.New(errs.KindFolderClosed, "folder is not open")
	}
	return nil
}

// GetMessage returns (creating if necessary) the cached Message at
// seqNum, refreshing via NOOP first if seqNum is beyond the last-known
// maxSeq (the server may have sent an EXISTS we haven't drained yet).
func (f *Folder) GetMessage(seqNum uint32) (*Message, error) {
	if err := f.requireOpen(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	needsRefresh := seqNum > f.maxSeq
	conn := f.conn
	f.mu.Unlock()

	if needsRefresh {
		if err := conn.Noop(); err != nil {
			return nil, err
		}
		conn.ProcessPendingResponses()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seqNum == 0 || seqNum > f.maxSeq {
		return nil, errs.New(errs.KindRangeError, "sequence number out of range")
	}
	if m, ok := f.seqCache[seqNum]; ok {
		return m, nil
	}
	m := &Message{folder: f, SeqNum: seqNum}
	f.seqCache[seqNum] = m
	return m, nil
}

// GetMessages returns the cached/newly-created messages for the
// inclusive range [start, end].
func (f *Folder) GetMessages(start, end uint32) ([]*Message, error) {
	out := make([]*Message, 0, int(end-start)+1)
	for n := start; n <= end; n++ {
		m, err := f.GetMessage(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMessageByUID resolves uid through the UID cache, or issues
// `UID FETCH uid (UID)` to learn its current sequence number.
func (f *Folder) GetMessageByUID(uid uint32) (*Message, error) {
	if err := f.requireOpen(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if m, ok := f.uidCache[uid]; ok {
		f.mu.Unlock()
		return m, nil
	}
	conn := f.conn
	f.mu.Unlock()

	pairs, err := conn.UIDFetchSeqForUID(uid)
	conn.ProcessPendingResponses()
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, errs.New(errs.KindRangeError, "no such UID in this folder")
	}
	m, err := f.GetMessage(pairs[0].SeqNum)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	m.UID = uid
	m.HasUID = true
	f.uidCache[uid] = m
	f.mu.Unlock()
	return m, nil
}

// registerUID adds m to the UID cache under its own UID. Called from
// Message.merge while the caller already holds f.mu (Fetch) or doesn't
// need to (GetMessageByUID sets it directly) — guard with a re-entrant
// lock attempt is unnecessary since Fetch takes the lock itself before
// calling merge.
func (f *Folder) registerUID(m *Message) {
	if f.uidCache == nil {
		f.uidCache = map[uint32]*Message{}
	}
	f.uidCache[m.UID] = m
}

// Fetch implements the §4.6 prefetch algorithm: skip messages whose
// cached state already satisfies profile, issue one compact FETCH for
// the rest, and merge each response into its message.
func (f *Folder) Fetch(messages []*Message, profile *protocol.FetchProfile) error {
	if err := f.requireOpen(); err != nil {
		return err
	}

	f.mu.Lock()
	var unsatisfied []*Message
	for _, m := range messages {
		if m.Expunged {
			continue
		}
		if !m.satisfiesProfile(profile) {
			unsatisfied = append(unsatisfied, m)
		}
	}
	if len(unsatisfied) == 0 {
		f.mu.Unlock()
		return nil
	}
	nums := make([]uint32, len(unsatisfied))
	bySeq := make(map[uint32]*Message, len(unsatisfied))
	for i, m := range unsatisfied {
		nums[i] = m.SeqNum
		bySeq[m.SeqNum] = m
	}
	set := protocol.EncodeMessageSet(nums)
	conn := f.conn
	f.mu.Unlock()

	results, err := conn.Fetch(set, profile)
	if err != nil {
		conn.ProcessPendingResponses()
		return err
	}

	f.mu.Lock()
	for _, r := range results {
		if m, ok := bySeq[r.SeqNum]; ok {
			m.merge(r.Items)
		} else if m, ok := f.seqCache[r.SeqNum]; ok {
			m.merge(r.Items)
		}
	}
	f.mu.Unlock()
	conn.ProcessPendingResponses()
	return nil
}

// SetFlags issues STORE for the given messages and merges the server's
// resulting FETCH responses back into the cache.
func (f *Folder) SetFlags(messages []*Message, flags protocol.FlagSet, add bool) error {
	if err := f.requireOpen(); err != nil {
		return err
	}
	f.mu.Lock()
	if f.status.Mode == connection.ModeReadOnly {
		f.mu.Unlock()
		return errs.New(errs.KindReadOnlyFolder, f.fullName+" is read-only")
	}
	nums := seqNumsOf(messages)
	set := protocol.EncodeMessageSet(nums)
	conn := f.conn
	f.mu.Unlock()

	results, err := conn.Store(set, flags, add, false)
	conn.ProcessPendingResponses()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range results {
		m, ok := f.seqCache[r.SeqNum]
		if !ok {
			continue
		}
		for _, item := range r.Items {
			if item.Kind == protocol.FetchFlagsItem {
				m.Flags = item.Flags
				m.HasFlags = true
			}
		}
	}
	return nil
}

// Expunge issues EXPUNGE and applies the renumbering itself, once per
// expunged sequence number in server order. Conn.Expunge takes the
// untagged EXPUNGE responses out of the pending queue, so Handle never
// sees them and each one is applied exactly once.
func (f *Folder) Expunge() error {
	if err := f.requireOpen(); err != nil {
		return err
	}
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	expunged, err := conn.Expunge()
	for _, s := range expunged {
		f.handleExpunge(s)
	}
	conn.ProcessPendingResponses()
	return err
}

// Search issues SEARCH (or UID SEARCH) and returns the matching sequence
// numbers (or UIDs).
func (f *Folder) Search(terms []*protocol.SearchTerm, uid bool) ([]uint32, error) {
	if err := f.requireOpen(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	nums, err := conn.Search(terms, uid)
	conn.ProcessPendingResponses()
	return nums, err
}

// AppendMessages issues APPEND to this folder's mailbox.
func (f *Folder) AppendMessages(flags protocol.FlagSet, date time.Time, body []byte) error {
	if err := f.requireOpen(); err != nil {
		return err
	}
	f.mu.Lock()
	conn := f.conn
	name := f.fullName
	f.mu.Unlock()
	err := conn.Append(name, flags, date, body)
	conn.ProcessPendingResponses()
	return err
}

// CopyMessages issues COPY <set> dest.
func (f *Folder) CopyMessages(messages []*Message, dest string) error {
	if err := f.requireOpen(); err != nil {
		return err
	}
	f.mu.Lock()
	set := protocol.EncodeMessageSet(seqNumsOf(messages))
	conn := f.conn
	f.mu.Unlock()
	err := conn.Copy(set, dest)
	conn.ProcessPendingResponses()
	return err
}

// Poll issues NOOP and drains pending untagged responses through Handle,
// giving callers a concrete "IDLE-less polling" operation: it reports
// whether anything observable (new/expunged messages, flag changes)
// happened.
func (f *Folder) Poll() (changed bool, err error) {
	if err := f.requireOpen(); err != nil {
		return false, err
	}
	f.mu.Lock()
	conn := f.conn
	before := f.maxSeq
	f.mu.Unlock()

	var sawFlagsChange bool
	f.onPollFlagHook = func() { sawFlagsChange = true }
	defer func() { f.onPollFlagHook = nil }()

	if err := conn.Noop(); err != nil {
		return false, err
	}
	conn.ProcessPendingResponses()

	f.mu.Lock()
	after := f.maxSeq
	f.mu.Unlock()
	return after != before || sawFlagsChange, nil
}

func seqNumsOf(messages []*Message) []uint32 {
	nums := make([]uint32, 0, len(messages))
	for _, m := range messages {
		if !m.Expunged {
			nums = append(nums, m.SeqNum)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
