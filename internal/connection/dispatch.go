package connection

import "github.com/eslider/goimap/internal/protocol"

// Handler claims (and reacts to) queued untagged responses at a command
// release point. Handle returns true if it claimed r, stopping dispatch
// for that response; an unclaimed response is simply dropped, since
// anything a caller cares about was already pulled out of the pending
// queue by the command primitive that produced it.
type Handler interface {
	Handle(r *protocol.Response) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r *protocol.Response) bool

func (f HandlerFunc) Handle(r *protocol.Response) bool { return f(r) }

// AttachHandler appends h to the end of the handler chain. Folder
// handlers are attached for as long as the folder is open; the store
// handler is attached for the lifetime of a store-dedicated connection.
func (c *Conn) AttachHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// DetachHandler removes the first occurrence of h from the chain.
func (c *Conn) DetachHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.handlers {
		if existing == h {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return
		}
	}
}

// pushPending appends an untagged response to the pending queue. Must be
// called with c.mu held (it is only ever called from inside the command
// pipeline, which already holds the lock for the command's duration).
func (c *Conn) pushPending(r *protocol.Response) {
	c.pending = append(c.pending, r)
}

// TakePending removes and returns every pending response for which match
// returns true, preserving relative order, and leaves the rest queued.
// Command primitives use this immediately after a command completes to
// harvest the untagged responses that belong to them.
func (c *Conn) TakePending(match func(*protocol.Response) bool) []*protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	var taken, kept []*protocol.Response
	for _, r := range c.pending {
		if match(r) {
			taken = append(taken, r)
		} else {
			kept = append(kept, r)
		}
	}
	c.pending = kept
	return taken
}

// ProcessPendingResponses atomically detaches the pending queue and fans
// each entry out through the handler chain, stopping at the first
// handler that claims it. This is the only place unsolicited untagged
// responses (EXISTS, EXPUNGE, RECENT, BYE, ALERT, ...) reach application
// code, and it MUST be called at command-release points only — never
// from inside the read loop — so EXPUNGE renumbering happens under the
// folder lock before any later command can misinterpret a sequence
// number.
func (c *Conn) ProcessPendingResponses() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()

	for _, r := range batch {
		for _, h := range handlers {
			if h.Handle(r) {
				break
			}
		}
	}
}

func labelIs(label string) func(*protocol.Response) bool {
	return func(r *protocol.Response) bool { return r.Label == label }
}
