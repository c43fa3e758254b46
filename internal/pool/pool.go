// Package pool implements the fixed-size connection pool described for
// the store: bounded concurrent connections, optional dedicated store
// connection, blocking acquire with timeout, liveness-checked release,
// and stale eviction. It mirrors the retry/backoff shape of the
// teacher's internal/sync/imap.Sync dial loop, generalized to a shared
// pool instead of one connection per sync run.
package pool

import (
	"sync"
	"time"

	"github.com/eslider/goimap/internal/connection"
	"github.com/eslider/goimap/internal/errs"
)

// maxConnectionRetries bounds how many rounds GetConnection makes before
// giving up with a Timeout error; a failed dial/authenticate and a wait
// for a release each use up one round.
const maxConnectionRetries = 3

// maxPoolWait is how long a blocked acquirer waits on the pool condition
// in one round before re-checking.
const maxPoolWait = 500 * time.Millisecond

// Dialer creates and fully authenticates one new connection. It is the
// pool's only way of growing its connection set.
type Dialer func() (*connection.Conn, error)

// Config mirrors §4.5's pool configuration.
type Config struct {
	Size                     int
	Timeout                  time.Duration
	DedicatedStoreConnection bool
}

// Pool bounds a shared set of authenticated connections.
type Pool struct {
	cfg    Config
	dial   Dialer
	log    *connection.Session
	size   int // effective size, cfg.Size (+1 if DedicatedStoreConnection)

	mu        sync.Mutex
	cond      *sync.Cond
	all       []*connection.Conn
	available []*connection.Conn
	pending   int // dials reserved but not yet registered into all, see tryAcquireLocked
	closed    bool
	storeConn *connection.Conn
}

// New builds a Pool. dial is called (possibly concurrently with pool
// internals, but never while holding the pool mutex) whenever the pool
// needs to grow.
func New(cfg Config, dial Dialer, log *connection.Session) *Pool {
	size := cfg.Size
	if size < 1 {
		size = 1
	}
	if cfg.DedicatedStoreConnection {
		size++
	}
	p := &Pool{cfg: cfg, dial: dial, log: log, size: size}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// GetStoreConnection returns the dedicated store connection if the pool
// was configured for one (reserved is true), otherwise it routes through
// the normal acquire path and the caller is responsible for attaching
// and detaching its own untagged-response handler around the borrow.
func (p *Pool) GetStoreConnection() (c *connection.Conn, reserved bool, err error) {
	if !p.cfg.DedicatedStoreConnection {
		c, err = p.GetConnection()
		return c, false, err
	}
	p.mu.Lock()
	if p.storeConn != nil && !p.closed {
		c := p.storeConn
		p.mu.Unlock()
		return c, true, nil
	}
	if p.closed {
		p.mu.Unlock()
		return nil, true, errs.New(errs.KindStoreClosed, "pool is shut down")
	}
	p.mu.Unlock()

	c, err = p.createAndRegister()
	if err != nil {
		return nil, true, err
	}
	p.mu.Lock()
	if p.storeConn == nil {
		p.storeConn = c
	} else {
		// Lost a race with a concurrent first caller; keep theirs, drop ours.
		existing := p.storeConn
		p.mu.Unlock()
		c.Close()
		return existing, true, nil
	}
	p.mu.Unlock()
	return c, true, nil
}

// GetFolderConnection routes to GetConnection; folders always borrow
// from the shared pool, never the dedicated store slot.
func (p *Pool) GetFolderConnection() (*connection.Conn, error) {
	return p.GetConnection()
}

// GetConnection implements the bounded acquire loop: reuse a live idle
// connection, grow the pool if under capacity, or wait for a release.
func (p *Pool) GetConnection() (*connection.Conn, error) {
	for attempt := 0; attempt < maxConnectionRetries; attempt++ {
		c, grow, err := p.tryAcquireLocked()
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
		if grow {
			c, err := p.createAndRegister()
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
			if err != nil {
				p.cond.Broadcast()
				if p.log != nil {
					p.log.Printf("pool: dial attempt %d failed: %v", attempt+1, err)
				}
				continue
			}
			return c, nil
		}
		// Pool is at capacity; wait for a release (or the timeout, so a
		// stuck state still re-checks available/all periodically) and
		// retry acquisition.
		p.mu.Lock()
		if !p.closed {
			timer := time.AfterFunc(maxPoolWait, p.cond.Broadcast)
			p.cond.Wait()
			timer.Stop()
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, errs.New(errs.KindStoreClosed, "pool is shut down")
		}
	}
	return nil, errs.New(errs.KindTimeout, "pool exhausted after retries")
}

// tryAcquireLocked walks available connections for a live one and
// reports whether the caller should instead dial a fresh one (grow) or
// wait. Growing reserves a slot (p.pending) before releasing the lock,
// so two concurrent callers can never both observe spare capacity and
// both dial: the reservation is only cleared once the dial finishes (by
// createAndRegister on success, or by the caller on failure), never
// transiently overshooting the configured size.
func (p *Pool) tryAcquireLocked() (c *connection.Conn, grow bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, errs.New(errs.KindStoreClosed, "pool is shut down")
	}
	for len(p.available) > 0 {
		cand := p.available[0]
		p.available = p.available[1:]
		if cand.IsAlive(p.cfg.Timeout) {
			return cand, false, nil
		}
		p.removeFromAllLocked(cand)
		cand.Close()
	}
	if len(p.all)+p.pending < p.size {
		p.pending++
		return nil, true, nil
	}
	return nil, false, nil
}

// Seed registers an already-dialed, already-authenticated connection
// (typically the one Store.Connect dials eagerly so bad credentials
// fail synchronously) as belonging to the pool. If asStore is true and
// the pool is configured for a dedicated store connection, it becomes
// that reservation; otherwise it is returned to the available set as if
// released.
func (p *Pool) Seed(c *connection.Conn, asStore bool) {
	p.mu.Lock()
	p.all = append(p.all, c)
	if asStore && p.cfg.DedicatedStoreConnection {
		p.storeConn = c
		p.mu.Unlock()
		return
	}
	p.available = append(p.available, c)
	p.mu.Unlock()
}

func (p *Pool) createAndRegister() (*connection.Conn, error) {
	c, err := p.dial()
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, err, "dialing pool connection")
	}
	p.mu.Lock()
	p.all = append(p.all, c)
	p.mu.Unlock()
	return c, nil
}

// Release returns c to the pool. A non-nil detach (the store handler, for
// a connection borrowed via GetStoreConnection's non-dedicated path) is
// removed from c's handler chain before the connection is reused.
func (p *Pool) Release(c *connection.Conn, detach connection.Handler) {
	if detach != nil {
		c.DetachHandler(detach)
	}
	c.ProcessPendingResponses()

	p.mu.Lock()
	defer p.mu.Unlock()

	if c == p.storeConn {
		// The dedicated store connection is never returned to the shared
		// pool; it stays checked out to the store for its whole lifetime.
		if c.IsAlive(0) {
			return
		}
		p.storeConn = nil
		p.removeFromAllLocked(c)
		c.Close()
		return
	}

	if !c.IsAlive(0) {
		p.removeFromAllLocked(c)
		c.Close()
		p.cond.Signal()
		return
	}

	if len(p.available) < p.size {
		p.available = append(p.available, c)
		p.evictStaleLocked()
		p.cond.Signal()
		return
	}
	// Pool over-allocated under contention; drop the surplus connection.
	p.removeFromAllLocked(c)
	c.Close()
	p.cond.Signal()
}

// evictStaleLocked closes and drops idle connections that have exceeded
// the pool timeout. Must be called with p.mu held. Never touches a
// connection currently checked out (those aren't in p.available).
func (p *Pool) evictStaleLocked() {
	if p.cfg.Timeout <= 0 {
		return
	}
	fresh := p.available[:0]
	for _, c := range p.available {
		if time.Since(c.LastAccess()) > p.cfg.Timeout {
			p.removeFromAllLocked(c)
			c.Close()
			continue
		}
		fresh = append(fresh, c)
	}
	p.available = fresh
}

func (p *Pool) removeFromAllLocked(c *connection.Conn) {
	for i, existing := range p.all {
		if existing == c {
			p.all = append(p.all[:i], p.all[i+1:]...)
			return
		}
	}
}

// Active reports the current total connection count (checked out + idle
// + the dedicated store connection).
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Shutdown closes every connection the pool knows about and wakes any
// blocked acquirers with StoreClosed.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	all := p.all
	p.all = nil
	p.available = nil
	store := p.storeConn
	p.storeConn = nil
	p.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	if store != nil {
		store.Close()
	}
	p.cond.Broadcast()
}
