// Package goimap is a client-side IMAP4rev1 library (RFC 3501) plus
// common extensions (STARTTLS, SASL AUTHENTICATE, NAMESPACE, QUOTA, ACL,
// UIDPLUS, IDLE-less polling). Store is the top-level entry point: it
// owns a connection pool and every open Folder, the way the teacher's
// internal/sync/imap.Sync owns one dialed connection for the duration of
// a sync run, generalized here to a long-lived, concurrency-safe pool.
package goimap

import (
	"strings"
	"sync"

	"github.com/eslider/goimap/internal/connection"
	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/folder"
	"github.com/eslider/goimap/internal/pool"
	"github.com/eslider/goimap/internal/protocol"
	"github.com/eslider/goimap/sasl"
)

// Folder and Message are re-exported from internal/folder so library
// consumers never need to import an internal package to hold a
// reference returned by Store.
type Folder = folder.Folder
type Message = folder.Message
type FolderEvent = folder.Event

// Store is the authenticated root of the mail-store API: open folders,
// list/search/fetch/copy/append/expunge messages, and the
// capability-gated NAMESPACE/QUOTA/ACL calls.
type Store struct {
	cfg Config
	log *connection.Session
	pool *pool.Pool

	mu           sync.Mutex
	closed       bool
	capabilities map[string]bool
	folders      map[string]*Folder
	onAlert      func(string)
}

// Connect dials, handshakes, and authenticates one connection eagerly
// (so bad credentials surface synchronously), then builds the pool the
// rest of the store's operations borrow from.
func Connect(cfg Config) (*Store, error) {
	log := connection.NewSession()
	log.Debug = cfg.Debug

	dial := func() (*connection.Conn, error) {
		return connection.Dial(connOptions(cfg))
	}

	first, err := dial()
	if err != nil {
		return nil, err
	}

	p := pool.New(pool.Config{
		Size:                     cfg.ConnectionPoolSize,
		Timeout:                  cfg.ConnectionPoolTimeout,
		DedicatedStoreConnection: cfg.SeparateStoreConnection,
	}, dial, log)
	p.Seed(first, cfg.SeparateStoreConnection)

	caps, err := first.Capability()
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:          cfg,
		log:          log,
		pool:         p,
		capabilities: caps,
		folders:      map[string]*Folder{},
	}
	first.AttachHandler((*storeHandler)(s))
	return s, nil
}

func connOptions(cfg Config) connection.Options {
	var mechs []sasl.Mechanism
	if cfg.SASLEnable {
		mechs = []sasl.Mechanism{
			sasl.Plain{AuthzID: cfg.SASLAuthorizationID, Username: cfg.Username, Password: cfg.Password},
			&sasl.Login{Username: cfg.Username, Password: cfg.Password},
		}
	}
	return connection.Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ImplicitTLS:    cfg.ImplicitTLS,
		TLSConfig:      cfg.TLSConfig,
		StartTLS:       cfg.StartTLSEnable,
		SASLMechanisms: mechs,
		Username:       cfg.Username,
		Password:       cfg.Password,
		DisablePlain:   cfg.AuthPlainDisable,
		DisableLogin:   cfg.AuthLoginDisable,
		Debug:          cfg.Debug,
	}
}

// HasCapability reports whether the store's canonical (first-connection)
// capability set advertises name.
func (s *Store) HasCapability(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities[strings.ToUpper(name)]
}

// OnAlert registers a sink for untagged "* OK [ALERT] ..." notices.
func (s *Store) OnAlert(fn func(message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAlert = fn
}

// GetFolder returns the (possibly not-yet-open) Folder for name, reusing
// a previously returned handle so repeated calls share cache state.
func (s *Store) GetFolder(name string) *Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.folders[name]; ok {
		return f
	}
	f := folder.New(name, s.pool)
	s.folders[name] = f
	return f
}

// GetDefaultFolder returns the Folder for "INBOX".
func (s *Store) GetDefaultFolder() *Folder { return s.GetFolder("INBOX") }

// Open acquires a connection and SELECTs/EXAMINEs f's mailbox, wiring
// the pool's acquire function through so Folder never has to know about
// *pool.Pool directly.
func (s *Store) Open(f *Folder, readOnly bool) error {
	return f.Open(s.pool.GetFolderConnection, readOnly)
}

// FolderSnapshot is a read-only view of one open folder's bookkeeping
// state, for introspection (see internal/debugserver).
type FolderSnapshot struct {
	Name        string
	Open        bool
	Mode        string
	Messages    uint32
	Recent      uint32
	UIDValidity uint32
	UIDNext     uint32
}

// PoolSnapshot is a read-only view of the connection pool's capacity.
type PoolSnapshot struct {
	Capacity  int
	InUse     int
}

// Snapshot reports the store's pool capacity and every folder it has
// ever returned from GetFolder, open or not.
func (s *Store) Snapshot() (PoolSnapshot, []FolderSnapshot) {
	s.mu.Lock()
	folders := make([]*Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, f)
	}
	s.mu.Unlock()

	out := make([]FolderSnapshot, 0, len(folders))
	for _, f := range folders {
		st := f.Status()
		out = append(out, FolderSnapshot{
			Name: f.Name(), Open: f.IsOpen(), Mode: st.Mode.String(),
			Messages: st.Messages, Recent: st.Recent,
			UIDValidity: st.UIDValidity, UIDNext: st.UIDNext,
		})
	}
	return PoolSnapshot{Capacity: s.cfg.ConnectionPoolSize, InUse: s.pool.Active()}, out
}

// List issues LIST ref pattern against a borrowed connection.
func (s *Store) List(ref, pattern string) ([]protocol.ListEntry, error) {
	conn, err := s.pool.GetFolderConnection()
	if err != nil {
		return nil, err
	}
	defer func() { conn.ProcessPendingResponses(); s.pool.Release(conn, nil) }()
	return conn.List(ref, pattern)
}

// ListSubscribed issues LSUB ref pattern.
func (s *Store) ListSubscribed(ref, pattern string) ([]protocol.ListEntry, error) {
	conn, err := s.pool.GetFolderConnection()
	if err != nil {
		return nil, err
	}
	defer func() { conn.ProcessPendingResponses(); s.pool.Release(conn, nil) }()
	return conn.LSub(ref, pattern)
}

// CreateFolder, DeleteFolder, RenameFolder, Subscribe, Unsubscribe issue
// their matching mailbox-management command against a borrowed
// connection.
func (s *Store) CreateFolder(name string) error { return s.withConn(func(c *connection.Conn) error { return c.CreateMailbox(name) }) }
func (s *Store) DeleteFolder(name string) error { return s.withConn(func(c *connection.Conn) error { return c.DeleteMailbox(name) }) }
func (s *Store) RenameFolder(oldName, newName string) error {
	return s.withConn(func(c *connection.Conn) error { return c.RenameMailbox(oldName, newName) })
}
func (s *Store) Subscribe(name string) error   { return s.withConn(func(c *connection.Conn) error { return c.Subscribe(name) }) }
func (s *Store) Unsubscribe(name string) error { return s.withConn(func(c *connection.Conn) error { return c.Unsubscribe(name) }) }

func (s *Store) withConn(fn func(*connection.Conn) error) error {
	conn, err := s.pool.GetFolderConnection()
	if err != nil {
		return err
	}
	defer func() { conn.ProcessPendingResponses(); s.pool.Release(conn, nil) }()
	return fn(conn)
}

// NamespaceDescriptor is re-exported from internal/protocol for callers
// of GetPersonalNamespaces et al.
type NamespaceDescriptor = protocol.NamespaceDescriptor

func (s *Store) namespace() (personal, other, shared []NamespaceDescriptor, err error) {
	conn, _, rerr := s.pool.GetStoreConnection()
	if rerr != nil {
		return nil, nil, nil, rerr
	}
	defer func() { conn.ProcessPendingResponses(); s.pool.Release(conn, nil) }()
	return conn.Namespace()
}

// GetPersonalNamespaces returns the server's personal namespace list (or
// empty, not an error, if NAMESPACE isn't advertised).
func (s *Store) GetPersonalNamespaces() ([]NamespaceDescriptor, error) {
	p, _, _, err := s.namespace()
	return p, err
}

// GetUserNamespaces returns the server's other-users namespace list.
func (s *Store) GetUserNamespaces() ([]NamespaceDescriptor, error) {
	_, o, _, err := s.namespace()
	return o, err
}

// GetSharedNamespaces returns the server's shared namespace list.
func (s *Store) GetSharedNamespaces() ([]NamespaceDescriptor, error) {
	_, _, sh, err := s.namespace()
	return sh, err
}

// QuotaResource is re-exported from internal/protocol.
type QuotaResource = protocol.QuotaResource

// GetQuota issues GETQUOTA root, gated on the QUOTA capability.
func (s *Store) GetQuota(root string) ([]QuotaResource, error) {
	var out []QuotaResource
	err := s.withConn(func(c *connection.Conn) error {
		res, err := c.GetQuota(root)
		out = res
		return err
	})
	return out, err
}

// SetQuota issues SETQUOTA root (resource limit ...), gated on the QUOTA
// capability. The original implementation this library is modeled on
// emitted GETQUOTA here by mistake; this sends the correct verb.
func (s *Store) SetQuota(root string, limits map[string]uint64) error {
	return s.withConn(func(c *connection.Conn) error { return c.SetQuota(root, limits) })
}

// Close closes every open folder, then shuts down the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.New(errs.KindStoreClosed, "store already closed")
	}
	s.closed = true
	folders := make([]*Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, f)
	}
	s.mu.Unlock()

	for _, f := range folders {
		if f.IsOpen() {
			f.Close(false)
		}
	}
	s.pool.Shutdown()
	return nil
}

// storeHandler adapts *Store to connection.Handler without exposing
// Handle on the public Store type (callers have no business invoking
// it). ALERT and unsolicited status notices are logged/broadcast; BYE on
// the store's own connection triggers Close.
type storeHandler Store

func (h *storeHandler) Handle(r *protocol.Response) bool {
	s := (*Store)(h)
	if r.Kind != protocol.ResponseUntagged {
		return false
	}
	switch r.Status {
	case "BYE":
		go s.Close()
		return true
	case "OK", "NO", "BAD":
		if r.Code != nil && r.Code.Name == "ALERT" {
			s.mu.Lock()
			cb := s.onAlert
			s.mu.Unlock()
			if cb != nil {
				cb(r.Text)
			}
		} else if s.log != nil {
			s.log.Debugf("store: unsolicited %s %s", r.Status, r.Text)
		}
		return true
	}
	return false
}
