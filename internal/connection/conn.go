// Package connection implements the per-socket IMAP4rev1 protocol
// driver: handshake (greeting, STARTTLS, authenticate), the
// single-outstanding-command pipeline with its literal-boundary
// continuation protocol, untagged response queuing, and the command
// primitives folders and stores issue.
package connection

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/protocol"
	"github.com/eslider/goimap/sasl"
)

// Options configures Dial.
type Options struct {
	Host string
	Port int

	// ImplicitTLS dials straight into TLS (port 993 convention); when
	// false the connection starts in plaintext and STARTTLS may upgrade
	// it.
	ImplicitTLS bool
	TLSConfig   *tls.Config

	// StartTLS attempts STARTTLS during handshake if the server
	// advertises it and ImplicitTLS is false.
	StartTLS bool

	// Auth mechanisms attempted in order; the first whose name the
	// server advertises via AUTH=<mech> is used. When none matches (or
	// the list is empty), AUTHENTICATE PLAIN and then AUTHENTICATE LOGIN
	// are tried if advertised and not disabled, and finally the LOGIN
	// command unless the server advertises LOGINDISABLED.
	SASLMechanisms []sasl.Mechanism
	Username       string
	Password       string
	DisablePlain   bool
	DisableLogin   bool

	DialTimeout    time.Duration
	CommandTimeout time.Duration

	Debug bool
}

// Conn is one authenticated (or pre-authenticated) socket to an IMAP
// server. All command methods are safe to call from any goroutine, but
// only one command may be outstanding at a time; Conn serializes them
// internally with its mutex.
type Conn struct {
	net        net.Conn
	lineReader *protocol.LineReader
	opts       Options
	log        *Session

	mu         sync.Mutex
	closed     bool
	tagSeq     int64
	state      State
	mode       Mode
	selected   string
	lastAccess time.Time

	capabilities map[string]bool
	authMechs    map[string]bool

	handlers []Handler
	pending  []*protocol.Response
}

// Dial connects, performs the full handshake (greeting, optional
// STARTTLS, authentication), and returns a ready-to-use Conn in the
// Authenticated or Selected... well, Authenticated state (callers SELECT
// a folder afterward).
func Dial(opts Options) (*Conn, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	if opts.DialTimeout == 0 {
		dialer.Timeout = 30 * time.Second
	}

	var netConn net.Conn
	var err error
	if opts.ImplicitTLS {
		netConn, err = tls.DialWithDialer(dialer, "tcp", addr, opts.TLSConfig)
	} else {
		netConn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, err, "dial "+addr)
	}

	sess := NewSession()
	sess.Debug = opts.Debug
	c := &Conn{
		net:          netConn,
		lineReader:   protocol.NewLineReader(netConn, protocol.DefaultMaxLiteralSize),
		opts:         opts,
		log:          sess,
		capabilities: map[string]bool{},
		authMechs:    map[string]bool{},
		lastAccess:   time.Now(),
	}

	if err := c.handshake(); err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

func shortAddr(addr string) string {
	if len(addr) > 8 {
		return addr[:8]
	}
	return addr
}

// handshake runs the greeting → capability → (starttls) → authenticate
// sequence described for the connection state machine.
func (c *Conn) handshake() error {
	line, err := c.lineReader.ReadLine()
	if err != nil {
		return errs.Wrap(errs.KindConnection, err, "reading greeting")
	}
	greeting, err := protocol.ClassifyResponse(line)
	if err != nil {
		return errs.Wrap(errs.KindProtocol, err, "parsing greeting")
	}
	preauth := false
	switch greeting.Status {
	case "OK":
	case "PREAUTH":
		preauth = true
	case "BYE":
		return errs.New(errs.KindConnection, "server sent BYE at connect: "+greeting.Text)
	default:
		return errs.New(errs.KindProtocol, "unexpected greeting: "+greeting.Status)
	}
	if preauth {
		c.state = StateAuthenticated
	}

	if err := c.refreshCapability(); err != nil {
		return err
	}

	if !c.opts.ImplicitTLS && c.opts.StartTLS && c.capabilities["STARTTLS"] {
		if err := c.startTLS(); err != nil {
			return err
		}
		if err := c.refreshCapability(); err != nil {
			return err
		}
	}

	if preauth {
		return nil
	}
	return c.authenticate()
}

func (c *Conn) startTLS() error {
	tag := c.nextTag()
	cmd := protocol.NewCommand(tag, "STARTTLS")
	resp, _, err := c.sendCommandBare(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindConnection, "STARTTLS rejected: "+resp.Text)
	}
	tlsConn := tls.Client(c.net, c.opts.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		return errs.Wrap(errs.KindConnection, err, "TLS handshake")
	}
	c.net = tlsConn
	c.lineReader = protocol.NewLineReader(tlsConn, protocol.DefaultMaxLiteralSize)
	return nil
}

func (c *Conn) refreshCapability() error {
	tag := c.nextTag()
	cmd := protocol.NewCommand(tag, "CAPABILITY")
	resp, untagged, err := c.sendCommandBare(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindConnection, "CAPABILITY failed: "+resp.Text)
	}
	c.capabilities = map[string]bool{}
	c.authMechs = map[string]bool{}
	for _, u := range untagged {
		if u.Label != "CAPABILITY" {
			continue
		}
		caps, err := u.Capability()
		if err != nil {
			return errs.Wrap(errs.KindProtocol, err, "parsing CAPABILITY")
		}
		for _, name := range caps {
			upper := strings.ToUpper(name)
			c.capabilities[upper] = true
			if strings.HasPrefix(upper, "AUTH=") {
				c.authMechs[strings.TrimPrefix(upper, "AUTH=")] = true
			}
		}
	}
	return nil
}

// HasCapability reports whether the server advertised name (case
// folded).
func (c *Conn) HasCapability(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities[strings.ToUpper(name)]
}

func (c *Conn) authenticate() error {
	for _, mech := range c.opts.SASLMechanisms {
		if c.authMechs[strings.ToUpper(mech.Name())] {
			return c.authenticateSASL(mech)
		}
	}
	if !c.opts.DisablePlain && c.authMechs["PLAIN"] {
		return c.authenticateSASL(sasl.Plain{Username: c.opts.Username, Password: c.opts.Password})
	}
	if !c.opts.DisableLogin && c.authMechs["LOGIN"] {
		return c.authenticateSASL(&sasl.Login{Username: c.opts.Username, Password: c.opts.Password})
	}
	if !c.capabilities["LOGINDISABLED"] {
		return c.login(c.opts.Username, c.opts.Password)
	}
	return errs.New(errs.KindAuthentication, "no applicable authentication mechanism advertised")
}

func (c *Conn) login(user, pass string) error {
	tag := c.nextTag()
	cmd := protocol.NewCommand(tag, "LOGIN")
	cmd.Space().AppendString(user).Space().AppendString(pass)
	resp, _, err := c.sendCommandBare(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindAuthentication, "LOGIN failed: "+resp.Text)
	}
	c.state = StateAuthenticated
	return nil
}

func (c *Conn) nextTag() string {
	c.mu.Lock()
	c.tagSeq++
	seq := c.tagSeq
	c.mu.Unlock()
	return fmt.Sprintf("a%04d", seq)
}

// isClosed reports whether the connection has been torn down (I/O
// failure, BYE, or explicit Close).
func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down the socket without sending LOGOUT (used on I/O
// failure or after a server BYE).
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.state = StateLogout
	c.mu.Unlock()
	return c.net.Close()
}

// Logout sends LOGOUT and then closes the socket.
func (c *Conn) Logout() error {
	tag := c.nextTag()
	cmd := protocol.NewCommand(tag, "LOGOUT")
	_, _, err := c.sendCommandBare(cmd)
	c.Close()
	return err
}

// LastAccess returns the time of the connection's last successful
// command completion.
func (c *Conn) LastAccess() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAccess
}

// IsAlive returns true without contacting the server if the connection
// was used within threshold; otherwise it issues a NOOP.
func (c *Conn) IsAlive(threshold time.Duration) bool {
	if c.isClosed() {
		return false
	}
	if time.Since(c.LastAccess()) < threshold {
		return true
	}
	return c.Noop() == nil
}
