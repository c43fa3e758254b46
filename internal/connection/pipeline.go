package connection

import (
	"time"

	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/protocol"
)

// runCommand holds the connection mutex for the full send→tagged-reply
// cycle: it writes cmd's segments (waiting for a server continuation
// before each literal segment), then reads response lines until the
// matching tagged completion, queuing every untagged response it sees
// along the way. It never touches the handler chain; callers pull what
// they need out of the pending queue with TakePending immediately after.
func (c *Conn) runCommand(cmd *protocol.Command) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errs.New(errs.KindConnection, "connection is closed")
	}

	segments := cmd.Segments()
	for i, seg := range segments {
		if seg.IsLiteral && i > 0 {
			if err := c.awaitContinuationLocked(); err != nil {
				return nil, err
			}
		}
		if _, err := c.net.Write(seg.Data); err != nil {
			c.closeLocked()
			return nil, errs.Wrap(errs.KindConnection, err, "writing command")
		}
	}

	if c.opts.CommandTimeout > 0 {
		c.net.SetReadDeadline(time.Now().Add(c.opts.CommandTimeout))
		defer c.net.SetReadDeadline(time.Time{})
	}

	for {
		line, err := c.lineReader.ReadLine()
		if err != nil {
			c.closeLocked()
			return nil, errs.Wrap(errs.KindConnection, err, "reading response")
		}
		resp, err := protocol.ClassifyResponse(line)
		if err != nil {
			c.closeLocked()
			return nil, errs.Wrap(errs.KindProtocol, err, "classifying response")
		}
		switch resp.Kind {
		case protocol.ResponseUntagged:
			if resp.Status == "BYE" {
				c.lastAccess = time.Now()
				c.pushPending(resp)
				c.closeLocked()
				return nil, errs.New(errs.KindConnection, "server sent BYE: "+resp.Text)
			}
			c.pushPending(resp)
		case protocol.ResponseContinuation:
			// Spurious continuation outside a literal wait; ignore.
		case protocol.ResponseTagged:
			c.lastAccess = time.Now()
			switch resp.Status {
			case "OK":
				return resp, nil
			case "NO":
				return resp, errs.New(errs.KindCommandFailed, resp.Text)
			case "BAD":
				return resp, errs.New(errs.KindInvalidCommand, resp.Text)
			default:
				return resp, errs.New(errs.KindProtocol, "unexpected tagged status "+resp.Status)
			}
		}
	}
}

// awaitContinuationLocked reads lines until a continuation arrives,
// queuing any untagged response and aborting with CommandFailed if a
// tagged NO/BAD arrives before the literal boundary is reached.
func (c *Conn) awaitContinuationLocked() error {
	for {
		line, err := c.lineReader.ReadLine()
		if err != nil {
			c.closeLocked()
			return errs.Wrap(errs.KindConnection, err, "reading continuation")
		}
		resp, err := protocol.ClassifyResponse(line)
		if err != nil {
			c.closeLocked()
			return errs.Wrap(errs.KindProtocol, err, "classifying continuation")
		}
		switch resp.Kind {
		case protocol.ResponseContinuation:
			return nil
		case protocol.ResponseUntagged:
			c.pushPending(resp)
		case protocol.ResponseTagged:
			if resp.Status == "NO" || resp.Status == "BAD" {
				return errs.New(errs.KindCommandFailed, "command aborted before literal: "+resp.Text)
			}
			return errs.New(errs.KindProtocol, "unexpected tagged response mid-command")
		}
	}
}

func (c *Conn) closeLocked() {
	c.closed = true
	c.state = StateLogout
	c.net.Close()
}

// sendCommandBare runs cmd and reports the response without touching
// the pending queue contract beyond what runCommand already does; used
// during handshake before any handler is attached.
func (c *Conn) sendCommandBare(cmd *protocol.Command) (*protocol.Response, []*protocol.Response, error) {
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(func(*protocol.Response) bool { return true })
	return resp, untagged, err
}

// Noop issues NOOP, which triggers delivery of any pending untagged
// responses the server has been holding but doesn't claim anything
// itself: everything it surfaces stays queued for the handler chain.
func (c *Conn) Noop() error {
	cmd := protocol.NewCommand(c.nextTag(), "NOOP")
	_, err := c.runCommand(cmd)
	return err
}

