package connection

import (
	"encoding/base64"
	"time"

	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/protocol"
	"github.com/eslider/goimap/sasl"
)

// authenticateSASL drives the `AUTHENTICATE <mech>` continuation loop:
// the server sends `+ <base64>` challenges and the client replies with
// `base64(mech.Evaluate(challenge))` until a tagged OK or NO arrives.
// This stays under the connection mutex for the whole exchange, per the
// documented design of SASL as a single multi-step command.
func (c *Conn) authenticateSASL(mech sasl.Mechanism) error {
	tag := c.nextTag()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.New(errs.KindConnection, "connection is closed")
	}

	cmd := protocol.NewCommand(tag, "AUTHENTICATE")
	cmd.Space().AppendAtom(mech.Name())
	segments := cmd.Segments()
	for _, seg := range segments {
		if _, err := c.net.Write(seg.Data); err != nil {
			c.closeLocked()
			return errs.Wrap(errs.KindConnection, err, "writing AUTHENTICATE")
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
			return errs.Wrap(errs.KindConnection, err, "reading AUTHENTICATE response")
		}
		resp, err := protocol.ClassifyResponse(line)
		if err != nil {
			c.closeLocked()
			return errs.Wrap(errs.KindProtocol, err, "classifying AUTHENTICATE response")
		}
		switch resp.Kind {
		case protocol.ResponseUntagged:
			c.pushPending(resp)
		case protocol.ResponseContinuation:
			var challenge []byte
			if resp.Text != "" {
				challenge, err = base64.StdEncoding.DecodeString(resp.Text)
				if err != nil {
					return errs.Wrap(errs.KindProtocol, err, "decoding SASL challenge")
				}
			}
			reply, err := mech.Evaluate(challenge)
			if err != nil {
				return errs.Wrap(errs.KindAuthentication, err, "evaluating SASL challenge")
			}
			encoded := base64.StdEncoding.EncodeToString(reply)
			if _, err := c.net.Write([]byte(encoded + "\r\n")); err != nil {
				c.closeLocked()
				return errs.Wrap(errs.KindConnection, err, "writing SASL response")
			}
		case protocol.ResponseTagged:
			c.lastAccess = time.Now()
			if resp.Status == "OK" {
				c.state = StateAuthenticated
				return nil
			}
			return errs.New(errs.KindAuthentication, "AUTHENTICATE "+mech.Name()+" failed: "+resp.Text)
		}
	}
}
