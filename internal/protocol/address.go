package protocol

import "github.com/rotisserie/eris"

// Address is one entry of an ENVELOPE address list: either a mailbox
// (Mailbox+Host set) or, when GroupName is non-empty, the start of an
// RFC 2822 group whose Members follow it in the flattened list the server
// sends (the tokenizer-level ReadAddressList call collapses the group
// start/member/terminator triad into one Address with Members populated).
type Address struct {
	Personal  string
	Routing   string
	Mailbox   string
	Host      string
	GroupName string   // set when this Address represents a group
	Members   []Address // populated only when GroupName is set
}

// String renders the address the way it would appear in an RFC 2822
// header: `Personal <routing:mailbox@host>` or a group's
// `name: m1, m2;` form.
func (a Address) String() string {
	if a.GroupName != "" {
		s := a.GroupName + ": "
		for i, m := range a.Members {
			if i > 0 {
				s += ", "
			}
			s += m.String()
		}
		return s + ";"
	}
	addr := a.Mailbox
	if a.Routing != "" {
		addr = a.Routing + ":" + addr
	}
	if a.Host != "" {
		addr = addr + "@" + a.Host
	}
	if a.Personal != "" {
		return a.Personal + " <" + addr + ">"
	}
	return addr
}

// readAddressTuple reads one `(personal routing mailbox host)` 4-tuple.
// A fully-NIL tuple (group terminator) returns ok=false.
func (t *Tokenizer) readAddressTuple() (personal, routing, mailbox, host string, hasMailbox, hasHost bool, err error) {
	if _, err = t.expect(TokenLParen); err != nil {
		return
	}
	var ok bool
	if personal, ok, err = t.ReadStringOrNil(false); err != nil {
		return
	}
	_ = ok
	if routing, _, err = t.ReadStringOrNil(false); err != nil {
		return
	}
	if mailbox, hasMailbox, err = t.ReadStringOrNil(false); err != nil {
		return
	}
	if host, hasHost, err = t.ReadStringOrNil(false); err != nil {
		return
	}
	if _, err = t.expect(TokenRParen); err != nil {
		return
	}
	return
}

// ReadAddress reads a single address tuple and applies the group-start /
// group-member / group-terminator rules of §4.2. It is normally called
// from ReadAddressList, which needs to look ahead across tuples to collect
// group members; ReadAddress exists for callers that know they are reading
// exactly one non-group address.
func (t *Tokenizer) ReadAddress() (Address, error) {
	personal, routing, mailbox, host, hasMailbox, hasHost, err := t.readAddressTuple()
	if err != nil {
		return Address{}, err
	}
	if !hasHost && hasMailbox {
		return Address{GroupName: mailbox}, nil
	}
	if !hasHost && !hasMailbox {
		return Address{}, eris.Wrap(ErrProtocol, "unexpected group terminator")
	}
	return Address{Personal: personal, Routing: routing, Mailbox: mailbox, Host: host}, nil
}

// ReadAddressList reads a parenthesized list of address tuples, collapsing
// RFC 2822 groups (a tuple with host=NIL,mailbox!=NIL starts a group; a
// tuple with both NIL terminates it) into a single Address per §4.2.
func (t *Tokenizer) ReadAddressList() ([]Address, error) {
	tok, err := t.Peek(true, false)
	if err != nil {
		return nil, err
	}
	if tok.Type == TokenNil {
		t.Next(true, false)
		return nil, nil
	}
	if _, err := t.expect(TokenLParen); err != nil {
		return nil, err
	}

	var out []Address
	var group *Address

	for {
		peek, err := t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if peek.Type == TokenRParen {
			t.Next(false, false)
			break
		}

		personal, routing, mailbox, host, hasMailbox, hasHost, err := t.readAddressTuple()
		if err != nil {
			return nil, err
		}

		switch {
		case !hasHost && hasMailbox:
			// Group start.
			g := Address{GroupName: mailbox}
			out = append(out, g)
			group = &out[len(out)-1]
		case !hasHost && !hasMailbox:
			// Group terminator.
			group = nil
		default:
			addr := Address{Personal: personal, Routing: routing, Mailbox: mailbox, Host: host}
			if group != nil {
				group.Members = append(group.Members, addr)
			} else {
				out = append(out, addr)
			}
		}
	}
	return out, nil
}
