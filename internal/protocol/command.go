package protocol

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// imapDateFormat is the date-only form used in APPEND's optional internal
// date and in SEARCH date criteria (SINCE, BEFORE, SENTON, ...).
const imapDateFormat = "02-Jan-2006"

// imapDateTimeFormat is the full internal-date form, quoted on the wire.
const imapDateTimeFormat = "02-Jan-2006 15:04:05 -0700"

// CommandSegment is one piece of a Command's wire encoding. A literal
// segment starts with a literal payload; it is written only after the
// segment before it (which ends in the `{N}\r\n` marker) has been sent and
// the server has answered with a continuation response.
type CommandSegment struct {
	Data      []byte
	IsLiteral bool
}

// Command builds one client command line, possibly spanning several
// segments when it contains literal arguments. A command with k literals
// encodes as k+1 segments: the first runs up to the first `{N}` marker,
// and each later one starts with a literal payload and runs up to the next
// marker or the closing CRLF. The sender must read a "+" continuation from
// the server before writing each segment after the first.
type Command struct {
	tag      string
	current  bytes.Buffer
	segments []CommandSegment
}

// NewCommand starts a command with the given tag and verb ("LOGIN",
// "SELECT", "UID FETCH", ...).
func NewCommand(tag, verb string) *Command {
	c := &Command{tag: tag}
	c.current.WriteString(tag)
	c.current.WriteByte(' ')
	c.current.WriteString(verb)
	return c
}

// Tag returns the command's tag.
func (c *Command) Tag() string { return c.tag }

// Space writes a single separating space.
func (c *Command) Space() *Command {
	c.current.WriteByte(' ')
	return c
}

// Raw writes s verbatim, unescaped and unquoted. Used for already-encoded
// syntax such as a mailbox name, a message sequence set, or a section
// name produced by BodySection.String.
func (c *Command) Raw(s string) *Command {
	c.current.WriteString(s)
	return c
}

// AppendAtom writes s as a bare ATOM with no escaping.
func (c *Command) AppendAtom(s string) *Command {
	c.current.WriteString(s)
	return c
}

// AppendQuoted writes s as a quoted string, backslash-escaping `"` and
// `\`.
func (c *Command) AppendQuoted(s string) *Command {
	c.current.WriteByte('"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '"' || b == '\\' {
			c.current.WriteByte('\\')
		}
		c.current.WriteByte(b)
	}
	c.current.WriteByte('"')
	return c
}

// AppendLiteral ends the current segment with a `{N}` marker and queues
// data as a literal segment that must wait for a server continuation
// before being sent.
func (c *Command) AppendLiteral(data []byte) *Command {
	fmt.Fprintf(&c.current, "{%d}\r\n", len(data))
	c.flushCurrent()
	c.segments = append(c.segments, CommandSegment{Data: data, IsLiteral: true})
	return c
}

func (c *Command) flushCurrent() {
	c.segments = append(c.segments, CommandSegment{Data: append([]byte(nil), c.current.Bytes()...)})
	c.current.Reset()
}

// stringForm is the chosen wire encoding for AppendString's argument.
type stringForm int

const (
	formAtom stringForm = iota
	formQuoted
	formLiteral
)

// classifyStringForm picks ATOM for plain identifier-like text, QUOTED
// for text containing spaces or other atom-breaking bytes (but no
// CR/LF), and LITERAL for anything containing CR/LF, NUL, 8-bit bytes,
// or exceeding a practical single-line length — the last bucket also
// covers full message bodies passed to AppendString.
func classifyStringForm(s string) stringForm {
	if s == "" {
		return formQuoted
	}
	needsQuote := false
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\r' || b == '\n' || b == 0 || b >= 0x80 {
			return formLiteral
		}
		if b < 0x20 || b == 0x7f {
			needsQuote = true
		}
		if isSpace(b) || strings.IndexByte(atomDelimiters, b) >= 0 || b == ']' {
			needsQuote = true
		}
	}
	if len(s) > 1024 {
		return formLiteral
	}
	if needsQuote {
		return formQuoted
	}
	return formAtom
}

// AppendString writes s in whichever of ATOM, QUOTEDSTRING, or LITERAL
// form the wire requires, choosing automatically via classifyStringForm.
func (c *Command) AppendString(s string) *Command {
	switch classifyStringForm(s) {
	case formAtom:
		return c.AppendAtom(s)
	case formQuoted:
		return c.AppendQuoted(s)
	default:
		return c.AppendLiteral([]byte(s))
	}
}

// AppendMailbox writes a mailbox name, modified-UTF-7 encoding it first.
// Mailbox names round-trip through AppendString's auto-selection once
// encoded, since the encoded form is pure ASCII.
func (c *Command) AppendMailbox(name string) *Command {
	encoded, err := EncodeMailboxUTF7(name)
	if err != nil {
		encoded = name
	}
	return c.AppendString(encoded)
}

// AppendDate writes t as a quoted IMAP date-time, for APPEND's optional
// internal date argument.
func (c *Command) AppendDate(t time.Time) *Command {
	return c.AppendQuoted(t.Format(imapDateTimeFormat))
}

// AppendSearchDate writes t as a bare, unquoted date (SINCE, BEFORE,
// SENTON, ...); RFC 3501's SEARCH date-text rule allows either quoted or
// unquoted form, and real servers expect the unquoted form.
func (c *Command) AppendSearchDate(t time.Time) *Command {
	return c.Raw(t.Format(imapDateFormat))
}

// AppendFlags writes a parenthesized flag list.
func (c *Command) AppendFlags(flags FlagSet) *Command {
	names := flags.Names()
	sort.Strings(names)
	c.current.WriteByte('(')
	for i, n := range names {
		if i > 0 {
			c.current.WriteByte(' ')
		}
		c.current.WriteString(n)
	}
	c.current.WriteByte(')')
	return c
}

// AppendBodySection writes "BODY" or "BODY.PEEK" followed by the
// section's `[...]<...>` syntax.
func (c *Command) AppendBodySection(sec *BodySection, peek bool) *Command {
	if peek {
		c.current.WriteString("BODY.PEEK")
	} else {
		c.current.WriteString("BODY")
	}
	c.current.WriteString(sec.String())
	return c
}

// Segments finalizes the command (appending the closing CRLF to the last
// segment) and returns the ordered list of segments a connection must
// write, waiting for a continuation response before each literal segment.
func (c *Command) Segments() []CommandSegment {
	c.current.WriteString("\r\n")
	c.flushCurrent()
	// Fold the text that follows each literal into the literal's segment,
	// so a command with k literals yields k+1 segments.
	var out []CommandSegment
	for i := 0; i < len(c.segments); i++ {
		seg := c.segments[i]
		if seg.IsLiteral && i+1 < len(c.segments) && !c.segments[i+1].IsLiteral {
			seg.Data = append(append([]byte(nil), seg.Data...), c.segments[i+1].Data...)
			i++
		}
		out = append(out, seg)
	}
	return out
}
