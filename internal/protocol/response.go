package protocol

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ResponseKind classifies a server line by its leading token.
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseTagged
	ResponseUntagged
	ResponseContinuation
)

// ResponseCode is the optional bracketed code following OK/NO/BAD/PREAUTH
// ("[READ-ONLY]", "[UIDVALIDITY 1234]", "[ALERT] message text", etc).
type ResponseCode struct {
	Name string
	Args []string
	Text string
}

// Response is a classified, partially-parsed server line. The caller
// inspects Kind and, for untagged lines, Label to decide which typed
// accessor (Flags, Search, Fetch, ...) is meaningful.
type Response struct {
	Kind ResponseKind
	Tag  string // tagged only; "" for untagged/continuation

	// Status is populated for tagged and untagged status responses
	// (OK, NO, BAD, PREAUTH, BYE).
	Status string
	Code   *ResponseCode
	Text   string

	// Label is the untagged keyword (CAPABILITY, FLAGS, EXISTS, RECENT,
	// EXPUNGE, SEARCH, FETCH, LIST, LSUB, NAMESPACE, STATUS, ACL,
	// LISTRIGHTS, MYRIGHTS, QUOTA, QUOTAROOT, ...), or "" when Kind is
	// ResponseTagged carrying only a status.
	Label string

	// Number carries the numeric prefix of EXISTS/RECENT/EXPUNGE/FETCH
	// responses ("* 23 EXISTS" -> Number == 23).
	Number uint32

	// tokenizer positioned right after Label, for typed accessors to
	// continue reading from.
	t *Tokenizer
}

var statusWords = map[string]bool{
	"OK": true, "NO": true, "BAD": true, "PREAUTH": true, "BYE": true,
}

// ClassifyResponse reads the leading tag/star/plus and status word (if
// any) of line and returns a Response ready for typed untagged decoding.
func ClassifyResponse(line Line) (*Response, error) {
	t := NewTokenizer(line)

	first, err := t.Peek(false, false)
	if err != nil {
		return nil, err
	}

	r := &Response{t: t}

	switch {
	case first.Type == TokenStar:
		t.Next(false, false)
		r.Kind = ResponseUntagged
	case first.Type == TokenPlus || (first.Type == TokenAtom && strings.HasPrefix(first.Value, "+")):
		// '+' is not an atom delimiter, so "+ text" usually arrives as an
		// atom starting with '+'.
		r.Kind = ResponseContinuation
		r.Text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(line.Bytes)), "+"))
		return r, nil
	default:
		tag, err := t.ReadAtom()
		if err != nil {
			return nil, eris.Wrap(err, "classifying response line")
		}
		r.Kind = ResponseTagged
		r.Tag = tag
	}

	word, err := t.Peek(false, false)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(word.Value)
	if word.Type == TokenAtom && statusWords[upper] {
		t.Next(false, false)
		r.Status = upper
		if err := r.readStatusTail(); err != nil {
			return nil, err
		}
		return r, nil
	}

	if r.Kind == ResponseUntagged {
		label, err := t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if label.Type == TokenAtom {
			t.Next(false, false)
			r.Label = strings.ToUpper(label.Value)
		} else if label.Type == TokenNumeric {
			t.Next(false, false)
			// "<num> EXISTS" / "<num> RECENT" / "<num> EXPUNGE" /
			// "<num> FETCH (...)"
			kw, err := t.ReadAtom()
			if err != nil {
				return nil, err
			}
			r.Label = strings.ToUpper(kw)
			r.Number = uint32(label.Number)
		}
	}

	return r, nil
}

func (r *Response) readStatusTail() error {
	peek, err := r.t.Peek(false, false)
	if err != nil {
		return err
	}
	if peek.Type == TokenLBracket {
		r.t.Next(false, false)
		name, err := r.t.ReadAtom()
		if err != nil {
			return err
		}
		code := &ResponseCode{Name: strings.ToUpper(name)}
		for {
			p, err := r.t.Peek(false, false)
			if err != nil {
				return err
			}
			if p.Type == TokenRBracket {
				r.t.Next(false, false)
				break
			}
			if p.Type == TokenLParen {
				// A parenthesized flag list, e.g. PERMANENTFLAGS
				// (\Deleted \Seen \*): read it as flags rather than one
				// token at a time, or the backslash and the lone "*"
				// wildcard would each shatter into their own token.
				flags, err := r.t.ReadFlagList()
				if err != nil {
					return err
				}
				code.Args = append(code.Args, flags.Names()...)
				continue
			}
			tok, err := r.t.Next(false, false)
			if err != nil {
				return err
			}
			code.Args = append(code.Args, tok.Value)
		}
		r.Code = code
	}
	r.Text = strings.TrimSpace(string(r.t.data[r.t.Pos():]))
	return nil
}

// Tokenizer returns the underlying tokenizer positioned right after the
// label, for typed accessors (Flags, Search, Fetch, List, ...) to
// continue reading structured content from.
func (r *Response) Tokenizer() *Tokenizer { return r.t }

// Flags decodes a "* FLAGS (...)" response.
func (r *Response) Flags() (FlagSet, error) {
	return r.t.ReadFlagList()
}

// Capability decodes a "* CAPABILITY ..." response into a list of
// capability atoms.
func (r *Response) Capability() ([]string, error) {
	var caps []string
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if peek.Type == TokenEOF {
			break
		}
		tok, err := r.t.Next(false, false)
		if err != nil {
			return nil, err
		}
		caps = append(caps, tok.Value)
	}
	return caps, nil
}

// Search decodes a "* SEARCH n1 n2 ..." response.
func (r *Response) Search() ([]uint32, error) {
	var nums []uint32
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if peek.Type != TokenNumeric {
			break
		}
		tok, _ := r.t.Next(false, false)
		nums = append(nums, uint32(tok.Number))
	}
	return nums, nil
}

// ListEntry is one "* LIST (\flags) "/" "name"" or LSUB response.
type ListEntry struct {
	Flags     FlagSet
	Delimiter string
	Name      string
}

// List decodes a "* LIST (...) delim name" / "* LSUB ..." response.
func (r *Response) List() (ListEntry, error) {
	var e ListEntry
	flags, err := r.t.ReadFlagList()
	if err != nil {
		return e, err
	}
	e.Flags = flags

	delim, ok, err := r.t.ReadStringOrNil(false)
	if err != nil {
		return e, err
	}
	if ok {
		e.Delimiter = delim
	}

	name, err := r.t.ReadString(false)
	if err != nil {
		return e, err
	}
	decoded, derr := DecodeMailboxUTF7(name)
	if derr != nil {
		decoded = name
	}
	e.Name = decoded
	return e, nil
}

// StatusAttrs decodes a "* STATUS name (ATTR val ATTR val ...)" response.
type StatusAttrs struct {
	Name  string
	Attrs map[string]uint32
}

func (r *Response) StatusAttrs() (StatusAttrs, error) {
	var s StatusAttrs
	name, err := r.t.ReadString(false)
	if err != nil {
		return s, err
	}
	decoded, derr := DecodeMailboxUTF7(name)
	if derr != nil {
		decoded = name
	}
	s.Name = decoded
	s.Attrs = map[string]uint32{}

	if _, err := r.t.expect(TokenLParen); err != nil {
		return s, err
	}
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return s, err
		}
		if peek.Type == TokenRParen {
			r.t.Next(false, false)
			break
		}
		key, err := r.t.ReadAtom()
		if err != nil {
			return s, err
		}
		val, err := r.t.ReadLong()
		if err != nil {
			return s, err
		}
		s.Attrs[strings.ToUpper(key)] = uint32(val)
	}
	return s, nil
}

// FetchAttr is one "NAME value" pair inside a FETCH response's
// parenthesized attribute list. Raw is a tokenizer of its own, positioned
// at the start of the value; DecodeFetchAttr decodes it into a FetchItem.
type FetchAttr struct {
	Name string
	Raw  *Tokenizer
}

// Fetch decodes the parenthesized attribute list of a "<n> FETCH (...)"
// response into name/tokenizer-position pairs. Callers walk the returned
// slice and dispatch on Name to decode each value with the matching
// accessor (ReadEnvelope, ReadBodyStructure, ReadFlagList, ReadBodySection
// + ReadByteArray, ReadInteger, ...).
func (r *Response) Fetch() ([]FetchAttr, error) {
	if _, err := r.t.expect(TokenLParen); err != nil {
		return nil, err
	}
	var attrs []FetchAttr
	for {
		peek, err := r.t.Peek(false, true)
		if err != nil {
			return nil, err
		}
		if peek.Type == TokenRParen {
			r.t.Next(false, true)
			break
		}
		name, err := r.t.readFetchAttrName()
		if err != nil {
			return nil, err
		}
		// readFetchAttrName moved past the peeked token itself.
		r.t.peeked = nil
		attr := FetchAttr{Name: strings.ToUpper(name), Raw: &Tokenizer{data: r.t.data, literals: r.t.literals, pos: r.t.pos}}
		// Decode a throwaway copy to find where this value ends.
		probe := &Tokenizer{data: r.t.data, literals: r.t.literals, pos: r.t.pos}
		if _, err := DecodeFetchAttr(FetchAttr{Name: attr.Name, Raw: probe}); err != nil {
			return nil, err
		}
		r.t.pos = probe.pos
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// QuotaResource is one "NAME usage limit" triple from a QUOTA response.
type QuotaResource struct {
	Name  string
	Usage uint64
	Limit uint64
}

// Quota decodes a "* QUOTA root (resource usage limit ...)" response.
func (r *Response) Quota() (root string, resources []QuotaResource, err error) {
	root, err = r.t.ReadString(false)
	if err != nil {
		return "", nil, err
	}
	if _, err = r.t.expect(TokenLParen); err != nil {
		return "", nil, err
	}
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return "", nil, err
		}
		if peek.Type == TokenRParen {
			r.t.Next(false, false)
			break
		}
		name, err := r.t.ReadAtom()
		if err != nil {
			return "", nil, err
		}
		usage, err := r.t.ReadLong()
		if err != nil {
			return "", nil, err
		}
		limit, err := r.t.ReadLong()
		if err != nil {
			return "", nil, err
		}
		resources = append(resources, QuotaResource{Name: strings.ToUpper(name), Usage: uint64(usage), Limit: uint64(limit)})
	}
	return root, resources, nil
}

// QuotaRoot decodes a "* QUOTAROOT mailbox root1 root2 ..." response.
func (r *Response) QuotaRoot() (mailbox string, roots []string, err error) {
	mailbox, err = r.t.ReadString(false)
	if err != nil {
		return "", nil, err
	}
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return "", nil, err
		}
		if peek.Type == TokenEOF {
			break
		}
		root, err := r.t.ReadString(false)
		if err != nil {
			return "", nil, err
		}
		roots = append(roots, root)
	}
	return mailbox, roots, nil
}

// ACLEntry is one "identifier rights" pair from an ACL response.
type ACLEntry struct {
	Identifier string
	Rights     string
}

// ACL decodes a "* ACL mailbox id1 rights1 id2 rights2 ..." response.
func (r *Response) ACL() (mailbox string, entries []ACLEntry, err error) {
	mailbox, err = r.t.ReadString(false)
	if err != nil {
		return "", nil, err
	}
	for {
		peek, err := r.t.Peek(false, false)
		if err != nil {
			return "", nil, err
		}
		if peek.Type == TokenEOF {
			break
		}
		id, err := r.t.ReadString(false)
		if err != nil {
			return "", nil, err
		}
		rights, err := r.t.ReadString(false)
		if err != nil {
			return "", nil, err
		}
		entries = append(entries, ACLEntry{Identifier: id, Rights: rights})
	}
	return mailbox, entries, nil
}

// ListRights decodes a "* LISTRIGHTS mailbox identifier required opt1 ..."
// response.
func (r *Response) ListRights() (mailbox, identifier, required string, optional []string, err error) {
	mailbox, err = r.t.ReadString(false)
	if err != nil {
		return
	}
	identifier, err = r.t.ReadString(false)
	if err != nil {
		return
	}
	required, err = r.t.ReadString(false)
	if err != nil {
		return
	}
	for {
		peek, perr := r.t.Peek(false, false)
		if perr != nil {
			err = perr
			return
		}
		if peek.Type == TokenEOF {
			break
		}
		var tail string
		tail, err = r.t.ReadString(false)
		if err != nil {
			return
		}
		optional = append(optional, tail)
	}
	return
}

// MyRights decodes a "* MYRIGHTS mailbox rights" response.
func (r *Response) MyRights() (mailbox, rights string, err error) {
	mailbox, err = r.t.ReadString(false)
	if err != nil {
		return "", "", err
	}
	rights, err = r.t.ReadString(false)
	if err != nil {
		return "", "", err
	}
	return mailbox, rights, nil
}

// Namespace decodes one of the three namespace lists ("* NAMESPACE
// personal other shared" where each is either NIL or a parenthesized list
// of (prefix delimiter) pairs).
type NamespaceDescriptor struct {
	Prefix    string
	Delimiter string
}

func (r *Response) Namespace() (personal, other, shared []NamespaceDescriptor, err error) {
	personal, err = r.t.readNamespaceList()
	if err != nil {
		return
	}
	other, err = r.t.readNamespaceList()
	if err != nil {
		return
	}
	shared, err = r.t.readNamespaceList()
	if err != nil {
		return
	}
	return
}

func (t *Tokenizer) readNamespaceList() ([]NamespaceDescriptor, error) {
	peek, err := t.Peek(true, false)
	if err != nil {
		return nil, err
	}
	if peek.Type == TokenNil {
		t.Next(true, false)
		return nil, nil
	}
	if _, err := t.expect(TokenLParen); err != nil {
		return nil, err
	}
	var out []NamespaceDescriptor
	for {
		p, err := t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if p.Type == TokenRParen {
			t.Next(false, false)
			break
		}
		if _, err := t.expect(TokenLParen); err != nil {
			return nil, err
		}
		prefix, err := t.ReadString(false)
		if err != nil {
			return nil, err
		}
		delim, ok, err := t.ReadStringOrNil(false)
		if err != nil {
			return nil, err
		}
		d := NamespaceDescriptor{Prefix: prefix}
		if ok {
			d.Delimiter = delim
		}
		if err := t.skipExtensionFields(); err != nil {
			return nil, err
		}
		if _, err := t.expect(TokenRParen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
