package protocol

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// SectionKind identifies which piece of a body part a BODY[...] name
// refers to.
type SectionKind int

const (
	SectionWhole SectionKind = iota
	SectionHeaders
	SectionHeaderSubset
	SectionMIME
	SectionText
)

// BodySection is the parsed form of a `BODY[...]<...>` FETCH key, e.g.
// `BODY[3.2.1.HEADER.FIELDS (X-Foo Y-Bar)]<0.1024>`.
type BodySection struct {
	Kind        SectionKind
	PartNumber  string // dotted digits, default "1"
	HeaderNames []string
	Not         bool // HEADER.FIELDS.NOT

	HasSubstring    bool
	SubstringStart  int64
	SubstringLength int64
}

// ReadBodySection reads a `[...]` section name (the tokenizer must be
// positioned right after the BODY/BODY.PEEK atom) followed by an optional
// `<start.length>` substring suffix.
//
// Sub-parts of the dotted name are read via ReadString on the expanded
// delimiter set, which pulls each component as an ATOM — including
// "HEADER", "FIELDS", and "NOT" alongside numeric part indices. This
// intermingles the lexical categories of ATOM and structured path
// component on purpose: RFC 3501 section names are not, in general,
// distinguishable from ATOMs without this context-sensitive handling.
func (t *Tokenizer) ReadBodySection() (*BodySection, error) {
	if _, err := t.expect(TokenLBracket); err != nil {
		return nil, err
	}

	sec := &BodySection{PartNumber: "1", Kind: SectionWhole}
	var parts []string
	var keyword string

	for {
		peek, err := t.Peek(false, true)
		if err != nil {
			return nil, err
		}
		if peek.Type == TokenRBracket || peek.Type == TokenLParen {
			break
		}
		if peek.Type == TokenDot {
			t.Next(false, true)
			continue
		}
		seg, err := t.ReadString(true)
		if err != nil {
			return nil, err
		}
		upper := strings.ToUpper(seg)
		if upper == "HEADER" || upper == "TEXT" || upper == "MIME" || upper == "FIELDS" || upper == "NOT" {
			if keyword == "" {
				keyword = upper
			} else {
				keyword += "." + upper
			}
			continue
		}
		parts = append(parts, seg)
	}

	if len(parts) > 0 {
		sec.PartNumber = strings.Join(parts, ".")
	}

	switch keyword {
	case "":
		sec.Kind = SectionWhole
	case "TEXT":
		sec.Kind = SectionText
	case "MIME":
		sec.Kind = SectionMIME
	case "HEADER":
		sec.Kind = SectionHeaders
	case "HEADER.FIELDS":
		sec.Kind = SectionHeaderSubset
	case "HEADER.FIELDS.NOT":
		sec.Kind = SectionHeaderSubset
		sec.Not = true
	default:
		return nil, eris.Wrap(ErrProtocol, "unrecognized body section keyword "+keyword)
	}

	if sec.Kind == SectionHeaderSubset {
		names, err := t.ReadStringList(true)
		if err != nil {
			return nil, err
		}
		sec.HeaderNames = names
	}

	if _, err := t.expect(TokenRBracket); err != nil {
		return nil, err
	}

	peek, err := t.Peek(false, true)
	if err != nil {
		return nil, err
	}
	if peek.Type == TokenLAngle {
		t.Next(false, true)
		// Read "start.length>" with '.' and '>' as delimiters, so the
		// two numbers do not merge into one atom.
		var toks [4]Token
		for i := range toks {
			if toks[i], err = t.Next(false, true); err != nil {
				return nil, err
			}
		}
		if toks[0].Type != TokenNumeric || toks[1].Type != TokenDot || toks[2].Type != TokenNumeric || toks[3].Type != TokenRAngle {
			return nil, eris.Wrap(ErrProtocol, "malformed body section substring")
		}
		sec.HasSubstring = true
		sec.SubstringStart = int64(toks[0].Number)
		sec.SubstringLength = int64(toks[2].Number)
	}

	return sec, nil
}

// String renders the section back into RFC 3501 `BODY[...]` key syntax
// (without the leading "BODY"/"BODY.PEEK" keyword), used by the command
// builder when emitting a FETCH request for a specific section.
func (s *BodySection) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if s.PartNumber != "" && s.PartNumber != "1" {
		b.WriteString(s.PartNumber)
		if s.Kind != SectionWhole {
			b.WriteByte('.')
		}
	}
	switch s.Kind {
	case SectionWhole:
	case SectionText:
		b.WriteString("TEXT")
	case SectionMIME:
		b.WriteString("MIME")
	case SectionHeaders:
		b.WriteString("HEADER")
	case SectionHeaderSubset:
		b.WriteString("HEADER.FIELDS")
		if s.Not {
			b.WriteString(".NOT")
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(s.HeaderNames, " "))
		b.WriteByte(')')
	}
	b.WriteByte(']')
	if s.HasSubstring {
		b.WriteByte('<')
		b.WriteString(strconv.FormatInt(s.SubstringStart, 10))
		b.WriteByte('.')
		b.WriteString(strconv.FormatInt(s.SubstringLength, 10))
		b.WriteByte('>')
	}
	return b.String()
}
