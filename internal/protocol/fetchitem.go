package protocol

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FetchItemKind identifies which FETCH data item an attribute decoded
// to.
type FetchItemKind int

const (
	FetchEnvelope FetchItemKind = iota
	FetchInternalDate
	FetchRFC822Size
	FetchBodyStructureItem
	FetchFlagsItem
	FetchUIDItem
	FetchHeaderItem
	FetchTextItem
	FetchBodyItem
)

// FetchItem is one decoded entry of a FETCH response's attribute list.
type FetchItem struct {
	Kind FetchItemKind

	Envelope      *Envelope
	InternalDate  time.Time
	Size          uint32
	BodyStructure *BodyStructure
	Flags         FlagSet
	UID           uint32

	// Header/Text/Body payload fields.
	Section         *BodySection // nil for whole-message RFC822.HEADER/RFC822.TEXT
	IsComplete      bool         // true when the whole header was requested, not a FIELDS subset
	Bytes           []byte
	HasSubstring    bool
	SubstringStart  int64
	SubstringLength int64
}

// DecodeFetchAttr reads attr.Name's associated value from attr.Raw and
// returns the decoded item. The tokenizer must be positioned exactly
// where Response.Fetch left it: right after the attribute name, before
// its value.
func DecodeFetchAttr(attr FetchAttr) (*FetchItem, error) {
	t := attr.Raw
	name := strings.ToUpper(attr.Name)

	switch name {
	case "ENVELOPE":
		env, err := t.ReadEnvelope()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchEnvelope, Envelope: &env}, nil

	case "INTERNALDATE":
		ts, err := t.ReadDate()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchInternalDate, InternalDate: ts}, nil

	case "RFC822.SIZE":
		n, err := t.ReadLong()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchRFC822Size, Size: uint32(n)}, nil

	case "FLAGS":
		fs, err := t.ReadFlagList()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchFlagsItem, Flags: fs}, nil

	case "UID":
		n, err := t.ReadLong()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchUIDItem, UID: uint32(n)}, nil

	case "BODYSTRUCTURE":
		bs, err := t.ReadBodyStructure()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchBodyStructureItem, BodyStructure: bs}, nil

	case "RFC822":
		b, err := t.ReadByteArray()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchTextItem, Bytes: b}, nil

	case "RFC822.HEADER":
		b, err := t.ReadByteArray()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchHeaderItem, IsComplete: true, Bytes: b}, nil

	case "RFC822.TEXT":
		b, err := t.ReadByteArray()
		if err != nil {
			return nil, err
		}
		return &FetchItem{Kind: FetchTextItem, Bytes: b}, nil

	case "BODY":
		b, ok := t.peekByte()
		if ok && b == '(' {
			bs, err := t.ReadBodyStructure()
			if err != nil {
				return nil, err
			}
			return &FetchItem{Kind: FetchBodyStructureItem, BodyStructure: bs}, nil
		}
		return decodeBodySectionValue(t)

	default:
		return nil, eris.Wrap(ErrProtocol, "unrecognized FETCH attribute "+attr.Name)
	}
}

func decodeBodySectionValue(t *Tokenizer) (*FetchItem, error) {
	sec, err := t.ReadBodySection()
	if err != nil {
		return nil, err
	}
	payload, err := t.ReadByteArray()
	if err != nil {
		return nil, err
	}
	item := &FetchItem{
		Section:         sec,
		Bytes:           payload,
		HasSubstring:    sec.HasSubstring,
		SubstringStart:  sec.SubstringStart,
		SubstringLength: sec.SubstringLength,
	}
	switch sec.Kind {
	case SectionHeaders:
		item.Kind = FetchHeaderItem
		item.IsComplete = true
	case SectionHeaderSubset:
		item.Kind = FetchHeaderItem
		item.IsComplete = false
	case SectionText:
		item.Kind = FetchTextItem
	default:
		item.Kind = FetchBodyItem
	}
	return item, nil
}
