package protocol

import (
	"strings"

	"github.com/rotisserie/eris"
)

// BodyStructure is the recursive parse of a FETCH BODYSTRUCTURE (or BODY)
// response item. Exactly one of the "single-part" or "multipart" field
// groups is populated, distinguished by MultiPart.
type BodyStructure struct {
	MultiPart bool

	// Single-part fields.
	MIMEType    string
	MIMESubtype string
	ID          string
	Description string
	Encoding    string
	Size        uint32
	Lines       uint32
	HasLines    bool
	MD5         string
	NestedEnvelope *Envelope
	NestedBody     *BodyStructure

	// Multipart fields.
	Parts []*BodyStructure

	// Shared extension fields (both forms).
	Params            map[string]string
	Disposition       string
	DispositionParams map[string]string
	Languages         []string
}

// ReadBodyStructure reads one parenthesized body structure, recursing into
// nested multipart parts and message/rfc822 nested bodies.
func (t *Tokenizer) ReadBodyStructure() (*BodyStructure, error) {
	if _, err := t.expect(TokenLParen); err != nil {
		return nil, err
	}

	peek, err := t.Peek(false, false)
	if err != nil {
		return nil, err
	}

	var bs *BodyStructure
	if peek.Type == TokenLParen {
		bs, err = t.readMultipartBody()
	} else {
		bs, err = t.readSinglepartBody()
	}
	if err != nil {
		return nil, err
	}

	if _, err := t.expect(TokenRParen); err != nil {
		return nil, err
	}
	return bs, nil
}

func (t *Tokenizer) readMultipartBody() (*BodyStructure, error) {
	bs := &BodyStructure{MultiPart: true}
	for {
		peek, err := t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if peek.Type != TokenLParen {
			break
		}
		part, err := t.ReadBodyStructure()
		if err != nil {
			return nil, err
		}
		bs.Parts = append(bs.Parts, part)
	}

	subtype, err := t.ReadString(false)
	if err != nil {
		return nil, err
	}
	bs.MIMESubtype = strings.ToUpper(subtype)

	peek, err := t.Peek(false, false)
	if err != nil {
		return nil, err
	}
	if peek.Type != TokenRParen {
		if bs.Params, err = t.ReadParameterList(); err != nil {
			return nil, err
		}
		if peek, err = t.Peek(false, false); err != nil {
			return nil, err
		}
	}
	if peek.Type != TokenRParen {
		if err := t.readBodyExtension(bs); err != nil {
			return nil, err
		}
	}
	return bs, nil
}

func (t *Tokenizer) readSinglepartBody() (*BodyStructure, error) {
	bs := &BodyStructure{}

	mimeType, err := t.ReadString(false)
	if err != nil {
		return nil, err
	}
	bs.MIMEType = strings.ToUpper(mimeType)

	subtype, err := t.ReadString(false)
	if err != nil {
		return nil, err
	}
	bs.MIMESubtype = strings.ToUpper(subtype)

	if bs.Params, err = t.ReadParameterList(); err != nil {
		return nil, err
	}
	if bs.ID, _, err = t.ReadStringOrNil(false); err != nil {
		return nil, err
	}
	if desc, ok, err := t.ReadStringOrNil(false); err != nil {
		return nil, err
	} else if ok {
		bs.Description = DecodeRFC2047(desc)
	}
	if bs.Encoding, err = t.ReadString(false); err != nil {
		return nil, err
	}
	size, err := t.ReadInteger()
	if err != nil {
		return nil, err
	}
	bs.Size = uint32(size)

	if bs.MIMEType == "MESSAGE" && bs.MIMESubtype == "RFC822" {
		env, err := t.ReadEnvelope()
		if err != nil {
			return nil, err
		}
		bs.NestedEnvelope = &env
		nested, err := t.ReadBodyStructure()
		if err != nil {
			return nil, err
		}
		bs.NestedBody = nested
		lines, err := t.ReadInteger()
		if err != nil {
			return nil, err
		}
		bs.Lines = uint32(lines)
		bs.HasLines = true
	} else if bs.MIMEType == "TEXT" {
		lines, err := t.ReadInteger()
		if err != nil {
			return nil, err
		}
		bs.Lines = uint32(lines)
		bs.HasLines = true
	}

	peek, err := t.Peek(false, false)
	if err != nil {
		return nil, err
	}
	if peek.Type != TokenRParen {
		if bs.MD5, _, err = t.ReadStringOrNil(false); err != nil {
			return nil, err
		}
		peek, err := t.Peek(false, false)
		if err != nil {
			return nil, err
		}
		if peek.Type != TokenRParen {
			if err := t.readBodyExtension(bs); err != nil {
				return nil, err
			}
		}
	}
	return bs, nil
}

// readBodyExtension reads the shared extension tail common to both
// single-part and multipart bodies: disposition, languages, and any
// further extension data we don't model (skipped).
func (t *Tokenizer) readBodyExtension(bs *BodyStructure) error {
	peek, err := t.Peek(true, false)
	if err != nil {
		return err
	}
	if peek.Type == TokenNil {
		t.Next(true, false)
	} else if peek.Type == TokenLParen {
		t.Next(false, false) // '('
		name, err := t.ReadString(false)
		if err != nil {
			return err
		}
		bs.Disposition = strings.ToUpper(name)
		if bs.DispositionParams, err = t.ReadParameterList(); err != nil {
			return err
		}
		if _, err := t.expect(TokenRParen); err != nil {
			return err
		}
	}

	peek, err = t.Peek(false, false)
	if err != nil {
		return err
	}
	if peek.Type == TokenRParen {
		return nil
	}

	langPeek, err := t.Peek(true, false)
	if err != nil {
		return err
	}
	switch langPeek.Type {
	case TokenNil:
		t.Next(true, false)
	case TokenLParen:
		langs, err := t.ReadStringList(false)
		if err != nil {
			return err
		}
		bs.Languages = langs
	default:
		lang, _, err := t.ReadStringOrNil(false)
		if err != nil {
			return err
		}
		if lang != "" {
			bs.Languages = []string{lang}
		}
	}

	return t.skipExtensionFields()
}

// skipExtensionFields drains any further body-extension data (body
// location, extension parameters) this package doesn't model, stopping
// right before the body's closing paren.
func (t *Tokenizer) skipExtensionFields() error {
	for {
		peek, err := t.Peek(true, false)
		if err != nil {
			return err
		}
		if peek.Type == TokenRParen {
			return nil
		}
		if peek.Type == TokenLParen {
			if err := t.skipBalancedList(); err != nil {
				return err
			}
			continue
		}
		if _, err := t.Next(true, false); err != nil {
			return err
		}
	}
}

func (t *Tokenizer) skipBalancedList() error {
	if _, err := t.expect(TokenLParen); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		tok, err := t.Next(true, false)
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenEOF:
			return eris.New("unterminated list in body extension")
		}
	}
	return nil
}
