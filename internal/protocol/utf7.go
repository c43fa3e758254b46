package protocol

import (
	"encoding/base64"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// modifiedBase64 is RFC 3501 §5.1.3's base64 variant: the standard alphabet
// with '/' replaced by ',' and no padding.
var modifiedBase64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,").WithPadding(base64.NoPadding)

// utf16BE transcodes between UTF-8 and big-endian UTF-16, the code-unit form
// modified UTF-7 encodes runs in.
var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// EncodeMailboxUTF7 encodes s (an arbitrary Unicode mailbox name) using
// RFC 3501 modified UTF-7.
func EncodeMailboxUTF7(s string) (string, error) {
	var out strings.Builder
	var run []rune

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		u16, _, err := transform.String(utf16BE.NewEncoder(), string(run))
		if err != nil {
			return eris.Wrap(ErrProtocol, "utf7 encode: utf16: "+err.Error())
		}
		out.WriteByte('&')
		out.WriteString(modifiedBase64.EncodeToString([]byte(u16)))
		out.WriteByte('-')
		run = run[:0]
		return nil
	}

	for _, r := range s {
		switch {
		case r == '&':
			if err := flush(); err != nil {
				return "", err
			}
			out.WriteString("&-")
		case r >= 0x20 && r <= 0x7e:
			if err := flush(); err != nil {
				return "", err
			}
			out.WriteRune(r)
		default:
			run = append(run, r)
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// DecodeMailboxUTF7 decodes an RFC 3501 modified UTF-7 mailbox name.
func DecodeMailboxUTF7(s string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '&' {
			out.WriteByte(c)
			i++
			continue
		}
		// '&' begins an encoded run (or escapes a literal '&' as "&-").
		j := i + 1
		if j < len(s) && s[j] == '-' {
			out.WriteByte('&')
			i = j + 1
			continue
		}
		for j < len(s) && s[j] != '-' {
			j++
		}
		encoded := s[i+1 : j]
		decoded, err := decodeModifiedBase64Run(encoded)
		if err != nil {
			return "", err
		}
		out.WriteString(decoded)
		if j < len(s) {
			j++ // skip terminating '-'
		}
		i = j
	}
	return out.String(), nil
}

func decodeModifiedBase64Run(encoded string) (string, error) {
	raw, err := modifiedBase64.DecodeString(encoded)
	if err != nil {
		return "", eris.Wrap(ErrProtocol, "utf7 decode: bad base64 run: "+err.Error())
	}
	if len(raw)%2 != 0 {
		return "", eris.Wrap(ErrProtocol, "utf7 decode: odd-length UTF-16 payload")
	}
	decoded, _, err := transform.Bytes(utf16BE.NewDecoder(), raw)
	if err != nil {
		return "", eris.Wrap(ErrProtocol, "utf7 decode: utf16: "+err.Error())
	}
	return string(decoded), nil
}
