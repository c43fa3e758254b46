package protocol

import (
	"mime"

	charset "github.com/emersion/go-message/charset"
)

// rfc2047Decoder decodes MIME encoded-words (`=?charset?Q?...?=`) that show
// up inside ENVELOPE strings (Subject, personal names) for servers that
// don't pre-decode them. CharsetReader delegates to go-message/charset,
// which knows far more charset aliases than the stdlib's ASCII/UTF-8-only
// default, mirroring internal/search/eml's decodeHeader.
var rfc2047Decoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeRFC2047 best-effort decodes s as a MIME encoded-word sequence,
// returning s unchanged if it isn't one or decoding fails.
func DecodeRFC2047(s string) string {
	decoded, err := rfc2047Decoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
