package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
)

// LiteralSpan records where a literal's raw payload landed in an assembled
// logical line, for callers that need the untouched bytes (e.g. message
// bodies) rather than the tokenizer's interpretation of them.
type LiteralSpan struct {
	Start, End int // byte offsets into the assembled line, End exclusive
}

// Line is one assembled logical response line: a CRLF-terminated physical
// line, with any {N} literal payloads inlined at their offsets and recorded
// in Literals.
type Line struct {
	Bytes    []byte
	Literals []LiteralSpan
}

// DefaultMaxLiteralSize bounds literal length to guard against a malicious or
// broken server claiming an enormous length and exhausting memory. Zero
// means unbounded, matching spec.md's documented default.
const DefaultMaxLiteralSize = 0

// LineReader reads CRLF-terminated logical lines from a byte stream,
// transparently following {N} literal-length markers.
type LineReader struct {
	r            *bufio.Reader
	maxLiteral   int64
	scratch      []byte
}

// NewLineReader wraps r. maxLiteral <= 0 means unbounded.
func NewLineReader(r io.Reader, maxLiteral int64) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 8192), maxLiteral: maxLiteral}
}

// ReadLine reads one logical line, consuming any trailing {N} literal
// payloads it encounters along the way.
func (lr *LineReader) ReadLine() (Line, error) {
	var out []byte
	var literals []LiteralSpan

	for {
		physical, err := lr.readPhysicalLine()
		if err != nil {
			return Line{}, err
		}
		out = append(out, physical...)

		n, hasLiteral := trailingLiteralLength(physical)
		if !hasLiteral {
			return Line{Bytes: out, Literals: literals}, nil
		}
		if lr.maxLiteral > 0 && n > lr.maxLiteral {
			return Line{}, eris.Wrap(ErrProtocol, fmt.Sprintf("literal length %d exceeds max %d", n, lr.maxLiteral))
		}

		start := len(out)
		payload := make([]byte, n)
		if _, err := io.ReadFull(lr.r, payload); err != nil {
			return Line{}, eris.Wrap(ErrProtocol, "short read on literal payload: "+err.Error())
		}
		out = append(out, payload...)
		literals = append(literals, LiteralSpan{Start: start, End: start + int(n)})
		// Loop again: more physical-line bytes (and possibly another
		// literal) may follow on the same logical line.
	}
}

// readPhysicalLine reads up through the terminating CRLF, stripped.
func (lr *LineReader) readPhysicalLine() ([]byte, error) {
	line, err := lr.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, eris.Wrap(ErrProtocol, "read line: "+err.Error())
	}
	// Strip trailing \n and optional \r.
	line = line[:len(line)-1]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return []byte(line), nil
}

// trailingLiteralLength detects a `{N}` marker at the very end of a
// physical line (RFC 3501 literal syntax) and returns its length.
func trailingLiteralLength(line []byte) (int64, bool) {
	if len(line) < 3 || line[len(line)-1] != '}' {
		return 0, false
	}
	open := -1
	for i := len(line) - 2; i >= 0; i-- {
		if line[i] == '{' {
			open = i
			break
		}
		if line[i] < '0' || line[i] > '9' {
			// A non-digit before the closing brace other than '{' itself
			// means this isn't a literal marker (could be a '+' for
			// non-synchronizing literals, which we also accept).
			if line[i] == '+' {
				continue
			}
			return 0, false
		}
	}
	if open < 0 {
		return 0, false
	}
	digits := line[open+1 : len(line)-1]
	digits = trimTrailingPlus(digits)
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func trimTrailingPlus(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '+' {
		return b[:len(b)-1]
	}
	return b
}
