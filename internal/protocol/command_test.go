package protocol

import (
	"strings"
	"testing"
)

// Invariant 8 in spec.md §8: getEncoding(B) returns LITERAL iff B
// contains NUL/CR/LF/byte>0x7F; QUOTEDSTRING iff (not LITERAL) and (B
// empty or B contains an ATOM-disqualifying char); ATOM otherwise.
func TestClassifyStringForm(t *testing.T) {
	cases := []struct {
		in   string
		want stringForm
	}{
		{"INBOX", formAtom},
		{"a0001", formAtom},
		{"", formQuoted},
		{"has space", formQuoted},
		{"has(paren", formQuoted},
		{"has\"quote", formQuoted},
		{"has\x01ctl", formQuoted},
		{"has\x00nul", formLiteral},
		{"has\rcr", formLiteral},
		{"has\nlf", formLiteral},
		{"caf\xc3\xa9", formLiteral}, // byte > 0x7F (UTF-8 for "café")
	}
	for _, c := range cases {
		got := classifyStringForm(c.in)
		if got != c.want {
			t.Errorf("classifyStringForm(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// Invariant 6 in spec.md §8: a command with k literals emits exactly k+1
// wire segments.
func TestCommandSegmentsWithLiterals(t *testing.T) {
	cmd := NewCommand("a1", "APPEND")
	cmd.Space().AppendMailbox("Drafts").Space().AppendFlags(NewFlagSet(FlagSeen))
	cmd.Space().AppendLiteral([]byte("Hello world!"))
	segs := cmd.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments (command head + literal with the closing CRLF), got %d", len(segs))
	}
	if segs[0].IsLiteral || !strings.Contains(string(segs[0].Data), "{12}") {
		// First segment carries the literal-length marker but is not
		// itself the literal payload segment.
		t.Errorf("first segment should carry the {12} marker and not be a literal, got %q", segs[0].Data)
	}
	if !segs[1].IsLiteral {
		t.Fatal("second segment should be the literal payload")
	}
	if string(segs[1].Data) != "Hello world!\r\n" {
		t.Errorf("literal payload = %q", segs[1].Data)
	}
}

func TestCommandNoLiteralsSingleSegment(t *testing.T) {
	cmd := NewCommand("a1", "NOOP")
	segs := cmd.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if !strings.HasSuffix(string(segs[0].Data), "\r\n") {
		t.Error("command must end with CRLF")
	}
	if !strings.HasPrefix(string(segs[0].Data), "a1 NOOP") {
		t.Errorf("got %q", segs[0].Data)
	}
}

func TestAppendStringSelectsLiteralForEightBitText(t *testing.T) {
	cmd := NewCommand("a1", "SEARCH")
	cmd.Space().AppendString("H\xc3\xa9llo")
	segs := cmd.Segments()
	if len(segs) != 2 || !segs[1].IsLiteral {
		t.Fatalf("expected a literal segment for 8-bit text, got %d segments", len(segs))
	}
}

func TestAppendQuotedEscapesBackslashAndQuote(t *testing.T) {
	cmd := NewCommand("a1", "X")
	cmd.Space().AppendQuoted(`a"b\c`)
	segs := cmd.Segments()
	want := `a1 X "a\"b\\c"` + "\r\n"
	if string(segs[0].Data) != want {
		t.Errorf("got %q, want %q", segs[0].Data, want)
	}
}

func TestAppendBodySectionWhole(t *testing.T) {
	cmd := NewCommand("a1", "FETCH")
	cmd.Space().Raw("1").Space().AppendBodySection(&BodySection{Kind: SectionWhole, PartNumber: "1"}, true)
	segs := cmd.Segments()
	if !strings.Contains(string(segs[0].Data), "BODY.PEEK[]") {
		t.Errorf("got %q", segs[0].Data)
	}
}
