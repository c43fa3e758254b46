package protocol

import "testing"

func TestTokenizerAtomQuotedNumeric(t *testing.T) {
	tok := NewTokenizerBytes([]byte(`FOO "bar baz" 42 NIL`))

	s, err := tok.ReadAtom()
	if err != nil || s != "FOO" {
		t.Fatalf("ReadAtom() = %q, %v", s, err)
	}

	qs, err := tok.ReadString(false)
	if err != nil || qs != "bar baz" {
		t.Fatalf("ReadString() = %q, %v", qs, err)
	}

	n, err := tok.ReadInteger()
	if err != nil || n != 42 {
		t.Fatalf("ReadInteger() = %d, %v", n, err)
	}

	nilTok, err := tok.Next(true, false)
	if err != nil || nilTok.Type != TokenNil {
		t.Fatalf("expected NIL token, got %v, %v", nilTok, err)
	}
}

func TestTokenizerQuotedStringEscapes(t *testing.T) {
	tok := NewTokenizerBytes([]byte(`"a\"b\\c"`))
	s, err := tok.ReadString(false)
	if err != nil {
		t.Fatal(err)
	}
	if s != `a"b\c` {
		t.Errorf("got %q", s)
	}
}

func TestTokenizerPeekDoesNotAdvance(t *testing.T) {
	tok := NewTokenizerBytes([]byte("FOO BAR"))
	p1, err := tok.Peek(false, false)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := tok.Peek(false, false)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Value != p2.Value {
		t.Fatalf("peek is not idempotent: %q vs %q", p1.Value, p2.Value)
	}
	first, _ := tok.Next(false, false)
	if first.Value != "FOO" {
		t.Errorf("Next() after Peek() = %q, want FOO", first.Value)
	}
}

func TestTokenizerExpandedDelimitersSplitSectionPath(t *testing.T) {
	tok := NewTokenizerBytes([]byte("3.1.HEADER.FIELDS"))
	var parts []string
	for {
		peek, err := tok.Peek(false, true)
		if err != nil {
			t.Fatal(err)
		}
		if peek.Type == TokenEOF {
			break
		}
		if peek.Type == TokenDot {
			tok.Next(false, true)
			continue
		}
		s, err := tok.ReadString(true)
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, s)
	}
	want := []string{"3", "1", "HEADER", "FIELDS"}
	if len(parts) != len(want) {
		t.Fatalf("got %v, want %v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, parts[i], want[i])
		}
	}
}

func TestTokenizerFlagList(t *testing.T) {
	tok := NewTokenizerBytes([]byte(`(\Answered \Seen Junk \*)`))
	fs, err := tok.ReadFlagList()
	if err != nil {
		t.Fatal(err)
	}
	if !fs.Contains(FlagAnswered) || !fs.Contains(FlagSeen) || !fs.Contains("Junk") || !fs.AllowsUserFlags() {
		t.Errorf("flag set missing expected members: %v", fs.Names())
	}
	if fs.Len() != 4 {
		t.Errorf("Len() = %d, want 4", fs.Len())
	}
}

func TestTokenizerStringList(t *testing.T) {
	tok := NewTokenizerBytes([]byte(`(X-Foo Y-Bar)`))
	names, err := tok.ReadStringList(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "X-Foo" || names[1] != "Y-Bar" {
		t.Errorf("got %v", names)
	}
}

func TestTokenizerByteArrayFromLiteral(t *testing.T) {
	line, err := NewLineReader(byteReader("a1 {5}\r\nhello\r\n"), 0).ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	tok := NewTokenizer(line)
	if _, err := tok.ReadAtom(); err != nil {
		t.Fatal(err)
	}
	b, err := tok.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("got %q", b)
	}
}
