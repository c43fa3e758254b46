package protocol

import "testing"

func readSection(t *testing.T, s string) *BodySection {
	t.Helper()
	tok := NewTokenizerBytes([]byte(s))
	sec, err := tok.ReadBodySection()
	if err != nil {
		t.Fatalf("ReadBodySection(%q): %v", s, err)
	}
	return sec
}

func TestReadBodySectionWhole(t *testing.T) {
	sec := readSection(t, "[]")
	if sec.Kind != SectionWhole || sec.PartNumber != "1" {
		t.Errorf("got %+v", sec)
	}
}

func TestReadBodySectionHeaderFieldsWithSubstring(t *testing.T) {
	sec := readSection(t, "[3.2.1.HEADER.FIELDS (X-Foo Y-Bar)]<0.1024>")
	if sec.Kind != SectionHeaderSubset {
		t.Fatalf("got kind %v", sec.Kind)
	}
	if sec.PartNumber != "3.2.1" {
		t.Errorf("PartNumber = %q", sec.PartNumber)
	}
	if len(sec.HeaderNames) != 2 || sec.HeaderNames[0] != "X-Foo" || sec.HeaderNames[1] != "Y-Bar" {
		t.Errorf("HeaderNames = %v", sec.HeaderNames)
	}
	if !sec.HasSubstring || sec.SubstringStart != 0 || sec.SubstringLength != 1024 {
		t.Errorf("substring = %+v", sec)
	}
}

func TestReadBodySectionHeaderFieldsNot(t *testing.T) {
	sec := readSection(t, "[HEADER.FIELDS.NOT (Received)]")
	if sec.Kind != SectionHeaderSubset || !sec.Not {
		t.Errorf("got %+v", sec)
	}
}

func TestReadBodySectionText(t *testing.T) {
	sec := readSection(t, "[TEXT]")
	if sec.Kind != SectionText || sec.PartNumber != "1" {
		t.Errorf("got %+v", sec)
	}
}

func TestReadBodySectionNestedMIME(t *testing.T) {
	sec := readSection(t, "[2.1.MIME]")
	if sec.Kind != SectionMIME || sec.PartNumber != "2.1" {
		t.Errorf("got %+v", sec)
	}
}

func TestBodySectionStringRoundTrip(t *testing.T) {
	sec := &BodySection{Kind: SectionHeaderSubset, PartNumber: "3.2.1", HeaderNames: []string{"X-Foo", "Y-Bar"}, HasSubstring: true, SubstringStart: 0, SubstringLength: 1024}
	str := sec.String()
	want := "[3.2.1.HEADER.FIELDS (X-Foo Y-Bar)]<0.1024>"
	if str != want {
		t.Errorf("got %q, want %q", str, want)
	}
	reparsed := readSection(t, str)
	if reparsed.Kind != sec.Kind || reparsed.PartNumber != sec.PartNumber {
		t.Errorf("round trip mismatch: %+v vs %+v", reparsed, sec)
	}
}
