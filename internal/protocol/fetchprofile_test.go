package protocol

import (
	"strings"
	"testing"
)

func writeItems(p *FetchProfile) string {
	c := NewCommand("a1", "FETCH")
	c.Space()
	WriteFetchItems(c, p)
	segs := c.Segments()
	return strings.TrimSuffix(string(segs[len(segs)-1].Data), "\r\n")
}

func TestWriteFetchItemsSingleItemWrapped(t *testing.T) {
	p := &FetchProfile{Flags: true}
	got := writeItems(p)
	want := "a1 FETCH (FLAGS)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteFetchItemsStandardProfile(t *testing.T) {
	got := writeItems(StandardProfile())
	want := "a1 FETCH (FLAGS INTERNALDATE RFC822.SIZE UID)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteFetchItemsFullProfile(t *testing.T) {
	got := writeItems(FullProfile())
	want := "a1 FETCH (FLAGS ENVELOPE BODYSTRUCTURE INTERNALDATE RFC822.SIZE UID)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteFetchItemsWithSection(t *testing.T) {
	p := NewFetchProfile().WithSection(&BodySection{Kind: SectionWhole, PartNumber: "1"}, true)
	got := writeItems(p)
	want := "a1 FETCH (BODY.PEEK[])"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteFetchItemsMultipleSections(t *testing.T) {
	p := NewFetchProfile().
		WithSection(&BodySection{Kind: SectionHeaders, PartNumber: "1"}, true).
		WithSection(&BodySection{Kind: SectionText, PartNumber: "1"}, false)
	got := writeItems(p)
	want := "a1 FETCH (BODY.PEEK[HEADER] BODY[TEXT])"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
