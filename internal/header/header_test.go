package header

import (
	"strings"
	"testing"

	"github.com/eslider/goimap/internal/protocol"
)

func parse(t *testing.T, raw string) *Store {
	t.Helper()
	s, err := ParseRaw([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRaw: %v", err)
	}
	return s
}

func TestStoreGetSetAddDel(t *testing.T) {
	s := parse(t, "Subject: hello\r\nX-Foo: one\r\n\r\n")
	if got := s.Get("Subject"); got != "hello" {
		t.Errorf("Get(Subject) = %q", got)
	}
	s.Set("Subject", "bye")
	if got := s.Get("Subject"); got != "bye" {
		t.Errorf("after Set, Get(Subject) = %q", got)
	}
	s.Add("X-Foo", "two")
	names := s.Names()
	count := 0
	for _, n := range names {
		if strings.EqualFold(n, "X-Foo") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Names() should list X-Foo once even with 2 values, got %v", names)
	}
	s.Del("X-Foo")
	if s.Has("X-Foo") {
		t.Error("expected X-Foo deleted")
	}
}

func TestStoreMatchingAndNonMatching(t *testing.T) {
	s := parse(t, "X-Foo: a\r\nY-Bar: b\r\nZ-Baz: c\r\n\r\n")
	matched := s.Matching([]string{"x-foo", "z-baz"})
	if !matched.Has("X-Foo") || !matched.Has("Z-Baz") || matched.Has("Y-Bar") {
		t.Errorf("Matching names = %v", matched.Names())
	}
	rest := s.NonMatching([]string{"x-foo", "z-baz"})
	if rest.Has("X-Foo") || rest.Has("Z-Baz") || !rest.Has("Y-Bar") {
		t.Errorf("NonMatching names = %v", rest.Names())
	}
}

func TestMergePartialRetainsUnreplacedFields(t *testing.T) {
	old := parse(t, "Subject: old-subject\r\nX-Tag: keep-me\r\nDate: old-date\r\n\r\n")
	fresh := parse(t, "Subject: new-subject\r\n\r\n")

	merged := MergePartial(old, fresh)

	if got := merged.Get("Subject"); got != "new-subject" {
		t.Errorf("Subject = %q, want new-subject", got)
	}
	if got := merged.Get("X-Tag"); got != "keep-me" {
		t.Errorf("X-Tag = %q, want retained keep-me", got)
	}
	if got := merged.Get("Date"); got != "old-date" {
		t.Errorf("Date = %q, want retained old-date", got)
	}
}

func TestMergePartialNilOldOrFresh(t *testing.T) {
	fresh := parse(t, "Subject: only-new\r\n\r\n")
	if got := MergePartial(nil, fresh); got != fresh {
		t.Error("MergePartial(nil, fresh) should return fresh unchanged")
	}
	old := parse(t, "Subject: only-old\r\n\r\n")
	if got := MergePartial(old, nil); got != old {
		t.Error("MergePartial(old, nil) should return old unchanged")
	}
}

func TestSetAddressListBuildsFromSuppliedAddresses(t *testing.T) {
	s := New()
	addrs := []protocol.Address{
		{Personal: "Alice", Mailbox: "alice", Host: "example.com"},
		{Mailbox: "bob", Host: "example.com"},
	}
	SetAddressList(s, "To", addrs)
	got := s.Get("To")
	want := "Alice <alice@example.com>, bob@example.com"
	if got != want {
		t.Errorf("To = %q, want %q", got, want)
	}
}

func TestSetAddressListEmptyDeletesField(t *testing.T) {
	s := parse(t, "To: someone@example.com\r\n\r\n")
	SetAddressList(s, "To", nil)
	if s.Has("To") {
		t.Error("expected To deleted when addrs is empty")
	}
}

func TestRawRoundTrip(t *testing.T) {
	s := parse(t, "Subject: hello\r\n\r\n")
	raw, err := s.Raw()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "Subject: hello") {
		t.Errorf("Raw() = %q", raw)
	}
}
