package protocol

import (
	"reflect"
	"testing"
)

func TestEncodeMessageSet(t *testing.T) {
	cases := []struct {
		in   []uint32
		want string
	}{
		{nil, ""},
		{[]uint32{1}, "1"},
		{[]uint32{1, 2, 3}, "1:3"},
		{[]uint32{1, 3, 4, 5, 8}, "1,3:5,8"},
		{[]uint32{5, 4, 3, 1}, "1,3:5"}, // unsorted input
		{[]uint32{2, 2, 2}, "2"},        // duplicates collapse
	}
	for _, c := range cases {
		got := EncodeMessageSet(c.in)
		if got != c.want {
			t.Errorf("EncodeMessageSet(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

// Invariant 5 in spec.md §8: parseSet(encodeSet(L)) == L for every sorted,
// deduplicated list L.
func TestMessageSetRoundTrip(t *testing.T) {
	cases := [][]uint32{
		{1},
		{1, 2, 3, 4},
		{1, 3, 5, 7},
		{1, 2, 3, 10, 11, 12, 20},
		{42},
	}
	for _, want := range cases {
		encoded := EncodeMessageSet(want)
		got, err := DecodeMessageSet(encoded, 0)
		if err != nil {
			t.Fatalf("DecodeMessageSet(%q): %v", encoded, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip %v -> %q -> %v", want, encoded, got)
		}
	}
}

func TestDecodeMessageSetStar(t *testing.T) {
	got, err := DecodeMessageSet("5:*", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{5, 6, 7, 8, 9, 10}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeMessageSetRejectsEmptyElement(t *testing.T) {
	if _, err := DecodeMessageSet("1,,3", 0); err == nil {
		t.Fatal("expected an error for an empty set element")
	}
}

func TestEncodeMessageSetEmpty(t *testing.T) {
	if got := EncodeMessageSet(nil); got != "" {
		t.Errorf("EncodeMessageSet(nil) = %q, want empty string", got)
	}
}
