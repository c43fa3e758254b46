package errs

import (
	"errors"
	"testing"
)

func TestNewAndIs(t *testing.T) {
	err := New(KindFolderClosed, "folder INBOX is closed")
	if !Is(err, KindFolderClosed) {
		t.Fatal("expected Is to match KindFolderClosed")
	}
	if Is(err, KindConnection) {
		t.Fatal("expected Is to not match a different kind")
	}
	if !IsFolderClosed(err) {
		t.Fatal("expected IsFolderClosed helper to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(KindConnection, cause, "reading response")
	if !IsConnection(err) {
		t.Fatal("expected IsConnection to match")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected errors.As to find *Error")
	}
	if e.Unwrap() == nil {
		t.Fatal("expected Unwrap to return the eris-wrapped cause")
	}
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(KindTimeout, nil, "pool exhausted")
	if !IsTimeout(err) {
		t.Fatal("expected IsTimeout to match")
	}
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []Kind{
		KindConnection, KindProtocol, KindAuthentication, KindCommandFailed,
		KindInvalidCommand, KindUnsupportedOperation, KindFolderClosed,
		KindStoreClosed, KindReadOnlyFolder, KindMessageRemoved, KindRangeError,
		KindTimeout,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "UnknownError" {
			t.Errorf("Kind %d stringified to %q", k, s)
		}
		if seen[s] {
			t.Errorf("duplicate Kind string %q", s)
		}
		seen[s] = true
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindConnection) {
		t.Fatal("expected Is to return false for a non-*Error")
	}
}
