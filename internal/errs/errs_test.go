package errs

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(FileAccess, "could not open plugin")
	if !Is(err, FileAccess) {
		t.Error("expected Is to match the error's own kind")
	}
	if Is(err, ParseFormat) {
		t.Error("expected Is to reject a different kind")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(FileAccess, "write cache", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through to the wrapped cause")
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := New(Sorting, "cyclic interaction detected: a -> b -> a")
	if err.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
