package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestWrap_KeepsChain(t *testing.T) {
	err := Wrap(io.EOF, "read descriptor")
	if !Is(err, io.EOF) {
		t.Errorf("wrapped error lost its cause: %v", err)
	}
	if err.Error() != "read descriptor: EOF" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestKindMatching(t *testing.T) {
	err := Wrap(New(KindConnection, "auth_rejected", "server said %d", 403), "connect")

	if !Is(err, ErrConnection) {
		t.Error("expected ErrConnection to match")
	}
	if Is(err, ErrNotFound) {
		t.Error("ErrNotFound should not match a connection error")
	}
	if KindOf(err) != KindConnection {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if ReasonOf(err) != "auth_rejected" {
		t.Errorf("ReasonOf = %q", ReasonOf(err))
	}
}

func TestClassify(t *testing.T) {
	if Classify(KindFetch, "plane", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	err := Classify(KindFetch, "plane", io.ErrUnexpectedEOF)
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Error("classified error should unwrap to its cause")
	}
	if got := fmt.Sprint(err); got != "fetch error (plane): unexpected EOF" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(io.EOF) != "" {
		t.Error("plain errors have no kind")
	}
}
