package apperrors

import (
	"errors"
	"testing"
)

func TestErrorWrapsAndUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := New(KindTransport, cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}

	kind, ok := KindOf(err)
	if !ok || kind != KindTransport {
		t.Errorf("KindOf = %q, %v, want %q, true", kind, ok, KindTransport)
	}
}

func TestNewWithNilErrReturnsNil(t *testing.T) {
	t.Parallel()

	if err := New(KindFatal, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestKindOfMisses(t *testing.T) {
	t.Parallel()

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("expected KindOf to miss on a plain error")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	t.Parallel()

	withBody := NewHTTPError(404, "not found")
	if withBody.Error() != "HTTP 404: not found" {
		t.Errorf("got %q", withBody.Error())
	}

	withoutBody := NewHTTPError(500, "")
	if withoutBody.Error() != "HTTP 500" {
		t.Errorf("got %q", withoutBody.Error())
	}
}
