package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorsIsComparesByKind(t *testing.T) {
	err := New(KindNotConnected, "device %s is not connected", "AA:BB").WithAddress("AA:BB")
	if !errors.Is(err, ErrNotConnected) {
		t.Error("expected errors.Is to match by kind")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is to reject a different kind")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(KindTimeout, cause, "command timed out")
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through to the wrapped cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindUnknownDevice, http.StatusNotFound},
		{KindInvalidArgs, http.StatusBadRequest},
		{KindNotConnected, http.StatusBadRequest},
		{KindNotReachable, http.StatusNotFound},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindNoStatusReceived, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := New(c.kind, "x")
		if got := HTTPStatus(err); got != c.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestHTTPStatusNonAppError(t *testing.T) {
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("expected 500 for non-app error, got %d", got)
	}
}
