package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	err := Validation("start %s must be before end %s", "10:00", "09:00")
	if !IsValidation(err) {
		t.Error("expected IsValidation to be true")
	}
	if IsConflict(err) || IsNotFound(err) || IsExternal(err) {
		t.Error("validation error matched another predicate")
	}
	want := "start 10:00 must be before end 09:00"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("study", "abc-123")
	if err.Error() != "study abc-123 not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	err = NotFound("patient", "")
	if err.Error() != "patient not found" {
		t.Errorf("unexpected message without id: %q", err.Error())
	}
}

func TestExternal_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("ris", "fetch orders", cause)

	if !IsExternal(err) {
		t.Error("expected IsExternal to be true")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestPredicates_MatchWrappedErrors(t *testing.T) {
	err := fmt.Errorf("create appointment: %w", Conflict("resource ct-1 is already booked"))
	if !IsConflict(err) {
		t.Error("expected IsConflict to match through wrapping")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest},
		{"not found", NotFound("study", "x"), http.StatusNotFound},
		{"conflict", Conflict("overlap"), http.StatusConflict},
		{"external", External("pacs", "qido", errors.New("boom")), http.StatusBadGateway},
		{"unknown", errors.New("something else"), http.StatusInternalServerError},
		{"wrapped not found", fmt.Errorf("lookup: %w", NotFound("patient", "p1")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
