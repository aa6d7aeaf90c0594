package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:     PhaseBind,
				Kind:      KindUnresolvedFunction,
				Component: "fountain.update",
				Name:      "sample-curve",
				Detail:    "no provider",
			},
			contains: []string{"[bind]", "unresolved_function", "fountain.update", "sample-curve", "no provider"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseExecute,
				Kind:  KindRegisterOverflow,
			},
			contains: []string{"[execute]", "register_overflow"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInstantiation,
				Detail: "kernel",
				Cause:  errors.New("underlying"),
			},
			contains: []string{"[load]", "instantiation", "caused by", "underlying"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Fatalf("expected %q in %q", s, msg)
				}
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := NotRunnable("fountain.update")

	if !errors.Is(err, &Error{Kind: KindNotRunnable}) {
		t.Fatal("should match on kind")
	}
	if !errors.Is(err, &Error{Phase: PhaseExecute, Kind: KindNotRunnable}) {
		t.Fatal("should match on phase and kind")
	}
	if errors.Is(err, &Error{Kind: KindCountMismatch}) {
		t.Fatal("should not match a different kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseTick, KindInvalidInput, cause, "context")

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should be reachable through errors.Is")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseSchema, KindSchemaLocked).
		Component("particles").
		Name("Position").
		Detail("locked after %d variables", 3).
		Build()

	if err.Component != "particles" || err.Name != "Position" {
		t.Fatalf("builder lost fields: %+v", err)
	}
	if err.Detail != "locked after 3 variables" {
		t.Fatalf("detail formatting failed: %q", err.Detail)
	}
}

func TestUnresolvedFunctionsError(t *testing.T) {
	err := &UnresolvedFunctionsError{
		Functions: []UnresolvedFunction{
			{Owner: "Collision", Function: "submit-ray"},
			{Owner: "Curve", Function: "sample-curve"},
		},
	}
	msg := err.Error()
	for _, s := range []string{"Collision#submit-ray", "Curve#sample-curve"} {
		if !strings.Contains(msg, s) {
			t.Fatalf("expected %q in %q", s, msg)
		}
	}
}
