package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Direct(t *testing.T) {
	err := New(Occupied, "point %s already in use", "neck")
	if got, want := KindOf(err), Occupied; got != want {
		t.Errorf("KindOf = %q, want %q", got, want)
	}
	if got, want := err.Error(), "occupied: point neck already in use"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(WouldCycle, "P1 and P3 already linked")
	wrapped := fmt.Errorf("connect failed: %w", inner)
	if !Is(wrapped, WouldCycle) {
		t.Errorf("Is(wrapped, WouldCycle) = false, want true")
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if got, want := KindOf(errors.New("boom")), Internal; got != want {
		t.Errorf("KindOf(foreign) = %q, want %q", got, want)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(Internal, nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	already := New(Locked, "piece is locked")
	if got := Wrap(Internal, already); !Is(got, Locked) {
		t.Errorf("Wrap should keep existing kind, got %q", KindOf(got))
	}

	converted := Wrap(Internal, errors.New("index out of range"))
	if !Is(converted, Internal) {
		t.Errorf("Wrap(foreign) kind = %q, want internal", KindOf(converted))
	}
}
