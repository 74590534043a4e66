package safe

import (
	"testing"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

func TestVectorOps(t *testing.T) {
	v := Vec(1, 2, 3).Add(Vec(1, 1, 1)).Sub(Vec(0, 1, 0)).Scale(2)
	want := Vector{X: 4, Y: 4, Z: 8}
	if v != want {
		t.Errorf("vector chain = %+v, want %+v", v, want)
	}

	if d := Vec(0, 0, 0).Distance(Vec(3, 4, 0)); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
}

func TestVectorSnap(t *testing.T) {
	v := Vec(1.24, -0.6, 7.51).Snap(0.5)
	want := Vector{X: 1.0, Y: -0.5, Z: 7.5}
	if v != want {
		t.Errorf("Snap(0.5) = %+v, want %+v", v, want)
	}

	if got := Vec(1.24, 0, 0).Snap(0); got != Vec(1.24, 0, 0) {
		t.Errorf("Snap(0) should be identity, got %+v", got)
	}
}

func TestParseColor(t *testing.T) {
	if _, err := ParseColor("#4A90D9"); err != nil {
		t.Errorf("ParseColor(#4A90D9) error: %v", err)
	}
	for _, bad := range []string{"4A90D9", "#4A90D", "#GGGGGG", "red", ""} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) should fail", bad)
		}
	}
}

func TestCheck_RefusesRendererObjects(t *testing.T) {
	payload := map[string]any{
		"name": "head",
		"position": map[string]any{
			"isVector3": true,
			"x":         1.0, "y": 2.0, "z": 3.0,
		},
	}
	err := Check(payload)
	if !fault.Is(err, fault.UnsafeObjectRefused) {
		t.Errorf("Check kind = %q, want unsafe_object_refused", fault.KindOf(err))
	}
}

func TestCheck_AcceptsPlainData(t *testing.T) {
	payload := map[string]any{
		"name":     "head",
		"color":    Color("#E67E22"),
		"position": Vec(0, 1, 0),
		"tags":     []any{"left", "arm"},
		"count":    3,
	}
	if err := Check(payload); err != nil {
		t.Errorf("Check(plain) error: %v", err)
	}
}

func TestClone_Deep(t *testing.T) {
	original := map[string]any{
		"ids":  []any{"a", "b"},
		"meta": map[string]any{"count": 2},
	}
	cloned, err := Clone(original)
	if err != nil {
		t.Fatalf("Clone error: %v", err)
	}

	// Mutating the clone must not reach the original.
	cm := cloned.(map[string]any)
	cm["ids"].([]any)[0] = "z"
	cm["meta"].(map[string]any)["count"] = 99

	if original["ids"].([]any)[0] != "a" {
		t.Error("clone shares slice storage with original")
	}
	if original["meta"].(map[string]any)["count"] != 2 {
		t.Error("clone shares map storage with original")
	}
}

func TestClone_RefusesUnknownTypes(t *testing.T) {
	type opaque struct{ fd uintptr }
	_, err := Clone(map[string]any{"handle": opaque{}})
	if !fault.Is(err, fault.UnsafeObjectRefused) {
		t.Errorf("Clone(opaque) kind = %q, want unsafe_object_refused", fault.KindOf(err))
	}
}
