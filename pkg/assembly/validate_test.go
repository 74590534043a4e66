package assembly

import (
	"testing"

	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

func TestCheckConnection_ValidThenOccupied(t *testing.T) {
	pieceA := buildPiece("A", "A", "body", pt("a-top", "top", "bottom", "neck"))
	pieceB := buildPiece("B", "B", "head", pt("b-bottom", "bottom", "top"))
	a := buildAssembly(t, pieceA, pieceB)

	if v := a.CheckConnection("A", "a-top", "B", "b-bottom"); !v.Valid {
		t.Fatalf("first check invalid: %s (%s)", v.Reason, v.Detail)
	}
	if _, err := a.Connect("A", "a-top", "B", "b-bottom"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	v := a.CheckConnection("A", "a-top", "B", "b-bottom")
	if v.Valid {
		t.Fatal("second connect on same points accepted")
	}
	if v.Reason != ReasonOccupied {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonOccupied)
	}
}

func TestCheckConnection_MissingPoints(t *testing.T) {
	a := buildAssembly(t, buildPiece("A", "A", "body", pt("a1", "top", Universal)))
	if v := a.CheckConnection("A", "a1", "ghost", "g1"); v.Reason != ReasonMissingPoints {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonMissingPoints)
	}
	b := buildPiece("B", "B", "head", pt("b1", "bottom", Universal))
	a.AddPiece(b)
	if v := a.CheckConnection("A", "ghost", "B", "b1"); v.Reason != ReasonMissingPoints {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonMissingPoints)
	}
}

func TestCheckConnection_SelfConnection(t *testing.T) {
	p := buildPiece("A", "A", "body",
		pt("a1", "top", Universal), pt("a2", "bottom", Universal))
	a := buildAssembly(t, p)
	if v := a.CheckConnection("A", "a1", "A", "a2"); v.Reason != ReasonSelfConnection {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonSelfConnection)
	}
}

func TestCheckConnection_Incompatible(t *testing.T) {
	a := buildAssembly(t,
		buildPiece("A", "A", "body", pt("a1", "top", "wrist")),
		buildPiece("B", "B", "head", pt("b1", "bottom", "ankle")))
	if v := a.CheckConnection("A", "a1", "B", "b1"); v.Reason != ReasonIncompatible {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonIncompatible)
	}
}

func TestCheckConnection_UniversalMatchesAnything(t *testing.T) {
	a := buildAssembly(t,
		buildPiece("A", "A", "body", pt("a1", "top", Universal)),
		buildPiece("B", "B", "head", pt("b1", "bottom", Universal)))
	if v := a.CheckConnection("A", "a1", "B", "b1"); !v.Valid {
		t.Errorf("universal pair refused: %s", v.Reason)
	}
}

func TestCheckConnection_SizeMismatch(t *testing.T) {
	p1 := buildPiece("A", "A", "body", pt("a1", "top", Universal))
	p1.Points[0].Size = 1
	p2 := buildPiece("B", "B", "head", pt("b1", "bottom", Universal))
	p2.Points[0].Size = 4
	a := buildAssembly(t, p1, p2)
	if v := a.CheckConnection("A", "a1", "B", "b1"); v.Reason != ReasonSizeMismatch {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonSizeMismatch)
	}

	// Unsized points skip the gap rule.
	p2.Points[0].Size = 0
	if v := a.CheckConnection("A", "a1", "B", "b1"); !v.Valid {
		t.Errorf("unsized pair refused: %s", v.Reason)
	}
}

func TestCheckConnection_WouldCycle(t *testing.T) {
	p1 := buildPiece("P1", "P1", "body",
		pt("p1a", "a", Universal), pt("p1b", "b", Universal))
	p2 := buildPiece("P2", "P2", "head",
		pt("p2a", "a", Universal), pt("p2b", "b", Universal))
	p3 := buildPiece("P3", "P3", "arm",
		pt("p3a", "a", Universal), pt("p3b", "b", Universal))
	a := buildAssembly(t, p1, p2, p3)

	if _, err := a.Connect("P1", "p1a", "P2", "p2a"); err != nil {
		t.Fatalf("P1-P2: %v", err)
	}
	if _, err := a.Connect("P2", "p2b", "P3", "p3a"); err != nil {
		t.Fatalf("P2-P3: %v", err)
	}

	v := a.CheckConnection("P1", "p1b", "P3", "p3b")
	if v.Valid {
		t.Fatal("cycle-closing connection accepted")
	}
	if v.Reason != ReasonWouldCycle {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonWouldCycle)
	}
}

func TestCheckConnection_MultiEdge(t *testing.T) {
	p1 := buildPiece("P1", "P1", "body",
		pt("p1a", "a", Universal), pt("p1b", "b", Universal))
	p2 := buildPiece("P2", "P2", "head",
		pt("p2a", "a", Universal), pt("p2b", "b", Universal))
	a := buildAssembly(t, p1, p2)

	if _, err := a.Connect("P1", "p1a", "P2", "p2a"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	v := a.CheckConnection("P1", "p1b", "P2", "p2b")
	if v.Reason != ReasonMultiEdge {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonMultiEdge)
	}
}

func TestCheckConnection_FreemiumCustomPiece(t *testing.T) {
	custom := buildPiece("C", "Custom", "tail", pt("c1", "base", Universal))
	custom.Custom = true
	body := buildPiece("B", "Body", "body", pt("b1", "back", Universal))

	a := New("a", "a", tier.Freemium)
	a.AddPiece(custom)
	a.AddPiece(body)
	if v := a.CheckConnection("B", "b1", "C", "c1"); v.Reason != ReasonTierRestricted {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonTierRestricted)
	}

	a.Tier = tier.Pro
	if v := a.CheckConnection("B", "b1", "C", "c1"); !v.Valid {
		t.Errorf("pro tier refused custom piece: %s", v.Reason)
	}
}

// hasError reports whether any blocking finding mentions the piece.
func hasError(r ValidationResult, pieceID string) bool {
	for _, e := range r.Errors {
		if e.PieceID == pieceID {
			return true
		}
	}
	return false
}

// hasWarning reports whether any advisory finding mentions the piece.
func hasWarning(r ValidationResult, pieceID string) bool {
	for _, w := range r.Warnings {
		if w.PieceID == pieceID {
			return true
		}
	}
	return false
}

func TestValidate_CleanAssembly(t *testing.T) {
	body := buildPiece("body", "Body", "body", pt("b1", "neck_joint", "neck"))
	head := buildPiece("head", "Head", "head", pt("h1", "neck", "neck_joint"))
	a := buildAssembly(t, body, head)
	if _, err := a.Connect("body", "b1", "head", "h1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	r := Validate(a)
	if !r.Valid() {
		t.Errorf("valid assembly reported errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
}

func TestValidate_OrphanWarning(t *testing.T) {
	body := buildPiece("body", "Body", "body", pt("b1", "neck_joint", "neck"))
	head := buildPiece("head", "Head", "head", pt("h1", "neck", "neck_joint"))
	arm := buildPiece("arm", "Arm", "arm", pt("a1", "shoulder", Universal))
	a := buildAssembly(t, body, head, arm)
	a.Connect("body", "b1", "head", "h1")

	r := Validate(a)
	if !r.Valid() {
		t.Fatalf("orphan should not block: %v", r.Errors)
	}
	if !hasWarning(r, "arm") {
		t.Errorf("missing orphan warning for arm: %v", r.Warnings)
	}
}

func TestValidate_OccupancyDrift(t *testing.T) {
	body := buildPiece("body", "Body", "body", pt("b1", "neck_joint", "neck"))
	head := buildPiece("head", "Head", "head", pt("h1", "neck", "neck_joint"))
	a := buildAssembly(t, body, head)
	a.Connect("body", "b1", "head", "h1")

	// Corrupt the derived flag directly.
	head.Points[0].Occupied = false

	r := Validate(a)
	if r.Valid() {
		t.Fatal("occupancy drift not detected")
	}
	if !hasError(r, "head") {
		t.Errorf("drift not attributed to head: %v", r.Errors)
	}
}

func TestIntegrityScore(t *testing.T) {
	body := buildPiece("body", "Body", "body", pt("b1", "neck_joint", "neck"))
	head := buildPiece("head", "Head", "head", pt("h1", "neck", "neck_joint"))
	arm := buildPiece("arm", "Arm", "arm", pt("a1", "shoulder", Universal))
	a := buildAssembly(t, body, head, arm)
	a.Connect("body", "b1", "head", "h1")

	got := a.IntegrityScore()
	want := 2.0 / 3.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("IntegrityScore = %v, want %v", got, want)
	}

	if s := New("x", "x", tier.Pro).IntegrityScore(); s != 1 {
		t.Errorf("empty assembly score = %v, want 1", s)
	}
}

func TestBestPointPair_PrefersNameMatch(t *testing.T) {
	body := buildPiece("body", "Body", "body",
		&ConnectionPoint{ID: "b1", Name: "neck_joint", Compatible: []string{"neck"},
			Position: safe.Vector{X: 10}},
		&ConnectionPoint{ID: "b2", Name: "back", Compatible: []string{Universal},
			Position: safe.Vector{}},
	)
	head := buildPiece("head", "Head", "head",
		&ConnectionPoint{ID: "h1", Name: "neck", Compatible: []string{"neck_joint", "back"},
			Position: safe.Vector{}},
	)

	a, b, ok := BestPointPair(body, head)
	if !ok {
		t.Fatal("no pair found")
	}
	// The mutual-name pair wins despite the larger distance; back-neck is
	// closer but only one-way named.
	if a.ID != "b1" || b.ID != "h1" {
		t.Errorf("pair = %s-%s, want b1-h1", a.ID, b.ID)
	}
}

func TestBestPointPair_FallsBackToDistance(t *testing.T) {
	p1 := buildPiece("p1", "P1", "arm",
		&ConnectionPoint{ID: "x1", Name: "a", Compatible: []string{Universal}, Position: safe.Vector{X: 5}},
		&ConnectionPoint{ID: "x2", Name: "b", Compatible: []string{Universal}, Position: safe.Vector{X: 1}},
	)
	p2 := buildPiece("p2", "P2", "leg",
		&ConnectionPoint{ID: "y1", Name: "c", Compatible: []string{Universal}, Position: safe.Vector{}},
	)

	a, b, ok := BestPointPair(p1, p2)
	if !ok {
		t.Fatal("no pair found")
	}
	if a.ID != "x2" || b.ID != "y1" {
		t.Errorf("pair = %s-%s, want x2-y1 (closest)", a.ID, b.ID)
	}
}
