package chart

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

const spiral = "MR sc sc inc sc sc inc"

func TestWritten_SingleRound(t *testing.T) {
	c := Written(pattern.Parse(spiral))

	if len(c.Rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(c.Rounds))
	}
	r := c.Rounds[0]
	if r.Round != 1 || r.StitchCount != 8 {
		t.Errorf("round %d count %d, want 1 with 8 stitches", r.Round, r.StitchCount)
	}
	if r.Instruction != "MR, 2sc, inc, 2sc, inc" {
		t.Errorf("instruction = %q", r.Instruction)
	}
	if r.Repeat != nil {
		t.Errorf("repeat = %+v, want none for an aperiodic round", r.Repeat)
	}
}

func TestWritten_RepeatAnnotation(t *testing.T) {
	c := Written(pattern.Parse("sc inc sc inc sc inc"))

	if len(c.Rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(c.Rounds))
	}
	rep := c.Rounds[0].Repeat
	if rep == nil {
		t.Fatal("repeat not detected")
	}
	if rep.Pattern != "sc, inc" || rep.Times != 3 {
		t.Errorf("repeat = %+v, want (sc, inc) x3", rep)
	}
}

func TestMetadata(t *testing.T) {
	c := Written(pattern.Parse(spiral))

	want := Metadata{
		PatternLength:  7,
		UniqueStitches: 3,
		Difficulty:     pattern.Advanced,
		EstimatedSize:  "small",
	}
	if diff := cmp.Diff(want, c.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestCounts(t *testing.T) {
	c := Written(pattern.Parse(spiral))

	if c.Counts.Total != 7 {
		t.Errorf("total = %d, want 7", c.Counts.Total)
	}
	wantBy := map[pattern.Stitch]int{pattern.MagicRing: 1, pattern.Single: 4, pattern.Increase: 2}
	if diff := cmp.Diff(wantBy, c.Counts.ByStitch); diff != "" {
		t.Errorf("byStitch mismatch (-want +got):\n%s", diff)
	}
	wantPct := map[pattern.Stitch]float64{pattern.MagicRing: 14.3, pattern.Single: 57.1, pattern.Increase: 28.6}
	if diff := cmp.Diff(wantPct, c.Counts.Percentage); diff != "" {
		t.Errorf("percentage mismatch (-want +got):\n%s", diff)
	}
}

func TestSymbol_Layout(t *testing.T) {
	c := Symbol(pattern.Parse(spiral))

	if len(c.Rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(c.Rounds))
	}
	r := c.Rounds[0]
	if r.Radius != 30 {
		t.Errorf("radius = %v, want 30", r.Radius)
	}
	if len(r.Stitches) != 7 {
		t.Fatalf("placed stitches = %d, want 7", len(r.Stitches))
	}

	// First stitch sits at the top of the circle.
	first := r.Stitches[0]
	if math.Abs(first.X) > 1e-9 || math.Abs(first.Y+30) > 1e-9 {
		t.Errorf("first stitch at (%v, %v), want (0, -30)", first.X, first.Y)
	}
	if first.Symbol != "@" {
		t.Errorf("magic ring symbol = %q", first.Symbol)
	}

	second := r.Stitches[1]
	wantAngle := 2*math.Pi/7 - math.Pi/2
	if math.Abs(second.Angle-wantAngle) > 1e-9 {
		t.Errorf("second angle = %v, want %v", second.Angle, wantAngle)
	}
}

func TestGraph_CentersShorterRounds(t *testing.T) {
	c := Graph(pattern.Parse("ch ch ch join sc sc sc sc sc join"))

	if c.Height != 2 || c.Width != 6 {
		t.Fatalf("grid %dx%d, want 6x2", c.Width, c.Height)
	}
	// Row 0 is the first round, centered within the widest row.
	want := []string{"", "ch", "ch", "ch", "join", ""}
	if diff := cmp.Diff(want, c.Grid[0]); diff != "" {
		t.Errorf("bottom row mismatch (-want +got):\n%s", diff)
	}
	if c.Grid[1][0] != "sc" || c.Grid[1][5] != "join" {
		t.Errorf("top row = %v", c.Grid[1])
	}
}

func TestGraph_SingleRowForSpiral(t *testing.T) {
	c := Graph(pattern.Parse(spiral))
	if c.Height != 1 || c.Width != 7 {
		t.Errorf("grid %dx%d, want 7x1", c.Width, c.Height)
	}
}

func TestDiagram_Edges(t *testing.T) {
	c := Diagram(pattern.Parse("sc sc join sc sc sc sc join"))

	if len(c.Nodes) != 8 {
		t.Fatalf("nodes = %d, want 8", len(c.Nodes))
	}
	next, worked := 0, 0
	for _, e := range c.Edges {
		switch e.Type {
		case EdgeNextStitch:
			next++
		case EdgeWorkedInto:
			worked++
		}
	}
	if next != 6 {
		t.Errorf("next-stitch edges = %d, want 6", next)
	}
	if worked != 5 {
		t.Errorf("worked-into edges = %d, want 5", worked)
	}

	// Stitch 3 of the 5-token round maps down to ⌊3·3/5⌋ = 1.
	found := false
	for _, e := range c.Edges {
		if e.Type == EdgeWorkedInto && e.From == "r1s3" {
			found = true
			if e.To != "r0s1" {
				t.Errorf("r1s3 worked into %s, want r0s1", e.To)
			}
		}
	}
	if !found {
		t.Error("no worked-into edge from r1s3")
	}

	// Inner round sits closer to the center than the outer round.
	if c.Nodes[0].Y != -50 {
		t.Errorf("first node y = %v, want -50", c.Nodes[0].Y)
	}
}

func TestLayered_SingleRing(t *testing.T) {
	c := Layered(pattern.Parse(spiral))

	if len(c.Rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(c.Rings))
	}
	r := c.Rings[0]
	// Two increases push the cumulative expansion to 2.
	if r.Radius != 25 {
		t.Errorf("radius = %v, want 25", r.Radius)
	}
	if r.Segments != 8 || r.Z != 0 {
		t.Errorf("ring = %+v", r)
	}
	if got := len(c.Mesh.Vertices); got != 8*3 {
		t.Errorf("vertex floats = %d, want 24", got)
	}
	if len(c.Mesh.Indices) != 0 {
		t.Errorf("single ring should have no triangles, got %d indices", len(c.Mesh.Indices))
	}
	if len(c.Mesh.Normals) != len(c.Mesh.Vertices) {
		t.Errorf("normals = %d floats, want %d", len(c.Mesh.Normals), len(c.Mesh.Vertices))
	}
}

func TestLayered_SkinsBetweenRings(t *testing.T) {
	c := Layered(pattern.Parse("MR sc sc sc join sc sc sc sc join"))

	if len(c.Rings) != 2 {
		t.Fatalf("rings = %d, want 2", len(c.Rings))
	}
	if c.Rings[0].Segments != 3 || c.Rings[1].Segments != 4 {
		t.Errorf("segments = %d/%d, want 3/4", c.Rings[0].Segments, c.Rings[1].Segments)
	}
	if c.Rings[1].Z != layerHeight {
		t.Errorf("second ring z = %v, want %v", c.Rings[1].Z, layerHeight)
	}
	// Skinning steps follow the wider ring: 4 quads, 8 triangles.
	if got := len(c.Mesh.Indices); got != 8*3 {
		t.Errorf("indices = %d, want 24", got)
	}
	for _, idx := range c.Mesh.Indices {
		if int(idx) >= len(c.Mesh.Vertices)/3 {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := Generate(Kind("pie"), pattern.Parse(spiral))
	if !fault.Is(err, fault.ValidationFailed) {
		t.Errorf("error = %v, want validation_failed", err)
	}
}

func TestGenerate_Dispatch(t *testing.T) {
	for _, kind := range []Kind{KindWritten, KindSymbol, KindGraph, KindDiagram, KindLayered} {
		c, err := Generate(kind, pattern.Parse(spiral))
		if err != nil {
			t.Errorf("Generate(%s): %v", kind, err)
		}
		if c == nil {
			t.Errorf("Generate(%s) returned nil chart", kind)
		}
	}
}

func TestExportSVG(t *testing.T) {
	out := ExportSVG(Symbol(pattern.Parse(spiral)))

	if !strings.Contains(out, "<svg") || !strings.Contains(out, "</svg>") {
		t.Fatalf("not an svg document:\n%s", out)
	}
	if !strings.Contains(out, `r="30"`) {
		t.Error("guide circle for round 1 missing")
	}
	if !strings.Contains(out, ">x<") {
		t.Error("single crochet glyph missing")
	}
	if !strings.Contains(out, "#4A90D9") {
		t.Error("stitch color missing")
	}
}

func TestEmptyPattern(t *testing.T) {
	c := Written(nil)
	if len(c.Rounds) != 0 || c.Counts.Total != 0 {
		t.Errorf("empty pattern produced %+v", c)
	}
	l := Layered(nil)
	if len(l.Rings) != 0 || len(l.Mesh.Vertices) != 0 {
		t.Errorf("empty pattern produced rings: %+v", l.Rings)
	}
}
