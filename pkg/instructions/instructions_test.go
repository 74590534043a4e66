package instructions

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

var docTime = time.Date(2025, 3, 20, 16, 0, 0, 0, time.UTC)

func testGenerator() *Generator {
	return NewGenerator(Config{
		Now:   func() time.Time { return docTime },
		NewID: func() string { return "doc-1" },
	})
}

func buildBear(t *testing.T) *assembly.Assembly {
	t.Helper()
	a := assembly.New("bear-1", "Bear", tier.Pro)

	body := assembly.NewPiece("body", "Body", "body")
	body.Color = "#4A90D9"
	body.Pattern = pattern.Parse("MR sc sc inc sc sc inc")
	body.AddPoint(&assembly.ConnectionPoint{ID: "b-neck", Name: "neck_joint", Compatible: []string{"neck"}})

	head := assembly.NewPiece("head", "Head", "head")
	head.AddPoint(&assembly.ConnectionPoint{ID: "h-neck", Name: "neck", Compatible: []string{"neck_joint"}})

	if err := a.AddPiece(body); err != nil {
		t.Fatalf("AddPiece body: %v", err)
	}
	if err := a.AddPiece(head); err != nil {
		t.Fatalf("AddPiece head: %v", err)
	}
	if _, err := a.Connect("body", "b-neck", "head", "h-neck"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func section(t *testing.T, d *Document, id string) Section {
	t.Helper()
	for _, s := range d.Sections {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("section %q missing", id)
	return Section{}
}

func TestGenerate_DocumentShape(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})

	if d.ID != "doc-1" || d.AssemblyID != "bear-1" || d.AssemblyName != "Bear" {
		t.Errorf("identity = %s/%s/%s", d.ID, d.AssemblyID, d.AssemblyName)
	}
	if d.Type != TypeAssembly || d.Language != "en" {
		t.Errorf("defaults = %s/%s, want assembly/en", d.Type, d.Language)
	}
	if d.Difficulty != pattern.Advanced {
		t.Errorf("difficulty = %s, want advanced for a magic ring pattern", d.Difficulty)
	}
	if !d.Generated.Equal(docTime) {
		t.Errorf("generated = %v", d.Generated)
	}

	want := Metadata{PieceCount: 2, ConnectionCount: 1, TotalStitches: 8, EstimatedMinutes: 65}
	if diff := cmp.Diff(want, d.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_SectionOrder(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})

	var ids []string
	for _, s := range d.Sections {
		ids = append(ids, s.ID)
	}
	want := []string{SectionOverview, SectionMaterials, SectionPieces, SectionAssembly, SectionTips}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("section order mismatch (-want +got):\n%s", diff)
	}
}

func TestPieceSteps(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})
	sec := section(t, d, SectionPieces)

	if len(sec.Steps) != 2 {
		t.Fatalf("steps = %d, want one per piece", len(sec.Steps))
	}
	body := sec.Steps[0]
	if body.Title != "Make the Body" {
		t.Errorf("title = %q", body.Title)
	}
	if len(body.Sub) != 1 || body.Sub[0] != "Round 1: MR, 2sc, inc, 2sc, inc (8 sts)" {
		t.Errorf("subinstructions = %v", body.Sub)
	}

	head := sec.Steps[1]
	if head.Title != "Make the Head" || len(head.Sub) != 0 {
		t.Errorf("patternless piece step = %+v", head)
	}
}

func TestAssemblySteps(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})
	sec := section(t, d, SectionAssembly)

	if len(sec.Steps) != 1 {
		t.Fatalf("steps = %d, want one per connection", len(sec.Steps))
	}
	step := sec.Steps[0]
	if step.Title != "Attach body to head" {
		t.Errorf("title = %q, want piece types", step.Title)
	}
	if !strings.Contains(step.Text, "Body's neck_joint") || !strings.Contains(step.Text, "Head's neck") {
		t.Errorf("text = %q", step.Text)
	}
}

func TestMaterials_GroupsByColor(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})
	sec := section(t, d, SectionMaterials)

	if sec.Steps[0].Title != "Yarn in #4A90D9" {
		t.Errorf("first material = %q", sec.Steps[0].Title)
	}
	if !strings.Contains(sec.Steps[0].Text, "Body") {
		t.Errorf("color users = %q", sec.Steps[0].Text)
	}
	last := sec.Steps[len(sec.Steps)-1]
	if last.Title != "Fiberfill stuffing" {
		t.Errorf("notions missing, last = %q", last.Title)
	}
}

func TestTips_FollowDifficultyAndShaping(t *testing.T) {
	d := testGenerator().Generate(buildBear(t), Options{})
	tips := section(t, d, SectionTips)

	joined := ""
	for _, s := range tips.Steps {
		joined += s.Text + "\n"
	}
	if !strings.Contains(joined, "magic ring") {
		t.Error("advanced pattern should add a magic ring tip")
	}
	if !strings.Contains(joined, "Count your stitches") {
		t.Error("shaping should add a counting tip")
	}

	plain := assembly.New("flat-1", "Flat", tier.Freemium)
	p := assembly.NewPiece("square", "Square", "panel")
	p.Pattern = pattern.Parse("ch ch ch sc sc sc")
	if err := plain.AddPiece(p); err != nil {
		t.Fatalf("AddPiece: %v", err)
	}
	d2 := testGenerator().Generate(plain, Options{})
	joined2 := ""
	for _, s := range section(t, d2, SectionTips).Steps {
		joined2 += s.Text + "\n"
	}
	if strings.Contains(joined2, "magic ring") || strings.Contains(joined2, "Count your stitches") {
		t.Error("beginner flat pattern should not get shaping tips")
	}
}

func TestExportHTML(t *testing.T) {
	out := ExportHTML(testGenerator().Generate(buildBear(t), Options{}))

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<h1>Bear</h1>",
		"<h2>Make the Pieces</h2>",
		"<li><strong>Make the Body.</strong>",
		"<li>Round 1: MR, 2sc, inc, 2sc, inc (8 sts)</li>",
		"</html>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestExportMarkdown(t *testing.T) {
	out := ExportMarkdown(testGenerator().Generate(buildBear(t), Options{}))

	if !strings.HasPrefix(out, "# Bear\n") {
		t.Errorf("markdown starts with %q", out[:20])
	}
	for _, want := range []string{
		"## Materials",
		"- **Crochet hook**:",
		"### Step 1: Make the Body",
		"- Round 1: MR, 2sc, inc, 2sc, inc (8 sts)",
		"### Step 1: Attach body to head",
		"## Tips",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(out, "<h1>") {
		t.Error("markdown contains html")
	}
}
