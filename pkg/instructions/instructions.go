// Package instructions turns an assembly into a step-by-step document:
// overview, materials, per-piece creation steps with round-grouped
// subinstructions, per-connection assembly steps and finishing tips.
package instructions

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

// DocType classifies a generated document.
type DocType string

const (
	TypeAssembly  DocType = "assembly"
	TypePattern   DocType = "pattern"
	TypeTechnique DocType = "technique"
)

// Section ids, in document order.
const (
	SectionOverview  = "overview"
	SectionMaterials = "materials"
	SectionPieces    = "piece-creation"
	SectionAssembly  = "assembly"
	SectionTips      = "tips"
)

// Step is one numbered instruction.
type Step struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	Sub    []string `json:"subinstructions,omitempty"`
}

// Section groups steps under a heading.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Metadata summarizes the documented project.
type Metadata struct {
	PieceCount       int `json:"pieceCount"`
	ConnectionCount  int `json:"connectionCount"`
	TotalStitches    int `json:"totalStitches"`
	EstimatedMinutes int `json:"estimatedMinutes"`
}

// Document is a complete instruction set for one assembly.
type Document struct {
	ID           string             `json:"id"`
	AssemblyID   string             `json:"assemblyId"`
	AssemblyName string             `json:"assemblyName"`
	Type         DocType            `json:"type"`
	Difficulty   pattern.Difficulty `json:"difficulty"`
	Language     string             `json:"language"`
	Generated    time.Time          `json:"generated"`
	Metadata     Metadata           `json:"metadata"`
	Sections     []Section          `json:"sections"`
}

// Options steer document generation.
type Options struct {
	Type     DocType `json:"type"`
	Language string  `json:"language"`
}

// Config wires a Generator; zero values use the clock and random ids.
type Config struct {
	Now   func() time.Time
	NewID func() string
}

// Generator builds instruction documents.
type Generator struct {
	now   func() time.Time
	newID func() string
}

// NewGenerator builds a Generator from cfg.
func NewGenerator(cfg Config) *Generator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Generator{now: cfg.Now, newID: cfg.NewID}
}

// perPieceMinutes and perConnectionMinutes feed the estimate shown in
// the overview.
const (
	perPieceMinutes      = 30
	perConnectionMinutes = 5
)

// Generate builds the document for a. Sections always appear in the
// same order even when empty.
func (g *Generator) Generate(a *assembly.Assembly, opts Options) *Document {
	if opts.Type == "" {
		opts.Type = TypeAssembly
	}
	if opts.Language == "" {
		opts.Language = "en"
	}

	pieces := a.PieceList()
	conns := a.ConnectionList()

	meta := Metadata{
		PieceCount:       len(pieces),
		ConnectionCount:  len(conns),
		EstimatedMinutes: len(pieces)*perPieceMinutes + len(conns)*perConnectionMinutes,
	}
	difficulty := pattern.Beginner
	for _, p := range pieces {
		meta.TotalStitches += pattern.StitchCount(p.Pattern)
		difficulty = pattern.MaxDifficulty(difficulty, pattern.AssessDifficulty(p.Pattern))
	}

	d := &Document{
		ID:           g.newID(),
		AssemblyID:   a.ID,
		AssemblyName: a.Name,
		Type:         opts.Type,
		Difficulty:   difficulty,
		Language:     opts.Language,
		Generated:    g.now(),
		Metadata:     meta,
		Sections: []Section{
			overviewSection(a, meta, difficulty),
			materialsSection(pieces),
			pieceSection(pieces),
			assemblySection(a, conns),
			tipsSection(pieces, difficulty),
		},
	}
	return d
}

func overviewSection(a *assembly.Assembly, meta Metadata, difficulty pattern.Difficulty) Section {
	s := Section{ID: SectionOverview, Title: "Overview"}
	s.Steps = append(s.Steps, Step{
		Number: 1,
		Title:  "About this project",
		Text: fmt.Sprintf("%s is assembled from %d pieces joined by %d connections.",
			a.Name, meta.PieceCount, meta.ConnectionCount),
	})
	s.Steps = append(s.Steps, Step{
		Number: 2,
		Title:  "Skill and time",
		Text: fmt.Sprintf("Rated %s. Expect roughly %d minutes of making and assembly.",
			difficulty, meta.EstimatedMinutes),
	})
	return s
}

func materialsSection(pieces []*assembly.Piece) Section {
	s := Section{ID: SectionMaterials, Title: "Materials"}

	byColor := map[string][]string{}
	for _, p := range pieces {
		color := string(p.Color)
		if color == "" {
			color = "your choice of color"
		}
		byColor[color] = append(byColor[color], p.Name)
	}
	colors := make([]string, 0, len(byColor))
	for color := range byColor {
		colors = append(colors, color)
	}
	sort.Strings(colors)

	n := 0
	for _, color := range colors {
		n++
		s.Steps = append(s.Steps, Step{
			Number: n,
			Title:  "Yarn in " + color,
			Text:   "Used for " + joinNames(byColor[color]) + ".",
		})
	}
	for _, item := range [][2]string{
		{"Crochet hook", "Sized to match your yarn weight."},
		{"Yarn needle", "For weaving ends and sewing seams."},
		{"Stitch markers", "Mark the start of each round."},
		{"Fiberfill stuffing", "Stuff pieces before closing."},
	} {
		n++
		s.Steps = append(s.Steps, Step{Number: n, Title: item[0], Text: item[1]})
	}
	return s
}

func pieceSection(pieces []*assembly.Piece) Section {
	s := Section{ID: SectionPieces, Title: "Make the Pieces"}
	for i, p := range pieces {
		step := Step{
			Number: i + 1,
			Title:  "Make the " + p.Name,
		}
		if len(p.Pattern) == 0 {
			step.Text = "Work this piece with your preferred pattern."
		} else {
			rounds := pattern.GroupIntoRounds(p.Pattern)
			noun := "rounds"
			if len(rounds) == 1 {
				noun = "round"
			}
			step.Text = fmt.Sprintf("Work %d stitches over %d %s.",
				pattern.StitchCount(p.Pattern), len(rounds), noun)
			for _, r := range rounds {
				step.Sub = append(step.Sub, fmt.Sprintf("Round %d: %s (%d sts)",
					r.Index, pattern.Condense(r.Stitches), pattern.StitchCount(r.Stitches)))
			}
		}
		s.Steps = append(s.Steps, step)
	}
	return s
}

func assemblySection(a *assembly.Assembly, conns []*assembly.Connection) Section {
	s := Section{ID: SectionAssembly, Title: "Assembly"}
	for i, c := range conns {
		p1 := a.Piece(c.A.PieceID)
		p2 := a.Piece(c.B.PieceID)
		if p1 == nil || p2 == nil {
			continue
		}
		step := Step{
			Number: i + 1,
			Title:  fmt.Sprintf("Attach %s to %s", typeOrName(p1), typeOrName(p2)),
		}
		pt1 := p1.Point(c.A.PointID)
		pt2 := p2.Point(c.B.PointID)
		if pt1 != nil && pt2 != nil {
			step.Text = fmt.Sprintf("Sew %s's %s to %s's %s with a whip stitch.",
				p1.Name, pt1.Name, p2.Name, pt2.Name)
		} else {
			step.Text = fmt.Sprintf("Sew %s to %s with a whip stitch.", p1.Name, p2.Name)
		}
		s.Steps = append(s.Steps, step)
	}
	return s
}

func tipsSection(pieces []*assembly.Piece, difficulty pattern.Difficulty) Section {
	s := Section{ID: SectionTips, Title: "Tips"}
	tips := []string{
		"Keep your tension even; amigurumi fabric should be tight enough to hide stuffing.",
		"Stuff firmly as you go. It is hard to add stuffing after closing a piece.",
	}
	if difficulty == pattern.Advanced {
		tips = append(tips, "Practice the magic ring on scrap yarn before starting.")
	}
	if hasShaping(pieces) {
		tips = append(tips, "Count your stitches after every round; shaping rounds drift easily.")
	}
	tips = append(tips, "Weave in ends as you finish each piece, not at the very end.")
	for i, tip := range tips {
		s.Steps = append(s.Steps, Step{Number: i + 1, Text: tip})
	}
	return s
}

func hasShaping(pieces []*assembly.Piece) bool {
	for _, p := range pieces {
		for _, st := range p.Pattern {
			if st == pattern.Increase || st == pattern.Decrease {
				return true
			}
		}
	}
	return false
}

func typeOrName(p *assembly.Piece) string {
	if p.Type != "" {
		return p.Type
	}
	return p.Name
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		out := ""
		for i, n := range names[:len(names)-1] {
			if i > 0 {
				out += ", "
			}
			out += n
		}
		return out + " and " + names[len(names)-1]
	}
}
