// Package chart derives renderable chart data from stitch patterns.
// Generators are pure functions of the pattern; the same input always
// produces the same chart.
package chart

import (
	"fmt"
	"math"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

// Kind selects a chart generator.
type Kind string

const (
	KindWritten Kind = "written"
	KindSymbol  Kind = "symbol"
	KindGraph   Kind = "graph"
	KindDiagram Kind = "diagram"
	KindLayered Kind = "layered3d"
)

// Metadata rides on every chart kind.
type Metadata struct {
	PatternLength  int                `json:"patternLength"`
	UniqueStitches int                `json:"uniqueStitches"`
	Difficulty     pattern.Difficulty `json:"difficulty"`
	EstimatedSize  string             `json:"estimatedSize"`
}

// LegendEntry describes one stitch used by the pattern.
type LegendEntry struct {
	Stitch pattern.Stitch `json:"stitch"`
	Symbol string         `json:"symbol"`
	Name   string         `json:"name"`
	Color  string         `json:"color"`
}

// Counts tallies token usage across the whole pattern.
type Counts struct {
	Total      int                        `json:"total"`
	ByStitch   map[pattern.Stitch]int     `json:"byStitch"`
	Percentage map[pattern.Stitch]float64 `json:"percentage"`
}

// glyph is one row of the fixed stitch-symbol table.
type glyph struct {
	symbol string
	name   string
	color  string
}

// palette matches the renderer's default part colors.
var palette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// symbolTable is the fixed stitch-symbol assignment used by symbol and
// diagram charts. Symbols follow standard crochet chart notation.
var symbolTable = map[pattern.Stitch]glyph{
	pattern.MagicRing:    {"@", "magic ring", palette[3]},
	pattern.Chain:        {"o", "chain", palette[6]},
	pattern.Slip:         {".", "slip stitch", palette[5]},
	pattern.Single:       {"x", "single crochet", palette[0]},
	pattern.HalfDouble:   {"T", "half double crochet", palette[2]},
	pattern.Double:       {"F", "double crochet", palette[1]},
	pattern.Treble:       {"E", "treble crochet", palette[4]},
	pattern.DoubleTreble: {"E+", "double treble crochet", palette[4]},
	pattern.Increase:     {"V", "increase", palette[5]},
	pattern.Decrease:     {"A", "decrease", palette[7]},
	pattern.FastenOff:    {"*", "fasten off", palette[3]},
	pattern.Turn:         {"<", "turn", palette[6]},
	pattern.Join:         {"+", "join", palette[6]},
}

func glyphFor(s pattern.Stitch) glyph {
	if g, ok := symbolTable[s]; ok {
		return g
	}
	return glyph{"?", string(s), palette[0]}
}

func buildMetadata(p pattern.Pattern) Metadata {
	return Metadata{
		PatternLength:  len(p),
		UniqueStitches: len(p.Unique()),
		Difficulty:     pattern.AssessDifficulty(p),
		EstimatedSize:  estimatedSize(pattern.StitchCount(p)),
	}
}

// estimatedSize buckets the finished object by worked stitch count.
func estimatedSize(stitches int) string {
	switch {
	case stitches <= 50:
		return "small"
	case stitches <= 200:
		return "medium"
	default:
		return "large"
	}
}

func buildLegend(p pattern.Pattern) []LegendEntry {
	unique := p.Unique()
	out := make([]LegendEntry, 0, len(unique))
	for _, s := range unique {
		g := glyphFor(s)
		out = append(out, LegendEntry{Stitch: s, Symbol: g.symbol, Name: g.name, Color: g.color})
	}
	return out
}

func buildCounts(p pattern.Pattern) Counts {
	c := Counts{
		Total:      len(p),
		ByStitch:   make(map[pattern.Stitch]int),
		Percentage: make(map[pattern.Stitch]float64),
	}
	for _, s := range p {
		c.ByStitch[s]++
	}
	for s, n := range c.ByStitch {
		c.Percentage[s] = math.Round(float64(n)/float64(c.Total)*1000) / 10
	}
	return c
}

// RepeatNote annotates a round whose tokens form a repeating run.
type RepeatNote struct {
	Pattern string `json:"pattern"`
	Times   int    `json:"times"`
}

// WrittenRound is one line of a written chart.
type WrittenRound struct {
	Round       int         `json:"round"`
	Instruction string      `json:"instruction"`
	StitchCount int         `json:"stitchCount"`
	Repeat      *RepeatNote `json:"repeat,omitempty"`
}

// WrittenChart is the run-length-encoded text form of a pattern.
type WrittenChart struct {
	Kind     Kind           `json:"kind"`
	Metadata Metadata       `json:"metadata"`
	Legend   []LegendEntry  `json:"legend"`
	Counts   Counts         `json:"counts"`
	Rounds   []WrittenRound `json:"rounds"`
}

// Written renders the pattern as round-by-round instructions.
func Written(p pattern.Pattern) *WrittenChart {
	c := &WrittenChart{
		Kind:     KindWritten,
		Metadata: buildMetadata(p),
		Legend:   buildLegend(p),
		Counts:   buildCounts(p),
	}
	for _, r := range pattern.GroupIntoRounds(p) {
		wr := WrittenRound{
			Round:       r.Index,
			Instruction: pattern.Condense(r.Stitches),
			StitchCount: pattern.StitchCount(r.Stitches),
		}
		if rep := pattern.FindRepeat(r.Stitches); rep != nil {
			wr.Repeat = &RepeatNote{Pattern: pattern.Condense(rep.Pattern), Times: rep.Repeats}
		}
		c.Rounds = append(c.Rounds, wr)
	}
	return c
}

// SymbolStitch is one placed glyph on a symbol chart.
type SymbolStitch struct {
	Index  int            `json:"index"`
	Stitch pattern.Stitch `json:"stitch"`
	Symbol string         `json:"symbol"`
	Color  string         `json:"color"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Angle  float64        `json:"angle"`
}

// SymbolRound is one ring of glyphs.
type SymbolRound struct {
	Round    int            `json:"round"`
	Radius   float64        `json:"radius"`
	Stitches []SymbolStitch `json:"stitches"`
}

// SymbolChart lays the pattern out on concentric circles.
type SymbolChart struct {
	Kind     Kind          `json:"kind"`
	Metadata Metadata      `json:"metadata"`
	Legend   []LegendEntry `json:"legend"`
	Counts   Counts        `json:"counts"`
	Rounds   []SymbolRound `json:"rounds"`
}

// Symbol renders the pattern as an in-the-round symbol chart. Round i
// sits on a circle of radius 30 + 25i with the first stitch at the top.
func Symbol(p pattern.Pattern) *SymbolChart {
	c := &SymbolChart{
		Kind:     KindSymbol,
		Metadata: buildMetadata(p),
		Legend:   buildLegend(p),
		Counts:   buildCounts(p),
	}
	for ri, r := range pattern.GroupIntoRounds(p) {
		radius := 30 + float64(ri)*25
		sr := SymbolRound{Round: r.Index, Radius: radius}
		n := len(r.Stitches)
		for i, s := range r.Stitches {
			angle := float64(i)*2*math.Pi/float64(n) - math.Pi/2
			g := glyphFor(s)
			sr.Stitches = append(sr.Stitches, SymbolStitch{
				Index:  i,
				Stitch: s,
				Symbol: g.symbol,
				Color:  g.color,
				X:      radius * math.Cos(angle),
				Y:      radius * math.Sin(angle),
				Angle:  angle,
			})
		}
		c.Rounds = append(c.Rounds, sr)
	}
	return c
}

// GraphChart is a flat cell grid, one row per round, bottom-up.
type GraphChart struct {
	Kind     Kind          `json:"kind"`
	Metadata Metadata      `json:"metadata"`
	Legend   []LegendEntry `json:"legend"`
	Counts   Counts        `json:"counts"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Grid     [][]string    `json:"grid"`
}

// Graph renders the pattern as a grid. Row 0 is the first round; rows
// shorter than the widest round are centered with empty cells.
func Graph(p pattern.Pattern) *GraphChart {
	c := &GraphChart{
		Kind:     KindGraph,
		Metadata: buildMetadata(p),
		Legend:   buildLegend(p),
		Counts:   buildCounts(p),
	}
	rounds := pattern.GroupIntoRounds(p)
	for _, r := range rounds {
		if len(r.Stitches) > c.Width {
			c.Width = len(r.Stitches)
		}
	}
	c.Height = len(rounds)
	for _, r := range rounds {
		row := make([]string, c.Width)
		offset := (c.Width - len(r.Stitches)) / 2
		for i, s := range r.Stitches {
			row[offset+i] = string(s)
		}
		c.Grid = append(c.Grid, row)
	}
	return c
}

// Edge types in a diagram chart.
const (
	EdgeNextStitch = "next-stitch"
	EdgeWorkedInto = "worked-into"
)

// DiagramNode is one stitch in the connectivity diagram.
type DiagramNode struct {
	ID     string         `json:"id"`
	Round  int            `json:"round"`
	Index  int            `json:"index"`
	Stitch pattern.Stitch `json:"stitch"`
	Symbol string         `json:"symbol"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
}

// DiagramEdge links two diagram nodes.
type DiagramEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// DiagramChart shows which stitch is worked into which.
type DiagramChart struct {
	Kind     Kind          `json:"kind"`
	Metadata Metadata      `json:"metadata"`
	Legend   []LegendEntry `json:"legend"`
	Counts   Counts        `json:"counts"`
	Nodes    []DiagramNode `json:"nodes"`
	Edges    []DiagramEdge `json:"edges"`
}

// Diagram renders the pattern as a node/edge connectivity graph. Nodes
// sit at polar (50 + 30r, i·2π/n - π/2); each stitch links to its
// successor in the round and to the stitch below it was worked into.
func Diagram(p pattern.Pattern) *DiagramChart {
	c := &DiagramChart{
		Kind:     KindDiagram,
		Metadata: buildMetadata(p),
		Legend:   buildLegend(p),
		Counts:   buildCounts(p),
	}
	rounds := pattern.GroupIntoRounds(p)
	for ri, r := range rounds {
		radius := 50 + float64(ri)*30
		n := len(r.Stitches)
		for i, s := range r.Stitches {
			angle := float64(i)*2*math.Pi/float64(n) - math.Pi/2
			c.Nodes = append(c.Nodes, DiagramNode{
				ID:     nodeID(ri, i),
				Round:  r.Index,
				Index:  i,
				Stitch: s,
				Symbol: glyphFor(s).symbol,
				X:      radius * math.Cos(angle),
				Y:      radius * math.Sin(angle),
			})
			if i > 0 {
				c.Edges = append(c.Edges, DiagramEdge{
					From: nodeID(ri, i-1),
					To:   nodeID(ri, i),
					Type: EdgeNextStitch,
				})
			}
			if ri > 0 {
				prev := len(rounds[ri-1].Stitches)
				below := i * prev / n
				c.Edges = append(c.Edges, DiagramEdge{
					From: nodeID(ri, i),
					To:   nodeID(ri-1, below),
					Type: EdgeWorkedInto,
				})
			}
		}
	}
	return c
}

func nodeID(round, index int) string {
	return fmt.Sprintf("r%ds%d", round, index)
}

// LayerRing is one horizontal ring of the layered model.
type LayerRing struct {
	Round    int     `json:"round"`
	Radius   float64 `json:"radius"`
	Z        float64 `json:"z"`
	Segments int     `json:"segments"`
}

// Mesh is a flat triangle mesh: three floats per vertex and normal,
// three indices per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
}

// LayeredChart is a stacked-ring 3D approximation of the worked fabric.
type LayeredChart struct {
	Kind     Kind          `json:"kind"`
	Metadata Metadata      `json:"metadata"`
	Legend   []LegendEntry `json:"legend"`
	Counts   Counts        `json:"counts"`
	Rings    []LayerRing   `json:"rings"`
	Mesh     Mesh          `json:"mesh"`
}

// layerHeight is the vertical step between consecutive rounds.
const layerHeight = 10.0

// Layered renders the pattern as stacked polygonal rings. Ring radius
// follows the cumulative increase/decrease balance; consecutive rings
// are skinned pair-wise into quads, two triangles each.
func Layered(p pattern.Pattern) *LayeredChart {
	c := &LayeredChart{
		Kind:     KindLayered,
		Metadata: buildMetadata(p),
		Legend:   buildLegend(p),
		Counts:   buildCounts(p),
	}
	rounds := pattern.GroupIntoRounds(p)

	expansion := 0.0
	starts := make([]int, len(rounds))
	for ri, r := range rounds {
		for _, s := range r.Stitches {
			switch s {
			case pattern.Increase:
				expansion++
			case pattern.Decrease:
				expansion -= 0.5
			}
		}
		radius := 15 + 5*expansion
		segments := pattern.StitchCount(r.Stitches)
		if segments < 3 {
			segments = 3
		}
		z := float64(ri) * layerHeight
		c.Rings = append(c.Rings, LayerRing{
			Round:    r.Index,
			Radius:   radius,
			Z:        z,
			Segments: segments,
		})

		starts[ri] = len(c.Mesh.Vertices) / 3
		for i := 0; i < segments; i++ {
			angle := float64(i) * 2 * math.Pi / float64(segments)
			cos, sin := math.Cos(angle), math.Sin(angle)
			c.Mesh.Vertices = append(c.Mesh.Vertices,
				float32(radius*cos), float32(radius*sin), float32(z))
			c.Mesh.Normals = append(c.Mesh.Normals,
				float32(cos), float32(sin), 0)
		}
	}

	for ri := 1; ri < len(c.Rings); ri++ {
		lower, upper := c.Rings[ri-1].Segments, c.Rings[ri].Segments
		lo, up := starts[ri-1], starts[ri]
		steps := lower
		if upper > steps {
			steps = upper
		}
		for i := 0; i < steps; i++ {
			a0 := uint32(lo + i%lower)
			a1 := uint32(lo + (i+1)%lower)
			b0 := uint32(up + i%upper)
			b1 := uint32(up + (i+1)%upper)
			c.Mesh.Indices = append(c.Mesh.Indices, a0, b0, b1)
			c.Mesh.Indices = append(c.Mesh.Indices, a0, b1, a1)
		}
	}
	return c
}

// Generate dispatches to the generator for kind. A panic inside a
// generator is returned as an internal fault instead of unwinding into
// the caller.
func Generate(kind Kind, p pattern.Pattern) (c any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.Internal, "chart %q generation panicked: %v", kind, r)
		}
	}()
	switch kind {
	case KindWritten:
		return Written(p), nil
	case KindSymbol:
		return Symbol(p), nil
	case KindGraph:
		return Graph(p), nil
	case KindDiagram:
		return Diagram(p), nil
	case KindLayered:
		return Layered(p), nil
	default:
		return nil, fault.New(fault.ValidationFailed, "unknown chart kind %q", kind)
	}
}
