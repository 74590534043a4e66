// Package preview approximates crocheted pieces as smooth solids and
// tessellates them into triangle meshes, one per piece. Rendering is
// left to the caller; the package only produces mesh data behind the
// Kernel interface.
package preview

import (
	"math"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

// Default fabric proportions for worsted-weight single crochet,
// in centimeters.
const (
	DefaultStitchWidth = 0.6
	DefaultRoundHeight = 0.5
)

// fallbackStitches stands in for pieces without a pattern: a closed
// six-stitch ring.
const fallbackStitches = 6

// palette colors pieces that carry none of their own.
var palette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// Options tunes the fabric proportions. Zero values fall back to the
// worsted defaults.
type Options struct {
	StitchWidth float64 `json:"stitchWidth"`
	RoundHeight float64 `json:"roundHeight"`
}

func (o Options) withDefaults() Options {
	if o.StitchWidth <= 0 {
		o.StitchWidth = DefaultStitchWidth
	}
	if o.RoundHeight <= 0 {
		o.RoundHeight = DefaultRoundHeight
	}
	return o
}

// Build walks the assembly and produces one mesh per piece, in
// insertion order. Each piece is approximated from its pattern,
// placed at its position and colored from the piece color, falling
// back to the palette by walk index. The builder is read-only and
// never mutates the assembly.
func Build(a *assembly.Assembly, k Kernel, opts Options) ([]*Mesh, error) {
	if a == nil {
		return nil, nil
	}
	opts = opts.withDefaults()

	var meshes []*Mesh
	for i, p := range a.PieceList() {
		s := k.Translate(pieceSolid(k, p, opts), p.Position.X, p.Position.Y, p.Position.Z)
		mesh, err := k.ToMesh(s)
		if err != nil {
			return nil, fault.New(fault.Internal, "preview mesh for %q: %v", pieceLabel(p), err)
		}
		mesh.PieceName = pieceLabel(p)
		mesh.Color = pieceColor(p, i)
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// Fused unions every placed piece into one solid and tessellates it,
// for callers that want the whole assembly as a single mesh.
func Fused(a *assembly.Assembly, k Kernel, opts Options) (*Mesh, error) {
	if a == nil {
		return nil, nil
	}
	opts = opts.withDefaults()

	var combined Solid
	for _, p := range a.PieceList() {
		s := k.Translate(pieceSolid(k, p, opts), p.Position.X, p.Position.Y, p.Position.Z)
		if combined == nil {
			combined = s
		} else {
			combined = k.Union(combined, s)
		}
	}
	if combined == nil {
		return nil, nil
	}

	mesh, err := k.ToMesh(combined)
	if err != nil {
		return nil, fault.New(fault.Internal, "preview mesh for %q: %v", a.Name, err)
	}
	mesh.PieceName = a.Name
	return mesh, nil
}

// pieceSolid approximates one piece from its pattern. Tall shapes
// become capsules, squat shapes spheres squashed to the fabric height.
func pieceSolid(k Kernel, p *assembly.Piece, opts Options) Solid {
	radius, height := Proportions(p.Pattern, opts)
	switch {
	case height > 2*radius:
		return k.Capsule(height, radius)
	case height < 2*radius:
		return k.Scale(k.Sphere(radius), 1, 1, height/(2*radius))
	default:
		return k.Sphere(radius)
	}
}

// Proportions derives a body radius and height from a pattern. The
// widest round fixes the circumference, so radius is
// maxStitches*stitchWidth/2pi; height is roundCount*roundHeight.
// Patternless pieces read as a single closed six-stitch ring.
func Proportions(p pattern.Pattern, opts Options) (radius, height float64) {
	opts = opts.withDefaults()

	maxStitches := fallbackStitches
	roundCount := 1
	if rounds := pattern.GroupIntoRounds(p); len(rounds) > 0 {
		roundCount = len(rounds)
		maxStitches = 1
		for _, r := range rounds {
			if n := pattern.StitchCount(r.Stitches); n > maxStitches {
				maxStitches = n
			}
		}
	}

	radius = float64(maxStitches) * opts.StitchWidth / (2 * math.Pi)
	height = float64(roundCount) * opts.RoundHeight
	return radius, height
}

func pieceLabel(p *assembly.Piece) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func pieceColor(p *assembly.Piece, i int) string {
	if p.Color != "" {
		return string(p.Color)
	}
	return palette[i%len(palette)]
}
