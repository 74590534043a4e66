// Package safe provides the plain-data value types allowed to cross the
// engine boundary. Renderer-native vectors, colors and scene objects are
// converted one-way into these types on entry; Check refuses any payload
// that still carries a renderer object, so snapshots stay portable.
package safe

import (
	"math"
	"regexp"
	"time"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// Vector is a plain 3D vector in engine coordinates.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec is shorthand for constructing a Vector.
func Vec(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v scaled by f.
func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Distance returns the Euclidean distance between v and o.
func (v Vector) Distance(o Vector) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Snap rounds each component to the nearest multiple of grid.
// A grid of zero or less leaves the vector unchanged.
func (v Vector) Snap(grid float64) Vector {
	if grid <= 0 {
		return v
	}
	return Vector{
		X: math.Round(v.X/grid) * grid,
		Y: math.Round(v.Y/grid) * grid,
		Z: math.Round(v.Z/grid) * grid,
	}
}

// Color is a "#RRGGBB" hex color string.
type Color string

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Valid reports whether the color is a well-formed "#RRGGBB" string.
func (c Color) Valid() bool {
	return colorPattern.MatchString(string(c))
}

// ParseColor validates s and returns it as a Color.
func ParseColor(s string) (Color, error) {
	c := Color(s)
	if !c.Valid() {
		return "", fault.New(fault.ValidationFailed, "invalid color %q, expected #RRGGBB", s)
	}
	return c, nil
}

// markerKeys are property names that fingerprint renderer-native objects.
// Any map payload carrying one of these is refused at the boundary.
var markerKeys = []string{
	"isObject3D",
	"isMesh",
	"isVector3",
	"isColor",
	"isBufferGeometry",
	"isMaterial",
	"isScene",
	"isCamera",
}

// Check recursively inspects v and returns an unsafe_object_refused fault
// when any nested map carries a renderer marker key, or when v contains a
// type outside the plain-data set (bool, numbers, strings, time.Time,
// Vector, Color, []any, map[string]any, and nil).
func Check(v any) error {
	switch val := v.(type) {
	case nil, bool, string, int, int64, uint64, float64, time.Time, Vector, Color:
		return nil
	case []any:
		for _, item := range val {
			if err := Check(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, key := range markerKeys {
			if _, present := val[key]; present {
				return fault.New(fault.UnsafeObjectRefused,
					"payload carries renderer marker %q", key)
			}
		}
		for key, item := range val {
			if err := Check(item); err != nil {
				return fault.New(fault.UnsafeObjectRefused, "key %q: %v", key, err)
			}
		}
		return nil
	default:
		return fault.New(fault.UnsafeObjectRefused, "unsupported payload type %T", v)
	}
}

// Clone deep-copies a plain-data payload: primitives as-is, slices and maps
// recursively, Vector and Color by value. It refuses anything Check refuses.
func Clone(v any) (any, error) {
	if err := Check(v); err != nil {
		return nil, err
	}
	return clone(v), nil
}

func clone(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = clone(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			out[key] = clone(item)
		}
		return out
	default:
		// Value types, immutable strings and numbers copy by assignment.
		return val
	}
}
