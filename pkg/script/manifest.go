package script

import (
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// Manifest is the plain build plan a script produces. Nothing in it has
// touched an assembly yet: the engine replays the manifest through the
// same gated operations as interactive edits, so tier limits and
// connection validation apply to imports unchanged.
type Manifest struct {
	Name   string      `json:"name,omitempty"`
	Tier   tier.Tier   `json:"tier,omitempty"`
	Pieces []PieceSpec `json:"pieces"`
	Joins  []JoinSpec  `json:"joins,omitempty"`
}

// PieceSpec describes one piece to create, in declaration order.
type PieceSpec struct {
	Name    string      `json:"name"`
	Type    string      `json:"type,omitempty"`
	Color   string      `json:"color,omitempty"`
	Pattern string      `json:"pattern,omitempty"`
	Side    string      `json:"side,omitempty"`
	Custom  bool        `json:"custom,omitempty"`
	At      safe.Vector `json:"at"`
	Points  []PointSpec `json:"points,omitempty"`
}

// PointSpec describes one connection point on a piece.
type PointSpec struct {
	Name       string      `json:"name"`
	Type       string      `json:"type,omitempty"`
	At         safe.Vector `json:"at"`
	Compatible []string    `json:"compatible,omitempty"`
	Size       float64     `json:"size,omitempty"`
}

// JoinSpec describes one attachment between two declared points. Pieces
// and points are referenced by name; ids are assigned during replay.
type JoinSpec struct {
	FromPiece string `json:"fromPiece"`
	FromPoint string `json:"fromPoint"`
	ToPiece   string `json:"toPiece"`
	ToPoint   string `json:"toPoint"`
}

// findPiece returns the index of the named piece, or -1.
func (m *Manifest) findPiece(name string) int {
	for i := range m.Pieces {
		if m.Pieces[i].Name == name {
			return i
		}
	}
	return -1
}

// hasPoint reports whether the piece declares a point with the given name.
func (p *PieceSpec) hasPoint(name string) bool {
	for i := range p.Points {
		if p.Points[i].Name == name {
			return true
		}
	}
	return false
}
