// Package assembly holds the piece-and-connection graph: pieces own named
// connection points, connections join exactly two points on distinct
// pieces, and the whole graph stays acyclic. Mutations here are raw state
// edits; tier gating, command recording and event emission live above.
package assembly

import (
	"time"

	"github.com/google/uuid"

	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// Side tags a piece as belonging to the left or right of the body.
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Universal is the compatibility tag that matches any point.
const Universal = "universal"

// ConnectionPoint is a named docking site on a piece. Occupied is derived
// from the live connection set and never persisted.
type ConnectionPoint struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Position   safe.Vector `json:"position"`
	Compatible []string    `json:"compatible"`
	Type       string      `json:"type,omitempty"`
	Size       float64     `json:"size,omitempty"`
	Occupied   bool        `json:"-"`
}

// Accepts reports whether the point's compatibility set admits the other
// point's name or type. The universal tag matches anything, on either side.
func (p *ConnectionPoint) Accepts(other *ConnectionPoint) bool {
	if other.Name == Universal || other.Type == Universal {
		return true
	}
	for _, tag := range p.Compatible {
		if tag == Universal || tag == other.Name || (other.Type != "" && tag == other.Type) {
			return true
		}
	}
	return false
}

// Metadata carries derived and descriptive piece attributes.
type Metadata struct {
	StitchCount int       `json:"stitchCount"`
	RoundCount  int       `json:"roundCount"`
	CreatedAt   time.Time `json:"createdAt"`
	Side        Side      `json:"side,omitempty"`
	GroupID     string    `json:"groupId,omitempty"`
}

// Piece is one crochet component. It owns its connection points; points do
// not outlive the piece. The lock flag blocks removal and geometry edits
// but still allows movement.
type Piece struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Color    safe.Color         `json:"color"`
	Position safe.Vector        `json:"position"`
	Pattern  pattern.Pattern    `json:"pattern,omitempty"`
	Points   []*ConnectionPoint `json:"connectionPoints"`
	Meta     Metadata           `json:"metadata"`
	Custom   bool               `json:"custom,omitempty"`
	Locked   bool               `json:"-"`
}

// NewPiece builds a piece with a fresh id when none is given.
func NewPiece(id, name, typ string) *Piece {
	if id == "" {
		id = uuid.NewString()
	}
	return &Piece{ID: id, Name: name, Type: typ}
}

// Point returns the piece's point with the given id.
func (p *Piece) Point(id string) *ConnectionPoint {
	for _, pt := range p.Points {
		if pt.ID == id {
			return pt
		}
	}
	return nil
}

// PointByName returns the first point with the given name.
func (p *Piece) PointByName(name string) *ConnectionPoint {
	for _, pt := range p.Points {
		if pt.Name == name {
			return pt
		}
	}
	return nil
}

// AddPoint appends a connection point, assigning an id if missing.
func (p *Piece) AddPoint(pt *ConnectionPoint) *ConnectionPoint {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	p.Points = append(p.Points, pt)
	return pt
}

// RefreshMeta recomputes the derived pattern counters.
func (p *Piece) RefreshMeta() {
	p.Meta.StitchCount = pattern.StitchCount(p.Pattern)
	p.Meta.RoundCount = len(pattern.GroupIntoRounds(p.Pattern))
}

// Endpoint names one side of a connection.
type Endpoint struct {
	PieceID string `json:"pieceId"`
	PointID string `json:"pointId"`
}

// Connection is an undirected edge between two points on distinct pieces.
type Connection struct {
	ID        string    `json:"id"`
	A         Endpoint  `json:"a"`
	B         Endpoint  `json:"b"`
	CreatedAt time.Time `json:"createdAt"`
}

// Touches reports whether the connection has an endpoint on the piece.
func (c *Connection) Touches(pieceID string) bool {
	return c.A.PieceID == pieceID || c.B.PieceID == pieceID
}

// Other returns the endpoint opposite the given piece.
func (c *Connection) Other(pieceID string) Endpoint {
	if c.A.PieceID == pieceID {
		return c.B
	}
	return c.A
}

// pairKey returns a canonical key for the unordered piece pair.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// Assembly is the graph of pieces and connections plus its version
// counters. Version increments once per accepted mutation; MaxVersion
// never decreases, so undone versions are never reissued.
type Assembly struct {
	ID          string
	Name        string
	Tier        tier.Tier
	Pieces      map[string]*Piece
	Connections map[string]*Connection
	Version     int
	MaxVersion  int

	order     []string // piece ids in insertion order
	connOrder []string // connection ids in insertion order
	now       func() time.Time
}

// New builds an empty assembly.
func New(id, name string, t tier.Tier) *Assembly {
	if id == "" {
		id = uuid.NewString()
	}
	return &Assembly{
		ID:          id,
		Name:        name,
		Tier:        t,
		Pieces:      make(map[string]*Piece),
		Connections: make(map[string]*Connection),
		now:         time.Now,
	}
}

// SetClock overrides the timestamp source.
func (a *Assembly) SetClock(now func() time.Time) { a.now = now }

func (a *Assembly) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

// Piece returns the piece with the given id, or nil.
func (a *Assembly) Piece(id string) *Piece { return a.Pieces[id] }

// Connection returns the connection with the given id, or nil.
func (a *Assembly) Connection(id string) *Connection { return a.Connections[id] }

// PieceList returns the pieces in insertion order.
func (a *Assembly) PieceList() []*Piece {
	out := make([]*Piece, 0, len(a.order))
	for _, id := range a.order {
		if p, ok := a.Pieces[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionList returns the connections in insertion order.
func (a *Assembly) ConnectionList() []*Connection {
	out := make([]*Connection, 0, len(a.connOrder))
	for _, id := range a.connOrder {
		if c, ok := a.Connections[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsForPiece returns every connection touching the piece, in
// insertion order.
func (a *Assembly) ConnectionsForPiece(pieceID string) []*Connection {
	var out []*Connection
	for _, c := range a.ConnectionList() {
		if c.Touches(pieceID) {
			out = append(out, c)
		}
	}
	return out
}

// CustomCount returns the number of custom pieces.
func (a *Assembly) CustomCount() int {
	n := 0
	for _, p := range a.Pieces {
		if p.Custom {
			n++
		}
	}
	return n
}

// LockedIDs returns the locked piece ids in insertion order.
func (a *Assembly) LockedIDs() []string {
	var out []string
	for _, p := range a.PieceList() {
		if p.Locked {
			out = append(out, p.ID)
		}
	}
	return out
}

// Roots returns the ids the reachability pass starts from: every piece of
// type "body", or the first-added piece when there is none.
func (a *Assembly) Roots() []string {
	var roots []string
	for _, p := range a.PieceList() {
		if p.Type == "body" {
			roots = append(roots, p.ID)
		}
	}
	if len(roots) == 0 && len(a.order) > 0 {
		for _, id := range a.order {
			if _, ok := a.Pieces[id]; ok {
				roots = append(roots, id)
				break
			}
		}
	}
	return roots
}

// BumpVersion advances the version counter past every version ever issued
// and returns the new value.
func (a *Assembly) BumpVersion() int {
	a.MaxVersion++
	a.Version = a.MaxVersion
	return a.Version
}

// SetVersion rewinds or restores the visible version without reusing
// counter values. MaxVersion only ratchets up.
func (a *Assembly) SetVersion(v int) {
	a.Version = v
	if v > a.MaxVersion {
		a.MaxVersion = v
	}
}
