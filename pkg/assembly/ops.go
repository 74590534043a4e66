package assembly

import (
	"github.com/google/uuid"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/safe"
)

// AddPiece inserts a piece. Ids must be unique; missing point ids are
// assigned. The piece's creation time is stamped if unset.
func (a *Assembly) AddPiece(p *Piece) error {
	if p == nil || p.ID == "" {
		return fault.New(fault.ValidationFailed, "piece without id")
	}
	if _, exists := a.Pieces[p.ID]; exists {
		return fault.New(fault.ValidationFailed, "duplicate piece id %q", p.ID)
	}
	if p.Color != "" && !p.Color.Valid() {
		return fault.New(fault.ValidationFailed, "piece %q has invalid color %q", p.ID, p.Color)
	}
	for _, pt := range p.Points {
		if pt.ID == "" {
			pt.ID = uuid.NewString()
		}
	}
	if p.Meta.CreatedAt.IsZero() {
		p.Meta.CreatedAt = a.clock()
	}
	a.Pieces[p.ID] = p
	a.order = append(a.order, p.ID)
	return nil
}

// RemovePiece deletes a piece and cascades through every connection
// touching it. The removed piece and connections are returned so the
// caller can restore them on undo. Locked pieces refuse.
func (a *Assembly) RemovePiece(pieceID string) (*Piece, []*Connection, error) {
	p, ok := a.Pieces[pieceID]
	if !ok {
		return nil, nil, fault.New(fault.NotFound, "piece %q not found", pieceID)
	}
	if p.Locked {
		return nil, nil, fault.New(fault.Locked, "piece %q is locked", pieceID)
	}
	cascaded := a.ConnectionsForPiece(pieceID)
	for _, c := range cascaded {
		a.dropConnection(c)
	}
	delete(a.Pieces, pieceID)
	a.order = remove(a.order, pieceID)
	return p, cascaded, nil
}

// RestorePiece reinserts a previously removed piece and its cascaded
// connections with their original ids and timestamps.
func (a *Assembly) RestorePiece(p *Piece, conns []*Connection) error {
	if err := a.AddPiece(p); err != nil {
		return err
	}
	for _, c := range conns {
		if err := a.RestoreConnection(c); err != nil {
			return err
		}
	}
	return nil
}

// Connect validates the endpoints and creates a connection between them.
func (a *Assembly) Connect(piece1, point1, piece2, point2 string) (*Connection, error) {
	v := a.CheckConnection(piece1, point1, piece2, point2)
	if !v.Valid {
		return nil, v.Err()
	}
	c := &Connection{
		ID:        uuid.NewString(),
		A:         Endpoint{PieceID: piece1, PointID: point1},
		B:         Endpoint{PieceID: piece2, PointID: point2},
		CreatedAt: a.clock(),
	}
	a.insertConnection(c)
	return c, nil
}

// RestoreConnection reinserts a connection record verbatim, re-running the
// full validation so a stale record cannot corrupt the graph.
func (a *Assembly) RestoreConnection(c *Connection) error {
	if c == nil || c.ID == "" {
		return fault.New(fault.ValidationFailed, "connection without id")
	}
	if _, exists := a.Connections[c.ID]; exists {
		return fault.New(fault.ValidationFailed, "duplicate connection id %q", c.ID)
	}
	v := a.CheckConnection(c.A.PieceID, c.A.PointID, c.B.PieceID, c.B.PointID)
	if !v.Valid {
		return v.Err()
	}
	a.insertConnection(c)
	return nil
}

// Disconnect removes a connection and frees its endpoints.
func (a *Assembly) Disconnect(connID string) (*Connection, error) {
	c, ok := a.Connections[connID]
	if !ok {
		return nil, fault.New(fault.NotFound, "connection %q not found", connID)
	}
	a.dropConnection(c)
	return c, nil
}

func (a *Assembly) insertConnection(c *Connection) {
	a.Connections[c.ID] = c
	a.connOrder = append(a.connOrder, c.ID)
	a.setOccupied(c.A, true)
	a.setOccupied(c.B, true)
}

func (a *Assembly) dropConnection(c *Connection) {
	delete(a.Connections, c.ID)
	a.connOrder = remove(a.connOrder, c.ID)
	a.setOccupied(c.A, false)
	a.setOccupied(c.B, false)
}

func (a *Assembly) setOccupied(e Endpoint, occupied bool) {
	if p := a.Pieces[e.PieceID]; p != nil {
		if pt := p.Point(e.PointID); pt != nil {
			pt.Occupied = occupied
		}
	}
}

// UpdatePiecePosition moves a piece and returns its previous position.
// Locked pieces may still move; the lock protects structure, not layout.
func (a *Assembly) UpdatePiecePosition(pieceID string, pos safe.Vector) (safe.Vector, error) {
	p, ok := a.Pieces[pieceID]
	if !ok {
		return safe.Vector{}, fault.New(fault.NotFound, "piece %q not found", pieceID)
	}
	prev := p.Position
	p.Position = pos
	return prev, nil
}

// PieceMod is a partial piece update; nil fields are untouched.
type PieceMod struct {
	Name    *string          `json:"name,omitempty"`
	Color   *safe.Color      `json:"color,omitempty"`
	Pattern *pattern.Pattern `json:"pattern,omitempty"`
	Side    *Side            `json:"side,omitempty"`
	GroupID *string          `json:"groupId,omitempty"`
}

// ModifyPiece applies a partial update and returns the inverse mod that
// undoes it. Locked pieces refuse.
func (a *Assembly) ModifyPiece(pieceID string, mod PieceMod) (PieceMod, error) {
	p, ok := a.Pieces[pieceID]
	if !ok {
		return PieceMod{}, fault.New(fault.NotFound, "piece %q not found", pieceID)
	}
	if p.Locked {
		return PieceMod{}, fault.New(fault.Locked, "piece %q is locked", pieceID)
	}
	if mod.Color != nil && !mod.Color.Valid() {
		return PieceMod{}, fault.New(fault.ValidationFailed, "invalid color %q", *mod.Color)
	}
	var undo PieceMod
	if mod.Name != nil {
		prev := p.Name
		undo.Name = &prev
		p.Name = *mod.Name
	}
	if mod.Color != nil {
		prev := p.Color
		undo.Color = &prev
		p.Color = *mod.Color
	}
	if mod.Pattern != nil {
		prev := append(pattern.Pattern(nil), p.Pattern...)
		undo.Pattern = &prev
		p.Pattern = append(pattern.Pattern(nil), (*mod.Pattern)...)
		p.RefreshMeta()
	}
	if mod.Side != nil {
		prev := p.Meta.Side
		undo.Side = &prev
		p.Meta.Side = *mod.Side
	}
	if mod.GroupID != nil {
		prev := p.Meta.GroupID
		undo.GroupID = &prev
		p.Meta.GroupID = *mod.GroupID
	}
	return undo, nil
}

// Lock marks a piece immutable.
func (a *Assembly) Lock(pieceID string) error {
	p, ok := a.Pieces[pieceID]
	if !ok {
		return fault.New(fault.NotFound, "piece %q not found", pieceID)
	}
	p.Locked = true
	return nil
}

// Unlock clears the lock flag.
func (a *Assembly) Unlock(pieceID string) error {
	p, ok := a.Pieces[pieceID]
	if !ok {
		return fault.New(fault.NotFound, "piece %q not found", pieceID)
	}
	p.Locked = false
	return nil
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
