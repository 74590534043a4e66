package engine

import (
	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// AddPiece gates, adds and records one piece. The piece keeps its id if
// it has one; points get ids assigned. Overage tiers accept pieces past
// the quota and accrue a pending charge for each.
func (s *Session) AddPiece(p *assembly.Piece) (*assembly.Piece, error) {
	if p == nil {
		return nil, fault.New(fault.ValidationFailed, "piece is nil")
	}
	if p.Custom {
		if v := s.gate.CheckOperation(tier.OpAddCustom, s.asm.CustomCount()); !v.Allowed {
			s.refuse(tier.OpAddCustom, v, p.ID)
			return nil, fault.New(v.Kind, "%s", v.Detail)
		}
	}
	v := s.gate.CheckOperation(tier.OpAddPiece, len(s.asm.Pieces))
	if !v.Allowed {
		s.refuse(tier.OpAddPiece, v, p.ID)
		return nil, fault.New(v.Kind, "%s", v.Detail)
	}
	if err := s.asm.AddPiece(p); err != nil {
		return nil, err
	}
	if v.Overage > 0 {
		if _, err := s.TrackExtraPiece(p.ID); err != nil {
			s.log.Warn("overage tracking failed",
				zap.String("piece", p.ID), zap.Error(err))
		}
	}
	s.advice.RecordPieceUsage(p.Type)

	c, err := s.newCommand(command.TypeAddPiece, "add piece "+p.Name,
		map[string]any{"piece": p})
	if err != nil {
		s.asm.RemovePiece(p.ID)
		return nil, err
	}
	pieceID := p.ID
	c.Bind(
		func() error { _, _, err := s.asm.RemovePiece(pieceID); return err },
		func() error { return s.asm.RestorePiece(p, nil) },
	)
	s.commit(c, Event{Type: EventPieceAdded, PieceID: p.ID}, []string{p.ID})
	return p, nil
}

// RemovePiece removes a piece and every connection touching it. Locked
// pieces are refused. The cascade is captured whole so undo restores
// the connections along with the piece.
func (s *Session) RemovePiece(id string) (*assembly.Piece, error) {
	p, conns, err := s.asm.RemovePiece(id)
	if err != nil {
		return nil, err
	}
	c, err := s.newCommand(command.TypeRemovePiece, "remove piece "+p.Name,
		map[string]any{"pieceId": id, "piece": p, "connections": conns})
	if err != nil {
		if rerr := s.asm.RestorePiece(p, conns); rerr != nil {
			s.log.Error("remove rollback failed", zap.String("piece", id), zap.Error(rerr))
		}
		return nil, err
	}
	c.Bind(
		func() error { return s.asm.RestorePiece(p, conns) },
		func() error { _, _, err := s.asm.RemovePiece(id); return err },
	)
	s.commit(c, Event{
		Type:    EventPieceRemoved,
		PieceID: id,
		Detail:  map[string]any{"cascaded": len(conns)},
	}, []string{id})
	return p, nil
}

// UpdatePiecePosition moves a piece, snapping to the configured grid
// when one is set. Locked pieces may still move. Returns the previous
// position.
func (s *Session) UpdatePiecePosition(id string, to safe.Vector) (safe.Vector, error) {
	if grid := s.settings.Geometry.SnapGrid; grid > 0 {
		to = to.Snap(grid)
	}
	from, err := s.asm.UpdatePiecePosition(id, to)
	if err != nil {
		return safe.Vector{}, err
	}
	c, err := s.newCommand(command.TypeMovePiece, "move piece "+id,
		map[string]any{"pieceId": id, "from": from, "to": to})
	if err != nil {
		if _, rerr := s.asm.UpdatePiecePosition(id, from); rerr != nil {
			s.log.Error("move rollback failed", zap.String("piece", id), zap.Error(rerr))
		}
		return safe.Vector{}, err
	}
	c.Bind(
		func() error { _, err := s.asm.UpdatePiecePosition(id, from); return err },
		func() error { _, err := s.asm.UpdatePiecePosition(id, to); return err },
	)
	s.commit(c, Event{
		Type:    EventPieceModified,
		PieceID: id,
		Detail:  map[string]any{"field": "position"},
	}, []string{id})
	return from, nil
}

// Connect joins two points after the validator and, for custom pieces,
// the tier gate agree. Point arguments are point ids.
func (s *Session) Connect(piece1, point1, piece2, point2 string) (*assembly.Connection, error) {
	for _, pid := range []string{piece1, piece2} {
		p := s.asm.Piece(pid)
		if p == nil || !p.Custom {
			continue
		}
		if v := s.gate.CheckOperation(tier.OpConnectCustom, 0); !v.Allowed {
			s.refuse(tier.OpConnectCustom, v, pid)
			return nil, fault.New(v.Kind, "%s", v.Detail)
		}
		break
	}
	conn, err := s.asm.Connect(piece1, point1, piece2, point2)
	if err != nil {
		return nil, err
	}
	c, err := s.newCommand(command.TypeConnect, "connect "+piece1+" to "+piece2,
		map[string]any{
			"piece1": piece1, "point1": point1,
			"piece2": piece2, "point2": point2,
			"connectionId": conn.ID, "connection": conn,
		})
	if err != nil {
		if _, rerr := s.asm.Disconnect(conn.ID); rerr != nil {
			s.log.Error("connect rollback failed", zap.String("connection", conn.ID), zap.Error(rerr))
		}
		return nil, err
	}
	connID := conn.ID
	c.Bind(
		func() error { _, err := s.asm.Disconnect(connID); return err },
		func() error { return s.asm.RestoreConnection(conn) },
	)
	if a, b := s.asm.Piece(piece1), s.asm.Piece(piece2); a != nil && b != nil {
		s.advice.RecordConnection(a.Type, b.Type)
	}
	s.commit(c, Event{
		Type:         EventConnected,
		ConnectionID: conn.ID,
	}, []string{piece1, piece2})
	return conn, nil
}

// Disconnect removes one connection and frees its endpoints.
func (s *Session) Disconnect(connID string) (*assembly.Connection, error) {
	conn, err := s.asm.Disconnect(connID)
	if err != nil {
		return nil, err
	}
	c, err := s.newCommand(command.TypeDisconnect, "disconnect "+connID,
		map[string]any{"connectionId": connID, "connection": conn})
	if err != nil {
		if rerr := s.asm.RestoreConnection(conn); rerr != nil {
			s.log.Error("disconnect rollback failed", zap.String("connection", connID), zap.Error(rerr))
		}
		return nil, err
	}
	c.Bind(
		func() error { return s.asm.RestoreConnection(conn) },
		func() error { _, err := s.asm.Disconnect(connID); return err },
	)
	s.commit(c, Event{
		Type:         EventDisconnected,
		ConnectionID: connID,
	}, []string{conn.A.PieceID, conn.B.PieceID})
	return conn, nil
}

// ModifyPiece applies a partial update. The inverse mod returned by the
// graph drives undo.
func (s *Session) ModifyPiece(id string, mod assembly.PieceMod) error {
	inverse, err := s.asm.ModifyPiece(id, mod)
	if err != nil {
		return err
	}
	c, err := s.newCommand(command.TypeModifyPiece, "modify piece "+id,
		map[string]any{"pieceId": id, "changes": mod, "inverse": inverse})
	if err != nil {
		if _, rerr := s.asm.ModifyPiece(id, inverse); rerr != nil {
			s.log.Error("modify rollback failed", zap.String("piece", id), zap.Error(rerr))
		}
		return err
	}
	c.Bind(
		func() error { _, err := s.asm.ModifyPiece(id, inverse); return err },
		func() error { _, err := s.asm.ModifyPiece(id, mod); return err },
	)
	s.commit(c, Event{Type: EventPieceModified, PieceID: id}, []string{id})
	return nil
}

// LockPiece protects a piece from removal and geometry edits. Locking
// is not undoable; it bumps the version so stale views refresh.
func (s *Session) LockPiece(id string) error {
	if err := s.asm.Lock(id); err != nil {
		return err
	}
	s.asm.BumpVersion()
	_, milestone := s.timeline.Append("lock_piece", "lock piece "+id, []string{id})
	s.emit(Event{Type: EventVersionBumped, PieceID: id})
	if milestone > 0 {
		s.emit(Event{Type: EventMilestoneReached, Detail: map[string]any{"count": milestone}})
	}
	return nil
}

// UnlockPiece releases a locked piece.
func (s *Session) UnlockPiece(id string) error {
	if err := s.asm.Unlock(id); err != nil {
		return err
	}
	s.asm.BumpVersion()
	_, milestone := s.timeline.Append("unlock_piece", "unlock piece "+id, []string{id})
	s.emit(Event{Type: EventVersionBumped, PieceID: id})
	if milestone > 0 {
		s.emit(Event{Type: EventMilestoneReached, Detail: map[string]any{"count": milestone}})
	}
	return nil
}

// Validate runs every structural invariant over the current graph.
func (s *Session) Validate() assembly.ValidationResult {
	return assembly.Validate(s.asm)
}

// ConnectionsForPiece lists the connections touching a piece.
func (s *Session) ConnectionsForPiece(id string) []*assembly.Connection {
	return s.asm.ConnectionsForPiece(id)
}

// RecordAction records an externally described mutation. The payload
// must follow the replay contract for its type; the closures are built
// from it exactly as they would be after a reload, then the action is
// applied by running redo once. Tier gates are not consulted.
func (s *Session) RecordAction(t command.Type, description string, data map[string]any) (*command.Command, error) {
	c, err := command.New(t, description, data)
	if err != nil {
		return nil, err
	}
	undo, redo, err := s.rb.Build(c)
	if err != nil {
		return nil, err
	}
	c.Bind(undo, redo)
	if err := c.Redo(); err != nil {
		return nil, err
	}
	e := Event{Type: domainEvent(t)}
	e.PieceID, e.ConnectionID = idsFromData(c.Data)
	var pieceIDs []string
	if e.PieceID != "" {
		pieceIDs = []string{e.PieceID}
	}
	s.commit(c, e, pieceIDs)
	return c, nil
}

// refuse emits the tier_violation event for a gate refusal.
func (s *Session) refuse(op tier.Op, v tier.Verdict, pieceID string) {
	s.emit(Event{
		Type:    EventTierViolation,
		PieceID: pieceID,
		Detail:  map[string]any{"operation": string(op), "reason": v.Detail},
	})
}

// domainEvent maps a command type to the event it announces. Unmapped
// types announce nothing beyond the version change.
func domainEvent(t command.Type) EventType {
	switch t {
	case command.TypeAddPiece:
		return EventPieceAdded
	case command.TypeRemovePiece:
		return EventPieceRemoved
	case command.TypeMovePiece, command.TypeModifyPiece:
		return EventPieceModified
	case command.TypeConnect:
		return EventConnected
	case command.TypeDisconnect:
		return EventDisconnected
	default:
		return ""
	}
}

// idsFromData pulls the subject ids out of a replay payload.
func idsFromData(data map[string]any) (pieceID, connID string) {
	if v, ok := data["pieceId"].(string); ok {
		pieceID = v
	} else if m, ok := data["piece"].(map[string]any); ok {
		if v, ok := m["id"].(string); ok {
			pieceID = v
		}
	}
	if v, ok := data["connectionId"].(string); ok {
		connID = v
	}
	return pieceID, connID
}
