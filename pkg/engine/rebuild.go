package engine

import (
	"encoding/json"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/safe"
)

// rebuilder turns command payloads back into undo/redo closures. The
// closures read the session's assembly at call time, never a captured
// pointer, so they survive the graph being swapped by a load or a
// recovery.
type rebuilder struct {
	s *Session
}

// Build dispatches on the command type. Batch commands never arrive
// here; the log composes them over their bound children.
func (r *rebuilder) Build(c *command.Command) (undo, redo func() error, err error) {
	switch c.Type {
	case command.TypeAddPiece:
		return r.addPiece(c)
	case command.TypeRemovePiece:
		return r.removePiece(c)
	case command.TypeMovePiece:
		return r.movePiece(c)
	case command.TypeConnect:
		return r.connect(c)
	case command.TypeDisconnect:
		return r.disconnect(c)
	case command.TypeModifyPiece:
		return r.modifyPiece(c)
	default:
		return nil, nil, fault.New(fault.ValidationFailed,
			"cannot rebuild %q command", c.Type)
	}
}

func (r *rebuilder) addPiece(c *command.Command) (func() error, func() error, error) {
	p := new(assembly.Piece)
	if err := decodeInto(c.Data["piece"], p); err != nil {
		return nil, nil, err
	}
	s := r.s
	undo := func() error { _, _, err := s.asm.RemovePiece(p.ID); return err }
	redo := func() error { return s.asm.RestorePiece(p, nil) }
	return undo, redo, nil
}

func (r *rebuilder) removePiece(c *command.Command) (func() error, func() error, error) {
	p := new(assembly.Piece)
	if err := decodeInto(c.Data["piece"], p); err != nil {
		return nil, nil, err
	}
	var conns []*assembly.Connection
	if raw, ok := c.Data["connections"]; ok && raw != nil {
		if err := decodeInto(raw, &conns); err != nil {
			return nil, nil, err
		}
	}
	s := r.s
	undo := func() error { return s.asm.RestorePiece(p, conns) }
	redo := func() error { _, _, err := s.asm.RemovePiece(p.ID); return err }
	return undo, redo, nil
}

func (r *rebuilder) movePiece(c *command.Command) (func() error, func() error, error) {
	id, ok := c.Data["pieceId"].(string)
	if !ok || id == "" {
		return nil, nil, fault.New(fault.ValidationFailed, "move payload has no pieceId")
	}
	var from, to safe.Vector
	if err := decodeInto(c.Data["from"], &from); err != nil {
		return nil, nil, err
	}
	if err := decodeInto(c.Data["to"], &to); err != nil {
		return nil, nil, err
	}
	s := r.s
	undo := func() error { _, err := s.asm.UpdatePiecePosition(id, from); return err }
	redo := func() error { _, err := s.asm.UpdatePiecePosition(id, to); return err }
	return undo, redo, nil
}

func (r *rebuilder) connect(c *command.Command) (func() error, func() error, error) {
	conn := new(assembly.Connection)
	if err := decodeInto(c.Data["connection"], conn); err != nil {
		return nil, nil, err
	}
	if conn.ID == "" {
		return nil, nil, fault.New(fault.ValidationFailed, "connect payload has no connection")
	}
	s := r.s
	undo := func() error { _, err := s.asm.Disconnect(conn.ID); return err }
	redo := func() error { return s.asm.RestoreConnection(conn) }
	return undo, redo, nil
}

func (r *rebuilder) disconnect(c *command.Command) (func() error, func() error, error) {
	conn := new(assembly.Connection)
	if err := decodeInto(c.Data["connection"], conn); err != nil {
		return nil, nil, err
	}
	if conn.ID == "" {
		return nil, nil, fault.New(fault.ValidationFailed, "disconnect payload has no connection")
	}
	s := r.s
	undo := func() error { return s.asm.RestoreConnection(conn) }
	redo := func() error { _, err := s.asm.Disconnect(conn.ID); return err }
	return undo, redo, nil
}

func (r *rebuilder) modifyPiece(c *command.Command) (func() error, func() error, error) {
	id, ok := c.Data["pieceId"].(string)
	if !ok || id == "" {
		return nil, nil, fault.New(fault.ValidationFailed, "modify payload has no pieceId")
	}
	var changes, inverse assembly.PieceMod
	if err := decodeInto(c.Data["changes"], &changes); err != nil {
		return nil, nil, err
	}
	if err := decodeInto(c.Data["inverse"], &inverse); err != nil {
		return nil, nil, err
	}
	s := r.s
	undo := func() error { _, err := s.asm.ModifyPiece(id, inverse); return err }
	redo := func() error { _, err := s.asm.ModifyPiece(id, changes); return err }
	return undo, redo, nil
}

// newCommand builds a command whose payload is the JSON image of data,
// so it matches what a reload would hand the rebuilder.
func (s *Session) newCommand(t command.Type, description string, data map[string]any) (*command.Command, error) {
	plain, err := payload(data)
	if err != nil {
		return nil, err
	}
	return command.New(t, description, plain)
}

// payload round-trips data through JSON into plain values.
func payload(data map[string]any) (map[string]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fault.Wrap(fault.Internal, err)
	}
	return out, nil
}

// decodeInto maps a plain payload value onto a typed destination.
func decodeInto(v any, dst any) error {
	if v == nil {
		return fault.New(fault.ValidationFailed, "payload value missing")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fault.Wrap(fault.Internal, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fault.Wrap(fault.ValidationFailed, err)
	}
	return nil
}
