package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// Undo reverts the command before the cursor and restores the version
// it recorded. A failing undo closure poisons the log; the session
// announces it and the log refuses further traversal until Clear or a
// reload.
func (s *Session) Undo() (*command.Command, error) {
	c, err := s.history.Undo()
	if err != nil {
		if c != nil {
			s.emit(Event{
				Type:   EventUndoBroken,
				Detail: map[string]any{"commandId": c.ID},
			})
		}
		return c, err
	}
	s.asm.SetVersion(c.PrevVersion)
	s.emit(Event{
		Type:   EventUndone,
		Detail: map[string]any{"commandId": c.ID, "description": c.Description},
	})
	s.emit(Event{Type: EventVersionBumped})
	return c, nil
}

// Redo re-applies the command after the cursor. A failing redo leaves
// the cursor where it was.
func (s *Session) Redo() (*command.Command, error) {
	c, err := s.history.Redo()
	if err != nil {
		return c, err
	}
	s.asm.SetVersion(c.NextVersion)
	s.emit(Event{
		Type:   EventRedone,
		Detail: map[string]any{"commandId": c.ID, "description": c.Description},
	})
	s.emit(Event{Type: EventVersionBumped})
	return c, nil
}

// BeginBatch opens a batch; mutations until EndBatch coalesce into one
// undoable command and the version freezes until the commit.
func (s *Session) BeginBatch(description string) error {
	return s.history.BeginBatch(description)
}

// EndBatch commits the open batch as a single command and bumps the
// version once. An empty batch is discarded and returns (nil, nil).
func (s *Session) EndBatch() (*command.Command, error) {
	pre := s.asm.Version
	b, err := s.history.EndBatch()
	if err != nil || b == nil {
		return b, err
	}
	b.PrevVersion = pre
	b.NextVersion = s.asm.BumpVersion()
	s.emit(Event{
		Type:   EventBatchCommitted,
		Detail: map[string]any{"commands": len(b.Children), "description": b.Description},
	})
	s.emit(Event{Type: EventVersionBumped})
	return b, nil
}

// RunBatch runs fn inside a batch. On error, or when ctx is done, the
// partial work is rolled back in reverse order and nothing is recorded.
func (s *Session) RunBatch(ctx context.Context, description string, fn func() error) (*command.Command, error) {
	if err := s.history.BeginBatch(description); err != nil {
		return nil, err
	}
	err := fn()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		children := s.history.AbortBatch()
		for i := len(children) - 1; i >= 0; i-- {
			if uerr := children[i].Undo(); uerr != nil {
				s.log.Warn("batch rollback failed",
					zap.String("command", children[i].ID), zap.Error(uerr))
			}
		}
		return nil, err
	}
	return s.EndBatch()
}

// JumpTo moves the cursor to the given history index by undoing or
// redoing as needed. Index -1 is the state before the first command.
func (s *Session) JumpTo(index int) error {
	total := s.history.Stats().Total
	if index < -1 || index >= total {
		return fault.New(fault.NotFound, "history index %d out of range [-1,%d)", index, total)
	}
	for s.history.Stats().CurrentIndex > index {
		if _, err := s.Undo(); err != nil {
			return err
		}
	}
	for s.history.Stats().CurrentIndex < index {
		if _, err := s.Redo(); err != nil {
			return err
		}
	}
	return nil
}

// ClearHistory drops every command and heals a broken log. The graph
// is untouched.
func (s *Session) ClearHistory() {
	s.history.Clear()
}

// History returns the serializable records of the current log.
func (s *Session) History() []command.Record {
	return s.history.Records()
}

// HistoryStats summarizes the log.
func (s *Session) HistoryStats() command.Stats {
	return s.history.Stats()
}

// CanUndo reports whether an undo is possible.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether a redo is possible.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }
