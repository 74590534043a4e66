// Package command implements the linear undo/redo log. Commands carry a
// serializable payload plus undo and redo closures; the closures are
// rebuilt through a Rebuilder when a log is loaded from disk, so nothing
// non-serializable ever needs to persist.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/safe"
)

// Type identifies what a command did.
type Type string

const (
	TypeAddPiece    Type = "add_piece"
	TypeRemovePiece Type = "remove_piece"
	TypeMovePiece   Type = "move_piece"
	TypeConnect     Type = "connect"
	TypeDisconnect  Type = "disconnect"
	TypeModifyPiece Type = "modify_piece"
	TypeBatch       Type = "batch"

	// TypeRecovery marks the synthetic entry a clean-slate restore
	// leaves behind. It is never replayable.
	TypeRecovery Type = "recovery"
)

// Command is one entry in the log. Data holds only safe values so the
// command can round-trip through persistence; the closures are transient
// and rebuilt on load.
type Command struct {
	ID          string
	Type        Type
	Description string
	Timestamp   time.Time
	Data        map[string]any
	PrevVersion int
	NextVersion int
	Children    []*Command

	undo func() error
	redo func() error
}

// New builds a command, deep-cloning data through the safe-value check.
// Payloads holding renderer objects are refused here, at record time.
func New(t Type, description string, data map[string]any) (*Command, error) {
	var cloned map[string]any
	if data != nil {
		c, err := safe.Clone(data)
		if err != nil {
			return nil, err
		}
		cloned = c.(map[string]any)
	}
	return &Command{
		ID:          uuid.NewString(),
		Type:        t,
		Description: description,
		Timestamp:   time.Now(),
		Data:        cloned,
	}, nil
}

// Bind attaches the undo and redo closures.
func (c *Command) Bind(undo, redo func() error) {
	c.undo = undo
	c.redo = redo
}

// Undo runs the undo closure.
func (c *Command) Undo() error {
	if c.undo == nil {
		return fault.New(fault.UndoBroken, "command %s has no undo closure", c.ID)
	}
	return c.undo()
}

// Redo runs the redo closure.
func (c *Command) Redo() error {
	if c.redo == nil {
		return fault.New(fault.UndoBroken, "command %s has no redo closure", c.ID)
	}
	return c.redo()
}

// Record is the persistable projection of a command, without closures.
type Record struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
	PrevVersion int            `json:"prevVersion"`
	NextVersion int            `json:"nextVersion"`
	Children    []Record       `json:"children,omitempty"`
}

// ToRecord projects the command for persistence.
func (c *Command) ToRecord() Record {
	r := Record{
		ID:          c.ID,
		Type:        c.Type,
		Description: c.Description,
		Timestamp:   c.Timestamp,
		Data:        c.Data,
		PrevVersion: c.PrevVersion,
		NextVersion: c.NextVersion,
	}
	for _, child := range c.Children {
		r.Children = append(r.Children, child.ToRecord())
	}
	return r
}

// FromRecord rebuilds a command shell (no closures) from its record.
func FromRecord(r Record) *Command {
	c := &Command{
		ID:          r.ID,
		Type:        r.Type,
		Description: r.Description,
		Timestamp:   r.Timestamp,
		Data:        r.Data,
		PrevVersion: r.PrevVersion,
		NextVersion: r.NextVersion,
	}
	for _, child := range r.Children {
		c.Children = append(c.Children, FromRecord(child))
	}
	return c
}

// Rebuilder reconstructs undo/redo closures for a loaded command from its
// type and payload. Batch children are bound before their parent.
type Rebuilder interface {
	Build(c *Command) (undo, redo func() error, err error)
}

// ComposeBatch binds a batch command's closures from its children: redo
// replays children forward, undo replays them in reverse.
func ComposeBatch(c *Command) {
	children := c.Children
	c.Bind(
		func() error {
			for i := len(children) - 1; i >= 0; i-- {
				if err := children[i].Undo(); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, child := range children {
				if err := child.Redo(); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
