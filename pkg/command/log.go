package command

import (
	"time"

	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// DefaultMaxHistory is the default history cap.
const DefaultMaxHistory = 50

// Stats summarizes the log for UI display.
type Stats struct {
	Total        int          `json:"total"`
	CurrentIndex int          `json:"currentIndex"`
	CanUndo      bool         `json:"canUndo"`
	CanRedo      bool         `json:"canRedo"`
	ByType       map[Type]int `json:"byType"`
	Oldest       time.Time    `json:"oldest"`
	Newest       time.Time    `json:"newest"`
}

// Log is the single linear history with branch-on-new-after-undo
// semantics. It is not safe for concurrent use; the engine serializes all
// access.
type Log struct {
	history []*Command
	current int // index of last executed command, -1 when empty
	max     int
	batch   *Command // open batch, nil otherwise

	replaying bool // suppresses Record while undo/redo run
	broken    bool // a failed undo poisoned the branch

	log *zap.Logger
}

// NewLog builds an empty log. max <= 0 falls back to DefaultMaxHistory.
func NewLog(max int, logger *zap.Logger) *Log {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{current: -1, max: max, log: logger}
}

// CanUndo reports whether an undoable command exists.
func (l *Log) CanUndo() bool { return l.current >= 0 && !l.broken }

// CanRedo reports whether a redoable command exists.
func (l *Log) CanRedo() bool { return l.current < len(l.history)-1 && !l.broken }

// Current returns the index of the last executed command, -1 when empty.
func (l *Log) Current() int { return l.current }

// Broken reports whether a failed undo has poisoned the branch.
func (l *Log) Broken() bool { return l.broken }

// History returns the commands in order. The slice is a copy; the
// commands are shared.
func (l *Log) History() []*Command {
	return append([]*Command(nil), l.history...)
}

// Record appends an executed command. Any redo branch beyond the cursor
// is discarded first; when the cap is exceeded the oldest entry drops.
// Recording is suppressed during replay and redirected into an open batch.
func (l *Log) Record(c *Command) {
	if l.replaying {
		return
	}
	if l.batch != nil {
		l.batch.Children = append(l.batch.Children, c)
		return
	}
	l.history = append(l.history[:l.current+1], c)
	l.current++
	if len(l.history) > l.max {
		l.history = l.history[1:]
		l.current--
	}
}

// Undo reverts the command at the cursor and returns it. A failing undo
// closure poisons the log: the cursor still moves past the command and
// further undo/redo refuse until the history is cleared or rebuilt.
func (l *Log) Undo() (*Command, error) {
	if l.broken {
		return nil, fault.New(fault.UndoBroken, "history is broken; clear or reload it")
	}
	if l.current < 0 {
		return nil, fault.New(fault.NotFound, "nothing to undo")
	}
	c := l.history[l.current]
	l.replaying = true
	err := c.Undo()
	l.replaying = false
	l.current--
	if err != nil {
		l.broken = true
		l.log.Error("undo failed, history poisoned",
			zap.String("command", c.ID), zap.Error(err))
		return c, fault.Wrap(fault.UndoBroken, err)
	}
	return c, nil
}

// Redo re-executes the command after the cursor and returns it.
func (l *Log) Redo() (*Command, error) {
	if l.broken {
		return nil, fault.New(fault.UndoBroken, "history is broken; clear or reload it")
	}
	if l.current >= len(l.history)-1 {
		return nil, fault.New(fault.NotFound, "nothing to redo")
	}
	c := l.history[l.current+1]
	l.replaying = true
	err := c.Redo()
	l.replaying = false
	if err != nil {
		return c, err
	}
	l.current++
	return c, nil
}

// BeginBatch opens a batch; subsequent records coalesce into it. Nested
// batches are refused.
func (l *Log) BeginBatch(description string) error {
	if l.batch != nil {
		return fault.New(fault.ValidationFailed, "batch already open")
	}
	b, err := New(TypeBatch, description, nil)
	if err != nil {
		return err
	}
	l.batch = b
	return nil
}

// InBatch reports whether a batch is open.
func (l *Log) InBatch() bool { return l.batch != nil }

// BatchSize returns the number of commands recorded into the open batch.
func (l *Log) BatchSize() int {
	if l.batch == nil {
		return 0
	}
	return len(l.batch.Children)
}

// EndBatch closes the batch and records it as a single command. An empty
// batch is discarded and returns nil.
func (l *Log) EndBatch() (*Command, error) {
	if l.batch == nil {
		return nil, fault.New(fault.ValidationFailed, "no batch open")
	}
	b := l.batch
	l.batch = nil
	if len(b.Children) == 0 {
		return nil, nil
	}
	ComposeBatch(b)
	l.Record(b)
	return b, nil
}

// AbortBatch discards the open batch and returns the commands recorded
// into it so far, so the caller can roll their effects back.
func (l *Log) AbortBatch() []*Command {
	if l.batch == nil {
		return nil
	}
	children := l.batch.Children
	l.batch = nil
	return children
}

// JumpTo undoes or redoes the minimum number of commands to land the
// cursor on index (-1 rewinds everything). The first failing step stops
// the walk and its error is returned.
func (l *Log) JumpTo(index int) error {
	if index < -1 || index >= len(l.history) {
		return fault.New(fault.NotFound, "history index %d out of range", index)
	}
	for l.current > index {
		if _, err := l.Undo(); err != nil {
			return err
		}
	}
	for l.current < index {
		if _, err := l.Redo(); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops the entire history and heals a poisoned log.
func (l *Log) Clear() {
	l.history = nil
	l.current = -1
	l.batch = nil
	l.broken = false
}

// Stats summarizes the log.
func (l *Log) Stats() Stats {
	s := Stats{
		Total:        len(l.history),
		CurrentIndex: l.current,
		CanUndo:      l.CanUndo(),
		CanRedo:      l.CanRedo(),
		ByType:       make(map[Type]int),
	}
	for i, c := range l.history {
		s.ByType[c.Type]++
		if i == 0 {
			s.Oldest = c.Timestamp
		}
		s.Newest = c.Timestamp
	}
	return s
}

// Records projects the full history for persistence.
func (l *Log) Records() []Record {
	out := make([]Record, 0, len(l.history))
	for _, c := range l.history {
		out = append(out, c.ToRecord())
	}
	return out
}

// Rebuild replaces the history with commands reconstructed from records,
// binding closures through the rebuilder. Records whose closures cannot
// be rebuilt are skipped. The cursor lands on the last command, which
// matches a freshly loaded, fully applied history.
func (l *Log) Rebuild(records []Record, rb Rebuilder) error {
	l.Clear()
	for _, r := range records {
		c := FromRecord(r)
		if err := bindTree(c, rb); err != nil {
			l.log.Warn("dropping unreplayable command",
				zap.String("command", c.ID), zap.String("type", string(c.Type)), zap.Error(err))
			continue
		}
		l.history = append(l.history, c)
	}
	l.current = len(l.history) - 1
	return nil
}

// bindTree binds closures depth-first so batch parents compose over bound
// children.
func bindTree(c *Command, rb Rebuilder) error {
	if c.Type == TypeBatch {
		for _, child := range c.Children {
			if err := bindTree(child, rb); err != nil {
				return err
			}
		}
		ComposeBatch(c)
		return nil
	}
	undo, redo, err := rb.Build(c)
	if err != nil {
		return err
	}
	c.Bind(undo, redo)
	return nil
}
