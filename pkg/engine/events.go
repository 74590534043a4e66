package engine

import "time"

// EventType names one entry of the session's event vocabulary.
type EventType string

// The full event vocabulary. Subscribers receive these in emission order.
const (
	EventPieceAdded        EventType = "piece_added"
	EventPieceRemoved      EventType = "piece_removed"
	EventPieceModified     EventType = "piece_modified"
	EventConnected         EventType = "connected"
	EventDisconnected      EventType = "disconnected"
	EventBatchCommitted    EventType = "batch_committed"
	EventUndone            EventType = "undone"
	EventRedone            EventType = "redone"
	EventTierViolation     EventType = "tier_violation"
	EventOverageCharged    EventType = "overage_charged"
	EventMilestoneReached  EventType = "milestone_reached"
	EventBackupCreated     EventType = "backup_created"
	EventRecoveryPerformed EventType = "recovery_performed"
	EventVersionBumped     EventType = "version_bumped"
	EventUndoBroken        EventType = "undo_broken"
)

// Event is one notification from the session. Version is the assembly
// version at emission time, so a version_bumped event carries the value
// it announces.
type Event struct {
	Type         EventType      `json:"type"`
	At           time.Time      `json:"at"`
	AssemblyID   string         `json:"assemblyId"`
	PieceID      string         `json:"pieceId,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Version      int            `json:"version"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// Subscriber consumes events. Subscribers run synchronously on the
// session's goroutine, in subscription order; a slow subscriber stalls
// the session.
type Subscriber func(Event)

// Subscribe registers fn for every future event.
func (s *Session) Subscribe(fn Subscriber) {
	s.subs = append(s.subs, fn)
}

// emit stamps the event with the session clock, assembly id and current
// version, then fans it out.
func (s *Session) emit(e Event) {
	e.At = s.now()
	e.AssemblyID = s.asm.ID
	e.Version = s.asm.Version
	for _, fn := range s.subs {
		fn(e)
	}
}
