// Package timeline is the read-side projection of the command history:
// tagged entries, idle-gap sessions, collapsible groups, milestones and
// JSON/CSV export. It never feeds back into the write side.
package timeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// Time-of-day buckets.
const (
	LateNight = "late-night" // 22:00-05:00
	Morning   = "morning"    // 05:00-12:00
	Afternoon = "afternoon"  // 12:00-17:00
	Evening   = "evening"    // 17:00-22:00
)

// TimeOfDay buckets a local clock hour.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 22 || h < 5:
		return LateNight
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	default:
		return Evening
	}
}

// Entry is one timeline record.
type Entry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMS  int64     `json:"durationMs"`
	SessionID   string    `json:"sessionId"`
	PieceIDs    []string  `json:"pieceIds,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	TimeOfDay   string    `json:"timeOfDay"`
	Bookmarked  bool      `json:"bookmarked"`
}

// Session is a run of entries with no idle gap inside it.
type Session struct {
	ID      string    `json:"id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Entries int       `json:"entries"`
}

// Group is a run of consecutive same-type entries close in time,
// collapsible in a UI.
type Group struct {
	Type    string    `json:"type"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Entries []Entry   `json:"entries"`
}

// Filter selects entries; zero fields match everything.
type Filter struct {
	Types      []string
	From, To   time.Time
	Search     string
	Bookmarked bool
}

func (f Filter) matches(e Entry) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Bookmarked && !e.Bookmarked {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(e.Description)
		found := strings.Contains(hay, needle)
		for _, tag := range e.Tags {
			if found {
				break
			}
			found = strings.Contains(strings.ToLower(tag), needle)
		}
		if !found {
			return false
		}
	}
	return true
}

// Stats summarizes the timeline.
type Stats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"byType"`
	Elapsed    time.Duration  `json:"elapsed"`
	AvgDelay   time.Duration  `json:"avgDelay"`
	Sessions   int            `json:"sessions"`
	Milestones []int          `json:"milestones"`
}

// Defaults.
const (
	DefaultIdleThreshold = 30 * time.Minute
	DefaultGroupWindow   = 5 * time.Second
)

// DefaultMilestones are the cumulative action counts that get celebrated.
var DefaultMilestones = []int{10, 50, 100, 500}

// Config tunes a timeline. Zero values fall back to defaults.
type Config struct {
	IdleThreshold time.Duration
	GroupWindow   time.Duration
	Milestones    []int
	Now           func() time.Time
	NewID         func() string
}

// Timeline accumulates entries for one assembly.
type Timeline struct {
	entries     []Entry
	sessions    []Session
	idle        time.Duration
	groupWindow time.Duration
	milestones  []int
	reached     []int
	now         func() time.Time
	newID       func() string
}

// New builds a timeline and opens its first session.
func New(cfg Config) *Timeline {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	if cfg.GroupWindow <= 0 {
		cfg.GroupWindow = DefaultGroupWindow
	}
	if cfg.Milestones == nil {
		cfg.Milestones = DefaultMilestones
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	tl := &Timeline{
		idle:        cfg.IdleThreshold,
		groupWindow: cfg.GroupWindow,
		milestones:  cfg.Milestones,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
	start := tl.now()
	tl.sessions = append(tl.sessions, Session{ID: tl.newID(), Start: start, End: start})
	return tl
}

// Append records an action. The returned milestone is the cumulative
// count just crossed, or 0.
func (tl *Timeline) Append(actionType, description string, pieceIDs []string) (Entry, int) {
	ts := tl.now()
	session := &tl.sessions[len(tl.sessions)-1]
	var durationMS int64
	if len(tl.entries) > 0 {
		prev := tl.entries[len(tl.entries)-1]
		gap := ts.Sub(prev.Timestamp)
		if gap > tl.idle {
			tl.sessions = append(tl.sessions, Session{ID: tl.newID(), Start: ts, End: ts})
			session = &tl.sessions[len(tl.sessions)-1]
		} else {
			durationMS = gap.Milliseconds()
		}
	}
	session.End = ts
	session.Entries++

	bucket := TimeOfDay(ts)
	tags := append([]string{actionType, bucket}, pieceIDs...)
	e := Entry{
		ID:          tl.newID(),
		Type:        actionType,
		Description: description,
		Timestamp:   ts,
		DurationMS:  durationMS,
		SessionID:   session.ID,
		PieceIDs:    append([]string(nil), pieceIDs...),
		Tags:        tags,
		TimeOfDay:   bucket,
	}
	tl.entries = append(tl.entries, e)

	for _, m := range tl.milestones {
		if len(tl.entries) == m {
			tl.reached = append(tl.reached, m)
			return e, m
		}
	}
	return e, 0
}

// Bookmark flags or unflags an entry.
func (tl *Timeline) Bookmark(entryID string, on bool) error {
	for i := range tl.entries {
		if tl.entries[i].ID == entryID {
			tl.entries[i].Bookmarked = on
			return nil
		}
	}
	return fault.New(fault.NotFound, "timeline entry %q not found", entryID)
}

// Entries returns a copy of all entries in order.
func (tl *Timeline) Entries() []Entry {
	return append([]Entry(nil), tl.entries...)
}

// Filtered returns the entries matching f, in order.
func (tl *Timeline) Filtered(f Filter) []Entry {
	var out []Entry
	for _, e := range tl.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sessions returns a copy of the session list.
func (tl *Timeline) Sessions() []Session {
	return append([]Session(nil), tl.sessions...)
}

// Groups collapses consecutive same-type entries recorded within the
// group window of each other.
func (tl *Timeline) Groups() []Group {
	var groups []Group
	for _, e := range tl.entries {
		if n := len(groups); n > 0 {
			last := &groups[n-1]
			if last.Type == e.Type && e.Timestamp.Sub(last.End) <= tl.groupWindow {
				last.Entries = append(last.Entries, e)
				last.End = e.Timestamp
				continue
			}
		}
		groups = append(groups, Group{
			Type:    e.Type,
			Start:   e.Timestamp,
			End:     e.Timestamp,
			Entries: []Entry{e},
		})
	}
	return groups
}

// Stats summarizes the timeline.
func (tl *Timeline) Stats() Stats {
	s := Stats{
		Total:      len(tl.entries),
		ByType:     make(map[string]int),
		Sessions:   len(tl.sessions),
		Milestones: append([]int(nil), tl.reached...),
	}
	for _, e := range tl.entries {
		s.ByType[e.Type]++
	}
	if len(tl.entries) > 1 {
		first := tl.entries[0].Timestamp
		last := tl.entries[len(tl.entries)-1].Timestamp
		s.Elapsed = last.Sub(first)
		s.AvgDelay = s.Elapsed / time.Duration(len(tl.entries)-1)
	}
	return s
}

// ExportJSON renders all entries as an indented JSON array.
func (tl *Timeline) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(tl.entries, "", "  ")
}

// ExportCSV renders the entries as CSV with a fixed header row.
func (tl *Timeline) ExportCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "type", "description", "duration_ms", "session_id"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range tl.entries {
		row := []string{
			e.Timestamp.Format(time.RFC3339),
			e.Type,
			e.Description,
			strconv.FormatInt(e.DurationMS, 10),
			e.SessionID,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
