package timeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTimeline(start time.Time) (*Timeline, *testClock) {
	clock := &testClock{t: start}
	n := 0
	tl := New(Config{
		Now: clock.now,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	return tl, clock
}

var base = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{23, LateNight}, {2, LateNight}, {4, LateNight},
		{5, Morning}, {11, Morning},
		{12, Afternoon}, {16, Afternoon},
		{17, Evening}, {21, Evening},
	}
	for _, tt := range tests {
		ts := time.Date(2025, 1, 1, tt.hour, 30, 0, 0, time.UTC)
		if got := TimeOfDay(ts); got != tt.want {
			t.Errorf("TimeOfDay(hour %d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestAppend_DurationsAndSessions(t *testing.T) {
	tl, clock := newTestTimeline(base)
	tl.Append("add_piece", "added body", []string{"p1"})
	clock.advance(3 * time.Second)
	e, _ := tl.Append("add_piece", "added head", []string{"p2"})
	if e.DurationMS != 3000 {
		t.Errorf("duration = %d, want 3000", e.DurationMS)
	}

	// An idle gap opens a new session and resets the duration.
	clock.advance(45 * time.Minute)
	e, _ = tl.Append("connect", "joined head to body", []string{"p1", "p2"})
	if e.DurationMS != 0 {
		t.Errorf("post-gap duration = %d, want 0", e.DurationMS)
	}
	sessions := tl.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].Entries != 2 || sessions[1].Entries != 1 {
		t.Errorf("session entries = %d/%d, want 2/1",
			sessions[0].Entries, sessions[1].Entries)
	}
	if e.SessionID == tl.Entries()[0].SessionID {
		t.Error("post-gap entry kept the old session id")
	}
}

func TestMilestones(t *testing.T) {
	tl, clock := newTestTimeline(base)
	var crossed []int
	for i := 0; i < 12; i++ {
		clock.advance(time.Second)
		if _, m := tl.Append("add_piece", "piece", nil); m != 0 {
			crossed = append(crossed, m)
		}
	}
	if len(crossed) != 1 || crossed[0] != 10 {
		t.Errorf("milestones crossed = %v, want [10]", crossed)
	}
	if got := tl.Stats().Milestones; len(got) != 1 || got[0] != 10 {
		t.Errorf("stats milestones = %v, want [10]", got)
	}
}

func TestGroups(t *testing.T) {
	tl, clock := newTestTimeline(base)
	tl.Append("move_piece", "nudge 1", nil)
	clock.advance(2 * time.Second)
	tl.Append("move_piece", "nudge 2", nil)
	clock.advance(2 * time.Second)
	tl.Append("move_piece", "nudge 3", nil)
	clock.advance(10 * time.Second)
	tl.Append("move_piece", "late nudge", nil)
	clock.advance(time.Second)
	tl.Append("connect", "join", nil)

	groups := tl.Groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if len(groups[0].Entries) != 3 {
		t.Errorf("first group size = %d, want 3", len(groups[0].Entries))
	}
	if groups[1].Type != "move_piece" || len(groups[1].Entries) != 1 {
		t.Errorf("second group = %s x%d, want lone move_piece", groups[1].Type, len(groups[1].Entries))
	}
}

func TestFiltered(t *testing.T) {
	tl, clock := newTestTimeline(base)
	tl.Append("add_piece", "added fluffy body", []string{"p1"})
	clock.advance(time.Minute)
	e2, _ := tl.Append("connect", "joined arm", []string{"p2"})
	clock.advance(time.Minute)
	tl.Append("remove_piece", "removed tail", []string{"p3"})

	if got := tl.Filtered(Filter{Types: []string{"connect"}}); len(got) != 1 || got[0].ID != e2.ID {
		t.Errorf("type filter returned %d entries", len(got))
	}
	if got := tl.Filtered(Filter{Search: "FLUFFY"}); len(got) != 1 {
		t.Errorf("search filter returned %d entries, want 1", len(got))
	}
	// Tags carry piece ids, so searching an id matches too.
	if got := tl.Filtered(Filter{Search: "p3"}); len(got) != 1 {
		t.Errorf("tag search returned %d entries, want 1", len(got))
	}
	if got := tl.Filtered(Filter{From: base.Add(90 * time.Second)}); len(got) != 1 {
		t.Errorf("time filter returned %d entries, want 1", len(got))
	}

	if err := tl.Bookmark(e2.ID, true); err != nil {
		t.Fatalf("Bookmark: %v", err)
	}
	if got := tl.Filtered(Filter{Bookmarked: true}); len(got) != 1 || got[0].ID != e2.ID {
		t.Errorf("bookmark filter returned %d entries", len(got))
	}
	if err := tl.Bookmark("ghost", true); !fault.Is(err, fault.NotFound) {
		t.Errorf("bookmark ghost error = %v, want not_found", err)
	}
}

func TestStats(t *testing.T) {
	tl, clock := newTestTimeline(base)
	tl.Append("add_piece", "a", nil)
	clock.advance(10 * time.Second)
	tl.Append("add_piece", "b", nil)
	clock.advance(20 * time.Second)
	tl.Append("connect", "c", nil)

	s := tl.Stats()
	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if s.ByType["add_piece"] != 2 || s.ByType["connect"] != 1 {
		t.Errorf("byType = %v", s.ByType)
	}
	if s.Elapsed != 30*time.Second {
		t.Errorf("elapsed = %v, want 30s", s.Elapsed)
	}
	if s.AvgDelay != 15*time.Second {
		t.Errorf("avgDelay = %v, want 15s", s.AvgDelay)
	}
	if s.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", s.Sessions)
	}
}

func TestExportCSV(t *testing.T) {
	tl, clock := newTestTimeline(base)
	tl.Append("add_piece", "added body", []string{"p1"})
	clock.advance(time.Second)
	tl.Append("connect", "has, comma", nil)

	out, err := tl.ExportCSV()
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want 3", len(lines))
	}
	if lines[0] != "timestamp,type,description,duration_ms,session_id" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], `"has, comma"`) {
		t.Errorf("comma field not quoted: %q", lines[2])
	}
}

func TestExportJSON(t *testing.T) {
	tl, _ := newTestTimeline(base)
	tl.Append("add_piece", "added body", nil)
	out, err := tl.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !strings.Contains(string(out), `"type": "add_piece"`) {
		t.Errorf("json missing type field: %s", out)
	}
}
