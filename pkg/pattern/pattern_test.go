package pattern

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	got := Parse("MR sc,sc inc\nSC  bobble")
	want := Pattern{MagicRing, Single, Single, Increase, Single, Stitch("bobble")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupIntoRounds_Delimited(t *testing.T) {
	p := Parse("ch ch ch join sc sc sc join")
	rounds := GroupIntoRounds(p)
	if len(rounds) != 2 {
		t.Fatalf("got %d rounds, want 2", len(rounds))
	}
	if len(rounds[0].Stitches) != 4 || rounds[0].Stitches[3] != Join {
		t.Errorf("round 1 = %v, want delimiter inside the round", rounds[0].Stitches)
	}
	if rounds[1].Index != 2 {
		t.Errorf("round index = %d, want 2", rounds[1].Index)
	}
}

func TestGroupIntoRounds_MagicRingStartsNewRound(t *testing.T) {
	p := Parse("MR sc sc sc MR sc sc")
	rounds := GroupIntoRounds(p)
	if len(rounds) != 2 {
		t.Fatalf("got %d rounds, want 2", len(rounds))
	}
	if rounds[1].Stitches[0] != MagicRing {
		t.Errorf("round 2 starts with %q, want MR", rounds[1].Stitches[0])
	}
}

func TestGroupIntoRounds_SingleRoundWithMR(t *testing.T) {
	// A leading MR must not trigger the fixed-window fallback.
	p := Parse("MR sc sc inc sc sc inc")
	rounds := GroupIntoRounds(p)
	if len(rounds) != 1 {
		t.Fatalf("got %d rounds, want 1", len(rounds))
	}
	if len(rounds[0].Stitches) != 7 {
		t.Errorf("round length = %d, want 7", len(rounds[0].Stitches))
	}
}

func TestGroupIntoRounds_FallbackWindows(t *testing.T) {
	p := Parse("sc sc sc sc sc sc sc sc")
	rounds := GroupIntoRounds(p)
	if len(rounds) != 2 {
		t.Fatalf("got %d rounds, want 2", len(rounds))
	}
	if len(rounds[0].Stitches) != 6 || len(rounds[1].Stitches) != 2 {
		t.Errorf("window sizes = %d,%d, want 6,2",
			len(rounds[0].Stitches), len(rounds[1].Stitches))
	}
}

func TestStitchCount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"plain round", "sc sc sc sc", 4},
		{"increases add two", "MR sc sc inc sc sc inc", 8},
		{"decreases remove one", "sc sc dec", 1},
		{"structural tokens free", "ch turn join FO", 0},
		{"clamped at zero", "dec dec", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StitchCount(Parse(tt.in)); got != tt.want {
				t.Errorf("StitchCount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindRepeat(t *testing.T) {
	r := FindRepeat(Parse("sc inc sc inc sc inc"))
	if r == nil {
		t.Fatal("expected a repeat")
	}
	if len(r.Pattern) != 2 || r.Repeats != 3 {
		t.Errorf("got period %v x%d, want [sc inc] x3", r.Pattern, r.Repeats)
	}
}

func TestFindRepeat_Aperiodic(t *testing.T) {
	if r := FindRepeat(Parse("sc inc dec sc")); r != nil {
		t.Errorf("expected nil, got %v x%d", r.Pattern, r.Repeats)
	}
}

func TestFindRepeat_RejectsTrivialPeriod(t *testing.T) {
	// A round that only matches itself has no repeat.
	if r := FindRepeat(Parse("sc inc")); r != nil {
		t.Errorf("expected nil for full-length period, got %v", r.Pattern)
	}
}

func TestAssessDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
	}{
		{"ch sc sl", Beginner},
		{"sc dc sc", Intermediate},
		{"sc inc", Intermediate},
		{"MR sc sc", Advanced},
		{"sc tr", Advanced},
	}
	for _, tt := range tests {
		if got := AssessDifficulty(Parse(tt.in)); got != tt.want {
			t.Errorf("AssessDifficulty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCondense(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sc sc sc inc", "3sc, inc"},
		{"sc", "sc"},
		{"inc inc dec", "2inc, dec"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Condense(Parse(tt.in)); got != tt.want {
			t.Errorf("Condense(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnique(t *testing.T) {
	got := Parse("sc inc sc dec inc").Unique()
	want := []Stitch{Single, Increase, Decrease}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unique mismatch (-want +got):\n%s", diff)
	}
}
