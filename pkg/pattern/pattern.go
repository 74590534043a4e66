// Package pattern models crochet stitch sequences. A pattern is an ordered
// list of stitch tokens; rounds, stitch counts, repeats and difficulty are
// derived from it with pure functions.
package pattern

import (
	"strconv"
	"strings"
)

// Stitch is a single pattern token.
type Stitch string

// The standard token vocabulary. Free-form tokens outside this set are
// carried through unchanged; they count as one stitch and consume no yarn
// unless the configuration tables say otherwise.
const (
	MagicRing    Stitch = "MR"
	Chain        Stitch = "ch"
	Slip         Stitch = "sl"
	Single       Stitch = "sc"
	HalfDouble   Stitch = "hdc"
	Double       Stitch = "dc"
	Treble       Stitch = "tr"
	DoubleTreble Stitch = "dtr"
	Increase     Stitch = "inc"
	Decrease     Stitch = "dec"
	FastenOff    Stitch = "FO"
	Turn         Stitch = "turn"
	Join         Stitch = "join"
)

// Pattern is an ordered sequence of stitch tokens.
type Pattern []Stitch

// canonical maps lowercase spellings to their canonical token.
var canonical = map[string]Stitch{
	"mr": MagicRing, "ch": Chain, "sl": Slip, "sc": Single,
	"hdc": HalfDouble, "dc": Double, "tr": Treble, "dtr": DoubleTreble,
	"inc": Increase, "dec": Decrease, "fo": FastenOff,
	"turn": Turn, "join": Join,
}

// Parse splits free text into a Pattern. Tokens are separated by whitespace
// or commas; known tokens are canonicalized case-insensitively, unknown
// tokens pass through as written.
func Parse(text string) Pattern {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	p := make(Pattern, 0, len(fields))
	for _, f := range fields {
		if s, ok := canonical[strings.ToLower(f)]; ok {
			p = append(p, s)
			continue
		}
		p = append(p, Stitch(f))
	}
	return p
}

// String renders the pattern as space-separated tokens.
func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

// Unique returns the distinct stitches of p in first-appearance order.
func (p Pattern) Unique() []Stitch {
	seen := make(map[Stitch]bool, len(p))
	var out []Stitch
	for _, s := range p {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Round is one delimited segment of a pattern.
type Round struct {
	Index    int     `json:"round"`
	Stitches Pattern `json:"stitches"`
}

// fallbackWindow is the round size used when a pattern has no delimiter
// tokens at all.
const fallbackWindow = 6

// GroupIntoRounds splits a pattern into rounds. join and sl close the round
// containing them; MR closes the preceding round when that round already
// holds at least two tokens, then starts a new one. Patterns with no
// delimiter tokens at all fall back to fixed windows of six.
func GroupIntoRounds(p Pattern) []Round {
	if len(p) == 0 {
		return nil
	}

	var rounds []Round
	var current Pattern
	delimited := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		rounds = append(rounds, Round{Index: len(rounds) + 1, Stitches: current})
		current = nil
	}

	for _, s := range p {
		switch s {
		case Join, Slip:
			current = append(current, s)
			flush()
			delimited = true
		case MagicRing:
			if len(current) >= 2 {
				flush()
			}
			current = append(current, s)
			delimited = true
		default:
			current = append(current, s)
		}
	}
	flush()

	if delimited {
		return rounds
	}

	// No delimiters anywhere: regroup into fixed windows.
	rounds = nil
	for start := 0; start < len(p); start += fallbackWindow {
		end := start + fallbackWindow
		if end > len(p) {
			end = len(p)
		}
		rounds = append(rounds, Round{
			Index:    len(rounds) + 1,
			Stitches: append(Pattern(nil), p[start:end]...),
		})
	}
	return rounds
}

// zeroCount holds the tokens that contribute no stitches to a round total.
var zeroCount = map[Stitch]bool{
	Chain: true, Turn: true, Join: true, FastenOff: true, MagicRing: true,
}

// StitchCount returns the number of stitches a sequence produces: inc adds
// two, dec removes one, structural tokens add nothing, everything else adds
// one. The result is clamped at zero.
func StitchCount(round Pattern) int {
	n := 0
	for _, s := range round {
		switch {
		case s == Increase:
			n += 2
		case s == Decrease:
			n--
		case zeroCount[s]:
		default:
			n++
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// Repeat describes a periodic structure detected within a round.
type Repeat struct {
	Pattern Pattern `json:"pattern"`
	Repeats int     `json:"repeats"`
}

// FindRepeat returns the smallest period of the round that divides its
// length and occurs at least twice, or nil when the round is aperiodic.
func FindRepeat(round Pattern) *Repeat {
	n := len(round)
	for period := 1; period <= n/2; period++ {
		if n%period != 0 {
			continue
		}
		periodic := true
		for i := period; i < n; i++ {
			if round[i] != round[i-period] {
				periodic = false
				break
			}
		}
		if periodic {
			return &Repeat{
				Pattern: append(Pattern(nil), round[:period]...),
				Repeats: n / period,
			}
		}
	}
	return nil
}

// Difficulty buckets a pattern by the hardest technique it uses.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// difficultyRank orders difficulties for max comparisons.
var difficultyRank = map[Difficulty]int{Beginner: 0, Intermediate: 1, Advanced: 2}

// StitchDifficulty returns the difficulty bucket for a single token.
func StitchDifficulty(s Stitch) Difficulty {
	switch s {
	case MagicRing, Treble, DoubleTreble:
		return Advanced
	case Double, Increase, Decrease:
		return Intermediate
	default:
		return Beginner
	}
}

// MaxDifficulty returns the harder of a and b.
func MaxDifficulty(a, b Difficulty) Difficulty {
	if difficultyRank[b] > difficultyRank[a] {
		return b
	}
	return a
}

// AssessDifficulty returns the difficulty of the hardest stitch in p.
func AssessDifficulty(p Pattern) Difficulty {
	d := Beginner
	for _, s := range p {
		d = MaxDifficulty(d, StitchDifficulty(s))
	}
	return d
}

// Condense renders a round as comma-separated run-length groups, e.g.
// [sc sc sc inc] becomes "3sc, inc".
func Condense(round Pattern) string {
	if len(round) == 0 {
		return ""
	}
	var b strings.Builder
	i := 0
	for i < len(round) {
		j := i
		for j < len(round) && round[j] == round[i] {
			j++
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if run := j - i; run > 1 {
			b.WriteString(strconv.Itoa(run))
		}
		b.WriteString(string(round[i]))
		i = j
	}
	return b.String()
}
