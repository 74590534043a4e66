// Package suggest generates rule-based design suggestions for an
// assembly: missing pieces, plausible connections, pattern fixes,
// structural warnings and simplification hints. Results are cached per
// (assembly, version, context) with a short TTL so repeated queries
// between mutations are free.
package suggest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

// Type is the rule category a suggestion came from.
type Type string

const (
	TypePiece        Type = "piece"
	TypeConnection   Type = "connection"
	TypePattern      Type = "pattern"
	TypeStructural   Type = "structural"
	TypeOptimization Type = "optimization"
)

// Priority orders suggestions for presentation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Suggestion is one actionable hint. Payload carries the machine-readable
// parameters an engine needs to apply it; Reason is the user-facing line.
type Suggestion struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Priority   Priority       `json:"priority"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Learned    bool           `json:"learnedFromHistory"`
}

// Context narrows generation to a single rule category. The zero value
// runs every category.
type Context struct {
	Type Type `json:"type,omitempty"`
}

// draft is a suggestion before scoring. patternMatch marks drafts whose
// suggested piece type has a starter pattern in the library.
type draft struct {
	Suggestion
	patternMatch bool
}

const (
	defaultCacheSize = 128
	defaultTTL       = 3 * time.Second

	historicalBias  = 0.30
	integrityFloor  = 0.7
	crowdedDegree   = 5
	longPattern     = 20
	busyPattern     = 6
	similarLenSlack = 2
	largeAssembly   = 20
)

// starters maps round-worked piece types to a starter pattern offered
// alongside add-piece suggestions.
var starters = map[string]string{
	"head": "MR sc sc sc sc sc sc",
	"body": "MR sc sc sc sc sc sc",
	"arm":  "MR sc sc sc sc",
	"leg":  "MR sc sc sc sc sc",
	"ear":  "MR sc sc sc",
	"tail": "MR sc sc sc",
}

// roundWorked lists the piece types expected to start with a magic ring.
var roundWorked = map[string]bool{
	"body": true, "head": true, "arm": true, "leg": true,
	"ear": true, "tail": true, "muzzle": true, "paw": true,
}

// Config carries the engine's dependencies. Zero values fall back to
// production defaults.
type Config struct {
	Logger    *zap.Logger
	CacheSize int
	TTL       time.Duration
	Now       func() time.Time
	Rand      func() float64 // uniform in [0,1)
}

// Engine evaluates the rule catalog against an assembly and remembers
// what the user builds, so later suggestions can lean on history.
type Engine struct {
	log   *zap.Logger
	cache *expirable.LRU[string, []Suggestion]
	now   func() time.Time
	rand  func() float64

	pieceUsage map[string]int
	connUsage  map[string]int
}

// NewEngine builds a suggestion engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Engine{
		log:        cfg.Logger.Named("suggest"),
		cache:      expirable.NewLRU[string, []Suggestion](cfg.CacheSize, nil, cfg.TTL),
		now:        cfg.Now,
		rand:       cfg.Rand,
		pieceUsage: make(map[string]int),
		connUsage:  make(map[string]int),
	}
}

// Generate runs the rule catalog and returns suggestions sorted by
// priority, then confidence. Callers must treat the result as read-only;
// it may be shared with later cache hits.
func (e *Engine) Generate(a *assembly.Assembly, ctx Context) []Suggestion {
	key := e.cacheKey(a, ctx)
	if cached, ok := e.cache.Get(key); ok {
		e.log.Debug("suggestion cache hit", zap.String("assembly", a.ID), zap.Int("version", a.Version))
		return cached
	}

	var drafts []draft
	rules := []struct {
		typ Type
		run func(*assembly.Assembly) []draft
	}{
		{TypePiece, e.pieceRules},
		{TypeConnection, e.connectionRules},
		{TypePattern, patternRules},
		{TypeStructural, structuralRules},
		{TypeOptimization, optimizationRules},
	}
	for _, r := range rules {
		if ctx.Type != "" && ctx.Type != r.typ {
			continue
		}
		for _, d := range r.run(a) {
			d.Type = r.typ
			drafts = append(drafts, d)
		}
	}

	out := e.finalize(a, drafts)
	e.cache.Add(key, out)
	e.log.Debug("suggestions generated",
		zap.String("assembly", a.ID),
		zap.Int("version", a.Version),
		zap.Int("count", len(out)))
	return out
}

func (e *Engine) cacheKey(a *assembly.Assembly, ctx Context) string {
	ctxJSON, _ := json.Marshal(ctx)
	return fmt.Sprintf("%s|%d|%s", a.ID, a.Version, ctxJSON)
}

// finalize scores, stamps and orders the drafts.
func (e *Engine) finalize(a *assembly.Assembly, drafts []draft) []Suggestion {
	now := e.now()
	out := make([]Suggestion, 0, len(drafts))
	for _, d := range drafts {
		s := d.Suggestion
		conf := 0.5
		switch s.Priority {
		case PriorityHigh:
			conf += 0.2
		case PriorityMedium:
			conf += 0.1
		}
		if d.patternMatch {
			conf += 0.15
		}
		if s.Learned {
			conf += 0.1
		}
		if len(a.Pieces) > largeAssembly {
			conf -= 0.1
		}
		s.Confidence = math.Round(math.Min(1, math.Max(0, conf))*100) / 100
		s.ID = fmt.Sprintf("%s-%d-%s", s.Type, now.UnixMilli(), e.randSuffix())
		s.Timestamp = now
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := priorityRank[out[i].Priority], priorityRank[out[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (e *Engine) randSuffix() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = suffixAlphabet[int(e.rand()*float64(len(suffixAlphabet)))%len(suffixAlphabet)]
	}
	return string(b)
}

// pieceRules suggests pieces the assembly is visibly missing, plus a
// probabilistic nudge toward whatever the user historically adds most.
func (e *Engine) pieceRules(a *assembly.Assembly) []draft {
	var out []draft
	counts := make(map[string]int)
	var loneArm *assembly.Piece
	for _, p := range a.PieceList() {
		counts[p.Type]++
		if p.Type == "arm" {
			loneArm = p
		}
	}

	if counts["body"] > 0 && counts["head"] == 0 {
		out = append(out, addPieceDraft("head", assembly.SideNone, PriorityHigh,
			"The assembly has a body but no head."))
	}
	if counts["arm"] == 1 {
		out = append(out, addPieceDraft("arm", oppositeSide(loneArm.Meta.Side), PriorityHigh,
			"Only one arm is attached; add its pair on the other side."))
	}
	if typ, n := e.favoritePieceType(); n > 0 && e.rand() < historicalBias {
		d := addPieceDraft(typ, assembly.SideNone, PriorityLow,
			fmt.Sprintf("You add %s pieces to most of your designs.", typ))
		d.Learned = true
		out = append(out, d)
	}
	return out
}

func addPieceDraft(pieceType string, side assembly.Side, pri Priority, reason string) draft {
	payload := map[string]any{"action": "add_piece", "pieceType": pieceType}
	if side != assembly.SideNone {
		payload["side"] = string(side)
	}
	d := draft{Suggestion: Suggestion{Priority: pri, Reason: reason, Payload: payload}}
	if starter, ok := starters[pieceType]; ok {
		payload["starterPattern"] = starter
		d.patternMatch = true
	}
	return d
}

func oppositeSide(s assembly.Side) assembly.Side {
	switch s {
	case assembly.SideLeft:
		return assembly.SideRight
	case assembly.SideRight:
		return assembly.SideLeft
	default:
		return assembly.SideNone
	}
}

// favoritePieceType returns the most recorded piece type, breaking count
// ties by name so results are stable.
func (e *Engine) favoritePieceType() (string, int) {
	types := make([]string, 0, len(e.pieceUsage))
	for t := range e.pieceUsage {
		types = append(types, t)
	}
	sort.Strings(types)
	best, n := "", 0
	for _, t := range types {
		if e.pieceUsage[t] > n {
			best, n = t, e.pieceUsage[t]
		}
	}
	return best, n
}

// connectionRules proposes a join for every unconnected pair of pieces
// with mutually compatible free points. Body and head get a dedicated
// high-priority rule through their neck points.
func (e *Engine) connectionRules(a *assembly.Assembly) []draft {
	connected := make(map[string]bool)
	for _, c := range a.ConnectionList() {
		connected[pairKey(c.A.PieceID, c.B.PieceID)] = true
	}

	var out []draft
	pieces := a.PieceList()
	for i := 0; i < len(pieces); i++ {
		for j := i + 1; j < len(pieces); j++ {
			p1, p2 := pieces[i], pieces[j]
			if connected[pairKey(p1.ID, p2.ID)] {
				continue
			}
			pt1, pt2, ok := assembly.BestPointPair(p1, p2)
			if !ok {
				continue
			}
			pri := PriorityMedium
			reason := fmt.Sprintf("%s and %s have compatible free points.", pieceLabel(p1), pieceLabel(p2))
			if neckPair(p1, p2, pt1, pt2) {
				pri = PriorityHigh
				reason = "The head fits the body's neck joint."
			}
			d := draft{Suggestion: Suggestion{
				Priority: pri,
				Reason:   reason,
				Payload: map[string]any{
					"action": "connect",
					"piece1": p1.ID, "point1": pt1.ID,
					"piece2": p2.ID, "point2": pt2.ID,
				},
			}}
			if e.connUsage[pairKey(p1.Type, p2.Type)] > 0 {
				d.Learned = true
			}
			out = append(out, d)
		}
	}
	return out
}

func neckPair(p1, p2 *assembly.Piece, pt1, pt2 *assembly.ConnectionPoint) bool {
	if p1.Type == "body" && p2.Type == "head" {
		return pt1.Name == "neck_joint" && pt2.Name == "neck"
	}
	if p1.Type == "head" && p2.Type == "body" {
		return pt1.Name == "neck" && pt2.Name == "neck_joint"
	}
	return false
}

func pieceLabel(p *assembly.Piece) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type
}

// patternRules flags round-worked pieces missing their magic ring and
// patterns that increase far more than they decrease.
func patternRules(a *assembly.Assembly) []draft {
	var out []draft
	for _, p := range a.PieceList() {
		if len(p.Pattern) == 0 {
			continue
		}
		if roundWorked[p.Type] && p.Pattern[0] != pattern.MagicRing {
			fixed := append(pattern.Pattern{pattern.MagicRing}, p.Pattern...)
			out = append(out, draft{Suggestion: Suggestion{
				Priority: PriorityMedium,
				Reason:   fmt.Sprintf("%s is worked in the round but does not start with a magic ring.", pieceLabel(p)),
				Payload: map[string]any{
					"action":  "modify_pattern",
					"pieceId": p.ID,
					"pattern": fixed.String(),
				},
			}})
		}
		inc := countStitch(p.Pattern, pattern.Increase)
		dec := countStitch(p.Pattern, pattern.Decrease)
		if inc > 2*dec {
			added := (inc+1)/2 - dec
			out = append(out, draft{Suggestion: Suggestion{
				Priority: PriorityLow,
				Reason:   fmt.Sprintf("%s increases %d times but decreases only %d; it may not close.", pieceLabel(p), inc, dec),
				Payload: map[string]any{
					"action":         "modify_pattern",
					"pieceId":        p.ID,
					"addedDecreases": added,
				},
			}})
		}
	}
	return out
}

func countStitch(p pattern.Pattern, s pattern.Stitch) int {
	n := 0
	for _, tok := range p {
		if tok == s {
			n++
		}
	}
	return n
}

// structuralRules covers side balance, weakly or heavily joined pieces
// and overall attachment integrity.
func structuralRules(a *assembly.Assembly) []draft {
	var out []draft

	left, right := 0, 0
	for _, p := range a.PieceList() {
		switch p.Meta.Side {
		case assembly.SideLeft:
			left++
		case assembly.SideRight:
			right++
		}
	}
	if diff := left - right; diff > 1 || diff < -1 {
		side := assembly.SideLeft
		if diff > 0 {
			side = assembly.SideRight
		}
		out = append(out, draft{Suggestion: Suggestion{
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("The sides are unbalanced: %d left, %d right.", left, right),
			Payload: map[string]any{
				"action": "balance_sides",
				"side":   string(side),
				"left":   left,
				"right":  right,
			},
		}})
	}

	for _, p := range a.PieceList() {
		deg := len(a.ConnectionsForPiece(p.ID))
		switch {
		case deg == 1:
			out = append(out, reinforceDraft(p, deg,
				fmt.Sprintf("%s hangs on a single join; a second stitch pass keeps it from twisting.", pieceLabel(p))))
		case deg >= crowdedDegree:
			out = append(out, reinforceDraft(p, deg,
				fmt.Sprintf("%s carries %d joins; reinforce it before stuffing.", pieceLabel(p), deg)))
		}
	}

	if score := a.IntegrityScore(); score < integrityFloor {
		out = append(out, draft{Suggestion: Suggestion{
			Priority: PriorityHigh,
			Reason:   "Most pieces are not anchored to the main body.",
			Payload: map[string]any{
				"action":    "stabilize",
				"integrity": math.Round(score*100) / 100,
			},
		}})
	}
	return out
}

func reinforceDraft(p *assembly.Piece, deg int, reason string) draft {
	return draft{Suggestion: Suggestion{
		Priority: PriorityHigh,
		Reason:   reason,
		Payload: map[string]any{
			"action":      "reinforce",
			"pieceId":     p.ID,
			"connections": deg,
		},
	}}
}

// optimizationRules finds connected same-type pieces that could be worked
// as one, and patterns long or varied enough to be worth simplifying.
func optimizationRules(a *assembly.Assembly) []draft {
	var out []draft

	seen := make(map[string]bool)
	for _, c := range a.ConnectionList() {
		p1, p2 := a.Piece(c.A.PieceID), a.Piece(c.B.PieceID)
		if p1 == nil || p2 == nil || p1.Type != p2.Type {
			continue
		}
		key := pairKey(p1.ID, p2.ID)
		if seen[key] {
			continue
		}
		seen[key] = true
		diff := len(p1.Pattern) - len(p2.Pattern)
		if diff < 0 {
			diff = -diff
		}
		if diff > similarLenSlack {
			continue
		}
		out = append(out, draft{Suggestion: Suggestion{
			Priority: PriorityLow,
			Reason:   fmt.Sprintf("%s and %s are joined %s pieces with near-identical patterns; they could be worked as one.", pieceLabel(p1), pieceLabel(p2), p1.Type),
			Payload: map[string]any{
				"action":   "consolidate",
				"pieceIds": []any{p1.ID, p2.ID},
			},
		}})
	}

	for _, p := range a.PieceList() {
		unique := len(p.Pattern.Unique())
		if len(p.Pattern) <= longPattern && unique <= busyPattern {
			continue
		}
		out = append(out, draft{Suggestion: Suggestion{
			Priority: PriorityLow,
			Reason:   fmt.Sprintf("%s's pattern runs %d tokens across %d stitch kinds; consider simplifying.", pieceLabel(p), len(p.Pattern), unique),
			Payload: map[string]any{
				"action":         "simplify_pattern",
				"pieceId":        p.ID,
				"length":         len(p.Pattern),
				"uniqueStitches": unique,
			},
		}})
	}
	return out
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// RecordPieceUsage counts a piece type toward the learned history.
func (e *Engine) RecordPieceUsage(pieceType string) {
	if pieceType == "" {
		return
	}
	e.pieceUsage[pieceType]++
}

// RecordConnection counts a joined type pair toward the learned history.
func (e *Engine) RecordConnection(type1, type2 string) {
	if type1 == "" || type2 == "" {
		return
	}
	e.connUsage[pairKey(type1, type2)]++
}

// ExportData is the serialized learned history.
type ExportData struct {
	PieceUsage      map[string]int `json:"pieceUsage"`
	ConnectionUsage map[string]int `json:"connectionUsage"`
	ExportedAt      time.Time      `json:"exportedAt"`
}

// Export serializes the learned history for persistence or inspection.
func (e *Engine) Export() ([]byte, error) {
	data, err := json.MarshalIndent(ExportData{
		PieceUsage:      e.pieceUsage,
		ConnectionUsage: e.connUsage,
		ExportedAt:      e.now(),
	}, "", "  ")
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err)
	}
	return data, nil
}
