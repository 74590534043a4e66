package assembly

import (
	"fmt"
	"math"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// MaxSizeGap is the largest allowed |sizeA-sizeB| between two sized points.
const MaxSizeGap = 2.0

// Connection refusal reasons. Closed set; Verdict.Reason is always one of
// these when invalid.
const (
	ReasonMissingPoints   = "missing_points"
	ReasonSelfConnection  = "self_connection"
	ReasonOccupied        = "occupied"
	ReasonIncompatible    = "incompatible"
	ReasonSizeMismatch    = "size_mismatch"
	ReasonWouldCycle      = "would_cycle"
	ReasonMultiEdge       = "multi_edge"
	ReasonTierRestricted  = "tier_restricted_custom_piece"
)

// reasonKinds maps refusal reasons onto the error taxonomy.
var reasonKinds = map[string]fault.Kind{
	ReasonMissingPoints:  fault.NotFound,
	ReasonSelfConnection: fault.SelfConnection,
	ReasonOccupied:       fault.Occupied,
	ReasonIncompatible:   fault.Incompatible,
	ReasonSizeMismatch:   fault.SizeMismatch,
	ReasonWouldCycle:     fault.WouldCycle,
	ReasonMultiEdge:      fault.MultiEdge,
	ReasonTierRestricted: fault.TierRestrictedCustomPiece,
}

// Verdict is the outcome of checking a prospective connection.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Err converts an invalid verdict into a fault error; valid verdicts
// return nil.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	kind, ok := reasonKinds[v.Reason]
	if !ok {
		kind = fault.ValidationFailed
	}
	return fault.New(kind, "%s", v.Detail)
}

func invalid(reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// CheckConnection is the pure connection predicate: it inspects the
// current graph and reports whether joining the two points would keep it
// valid. It never mutates the assembly.
func (a *Assembly) CheckConnection(piece1, point1, piece2, point2 string) Verdict {
	p1 := a.Pieces[piece1]
	p2 := a.Pieces[piece2]
	if p1 == nil || p2 == nil {
		return invalid(ReasonMissingPoints, "piece %q or %q not found", piece1, piece2)
	}
	pt1 := p1.Point(point1)
	pt2 := p2.Point(point2)
	if pt1 == nil || pt2 == nil {
		return invalid(ReasonMissingPoints, "point %q or %q not found", point1, point2)
	}

	if piece1 == piece2 {
		return invalid(ReasonSelfConnection, "piece %q cannot connect to itself", piece1)
	}

	if a.Tier == tier.Freemium && (p1.Custom || p2.Custom) {
		return invalid(ReasonTierRestricted, "freemium tier cannot connect custom pieces")
	}

	if pt1.Occupied {
		return invalid(ReasonOccupied, "point %q on piece %q is occupied", pt1.Name, p1.Name)
	}
	if pt2.Occupied {
		return invalid(ReasonOccupied, "point %q on piece %q is occupied", pt2.Name, p2.Name)
	}

	if !pt1.Accepts(pt2) || !pt2.Accepts(pt1) {
		return invalid(ReasonIncompatible, "points %q and %q are not mutually compatible",
			pt1.Name, pt2.Name)
	}

	if pt1.Size > 0 && pt2.Size > 0 && math.Abs(pt1.Size-pt2.Size) > MaxSizeGap {
		return invalid(ReasonSizeMismatch, "point sizes %.1f and %.1f differ by more than %.0f",
			pt1.Size, pt2.Size, MaxSizeGap)
	}

	if _, dup := a.pairIndex()[pairKey(piece1, piece2)]; dup {
		return invalid(ReasonMultiEdge, "pieces %q and %q are already connected", p1.Name, p2.Name)
	}

	if a.pathExists(piece1, piece2) {
		return invalid(ReasonWouldCycle, "connecting %q to %q would close a cycle", p1.Name, p2.Name)
	}

	return Verdict{Valid: true}
}

// pairIndex returns the set of connected unordered piece pairs.
func (a *Assembly) pairIndex() map[string]string {
	idx := make(map[string]string, len(a.Connections))
	for id, c := range a.Connections {
		idx[pairKey(c.A.PieceID, c.B.PieceID)] = id
	}
	return idx
}

// adjacency returns piece-id adjacency over the live connections.
func (a *Assembly) adjacency() map[string][]string {
	adj := make(map[string][]string, len(a.Pieces))
	for _, c := range a.Connections {
		adj[c.A.PieceID] = append(adj[c.A.PieceID], c.B.PieceID)
		adj[c.B.PieceID] = append(adj[c.B.PieceID], c.A.PieceID)
	}
	return adj
}

// pathExists reports whether to is reachable from from over existing
// connections, by iterative DFS.
func (a *Assembly) pathExists(from, to string) bool {
	adj := a.adjacency()
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Whole-graph validation
// ---------------------------------------------------------------------------

// ValidationSeverity indicates whether a finding blocks the assembly or is
// merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	PieceID  string             // which piece has the problem (empty if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.PieceID == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] piece %s: %s", e.Severity, e.PieceID, e.Message)
}

// ValidationResult bundles errors (blocking) and warnings (advisory).
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// Valid reports whether the assembly passed with no blocking errors.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Validate runs every structural invariant over the assembly and separates
// findings by severity. It is read-only and never mutates the graph.
func Validate(a *Assembly) ValidationResult {
	var findings []ValidationError
	findings = append(findings, validateEndpoints(a)...)
	findings = append(findings, validateOccupancy(a)...)
	findings = append(findings, validatePairs(a)...)
	findings = append(findings, validateAcyclic(a)...)
	findings = append(findings, validateCompatibility(a)...)
	findings = append(findings, validateReachability(a)...)

	var result ValidationResult
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, f)
		} else {
			result.Errors = append(result.Errors, f)
		}
	}
	return result
}

// validateEndpoints checks that every connection endpoint references an
// existing piece and an existing point on that piece.
func validateEndpoints(a *Assembly) []ValidationError {
	var errs []ValidationError
	for _, c := range a.ConnectionList() {
		for _, e := range []Endpoint{c.A, c.B} {
			p, ok := a.Pieces[e.PieceID]
			if !ok {
				errs = append(errs, ValidationError{
					Message:  fmt.Sprintf("connection %s references missing piece %s", c.ID, e.PieceID),
					Severity: SeverityError,
				})
				continue
			}
			if p.Point(e.PointID) == nil {
				errs = append(errs, ValidationError{
					PieceID:  e.PieceID,
					Message:  fmt.Sprintf("connection %s references missing point %s", c.ID, e.PointID),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateOccupancy checks that no point participates in more than one
// connection and that the derived Occupied flags agree with the edge set.
func validateOccupancy(a *Assembly) []ValidationError {
	var errs []ValidationError

	uses := make(map[Endpoint]int)
	for _, c := range a.ConnectionList() {
		uses[c.A]++
		uses[c.B]++
	}
	for e, n := range uses {
		if n > 1 {
			errs = append(errs, ValidationError{
				PieceID:  e.PieceID,
				Message:  fmt.Sprintf("point %s is used by %d connections", e.PointID, n),
				Severity: SeverityError,
			})
		}
	}

	for _, p := range a.PieceList() {
		for _, pt := range p.Points {
			inUse := uses[Endpoint{PieceID: p.ID, PointID: pt.ID}] > 0
			if pt.Occupied != inUse {
				errs = append(errs, ValidationError{
					PieceID:  p.ID,
					Message:  fmt.Sprintf("point %q occupied flag is %v but connection count says %v", pt.Name, pt.Occupied, inUse),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validatePairs checks for self-connections and multi-edges over the same
// unordered piece pair.
func validatePairs(a *Assembly) []ValidationError {
	var errs []ValidationError
	pairs := make(map[string]int)
	for _, c := range a.ConnectionList() {
		if c.A.PieceID == c.B.PieceID {
			errs = append(errs, ValidationError{
				PieceID:  c.A.PieceID,
				Message:  fmt.Sprintf("connection %s joins a piece to itself", c.ID),
				Severity: SeverityError,
			})
			continue
		}
		pairs[pairKey(c.A.PieceID, c.B.PieceID)]++
	}
	for key, n := range pairs {
		if n > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("piece pair %s carries %d parallel connections", key, n),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateAcyclic checks the undirected connection graph for cycles by DFS
// with parent skipping. One cycle error is sufficient; stop early.
func validateAcyclic(a *Assembly) []ValidationError {
	adj := a.adjacency()
	seen := make(map[string]bool)

	var visit func(id, parent string) bool // returns true if cycle found
	visit = func(id, parent string) bool {
		seen[id] = true
		skipped := false
		for _, next := range adj[id] {
			if next == parent && !skipped {
				// Skip the edge we arrived by, once; a second edge back to
				// the parent is a real cycle (parallel edge).
				skipped = true
				continue
			}
			if seen[next] {
				return true
			}
			if visit(next, id) {
				return true
			}
		}
		return false
	}

	for _, p := range a.PieceList() {
		if !seen[p.ID] && visit(p.ID, "") {
			return []ValidationError{{
				PieceID:  p.ID,
				Message:  "connection graph contains a cycle",
				Severity: SeverityError,
			}}
		}
	}
	return nil
}

// validateCompatibility re-checks mutual acceptance and the size gap on
// every live connection.
func validateCompatibility(a *Assembly) []ValidationError {
	var errs []ValidationError
	for _, c := range a.ConnectionList() {
		p1, p2 := a.Pieces[c.A.PieceID], a.Pieces[c.B.PieceID]
		if p1 == nil || p2 == nil {
			continue // reported by validateEndpoints
		}
		pt1, pt2 := p1.Point(c.A.PointID), p2.Point(c.B.PointID)
		if pt1 == nil || pt2 == nil {
			continue
		}
		if !pt1.Accepts(pt2) || !pt2.Accepts(pt1) {
			errs = append(errs, ValidationError{
				PieceID:  p1.ID,
				Message:  fmt.Sprintf("connection %s joins incompatible points %q and %q", c.ID, pt1.Name, pt2.Name),
				Severity: SeverityError,
			})
		}
		if pt1.Size > 0 && pt2.Size > 0 && math.Abs(pt1.Size-pt2.Size) > MaxSizeGap {
			errs = append(errs, ValidationError{
				PieceID:  p1.ID,
				Message:  fmt.Sprintf("connection %s joins mismatched sizes %.1f and %.1f", c.ID, pt1.Size, pt2.Size),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateReachability warns about pieces unreachable from the roots.
// Orphans are tolerated to allow staged construction.
func validateReachability(a *Assembly) []ValidationError {
	if len(a.Pieces) < 2 {
		return nil
	}
	reachable := a.reachableSet()
	var errs []ValidationError
	for _, p := range a.PieceList() {
		if !reachable[p.ID] {
			errs = append(errs, ValidationError{
				PieceID:  p.ID,
				Message:  fmt.Sprintf("piece %q is not reachable from any root (orphan)", p.Name),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// reachableSet returns the piece ids reachable from the roots by BFS.
func (a *Assembly) reachableSet() map[string]bool {
	adj := a.adjacency()
	reachable := make(map[string]bool)
	queue := make([]string, 0, len(a.Pieces))
	for _, rid := range a.Roots() {
		if !reachable[rid] {
			reachable[rid] = true
			queue = append(queue, rid)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adj[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// IntegrityScore is the fraction of pieces reachable from the roots.
// Assemblies with at most one piece score 1.
func (a *Assembly) IntegrityScore() float64 {
	if len(a.Pieces) <= 1 {
		return 1
	}
	reachable := a.reachableSet()
	n := 0
	for id := range a.Pieces {
		if reachable[id] {
			n++
		}
	}
	return float64(n) / float64(len(a.Pieces))
}

// pointCandidate scores one prospective point pair.
type pointCandidate struct {
	a, b      *ConnectionPoint
	nameMatch bool
	typeMatch bool
	distance  float64
}

func (c pointCandidate) better(o pointCandidate) bool {
	if c.nameMatch != o.nameMatch {
		return c.nameMatch
	}
	if c.typeMatch != o.typeMatch {
		return c.typeMatch
	}
	return c.distance < o.distance
}

// BestPointPair picks the most plausible free point pair between two
// pieces: exact name match in the other side's compatibility set first,
// then matching type tags, then smallest distance between positions.
func BestPointPair(p1, p2 *Piece) (*ConnectionPoint, *ConnectionPoint, bool) {
	var best *pointCandidate
	for _, a := range p1.Points {
		if a.Occupied {
			continue
		}
		for _, b := range p2.Points {
			if b.Occupied || !a.Accepts(b) || !b.Accepts(a) {
				continue
			}
			c := pointCandidate{
				a:         a,
				b:         b,
				nameMatch: contains(a.Compatible, b.Name) && contains(b.Compatible, a.Name),
				typeMatch: a.Type != "" && a.Type == b.Type,
				distance:  a.Position.Distance(b.Position),
			}
			if best == nil || c.better(*best) {
				best = &c
			}
		}
	}
	if best == nil {
		return nil, nil, false
	}
	return best.a, best.b, true
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
