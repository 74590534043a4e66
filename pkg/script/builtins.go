package script

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: neck-height -> neck_height
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments,
// so point names like "neck-joint" keep their hyphens.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPieceRef wraps a manifest piece so it can be passed between builtins.
type sexpPieceRef struct {
	idx  int
	name string
}

func (r *sexpPieceRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(piece %q)", r.name)
}
func (r *sexpPieceRef) Type() *zygo.RegisteredType { return nil }

// sexpVec wraps a safe.Vector so positions can flow between builtins.
type sexpVec struct {
	vec safe.Vector
}

func (v *sexpVec) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value; treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toBool extracts a bool from a Sexp.
func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected bool, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_left) and plain strings ("left").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toSide converts a keyword or string to a side tag.
func toSide(s zygo.Sexp) (string, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return "", fmt.Errorf("expected side keyword (:left, :right): %w", err)
	}
	switch name {
	case "left", "right", "":
		return name, nil
	}
	return "", fmt.Errorf("invalid side %q, expected left or right", name)
}

// toPieceName extracts a piece name from a piece reference or plain string.
func toPieceName(s zygo.Sexp) (string, error) {
	switch v := s.(type) {
	case *sexpPieceRef:
		return v.name, nil
	case *zygo.SexpStr:
		return v.S, nil
	}
	return "", fmt.Errorf("expected piece reference or name, got %T (%s)", s, s.SexpString(nil))
}

// toVec extracts a safe.Vector from a sexpVec.
func toVec(s zygo.Sexp) (safe.Vector, error) {
	if v, ok := s.(*sexpVec); ok {
		return v.vec, nil
	}
	return safe.Vector{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all design DSL builtins into a zygomys
// environment. The builtins operate on the provided Manifest, populating it
// during evaluation. Structural checks (unknown pieces, duplicate names,
// missing points) fail here with script context; tier gating, occupancy and
// compatibility checks happen later when the engine replays the manifest.
//
// Source code must be preprocessed with preprocessSource() before evaluation
// so that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, m *Manifest) {

	// -----------------------------------------------------------------------
	// (piece "head" :type "head" :color "#E67E22"
	//        :pattern "MR sc sc inc sc sc inc"
	//        :at (vec3 0 4 0) :side :left :custom true)
	// -----------------------------------------------------------------------
	env.AddFunction("piece", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("piece requires a name argument")
		}
		pieceName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("piece: name: %w", err)
		}
		if pieceName == "" {
			return zygo.SexpNull, fmt.Errorf("piece: name must not be empty")
		}
		if m.findPiece(pieceName) >= 0 {
			return zygo.SexpNull, fmt.Errorf("piece: %q already defined", pieceName)
		}

		ps := PieceSpec{Name: pieceName}

		if v, ok := pa.kw["type"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: type: %w", err)
			}
			ps.Type = s
		}
		if v, ok := pa.kw["color"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: color: %w", err)
			}
			if _, err := safe.ParseColor(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: color: %w", err)
			}
			ps.Color = s
		}
		if v, ok := pa.kw["pattern"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: pattern: %w", err)
			}
			ps.Pattern = s
		}
		if v, ok := pa.kw["side"]; ok {
			s, err := toSide(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: side: %w", err)
			}
			ps.Side = s
		}
		if v, ok := pa.kw["custom"]; ok {
			b, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: custom: %w", err)
			}
			ps.Custom = b
		}
		if v, ok := pa.kw["at"]; ok {
			vec, err := toVec(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("piece: at: %w", err)
			}
			ps.At = vec
		}

		m.Pieces = append(m.Pieces, ps)
		return &sexpPieceRef{idx: len(m.Pieces) - 1, name: pieceName}, nil
	})

	// -----------------------------------------------------------------------
	// (point "neck" :on "head" :at (vec3 0 -1 0)
	//        :compatible (list "neck-joint") :size 3 :type "joint")
	//
	// Returns a reference to the piece the point was added to, so point
	// forms can stand anywhere a piece reference is expected.
	// -----------------------------------------------------------------------
	env.AddFunction("point", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("point requires a name argument")
		}
		ptName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: name: %w", err)
		}
		if ptName == "" {
			return zygo.SexpNull, fmt.Errorf("point: name must not be empty")
		}

		v, ok := pa.kw["on"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("point: missing :on piece reference")
		}
		owner, err := toPieceName(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: on: %w", err)
		}
		i := m.findPiece(owner)
		if i < 0 {
			return zygo.SexpNull, fmt.Errorf("point: no piece named %q", owner)
		}
		p := &m.Pieces[i]
		if p.hasPoint(ptName) {
			return zygo.SexpNull, fmt.Errorf("point: %q already defined on piece %q", ptName, owner)
		}

		pt := PointSpec{Name: ptName}

		if v, ok := pa.kw["at"]; ok {
			vec, err := toVec(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point: at: %w", err)
			}
			pt.At = vec
		}
		if v, ok := pa.kw["compatible"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point: compatible: %w", err)
			}
			for _, item := range items {
				tag, err := toKeywordString(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("point: compatible entry: %w", err)
				}
				pt.Compatible = append(pt.Compatible, tag)
			}
		}
		if v, ok := pa.kw["size"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point: size: %w", err)
			}
			pt.Size = f
		}
		if v, ok := pa.kw["type"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point: type: %w", err)
			}
			pt.Type = s
		}

		p.Points = append(p.Points, pt)
		return &sexpPieceRef{idx: i, name: p.Name}, nil
	})

	// -----------------------------------------------------------------------
	// (attach :from "body" :from-point "neck-joint" :to "head" :to-point "neck")
	//
	// Also accepts the short positional form:
	//   (attach "body" "neck-joint" "head" "neck")
	// -----------------------------------------------------------------------
	env.AddFunction("attach", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		js := JoinSpec{}

		if len(pa.positional) >= 4 {
			from, err := toPieceName(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("attach: from: %w", err)
			}
			fromPt, err := toKeywordString(pa.positional[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("attach: from point: %w", err)
			}
			to, err := toPieceName(pa.positional[2])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("attach: to: %w", err)
			}
			toPt, err := toKeywordString(pa.positional[3])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("attach: to point: %w", err)
			}
			js = JoinSpec{FromPiece: from, FromPoint: fromPt, ToPiece: to, ToPoint: toPt}
		} else {
			if v, ok := pa.kw["from"]; ok {
				s, err := toPieceName(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("attach: from: %w", err)
				}
				js.FromPiece = s
			}
			if v, ok := pa.kw["from-point"]; ok {
				s, err := toKeywordString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("attach: from-point: %w", err)
				}
				js.FromPoint = s
			}
			if v, ok := pa.kw["to"]; ok {
				s, err := toPieceName(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("attach: to: %w", err)
				}
				js.ToPiece = s
			}
			if v, ok := pa.kw["to-point"]; ok {
				s, err := toKeywordString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("attach: to-point: %w", err)
				}
				js.ToPoint = s
			}
		}

		if js.FromPiece == "" || js.FromPoint == "" || js.ToPiece == "" || js.ToPoint == "" {
			return zygo.SexpNull, fmt.Errorf("attach requires :from, :from-point, :to and :to-point")
		}
		if js.FromPiece == js.ToPiece {
			return zygo.SexpNull, fmt.Errorf("attach: cannot join piece %q to itself", js.FromPiece)
		}

		fi := m.findPiece(js.FromPiece)
		if fi < 0 {
			return zygo.SexpNull, fmt.Errorf("attach: no piece named %q", js.FromPiece)
		}
		ti := m.findPiece(js.ToPiece)
		if ti < 0 {
			return zygo.SexpNull, fmt.Errorf("attach: no piece named %q", js.ToPiece)
		}
		if !m.Pieces[fi].hasPoint(js.FromPoint) {
			return zygo.SexpNull, fmt.Errorf("attach: piece %q has no point %q", js.FromPiece, js.FromPoint)
		}
		if !m.Pieces[ti].hasPoint(js.ToPoint) {
			return zygo.SexpNull, fmt.Errorf("attach: piece %q has no point %q", js.ToPiece, js.ToPoint)
		}

		m.Joins = append(m.Joins, js)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (tier "pro")
	// -----------------------------------------------------------------------
	env.AddFunction("tier", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("tier requires a name argument")
		}
		s, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tier: name: %w", err)
		}
		t := tier.Tier(strings.ToLower(s))
		if !t.Valid() {
			return zygo.SexpNull, fmt.Errorf("tier: unknown tier %q, expected freemium, pro, or studio", s)
		}
		m.Tier = t
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (design "bear" (piece ...) (point ...) (attach ...) ...)
	//
	// Child forms mutate the manifest as they evaluate; design names the
	// result. Their values are not inspected.
	// -----------------------------------------------------------------------
	env.AddFunction("design", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("design requires a name argument")
		}
		designName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("design: name: %w", err)
		}
		m.Name = designName
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec{vec: safe.Vec(x, y, z)}, nil
	})
}
