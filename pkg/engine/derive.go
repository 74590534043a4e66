package engine

import (
	"encoding/json"

	"github.com/Grimnirrrr/keratin/pkg/chart"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/instructions"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/suggest"
	"github.com/Grimnirrrr/keratin/pkg/yarn"
)

// Derivations are pure reads over (assembly, pattern). Nothing in this
// file mutates the session.

// AssemblyPattern concatenates the patterns of every piece in insertion
// order, for whole-project estimates.
func (s *Session) AssemblyPattern() pattern.Pattern {
	var out pattern.Pattern
	for _, p := range s.asm.PieceList() {
		out = append(out, p.Pattern...)
	}
	return out
}

// YarnRequirement estimates yarn consumption for a pattern.
func (s *Session) YarnRequirement(p pattern.Pattern, opts yarn.RequirementOptions) yarn.Requirement {
	return s.calc.Requirement(p, opts)
}

// ProjectCost prices a requirement.
func (s *Session) ProjectCost(req yarn.Requirement, opts yarn.CostOptions) yarn.Cost {
	return s.calc.Cost(req, opts)
}

// ProjectTime estimates working time for a stitch count at a skill
// level.
func (s *Session) ProjectTime(stitches int, skill yarn.Skill, opts yarn.TimeOptions) yarn.TimeEstimate {
	return s.calc.Time(stitches, skill, opts)
}

// CompareYarn ranks the configured yarn options for a target length.
func (s *Session) CompareYarn(targetMeters float64) yarn.Comparison {
	return s.calc.Compare(targetMeters)
}

// ShoppingList builds a purchase list for a requirement.
func (s *Session) ShoppingList(req yarn.Requirement, yarnName string, opts yarn.CostOptions) yarn.ShoppingList {
	return s.calc.ShoppingList(req, yarnName, opts)
}

// VisualizePattern renders a pattern as the requested chart kind.
func (s *Session) VisualizePattern(kind chart.Kind, p pattern.Pattern) (any, error) {
	return chart.Generate(kind, p)
}

// ExportChart renders a chart and encodes it as indented JSON.
func (s *Session) ExportChart(kind chart.Kind, p pattern.Pattern) ([]byte, error) {
	c, err := chart.Generate(kind, p)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err)
	}
	return b, nil
}

// ExportChartSVG renders the symbol chart as an SVG document.
func (s *Session) ExportChartSVG(p pattern.Pattern) string {
	return chart.ExportSVG(chart.Symbol(p))
}

// Instructions generates a human-readable document for the current
// assembly.
func (s *Session) Instructions(opts instructions.Options) *instructions.Document {
	return s.docs.Generate(s.asm, opts)
}

// ExportHTML generates instructions and renders them as HTML.
func (s *Session) ExportHTML(opts instructions.Options) string {
	return instructions.ExportHTML(s.Instructions(opts))
}

// ExportMarkdown generates instructions and renders them as Markdown.
func (s *Session) ExportMarkdown(opts instructions.Options) string {
	return instructions.ExportMarkdown(s.Instructions(opts))
}

// Suggestions evaluates the rule catalog against the current graph.
func (s *Session) Suggestions(ctx suggest.Context) []suggest.Suggestion {
	return s.advice.Generate(s.asm, ctx)
}

// RecordPieceUsage feeds the suggestion engine's usage history.
func (s *Session) RecordPieceUsage(pieceType string) {
	s.advice.RecordPieceUsage(pieceType)
}

// RecordConnection feeds the suggestion engine's pairing history.
func (s *Session) RecordConnection(type1, type2 string) {
	s.advice.RecordConnection(type1, type2)
}

// ExportSuggestions serializes the suggestion engine's learned state.
func (s *Session) ExportSuggestions() ([]byte, error) {
	return s.advice.Export()
}
