package main

import (
	"encoding/json"
	"fmt"

	"github.com/Grimnirrrr/keratin/pkg/chart"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/yarn"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runChart parses the pattern tokens and renders the requested chart.
func runChart(cmd *cobra.Command, args []string) error {
	p := pattern.Parse(joinArgs(args))
	logger.Debug("pattern parsed",
		zap.Int("tokens", len(p)),
		zap.Int("stitches", pattern.StitchCount(p)))

	if chartSVG {
		if chart.Kind(chartKind) != chart.KindSymbol {
			return fmt.Errorf("--svg is only available for --kind symbol")
		}
		fmt.Println(chart.ExportSVG(chart.Symbol(p)))
		return nil
	}

	c, err := chart.Generate(chart.Kind(chartKind), p)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runEstimate prints the material, cost and time estimates for a pattern.
func runEstimate(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	calc := yarn.NewCalculator(settings.Yarn)

	p := pattern.Parse(joinArgs(args))
	stitches := pattern.StitchCount(p)

	req := calc.Requirement(p, yarn.RequirementOptions{
		Weight:      estWeight,
		WasteFactor: estWaste,
	})
	cost := calc.Cost(req, yarn.CostOptions{PricePerSkein: estPrice})
	est := calc.Time(stitches, yarn.Skill(estSkill), yarn.TimeOptions{IncludeBreaks: true})

	fmt.Printf("pattern:  %d tokens, %d stitches\n", len(p), stitches)
	fmt.Printf("yarn:     %.2f m (%.2f yd), %.1f g, weight class %d, waste %.0f%%\n",
		req.Meters, req.Yards, req.Grams, req.Weight, req.WasteFactor*100)
	fmt.Printf("skeins:   %d needed, %d recommended\n", req.SkeinsNeeded, req.SkeinsRecommended)
	fmt.Printf("cost:     $%.2f yarn, $%.2f tax, $%.2f total\n", cost.Yarn, cost.Tax, cost.Total)
	fmt.Printf("time:     %.1f h at %s pace, %d sessions over %d days\n",
		est.Hours, est.Skill, est.Sessions, est.Days)
	return nil
}
