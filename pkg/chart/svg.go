package chart

import (
	"bytes"
	"fmt"
	"math"

	svg "github.com/ajstarks/svgo"
)

const svgMargin = 40

// ExportSVG renders a symbol chart as a literal <svg> document string.
// Each round draws a faint guide circle with its glyphs placed on top.
func ExportSVG(c *SymbolChart) string {
	maxRadius := 30.0
	if n := len(c.Rounds); n > 0 {
		maxRadius = c.Rounds[n-1].Radius
	}
	size := int(2*maxRadius) + 2*svgMargin
	center := size / 2

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(size, size)
	canvas.Circle(center, center, 3, "fill:#333333")
	for _, r := range c.Rounds {
		canvas.Circle(center, center, int(r.Radius), "fill:none;stroke:#dddddd;stroke-width:1")
		for _, s := range r.Stitches {
			x := center + int(math.Round(s.X))
			y := center + int(math.Round(s.Y))
			canvas.Text(x, y, s.Symbol, fmt.Sprintf(
				"fill:%s;font-size:14px;text-anchor:middle;dominant-baseline:middle", s.Color))
		}
	}
	canvas.End()
	return buf.String()
}
