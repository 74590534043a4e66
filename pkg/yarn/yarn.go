// Package yarn holds the closed-form material and effort math: yarn
// consumption, skein counts, cost breakdowns, catalog comparison,
// substitution ratios and time estimates. Everything is a pure
// function of the pattern and the configured tables.
package yarn

import (
	"math"
	"sort"

	"github.com/Grimnirrrr/keratin/pkg/pattern"
)

// Skill is the crocheter's experience level.
type Skill string

const (
	Beginner     Skill = "beginner"
	Intermediate Skill = "intermediate"
	Advanced     Skill = "advanced"
	Expert       Skill = "expert"
)

// CatalogYarn is one purchasable yarn in the comparison catalog.
type CatalogYarn struct {
	Name           string  `json:"name" yaml:"name"`
	Weight         int     `json:"weight" yaml:"weight"`
	MetersPerSkein float64 `json:"metersPerSkein" yaml:"metersPerSkein"`
	PricePerSkein  float64 `json:"pricePerSkein" yaml:"pricePerSkein"`
	Meters100g     float64 `json:"meters100g" yaml:"meters100g"`
}

// Tables carries every numeric knob the calculator uses.
type Tables struct {
	Consumption    map[pattern.Stitch]float64 `json:"consumption" yaml:"consumption"`
	WasteFactor    float64                    `json:"wasteFactor" yaml:"wasteFactor"`
	MetersPerSkein map[int]float64            `json:"metersPerSkein" yaml:"metersPerSkein"`
	HookCost       float64                    `json:"hookCost" yaml:"hookCost"`
	NotionsCost    float64                    `json:"notionsCost" yaml:"notionsCost"`
	TaxRate        float64                    `json:"taxRate" yaml:"taxRate"`
	Speeds         map[Skill]float64          `json:"speeds" yaml:"speeds"`
	SetupMinutes   float64                    `json:"setupMinutes" yaml:"setupMinutes"`
	BreakPerHour   float64                    `json:"breakPerHour" yaml:"breakPerHour"`
	SessionMinutes float64                    `json:"sessionMinutes" yaml:"sessionMinutes"`
	Catalog        []CatalogYarn              `json:"catalog" yaml:"catalog"`
}

// DefaultTables returns the stock numbers. Centimeter costs per stitch,
// meters per skein by weight class, $5.99 hook, $8.99 notions, 8% tax,
// stitches-per-minute speeds and a small fixed catalog.
func DefaultTables() Tables {
	return Tables{
		Consumption: map[pattern.Stitch]float64{
			pattern.Chain:      2.5,
			pattern.Single:     3.5,
			pattern.HalfDouble: 4.5,
			pattern.Double:     5.5,
			pattern.Treble:     6.5,
			pattern.Increase:   7,
			pattern.Decrease:   3,
			pattern.MagicRing:  5,
		},
		WasteFactor: 0.10,
		MetersPerSkein: map[int]float64{
			0: 800, 1: 360, 2: 320, 3: 250, 4: 190, 5: 130, 6: 90, 7: 55,
		},
		HookCost:    5.99,
		NotionsCost: 8.99,
		TaxRate:     0.08,
		Speeds: map[Skill]float64{
			Beginner:     15,
			Intermediate: 25,
			Advanced:     35,
			Expert:       45,
		},
		SetupMinutes:   45,
		BreakPerHour:   10,
		SessionMinutes: 120,
		Catalog: []CatalogYarn{
			{Name: "Budget Acrylic", Weight: 4, MetersPerSkein: 170, PricePerSkein: 3.49, Meters100g: 170},
			{Name: "Cotton Blend", Weight: 4, MetersPerSkein: 155, PricePerSkein: 5.99, Meters100g: 155},
			{Name: "Merino Wool", Weight: 4, MetersPerSkein: 180, PricePerSkein: 9.99, Meters100g: 180},
			{Name: "Luxury Alpaca", Weight: 3, MetersPerSkein: 200, PricePerSkein: 14.99, Meters100g: 200},
		},
	}
}

// Calculator evaluates the tables against patterns.
type Calculator struct {
	tables Tables
}

// NewCalculator builds a Calculator, filling empty table sections from
// the defaults.
func NewCalculator(t Tables) *Calculator {
	d := DefaultTables()
	if t.Consumption == nil {
		t.Consumption = d.Consumption
	}
	if t.WasteFactor <= 0 {
		t.WasteFactor = d.WasteFactor
	}
	if t.MetersPerSkein == nil {
		t.MetersPerSkein = d.MetersPerSkein
	}
	if t.HookCost == 0 {
		t.HookCost = d.HookCost
	}
	if t.NotionsCost == 0 {
		t.NotionsCost = d.NotionsCost
	}
	if t.TaxRate == 0 {
		t.TaxRate = d.TaxRate
	}
	if t.Speeds == nil {
		t.Speeds = d.Speeds
	}
	if t.SetupMinutes == 0 {
		t.SetupMinutes = d.SetupMinutes
	}
	if t.BreakPerHour == 0 {
		t.BreakPerHour = d.BreakPerHour
	}
	if t.SessionMinutes == 0 {
		t.SessionMinutes = d.SessionMinutes
	}
	if len(t.Catalog) == 0 {
		t.Catalog = d.Catalog
	}
	return &Calculator{tables: t}
}

// Tables returns the calculator's table set.
func (c *Calculator) Tables() Tables { return c.tables }

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round1(x float64) float64 { return math.Round(x*10) / 10 }

// RequirementOptions parameterize a yarn requirement calculation. A
// zero WasteFactor means the table default.
type RequirementOptions struct {
	Weight      int     `json:"weight"`
	WasteFactor float64 `json:"wasteFactor"`
}

// Requirement is the material needed for a pattern.
type Requirement struct {
	Centimeters       float64 `json:"centimeters"`
	Meters            float64 `json:"meters"`
	Yards             float64 `json:"yards"`
	Grams             float64 `json:"grams"`
	Ounces            float64 `json:"ounces"`
	Weight            int     `json:"weight"`
	WasteFactor       float64 `json:"wasteFactor"`
	SkeinsNeeded      int     `json:"skeinsNeeded"`
	SkeinsRecommended int     `json:"skeinsRecommended"`
}

// Requirement sums per-stitch consumption, applies the waste factor and
// converts into every unit the UI shows. Tokens without a consumption
// entry cost nothing.
func (c *Calculator) Requirement(p pattern.Pattern, opts RequirementOptions) Requirement {
	waste := opts.WasteFactor
	if waste <= 0 {
		waste = c.tables.WasteFactor
	}
	cm := 0.0
	for _, s := range p {
		cm += c.tables.Consumption[s]
	}
	cm *= 1 + waste

	meters := cm / 100
	grams := meters * 0.5

	perSkein, ok := c.tables.MetersPerSkein[opts.Weight]
	if !ok || perSkein <= 0 {
		perSkein = c.tables.MetersPerSkein[4]
	}
	needed := int(math.Ceil(meters / perSkein))
	if meters > 0 && needed == 0 {
		needed = 1
	}

	r := Requirement{
		Centimeters:  round2(cm),
		Meters:       round2(meters),
		Yards:        round2(meters * 1.09361),
		Grams:        round1(grams),
		Ounces:       round1(grams * 0.035274),
		Weight:       opts.Weight,
		WasteFactor:  waste,
		SkeinsNeeded: needed,
	}
	if needed > 0 {
		r.SkeinsRecommended = needed + 1
	}
	return r
}

// CostOptions parameterize a project cost calculation.
type CostOptions struct {
	PricePerSkein  float64 `json:"pricePerSkein"`
	IncludeHook    bool    `json:"includeHook"`
	IncludeNotions bool    `json:"includeNotions"`
}

// Cost is a project cost breakdown. Percentage shares are of the total
// and sum to roughly 100.
type Cost struct {
	Yarn       float64            `json:"yarn"`
	Tools      float64            `json:"tools"`
	Subtotal   float64            `json:"subtotal"`
	Tax        float64            `json:"tax"`
	Total      float64            `json:"total"`
	Percentage map[string]float64 `json:"percentage"`
}

// Cost prices the recommended skein count plus optional tools, then
// applies tax on the subtotal.
func (c *Calculator) Cost(req Requirement, opts CostOptions) Cost {
	yarn := float64(req.SkeinsRecommended) * opts.PricePerSkein
	tools := 0.0
	if opts.IncludeHook {
		tools += c.tables.HookCost
	}
	if opts.IncludeNotions {
		tools += c.tables.NotionsCost
	}
	subtotal := yarn + tools
	tax := subtotal * c.tables.TaxRate
	total := subtotal + tax

	out := Cost{
		Yarn:       round2(yarn),
		Tools:      round2(tools),
		Subtotal:   round2(subtotal),
		Tax:        round2(tax),
		Total:      round2(total),
		Percentage: map[string]float64{},
	}
	if total > 0 {
		out.Percentage["yarn"] = round1(yarn / total * 100)
		out.Percentage["tools"] = round1(tools / total * 100)
		out.Percentage["tax"] = round1(tax / total * 100)
	}
	return out
}

// ComparisonEntry is one catalog yarn priced for a target length.
type ComparisonEntry struct {
	Yarn         CatalogYarn `json:"yarn"`
	Skeins       int         `json:"skeins"`
	TotalCost    float64     `json:"totalCost"`
	CostPerMeter float64     `json:"costPerMeter"`
}

// Comparison prices a target length across the catalog, cheapest first.
type Comparison struct {
	TargetMeters   float64           `json:"targetMeters"`
	Options        []ComparisonEntry `json:"options"`
	Cheapest       *ComparisonEntry  `json:"cheapest"`
	Recommendation *ComparisonEntry  `json:"recommendation"`
}

// Compare prices targetMeters against every catalog yarn and sorts by
// total cost. The recommendation is the cheapest option.
func (c *Calculator) Compare(targetMeters float64) Comparison {
	cmp := Comparison{TargetMeters: round2(targetMeters)}
	for _, y := range c.tables.Catalog {
		if y.MetersPerSkein <= 0 {
			continue
		}
		skeins := int(math.Ceil(targetMeters / y.MetersPerSkein))
		if targetMeters > 0 && skeins == 0 {
			skeins = 1
		}
		total := float64(skeins) * y.PricePerSkein
		entry := ComparisonEntry{
			Yarn:      y,
			Skeins:    skeins,
			TotalCost: round2(total),
		}
		if targetMeters > 0 {
			entry.CostPerMeter = math.Round(total/targetMeters*1000) / 1000
		}
		cmp.Options = append(cmp.Options, entry)
	}
	sort.SliceStable(cmp.Options, func(i, j int) bool {
		return cmp.Options[i].TotalCost < cmp.Options[j].TotalCost
	})
	if len(cmp.Options) > 0 {
		cmp.Cheapest = &cmp.Options[0]
		cmp.Recommendation = &cmp.Options[0]
	}
	return cmp
}

// Substitute converts an amount in grams of the origin yarn into the
// equivalent grams of the target yarn. The worked length stays the
// same; the weight scales by the yarns' meters-per-100g ratio.
func Substitute(amountGrams float64, origin, target CatalogYarn) float64 {
	if target.Meters100g <= 0 {
		return 0
	}
	return round1(amountGrams * origin.Meters100g / target.Meters100g)
}

// TimeOptions parameterize a time estimate. SessionsPerDay zero means
// two sessions.
type TimeOptions struct {
	IncludeBreaks  bool `json:"includeBreaks"`
	SessionsPerDay int  `json:"sessionsPerDay"`
}

// TimeEstimate is the effort estimate for a stitch count.
type TimeEstimate struct {
	Stitches       int     `json:"stitches"`
	Skill          Skill   `json:"skill"`
	StitchMinutes  float64 `json:"stitchMinutes"`
	SetupMinutes   float64 `json:"setupMinutes"`
	BreakMinutes   float64 `json:"breakMinutes"`
	TotalMinutes   float64 `json:"totalMinutes"`
	Hours          float64 `json:"hours"`
	Sessions       int     `json:"sessions"`
	Days           int     `json:"days"`
	SessionsPerDay int     `json:"sessionsPerDay"`
}

// Time estimates working time from the stitch count and skill speed,
// with fixed setup plus proportional breaks when enabled.
func (c *Calculator) Time(stitches int, skill Skill, opts TimeOptions) TimeEstimate {
	speed, ok := c.tables.Speeds[skill]
	if !ok || speed <= 0 {
		speed = c.tables.Speeds[Intermediate]
	}
	perDay := opts.SessionsPerDay
	if perDay <= 0 {
		perDay = 2
	}

	stitchMin := float64(stitches) / speed
	work := stitchMin + c.tables.SetupMinutes
	breaks := 0.0
	if opts.IncludeBreaks {
		breaks = work / 60 * c.tables.BreakPerHour
	}
	total := work + breaks
	hours := round1(total / 60)

	return TimeEstimate{
		Stitches:       stitches,
		Skill:          skill,
		StitchMinutes:  round1(stitchMin),
		SetupMinutes:   c.tables.SetupMinutes,
		BreakMinutes:   round1(breaks),
		TotalMinutes:   round1(total),
		Hours:          hours,
		Sessions:       int(math.Ceil(total / c.tables.SessionMinutes)),
		Days:           int(math.Ceil(hours / (float64(perDay) * 2))),
		SessionsPerDay: perDay,
	}
}

// ShoppingItem is one purchasable line.
type ShoppingItem struct {
	Item      string  `json:"item"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Total     float64 `json:"total"`
}

// ShoppingList is a purchasable bill of materials.
type ShoppingList struct {
	Items    []ShoppingItem `json:"items"`
	Subtotal float64        `json:"subtotal"`
	Tax      float64        `json:"tax"`
	Total    float64        `json:"total"`
}

// ShoppingList turns a requirement into line items with the same
// pricing rules as Cost.
func (c *Calculator) ShoppingList(req Requirement, yarnName string, opts CostOptions) ShoppingList {
	if yarnName == "" {
		yarnName = "Yarn"
	}
	list := ShoppingList{}
	if req.SkeinsRecommended > 0 {
		list.Items = append(list.Items, ShoppingItem{
			Item:      yarnName,
			Quantity:  req.SkeinsRecommended,
			UnitPrice: round2(opts.PricePerSkein),
			Total:     round2(float64(req.SkeinsRecommended) * opts.PricePerSkein),
		})
	}
	if opts.IncludeHook {
		list.Items = append(list.Items, ShoppingItem{
			Item: "Crochet hook", Quantity: 1,
			UnitPrice: c.tables.HookCost, Total: c.tables.HookCost,
		})
	}
	if opts.IncludeNotions {
		list.Items = append(list.Items, ShoppingItem{
			Item: "Notions kit", Quantity: 1,
			UnitPrice: c.tables.NotionsCost, Total: c.tables.NotionsCost,
		})
	}
	subtotal := 0.0
	for _, it := range list.Items {
		subtotal += it.Total
	}
	list.Subtotal = round2(subtotal)
	list.Tax = round2(subtotal * c.tables.TaxRate)
	list.Total = round2(subtotal + subtotal*c.tables.TaxRate)
	return list
}
