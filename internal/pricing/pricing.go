package pricing

import "math"

// Config carries the financial parameters applied to a price
// calculation. It is always passed in explicitly; the package keeps no
// state.
type Config struct {
	TargetMarginPercent float64
	TaxPercent          float64
	CommissionPercent   float64
	CostPerHour         float64
}

// Inputs are the product-level figures for one calculation.
type Inputs struct {
	MaterialCost          float64
	ProductionTimeMinutes float64
	WastePercent          float64
}

// Breakdown holds the intermediate values alongside the final price so
// callers can show how a price was formed.
type Breakdown struct {
	CostWithWaste       float64
	OperationalCost     float64
	TotalProductionCost float64
	Divisor             float64
	SalePrice           float64
	// Fallback is set when margin+tax+commission left no usable
	// divisor and the price fell back to twice the production cost.
	// Callers should surface it as a configuration warning.
	Fallback bool
}

// minDivisor guards against margin+tax+commission sums at or near 100%.
const minDivisor = 0.01

// SalePrice derives a sale price from material cost, production time
// and waste, divided by the fraction of revenue retained after margin,
// tax and commission. Non-finite inputs are treated as zero.
func SalePrice(in Inputs, cfg Config) Breakdown {
	materialCost := sanitize(in.MaterialCost)
	minutes := sanitize(in.ProductionTimeMinutes)
	wastePercent := sanitize(in.WastePercent)

	costWithWaste := materialCost * (1 + wastePercent/100)
	operationalCost := (minutes / 60) * sanitize(cfg.CostPerHour)
	totalProductionCost := costWithWaste + operationalCost

	divisor := 1 - (sanitize(cfg.TargetMarginPercent)+sanitize(cfg.TaxPercent)+sanitize(cfg.CommissionPercent))/100

	b := Breakdown{
		CostWithWaste:       costWithWaste,
		OperationalCost:     operationalCost,
		TotalProductionCost: totalProductionCost,
		Divisor:             divisor,
	}

	if divisor <= minDivisor {
		b.Fallback = true
		b.SalePrice = totalProductionCost * 2
		return b
	}

	b.SalePrice = totalProductionCost / divisor
	return b
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
