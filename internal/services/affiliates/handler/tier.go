package handler

import "github.com/shopspring/decimal"

const (
	TierBronze   = "Bronze"
	TierSilver   = "Silver"
	TierGold     = "Gold"
	TierPlatinum = "Platinum"
)

type tierBand struct {
	name      string
	threshold decimal.Decimal
}

// Ascending by threshold.
var tierBands = []tierBand{
	{TierBronze, decimal.Zero},
	{TierSilver, decimal.NewFromInt(5000)},
	{TierGold, decimal.NewFromInt(15000)},
	{TierPlatinum, decimal.NewFromInt(50000)},
}

// TierFor returns the highest tier whose threshold is <= totalEarnings.
func TierFor(totalEarnings decimal.Decimal) string {
	tier := TierBronze
	for _, band := range tierBands {
		if totalEarnings.GreaterThanOrEqual(band.threshold) {
			tier = band.name
		}
	}
	return tier
}

type TierProgress struct {
	Current         string          `json:"current"`
	Next            string          `json:"next,omitempty"`
	NextThreshold   decimal.Decimal `json:"nextThreshold"`
	AmountToNext    decimal.Decimal `json:"amountToNext"`
	ProgressPercent float64         `json:"progressPercent"`
}

// TierProgressFor reports the current tier and how far totalEarnings is from
// the next one. At the top tier Next is empty and progress is 100.
func TierProgressFor(totalEarnings decimal.Decimal) TierProgress {
	current := TierFor(totalEarnings)
	for i, band := range tierBands {
		if band.name != current {
			continue
		}
		if i == len(tierBands)-1 {
			return TierProgress{Current: current, NextThreshold: band.threshold, AmountToNext: decimal.Zero, ProgressPercent: 100}
		}

		next := tierBands[i+1]
		span := next.threshold.Sub(band.threshold)
		progress, _ := totalEarnings.Sub(band.threshold).Div(span).Mul(decimal.NewFromInt(100)).Float64()
		return TierProgress{
			Current:         current,
			Next:            next.name,
			NextThreshold:   next.threshold,
			AmountToNext:    next.threshold.Sub(totalEarnings),
			ProgressPercent: progress,
		}
	}
	return TierProgress{Current: current}
}
