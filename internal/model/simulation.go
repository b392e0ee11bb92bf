package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulationResult is aligned index by index with the series it was computed from.
type SimulationResult struct {
	Shares []decimal.Decimal
	Value  []decimal.Decimal
}

type SimulationSummary struct {
	StartDate        time.Time
	EndDate          time.Time
	InitialShares    decimal.Decimal
	FinalShares      decimal.Decimal
	ReinvestedShares decimal.Decimal
	StartValue       decimal.Decimal
	EndValue         decimal.Decimal
	// EndValue had the dividends been kept as cash instead.
	ValueWithoutReinvestment decimal.Decimal
	DividendEvents           int
	DividendCash             decimal.Decimal
}

type Simulation struct {
	Ticker  string
	Series  []PricePoint
	Result  SimulationResult
	Summary SimulationSummary
}
