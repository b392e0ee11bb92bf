package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one trading day of an instrument. Dividend is the per-share
// cash dividend going ex on that day, zero on ordinary days.
type PricePoint struct {
	Date     time.Time       `json:"date"`
	Close    decimal.Decimal `json:"close"`
	Dividend decimal.Decimal `json:"dividend"`
}

type DividendEvent struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type Quote struct {
	Ticker   string          `json:"ticker"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	AsOf     time.Time       `json:"as_of"`
}

type StockQuote struct {
	Quote
	LatestDividend *DividendEvent
	DividendCount  int
}

// HasDividends reports whether any point of the series carries a dividend.
func HasDividends(series []PricePoint) bool {
	for _, p := range series {
		if p.Dividend.IsPositive() {
			return true
		}
	}
	return false
}
