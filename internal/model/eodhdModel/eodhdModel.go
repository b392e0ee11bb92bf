package eodhdModel

import "github.com/shopspring/decimal"

type EODBar struct {
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

type Dividend struct {
	Date     string          `json:"date"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type RealTime struct {
	Code      string          `json:"code"`
	Timestamp int64           `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
}
