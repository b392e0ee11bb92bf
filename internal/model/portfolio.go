package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Position is one lot of a ticker. Dividends holds the dividend history
// already multiplied by Shares as held at purchase time.
type Position struct {
	Ticker          string          `json:"ticker"`
	Shares          decimal.Decimal `json:"shares"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	Dividends       []DividendEvent `json:"dividends"`
	OpenedAt        time.Time       `json:"opened_at"`
}

func (p Position) TotalDividends() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Dividends {
		total = total.Add(d.Amount)
	}
	return total
}

type LedgerSnapshot struct {
	InitialCapital   decimal.Decimal `json:"initial_capital"`
	RemainingCapital decimal.Decimal `json:"remaining_capital"`
	Positions        []Position      `json:"positions"`
}

func (s LedgerSnapshot) Tickers() []string {
	tickers := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		tickers = append(tickers, p.Ticker)
	}
	return tickers
}

// MonthlyDividends maps a calendar month to the dividend amount paid per ticker.
type MonthlyDividends map[time.Month]map[string]decimal.Decimal

func (m MonthlyDividends) Total(month time.Month) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range m[month] {
		total = total.Add(amount)
	}
	return total
}

// Tickers returns every ticker that pays in at least one month, sorted.
func (m MonthlyDividends) Tickers() []string {
	seen := make(map[string]struct{})
	for _, byTicker := range m {
		for ticker := range byTicker {
			seen[ticker] = struct{}{}
		}
	}

	tickers := make([]string, 0, len(seen))
	for ticker := range seen {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)
	return tickers
}

// ReinvestmentGap compares what the portfolio is worth today plus the
// dividends it collected against the capital that went into it.
type ReinvestmentGap struct {
	InitialInvestment decimal.Decimal
	CurrentValue      decimal.Decimal
	TotalDividends    decimal.Decimal
	Gap               decimal.Decimal
	Skipped           []string
}

// Direction is 1 when the portfolio gained, -1 when it lost and 0 when even.
func (g ReinvestmentGap) Direction() int {
	return g.Gap.Sign()
}

type OperationKind string

const (
	OperationBuy    OperationKind = "buy"
	OperationRemove OperationKind = "remove"
)

type LedgerOperation struct {
	ChatID   int64
	Kind     OperationKind
	Ticker   string
	Shares   decimal.Decimal
	Price    decimal.Decimal
	Total    decimal.Decimal
	DtCreate time.Time
}

type PortfolioReport struct {
	GeneratedAt time.Time
	Ledger      LedgerSnapshot
	Monthly     MonthlyDividends
	Operations  []LedgerOperation
}

// ReportFilePrefix starts the name of every generated report file.
const ReportFilePrefix = "dividend_report_"

// ReportFile carries either the file itself or a link to where it was uploaded.
type ReportFile struct {
	Name  string
	Bytes []byte
	Link  string
}
