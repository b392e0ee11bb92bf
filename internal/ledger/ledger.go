// Package ledger keeps the positions of one hypothetical portfolio and the
// capital committed to them.
//
// Remaining capital is never stored: it is derived from the initial capital
// and the positions on every read, so changing the initial capital after
// positions were opened cannot leave it stale.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrDuplicateTicker     = errors.New("ticker already in portfolio")
	ErrNotFound            = errors.New("ticker not in portfolio")
)

// PriceLookup returns the latest price of a ticker.
type PriceLookup func(ticker string) (decimal.Decimal, error)

type Ledger struct {
	initialCapital decimal.Decimal
	positions      []model.Position
	now            func() time.Time
}

func New(initialCapital decimal.Decimal) (*Ledger, error) {
	if initialCapital.IsNegative() {
		return nil, fmt.Errorf("%w: initial capital must not be negative, got %s", ErrInvalidInput, initialCapital)
	}
	return &Ledger{initialCapital: initialCapital, now: time.Now}, nil
}

// Restore rebuilds a ledger from a snapshot taken by Snapshot.
// The stored remaining capital is ignored and recomputed.
func Restore(snapshot model.LedgerSnapshot) (*Ledger, error) {
	l, err := New(snapshot.InitialCapital)
	if err != nil {
		return nil, err
	}

	for _, p := range snapshot.Positions {
		if err := validatePosition(p); err != nil {
			return nil, err
		}
		if l.indexOf(p.Ticker) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTicker, p.Ticker)
		}
		l.positions = append(l.positions, p)
	}

	return l, nil
}

func (l *Ledger) InitialCapital() decimal.Decimal {
	return l.initialCapital
}

// SetInitialCapital replaces the starting balance. Positions already open
// are kept even if they now exceed it.
func (l *Ledger) SetInitialCapital(capital decimal.Decimal) error {
	if capital.IsNegative() {
		return fmt.Errorf("%w: initial capital must not be negative, got %s", ErrInvalidInput, capital)
	}
	l.initialCapital = capital
	return nil
}

func (l *Ledger) TotalInvestment() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.TotalInvestment)
	}
	return total
}

func (l *Ledger) RemainingCapital() decimal.Decimal {
	return l.initialCapital.Sub(l.TotalInvestment())
}

func (l *Ledger) Len() int {
	return len(l.positions)
}

func (l *Ledger) Positions() []model.Position {
	return slices.Clone(l.positions)
}

func (l *Ledger) Position(ticker string) (model.Position, bool) {
	i := l.indexOf(normalizeTicker(ticker))
	if i < 0 {
		return model.Position{}, false
	}
	return l.positions[i], true
}

// Open prices a new position without adding it to the ledger.
// dividendsPerShare is scaled by shares so the position carries the cash it
// would have received.
func (l *Ledger) Open(ticker string, shares, purchasePrice decimal.Decimal, dividendsPerShare []model.DividendEvent) (model.Position, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return model.Position{}, fmt.Errorf("%w: empty ticker", ErrInvalidInput)
	}
	if shares.IsNegative() {
		return model.Position{}, fmt.Errorf("%w: shares must not be negative, got %s", ErrInvalidInput, shares)
	}
	if !purchasePrice.IsPositive() {
		return model.Position{}, fmt.Errorf("%w: purchase price must be positive, got %s", ErrInvalidInput, purchasePrice)
	}

	total := shares.Mul(purchasePrice)
	if remaining := l.RemainingCapital(); total.GreaterThan(remaining) {
		return model.Position{}, fmt.Errorf("%w: %s needs %s, %s left", ErrInsufficientCapital, ticker, total.StringFixed(2), remaining.StringFixed(2))
	}

	dividends := make([]model.DividendEvent, 0, len(dividendsPerShare))
	for _, ev := range dividendsPerShare {
		if ev.Amount.IsNegative() {
			return model.Position{}, fmt.Errorf("%w: negative dividend on %s", ErrInvalidInput, ev.Date.Format(time.DateOnly))
		}
		dividends = append(dividends, model.DividendEvent{Date: ev.Date, Amount: ev.Amount.Mul(shares)})
	}

	return model.Position{
		Ticker:          ticker,
		Shares:          shares,
		PurchasePrice:   purchasePrice,
		TotalInvestment: total,
		Dividends:       dividends,
		OpenedAt:        l.now(),
	}, nil
}

// Add appends a position opened by Open. Only one lot per ticker is allowed.
func (l *Ledger) Add(p model.Position) error {
	if err := validatePosition(p); err != nil {
		return err
	}
	if l.indexOf(p.Ticker) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTicker, p.Ticker)
	}
	if remaining := l.RemainingCapital(); p.TotalInvestment.GreaterThan(remaining) {
		return fmt.Errorf("%w: %s needs %s, %s left", ErrInsufficientCapital, p.Ticker, p.TotalInvestment.StringFixed(2), remaining.StringFixed(2))
	}

	before := l.RemainingCapital()
	l.positions = append(l.positions, p)
	l.checkInvariant("add", before.Sub(p.TotalInvestment))

	return nil
}

// Remove drops the position in ticker and gives its capital back.
func (l *Ledger) Remove(ticker string) (model.Position, error) {
	ticker = normalizeTicker(ticker)
	i := l.indexOf(ticker)
	if i < 0 {
		return model.Position{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}

	before := l.RemainingCapital()
	removed := l.positions[i]
	l.positions = slices.Delete(l.positions, i, i+1)
	l.checkInvariant("remove", before.Add(removed.TotalInvestment))

	return removed, nil
}

// MonthlyDividendTotals buckets every dividend of every position by calendar
// month. The year is discarded, so several years of history fold onto one
// twelve-month cycle.
func (l *Ledger) MonthlyDividendTotals() model.MonthlyDividends {
	res := make(model.MonthlyDividends)
	for _, p := range l.positions {
		for _, ev := range p.Dividends {
			if !ev.Amount.IsPositive() {
				continue
			}
			month := ev.Date.Month()
			if res[month] == nil {
				res[month] = make(map[string]decimal.Decimal)
			}
			res[month][p.Ticker] = res[month][p.Ticker].Add(ev.Amount)
		}
	}
	return res
}

func (l *Ledger) TotalDividends() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.TotalDividends())
	}
	return total
}

// CurrentValue marks every position to market. Positions whose price cannot
// be looked up are left out and returned in skipped.
func (l *Ledger) CurrentValue(lookup PriceLookup) (value decimal.Decimal, skipped []string) {
	value = decimal.Zero
	for _, p := range l.positions {
		price, err := lookup(p.Ticker)
		if err != nil {
			slog.Warn("position skipped in current value", slog.String("ticker", p.Ticker), slog.String("err", err.Error()))
			skipped = append(skipped, p.Ticker)
			continue
		}
		value = value.Add(p.Shares.Mul(price))
	}
	return value, skipped
}

// ReinvestmentGap is current value plus collected dividends minus invested capital.
func (l *Ledger) ReinvestmentGap(lookup PriceLookup) model.ReinvestmentGap {
	current, skipped := l.CurrentValue(lookup)
	gap := model.ReinvestmentGap{
		InitialInvestment: l.TotalInvestment(),
		CurrentValue:      current,
		TotalDividends:    l.TotalDividends(),
		Skipped:           skipped,
	}
	gap.Gap = gap.CurrentValue.Add(gap.TotalDividends).Sub(gap.InitialInvestment)
	return gap
}

func (l *Ledger) Snapshot() model.LedgerSnapshot {
	return model.LedgerSnapshot{
		InitialCapital:   l.initialCapital,
		RemainingCapital: l.RemainingCapital(),
		Positions:        l.Positions(),
	}
}

func (l *Ledger) indexOf(ticker string) int {
	return slices.IndexFunc(l.positions, func(p model.Position) bool {
		return p.Ticker == ticker
	})
}

func (l *Ledger) checkInvariant(op string, expectedRemaining decimal.Decimal) {
	if got := l.RemainingCapital(); !got.Equal(expectedRemaining) {
		slog.Error("ledger invariant violated",
			slog.String("op", op),
			slog.String("expected", expectedRemaining.String()),
			slog.String("got", got.String()),
		)
	}
}

func validatePosition(p model.Position) error {
	if p.Ticker == "" || p.Ticker != normalizeTicker(p.Ticker) {
		return fmt.Errorf("%w: ticker %q must be a non-empty uppercase symbol", ErrInvalidInput, p.Ticker)
	}
	if p.Shares.IsNegative() {
		return fmt.Errorf("%w: %s has negative shares", ErrInvalidInput, p.Ticker)
	}
	if p.TotalInvestment.IsNegative() {
		return fmt.Errorf("%w: %s has negative investment", ErrInvalidInput, p.Ticker)
	}
	return nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
