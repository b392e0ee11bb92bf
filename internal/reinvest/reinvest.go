// Package reinvest replays a price series and converts every dividend into
// additional fractional shares bought at that day's close.
package reinvest

import (
	"errors"
	"fmt"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrData         = errors.New("invalid market data")
	ErrInvalidInput = errors.New("invalid simulation input")
)

// DataError points at the first observation that cannot be replayed.
type DataError struct {
	Index  int
	Date   time.Time
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("invalid market data at index %d (%s): %s", e.Index, e.Date.Format(time.DateOnly), e.Reason)
}

func (e *DataError) Is(target error) bool {
	return target == ErrData
}

// Simulate returns shares held and position value for every point of series,
// starting from initialShares and reinvesting each dividend in full.
// The series must be non-empty, strictly ascending by date, and every close
// must be positive.
func Simulate(series []model.PricePoint, initialShares decimal.Decimal) (model.SimulationResult, error) {
	if err := validate(series, initialShares); err != nil {
		return model.SimulationResult{}, err
	}

	res := model.SimulationResult{
		Shares: make([]decimal.Decimal, len(series)),
		Value:  make([]decimal.Decimal, len(series)),
	}

	res.Shares[0] = initialShares
	res.Value[0] = initialShares.Mul(series[0].Close)

	for i := 1; i < len(series); i++ {
		shares := res.Shares[i-1]
		if series[i].Dividend.IsPositive() {
			// income is paid on the shares held before this event
			income := shares.Mul(series[i].Dividend)
			shares = shares.Add(income.Div(series[i].Close))
		}
		res.Shares[i] = shares
		res.Value[i] = shares.Mul(series[i].Close)
	}

	return res, nil
}

func validate(series []model.PricePoint, initialShares decimal.Decimal) error {
	if len(series) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidInput)
	}

	if !initialShares.IsPositive() {
		return fmt.Errorf("%w: initial shares must be positive, got %s", ErrInvalidInput, initialShares)
	}

	for i, p := range series {
		if i > 0 && !p.Date.After(series[i-1].Date) {
			return fmt.Errorf("%w: series is not strictly ascending at index %d", ErrInvalidInput, i)
		}
		if !p.Close.IsPositive() {
			return &DataError{Index: i, Date: p.Date, Reason: fmt.Sprintf("non-positive close %s", p.Close)}
		}
		if p.Dividend.IsNegative() {
			return &DataError{Index: i, Date: p.Date, Reason: fmt.Sprintf("negative dividend %s", p.Dividend)}
		}
	}

	return nil
}

// FilterRange keeps the points dated within [from, to]. A zero bound is open.
func FilterRange(series []model.PricePoint, from, to time.Time) []model.PricePoint {
	res := make([]model.PricePoint, 0, len(series))
	for _, p := range series {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		res = append(res, p)
	}
	return res
}

// Summarize condenses a finished simulation for display.
func Summarize(series []model.PricePoint, res model.SimulationResult) model.SimulationSummary {
	if len(series) == 0 || len(res.Shares) != len(series) {
		return model.SimulationSummary{}
	}

	last := len(series) - 1
	summary := model.SimulationSummary{
		StartDate:     series[0].Date,
		EndDate:       series[last].Date,
		InitialShares: res.Shares[0],
		FinalShares:   res.Shares[last],
		StartValue:    res.Value[0],
		EndValue:      res.Value[last],
		DividendCash:  decimal.Zero,
	}
	summary.ReinvestedShares = summary.FinalShares.Sub(summary.InitialShares)
	summary.ValueWithoutReinvestment = summary.InitialShares.Mul(series[last].Close)

	for i := 1; i < len(series); i++ {
		if series[i].Dividend.IsPositive() {
			summary.DividendEvents++
			summary.DividendCash = summary.DividendCash.Add(res.Shares[i-1].Mul(series[i].Dividend))
		}
	}

	return summary
}
