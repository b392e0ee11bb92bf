package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func quarterly(year int, amount string, months ...time.Month) []model.DividendEvent {
	events := make([]model.DividendEvent, 0, len(months))
	for _, m := range months {
		events = append(events, model.DividendEvent{
			Date:   time.Date(year, m, 15, 0, 0, 0, 0, time.UTC),
			Amount: d(amount),
		})
	}
	return events
}

func openAndAdd(t *testing.T, l *Ledger, ticker, shares, price string, divs []model.DividendEvent) model.Position {
	t.Helper()
	p, err := l.Open(ticker, d(shares), d(price), divs)
	require.NoError(t, err)
	require.NoError(t, l.Add(p))
	return p
}

func TestNew_RejectsNegativeCapital(t *testing.T) {
	_, err := New(d("-1"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAdd_DeductsCapital(t *testing.T) {
	l, err := New(d("10000"))
	require.NoError(t, err)

	p := openAndAdd(t, l, "ko", "10", "50", nil)

	assert.Equal(t, "KO", p.Ticker)
	assertDecimal(t, "500", p.TotalInvestment)
	assertDecimal(t, "9500", l.RemainingCapital())
	assertDecimal(t, "500", l.TotalInvestment())
	assert.Equal(t, 1, l.Len())
}

func TestOpen_ScalesDividendsByShares(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)

	p, err := l.Open("T", d("4"), d("20"), quarterly(2023, "0.25", time.March, time.June))
	require.NoError(t, err)

	require.Len(t, p.Dividends, 2)
	assertDecimal(t, "1", p.Dividends[0].Amount)
	assertDecimal(t, "2", p.TotalDividends())
	assert.Equal(t, 0, l.Len(), "open must not change the ledger")
}

func TestOpen_InsufficientCapital(t *testing.T) {
	l, err := New(d("100"))
	require.NoError(t, err)

	_, err = l.Open("MSFT", d("1"), d("400"), nil)
	assert.ErrorIs(t, err, ErrInsufficientCapital)
	assertDecimal(t, "100", l.RemainingCapital())
}

func TestOpen_InvalidInput(t *testing.T) {
	l, err := New(d("100"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		ticker string
		shares string
		price  string
		divs   []model.DividendEvent
	}{
		{name: "empty ticker", ticker: "  ", shares: "1", price: "1"},
		{name: "negative shares", ticker: "A", shares: "-1", price: "1"},
		{name: "zero price", ticker: "A", shares: "1", price: "0"},
		{name: "negative dividend", ticker: "A", shares: "1", price: "1", divs: quarterly(2023, "-0.1", time.May)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Open(tt.ticker, d(tt.shares), d(tt.price), tt.divs)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAdd_DuplicateTicker(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)

	openAndAdd(t, l, "PEP", "1", "100", nil)

	p, err := l.Open("pep", d("1"), d("100"), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Add(p), ErrDuplicateTicker)
	assertDecimal(t, "900", l.RemainingCapital())
}

func TestAdd_RechecksCapital(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)

	first, err := l.Open("A", d("6"), d("100"), nil)
	require.NoError(t, err)
	second, err := l.Open("B", d("6"), d("100"), nil)
	require.NoError(t, err)

	require.NoError(t, l.Add(first))
	assert.ErrorIs(t, l.Add(second), ErrInsufficientCapital)
	assertDecimal(t, "400", l.RemainingCapital())
}

func TestRemove_RestoresCapital(t *testing.T) {
	l, err := New(d("10000"))
	require.NoError(t, err)

	openAndAdd(t, l, "KO", "10", "50", nil)
	openAndAdd(t, l, "PG", "3", "150.5", nil)
	assertDecimal(t, "9048.5", l.RemainingCapital())

	removed, err := l.Remove(" pg ")
	require.NoError(t, err)
	assert.Equal(t, "PG", removed.Ticker)
	assertDecimal(t, "9500", l.RemainingCapital())

	removed, err = l.Remove("KO")
	require.NoError(t, err)
	assertDecimal(t, "500", removed.TotalInvestment)
	assertDecimal(t, "10000", l.RemainingCapital())
	assert.Equal(t, 0, l.Len())
}

func TestRemoveAddRoundTrip(t *testing.T) {
	l, err := New(d("10000"))
	require.NoError(t, err)

	openAndAdd(t, l, "KO", "7", "61.37", quarterly(2023, "0.485", time.April, time.July))
	openAndAdd(t, l, "PG", "3", "150.5", nil)
	before := l.RemainingCapital()

	removed, err := l.Remove("KO")
	require.NoError(t, err)
	require.NoError(t, l.Add(removed))

	assert.Truef(t, before.Equal(l.RemainingCapital()), "want %s, got %s", before, l.RemainingCapital())
	assertDecimal(t, "9118.91", l.RemainingCapital())
	assert.Equal(t, 2, l.Len())
}

func TestRemove_NotFound(t *testing.T) {
	l, err := New(d("10"))
	require.NoError(t, err)

	_, err = l.Remove("XOM")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemainingCapitalInvariant(t *testing.T) {
	l, err := New(d("5000"))
	require.NoError(t, err)

	steps := []struct {
		add    string
		shares string
		price  string
		remove string
	}{
		{add: "A", shares: "3", price: "101.37"},
		{add: "B", shares: "7", price: "12.01"},
		{remove: "A"},
		{add: "C", shares: "0.5", price: "999.99"},
		{add: "A", shares: "1", price: "1"},
		{remove: "B"},
	}

	for i, s := range steps {
		if s.remove != "" {
			_, err := l.Remove(s.remove)
			require.NoError(t, err)
		} else {
			openAndAdd(t, l, s.add, s.shares, s.price, nil)
		}

		sum := decimal.Zero
		for _, p := range l.Positions() {
			sum = sum.Add(p.TotalInvestment)
		}
		assert.Truef(t, l.RemainingCapital().Equal(l.InitialCapital().Sub(sum)), "step %d", i)
	}
}

func TestMonthlyDividendTotals(t *testing.T) {
	l, err := New(d("10000"))
	require.NoError(t, err)

	openAndAdd(t, l, "KO", "10", "50", quarterly(2023, "0.5", time.March, time.June, time.September, time.December))
	openAndAdd(t, l, "T", "20", "15", quarterly(2023, "0.25", time.January, time.April, time.July, time.October))

	monthly := l.MonthlyDividendTotals()

	assert.Len(t, monthly, 8)
	for _, m := range []time.Month{time.March, time.June, time.September, time.December} {
		assertDecimal(t, "5", monthly[m]["KO"])
		assert.NotContains(t, monthly[m], "T")
	}
	for _, m := range []time.Month{time.January, time.April, time.July, time.October} {
		assertDecimal(t, "5", monthly[m]["T"])
	}
	assert.NotContains(t, monthly, time.February)
	assert.Equal(t, []string{"KO", "T"}, monthly.Tickers())
	assertDecimal(t, "40", l.TotalDividends())
}

func TestMonthlyDividendTotals_FoldsYears(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)

	divs := append(quarterly(2021, "1", time.May), quarterly(2022, "1.5", time.May)...)
	openAndAdd(t, l, "ABC", "2", "10", divs)

	monthly := l.MonthlyDividendTotals()
	require.Len(t, monthly, 1)
	assertDecimal(t, "5", monthly.Total(time.May))
}

func TestMonthlyDividendTotals_Empty(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)

	assert.Empty(t, l.MonthlyDividendTotals())
}

func TestReinvestmentGap(t *testing.T) {
	l, err := New(d("10000"))
	require.NoError(t, err)

	openAndAdd(t, l, "KO", "10", "50", quarterly(2023, "0.5", time.March, time.June))
	openAndAdd(t, l, "GONE", "1", "100", nil)

	prices := map[string]decimal.Decimal{"KO": d("55")}
	lookup := func(ticker string) (decimal.Decimal, error) {
		p, ok := prices[ticker]
		if !ok {
			return decimal.Zero, errors.New("no quote")
		}
		return p, nil
	}

	gap := l.ReinvestmentGap(lookup)

	assertDecimal(t, "600", gap.InitialInvestment)
	assertDecimal(t, "550", gap.CurrentValue)
	assertDecimal(t, "10", gap.TotalDividends)
	assertDecimal(t, "-40", gap.Gap)
	assert.Equal(t, []string{"GONE"}, gap.Skipped)
}

func TestSnapshotRestore(t *testing.T) {
	l, err := New(d("2000"))
	require.NoError(t, err)
	openAndAdd(t, l, "KO", "10", "50", quarterly(2023, "0.5", time.March))

	snap := l.Snapshot()
	assertDecimal(t, "1500", snap.RemainingCapital)

	// stored remaining capital is not trusted
	snap.RemainingCapital = d("1")
	restored, err := Restore(snap)
	require.NoError(t, err)

	assertDecimal(t, "1500", restored.RemainingCapital())
	p, ok := restored.Position("ko")
	require.True(t, ok)
	assertDecimal(t, "5", p.TotalDividends())
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	snap := model.LedgerSnapshot{
		InitialCapital: d("100"),
		Positions: []model.Position{
			{Ticker: "A", Shares: d("1"), TotalInvestment: d("1")},
			{Ticker: "A", Shares: d("1"), TotalInvestment: d("1")},
		},
	}

	_, err := Restore(snap)
	assert.ErrorIs(t, err, ErrDuplicateTicker)
}

func TestSetInitialCapital(t *testing.T) {
	l, err := New(d("1000"))
	require.NoError(t, err)
	openAndAdd(t, l, "A", "1", "300", nil)

	require.NoError(t, l.SetInitialCapital(d("5000")))
	assertDecimal(t, "4700", l.RemainingCapital())

	assert.ErrorIs(t, l.SetInitialCapital(d("-5")), ErrInvalidInput)
	assertDecimal(t, "5000", l.InitialCapital())
}
