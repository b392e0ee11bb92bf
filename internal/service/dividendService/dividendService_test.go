package dividendService

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/data/cache"
	"github.com/KotFed0t/dividend_helper_bot/data/repository"
	"github.com/KotFed0t/dividend_helper_bot/data/session"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/ledger"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/reinvest"
	"github.com/KotFed0t/dividend_helper_bot/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeMarket struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	dividends map[string][]model.DividendEvent
	history   map[string][]model.PricePoint
	calls     int
}

func (f *fakeMarket) GetLatestPrice(_ context.Context, ticker string) (model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.prices[ticker]
	if !ok {
		return model.Quote{}, externalApi.ErrNotFound
	}
	return model.Quote{Ticker: ticker, Price: p, Currency: "USD"}, nil
}

func (f *fakeMarket) GetHistory(_ context.Context, ticker string, _, _ time.Time) ([]model.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	series, ok := f.history[ticker]
	if !ok {
		return nil, externalApi.ErrNotFound
	}
	return series, nil
}

func (f *fakeMarket) GetDividendHistory(_ context.Context, ticker string) ([]model.DividendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.prices[ticker]; !ok {
		return nil, externalApi.ErrUnavailable
	}
	return f.dividends[ticker], nil
}

type fakeCache struct {
	mu        sync.Mutex
	quotes    map[string]model.Quote
	dividends map[string][]model.DividendEvent
}

func newFakeCache() *fakeCache {
	return &fakeCache{quotes: map[string]model.Quote{}, dividends: map[string][]model.DividendEvent{}}
}

func (c *fakeCache) GetQuote(_ context.Context, ticker string) (model.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[ticker]
	if !ok {
		return model.Quote{}, cache.ErrCacheMiss
	}
	return q, nil
}

func (c *fakeCache) SetQuote(_ context.Context, quote model.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[quote.Ticker] = quote
	return nil
}

func (c *fakeCache) GetHistory(context.Context, string, time.Time, time.Time) ([]model.PricePoint, error) {
	return nil, cache.ErrCacheMiss
}

func (c *fakeCache) SetHistory(context.Context, string, time.Time, time.Time, []model.PricePoint) error {
	return nil
}

func (c *fakeCache) GetDividends(_ context.Context, ticker string) ([]model.DividendEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events, ok := c.dividends[ticker]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return events, nil
}

func (c *fakeCache) SetDividends(_ context.Context, byTicker map[string][]model.DividendEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ticker, events := range byTicker {
		c.dividends[ticker] = events
	}
	return nil
}

type fakeSessions struct {
	mu      sync.Mutex
	ledgers map[int64]model.LedgerSnapshot
}

func (s *fakeSessions) GetLedger(_ context.Context, chatID int64) (model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.ledgers[chatID]
	if !ok {
		return model.LedgerSnapshot{}, session.ErrNotFound
	}
	return snap, nil
}

func (s *fakeSessions) SetLedger(_ context.Context, chatID int64, snapshot model.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[chatID] = snapshot
	return nil
}

type fakeRepo struct {
	mu         sync.Mutex
	users      map[int64]bool
	operations []model.LedgerOperation
}

func (r *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (r *fakeRepo) InsertUser(_ context.Context, chatID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[chatID] {
		return 0, repository.ErrAlreadyExists
	}
	r.users[chatID] = true
	return int64(len(r.users)), nil
}

func (r *fakeRepo) InsertOperation(_ context.Context, operation model.LedgerOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation)
	return nil
}

func (r *fakeRepo) GetOperations(_ context.Context, chatID int64) ([]model.LedgerOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.LedgerOperation
	for _, op := range r.operations {
		if op.ChatID == chatID {
			res = append(res, op)
		}
	}
	return res, nil
}

func (r *fakeRepo) DeleteOperations(_ context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.operations[:0]
	for _, op := range r.operations {
		if op.ChatID != chatID {
			kept = append(kept, op)
		}
	}
	r.operations = kept
	return nil
}

type fakeReport struct {
	size int
	last model.PortfolioReport
}

func (g *fakeReport) Generate(_ context.Context, report model.PortfolioReport) ([]byte, string, error) {
	g.last = report
	return make([]byte, g.size), ".xlsx", nil
}

type fakeCharts struct{}

func (fakeCharts) MonthlyDividends(context.Context, model.MonthlyDividends) ([]byte, error) {
	return []byte("monthly"), nil
}

func (fakeCharts) Simulation(context.Context, model.Simulation) ([]byte, error) {
	return []byte("simulation"), nil
}

type fakeStorage struct {
	uploaded []string
}

func (s *fakeStorage) UploadFile(_ context.Context, reader io.Reader, filename string) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	s.uploaded = append(s.uploaded, filename)
	return "https://drive.example/" + filename, nil
}

func (s *fakeStorage) DeleteOldFiles(context.Context) (int, error) {
	return 0, nil
}

type fixture struct {
	svc      *DividendService
	market   *fakeMarket
	cache    *fakeCache
	sessions *fakeSessions
	repo     *fakeRepo
	report   *fakeReport
	storage  *fakeStorage
	cfg      *config.Config
}

func quarterly(amount string, months ...time.Month) []model.DividendEvent {
	events := make([]model.DividendEvent, 0, len(months))
	for _, m := range months {
		events = append(events, model.DividendEvent{Date: time.Date(2023, m, 15, 0, 0, 0, 0, time.UTC), Amount: d(amount)})
	}
	return events
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Portfolio.DefaultInitialCapital = d("10000")
	cfg.Portfolio.SimulationInitialShares = d("1")
	cfg.Portfolio.Watchlist = []string{"KO", "T", "NOPE"}
	cfg.Telegram.FileLimitInBytes = 1024

	f := &fixture{
		market: &fakeMarket{
			prices: map[string]decimal.Decimal{"KO": d("50"), "T": d("15"), "MSFT": d("400")},
			dividends: map[string][]model.DividendEvent{
				"KO": quarterly("0.5", time.March, time.June, time.September, time.December),
				"T":  quarterly("0.25", time.January, time.April, time.July, time.October),
			},
			history: map[string][]model.PricePoint{},
		},
		cache:    newFakeCache(),
		sessions: &fakeSessions{ledgers: map[int64]model.LedgerSnapshot{}},
		repo:     &fakeRepo{users: map[int64]bool{}},
		report:   &fakeReport{size: 100},
		storage:  &fakeStorage{},
		cfg:      cfg,
	}
	f.svc = New(cfg, f.market, f.cache, f.sessions, f.repo, f.report, fakeCharts{}, f.storage)
	f.svc.now = func() time.Time { return time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC) }
	return f
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.StartSession(ctx, 1, d("5000"))
	require.NoError(t, err)
	assert.True(t, snap.RemainingCapital.Equal(d("5000")))
	assert.True(t, f.repo.users[1])

	_, err = f.svc.StartSession(ctx, 1, d("-1"))
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, 7, d("10000"))
	require.NoError(t, err)

	pos, snap, err := f.svc.Buy(ctx, 7, "ko", d("520"))
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "KO", pos.Ticker)
	assert.True(t, pos.Shares.Equal(d("10")), "floor(520/50) shares")
	assert.True(t, pos.TotalInvestment.Equal(d("500")))
	assert.True(t, snap.RemainingCapital.Equal(d("9500")))
	assert.True(t, pos.TotalDividends().Equal(d("20")))

	require.Len(t, f.repo.operations, 1)
	assert.Equal(t, model.OperationBuy, f.repo.operations[0].Kind)

	stored, err := f.sessions.GetLedger(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"KO"}, stored.Tickers())
}

func TestBuy_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, 1, d("1000"))
	require.NoError(t, err)

	_, _, err = f.svc.Buy(ctx, 1, "KO", d("0"))
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, _, err = f.svc.Buy(ctx, 1, "KO", d("5000"))
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCapital)

	_, _, err = f.svc.Buy(ctx, 1, "KO", d("40"))
	assert.ErrorIs(t, err, service.ErrInvalidInput, "not enough for one share")

	_, _, err = f.svc.Buy(ctx, 1, "MSFT", d("900"))
	assert.ErrorIs(t, err, service.ErrDataUnavailable, "no dividend history")

	_, _, err = f.svc.Buy(ctx, 1, "ZZZZ", d("100"))
	assert.ErrorIs(t, err, service.ErrDataUnavailable)
	assert.ErrorIs(t, err, externalApi.ErrNotFound)

	_, _, err = f.svc.Buy(ctx, 1, "KO", d("100"))
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, 1, "KO", d("100"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateTicker)

	snap, err := f.svc.Portfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, snap.RemainingCapital.Equal(d("900")))
}

func TestBuy_UsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Quote(ctx, "KO")
	require.NoError(t, err)
	f.svc.Wait()
	calls := f.market.calls

	_, _, err = f.svc.Buy(ctx, 1, "KO", d("100"))
	require.NoError(t, err)
	assert.Equal(t, calls, f.market.calls)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Buy(ctx, 3, "KO", d("500"))
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, 3, "T", d("300"))
	require.NoError(t, err)

	removed, snap, err := f.svc.Remove(ctx, 3, "ko")
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "KO", removed.Ticker)
	assert.True(t, snap.RemainingCapital.Equal(d("9700")))
	assert.Len(t, f.repo.operations, 3)

	_, _, err = f.svc.Remove(ctx, 3, "KO")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDefaultLedgerRegistersUser(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.Portfolio(context.Background(), 99)
	require.NoError(t, err)

	assert.True(t, snap.InitialCapital.Equal(d("10000")))
	assert.True(t, f.repo.users[99])
}

func TestMonthlyDividends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MonthlyDividends(ctx, 5)
	assert.ErrorIs(t, err, service.ErrEmptyPortfolio)

	_, _, err = f.svc.Buy(ctx, 5, "KO", d("500"))
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, 5, "T", d("300"))
	require.NoError(t, err)

	monthly, err := f.svc.MonthlyDividends(ctx, 5)
	require.NoError(t, err)

	assert.Len(t, monthly, 8)
	assert.True(t, monthly[time.March]["KO"].Equal(d("5")))
	assert.True(t, monthly[time.April]["T"].Equal(d("5")))

	png, err := f.svc.MonthlyChart(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("monthly"), png)
}

func TestReinvestmentGap_SkipsUnpricedPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Buy(ctx, 2, "KO", d("500"))
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, 2, "T", d("150"))
	require.NoError(t, err)
	f.svc.Wait()

	f.cache.mu.Lock()
	delete(f.cache.quotes, "T")
	f.cache.quotes["KO"] = model.Quote{Ticker: "KO", Price: d("55")}
	f.cache.mu.Unlock()
	f.market.mu.Lock()
	delete(f.market.prices, "T")
	f.market.mu.Unlock()

	gap, err := f.svc.ReinvestmentGap(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"T"}, gap.Skipped)
	assert.True(t, gap.CurrentValue.Equal(d("550")))
	// invested 650, dividends 20 + 10
	assert.True(t, gap.Gap.Equal(d("-70")), gap.Gap.String())
	assert.Equal(t, -1, gap.Direction())
}

func series(points ...string) []model.PricePoint {
	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	res := make([]model.PricePoint, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		res = append(res, model.PricePoint{Date: start.AddDate(0, 0, i/2), Close: d(points[i]), Dividend: d(points[i+1])})
	}
	return res
}

func TestSimulate(t *testing.T) {
	f := newFixture(t)
	f.market.history["KO"] = series("100", "0", "100", "5", "120", "0")

	sim, err := f.svc.Simulate(context.Background(), "KO", time.Time{}, time.Time{}, decimal.Zero)
	require.NoError(t, err)

	require.Len(t, sim.Result.Shares, 3)
	assert.True(t, sim.Result.Shares[1].Equal(d("1.05")))
	assert.Equal(t, 1, sim.Summary.DividendEvents)
	assert.True(t, sim.Summary.EndValue.Equal(d("126")))
}

func TestSimulate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.market.history["FLAT"] = series("10", "0", "11", "0")
	f.market.history["BROKEN"] = series("10", "0", "0", "1")
	f.market.history["EMPTY"] = nil

	from := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Simulate(ctx, "KO", from, to, decimal.Zero)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = f.svc.Simulate(ctx, "EMPTY", time.Time{}, time.Time{}, decimal.Zero)
	assert.ErrorIs(t, err, service.ErrDataUnavailable)

	_, err = f.svc.Simulate(ctx, "FLAT", time.Time{}, time.Time{}, decimal.Zero)
	assert.ErrorIs(t, err, service.ErrDataUnavailable)

	_, err = f.svc.Simulate(ctx, "UNKNOWN", time.Time{}, time.Time{}, decimal.Zero)
	assert.ErrorIs(t, err, service.ErrDataUnavailable)

	_, err = f.svc.Simulate(ctx, "BROKEN", time.Time{}, time.Time{}, decimal.Zero)
	assert.ErrorIs(t, err, reinvest.ErrData)
}

func TestExportReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ExportReport(ctx, 4)
	assert.ErrorIs(t, err, service.ErrEmptyPortfolio)

	_, _, err = f.svc.Buy(ctx, 4, "KO", d("500"))
	require.NoError(t, err)
	f.svc.Wait()

	file, err := f.svc.ExportReport(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, file.Bytes, 100)
	assert.Empty(t, file.Link)
	assert.Equal(t, "dividend_report_4_20240610_090000.xlsx", file.Name)
	assert.Len(t, f.report.last.Operations, 1)

	f.report.size = 4096
	file, err = f.svc.ExportReport(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, file.Bytes)
	assert.Equal(t, "https://drive.example/"+file.Name, file.Link)
	assert.Len(t, f.storage.uploaded, 1)
}

func TestExportReport_ExpiredLedgerDropsJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, 9, d("10000"))
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, 9, "KO", d("500"))
	require.NoError(t, err)
	f.svc.Wait()

	// session ttl ran out
	f.sessions.mu.Lock()
	delete(f.sessions.ledgers, 9)
	f.sessions.mu.Unlock()

	_, _, err = f.svc.Buy(ctx, 9, "T", d("300"))
	require.NoError(t, err)
	f.svc.Wait()

	_, err = f.svc.ExportReport(ctx, 9)
	require.NoError(t, err)

	report := f.report.last
	require.Len(t, report.Ledger.Positions, 1)
	require.Len(t, report.Operations, 1)
	assert.Equal(t, "T", report.Operations[0].Ticker)
}

func TestWarmCache(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.WarmCache(context.Background()))

	assert.Len(t, f.cache.dividends["KO"], 4)
	assert.Len(t, f.cache.dividends["T"], 4)
	assert.NotContains(t, f.cache.dividends, "NOPE")
}

func TestWarmCache_AllFail(t *testing.T) {
	f := newFixture(t)
	f.cfg.Portfolio.Watchlist = []string{"NOPE"}

	err := f.svc.WarmCache(context.Background())
	assert.True(t, errors.Is(err, externalApi.ErrUnavailable))
}

func TestConcurrentBuysKeepInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, 8, d("1000"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, ticker := range []string{"KO", "T", "KO", "T"} {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			_, _, _ = f.svc.Buy(ctx, 8, ticker, d("300"))
		}(ticker)
	}
	wg.Wait()
	f.svc.Wait()

	snap, err := f.svc.Portfolio(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, snap.Positions, 2)

	invested := decimal.Zero
	for _, p := range snap.Positions {
		invested = invested.Add(p.TotalInvestment)
	}
	assert.True(t, snap.RemainingCapital.Equal(d("1000").Sub(invested)))
}
