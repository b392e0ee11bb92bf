package dividendService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/data/repository"
	"github.com/KotFed0t/dividend_helper_bot/data/session"
	"github.com/KotFed0t/dividend_helper_bot/internal/ledger"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/reinvest"
	"github.com/KotFed0t/dividend_helper_bot/internal/service"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/shopspring/decimal"
)

type MarketDataApi interface {
	GetLatestPrice(ctx context.Context, ticker string) (model.Quote, error)
	GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error)
	GetDividendHistory(ctx context.Context, ticker string) ([]model.DividendEvent, error)
}

type Cache interface {
	GetQuote(ctx context.Context, ticker string) (model.Quote, error)
	SetQuote(ctx context.Context, quote model.Quote) error
	GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error)
	SetHistory(ctx context.Context, ticker string, from, to time.Time, series []model.PricePoint) error
	GetDividends(ctx context.Context, ticker string) ([]model.DividendEvent, error)
	SetDividends(ctx context.Context, byTicker map[string][]model.DividendEvent) error
}

type SessionStore interface {
	GetLedger(ctx context.Context, chatID int64) (model.LedgerSnapshot, error)
	SetLedger(ctx context.Context, chatID int64, snapshot model.LedgerSnapshot) error
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	InsertUser(ctx context.Context, chatID int64) (userID int64, err error)
	InsertOperation(ctx context.Context, operation model.LedgerOperation) error
	GetOperations(ctx context.Context, chatID int64) ([]model.LedgerOperation, error)
	DeleteOperations(ctx context.Context, chatID int64) error
}

type ReportGenerator interface {
	Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error)
}

type ChartRenderer interface {
	MonthlyDividends(ctx context.Context, monthly model.MonthlyDividends) ([]byte, error)
	Simulation(ctx context.Context, sim model.Simulation) ([]byte, error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) (deleted int, err error)
}

type DividendService struct {
	cfg      *config.Config
	market   MarketDataApi
	cache    Cache
	sessions SessionStore
	repo     Repository
	report   ReportGenerator
	charts   ChartRenderer
	storage  CloudStorage
	now      func() time.Time

	// chatID -> *sync.Mutex
	chatLocks sync.Map
	// async writes, waited for by Wait
	wg sync.WaitGroup
}

func New(
	cfg *config.Config,
	market MarketDataApi,
	cache Cache,
	sessions SessionStore,
	repo Repository,
	report ReportGenerator,
	charts ChartRenderer,
	storage CloudStorage,
) *DividendService {
	return &DividendService{
		cfg:      cfg,
		market:   market,
		cache:    cache,
		sessions: sessions,
		repo:     repo,
		report:   report,
		charts:   charts,
		storage:  storage,
		now:      time.Now,
	}
}

// Wait blocks until background cache and journal writes have finished.
func (s *DividendService) Wait() {
	s.wg.Wait()
}

func (s *DividendService) goAsync(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *DividendService) lockChat(chatID int64) (unlock func()) {
	mu, _ := s.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// StartSession replaces the ledger of chatID with an empty one holding
// initialCapital and clears its operations journal.
func (s *DividendService) StartSession(ctx context.Context, chatID int64, initialCapital decimal.Decimal) (model.LedgerSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.StartSession"

	slog.Debug("StartSession start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("StartSession finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	l, err := ledger.New(initialCapital)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	if err = s.resetJournal(ctx, chatID); err != nil {
		slog.Error("can't register user", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.LedgerSnapshot{}, err
	}

	if err = s.saveLedger(ctx, chatID, l); err != nil {
		return model.LedgerSnapshot{}, err
	}

	return l.Snapshot(), nil
}

func (s *DividendService) SetInitialCapital(ctx context.Context, chatID int64, capital decimal.Decimal) (model.LedgerSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.SetInitialCapital"

	slog.Debug("SetInitialCapital start", slog.String("rqID", rqID), slog.String("op", op), slog.String("capital", capital.String()))
	defer func() {
		slog.Debug("SetInitialCapital finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}

	if err = l.SetInitialCapital(capital); err != nil {
		return model.LedgerSnapshot{}, err
	}

	if err = s.saveLedger(ctx, chatID, l); err != nil {
		return model.LedgerSnapshot{}, err
	}

	return l.Snapshot(), nil
}

// Quote returns the latest price of ticker along with its most recent dividend.
func (s *DividendService) Quote(ctx context.Context, ticker string) (model.StockQuote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.Quote"
	ticker = normalizeTicker(ticker)

	slog.Debug("Quote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	defer func() {
		slog.Debug("Quote finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	}()

	if ticker == "" {
		return model.StockQuote{}, fmt.Errorf("%w: empty ticker", service.ErrInvalidInput)
	}

	quote, err := s.latestQuote(ctx, ticker)
	if err != nil {
		return model.StockQuote{}, err
	}

	dividends, err := s.dividendHistory(ctx, ticker)
	if err != nil {
		return model.StockQuote{}, err
	}

	res := model.StockQuote{Quote: quote, DividendCount: len(dividends)}
	if len(dividends) > 0 {
		last := dividends[len(dividends)-1]
		res.LatestDividend = &last
	}

	return res, nil
}

// Buy spends amount on as many whole shares of ticker as it buys at the
// latest price and adds them to the portfolio.
func (s *DividendService) Buy(ctx context.Context, chatID int64, ticker string, amount decimal.Decimal) (model.Position, model.LedgerSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.Buy"
	ticker = normalizeTicker(ticker)

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker), slog.String("amount", amount.String()))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	}()

	if ticker == "" {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: empty ticker", service.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: amount must be positive, got %s", service.ErrInvalidInput, amount)
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	if remaining := l.RemainingCapital(); amount.GreaterThan(remaining) {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: %w: %s requested, %s left",
			service.ErrInvalidInput, ledger.ErrInsufficientCapital, amount.StringFixed(2), remaining.StringFixed(2))
	}

	if _, held := l.Position(ticker); held {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateTicker, ticker)
	}

	quote, err := s.latestQuote(ctx, ticker)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	dividends, err := s.dividendHistory(ctx, ticker)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}
	if len(dividends) == 0 {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: %s pays no dividends", service.ErrDataUnavailable, ticker)
	}

	shares := amount.Div(quote.Price).Floor()
	if !shares.IsPositive() {
		return model.Position{}, model.LedgerSnapshot{}, fmt.Errorf("%w: %s does not buy a single share of %s at %s",
			service.ErrInvalidInput, amount.StringFixed(2), ticker, quote.Price.StringFixed(2))
	}

	position, err := l.Open(ticker, shares, quote.Price, dividends)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	if err = l.Add(position); err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	if err = s.saveLedger(ctx, chatID, l); err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	s.recordOperation(ctx, chatID, model.OperationBuy, position)

	return position, l.Snapshot(), nil
}

func (s *DividendService) Remove(ctx context.Context, chatID int64, ticker string) (model.Position, model.LedgerSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.Remove"
	ticker = normalizeTicker(ticker)

	slog.Debug("Remove start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	defer func() {
		slog.Debug("Remove finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	}()

	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	removed, err := l.Remove(ticker)
	if err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	if err = s.saveLedger(ctx, chatID, l); err != nil {
		return model.Position{}, model.LedgerSnapshot{}, err
	}

	s.recordOperation(ctx, chatID, model.OperationRemove, removed)

	return removed, l.Snapshot(), nil
}

func (s *DividendService) Portfolio(ctx context.Context, chatID int64) (model.LedgerSnapshot, error) {
	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	return l.Snapshot(), nil
}

func (s *DividendService) MonthlyDividends(ctx context.Context, chatID int64) (model.MonthlyDividends, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.MonthlyDividends"

	slog.Debug("MonthlyDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))

	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if l.Len() == 0 {
		return nil, service.ErrEmptyPortfolio
	}

	return l.MonthlyDividendTotals(), nil
}

// ReinvestmentGap prices every position at the latest quote. Positions that
// can't be priced are listed in the result instead of failing the call.
func (s *DividendService) ReinvestmentGap(ctx context.Context, chatID int64) (model.ReinvestmentGap, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.ReinvestmentGap"

	slog.Debug("ReinvestmentGap start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))

	unlock := s.lockChat(chatID)
	defer unlock()

	l, err := s.loadLedger(ctx, chatID)
	if err != nil {
		return model.ReinvestmentGap{}, err
	}
	if l.Len() == 0 {
		return model.ReinvestmentGap{}, service.ErrEmptyPortfolio
	}

	gap := l.ReinvestmentGap(func(ticker string) (decimal.Decimal, error) {
		quote, err := s.latestQuote(ctx, ticker)
		if err != nil {
			return decimal.Zero, err
		}
		return quote.Price, nil
	})

	if len(gap.Skipped) > 0 {
		slog.Warn("positions left out of current value", slog.String("rqID", rqID), slog.String("op", op), slog.Any("tickers", gap.Skipped))
	}

	return gap, nil
}

// Simulate replays ticker between from and to with every dividend reinvested.
// A zero from means the whole available history, a zero to means yesterday,
// and a zero initialShares takes the configured default.
func (s *DividendService) Simulate(ctx context.Context, ticker string, from, to time.Time, initialShares decimal.Decimal) (model.Simulation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.Simulate"
	ticker = normalizeTicker(ticker)

	if to.IsZero() {
		to = dateOnly(s.now()).AddDate(0, 0, -1)
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if initialShares.IsZero() {
		initialShares = s.cfg.Portfolio.SimulationInitialShares
	}

	slog.Debug(
		"Simulate start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("ticker", ticker),
		slog.String("from", from.Format(time.DateOnly)),
		slog.String("to", to.Format(time.DateOnly)),
	)
	defer func() {
		slog.Debug("Simulate finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	}()

	if ticker == "" {
		return model.Simulation{}, fmt.Errorf("%w: empty ticker", service.ErrInvalidInput)
	}
	if from.After(to) {
		return model.Simulation{}, fmt.Errorf("%w: start date %s is after end date %s",
			service.ErrInvalidInput, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	series, err := s.history(ctx, ticker, from, to)
	if err != nil {
		return model.Simulation{}, err
	}

	series = reinvest.FilterRange(series, from, to)
	if len(series) == 0 {
		return model.Simulation{}, fmt.Errorf("%w: no prices for %s in range", service.ErrDataUnavailable, ticker)
	}
	if !model.HasDividends(series) {
		return model.Simulation{}, fmt.Errorf("%w: no dividend data for %s in range", service.ErrDataUnavailable, ticker)
	}

	res, err := reinvest.Simulate(series, initialShares)
	if err != nil {
		slog.Error("simulation failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Simulation{}, err
	}

	return model.Simulation{
		Ticker:  ticker,
		Series:  series,
		Result:  res,
		Summary: reinvest.Summarize(series, res),
	}, nil
}

func (s *DividendService) MonthlyChart(ctx context.Context, chatID int64) ([]byte, error) {
	monthly, err := s.MonthlyDividends(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(monthly) == 0 {
		return nil, fmt.Errorf("%w: portfolio has no dividend history", service.ErrDataUnavailable)
	}
	return s.charts.MonthlyDividends(ctx, monthly)
}

func (s *DividendService) SimulationChart(ctx context.Context, sim model.Simulation) ([]byte, error) {
	return s.charts.Simulation(ctx, sim)
}

// ExportReport builds the xlsx report of chatID. Files within the Telegram
// upload limit are returned as bytes, bigger ones are uploaded to cloud
// storage and returned as a link.
func (s *DividendService) ExportReport(ctx context.Context, chatID int64) (model.ReportFile, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.ExportReport"

	slog.Debug("ExportReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("ExportReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	unlock := s.lockChat(chatID)
	l, err := s.loadLedger(ctx, chatID)
	unlock()
	if err != nil {
		return model.ReportFile{}, err
	}
	if l.Len() == 0 {
		return model.ReportFile{}, service.ErrEmptyPortfolio
	}

	operations, err := s.repo.GetOperations(ctx, chatID)
	if err != nil {
		slog.Warn("report without operations history", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		operations = nil
	}

	now := s.now()
	fileBytes, ext, err := s.report.Generate(ctx, model.PortfolioReport{
		GeneratedAt: now,
		Ledger:      l.Snapshot(),
		Monthly:     l.MonthlyDividendTotals(),
		Operations:  operations,
	})
	if err != nil {
		slog.Error("can't generate report", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.ReportFile{}, err
	}

	name := fmt.Sprintf("%s%d_%s%s", model.ReportFilePrefix, chatID, now.Format("20060102_150405"), ext)

	if len(fileBytes) <= s.cfg.Telegram.FileLimitInBytes {
		return model.ReportFile{Name: name, Bytes: fileBytes}, nil
	}

	link, err := s.storage.UploadFile(ctx, bytes.NewReader(fileBytes), name)
	if err != nil {
		return model.ReportFile{}, err
	}

	return model.ReportFile{Name: name, Link: link}, nil
}

// WarmCache refreshes the cached dividend histories of the watchlist.
func (s *DividendService) WarmCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DividendService.WarmCache"

	slog.Debug("WarmCache start", slog.String("rqID", rqID), slog.String("op", op))

	byTicker := make(map[string][]model.DividendEvent, len(s.cfg.Portfolio.Watchlist))
	var errs []error
	for _, ticker := range s.cfg.Portfolio.Watchlist {
		ticker = normalizeTicker(ticker)
		if ticker == "" {
			continue
		}
		events, err := s.market.GetDividendHistory(ctx, ticker)
		if err != nil {
			slog.Warn("can't warm dividends", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker), slog.String("err", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			continue
		}
		byTicker[ticker] = events
	}

	if len(byTicker) > 0 {
		if err := s.cache.SetDividends(ctx, byTicker); err != nil {
			return err
		}
	}

	slog.Info("dividend cache warmed", slog.String("rqID", rqID), slog.Int("tickers", len(byTicker)), slog.Int("failed", len(errs)))

	if len(byTicker) == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *DividendService) CleanupReports(ctx context.Context) error {
	_, err := s.storage.DeleteOldFiles(ctx)
	return err
}

// loadLedger restores the ledger of chatID, starting a default one for chats
// that have none yet.
func (s *DividendService) loadLedger(ctx context.Context, chatID int64) (*ledger.Ledger, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	snapshot, err := s.sessions.GetLedger(ctx, chatID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("can't load ledger", slog.String("rqID", rqID), slog.Int64("chatID", chatID), slog.String("err", err.Error()))
			return nil, err
		}

		// the journal of an expired ledger must not leak into the new one
		slog.Info("no ledger in session, starting default", slog.String("rqID", rqID), slog.Int64("chatID", chatID))
		if err := s.resetJournal(ctx, chatID); err != nil {
			slog.Error("can't reset operations journal", slog.String("rqID", rqID), slog.Int64("chatID", chatID), slog.String("err", err.Error()))
			return nil, err
		}
		return ledger.New(s.cfg.Portfolio.DefaultInitialCapital)
	}

	return ledger.Restore(snapshot)
}

// resetJournal registers chatID if needed and drops its recorded operations.
func (s *DividendService) resetJournal(ctx context.Context, chatID int64) error {
	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.InsertUser(ctx, chatID); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			return err
		}
		return s.repo.DeleteOperations(ctx, chatID)
	})
}

func (s *DividendService) saveLedger(ctx context.Context, chatID int64, l *ledger.Ledger) error {
	if err := s.sessions.SetLedger(ctx, chatID, l.Snapshot()); err != nil {
		slog.Error("can't save ledger", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.Int64("chatID", chatID), slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (s *DividendService) recordOperation(ctx context.Context, chatID int64, kind model.OperationKind, p model.Position) {
	operation := model.LedgerOperation{
		ChatID:   chatID,
		Kind:     kind,
		Ticker:   p.Ticker,
		Shares:   p.Shares,
		Price:    p.PurchasePrice,
		Total:    p.TotalInvestment,
		DtCreate: s.now(),
	}

	ctx = context.WithoutCancel(ctx)
	s.goAsync(func() {
		if err := s.repo.InsertOperation(ctx, operation); err != nil {
			slog.Error("can't save operation to history", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
		}
	})
}

func (s *DividendService) latestQuote(ctx context.Context, ticker string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	quote, err := s.cache.GetQuote(ctx, ticker)
	if err == nil {
		return quote, nil
	}
	slog.Warn("can't get quote from cache", slog.String("rqID", rqID), slog.String("ticker", ticker), slog.String("err", err.Error()))

	quote, err = s.market.GetLatestPrice(ctx, ticker)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", service.ErrDataUnavailable, err)
	}

	cacheCtx := context.WithoutCancel(ctx)
	s.goAsync(func() { _ = s.cache.SetQuote(cacheCtx, quote) })

	return quote, nil
}

func (s *DividendService) dividendHistory(ctx context.Context, ticker string) ([]model.DividendEvent, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	events, err := s.cache.GetDividends(ctx, ticker)
	if err == nil {
		return events, nil
	}
	slog.Warn("can't get dividends from cache", slog.String("rqID", rqID), slog.String("ticker", ticker), slog.String("err", err.Error()))

	events, err = s.market.GetDividendHistory(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrDataUnavailable, err)
	}

	cacheCtx := context.WithoutCancel(ctx)
	s.goAsync(func() {
		_ = s.cache.SetDividends(cacheCtx, map[string][]model.DividendEvent{ticker: events})
	})

	return events, nil
}

func (s *DividendService) history(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	series, err := s.cache.GetHistory(ctx, ticker, from, to)
	if err == nil {
		return series, nil
	}
	slog.Warn("can't get history from cache", slog.String("rqID", rqID), slog.String("ticker", ticker), slog.String("err", err.Error()))

	series, err = s.market.GetHistory(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrDataUnavailable, err)
	}

	cacheCtx := context.WithoutCancel(ctx)
	s.goAsync(func() { _ = s.cache.SetHistory(cacheCtx, ticker, from, to, series) })

	return series, nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
