package eodhdApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/model/eodhdModel"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type EodhdApi struct {
	client   *resty.Client
	limiter  *rate.Limiter
	exchange string
}

func New(cfg *config.Config) *EodhdApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.EodhdApi.Url).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"api_token": cfg.API.EodhdApi.Token,
			"fmt":       "json",
		}).
		SetRetryCount(cfg.API.RetryCount).
		SetRetryWaitTime(cfg.API.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.API.RetryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	limit := cfg.API.EodhdApi.RateLimit
	if limit <= 0 {
		limit = 1
	}

	return &EodhdApi{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(limit), limit),
		exchange: cfg.API.EodhdApi.Exchange,
	}
}

func (a *EodhdApi) GetLatestPrice(ctx context.Context, ticker string) (model.Quote, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start EodhdApi.GetLatestPrice request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	rt := eodhdModel.RealTime{}
	if err := a.get(ctx, "/real-time/"+a.symbol(ticker), nil, &rt); err != nil {
		return model.Quote{}, err
	}

	if !rt.Close.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: no price for %s", externalApi.ErrNotFound, ticker)
	}

	slog.Debug("EodhdApi.GetLatestPrice request complete", slog.String("rqID", rqId))

	return model.Quote{
		Ticker: ticker,
		Price:  rt.Close,
		AsOf:   time.Unix(rt.Timestamp, 0).UTC(),
	}, nil
}

// GetHistory joins end-of-day closes with the dividend calendar. A dividend
// dated on a non-trading day moves to the next bar.
func (a *EodhdApi) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start EodhdApi.GetHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	params := map[string]string{
		"from":   from.Format(time.DateOnly),
		"to":     to.Format(time.DateOnly),
		"period": "d",
	}

	var bars []eodhdModel.EODBar
	if err := a.get(ctx, "/eod/"+a.symbol(ticker), params, &bars); err != nil {
		return nil, err
	}

	var divs []eodhdModel.Dividend
	if err := a.get(ctx, "/div/"+a.symbol(ticker), params, &divs); err != nil {
		return nil, err
	}

	series := make([]model.PricePoint, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse(time.DateOnly, bar.Date)
		if err != nil {
			slog.Warn("skip eod bar with bad date", slog.String("rqID", rqId), slog.String("date", bar.Date))
			continue
		}
		if len(series) > 0 && !date.After(series[len(series)-1].Date) {
			continue
		}
		series = append(series, model.PricePoint{Date: date, Close: bar.Close, Dividend: decimal.Zero})
	}

	externalApi.AlignDividends(series, toEvents(divs))

	slog.Debug("EodhdApi.GetHistory request complete", slog.String("rqID", rqId), slog.Int("points", len(series)))

	return series, nil
}

func (a *EodhdApi) GetDividendHistory(ctx context.Context, ticker string) ([]model.DividendEvent, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start EodhdApi.GetDividendHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	var divs []eodhdModel.Dividend
	if err := a.get(ctx, "/div/"+a.symbol(ticker), nil, &divs); err != nil {
		return nil, err
	}

	events := toEvents(divs)

	slog.Debug("EodhdApi.GetDividendHistory request complete", slog.String("rqID", rqId), slog.Int("events", len(events)))

	return events, nil
}

func (a *EodhdApi) get(ctx context.Context, path string, params map[string]string, result any) error {
	rqId := utils.GetRequestIDFromCtx(ctx)

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", externalApi.ErrUnavailable, err)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)

	if err != nil {
		slog.Error("error while dialing EodhdApi", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", externalApi.ErrNotFound, path)
	}

	if resp.IsError() {
		slog.Error("EodhdApi responded with error", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: status %d", externalApi.ErrUnavailable, resp.StatusCode())
	}

	if err = json.Unmarshal(resp.Body(), result); err != nil {
		slog.Error("can't unmarshall EodhdApi response", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	return nil
}

func (a *EodhdApi) symbol(ticker string) string {
	if strings.Contains(ticker, ".") || a.exchange == "" {
		return ticker
	}
	return ticker + "." + a.exchange
}

func toEvents(divs []eodhdModel.Dividend) []model.DividendEvent {
	events := make([]model.DividendEvent, 0, len(divs))
	for _, div := range divs {
		date, err := time.Parse(time.DateOnly, div.Date)
		if err != nil || !div.Value.IsPositive() {
			continue
		}
		events = append(events, model.DividendEvent{Date: date, Amount: div.Value})
	}
	slices.SortFunc(events, func(a, b model.DividendEvent) int {
		return a.Date.Compare(b.Date)
	})
	return events
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
