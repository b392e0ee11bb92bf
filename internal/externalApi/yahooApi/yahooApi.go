package yahooApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/model/yahooModel"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const chartPath = "/v8/finance/chart/{ticker}"

type YahooApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *YahooApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.YahooApi.Url).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; dividend_helper_bot)").
		SetRetryCount(cfg.API.RetryCount).
		SetRetryWaitTime(cfg.API.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.API.RetryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	return &YahooApi{client: client}
}

func (a *YahooApi) GetLatestPrice(ctx context.Context, ticker string) (model.Quote, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	slog.Debug("start YahooApi.GetLatestPrice request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	res, err := a.fetchChart(ctx, ticker, map[string]string{
		"range":    "5d",
		"interval": "1d",
	})
	if err != nil {
		return model.Quote{}, err
	}

	price := decimal.NewFromFloat(res.Meta.RegularMarketPrice)
	asOf := time.Unix(res.Meta.RegularMarketTime, 0).UTC()

	if !price.IsPositive() {
		closes := closesOf(res)
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 && i < len(res.Timestamp) {
				price = decimal.NewFromFloat(*closes[i])
				asOf = time.Unix(res.Timestamp[i], 0).UTC()
				break
			}
		}
	}

	if !price.IsPositive() {
		slog.Error("no price in YahooApi response", slog.String("rqID", rqId), slog.String("ticker", ticker))
		return model.Quote{}, fmt.Errorf("%w: no price for %s", externalApi.ErrNotFound, ticker)
	}

	slog.Debug("YahooApi.GetLatestPrice request complete", slog.String("rqID", rqId))

	return model.Quote{
		Ticker:   ticker,
		Price:    price,
		Currency: res.Meta.Currency,
		AsOf:     asOf,
	}, nil
}

// GetHistory returns daily closes within [from, to] with each dividend moved
// onto the first trading day dated on or after its ex-date.
func (a *YahooApi) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	slog.Debug("start YahooApi.GetHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	res, err := a.fetchChart(ctx, ticker, map[string]string{
		"period1":  strconv.FormatInt(from.Unix(), 10),
		"period2":  strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10),
		"interval": "1d",
		"events":   "div",
	})
	if err != nil {
		return nil, err
	}

	series := parseSeries(res)

	slog.Debug("YahooApi.GetHistory request complete", slog.String("rqID", rqId), slog.Int("points", len(series)))

	return series, nil
}

func (a *YahooApi) GetDividendHistory(ctx context.Context, ticker string) ([]model.DividendEvent, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	slog.Debug("start YahooApi.GetDividendHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	res, err := a.fetchChart(ctx, ticker, map[string]string{
		"range":    "max",
		"interval": "1mo",
		"events":   "div",
	})
	if err != nil {
		return nil, err
	}

	events := parseDividends(res)

	slog.Debug("YahooApi.GetDividendHistory request complete", slog.String("rqID", rqId), slog.Int("events", len(events)))

	return events, nil
}

func (a *YahooApi) fetchChart(ctx context.Context, ticker string, params map[string]string) (yahooModel.ChartResult, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)

	if ticker == "" {
		return yahooModel.ChartResult{}, fmt.Errorf("%w: empty ticker", externalApi.ErrNotFound)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetQueryParams(params).
		Get(chartPath)

	if err != nil {
		slog.Error("error while dialing YahooApi", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return yahooModel.ChartResult{}, fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return yahooModel.ChartResult{}, fmt.Errorf("%w: %s", externalApi.ErrNotFound, ticker)
	}

	if resp.IsError() {
		slog.Error("YahooApi responded with error", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqId))
		return yahooModel.ChartResult{}, fmt.Errorf("%w: status %d", externalApi.ErrUnavailable, resp.StatusCode())
	}

	raw := yahooModel.RawChart{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into yahooModel.RawChart", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return yahooModel.ChartResult{}, fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	if raw.Chart.Error != nil {
		if strings.EqualFold(raw.Chart.Error.Code, "Not Found") {
			return yahooModel.ChartResult{}, fmt.Errorf("%w: %s", externalApi.ErrNotFound, raw.Chart.Error.Description)
		}
		return yahooModel.ChartResult{}, fmt.Errorf("%w: %s", externalApi.ErrUnavailable, raw.Chart.Error.Description)
	}

	if len(raw.Chart.Result) == 0 {
		return yahooModel.ChartResult{}, fmt.Errorf("%w: %s", externalApi.ErrNotFound, ticker)
	}

	return raw.Chart.Result[0], nil
}

func closesOf(res yahooModel.ChartResult) []*float64 {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	return res.Indicators.Quote[0].Close
}

func day(ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseSeries(res yahooModel.ChartResult) []model.PricePoint {
	closes := closesOf(res)

	byDay := make(map[time.Time]model.PricePoint, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		date := day(ts)
		byDay[date] = model.PricePoint{
			Date:     date,
			Close:    decimal.NewFromFloat(*closes[i]),
			Dividend: decimal.Zero,
		}
	}

	series := make([]model.PricePoint, 0, len(byDay))
	for _, p := range byDay {
		series = append(series, p)
	}
	slices.SortFunc(series, func(a, b model.PricePoint) int {
		return a.Date.Compare(b.Date)
	})

	externalApi.AlignDividends(series, parseDividends(res))

	return series
}

func parseDividends(res yahooModel.ChartResult) []model.DividendEvent {
	events := make([]model.DividendEvent, 0, len(res.Events.Dividends))
	for _, div := range res.Events.Dividends {
		if div.Amount <= 0 {
			continue
		}
		events = append(events, model.DividendEvent{
			Date:   day(div.Date),
			Amount: decimal.NewFromFloat(div.Amount),
		})
	}
	slices.SortFunc(events, func(a, b model.DividendEvent) int {
		return a.Date.Compare(b.Date)
	})
	return events
}
