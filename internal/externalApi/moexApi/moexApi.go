package moexApi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	"github.com/KotFed0t/dividend_helper_bot/internal/model/moexModel"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var errBadTable = errors.New("malformed iss table")

// MoexApi reads quotes, daily closes and dividends of Moscow Exchange shares
// from the ISS api.
type MoexApi struct {
	client *resty.Client
	board  string
}

func New(cfg *config.Config) *MoexApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.MoexApi.Url).
		SetHeader("Accept", "application/json").
		SetQueryParam("iss.meta", "off").
		SetRetryCount(cfg.API.RetryCount).
		SetRetryWaitTime(cfg.API.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.API.RetryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	return &MoexApi{client: client, board: cfg.API.MoexApi.Board}
}

func (a *MoexApi) GetLatestPrice(ctx context.Context, ticker string) (model.Quote, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start MoexApi.GetLatestPrice request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	path := fmt.Sprintf("/iss/engines/stock/markets/shares/boards/%s/securities/%s.json", a.board, ticker)
	params := map[string]string{
		"iss.only":           "securities,marketdata",
		"securities.columns": "SECID,PREVPRICE,CURRENCYID",
		"marketdata.columns": "SECID,LAST,MARKETPRICE,SYSTIME",
	}

	var raw moexModel.RawSecurity
	if err := a.get(ctx, path, params, &raw); err != nil {
		return model.Quote{}, err
	}

	securities, err := rows(raw.Securities)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: securities: %w", externalApi.ErrUnavailable, err)
	}
	marketdata, err := rows(raw.Marketdata)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: marketdata: %w", externalApi.ErrUnavailable, err)
	}
	if len(securities) == 0 {
		return model.Quote{}, fmt.Errorf("%w: %s on board %s", externalApi.ErrNotFound, ticker, a.board)
	}

	quote := model.Quote{Ticker: ticker, Currency: str(securities[0]["CURRENCYID"])}
	if quote.Currency == "SUR" {
		quote.Currency = "RUB"
	}

	// LAST is empty outside trading hours
	if len(marketdata) > 0 {
		for _, col := range []string{"LAST", "MARKETPRICE"} {
			if price, ok := num(marketdata[0][col]); ok && price.IsPositive() {
				quote.Price = price
				break
			}
		}
		if t, err := time.Parse(time.DateTime, str(marketdata[0]["SYSTIME"])); err == nil {
			quote.AsOf = t
		}
	}
	if !quote.Price.IsPositive() {
		if price, ok := num(securities[0]["PREVPRICE"]); ok {
			quote.Price = price
		}
	}

	if !quote.Price.IsPositive() {
		slog.Error("no price in MoexApi response", slog.String("rqID", rqId), slog.String("ticker", ticker))
		return model.Quote{}, fmt.Errorf("%w: no price for %s", externalApi.ErrNotFound, ticker)
	}

	slog.Debug("MoexApi.GetLatestPrice request complete", slog.String("rqID", rqId), slog.String("price", quote.Price.String()))

	return quote, nil
}

// GetHistory pages through daily closes between from and to and marks each
// dividend on the first trading day on or after its registry close date.
func (a *MoexApi) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start MoexApi.GetHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	path := fmt.Sprintf("/iss/history/engines/stock/markets/shares/boards/%s/securities/%s.json", a.board, ticker)
	series := make([]model.PricePoint, 0)

	for start := 0; ; {
		params := map[string]string{
			"from":            from.Format(time.DateOnly),
			"till":            to.Format(time.DateOnly),
			"start":           strconv.Itoa(start),
			"history.columns": "TRADEDATE,CLOSE",
		}

		var raw moexModel.RawHistory
		if err := a.get(ctx, path, params, &raw); err != nil {
			return nil, err
		}

		history, err := rows(raw.History)
		if err != nil {
			return nil, fmt.Errorf("%w: history: %w", externalApi.ErrUnavailable, err)
		}

		for _, row := range history {
			date, err := time.Parse(time.DateOnly, str(row["TRADEDATE"]))
			if err != nil {
				slog.Warn("skip history row with bad date", slog.String("rqID", rqId), slog.Any("date", row["TRADEDATE"]))
				continue
			}
			// no trades that day
			closePrice, ok := num(row["CLOSE"])
			if !ok || !closePrice.IsPositive() {
				continue
			}
			if len(series) > 0 && !date.After(series[len(series)-1].Date) {
				continue
			}
			series = append(series, model.PricePoint{Date: date, Close: closePrice, Dividend: decimal.Zero})
		}

		next, ok := nextPage(raw.HistoryCursor)
		if !ok || len(history) == 0 {
			break
		}
		start = next
	}

	// no trading days in range is not an error
	if len(series) == 0 {
		slog.Debug("MoexApi.GetHistory request complete, no trades in range", slog.String("rqID", rqId), slog.String("ticker", ticker))
		return series, nil
	}

	events, err := a.GetDividendHistory(ctx, ticker)
	if err != nil {
		return nil, err
	}
	externalApi.AlignDividends(series, events)

	slog.Debug("MoexApi.GetHistory request complete", slog.String("rqID", rqId), slog.Int("points", len(series)))

	return series, nil
}

func (a *MoexApi) GetDividendHistory(ctx context.Context, ticker string) ([]model.DividendEvent, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	ticker = normalizeTicker(ticker)

	slog.Debug("start MoexApi.GetDividendHistory request", slog.String("rqID", rqId), slog.String("ticker", ticker))

	var raw moexModel.RawDividends
	if err := a.get(ctx, fmt.Sprintf("/iss/securities/%s/dividends.json", ticker), nil, &raw); err != nil {
		return nil, err
	}

	dividends, err := rows(raw.Dividends)
	if err != nil {
		return nil, fmt.Errorf("%w: dividends: %w", externalApi.ErrUnavailable, err)
	}

	events := make([]model.DividendEvent, 0, len(dividends))
	for _, row := range dividends {
		date, err := time.Parse(time.DateOnly, str(row["registryclosedate"]))
		if err != nil {
			continue
		}
		amount, ok := num(row["value"])
		if !ok || !amount.IsPositive() {
			continue
		}
		events = append(events, model.DividendEvent{Date: date, Amount: amount})
	}

	slices.SortFunc(events, func(a, b model.DividendEvent) int {
		return a.Date.Compare(b.Date)
	})

	slog.Debug("MoexApi.GetDividendHistory request complete", slog.String("rqID", rqId), slog.Int("events", len(events)))

	return events, nil
}

func (a *MoexApi) get(ctx context.Context, path string, params map[string]string, result any) error {
	rqId := utils.GetRequestIDFromCtx(ctx)

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)

	if err != nil {
		slog.Error("error while dialing MoexApi", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", externalApi.ErrNotFound, path)
	}

	if resp.IsError() {
		slog.Error("MoexApi responded with error", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: status %d", externalApi.ErrUnavailable, resp.StatusCode())
	}

	// numbers stay json.Number so prices are not rounded through float64
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err = dec.Decode(result); err != nil {
		slog.Error("can't unmarshall MoexApi response", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return fmt.Errorf("%w: %w", externalApi.ErrUnavailable, err)
	}

	return nil
}

func rows(t moexModel.Table) ([]map[string]any, error) {
	res := make([]map[string]any, 0, len(t.Data))
	for i, data := range t.Data {
		if len(data) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", errBadTable, i, len(data), len(t.Columns))
		}
		row := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			row[col] = data[j]
		}
		res = append(res, row)
	}
	return res, nil
}

// nextPage reads history.cursor (INDEX, TOTAL, PAGESIZE).
func nextPage(cursor moexModel.Table) (int, bool) {
	cur, err := rows(cursor)
	if err != nil || len(cur) == 0 {
		return 0, false
	}

	index, ok1 := num(cur[0]["INDEX"])
	total, ok2 := num(cur[0]["TOTAL"])
	size, ok3 := num(cur[0]["PAGESIZE"])
	if !ok1 || !ok2 || !ok3 || !size.IsPositive() {
		return 0, false
	}

	next := index.Add(size)
	if !next.LessThan(total) {
		return 0, false
	}
	return int(next.IntPart()), true
}

func num(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Zero, false
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
