package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func quoteKey(ticker string) string {
	return "quote:" + ticker
}

func historyKey(ticker string, from, to time.Time) string {
	return fmt.Sprintf("history:%s:%s:%s", ticker, from.Format(time.DateOnly), to.Format(time.DateOnly))
}

func dividendsKey(ticker string) string {
	return "dividends:" + ticker
}

func (r *RedisCache) SetQuote(ctx context.Context, quote model.Quote) error {
	return r.set(ctx, "SetQuote", quoteKey(quote.Ticker), quote, r.cfg.Cache.QuoteExpiration)
}

func (r *RedisCache) GetQuote(ctx context.Context, ticker string) (model.Quote, error) {
	quote := model.Quote{}
	err := r.get(ctx, "GetQuote", quoteKey(ticker), &quote)
	return quote, err
}

func (r *RedisCache) SetHistory(ctx context.Context, ticker string, from, to time.Time, series []model.PricePoint) error {
	return r.set(ctx, "SetHistory", historyKey(ticker, from, to), series, r.cfg.Cache.HistoryExpiration)
}

func (r *RedisCache) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	var series []model.PricePoint
	err := r.get(ctx, "GetHistory", historyKey(ticker, from, to), &series)
	return series, err
}

func (r *RedisCache) GetDividends(ctx context.Context, ticker string) ([]model.DividendEvent, error) {
	var events []model.DividendEvent
	err := r.get(ctx, "GetDividends", dividendsKey(ticker), &events)
	return events, err
}

// SetDividends writes the dividend histories of several tickers in one pipeline.
func (r *RedisCache) SetDividends(ctx context.Context, byTicker map[string][]model.DividendEvent) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetDividends", slog.String("rqID", rqID), slog.Int("tickers", len(byTicker)))

	pipe := r.redis.Pipeline()
	for ticker, events := range byTicker {
		eventsJson, err := json.Marshal(events)
		if err != nil {
			slog.Error(
				"can't marshall dividends in SetDividends",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.String("ticker", ticker),
			)
			return fmt.Errorf("can't marshall dividends of %s: %w", ticker, err)
		}

		pipe.Set(ctx, dividendsKey(ticker), eventsJson, r.cfg.Cache.DividendsExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetDividends completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) set(ctx context.Context, op, key string, value any, expiration time.Duration) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("key", key))

	valueJson, err := json.Marshal(value)
	if err != nil {
		slog.Error("can't marshall value", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return fmt.Errorf("can't marshall %s: %w", key, err)
	}

	err = r.redis.Set(ctx, key, valueJson, expiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	slog.Debug(op+" finished", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) get(ctx context.Context, op, key string, dest any) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("key", key))

	res, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	err = json.Unmarshal([]byte(res), dest)
	if err != nil {
		slog.Error(
			"can't unmarshall cached value",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return fmt.Errorf("can't unmarshall %s: %w", key, err)
	}

	slog.Debug(op+" finished", slog.String("rqID", rqID))

	return nil
}
