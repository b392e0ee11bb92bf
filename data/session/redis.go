package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// RedisSession keeps the dialog state and the ledger snapshot of each chat.
// Both expire after cfg.SessionExpiration of inactivity.
type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func sessionKey(chatID int64) string {
	return "session:" + strconv.FormatInt(chatID, 10)
}

func ledgerKey(chatID int64) string {
	return "ledger:" + strconv.FormatInt(chatID, 10)
}

func (s *RedisSession) GetSession(ctx context.Context, chatID int64) (model.Session, error) {
	session := model.Session{}
	err := s.get(ctx, sessionKey(chatID), &session)
	return session, err
}

func (s *RedisSession) SetSession(ctx context.Context, chatID int64, session model.Session) error {
	return s.set(ctx, sessionKey(chatID), session)
}

func (s *RedisSession) GetLedger(ctx context.Context, chatID int64) (model.LedgerSnapshot, error) {
	snapshot := model.LedgerSnapshot{}
	err := s.get(ctx, ledgerKey(chatID), &snapshot)
	return snapshot, err
}

func (s *RedisSession) SetLedger(ctx context.Context, chatID int64, snapshot model.LedgerSnapshot) error {
	return s.set(ctx, ledgerKey(chatID), snapshot)
}

func (s *RedisSession) DeleteSession(ctx context.Context, chatID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := s.redis.Del(ctx, sessionKey(chatID), ledgerKey(chatID)).Err()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.Int64("chatID", chatID))
		return err
	}
	return nil
}

func (s *RedisSession) set(ctx context.Context, key string, value any) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	valueJson, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("can't marshall %s: %w", key, err)
	}

	err = s.redis.Set(ctx, key, valueJson, s.cfg.SessionExpiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}
	return nil
}

func (s *RedisSession) get(ctx context.Context, key string, dest any) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.GetEx(ctx, key, s.cfg.SessionExpiration).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		slog.Error("failed on redis.GetEx", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	if err = json.Unmarshal([]byte(res), dest); err != nil {
		slog.Error("can't unmarshall session value", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return fmt.Errorf("can't unmarshall %s: %w", key, err)
	}
	return nil
}
