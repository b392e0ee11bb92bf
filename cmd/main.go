package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/data"
	"github.com/KotFed0t/dividend_helper_bot/data/cache"
	"github.com/KotFed0t/dividend_helper_bot/data/repository/postgres"
	"github.com/KotFed0t/dividend_helper_bot/data/session"
	"github.com/KotFed0t/dividend_helper_bot/internal/chartRenderer/pngChart"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi/eodhdApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi/moexApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi/yahooApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/dividend_helper_bot/internal/scheduler"
	"github.com/KotFed0t/dividend_helper_bot/internal/service/dividendService"
	"github.com/KotFed0t/dividend_helper_bot/internal/tgbot"
	"github.com/KotFed0t/dividend_helper_bot/internal/transport/telegram"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.String("provider", cfg.API.Provider), slog.String("logLevel", cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(ctx, cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(ctx, cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	reportGenerator := xslsxGenerator.New()
	chartRenderer := pngChart.New()

	googleCloudStorage := googleDriveApi.New(ctx, cfg)

	dividendSrv := dividendService.New(
		cfg,
		newMarketDataApi(cfg),
		redisCache,
		redisSession,
		pgRepo,
		reportGenerator,
		chartRenderer,
		googleCloudStorage,
	)
	// runs after the bot and scheduler are stopped
	defer dividendSrv.Wait()

	sched := scheduler.New()
	sched.NewIntervalJob("warm dividend cache", dividendSrv.WarmCache, cfg.Jobs.WarmDividendCacheInterval, true)
	sched.NewCrontabJob("cleanup old reports", dividendSrv.CleanupReports, cfg.Jobs.CleanupReportsCrontab, false)
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(dividendSrv, redisSession, cfg.Portfolio.DefaultInitialCapital)

	tgBot := tgbot.New(cfg, tgController, redisSession)
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func newMarketDataApi(cfg *config.Config) dividendService.MarketDataApi {
	switch cfg.API.Provider {
	case "eodhd":
		return eodhdApi.New(cfg)
	case "moex":
		return moexApi.New(cfg)
	default:
		return yahooApi.New(cfg)
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
