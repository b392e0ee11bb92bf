package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	pgConnAttempts  = 10
	pgPingTimeout   = 3 * time.Second
	pgMaxRetryDelay = 5 * time.Second
)

// NewPostgresClient connects through pgx, retrying while the database starts
// up, and applies pending migrations. It panics when either step fails.
func NewPostgresClient(ctx context.Context, cfg *config.Config) *sqlx.DB {
	connConfig, err := pgx.ParseConfig(fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s password=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.DbName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Password,
	))
	if err != nil {
		slog.Error("bad postgres config", slog.String("err", err.Error()))
		panic(err)
	}
	connConfig.RuntimeParams["application_name"] = "dividend_helper_bot"

	db := sqlx.NewDb(stdlib.OpenDB(*connConfig), "pgx")
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxIdleTime(time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second)

	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if attempt == pgConnAttempts || ctx.Err() != nil {
			slog.Error("Postgres is unreachable", slog.Int("attempts", attempt), slog.String("err", err.Error()))
			panic(err)
		}

		slog.Info("Postgres is trying to connect", slog.Int("attempts left", pgConnAttempts-attempt), slog.Duration("retryIn", delay))
		time.Sleep(delay)
		delay = min(delay*2, pgMaxRetryDelay)
	}
	slog.Info("Postgres connected", slog.String("host", cfg.Postgres.Host), slog.String("db", cfg.Postgres.DbName))

	migratePostgres(db, cfg.Postgres.MigrationDir)

	return db
}

func migratePostgres(db *sqlx.DB, migrationDir string) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		slog.Error("postgres migration failed on postgres.WithInstance", slog.String("err", err.Error()))
		panic(err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationDir),
		"postgres",
		driver,
	)
	if err != nil {
		slog.Error("postgres migration failed on migrate.NewWithDatabaseInstance", slog.String("err", err.Error()))
		panic(err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("postgres migration failed on m.Up()", slog.String("err", err.Error()))
		panic(err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		slog.Warn("can't read migration version", slog.String("err", err.Error()))
		return
	}
	slog.Info("postgres migrated successfully", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}
