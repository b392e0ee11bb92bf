package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	Postgres          Postgres
	Telegram          Telegram
	Redis             Redis
	API               API
	Cache             Cache
	Jobs              Jobs
	GoogleDrive       GoogleDrive
	Portfolio         Portfolio
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION" envDefault:"24h"`
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT" envDefault:"5432"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME" envDefault:"300"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"60"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"migrations"`
	SSLMode         string `env:"PG_SSL_MODE" envDefault:"disable"`
}

type Telegram struct {
	Token            string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout       time.Duration `env:"TELEGRAM_UPD_TIMEOUT" envDefault:"10s"`
	FileLimitInBytes int           `env:"TELEGRAM_FILE_LIMIT_IN_BYTES" envDefault:"52428800"`
}

type Redis struct {
	Host        string        `env:"REDIS_HOST"`
	Port        int           `env:"REDIS_PORT" envDefault:"6379"`
	Password    string        `env:"REDIS_PASSWORD" envDefault:""`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize    int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"3s"`
	ReadTimeout time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"2s"`
}

type API struct {
	Debug            bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout          time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	RetryCount       int           `env:"API_RETRY_COUNT" envDefault:"2"`
	RetryWaitTime    time.Duration `env:"API_RETRY_WAIT_TIME" envDefault:"300ms"`
	RetryMaxWaitTime time.Duration `env:"API_RETRY_MAX_WAIT_TIME" envDefault:"2s"`
	Provider         string        `env:"MARKET_DATA_PROVIDER" envDefault:"yahoo"`
	YahooApi         YahooApi
	EodhdApi         EodhdApi
	MoexApi          MoexApi
}

type YahooApi struct {
	Url string `env:"YAHOO_API_URL" envDefault:"https://query1.finance.yahoo.com"`
}

type EodhdApi struct {
	Url       string `env:"EODHD_API_URL" envDefault:"https://eodhd.com/api"`
	Token     string `env:"EODHD_API_TOKEN" envDefault:""`
	Exchange  string `env:"EODHD_EXCHANGE" envDefault:"US"`
	RateLimit int    `env:"EODHD_RATE_LIMIT" envDefault:"10"`
}

type MoexApi struct {
	Url   string `env:"MOEX_API_URL" envDefault:"https://iss.moex.com"`
	Board string `env:"MOEX_BOARD" envDefault:"TQBR"`
}

type Cache struct {
	QuoteExpiration     time.Duration `env:"CACHE_QUOTE_EXPIRATION" envDefault:"5m"`
	HistoryExpiration   time.Duration `env:"CACHE_HISTORY_EXPIRATION" envDefault:"6h"`
	DividendsExpiration time.Duration `env:"CACHE_DIVIDENDS_EXPIRATION" envDefault:"24h"`
}

type Jobs struct {
	WarmDividendCacheInterval time.Duration `env:"WARM_DIVIDEND_CACHE_JOB_INTERVAL" envDefault:"6h"`
	CleanupReportsCrontab     string        `env:"CLEANUP_REPORTS_JOB_CRONTAB" envDefault:"0 0 3 * * *"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"72h"`
}

type Portfolio struct {
	DefaultInitialCapital   decimal.Decimal `env:"DEFAULT_INITIAL_CAPITAL" envDefault:"10000"`
	SimulationInitialShares decimal.Decimal `env:"SIMULATION_INITIAL_SHARES" envDefault:"1"`
	Watchlist               []string        `env:"DIVIDEND_WATCHLIST" envSeparator:"," envDefault:"MMM,KO,JNJ,PG,PEP,ABBV,XOM,MCD"`
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.API.Provider {
	case "yahoo", "eodhd", "moex":
	default:
		return nil, fmt.Errorf("unknown market data provider %q", cfg.API.Provider)
	}

	if !cfg.Portfolio.SimulationInitialShares.IsPositive() {
		return nil, fmt.Errorf("SIMULATION_INITIAL_SHARES must be positive, got %s", cfg.Portfolio.SimulationInitialShares)
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
