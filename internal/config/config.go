package config

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/redemption"
)

type Config struct {
	RunAddr       string `env:"RUN_ADDRESS"    envDefault:"localhost:8080"`
	DatabaseURI   string `env:"DATABASE_URI"   envDefault:""`
	DisburseAddr  string `env:"DISBURSE_ADDRESS" envDefault:"localhost:8081"`
	SecretKey     string `env:"SECRET_KEY"     envDefault:""`
	WebhookSecret string `env:"WEBHOOK_SECRET" envDefault:""`
	LogLevel      string `env:"LOG_LEVEL"      envDefault:"info"`

	VelocityCeiling int64         `env:"FRAUD_VELOCITY_CEILING"  envDefault:"100"`
	IPCeiling       int           `env:"FRAUD_IP_CEILING"        envDefault:"20"`
	MinActionGap    time.Duration `env:"FRAUD_MIN_ACTION_GAP"    envDefault:"2s"`
	ScoreThreshold  int           `env:"FRAUD_SCORE_THRESHOLD"   envDefault:"50"`
	QuizMinDuration time.Duration `env:"QUIZ_MIN_DURATION"       envDefault:"5s"`

	CheckInOpenBefore    time.Duration `env:"CHECKIN_OPEN_BEFORE" envDefault:"1h"`
	CheckInCloseAfter    time.Duration `env:"CHECKIN_CLOSE_AFTER" envDefault:"2h"`
	GeofenceRadiusMeters float64       `env:"GEOFENCE_RADIUS_M"   envDefault:"500"`

	AirtimeMinPoints int64 `env:"AIRTIME_MIN_POINTS" envDefault:"50"`
	AirtimeMaxPoints int64 `env:"AIRTIME_MAX_POINTS" envDefault:"1000"`
	DataMinPoints    int64 `env:"DATA_MIN_POINTS"    envDefault:"100"`
	DataMaxPoints    int64 `env:"DATA_MAX_POINTS"    envDefault:"2000"`
	CashMinPoints    int64 `env:"CASH_MIN_POINTS"    envDefault:"500"`
	CashMaxPoints    int64 `env:"CASH_MAX_POINTS"    envDefault:"10000"`

	QuizPoints  int64 `env:"QUIZ_POINTS"  envDefault:"20"`
	TaskPoints  int64 `env:"TASK_POINTS"  envDefault:"25"`
	VotePoints  int64 `env:"VOTE_POINTS"  envDefault:"10"`
	EventPoints int64 `env:"EVENT_POINTS" envDefault:"30"`
}

// RedemptionBand returns the allowed [min, max] points band for a product.
func (c *Config) RedemptionBand(p redemption.ProductType) (int64, int64) {
	switch p {
	case redemption.ProductAirtime:
		return c.AirtimeMinPoints, c.AirtimeMaxPoints
	case redemption.ProductData:
		return c.DataMinPoints, c.DataMaxPoints
	case redemption.ProductCash:
		return c.CashMinPoints, c.CashMaxPoints
	}
	return 0, 0
}

type Builder struct {
	cfg *Config
	log *slog.Logger
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{},
		log: log,
	}
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.log.LogAttrs(context.Background(),
			slog.LevelError, "Failed to parse config", slog.Any(model.KeyLoggerError, err))
	}
	return b
}

func (b *Builder) FromFlags() *Builder {
	flag.StringVar(&b.cfg.RunAddr, "a", b.cfg.RunAddr, "Run address")
	flag.StringVar(&b.cfg.DatabaseURI, "d", b.cfg.DatabaseURI, "Database URI")
	flag.StringVar(&b.cfg.DisburseAddr, "r", b.cfg.DisburseAddr, "Disbursement provider address")
	flag.StringVar(&b.cfg.SecretKey, "k", b.cfg.SecretKey, "Secret key")
	flag.StringVar(&b.cfg.LogLevel, "l", b.cfg.LogLevel, "Log level")

	flag.Parse()
	return b
}

func (b *Builder) GetConfig() *Config {
	return b.cfg
}
