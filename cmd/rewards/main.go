package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/civium/rewards-core/internal/api/handlers"
	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/dbmanager"
	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/repo"
	"github.com/civium/rewards-core/internal/router"
	"github.com/civium/rewards-core/internal/service/actions"
	"github.com/civium/rewards-core/internal/service/frauddetect"
	"github.com/civium/rewards-core/internal/service/guard"
	"github.com/civium/rewards-core/internal/service/ledgerstore"
	"github.com/civium/rewards-core/internal/service/reconciler"
	"github.com/civium/rewards-core/internal/service/redemptions"
	"github.com/civium/rewards-core/internal/service/suspensions"
	"github.com/civium/rewards-core/internal/utils/logger"
)

const connectTimeout = 10 * time.Second
const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found")
	}

	bootLog := logger.New(slog.LevelInfo)
	cfg := config.NewBuilder(bootLog).
		FromEnv().
		FromFlags().
		GetConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	lg := logger.New(level)

	if err := run(cfg, lg); err != nil {
		lg.LogAttrs(context.Background(),
			slog.LevelError,
			"service stopped with error",
			slog.Any(model.KeyLoggerError, err),
		)
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *slog.Logger) error {
	rootCtx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = logger.WithContext(rootCtx, lg)

	connectCtx, cancel := context.WithTimeout(rootCtx, connectTimeout)
	defer cancel()

	db := dbmanager.New(cfg.DatabaseURI, lg)
	db.Connect(connectCtx).Ping(connectCtx).ApplyMigrations(connectCtx)
	if err := db.Error(); err != nil {
		return err
	}
	defer db.Close()

	pool, err := db.GetPool(rootCtx)
	if err != nil {
		return err
	}

	members := repo.NewMemberRepository(pool, lg)
	ledgerRepo := repo.NewLedgerRepository(pool, lg)
	completions := repo.NewCompletionRepository(pool, lg)
	audits := repo.NewAuditRepository(pool, lg)
	fraudLogs := repo.NewFraudRepository(pool, lg)
	suspensionRows := repo.NewSuspensionRepository(pool, lg)
	redemptionRows := repo.NewRedemptionRepository(pool, lg)

	suspender := suspensions.New(suspensionRows, members, lg)
	ledgerSvc := ledgerstore.New(ledgerRepo, suspender)
	uniqueness := guard.New(completions)
	detector := frauddetect.New(ledgerRepo, audits, fraudLogs, cfg)
	actionSvc := actions.New(suspender, uniqueness, detector, cfg, lg)
	redeemer := redemptions.NewWithDefaultProvider(
		redemptionRows, suspender, cfg.DisburseAddr, cfg, lg)

	sweeper := reconciler.New(redemptionRows,
		redemptions.NewClient(cfg.DisburseAddr))
	go sweeper.Run(rootCtx)

	h := handlers.New(members, actionSvc, ledgerSvc, redeemer, suspender, cfg, lg)
	r := router.New(cfg, lg)
	r.SetRouter(h, audits)

	server := &http.Server{
		Addr:    cfg.RunAddr,
		Handler: r.GetRouter(),
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.LogAttrs(rootCtx,
			slog.LevelInfo,
			"server listening",
			slog.String("addr", cfg.RunAddr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serverErr:
		return err
	case <-rootCtx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(
		context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err = server.Shutdown(shutdownCtx); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
