// Package reconciler resolves redemptions left pending after a timeout
// against the provider, by asking its status endpoint.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/redemption"
	"github.com/civium/rewards-core/internal/service/redemptions"
	"github.com/civium/rewards-core/internal/utils/logger"
	"github.com/civium/rewards-core/internal/utils/semaphore"
)

const pendingGracePeriod = 5 * time.Minute
const maxConcurrentStatusChecks = 4

type redemptionRepo interface {
	ListPendingOlderThan(ctx context.Context, age time.Duration) ([]redemption.Redemption, error)
	MarkCompleted(ctx context.Context, id, providerRef string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

type statusClient interface {
	Status(ctx context.Context, idempotencyKey string) (redemptions.DisburseResponse, error)
}

type Reconciler struct {
	redemptions redemptionRepo
	provider    statusClient
	sema        *semaphore.Semaphore
	tick        time.Duration
}

func New(repo redemptionRepo, provider statusClient) *Reconciler {
	return &Reconciler{
		redemptions: repo,
		provider:    provider,
		sema:        semaphore.New(maxConcurrentStatusChecks),
		tick:        model.ReconcilerTickTimeout,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With("service", "reconciler")
	log.LogAttrs(ctx, slog.LevelInfo, "running")

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.LogAttrs(ctx, slog.LevelInfo, "stop signal received, exiting...")
			return

		case <-ticker.C:
			r.Sweep(ctx, log)
		}
	}
}

// Sweep resolves every pending redemption older than the grace period.
// Redemptions the provider does not recognize or still reports pending
// are left for the next pass.
func (r *Reconciler) Sweep(ctx context.Context, log *slog.Logger) {
	pending, err := r.redemptions.ListPendingOlderThan(ctx, pendingGracePeriod)
	if err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to list pending redemptions",
			slog.Any(model.KeyLoggerError, err),
		)
		return
	}

	var wg sync.WaitGroup
	for _, rd := range pending {
		if err = r.sema.AcquireWithTimeout(r.tick); err != nil {
			// leave the rest for the next pass
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.sema.Release()
			r.resolve(ctx, log, rd)
		}()
	}
	wg.Wait()
}

func (r *Reconciler) resolve(ctx context.Context,
	log *slog.Logger, rd redemption.Redemption,
) {
	resp, err := r.provider.Status(ctx, rd.IdempotencyKey)
	if err != nil {
		log.LogAttrs(ctx,
			slog.LevelWarn,
			"provider status unavailable",
			slog.String("redemption", rd.ID),
			slog.Any(model.KeyLoggerError, err),
		)
		return
	}

	switch resp.Status {
	case redemptions.ProviderStatusCompleted:
		err = r.redemptions.MarkCompleted(ctx, rd.ID, resp.Reference)
	case redemptions.ProviderStatusFailed:
		err = r.redemptions.MarkFailed(ctx, rd.ID, resp.Message)
	default:
		return
	}
	if err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to resolve redemption",
			slog.String("redemption", rd.ID),
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
