// Package redemptions debits the ledger and hands off to the external
// disbursement provider. Idempotency keys, not distributed
// transactions, make retried requests safe.
package redemptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ShiraazMoollatjie/goluhn"

	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/model/redemption"
	"github.com/civium/rewards-core/internal/serviceerrs"
	"github.com/civium/rewards-core/internal/utils/semaphore"
)

// External currency minor units credited per point, by product.
var pointValue = map[redemption.ProductType]int64{
	redemption.ProductAirtime: 10,
	redemption.ProductData:    8,
	redemption.ProductCash:    5,
}

const maxProviderCalls = 16

type redemptionRepo interface {
	FindByKey(ctx context.Context, key string) (redemption.Redemption, bool, error)
	CreatePendingWithDebit(ctx context.Context, rd *redemption.Redemption) (redemption.Redemption, bool, error)
	MarkCompleted(ctx context.Context, id, providerRef string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	RefundFailed(ctx context.Context, id string) (ledger.Transaction, error)
	ListByMember(ctx context.Context, memberID string) ([]redemption.Redemption, error)
}

type suspensionGate interface {
	IsSuspended(ctx context.Context, memberID string) (bool, error)
}

type Provider interface {
	Submit(ctx context.Context, req DisburseRequest) (DisburseResponse, error)
	Status(ctx context.Context, idempotencyKey string) (DisburseResponse, error)
}

type Processor struct {
	redemptions redemptionRepo
	gate        suspensionGate
	provider    Provider
	cfg         *config.Config
	log         *slog.Logger
	sema        *semaphore.Semaphore
}

func New(redemptions redemptionRepo, gate suspensionGate,
	provider Provider, cfg *config.Config, log *slog.Logger,
) *Processor {
	return &Processor{
		redemptions: redemptions,
		gate:        gate,
		provider:    provider,
		cfg:         cfg,
		log:         log,
		sema:        semaphore.New(maxProviderCalls),
	}
}

// NewWithDefaultProvider wires the HTTP provider client at addr.
func NewWithDefaultProvider(redemptions redemptionRepo, gate suspensionGate,
	addr string, cfg *config.Config, log *slog.Logger,
) *Processor {
	return New(redemptions, gate, NewClient(addr), cfg, log)
}

// Redeem debits the ledger and submits the disbursement. A repeated
// idempotency key returns the existing redemption unchanged: one debit,
// at most one disbursement, however many times the client retries.
func (p *Processor) Redeem(ctx context.Context,
	memberID string, productType redemption.ProductType,
	pointsAmount int64, idempotencyKey, destination string,
) (redemption.Redemption, error) {
	if idempotencyKey == "" {
		return redemption.Redemption{}, fmt.Errorf("idempotency key is required")
	}

	if existing, found, err := p.redemptions.FindByKey(ctx, idempotencyKey); err != nil {
		return redemption.Redemption{}, fmt.Errorf("failed to look up idempotency key: %w", err)
	} else if found {
		return existing, nil
	}

	suspended, err := p.gate.IsSuspended(ctx, memberID)
	if err != nil {
		return redemption.Redemption{}, fmt.Errorf("failed to check suspension: %w", err)
	}
	if suspended {
		return redemption.Redemption{}, serviceerrs.ErrAccountSuspended
	}

	minPoints, maxPoints := p.cfg.RedemptionBand(productType)
	if maxPoints == 0 || pointsAmount < minPoints || pointsAmount > maxPoints {
		return redemption.Redemption{}, serviceerrs.ErrRedemptionAmountInvalid
	}

	if err = validateDestination(productType, destination); err != nil {
		return redemption.Redemption{}, err
	}

	rd := redemption.Redemption{
		MemberID:       memberID,
		ProductType:    productType,
		PointsDebited:  pointsAmount,
		ExternalValue:  pointsAmount * pointValue[productType],
		IdempotencyKey: idempotencyKey,
		Destination:    destination,
	}

	// The debit commits before the provider call. A definitive provider
	// rejection leaves the debit in place and the redemption failed; the
	// refund path issues the compensating credit. The two cannot be
	// atomic across the process boundary.
	created, fresh, err := p.redemptions.CreatePendingWithDebit(ctx, &rd)
	if err != nil {
		return redemption.Redemption{}, err //nolint: wrapcheck // error from wrapped function
	}
	if !fresh {
		return created, nil
	}

	return p.submit(ctx, created)
}

func (p *Processor) submit(ctx context.Context, rd redemption.Redemption,
) (redemption.Redemption, error) {
	if err := p.sema.AcquireWithTimeout(clientTimeout); err != nil {
		// stays pending; the reconciler resolves it later
		p.log.LogAttrs(ctx,
			slog.LevelWarn,
			"provider call slot unavailable, leaving redemption pending",
			slog.String("redemption", rd.ID),
		)
		return rd, nil
	}
	defer p.sema.Release()

	resp, err := p.provider.Submit(ctx, DisburseRequest{
		Destination:    rd.Destination,
		ProductType:    string(rd.ProductType),
		IdempotencyKey: rd.IdempotencyKey,
		Amount:         rd.ExternalValue,
	})
	if err != nil {
		var rejected *serviceerrs.ProviderRejectedError
		if !errors.As(err, &rejected) {
			// timeout, throttle or transport error: the provider may
			// still have processed the submit. Stays pending until the
			// reconciler settles it via the status endpoint.
			p.log.LogAttrs(ctx,
				slog.LevelWarn,
				"disbursement outcome unknown, leaving redemption pending",
				slog.String("redemption", rd.ID),
				slog.Any(model.KeyLoggerError, err),
			)
			return rd, nil
		}

		p.log.LogAttrs(ctx,
			slog.LevelError,
			"disbursement rejected by provider",
			slog.String("redemption", rd.ID),
			slog.Any(model.KeyLoggerError, err),
		)
		if markErr := p.redemptions.MarkFailed(ctx, rd.ID, rejected.Message); markErr != nil {
			return rd, fmt.Errorf("failed to mark redemption failed: %w", markErr)
		}
		rd.Status = redemption.StatusFailed
		rd.ErrorMessage = rejected.Message
		return rd, nil
	}

	return p.applyProviderStatus(ctx, rd, resp)
}

func (p *Processor) applyProviderStatus(ctx context.Context,
	rd redemption.Redemption, resp DisburseResponse,
) (redemption.Redemption, error) {
	switch resp.Status {
	case ProviderStatusCompleted:
		if err := p.redemptions.MarkCompleted(ctx, rd.ID, resp.Reference); err != nil {
			return rd, fmt.Errorf("failed to mark redemption completed: %w", err)
		}
		rd.Status = redemption.StatusCompleted
		rd.ProviderRef = resp.Reference
	case ProviderStatusFailed:
		if err := p.redemptions.MarkFailed(ctx, rd.ID, resp.Message); err != nil {
			return rd, fmt.Errorf("failed to mark redemption failed: %w", err)
		}
		rd.Status = redemption.StatusFailed
		rd.ErrorMessage = resp.Message
	default:
		// provider still processing, reconciler picks it up
	}
	return rd, nil
}

// Refund issues the compensating credit for a failed redemption.
func (p *Processor) Refund(ctx context.Context, redemptionID string,
) (ledger.Transaction, error) {
	return p.redemptions.RefundFailed(ctx, redemptionID) //nolint: wrapcheck // error from wrapped function
}

func (p *Processor) ListByMember(ctx context.Context, memberID string,
) ([]redemption.Redemption, error) {
	return p.redemptions.ListByMember(ctx, memberID) //nolint: wrapcheck // error from wrapped function
}

func validateDestination(productType redemption.ProductType, destination string,
) error {
	if destination == "" {
		return serviceerrs.ErrInvalidDestination
	}
	// cash goes to a card PAN, which must carry a valid Luhn checksum
	if productType == redemption.ProductCash {
		if err := goluhn.Validate(destination); err != nil {
			return serviceerrs.ErrInvalidDestination
		}
	}
	return nil
}
