package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/medqueue/opd-admission/internal/redis"
)

// Reallocator rebuilds a provider's day from scratch: it wipes every
// materialized slot and replays all still-confirmed tokens, highest
// priority first, through the controller's reservation rules. The
// result is a deterministic greedy re-pack; one token's failure never
// aborts the rest of the replay.
type Reallocator struct {
	repo   Repository
	ctrl   *Controller
	locker redisclient.Locker
	log    *zap.Logger
}

func NewReallocator(repo Repository, ctrl *Controller, locker redisclient.Locker, log *zap.Logger) *Reallocator {
	return &Reallocator{repo: repo, ctrl: ctrl, locker: locker, log: log}
}

// Reallocate re-packs one provider/day and reports how many tokens were
// placed and how many could not be.
func (r *Reallocator) Reallocate(ctx context.Context, providerID uuid.UUID, date Date) (*ReallocationStats, error) {
	provider, err := r.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	var stats ReallocationStats
	err = r.locker.WithLock(ctx, dayLockKey(providerID, date), func(lockCtx context.Context) error {
		// Repository order is (priority rank asc, created_at asc), so
		// ties keep arrival order.
		tokens, err := r.repo.ListTokens(lockCtx, TokenFilter{
			ProviderID: providerID,
			Date:       date,
			Status:     TokenConfirmed,
		})
		if err != nil {
			return fmt.Errorf("list confirmed tokens: %w", err)
		}

		if err := r.repo.DeleteSlotInstances(lockCtx, providerID, date); err != nil {
			return fmt.Errorf("clear slot instances: %w", err)
		}

		stats.Total = len(tokens)
		for i := range tokens {
			res, err := r.ctrl.replayToken(lockCtx, provider, &tokens[i])
			if err != nil {
				stats.Failed++
				r.log.Warn("token replay failed",
					zap.String("token", tokens[i].Number),
					zap.Error(err))
				continue
			}
			if res.Admitted {
				stats.Reallocated++
			} else {
				stats.Failed++
				r.log.Info("token not placed during reallocation",
					zap.String("token", tokens[i].Number),
					zap.String("reason", string(res.Reason)))
			}
		}
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrScheduleBusy
	}
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
