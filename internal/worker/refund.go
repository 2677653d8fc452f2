// Package worker hosts the background loops of the loyalty service.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loyalty-core/internal/infra/feed"
	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/usecase/commands"
	"loyalty-core/internal/usecase/queries"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

// expiryGrace shifts the server-side timer slightly past the stored deadline
// so the conditional expire never races its own guard on clock edges.
const expiryGrace = time.Second

// RefundCoordinator drives the server-side half of redemption expiry. It arms
// a timer for every redemption the change feed reports as created, and runs
// the periodic sweep that reconciles whatever the timers and client hints
// missed. All paths funnel into RefundCommands.ExpireAndRefund, which is
// idempotent, so overlap between the triggers is harmless.
type RefundCoordinator struct {
	listener          *feed.Listener
	refunds           commands.RefundCommands
	redemptionQueries queries.RedemptionQueries
	loyalty           config.LoyaltyConfig
	clock             clock.Clock

	wg sync.WaitGroup
}

func NewRefundCoordinator(
	listener *feed.Listener,
	refunds commands.RefundCommands,
	redemptionQueries queries.RedemptionQueries,
	loyalty config.LoyaltyConfig,
	clock clock.Clock,
) *RefundCoordinator {
	return &RefundCoordinator{
		listener:          listener,
		refunds:           refunds,
		redemptionQueries: redemptionQueries,
		loyalty:           loyalty,
		clock:             clock,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight timers.
func (c *RefundCoordinator) Run(ctx context.Context) {
	events, cancel := c.listener.SubscribeAll()
	defer cancel()

	ticker := time.NewTicker(c.loyalty.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return

		case ev := <-events:
			if ev.Event == shared.RedemptionEventCreated {
				c.armTimer(ctx, ev.RedemptionID)
			}
			// Any event for a user also settles that user's overdue records.
			// Settled records leave the overdue set, so the events this emits
			// cannot re-trigger work.
			if _, err := c.refunds.SweepUser(ctx, ev.UserID); err != nil {
				slog.Warn("per-user sweep failed", "user_id", ev.UserID, "error", err.Error())
			}

		case <-ticker.C:
			refunded, err := c.refunds.SweepOverdue(ctx)
			if err != nil {
				slog.Error("reconciliation sweep failed", "error", err.Error())
				continue
			}
			if refunded > 0 {
				slog.Info("reconciliation sweep refunded redemptions", "count", refunded)
			}
		}
	}
}

// armTimer schedules ExpireAndRefund for the redemption's stored deadline.
// The deadline is read back from the store rather than trusted from the
// event payload.
func (c *RefundCoordinator) armTimer(ctx context.Context, redemptionID uuid.UUID) {
	view, err := c.redemptionQueries.GetByID(ctx, redemptionID)
	if err != nil {
		slog.Warn("cannot arm expiry timer", "redemption_id", redemptionID, "error", err.Error())
		return
	}

	delay := view.ExpiresAt.Sub(c.clock.Now()) + expiryGrace
	if delay < 0 {
		delay = 0
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := c.refunds.ExpireAndRefund(ctx, redemptionID); err != nil {
			// The sweep will pick this one up on its next pass.
			slog.Warn("timed expiry failed", "redemption_id", redemptionID, "error", err.Error())
		}
	}()
}
