package commands

import (
	"context"
	"encoding/json"
	"log/slog"

	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/pkg/errs"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

// sweepBatchLimit bounds one reconciliation pass so a large backlog is worked
// off across ticks instead of one long transaction burst.
const sweepBatchLimit = 100

// RefundCommands settles expired redemptions. Three triggers converge here:
// the change feed, client expiry hints, and the periodic sweep. The expire and
// refund transitions are conditional updates inside one transaction, so any
// number of overlapping triggers credit the points exactly once.
type RefundCommands interface {
	// ExpireAndRefund attempts the expiry transition for one redemption and,
	// when this call wins it, credits the points back. Returns whether this
	// call performed the refund; false is the normal result for a redundant
	// trigger or a premature hint.
	ExpireAndRefund(ctx context.Context, redemptionID uuid.UUID) (bool, error)
	// ReportExpiredLocally handles a client timer hint. The hint carries no
	// authority: the stored deadline decides, and the call is idempotent.
	ReportExpiredLocally(ctx context.Context, redemptionID uuid.UUID) error
	// SweepOverdue reconciles redemptions whose expiry every other trigger
	// missed. Returns how many were refunded this pass.
	SweepOverdue(ctx context.Context) (int, error)
	// SweepUser settles all of one user's overdue redemptions. Ran on every
	// change-feed event for that user, so any activity flushes stragglers
	// without waiting for the periodic sweep.
	SweepUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type refundCommandsImpl struct {
	uow     shared.UnitOfWork
	loyalty config.LoyaltyConfig
	clock   clock.Clock
}

func NewRefundCommands(uow shared.UnitOfWork, loyalty config.LoyaltyConfig, clock clock.Clock) RefundCommands {
	return &refundCommandsImpl{
		uow:     uow,
		loyalty: loyalty,
		clock:   clock,
	}
}

func (r *refundCommandsImpl) ExpireAndRefund(ctx context.Context, redemptionID uuid.UUID) (bool, error) {
	refunded := false
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		target, ok, err := tx.Redemptions().MarkExpired(ctx, tx.DB(), redemptionID, r.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			// Another trigger won the transition, the claim was consumed, or
			// the deadline has not actually passed.
			return nil
		}

		ok, err = tx.Redemptions().MarkRefunded(ctx, tx.DB(), redemptionID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.New("expired redemption already refunded")
		}

		if _, err := tx.Ledger().Adjust(ctx, tx.DB(), target.UserID, target.PointsValue); err != nil {
			return err
		}

		if err := tx.Redemptions().NotifyChange(ctx, tx.DB(), target.UserID, redemptionID, shared.RedemptionEventExpired); err != nil {
			return err
		}
		if err := tx.Redemptions().NotifyChange(ctx, tx.DB(), target.UserID, redemptionID, shared.RedemptionEventRefunded); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"redemption_id": redemptionID,
			"user_id":       target.UserID,
			"points_value":  target.PointsValue,
		})
		if err != nil {
			return err
		}
		if err := tx.Notifications().CreateJob(ctx, tx.DB(), "push", "redemption_refunded", payload, r.clock.Now()); err != nil {
			return err
		}

		refunded = true
		return nil
	})
	if err != nil {
		return false, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return refunded, nil
}

func (r *refundCommandsImpl) ReportExpiredLocally(ctx context.Context, redemptionID uuid.UUID) error {
	_, err := r.ExpireAndRefund(ctx, redemptionID)
	return err
}

func (r *refundCommandsImpl) SweepOverdue(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		overdue, err := tx.Redemptions().OverdueIDsAll(ctx, tx.DB(), r.clock.Now(), sweepBatchLimit)
		if err != nil {
			return err
		}
		ids = overdue
		return nil
	})
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return r.settle(ctx, ids), nil
}

func (r *refundCommandsImpl) SweepUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var ids []uuid.UUID
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		overdue, err := tx.Redemptions().OverdueIDs(ctx, tx.DB(), userID, r.clock.Now())
		if err != nil {
			return err
		}
		ids = overdue
		return nil
	})
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return r.settle(ctx, ids), nil
}

// settle refunds each redemption in its own transaction so one failure does
// not hold back the rest of the batch.
func (r *refundCommandsImpl) settle(ctx context.Context, ids []uuid.UUID) int {
	refunded := 0
	for _, id := range ids {
		ok, err := r.ExpireAndRefund(ctx, id)
		if err != nil {
			slog.Warn("sweep failed to refund redemption", "redemption_id", id, "error", err.Error())
			continue
		}
		if ok {
			refunded++
		}
	}
	return refunded
}
