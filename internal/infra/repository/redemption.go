package repository

import (
	"context"
	"encoding/json"
	"time"

	"loyalty-core/internal/domain/redemption"
	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

// RedemptionChangeChannel is the pg_notify channel carrying redemption
// change-feed events.
const RedemptionChangeChannel = "redemption_changes"

// RedemptionRepository relies on conditional updates for every state
// transition: the WHERE clause restates the precondition, so a redundant
// invocation observes zero affected rows instead of double-applying.
type RedemptionRepository struct{}

func NewRedemptionRepository() *RedemptionRepository {
	return &RedemptionRepository{}
}

const createRedemptionSQL = `
INSERT INTO redemptions (id, user_id, reward_id, code, points_value, redeemed_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *RedemptionRepository) Create(ctx context.Context, dbtx db.DBTX, rec *redemption.Redemption) error {
	_, err := dbtx.Exec(ctx, createRedemptionSQL,
		rec.ID(), rec.UserID(), rec.RewardID(), rec.Code().String(),
		rec.PointsValue(), rec.RedeemedAt(), rec.ExpiresAt())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return infra.WrapRepoErr("redemption already exists", err, infra.KindDuplicateKey)
		}
		return infra.WrapRepoErr("failed to create redemption", err)
	}
	return nil
}

// The deadline check covers the window between the wall-clock expiry and the
// expire transition landing: an overdue claim cannot be consumed even before
// any trigger has marked it.
const markUsedSQL = `
UPDATE redemptions
SET is_used = TRUE, used_at = $2
WHERE id = $1 AND NOT is_used AND NOT is_expired AND expires_at > $2
RETURNING user_id`

func (r *RedemptionRepository) MarkUsed(ctx context.Context, dbtx db.DBTX, id uuid.UUID, at time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	err := dbtx.QueryRow(ctx, markUsedSQL, id, at).Scan(&userID)
	if err != nil {
		if infra.IsNoRows(err) {
			return uuid.Nil, infra.WrapRepoErr("redemption is terminal", err, infra.KindPreconditionFailed)
		}
		return uuid.Nil, infra.WrapRepoErr("failed to mark redemption used", err)
	}
	return userID, nil
}

// A consumed redemption never expires, and the deadline is re-verified
// against the stored row: client-side timers are hints, not authority.
const markExpiredSQL = `
UPDATE redemptions
SET is_expired = TRUE
WHERE id = $1 AND NOT is_expired AND NOT is_used AND expires_at <= $2
RETURNING user_id, points_value`

func (r *RedemptionRepository) MarkExpired(ctx context.Context, dbtx db.DBTX, id uuid.UUID, now time.Time) (shared.RefundTarget, bool, error) {
	target := shared.RefundTarget{RedemptionID: id}
	err := dbtx.QueryRow(ctx, markExpiredSQL, id, now).Scan(&target.UserID, &target.PointsValue)
	if err != nil {
		if infra.IsNoRows(err) {
			return shared.RefundTarget{}, false, nil
		}
		return shared.RefundTarget{}, false, infra.WrapRepoErr("failed to mark redemption expired", err)
	}
	return target, true, nil
}

const markRefundedSQL = `
UPDATE redemptions
SET points_refunded = TRUE
WHERE id = $1 AND is_expired AND NOT points_refunded`

func (r *RedemptionRepository) MarkRefunded(ctx context.Context, dbtx db.DBTX, id uuid.UUID) (bool, error) {
	tag, err := dbtx.Exec(ctx, markRefundedSQL, id)
	if err != nil {
		return false, infra.WrapRepoErr("failed to mark redemption refunded", err)
	}
	return tag.RowsAffected() == 1, nil
}

const overdueForUserSQL = `
SELECT id FROM redemptions
WHERE user_id = $1 AND NOT is_used AND NOT is_expired AND expires_at <= $2`

func (r *RedemptionRepository) OverdueIDs(ctx context.Context, dbtx db.DBTX, userID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	rows, err := dbtx.Query(ctx, overdueForUserSQL, userID, now)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list overdue redemptions", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

const overdueAllSQL = `
SELECT id FROM redemptions
WHERE NOT is_used AND NOT is_expired AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

func (r *RedemptionRepository) OverdueIDsAll(ctx context.Context, dbtx db.DBTX, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := dbtx.Query(ctx, overdueAllSQL, now, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list overdue redemptions", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

type changeEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	RedemptionID uuid.UUID `json:"redemption_id"`
	Event        string    `json:"event"`
}

func (r *RedemptionRepository) NotifyChange(ctx context.Context, dbtx db.DBTX, userID, id uuid.UUID, event string) error {
	payload, err := json.Marshal(changeEvent{UserID: userID, RedemptionID: id, Event: event})
	if err != nil {
		return infra.WrapRepoErr("failed to encode change event", err)
	}

	_, err = dbtx.Exec(ctx, "SELECT pg_notify($1, $2)", RedemptionChangeChannel, string(payload))
	if err != nil {
		return infra.WrapRepoErr("failed to notify redemption change", err)
	}
	return nil
}
