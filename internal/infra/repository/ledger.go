package repository

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"

	"github.com/google/uuid"
)

// LedgerRepository stores one integer balance per user. Every change goes
// through a conditional UPDATE so concurrent adjustments on the same user
// serialize on the row without any application-side locking.
type LedgerRepository struct{}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

const ensureBalanceRowSQL = `
INSERT INTO point_balances (user_id, balance)
VALUES ($1, 0)
ON CONFLICT (user_id) DO NOTHING`

const adjustBalanceSQL = `
UPDATE point_balances
SET balance = balance + $2, updated_at = now()
WHERE user_id = $1 AND balance + $2 >= 0
RETURNING balance`

const adjustBelowCeilingSQL = `
UPDATE point_balances
SET balance = balance + $2, updated_at = now()
WHERE user_id = $1 AND balance < $3
RETURNING balance`

func (r *LedgerRepository) Adjust(ctx context.Context, dbtx db.DBTX, userID uuid.UUID, delta int64) (int64, error) {
	if _, err := dbtx.Exec(ctx, ensureBalanceRowSQL, userID); err != nil {
		return 0, infra.WrapRepoErr("failed to ensure balance row", err)
	}

	var balance int64
	err := dbtx.QueryRow(ctx, adjustBalanceSQL, userID, delta).Scan(&balance)
	if err != nil {
		if infra.IsNoRows(err) {
			return 0, infra.WrapRepoErr("balance adjustment would go negative", err, infra.KindPreconditionFailed)
		}
		return 0, infra.WrapRepoErr("failed to adjust balance", err)
	}

	return balance, nil
}

func (r *LedgerRepository) AdjustBelowCeiling(ctx context.Context, dbtx db.DBTX, userID uuid.UUID, delta, ceiling int64) (int64, error) {
	if _, err := dbtx.Exec(ctx, ensureBalanceRowSQL, userID); err != nil {
		return 0, infra.WrapRepoErr("failed to ensure balance row", err)
	}

	var balance int64
	err := dbtx.QueryRow(ctx, adjustBelowCeilingSQL, userID, delta, ceiling).Scan(&balance)
	if err != nil {
		if infra.IsNoRows(err) {
			return 0, infra.WrapRepoErr("balance is at or above ceiling", err, infra.KindPreconditionFailed)
		}
		return 0, infra.WrapRepoErr("failed to adjust balance below ceiling", err)
	}

	return balance, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, dbtx db.DBTX, userID uuid.UUID) (int64, error) {
	var balance int64
	err := dbtx.QueryRow(ctx, "SELECT balance FROM point_balances WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		if infra.IsNoRows(err) {
			// No row yet means the user has never earned or spent points.
			return 0, nil
		}
		return 0, infra.WrapRepoErr("failed to read balance", err)
	}
	return balance, nil
}
