package readstore

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"

	"github.com/google/uuid"
)

type BalanceReadStore struct {
	db db.DBTX
}

func NewBalanceReadStore(dbtx db.DBTX) *BalanceReadStore {
	return &BalanceReadStore{db: dbtx}
}

func (s *BalanceReadStore) Get(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`SELECT balance FROM point_balances WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		// No row yet means the user has never earned or spent points.
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, infra.WrapRepoErr("failed to read balance", err)
	}
	return balance, nil
}
