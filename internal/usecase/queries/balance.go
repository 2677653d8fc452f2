package queries

import (
	"context"

	"github.com/google/uuid"
)

type BalanceView struct {
	UserID  uuid.UUID
	Balance int64
}

// BalanceReadStore reads the committed balance. A user without a balance row
// has a balance of zero, not an error.
type BalanceReadStore interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, error)
}

type BalanceQueries interface {
	GetForUser(ctx context.Context, userID uuid.UUID) (*BalanceView, error)
}

type balanceQueriesImpl struct {
	store BalanceReadStore
}

func NewBalanceQueries(store BalanceReadStore) BalanceQueries {
	return &balanceQueriesImpl{store: store}
}

func (q *balanceQueriesImpl) GetForUser(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	balance, err := q.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BalanceView{UserID: userID, Balance: balance}, nil
}
