package queries

import (
	"context"
	"time"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/pkg/errs"

	"github.com/google/uuid"
)

var ErrRedemptionNotFound = errs.New("redemption not found")

// RedemptionView is the read model served to clients, including the joined
// reward name for display.
type RedemptionView struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	RewardID       uuid.UUID
	RewardName     string
	Code           string
	PointsValue    int64
	RedeemedAt     time.Time
	ExpiresAt      time.Time
	IsUsed         bool
	IsExpired      bool
	PointsRefunded bool
}

type RedemptionReadStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RedemptionView, error)
	// ActiveByUser returns the derived active set: NOT is_used AND NOT
	// is_expired, newest first. Never materialized.
	ActiveByUser(ctx context.Context, userID uuid.UUID) ([]*RedemptionView, error)
}

type RedemptionQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*RedemptionView, error)
	ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RedemptionView, error)
}

type redemptionQueriesImpl struct {
	store RedemptionReadStore
}

func NewRedemptionQueries(store RedemptionReadStore) RedemptionQueries {
	return &redemptionQueriesImpl{store: store}
}

func (q *redemptionQueriesImpl) GetByID(ctx context.Context, id uuid.UUID) (*RedemptionView, error) {
	view, err := q.store.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return view, nil
}

func (q *redemptionQueriesImpl) ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RedemptionView, error) {
	return q.store.ActiveByUser(ctx, userID)
}
