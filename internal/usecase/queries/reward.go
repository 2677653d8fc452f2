package queries

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/pkg/errs"

	"github.com/google/uuid"
)

var ErrRewardNotFound = errs.New("reward not found")

type RewardView struct {
	ID          uuid.UUID
	Name        string
	Description string
	PointsCost  int64
	IsActive    bool
}

type RewardReadStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RewardView, error)
	ListActive(ctx context.Context) ([]*RewardView, error)
}

type RewardQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*RewardView, error)
	ListActive(ctx context.Context) ([]*RewardView, error)
}

type rewardQueriesImpl struct {
	store RewardReadStore
}

func NewRewardQueries(store RewardReadStore) RewardQueries {
	return &rewardQueriesImpl{store: store}
}

func (q *rewardQueriesImpl) GetByID(ctx context.Context, id uuid.UUID) (*RewardView, error) {
	view, err := q.store.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return view, nil
}

func (q *rewardQueriesImpl) ListActive(ctx context.Context) ([]*RewardView, error) {
	return q.store.ListActive(ctx)
}
