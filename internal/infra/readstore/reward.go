package readstore

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/usecase/queries"

	"github.com/google/uuid"
)

type RewardReadStore struct {
	db db.DBTX
}

func NewRewardReadStore(dbtx db.DBTX) *RewardReadStore {
	return &RewardReadStore{db: dbtx}
}

func (s *RewardReadStore) FindByID(ctx context.Context, id uuid.UUID) (*queries.RewardView, error) {
	var v queries.RewardView
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, points_cost, is_active FROM rewards WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Name, &v.Description, &v.PointsCost, &v.IsActive)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, infra.WrapRepoErr("reward not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find reward", err)
	}
	return &v, nil
}

func (s *RewardReadStore) ListActive(ctx context.Context) ([]*queries.RewardView, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, points_cost, is_active FROM rewards
WHERE is_active ORDER BY points_cost ASC, name ASC`,
	)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list rewards", err)
	}
	defer rows.Close()

	views := make([]*queries.RewardView, 0)
	for rows.Next() {
		var v queries.RewardView
		if err := rows.Scan(&v.ID, &v.Name, &v.Description, &v.PointsCost, &v.IsActive); err != nil {
			return nil, infra.WrapRepoErr("failed to scan reward", err)
		}
		views = append(views, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate rewards", err)
	}
	return views, nil
}
