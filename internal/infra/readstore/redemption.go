package readstore

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RedemptionReadStore struct {
	db db.DBTX
}

func NewRedemptionReadStore(dbtx db.DBTX) *RedemptionReadStore {
	return &RedemptionReadStore{db: dbtx}
}

const redemptionSelectSQL = `
SELECT r.id, r.user_id, r.reward_id, w.name, r.code, r.points_value,
       r.redeemed_at, r.expires_at, r.is_used, r.is_expired, r.points_refunded
FROM redemptions r
JOIN rewards w ON w.id = r.reward_id
`

func (s *RedemptionReadStore) FindByID(ctx context.Context, id uuid.UUID) (*queries.RedemptionView, error) {
	row := s.db.QueryRow(ctx, redemptionSelectSQL+"WHERE r.id = $1", id)
	view, err := scanRedemption(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, infra.WrapRepoErr("redemption not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find redemption", err)
	}
	return view, nil
}

func (s *RedemptionReadStore) ActiveByUser(ctx context.Context, userID uuid.UUID) ([]*queries.RedemptionView, error) {
	rows, err := s.db.Query(ctx,
		redemptionSelectSQL+`WHERE r.user_id = $1 AND NOT r.is_used AND NOT r.is_expired
ORDER BY r.redeemed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list active redemptions", err)
	}
	defer rows.Close()

	views := make([]*queries.RedemptionView, 0)
	for rows.Next() {
		view, err := scanRedemption(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan redemption", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate redemptions", err)
	}
	return views, nil
}

func scanRedemption(row pgx.Row) (*queries.RedemptionView, error) {
	var v queries.RedemptionView
	err := row.Scan(
		&v.ID, &v.UserID, &v.RewardID, &v.RewardName, &v.Code, &v.PointsValue,
		&v.RedeemedAt, &v.ExpiresAt, &v.IsUsed, &v.IsExpired, &v.PointsRefunded,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
