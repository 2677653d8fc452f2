package response

import (
	"loyalty-core/internal/usecase/queries"

	"github.com/google/uuid"
)

type RewardResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PointsCost  int64     `json:"pointsCost"`
}

func FromRewardView(v *queries.RewardView) *RewardResponse {
	return &RewardResponse{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		PointsCost:  v.PointsCost,
	}
}

type BalanceResponse struct {
	UserID  uuid.UUID `json:"userId"`
	Balance int64     `json:"balance"`
}
