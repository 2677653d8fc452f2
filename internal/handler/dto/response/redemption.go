package response

import (
	"time"

	"loyalty-core/internal/usecase/queries"

	"github.com/google/uuid"
)

type RedemptionResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"userId"`
	RewardID       uuid.UUID `json:"rewardId"`
	RewardName     string    `json:"rewardName"`
	Code           string    `json:"code"`
	PointsValue    int64     `json:"pointsValue"`
	RedeemedAt     time.Time `json:"redeemedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsUsed         bool      `json:"isUsed"`
	IsExpired      bool      `json:"isExpired"`
	PointsRefunded bool      `json:"pointsRefunded"`
}

func FromRedemptionView(v *queries.RedemptionView) *RedemptionResponse {
	return &RedemptionResponse{
		ID:             v.ID,
		UserID:         v.UserID,
		RewardID:       v.RewardID,
		RewardName:     v.RewardName,
		Code:           v.Code,
		PointsValue:    v.PointsValue,
		RedeemedAt:     v.RedeemedAt,
		ExpiresAt:      v.ExpiresAt,
		IsUsed:         v.IsUsed,
		IsExpired:      v.IsExpired,
		PointsRefunded: v.PointsRefunded,
	}
}

func FromRedemptionViews(views []*queries.RedemptionView) []*RedemptionResponse {
	out := make([]*RedemptionResponse, len(views))
	for i, v := range views {
		out[i] = FromRedemptionView(v)
	}
	return out
}

// RedemptionEventResponse is one server-sent event on the active-set stream.
type RedemptionEventResponse struct {
	RedemptionID uuid.UUID `json:"redemptionId"`
	Event        string    `json:"event"`
}
