package response

import (
	"loyalty-core/internal/usecase/commands"

	"github.com/google/uuid"
)

type ReferralCodeResponse struct {
	Code string `json:"code"`
}

type AcceptReferralResponse struct {
	Status         string    `json:"status"`
	ReferrerID     uuid.UUID `json:"referrerId"`
	ReferrerReward int64     `json:"referrerReward"`
	ReceiverReward int64     `json:"receiverReward"`
}

func FromAcceptReferralResult(r *commands.AcceptReferralResult) *AcceptReferralResponse {
	return &AcceptReferralResponse{
		Status:         r.Status,
		ReferrerID:     r.ReferrerID,
		ReferrerReward: r.ReferrerReward,
		ReceiverReward: r.ReceiverReward,
	}
}
