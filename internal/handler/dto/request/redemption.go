package request

import "github.com/google/uuid"

type CreateRedemptionRequest struct {
	RewardID uuid.UUID `json:"reward_id" binding:"required"`
}
