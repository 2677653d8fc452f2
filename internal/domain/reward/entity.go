package reward

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidPointsCost = errors.New("points cost must be positive")
	ErrInactive          = errors.New("reward is not redeemable")
)

// Reward is a catalog entry users spend points on.
type Reward struct {
	id         uuid.UUID
	name       string
	pointsCost int64
	isActive   bool
}

func NewReward(id uuid.UUID, name string, pointsCost int64, isActive bool) (*Reward, error) {
	if pointsCost <= 0 {
		return nil, ErrInvalidPointsCost
	}
	return &Reward{
		id:         id,
		name:       name,
		pointsCost: pointsCost,
		isActive:   isActive,
	}, nil
}

func (r *Reward) ID() uuid.UUID     { return r.id }
func (r *Reward) Name() string      { return r.name }
func (r *Reward) PointsCost() int64 { return r.pointsCost }
func (r *Reward) IsActive() bool    { return r.isActive }

// ValidateRedeemable guards the redemption request path.
func (r *Reward) ValidateRedeemable() error {
	if !r.isActive {
		return ErrInactive
	}
	return nil
}
