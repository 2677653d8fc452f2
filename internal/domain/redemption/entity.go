package redemption

import (
	"time"

	"github.com/google/uuid"
)

// Redemption is a time-bounded claim produced by spending points on a reward.
// Terminal fields only ever transition false→true, and refunding requires the
// expiry transition to have happened first; the stored record enforces the
// same rules with conditional updates.
type Redemption struct {
	id             uuid.UUID
	userID         uuid.UUID
	rewardID       uuid.UUID
	code           ClaimCode
	pointsValue    int64
	redeemedAt     time.Time
	expiresAt      time.Time
	isUsed         bool
	isExpired      bool
	pointsRefunded bool
}

func NewRedemption(userID, rewardID uuid.UUID, pointsValue int64, now time.Time, ttl time.Duration) (*Redemption, error) {
	if pointsValue <= 0 {
		return nil, ErrInvalidPointsValue
	}

	code, err := NewClaimCode()
	if err != nil {
		return nil, err
	}

	return &Redemption{
		id:          uuid.New(),
		userID:      userID,
		rewardID:    rewardID,
		code:        code,
		pointsValue: pointsValue,
		redeemedAt:  now,
		expiresAt:   now.Add(ttl),
	}, nil
}

func Reconstruct(id, userID, rewardID uuid.UUID, code ClaimCode, pointsValue int64, redeemedAt, expiresAt time.Time, isUsed, isExpired, pointsRefunded bool) *Redemption {
	return &Redemption{
		id:             id,
		userID:         userID,
		rewardID:       rewardID,
		code:           code,
		pointsValue:    pointsValue,
		redeemedAt:     redeemedAt,
		expiresAt:      expiresAt,
		isUsed:         isUsed,
		isExpired:      isExpired,
		pointsRefunded: pointsRefunded,
	}
}

func (r *Redemption) ID() uuid.UUID         { return r.id }
func (r *Redemption) UserID() uuid.UUID     { return r.userID }
func (r *Redemption) RewardID() uuid.UUID   { return r.rewardID }
func (r *Redemption) Code() ClaimCode       { return r.code }
func (r *Redemption) PointsValue() int64    { return r.pointsValue }
func (r *Redemption) RedeemedAt() time.Time { return r.redeemedAt }
func (r *Redemption) ExpiresAt() time.Time  { return r.expiresAt }
func (r *Redemption) IsUsed() bool          { return r.isUsed }
func (r *Redemption) IsExpired() bool       { return r.isExpired }
func (r *Redemption) PointsRefunded() bool  { return r.pointsRefunded }

// Active reports whether the redemption still belongs in the user's
// active set, i.e. it is neither consumed nor expired.
func (r *Redemption) Active() bool {
	return !r.isUsed && !r.isExpired
}

// Overdue reports whether the expiry deadline has passed while the
// record has not yet transitioned.
func (r *Redemption) Overdue(now time.Time) bool {
	return r.Active() && !now.Before(r.expiresAt)
}

// MarkUsed consumes the claim at the point of sale. Terminal: a used
// redemption can never expire or be refunded afterwards.
func (r *Redemption) MarkUsed() error {
	if r.isUsed {
		return ErrAlreadyUsed
	}
	if r.isExpired {
		return ErrAlreadyExpired
	}
	r.isUsed = true
	return nil
}

// MarkExpired transitions the record out of the active set. The transition
// happens at most once and never on a consumed redemption.
func (r *Redemption) MarkExpired() error {
	if r.isUsed {
		return ErrAlreadyUsed
	}
	if r.isExpired {
		return ErrAlreadyExpired
	}
	r.isExpired = true
	return nil
}

// MarkRefunded records the point credit for an expired redemption.
// Requires the expiry transition first and happens at most once.
func (r *Redemption) MarkRefunded() error {
	if !r.isExpired {
		return ErrNotExpired
	}
	if r.pointsRefunded {
		return ErrAlreadyRefunded
	}
	r.pointsRefunded = true
	return nil
}
