package redemption

import "errors"

var (
	ErrInvalidPointsValue = errors.New("points value must be positive")
	ErrInvalidClaimCode   = errors.New("claim code has invalid length")
	ErrAlreadyUsed        = errors.New("redemption already used")
	ErrAlreadyExpired     = errors.New("redemption already expired")
	ErrNotExpired         = errors.New("redemption is not expired")
	ErrAlreadyRefunded    = errors.New("redemption already refunded")
)
