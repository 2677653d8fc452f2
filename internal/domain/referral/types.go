package referral

import "errors"

var (
	ErrInvalidCode  = errors.New("referral code has invalid format")
	ErrSelfReferral = errors.New("referrer cannot accept own code")
)

// StatusAccepted is the only acceptance status; rejected attempts leave no row.
const StatusAccepted = "accepted"
