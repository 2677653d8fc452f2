package shared

// Redemption change-feed event names. Emitted through
// RedemptionRepository.NotifyChange and fanned out to stream subscribers.
const (
	RedemptionEventCreated  = "created"
	RedemptionEventUsed     = "used"
	RedemptionEventExpired  = "expired"
	RedemptionEventRefunded = "refunded"
)
