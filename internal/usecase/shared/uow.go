package shared

import (
	"context"
	"time"

	"loyalty-core/internal/domain/redemption"
	"loyalty-core/internal/domain/referral"
	"loyalty-core/internal/infra/db"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// WithDB: Single query operations using implicit transactions
	WithDB(ctx context.Context, fn func(ctx context.Context, db db.DBTX) error) error
}

type Tx interface {
	Ledger() LedgerRepository
	Redemptions() RedemptionRepository
	Referrals() ReferralRepository
	Idempotency() IdempotencyRepository
	Notifications() NotificationRepository
	DB() db.DBTX
}

// LedgerRepository is the only mutation path for point balances. Adjust is a
// single conditional UPDATE; callers never read-modify-write a balance.
type LedgerRepository interface {
	// Adjust applies delta atomically. A debit that would drive the balance
	// negative fails with KindPreconditionFailed and changes nothing.
	Adjust(ctx context.Context, db db.DBTX, userID uuid.UUID, delta int64) (int64, error)
	// AdjustBelowCeiling credits only while the current balance is below
	// ceiling, evaluated against the live row in the same statement.
	AdjustBelowCeiling(ctx context.Context, db db.DBTX, userID uuid.UUID, delta, ceiling int64) (int64, error)
	Balance(ctx context.Context, db db.DBTX, userID uuid.UUID) (int64, error)
}

// RefundTarget carries what the refund transaction needs after the expiry
// transition succeeds.
type RefundTarget struct {
	RedemptionID uuid.UUID
	UserID       uuid.UUID
	PointsValue  int64
}

type RedemptionRepository interface {
	Create(ctx context.Context, db db.DBTX, r *redemption.Redemption) error
	// MarkUsed consumes the claim; guarded by NOT is_used AND NOT is_expired.
	// Returns the owning user for change notification.
	MarkUsed(ctx context.Context, db db.DBTX, id uuid.UUID, at time.Time) (uuid.UUID, error)
	// MarkExpired transitions is_expired false→true once the stored deadline
	// has passed; ok=false when the guard (NOT is_expired AND NOT is_used AND
	// expires_at <= now) did not match, which is the expected outcome for
	// redundant trigger firings and premature client hints.
	MarkExpired(ctx context.Context, db db.DBTX, id uuid.UUID, now time.Time) (RefundTarget, bool, error)
	// MarkRefunded transitions points_refunded false→true; ok=false when the
	// record was already refunded.
	MarkRefunded(ctx context.Context, db db.DBTX, id uuid.UUID) (bool, error)
	// OverdueIDs lists records past expires_at that have not transitioned yet.
	OverdueIDs(ctx context.Context, db db.DBTX, userID uuid.UUID, now time.Time) ([]uuid.UUID, error)
	// OverdueIDsAll is the reconciliation variant scanning across users.
	OverdueIDsAll(ctx context.Context, db db.DBTX, now time.Time, limit int32) ([]uuid.UUID, error)
	// NotifyChange emits a change-feed event; the NOTIFY is part of the
	// surrounding transaction and only fires on commit.
	NotifyChange(ctx context.Context, db db.DBTX, userID, id uuid.UUID, event string) error
}

type ReferralCodeSnapshot struct {
	Code       string
	ReferrerID uuid.UUID
	CreatedAt  time.Time
}

type ReferralRepository interface {
	// CreateCode fails with KindDuplicateKey when the generated code collides.
	CreateCode(ctx context.Context, db db.DBTX, code *referral.Code) error
	FindCode(ctx context.Context, db db.DBTX, code string) (*ReferralCodeSnapshot, error)
	// MarkReferred inserts the receiver-keyed "already referred" marker.
	// ok=false when the marker already exists; insert-if-absent, never
	// check-then-insert.
	MarkReferred(ctx context.Context, db db.DBTX, receiverID uuid.UUID, code string, at time.Time) (bool, error)
	// RecordAcceptance inserts the (code, receiver) acceptance row with the
	// same conflict-driven semantics.
	RecordAcceptance(ctx context.Context, db db.DBTX, code string, receiverID, referrerID uuid.UUID, at time.Time) (bool, error)
}

type IdempotencyRecord struct {
	Key                uuid.UUID
	UserID             uuid.UUID
	Status             string
	RequestHash        string
	ResultRedemptionID *uuid.UUID
	ExpiresAt          time.Time
}

type IdempotencyRepository interface {
	TryInsert(ctx context.Context, db db.DBTX, key, userID uuid.UUID, endpoint, requestHash string, expiresAt time.Time) error
	Get(ctx context.Context, db db.DBTX, key, userID uuid.UUID) (*IdempotencyRecord, error)
	UpdateStatusCompleted(ctx context.Context, db db.DBTX, key, userID uuid.UUID, responseHash string, redemptionID uuid.UUID) error
}

type NotificationRepository interface {
	CreateJob(ctx context.Context, db db.DBTX, kind, topic string, payload []byte, runAt time.Time) error
}
