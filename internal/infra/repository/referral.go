package repository

import (
	"context"
	"time"

	"loyalty-core/internal/domain/referral"
	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

// ReferralRepository enforces both uniqueness layers through key existence:
// referred_users is keyed by receiver alone (one accepted referral per
// receiver system-wide), referral_acceptances by (code, receiver).
type ReferralRepository struct{}

func NewReferralRepository() *ReferralRepository {
	return &ReferralRepository{}
}

func (r *ReferralRepository) CreateCode(ctx context.Context, dbtx db.DBTX, code *referral.Code) error {
	_, err := dbtx.Exec(ctx,
		"INSERT INTO referral_codes (code, referrer_id, created_at) VALUES ($1, $2, $3)",
		code.Value(), code.ReferrerID(), code.CreatedAt())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return infra.WrapRepoErr("referral code already exists", err, infra.KindDuplicateKey)
		}
		return infra.WrapRepoErr("failed to create referral code", err)
	}
	return nil
}

func (r *ReferralRepository) FindCode(ctx context.Context, dbtx db.DBTX, code string) (*shared.ReferralCodeSnapshot, error) {
	snap := &shared.ReferralCodeSnapshot{}
	err := dbtx.QueryRow(ctx,
		"SELECT code, referrer_id, created_at FROM referral_codes WHERE code = $1",
		code).Scan(&snap.Code, &snap.ReferrerID, &snap.CreatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, infra.WrapRepoErr("referral code not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find referral code", err)
	}
	return snap, nil
}

const markReferredSQL = `
INSERT INTO referred_users (receiver_id, code, accepted_at)
VALUES ($1, $2, $3)
ON CONFLICT (receiver_id) DO NOTHING`

func (r *ReferralRepository) MarkReferred(ctx context.Context, dbtx db.DBTX, receiverID uuid.UUID, code string, at time.Time) (bool, error) {
	tag, err := dbtx.Exec(ctx, markReferredSQL, receiverID, code, at)
	if err != nil {
		return false, infra.WrapRepoErr("failed to mark receiver referred", err)
	}
	return tag.RowsAffected() == 1, nil
}

const recordAcceptanceSQL = `
INSERT INTO referral_acceptances (code, receiver_id, referrer_id, status, accepted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code, receiver_id) DO NOTHING`

func (r *ReferralRepository) RecordAcceptance(ctx context.Context, dbtx db.DBTX, code string, receiverID, referrerID uuid.UUID, at time.Time) (bool, error) {
	tag, err := dbtx.Exec(ctx, recordAcceptanceSQL, code, receiverID, referrerID, referral.StatusAccepted, at)
	if err != nil {
		return false, infra.WrapRepoErr("failed to record referral acceptance", err)
	}
	return tag.RowsAffected() == 1, nil
}
