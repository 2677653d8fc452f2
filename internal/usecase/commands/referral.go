package commands

import (
	"context"
	"encoding/json"
	"errors"

	"loyalty-core/internal/domain/referral"
	"loyalty-core/internal/infra"
	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/pkg/errs"
	"loyalty-core/internal/pkg/ratelimit"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

var (
	ErrInvalidReferralCode = errs.New("invalid referral code")
	ErrCodeNotFound        = errs.New("referral code not found")
	ErrSelfReferral        = errs.New("cannot accept own referral code")
	ErrAlreadyReferred     = errs.New("receiver already referred")
	ErrReceiverNotEligible = errs.New("receiver not eligible for referral")
	ErrRateLimited         = errs.New("rate limit exceeded")
	ErrRateLimitCheck      = errs.New("rate limit check failed")
)

// codeGenerationAttempts bounds retries on the (astronomically unlikely)
// generated-code collision.
const codeGenerationAttempts = 3

const (
	rateLimitActionCreateCode = "referral_create"
	rateLimitActionAccept     = "referral_accept"
)

type CreateCodeResult struct {
	Code       string
	ReferrerID uuid.UUID
}

type AcceptReferralResult struct {
	Status         string
	ReferrerID     uuid.UUID
	ReceiverID     uuid.UUID
	ReferrerReward int64
	ReceiverReward int64
}

// ReferralCommands runs the referral program. Acceptance applies a fixed
// guardrail order: self referral, already referred, receiver eligibility,
// rate limit. The first failing guardrail names the rejection, and a rejected
// attempt leaves no partial state behind.
type ReferralCommands interface {
	CreateCode(ctx context.Context, referrerID uuid.UUID) (*CreateCodeResult, error)
	AcceptReferral(ctx context.Context, rawCode string, receiverID uuid.UUID) (*AcceptReferralResult, error)
}

type referralCommandsImpl struct {
	uow     shared.UnitOfWork
	limiter ratelimit.Limiter
	loyalty config.LoyaltyConfig
	clock   clock.Clock
}

func NewReferralCommands(
	uow shared.UnitOfWork,
	limiter ratelimit.Limiter,
	loyalty config.LoyaltyConfig,
	clock clock.Clock,
) ReferralCommands {
	return &referralCommandsImpl{
		uow:     uow,
		limiter: limiter,
		loyalty: loyalty,
		clock:   clock,
	}
}

func (r *referralCommandsImpl) CreateCode(ctx context.Context, referrerID uuid.UUID) (*CreateCodeResult, error) {
	allowed, err := r.limiter.Allow(ctx, ratelimit.Key(rateLimitActionCreateCode, referrerID.String()), r.loyalty.ReferralRateLimit, r.loyalty.ReferralRateWindow)
	if err != nil {
		return nil, errs.Mark(err, ErrRateLimitCheck)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	var created *referral.Code
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := referral.NewCode(referrerID, r.clock.Now())
		if err != nil {
			return nil, errs.Mark(err, ErrDomainValidation)
		}

		err = r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			return tx.Referrals().CreateCode(ctx, tx.DB(), code)
		})
		if err == nil {
			created = code
			break
		}
		if infra.IsKind(err, infra.KindDuplicateKey) {
			continue
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	if created == nil {
		return nil, errs.Mark(errs.New("code generation kept colliding"), ErrDatabaseOperationFailed)
	}

	return &CreateCodeResult{Code: created.Value(), ReferrerID: referrerID}, nil
}

func (r *referralCommandsImpl) AcceptReferral(ctx context.Context, rawCode string, receiverID uuid.UUID) (*AcceptReferralResult, error) {
	codeValue, err := referral.NormalizeCodeInput(rawCode)
	if err != nil {
		return nil, ErrInvalidReferralCode
	}

	var result *AcceptReferralResult
	err = r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		snapshot, err := tx.Referrals().FindCode(ctx, tx.DB(), codeValue)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return ErrCodeNotFound
			}
			return err
		}

		// Guardrail 1: self referral.
		code, err := referral.ReconstructCode(snapshot.Code, snapshot.ReferrerID, snapshot.CreatedAt)
		if err != nil {
			return err
		}
		if err := code.CheckReceiver(receiverID); err != nil {
			return ErrSelfReferral
		}

		now := r.clock.Now()

		// Guardrail 2: one accepted referral per receiver, ever. The marker
		// insert is conflict-driven, so two concurrent accepts for the same
		// receiver cannot both pass.
		ok, err := tx.Referrals().MarkReferred(ctx, tx.DB(), receiverID, codeValue, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReferred
		}

		// Guardrail 3: eligibility against the live balance, in the same
		// statement as the credit.
		if _, err := tx.Ledger().AdjustBelowCeiling(ctx, tx.DB(), receiverID, r.loyalty.ReceiverRewardPoints, r.loyalty.EligibilityCeiling); err != nil {
			if infra.IsKind(err, infra.KindPreconditionFailed) {
				return ErrReceiverNotEligible
			}
			return err
		}

		// Guardrail 4: rate limit, evaluated last so a denial reports
		// rate_limited only when every other guardrail passed. Returning the
		// error rolls back the marker and the credit.
		allowed, err := r.limiter.Allow(ctx, ratelimit.Key(rateLimitActionAccept, receiverID.String()), r.loyalty.ReferralRateLimit, r.loyalty.ReferralRateWindow)
		if err != nil {
			return errs.Mark(err, ErrRateLimitCheck)
		}
		if !allowed {
			return ErrRateLimited
		}

		if _, err := tx.Ledger().Adjust(ctx, tx.DB(), snapshot.ReferrerID, r.loyalty.ReferrerRewardPoints); err != nil {
			return err
		}

		if _, err := tx.Referrals().RecordAcceptance(ctx, tx.DB(), codeValue, receiverID, snapshot.ReferrerID, now); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"code":        codeValue,
			"referrer_id": snapshot.ReferrerID,
			"receiver_id": receiverID,
		})
		if err != nil {
			return err
		}
		if err := tx.Notifications().CreateJob(ctx, tx.DB(), "push", "referral_accepted", payload, now); err != nil {
			return err
		}

		result = &AcceptReferralResult{
			Status:         referral.StatusAccepted,
			ReferrerID:     snapshot.ReferrerID,
			ReceiverID:     receiverID,
			ReferrerReward: r.loyalty.ReferrerRewardPoints,
			ReceiverReward: r.loyalty.ReceiverRewardPoints,
		}
		return nil
	})
	if err != nil {
		for _, sentinel := range []error{ErrCodeNotFound, ErrSelfReferral, ErrAlreadyReferred, ErrReceiverNotEligible, ErrRateLimited, ErrRateLimitCheck} {
			if errors.Is(err, sentinel) {
				return nil, sentinel
			}
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return result, nil
}
