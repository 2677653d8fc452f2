package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"loyalty-core/internal/domain/redemption"
	"loyalty-core/internal/domain/reward"
	reqdto "loyalty-core/internal/handler/dto/request"
	"loyalty-core/internal/infra"
	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/pkg/errs"
	"loyalty-core/internal/usecase/queries"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

var (
	ErrRewardNotFound          = errs.New("reward not found")
	ErrRewardInactive          = errs.New("reward inactive")
	ErrInsufficientBalance     = errs.New("insufficient point balance")
	ErrRedemptionNotFound      = errs.New("redemption not found")
	ErrAlreadyTerminal         = errs.New("redemption already used or expired")
	ErrDuplicateRequest        = errs.New("duplicate request with different payload")
	ErrIdempotencyInProgress   = errs.New("idempotency in progress")
	ErrIdempotencyCheckFailed  = errs.New("idempotency check failed")
	ErrDomainValidation        = errs.New("domain validation error")
	ErrDatabaseOperationFailed = errs.New("database operation failed")
)

const (
	idempotencyStatusProcessing = "processing"
	idempotencyStatusCompleted  = "completed"
)

type RequestRedemptionResult struct {
	Redemption *queries.RedemptionView
	IsReplayed bool
}

type RedemptionCommands interface {
	// RequestRedemption debits the points cost and creates an active
	// redemption atomically. Safe to retry with the same idempotency key.
	RequestRedemption(ctx context.Context, req reqdto.CreateRedemptionRequest, userID uuid.UUID, idempotencyKey uuid.UUID) (*RequestRedemptionResult, error)
	// ConsumeRedemption marks the claim used at the point of sale. Exactly one
	// caller wins; later attempts get ErrAlreadyTerminal.
	ConsumeRedemption(ctx context.Context, redemptionID uuid.UUID) error
}

type redemptionCommandsImpl struct {
	uow               shared.UnitOfWork
	rewardQueries     queries.RewardQueries
	redemptionQueries queries.RedemptionQueries
	loyalty           config.LoyaltyConfig
	clock             clock.Clock
}

func NewRedemptionCommands(
	uow shared.UnitOfWork,
	rewardQueries queries.RewardQueries,
	redemptionQueries queries.RedemptionQueries,
	loyalty config.LoyaltyConfig,
	clock clock.Clock,
) RedemptionCommands {
	return &redemptionCommandsImpl{
		uow:               uow,
		rewardQueries:     rewardQueries,
		redemptionQueries: redemptionQueries,
		loyalty:           loyalty,
		clock:             clock,
	}
}

func (r *redemptionCommandsImpl) RequestRedemption(
	ctx context.Context,
	req reqdto.CreateRedemptionRequest,
	userID uuid.UUID,
	idempotencyKey uuid.UUID,
) (*RequestRedemptionResult, error) {
	requestHash := calculateRequestHash(req)
	keyExpiresAt := r.clock.Now().Add(24 * time.Hour)

	replayID, err := r.claimIdempotencyKey(ctx, idempotencyKey, userID, requestHash, keyExpiresAt)
	if err != nil {
		return nil, err
	}
	if replayID != nil {
		view, err := r.redemptionQueries.GetByID(ctx, *replayID)
		if err != nil {
			return nil, errs.Mark(err, ErrIdempotencyCheckFailed)
		}
		return &RequestRedemptionResult{Redemption: view, IsReplayed: true}, nil
	}

	view, err := r.createNewRedemption(ctx, req, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return &RequestRedemptionResult{Redemption: view, IsReplayed: false}, nil
}

// claimIdempotencyKey inserts the key if absent, then inspects the winning
// row. Returns the redemption ID to replay when a completed row already
// exists, or nil when this call owns the key.
func (r *redemptionCommandsImpl) claimIdempotencyKey(
	ctx context.Context,
	idempotencyKey, userID uuid.UUID,
	requestHash string,
	expiresAt time.Time,
) (*uuid.UUID, error) {
	var existing *shared.IdempotencyRecord
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		if err := tx.Idempotency().TryInsert(ctx, tx.DB(), idempotencyKey, userID, "POST /redemptions", requestHash, expiresAt); err != nil {
			return err
		}
		record, err := tx.Idempotency().Get(ctx, tx.DB(), idempotencyKey, userID)
		if err != nil {
			return err
		}
		existing = record
		return nil
	})
	if err != nil {
		return nil, errs.Mark(err, ErrIdempotencyCheckFailed)
	}

	switch existing.Status {
	case idempotencyStatusCompleted:
		if existing.RequestHash != requestHash {
			return nil, ErrDuplicateRequest
		}
		if existing.ResultRedemptionID == nil {
			return nil, errs.New("completed request missing result redemption ID")
		}
		return existing.ResultRedemptionID, nil

	case idempotencyStatusProcessing:
		if existing.RequestHash != requestHash {
			return nil, ErrDuplicateRequest
		}
		// This call owns the freshly inserted row, or a concurrent request
		// with the same key is still in flight. Both proceed identically: the
		// conditional UpdateStatusCompleted lets only one transaction finish.
		return nil, nil

	default:
		return nil, errs.New("invalid idempotency key status")
	}
}

func (r *redemptionCommandsImpl) createNewRedemption(
	ctx context.Context,
	req reqdto.CreateRedemptionRequest,
	userID, idempotencyKey uuid.UUID,
) (*queries.RedemptionView, error) {
	rewardView, err := r.rewardQueries.GetByID(ctx, req.RewardID)
	if err != nil {
		if errors.Is(err, queries.ErrRewardNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	rw, err := reward.NewReward(rewardView.ID, rewardView.Name, rewardView.PointsCost, rewardView.IsActive)
	if err != nil {
		return nil, errs.Mark(err, ErrDomainValidation)
	}
	if err := rw.ValidateRedeemable(); err != nil {
		return nil, ErrRewardInactive
	}

	entity, err := redemption.NewRedemption(userID, rw.ID(), rw.PointsCost(), r.clock.Now(), r.loyalty.RedemptionTTL)
	if err != nil {
		return nil, errs.Mark(err, ErrDomainValidation)
	}

	err = r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		// Debit first: a conditional UPDATE that fails atomically when the
		// balance cannot cover the cost.
		if _, err := tx.Ledger().Adjust(ctx, tx.DB(), userID, -entity.PointsValue()); err != nil {
			if infra.IsKind(err, infra.KindPreconditionFailed) {
				return ErrInsufficientBalance
			}
			return err
		}

		if err := tx.Redemptions().Create(ctx, tx.DB(), entity); err != nil {
			return err
		}

		if err := tx.Redemptions().NotifyChange(ctx, tx.DB(), userID, entity.ID(), shared.RedemptionEventCreated); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"redemption_id": entity.ID(),
			"user_id":       userID,
			"reward_name":   rw.Name(),
			"claim_code":    entity.Code().String(),
			"expires_at":    entity.ExpiresAt(),
		})
		if err != nil {
			return err
		}
		if err := tx.Notifications().CreateJob(ctx, tx.DB(), "email", "redemption_created", payload, r.clock.Now()); err != nil {
			return err
		}

		responseHash := calculateRequestHash(entity.ID())
		return tx.Idempotency().UpdateStatusCompleted(ctx, tx.DB(), idempotencyKey, userID, responseHash, entity.ID())
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		// A failed completed-transition means a concurrent request holding the
		// same key finished (or is finishing) first; its writes win.
		if infra.IsKind(err, infra.KindPreconditionFailed) {
			return nil, ErrIdempotencyInProgress
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	view, err := r.redemptionQueries.GetByID(ctx, entity.ID())
	if err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return view, nil
}

func (r *redemptionCommandsImpl) ConsumeRedemption(ctx context.Context, redemptionID uuid.UUID) error {
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		ownerID, err := tx.Redemptions().MarkUsed(ctx, tx.DB(), redemptionID, r.clock.Now())
		if err != nil {
			return err
		}
		return tx.Redemptions().NotifyChange(ctx, tx.DB(), ownerID, redemptionID, shared.RedemptionEventUsed)
	})
	if err != nil {
		if infra.IsKind(err, infra.KindPreconditionFailed) {
			// Guard failures cover both unknown IDs and already-terminal
			// records; a read distinguishes them for the caller.
			if _, qerr := r.redemptionQueries.GetByID(ctx, redemptionID); qerr != nil {
				return ErrRedemptionNotFound
			}
			return ErrAlreadyTerminal
		}
		return errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return nil
}

func calculateRequestHash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
