//go:build unit

package commands_test

import (
	"context"
	"time"

	"loyalty-core/internal/domain/redemption"
	"loyalty-core/internal/domain/referral"
	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/usecase/queries"
	"loyalty-core/internal/usecase/shared"

	"github.com/google/uuid"
)

func testLoyaltyConfig() config.LoyaltyConfig {
	return config.LoyaltyConfig{
		RedemptionTTL:        15 * time.Minute,
		SweepInterval:        time.Minute,
		ReferrerRewardPoints: 100,
		ReceiverRewardPoints: 25,
		EligibilityCeiling:   50,
		ReferralRateLimit:    5,
		ReferralRateWindow:   time.Minute,
	}
}

// storeState is the in-memory stand-in for the database. fakeUoW snapshots it
// before each transaction and restores the snapshot when the transaction
// function returns an error, mirroring a rollback.
type storeState struct {
	balances    map[uuid.UUID]int64
	redemptions map[uuid.UUID]*redemptionRow
	codes       map[string]shared.ReferralCodeSnapshot
	referred    map[uuid.UUID]string
	acceptances map[acceptanceKey]bool
	idempotency map[idemKey]*shared.IdempotencyRecord
	jobs        []notificationJob
	events      []feedEvent
}

type redemptionRow struct {
	id             uuid.UUID
	userID         uuid.UUID
	rewardID       uuid.UUID
	code           string
	pointsValue    int64
	redeemedAt     time.Time
	expiresAt      time.Time
	isUsed         bool
	isExpired      bool
	pointsRefunded bool
}

type acceptanceKey struct {
	code       string
	receiverID uuid.UUID
}

type idemKey struct {
	key    uuid.UUID
	userID uuid.UUID
}

type notificationJob struct {
	kind  string
	topic string
}

type feedEvent struct {
	userID       uuid.UUID
	redemptionID uuid.UUID
	event        string
}

func newStoreState() *storeState {
	return &storeState{
		balances:    make(map[uuid.UUID]int64),
		redemptions: make(map[uuid.UUID]*redemptionRow),
		codes:       make(map[string]shared.ReferralCodeSnapshot),
		referred:    make(map[uuid.UUID]string),
		acceptances: make(map[acceptanceKey]bool),
		idempotency: make(map[idemKey]*shared.IdempotencyRecord),
	}
}

func (s *storeState) clone() *storeState {
	c := newStoreState()
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.redemptions {
		row := *v
		c.redemptions[k] = &row
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.referred {
		c.referred[k] = v
	}
	for k, v := range s.acceptances {
		c.acceptances[k] = v
	}
	for k, v := range s.idempotency {
		rec := *v
		c.idempotency[k] = &rec
	}
	c.jobs = append(c.jobs, s.jobs...)
	c.events = append(c.events, s.events...)
	return c
}

func (s *storeState) restore(from *storeState) {
	s.balances = from.balances
	s.redemptions = from.redemptions
	s.codes = from.codes
	s.referred = from.referred
	s.acceptances = from.acceptances
	s.idempotency = from.idempotency
	s.jobs = from.jobs
	s.events = from.events
}

func (s *storeState) addRedemption(userID, rewardID uuid.UUID, points int64, redeemedAt, expiresAt time.Time) uuid.UUID {
	id := uuid.New()
	s.redemptions[id] = &redemptionRow{
		id:          id,
		userID:      userID,
		rewardID:    rewardID,
		code:        "TESTCODE",
		pointsValue: points,
		redeemedAt:  redeemedAt,
		expiresAt:   expiresAt,
	}
	return id
}

type fakeUoW struct {
	state *storeState
}

func newFakeUoW() *fakeUoW {
	return &fakeUoW{state: newStoreState()}
}

func (u *fakeUoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	snapshot := u.state.clone()
	if err := fn(ctx, &fakeTx{state: u.state}); err != nil {
		u.state.restore(snapshot)
		return err
	}
	return nil
}

func (u *fakeUoW) WithDB(ctx context.Context, fn func(ctx context.Context, dbtx db.DBTX) error) error {
	return fn(ctx, nil)
}

type fakeTx struct {
	state *storeState
}

func (t *fakeTx) Ledger() shared.LedgerRepository             { return &fakeLedger{state: t.state} }
func (t *fakeTx) Redemptions() shared.RedemptionRepository    { return &fakeRedemptions{state: t.state} }
func (t *fakeTx) Referrals() shared.ReferralRepository        { return &fakeReferrals{state: t.state} }
func (t *fakeTx) Idempotency() shared.IdempotencyRepository   { return &fakeIdempotency{state: t.state} }
func (t *fakeTx) Notifications() shared.NotificationRepository { return &fakeNotifications{state: t.state} }
func (t *fakeTx) DB() db.DBTX                                 { return nil }

type fakeLedger struct {
	state *storeState
}

func (l *fakeLedger) Adjust(_ context.Context, _ db.DBTX, userID uuid.UUID, delta int64) (int64, error) {
	next := l.state.balances[userID] + delta
	if next < 0 {
		return 0, infra.WrapRepoErr("balance cannot cover debit", nil, infra.KindPreconditionFailed)
	}
	l.state.balances[userID] = next
	return next, nil
}

func (l *fakeLedger) AdjustBelowCeiling(_ context.Context, _ db.DBTX, userID uuid.UUID, delta, ceiling int64) (int64, error) {
	if l.state.balances[userID] >= ceiling {
		return 0, infra.WrapRepoErr("balance at or above ceiling", nil, infra.KindPreconditionFailed)
	}
	next := l.state.balances[userID] + delta
	l.state.balances[userID] = next
	return next, nil
}

func (l *fakeLedger) Balance(_ context.Context, _ db.DBTX, userID uuid.UUID) (int64, error) {
	return l.state.balances[userID], nil
}

type fakeRedemptions struct {
	state *storeState
}

func (r *fakeRedemptions) Create(_ context.Context, _ db.DBTX, rec *redemption.Redemption) error {
	if _, exists := r.state.redemptions[rec.ID()]; exists {
		return infra.WrapRepoErr("redemption already exists", nil, infra.KindDuplicateKey)
	}
	r.state.redemptions[rec.ID()] = &redemptionRow{
		id:          rec.ID(),
		userID:      rec.UserID(),
		rewardID:    rec.RewardID(),
		code:        rec.Code().String(),
		pointsValue: rec.PointsValue(),
		redeemedAt:  rec.RedeemedAt(),
		expiresAt:   rec.ExpiresAt(),
	}
	return nil
}

func (r *fakeRedemptions) MarkUsed(_ context.Context, _ db.DBTX, id uuid.UUID, at time.Time) (uuid.UUID, error) {
	row, ok := r.state.redemptions[id]
	if !ok || row.isUsed || row.isExpired || !at.Before(row.expiresAt) {
		return uuid.Nil, infra.WrapRepoErr("redemption is terminal", nil, infra.KindPreconditionFailed)
	}
	row.isUsed = true
	return row.userID, nil
}

func (r *fakeRedemptions) MarkExpired(_ context.Context, _ db.DBTX, id uuid.UUID, now time.Time) (shared.RefundTarget, bool, error) {
	row, ok := r.state.redemptions[id]
	if !ok || row.isUsed || row.isExpired || now.Before(row.expiresAt) {
		return shared.RefundTarget{}, false, nil
	}
	row.isExpired = true
	return shared.RefundTarget{RedemptionID: id, UserID: row.userID, PointsValue: row.pointsValue}, true, nil
}

func (r *fakeRedemptions) MarkRefunded(_ context.Context, _ db.DBTX, id uuid.UUID) (bool, error) {
	row, ok := r.state.redemptions[id]
	if !ok || !row.isExpired || row.pointsRefunded {
		return false, nil
	}
	row.pointsRefunded = true
	return true, nil
}

func (r *fakeRedemptions) OverdueIDs(_ context.Context, _ db.DBTX, userID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, row := range r.state.redemptions {
		if row.userID == userID && !row.isUsed && !row.isExpired && !now.Before(row.expiresAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeRedemptions) OverdueIDsAll(_ context.Context, _ db.DBTX, now time.Time, limit int32) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, row := range r.state.redemptions {
		if !row.isUsed && !row.isExpired && !now.Before(row.expiresAt) {
			ids = append(ids, id)
			if int32(len(ids)) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (r *fakeRedemptions) NotifyChange(_ context.Context, _ db.DBTX, userID, id uuid.UUID, event string) error {
	r.state.events = append(r.state.events, feedEvent{userID: userID, redemptionID: id, event: event})
	return nil
}

type fakeReferrals struct {
	state *storeState
}

func (f *fakeReferrals) CreateCode(_ context.Context, _ db.DBTX, code *referral.Code) error {
	if _, exists := f.state.codes[code.Value()]; exists {
		return infra.WrapRepoErr("code already exists", nil, infra.KindDuplicateKey)
	}
	f.state.codes[code.Value()] = shared.ReferralCodeSnapshot{
		Code:       code.Value(),
		ReferrerID: code.ReferrerID(),
		CreatedAt:  code.CreatedAt(),
	}
	return nil
}

func (f *fakeReferrals) FindCode(_ context.Context, _ db.DBTX, code string) (*shared.ReferralCodeSnapshot, error) {
	snapshot, ok := f.state.codes[code]
	if !ok {
		return nil, infra.WrapRepoErr("code not found", nil, infra.KindNotFound)
	}
	return &snapshot, nil
}

func (f *fakeReferrals) MarkReferred(_ context.Context, _ db.DBTX, receiverID uuid.UUID, code string, _ time.Time) (bool, error) {
	if _, exists := f.state.referred[receiverID]; exists {
		return false, nil
	}
	f.state.referred[receiverID] = code
	return true, nil
}

func (f *fakeReferrals) RecordAcceptance(_ context.Context, _ db.DBTX, code string, receiverID, _ uuid.UUID, _ time.Time) (bool, error) {
	key := acceptanceKey{code: code, receiverID: receiverID}
	if f.state.acceptances[key] {
		return false, nil
	}
	f.state.acceptances[key] = true
	return true, nil
}

type fakeIdempotency struct {
	state *storeState
}

func (f *fakeIdempotency) TryInsert(_ context.Context, _ db.DBTX, key, userID uuid.UUID, _ string, requestHash string, expiresAt time.Time) error {
	k := idemKey{key: key, userID: userID}
	if _, exists := f.state.idempotency[k]; exists {
		return nil
	}
	f.state.idempotency[k] = &shared.IdempotencyRecord{
		Key:         key,
		UserID:      userID,
		Status:      "processing",
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (f *fakeIdempotency) Get(_ context.Context, _ db.DBTX, key, userID uuid.UUID) (*shared.IdempotencyRecord, error) {
	rec, ok := f.state.idempotency[idemKey{key: key, userID: userID}]
	if !ok {
		return nil, infra.WrapRepoErr("idempotency key not found", nil, infra.KindNotFound)
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeIdempotency) UpdateStatusCompleted(_ context.Context, _ db.DBTX, key, userID uuid.UUID, responseHash string, redemptionID uuid.UUID) error {
	rec, ok := f.state.idempotency[idemKey{key: key, userID: userID}]
	if !ok || rec.Status != "processing" {
		return infra.WrapRepoErr("idempotency key not in processing state", nil, infra.KindPreconditionFailed)
	}
	rec.Status = "completed"
	rec.ResultRedemptionID = &redemptionID
	_ = responseHash
	return nil
}

type fakeNotifications struct {
	state *storeState
}

func (f *fakeNotifications) CreateJob(_ context.Context, _ db.DBTX, kind, topic string, _ []byte, _ time.Time) error {
	f.state.jobs = append(f.state.jobs, notificationJob{kind: kind, topic: topic})
	return nil
}

// fakeRewardQueries serves a fixed catalog.
type fakeRewardQueries struct {
	rewards map[uuid.UUID]*queries.RewardView
}

func (f *fakeRewardQueries) GetByID(_ context.Context, id uuid.UUID) (*queries.RewardView, error) {
	view, ok := f.rewards[id]
	if !ok {
		return nil, queries.ErrRewardNotFound
	}
	return view, nil
}

func (f *fakeRewardQueries) ListActive(_ context.Context) ([]*queries.RewardView, error) {
	var views []*queries.RewardView
	for _, v := range f.rewards {
		if v.IsActive {
			views = append(views, v)
		}
	}
	return views, nil
}

// fakeRedemptionQueries reads from the same state the fake repositories
// mutate, like a read store sharing the database.
type fakeRedemptionQueries struct {
	state   *storeState
	rewards *fakeRewardQueries
}

func (f *fakeRedemptionQueries) GetByID(_ context.Context, id uuid.UUID) (*queries.RedemptionView, error) {
	row, ok := f.state.redemptions[id]
	if !ok {
		return nil, queries.ErrRedemptionNotFound
	}
	return f.toView(row), nil
}

func (f *fakeRedemptionQueries) ActiveForUser(_ context.Context, userID uuid.UUID) ([]*queries.RedemptionView, error) {
	var views []*queries.RedemptionView
	for _, row := range f.state.redemptions {
		if row.userID == userID && !row.isUsed && !row.isExpired {
			views = append(views, f.toView(row))
		}
	}
	return views, nil
}

func (f *fakeRedemptionQueries) toView(row *redemptionRow) *queries.RedemptionView {
	rewardName := ""
	if f.rewards != nil {
		if reward, ok := f.rewards.rewards[row.rewardID]; ok {
			rewardName = reward.Name
		}
	}
	return &queries.RedemptionView{
		ID:             row.id,
		UserID:         row.userID,
		RewardID:       row.rewardID,
		RewardName:     rewardName,
		Code:           row.code,
		PointsValue:    row.pointsValue,
		RedeemedAt:     row.redeemedAt,
		ExpiresAt:      row.expiresAt,
		IsUsed:         row.isUsed,
		IsExpired:      row.isExpired,
		PointsRefunded: row.pointsRefunded,
	}
}

// stubLimiter answers from a scripted sequence; once the script runs out it
// keeps returning the final value.
type stubLimiter struct {
	answers []bool
	calls   int
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	idx := s.calls
	s.calls++
	if idx >= len(s.answers) {
		if len(s.answers) == 0 {
			return true, nil
		}
		idx = len(s.answers) - 1
	}
	return s.answers[idx], nil
}
