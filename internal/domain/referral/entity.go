package referral

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 8
)

// Code is a shareable referral token owned by a referrer. Many receivers may
// accept the same code, but each receiver accepts at most one referral
// system-wide; that rule lives in the store's uniqueness keys, not here.
type Code struct {
	value      string
	referrerID uuid.UUID
	createdAt  time.Time
}

func NewCode(referrerID uuid.UUID, now time.Time) (*Code, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return &Code{
		value:      string(buf),
		referrerID: referrerID,
		createdAt:  now,
	}, nil
}

func ReconstructCode(value string, referrerID uuid.UUID, createdAt time.Time) (*Code, error) {
	if err := validateCodeValue(value); err != nil {
		return nil, err
	}
	return &Code{value: value, referrerID: referrerID, createdAt: createdAt}, nil
}

func validateCodeValue(value string) error {
	if len(value) != CodeLength {
		return ErrInvalidCode
	}
	for _, r := range value {
		if !strings.ContainsRune(codeAlphabet, r) {
			return ErrInvalidCode
		}
	}
	return nil
}

func NormalizeCodeInput(s string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if err := validateCodeValue(v); err != nil {
		return "", err
	}
	return v, nil
}

func (c *Code) Value() string         { return c.value }
func (c *Code) ReferrerID() uuid.UUID { return c.referrerID }
func (c *Code) CreatedAt() time.Time  { return c.createdAt }

// CheckReceiver rejects the one guardrail the code itself can decide:
// a referrer accepting their own code.
func (c *Code) CheckReceiver(receiverID uuid.UUID) error {
	if c.referrerID == receiverID {
		return ErrSelfReferral
	}
	return nil
}
