//go:build unit

package referral_test

import (
	"testing"
	"time"

	"loyalty-core/internal/domain/referral"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCode(t *testing.T) {
	referrerID := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	code, err := referral.NewCode(referrerID, now)
	require.NoError(t, err)

	assert.Len(t, code.Value(), referral.CodeLength)
	assert.Equal(t, referrerID, code.ReferrerID())
	assert.Equal(t, now, code.CreatedAt())

	other, err := referral.NewCode(referrerID, now)
	require.NoError(t, err)
	assert.NotEqual(t, code.Value(), other.Value())
}

func TestCode_CheckReceiver(t *testing.T) {
	referrerID := uuid.New()
	code, err := referral.NewCode(referrerID, time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, code.CheckReceiver(referrerID), referral.ErrSelfReferral)
	assert.NoError(t, code.CheckReceiver(uuid.New()))
}

func TestNormalizeCodeInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		errIs error
	}{
		{name: "uppercases and trims", input: "  abcd2345 ", want: "ABCD2345"},
		{name: "already canonical", input: "WXYZ6789", want: "WXYZ6789"},
		{name: "wrong length", input: "ABC", errIs: referral.ErrInvalidCode},
		{name: "ambiguous glyph rejected", input: "ABCD2340", errIs: referral.ErrInvalidCode},
		{name: "empty", input: "", errIs: referral.ErrInvalidCode},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := referral.NormalizeCodeInput(c.input)
			if c.errIs != nil {
				require.ErrorIs(t, err, c.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}
