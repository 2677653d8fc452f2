package redemption

import (
	"crypto/rand"
	"math/big"
)

// Alphabet excludes ambiguous glyphs (0/O, 1/I) so staff can read codes aloud.
const claimCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const ClaimCodeLength = 8

type ClaimCode struct {
	value string
}

func NewClaimCode() (ClaimCode, error) {
	buf := make([]byte, ClaimCodeLength)
	max := big.NewInt(int64(len(claimCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return ClaimCode{}, err
		}
		buf[i] = claimCodeAlphabet[n.Int64()]
	}
	return ClaimCode{value: string(buf)}, nil
}

func ParseClaimCode(s string) (ClaimCode, error) {
	if len(s) != ClaimCodeLength {
		return ClaimCode{}, ErrInvalidClaimCode
	}
	return ClaimCode{value: s}, nil
}

func (c ClaimCode) String() string { return c.value }
