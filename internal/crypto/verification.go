package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const (
	// VerificationCodeLength is the number of decimal digits in a verification code
	VerificationCodeLength = 6

	// VerificationCodeTTL is how long a verification code stays valid after issuance
	VerificationCodeTTL = 10 * time.Minute
)

var (
	verificationCodeBound = big.NewInt(1_000_000)
	verificationCodeRegex = regexp.MustCompile(`\b\d{6}\b`)
)

// VerificationCode is a freshly issued code and the instant it stops being accepted
type VerificationCode struct {
	Code      string
	ExpiresAt time.Time
}

// GenerateVerificationCode draws a code uniformly from [0, 999999] and
// zero-pads it to VerificationCodeLength digits.
func GenerateVerificationCode(now time.Time) (VerificationCode, error) {
	n, err := rand.Int(rand.Reader, verificationCodeBound)
	if err != nil {
		return VerificationCode{}, fmt.Errorf("failed to generate verification code: %w", err)
	}
	return VerificationCode{
		Code:      fmt.Sprintf("%0*d", VerificationCodeLength, n.Int64()),
		ExpiresAt: now.Add(VerificationCodeTTL),
	}, nil
}

// FindVerificationCode extracts the first standalone run of six digits from
// free text. Returns "" when the text holds no code.
func FindVerificationCode(text string) string {
	return verificationCodeRegex.FindString(text)
}
