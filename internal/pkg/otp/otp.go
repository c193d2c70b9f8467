package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Digits is the fixed width of generated one-time passwords.
const Digits = 6

// New generates a uniformly random 6-digit numeric OTP, zero-padded.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}
