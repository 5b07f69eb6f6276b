package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	InviteCodeLength   = 8
	SessionTokenBytes  = 32
	MinPasswordLength  = 6
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordMismatch = errors.New("password does not match")
)

// GenerateInviteCode creates a random guild invite code.
func GenerateInviteCode() string {
	return secureRandomString(InviteCodeLength)
}

// GenerateSessionToken returns a random hex token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword returns the bcrypt hash of plaintext.
func HashPassword(plaintext string) (string, error) {
	if len(plaintext) < MinPasswordLength {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword checks plaintext against a bcrypt hash.
func ComparePassword(hashed, plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

func secureRandomString(length int) string {
	result := make([]byte, length)
	limit := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range result {
		n, _ := rand.Int(rand.Reader, limit)
		result[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(result)
}
