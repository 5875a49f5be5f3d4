package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for new hashes.
const PasswordCost = 12

// MaxPasswordBytes is the longest password bcrypt will accept.
const MaxPasswordBytes = 72

func HashPassword(plaintext string) (string, error) {
	return hashPasswordWithCost(plaintext, PasswordCost)
}

// VerifyPassword reports whether plaintext matches hash. A mismatch is not an
// error; a malformed hash is.
func VerifyPassword(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}

func hashPasswordWithCost(plaintext string, cost int) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", bcrypt.ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
