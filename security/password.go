package security

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gamelend/apperr"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLen = 6
	MinNameLen     = 2
)

// HashCost is the bcrypt cost used for new hashes. Tests lower it.
var HashCost = bcrypt.DefaultCost

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches hash. An empty hash never matches.
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckNewPassword enforces the length rule and the confirmation match.
func CheckNewPassword(password, confirm string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	}
	if password != confirm {
		return apperr.Validation("passwords do not match")
	}
	return nil
}

func CheckName(field, value string) error {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < MinNameLen {
		return apperr.Validation(fmt.Sprintf("%s must be at least %d characters", field, MinNameLen))
	}
	return nil
}
