package utils

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	// MaxPasswordBytes is the most bcrypt will hash.
	MaxPasswordBytes = 72
)

func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// PasswordLongEnough counts characters, not bytes.
func PasswordLongEnough(plain string) bool {
	return utf8.RuneCountInString(plain) >= MinPasswordLength
}

func PasswordTooLong(plain string) bool {
	return len(plain) > MaxPasswordBytes
}
