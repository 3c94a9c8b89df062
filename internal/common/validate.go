package common

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Credential limits.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores bytes past 72
	MaxNameLen     = 50
)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare address, without display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return BadRequest("invalid email address")
	}
	return nil
}

// ValidatePassword requires 8-72 bytes with at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return BadRequestf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return BadRequestf("password must be at most %d bytes", MaxPasswordLen)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return BadRequest("password must contain letters and digits")
	}
	return nil
}

// ValidateName requires a non-blank display name of at most MaxNameLen runes.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return BadRequest("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return BadRequestf("name must be at most %d characters", MaxNameLen)
	}
	return nil
}
