package utils

import (
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}._\-]+$`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateUsername allows letters, digits, dots, underscores and hyphens
func ValidateUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailInList reports whether email matches any entry, ignoring case and whitespace
func EmailInList(email string, list []string) bool {
	email = SanitizeEmail(email)
	for _, candidate := range list {
		if SanitizeEmail(candidate) == email {
			return true
		}
	}
	return false
}
