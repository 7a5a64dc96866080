package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"messaging-service/internal/apperr"
)

const maxGroupNameLen = 100

// ValidateGroupName trims name and checks that it is non-empty, not too long
// and starts with a letter or digit.
func ValidateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLen {
		return "", apperr.Invalid("group name is too long")
	}
	first, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLetter(first) && !unicode.IsDigit(first) {
		return "", apperr.Invalid("group name must start with a letter or digit")
	}
	return name, nil
}
