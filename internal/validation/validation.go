// Package validation checks path parameters before they reach the service layer.
package validation

import (
	"errors"
	"strings"
)

// MaxLocationKeyLength bounds location keys in dashboard paths.
const MaxLocationKeyLength = 64

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ValidateLocationKey trims and lower-cases a location key and restricts it to ASCII
// letters, digits, hyphen and underscore. maxLen <= 0 disables the length bound.
// Errors map to 400 INVALID_LOCATION responses; whether the key is configured is
// decided by the service layer.
func ValidateLocationKey(input string, maxLen int) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", ErrLocationEmpty
	}
	if maxLen > 0 && len(s) > maxLen {
		return "", ErrLocationTooLong
	}
	for i := 0; i < len(s); i++ {
		if !isAllowedKeyByte(s[i]) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_':
		return true
	}
	return false
}
