package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrZipcodeEmpty is returned when the zip code is empty or whitespace-only after trim.
var ErrZipcodeEmpty = errors.New("zipcode is required")

// ErrZipcodeTooShort is returned when the zip code is below the minimum length.
var ErrZipcodeTooShort = errors.New("zipcode too short")

// ErrZipcodeTooLong is returned when the zip code exceeds the maximum length.
var ErrZipcodeTooLong = errors.New("zipcode too long")

// ErrZipcodeInvalidChars is returned when the zip code contains disallowed characters.
var ErrZipcodeInvalidChars = errors.New("zipcode contains invalid characters")

// ValidateZipcode trims the input, enforces length bounds (in runes; 0 disables a bound)
// and allows only ASCII letters, digits, space and hyphen, which covers US ZIP, ZIP+4,
// Canadian and UK postcodes. Returns the trimmed value.
// This is input hygiene for the HTTP layer; the forecast core uses whatever it is given.
func ValidateZipcode(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	if n == 0 {
		return "", ErrZipcodeEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrZipcodeTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrZipcodeTooLong
	}
	for _, c := range s {
		if !isAllowedZipcodeRune(c) {
			return "", ErrZipcodeInvalidChars
		}
	}
	return s, nil
}

func isAllowedZipcodeRune(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return r == ' ' || r == '-'
}
