package sms

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned for numbers that cannot be put in E.164 form.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone strips separators and ensures a leading '+'.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}
