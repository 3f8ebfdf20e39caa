package notify

import (
	"fmt"
	"strings"
)

// NormalizePhone converts a locally entered number into E.164 using the
// clinic's country calling code (digits only, e.g. "254"):
//
//	0712 345-678     -> +254712345678
//	254712345678     -> +254712345678
//	712345678        -> +254712345678
//	+447700900123    -> +447700900123
//
// Empty or malformed input yields ErrCannotNotify.
func NormalizePhone(raw, countryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty phone number", ErrCannotNotify)
	}
	countryCode = strings.TrimPrefix(countryCode, "+")

	switch {
	case strings.HasPrefix(cleaned, "+"):
	case strings.HasPrefix(cleaned, "00"):
		cleaned = "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "+" + countryCode + cleaned[1:]
	case countryCode != "" && strings.HasPrefix(cleaned, countryCode):
		cleaned = "+" + cleaned
	default:
		cleaned = "+" + countryCode + cleaned
	}

	digits := cleaned[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: phone number %q has invalid length", ErrCannotNotify, raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone number %q contains non-digits", ErrCannotNotify, raw)
		}
	}
	return cleaned, nil
}
