// Package phone converts user-entered mobile numbers into the canonical
// digits-only international form accepted by the SMS gateway.
package phone

import "strings"

const (
	// CountryCode is prepended to local numbers.
	CountryCode = "63"

	localPrefix     = "09"
	localLength     = 11
	canonicalPrefix = CountryCode + "9"
	canonicalLength = 12
)

// Normalize strips every non-digit from raw and returns the canonical form.
// Local numbers of the form 09XXXXXXXXX become 639XXXXXXXXX, already canonical
// numbers are returned unchanged. Anything else reports false.
func Normalize(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch {
	case len(digits) == localLength && strings.HasPrefix(digits, localPrefix):
		return CountryCode + digits[1:], true
	case len(digits) == canonicalLength && strings.HasPrefix(digits, canonicalPrefix):
		return digits, true
	}
	return "", false
}

// NormalizeValue is Normalize for loosely typed values decoded at the edges.
// Non-string values, including nil, are rejected.
func NormalizeValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return Normalize(s)
}
