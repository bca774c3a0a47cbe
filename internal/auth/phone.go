package auth

import "strings"

// NormalizePhone converts free-form phone input to E.164. Ten digit numbers are
// treated as North American and get a +1 prefix; everything else is prefixed
// with + as-is.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if len(normalized) == 10 {
		return "+1" + normalized
	}
	return "+" + normalized
}
