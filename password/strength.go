package password

import (
	"strings"
	"unicode"
)

const (
	minLength = 8
	maxLength = 128
)

// commonPasswords are rejected outright regardless of character diversity.
// The comparison is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"abc123":      {},
	"admin":       {},
	"letmein":     {},
	"welcome":     {},
	"monkey":      {},
	"dragon":      {},
	"iloveyou":    {},
	"sunshine":    {},
	"princess":    {},
	"football":    {},
	"trustno1":    {},
}

// ValidateStrength checks password against the length bounds, the common
// password denylist, and the character-diversity profile selected by policy.
// It returns ok=false with a human-readable reason on the first failed rule.
func ValidateStrength(password string, policy Policy) (bool, string) {
	if len(password) < minLength {
		return false, "password must be at least 8 characters long"
	}
	if len(password) > maxLength {
		return false, "password must be at most 128 characters long"
	}
	if _, found := commonPasswords[strings.ToLower(password)]; found {
		return false, "password is too common"
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if !hasLower {
		return false, "password must contain a lowercase letter"
	}
	if !hasUpper {
		return false, "password must contain an uppercase letter"
	}
	if !hasDigit {
		return false, "password must contain a digit"
	}
	if policy == PolicyStrict && !hasSymbol {
		return false, "password must contain a symbol"
	}

	return true, ""
}
