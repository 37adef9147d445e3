// Package security rates candidate lock credentials so setup flows can
// warn about weak choices before they are accepted.
package security

// Strength represents the rated quality of a candidate PIN or password.
type Strength int

const (
	// StrengthWeak indicates a trivially guessable credential.
	StrengthWeak Strength = iota
	// StrengthFair indicates a minimally acceptable credential.
	StrengthFair
	// StrengthGood indicates a good credential.
	StrengthGood
	// StrengthStrong indicates a strong credential.
	StrengthStrong
)

// String returns a human-readable representation of the strength level.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "Weak"
	case StrengthFair:
		return "Fair"
	case StrengthGood:
		return "Good"
	case StrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// RatePassword evaluates a human-chosen password.
// Length is the primary factor per NIST SP 800-63B (composition rules
// discouraged): 8+ is fair, 14+ good, 20+ strong.
func RatePassword(password string) Strength {
	length := len(password)

	switch {
	case length >= 20:
		return StrengthStrong
	case length >= 14:
		return StrengthGood
	case length >= 8:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

// RatePIN evaluates a numeric PIN. Short PINs, constant PINs and
// straight ascending or descending runs rate weak regardless of length.
func RatePIN(pin string) Strength {
	if len(pin) < 4 || isConstant(pin) || isSequentialRun(pin) {
		return StrengthWeak
	}

	switch {
	case len(pin) >= 8:
		return StrengthGood
	case len(pin) >= 6:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

// isConstant reports whether every character equals the first.
func isConstant(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// isSequentialRun reports whether the digits form one unbroken
// ascending or descending run, like 1234 or 9876.
func isSequentialRun(s string) bool {
	if len(s) < 2 {
		return false
	}
	asc, desc := true, true
	for i := 1; i < len(s); i++ {
		if s[i] != s[i-1]+1 {
			asc = false
		}
		if s[i] != s[i-1]-1 {
			desc = false
		}
	}
	return asc || desc
}
