package applock

import "errors"

// Setup input rules. The PIN floor matches common mobile screen locks;
// the password floor follows NIST SP 800-63B's minimum for user-chosen
// passwords, with no composition requirements.
const (
	MinPINLength      = 4
	MaxPINLength      = 16
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

var (
	ErrPINTooShort      = errors.New("applock: PIN must be at least 4 digits")
	ErrPINTooLong       = errors.New("applock: PIN must be at most 16 digits")
	ErrPINNotNumeric    = errors.New("applock: PIN must contain only digits")
	ErrPasswordTooShort = errors.New("applock: password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("applock: password must be at most 256 characters")
)

// ValidatePIN checks a candidate PIN before setup.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength {
		return ErrPINTooShort
	}
	if len(pin) > MaxPINLength {
		return ErrPINTooLong
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrPINNotNumeric
		}
	}
	return nil
}

// ValidatePassword checks a candidate password before setup. Length in
// bytes, so multi-byte runes count for more; that only ever errs toward
// accepting.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
