// Package applock implements the app-lock state machine and its
// brute-force/cooldown policy.
//
// The lock gates an already-authenticated session behind a PIN, password
// or native authenticator. It owns the in-memory snapshot, every
// lock/unlock/setup/disable transition, the escalating cooldown policy,
// and reconciliation between the two storage tiers. Multiple surfaces
// (windows, processes) sharing one state directory converge through the
// stores and an optional broadcast bus.
package applock

import "strconv"

// LockType is the configured unlock method.
type LockType string

const (
	LockTypeNone     LockType = "none"
	LockTypePIN      LockType = "pin"
	LockTypePassword LockType = "password"
	LockTypeDevice   LockType = "device"
)

// UsesPassphrase reports whether the lock type is verified against a
// derived key. Brute-force counters apply only to these types.
func (t LockType) UsesPassphrase() bool {
	return t == LockTypePIN || t == LockTypePassword
}

// ParseLockType maps a stored string to a LockType, defaulting to none.
func ParseLockType(s string) LockType {
	switch LockType(s) {
	case LockTypePIN, LockTypePassword, LockTypeDevice:
		return LockType(s)
	default:
		return LockTypeNone
	}
}

// LockScreenMode distinguishes why the lock screen is showing. Both modes
// render the same screen; reauthenticate marks a one-off identity check
// requested for a sensitive action rather than an ambient idle lock.
type LockScreenMode string

const (
	ModeLock           LockScreenMode = "lock"
	ModeReauthenticate LockScreenMode = "reauthenticate"
)

// State is the app-lock snapshot. One instance lives for the process; the
// Manager hands out copies, so mutating a returned State has no effect.
type State struct {
	// Enabled is whether app lock is active at all.
	Enabled bool

	// LockType is the configured unlock method. none iff disabled.
	LockType LockType

	// LockScreenMode is why the lock screen is currently showing.
	// Meaningful only while IsLocked.
	LockScreenMode LockScreenMode

	// IsLocked is whether the UI should currently be gated.
	IsLocked bool

	// InvalidAttemptCount is the consecutive failed passphrase attempts
	// since the last success or reset.
	InvalidAttemptCount int

	// CooldownExpiresAt is the epoch-ms timestamp before which unlock
	// attempts are refused outright. Zero when no cooldown is active.
	CooldownExpiresAt int64

	// AutoLockTimeMs is the idle delay before auto-lock fires. Zero means
	// lock immediately on background.
	AutoLockTimeMs int64
}

// UnlockOutcome is the closed set of per-attempt results handed to the
// lock screen. Expected outcomes are values, never errors.
type UnlockOutcome string

const (
	// OutcomeSuccess transitions the surface to unlocked.
	OutcomeSuccess UnlockOutcome = "success"

	// OutcomeFailed is a wrong guess, or an internal fault mapped down to
	// a failure the UI can present.
	OutcomeFailed UnlockOutcome = "failed"

	// OutcomeCooldown means the attempt was refused without consuming a
	// guess; the snapshot carries the expiry.
	OutcomeCooldown UnlockOutcome = "cooldown"

	// OutcomeLogout instructs the caller to force a full account logout.
	OutcomeLogout UnlockOutcome = "logout"
)

// Persisted keys, synchronous tier.
const (
	keyEnabled        = "enabled"
	keyLockType       = "lockType"
	keyAutoLockTimeMs = "autoLockTimeMs"
)

// Persisted keys, asynchronous tier.
const (
	keyHash              = "hash"
	keySalt              = "salt"
	keyOpsLimit          = "opsLimit"
	keyMemLimit          = "memLimit"
	keyInvalidAttempts   = "invalidAttempts"
	keyCooldownExpiresAt = "cooldownExpiresAt"

	// keyLegacyDeviceLock is a removed boolean from older releases. It is
	// actively deleted on logout so stale installs converge.
	keyLegacyDeviceLock = "deviceLockEnabled"
)

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseInt(s string) int {
	return int(parseInt64(s))
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}
