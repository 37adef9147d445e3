// Package syncbus provides a best-effort broadcast channel so multiple
// app surfaces (windows, processes) sharing one state directory converge
// on the same lock state.
//
// The channel is optional by design: the lock core is fully functional on
// a single surface with a nil bus, it just loses cross-surface
// convergence. Publish failures are therefore reported but must never
// fail the state change that triggered them.
package syncbus

// Kind discriminates broadcast messages.
type Kind string

const (
	KindLock       Kind = "lock"
	KindUnlock     Kind = "unlock"
	KindConfig     Kind = "config-updated"
	KindBruteForce Kind = "bruteforce-updated"
)

// Message is one broadcast datagram. Fields beyond Type are populated
// according to the kind: config-updated carries Enabled/LockType/
// AutoLockTimeMs, bruteforce-updated carries InvalidAttemptCount/
// CooldownExpiresAt.
type Message struct {
	Type Kind `json:"type"`

	Enabled        bool   `json:"enabled,omitempty"`
	LockType       string `json:"lockType,omitempty"`
	AutoLockTimeMs int64  `json:"autoLockTimeMs,omitempty"`

	InvalidAttemptCount int   `json:"invalidAttemptCount,omitempty"`
	CooldownExpiresAt   int64 `json:"cooldownExpiresAt,omitempty"`

	// Origin identifies the publishing surface so it can skip its own
	// messages on delivery.
	Origin string `json:"origin,omitempty"`
}

// Bus is the broadcast contract. Subscribe registers a handler for
// messages published by other surfaces; the returned function cancels the
// subscription and is safe to call more than once.
type Bus interface {
	Publish(msg Message) error
	Subscribe(fn func(Message)) (unsubscribe func())
	Close() error
}
