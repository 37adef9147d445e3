// Package authenticator defines the native platform authenticator
// capability consumed by the app lock.
//
// The platform prompt itself (Touch ID, Windows Hello, polkit) lives in
// the hosting shell; this package defines the narrow contract the lock
// core programs against, plus adapters for wiring and testing. Capability
// queries must be cheap and repeatable: they are used both to decide
// whether to offer device lock at all and to re-validate it right before
// a prompt.
package authenticator

import "context"

// Provider identifies the platform authenticator backing a capability.
type Provider string

const (
	ProviderNone         Provider = "none"
	ProviderTouchID      Provider = "touchid"
	ProviderWindowsHello Provider = "windows-hello"
	ProviderPolkit       Provider = "polkit"
)

// Reason explains why a native authenticator is unavailable.
type Reason string

const (
	// ReasonUnsupportedPlatform means this OS/session has no authenticator API.
	ReasonUnsupportedPlatform Reason = "unsupported-platform"

	// ReasonNotEnrolled means the API exists but no credential is enrolled.
	ReasonNotEnrolled Reason = "not-enrolled"

	// ReasonAPIError means the availability query itself failed.
	ReasonAPIError Reason = "api-error"
)

// Capability reports whether a native authenticator is usable right now.
type Capability struct {
	Available bool
	Provider  Provider
	Reason    Reason // set only when Available is false
}

// Authenticator is the contract the hosting shell implements.
//
// Prompt resolves false for ordinary cancellation or a failed biometric
// match; returning an error is reserved for genuine platform faults. The
// lock core catches both and never lets either escape an unlock attempt.
type Authenticator interface {
	Capability() Capability
	Prompt(ctx context.Context, reasonText string) (bool, error)
}

// Unavailable returns an Authenticator whose capability query reports the
// given reason and whose prompt always declines. Useful as the default
// wiring on surfaces with no native authenticator.
func Unavailable(reason Reason) Authenticator {
	return unavailable{reason: reason}
}

type unavailable struct {
	reason Reason
}

func (u unavailable) Capability() Capability {
	return Capability{Available: false, Provider: ProviderNone, Reason: u.reason}
}

func (u unavailable) Prompt(ctx context.Context, reasonText string) (bool, error) {
	return false, nil
}

// Func adapts plain functions into an Authenticator. The hosting shell
// typically wires its platform bindings through this.
type Func struct {
	CapabilityFn func() Capability
	PromptFn     func(ctx context.Context, reasonText string) (bool, error)
}

func (f Func) Capability() Capability {
	if f.CapabilityFn == nil {
		return Capability{Available: false, Provider: ProviderNone, Reason: ReasonUnsupportedPlatform}
	}
	return f.CapabilityFn()
}

func (f Func) Prompt(ctx context.Context, reasonText string) (bool, error) {
	if f.PromptFn == nil {
		return false, nil
	}
	return f.PromptFn(ctx, reasonText)
}
