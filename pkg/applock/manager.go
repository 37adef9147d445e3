package applock

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/forest6511/applockctl/pkg/audit"
	"github.com/forest6511/applockctl/pkg/authenticator"
	"github.com/forest6511/applockctl/pkg/kdf"
	"github.com/forest6511/applockctl/pkg/store"
	"github.com/forest6511/applockctl/pkg/syncbus"
)

// Native prompt reason strings. Enable and unlock are deliberately
// distinct so the platform dialog says what the user is approving.
const (
	promptReasonEnable = "Verify your identity to enable device lock"
	promptReasonUnlock = "Unlock the app"
)

// hydrationTimeout bounds the background counter read started by Lock.
const hydrationTimeout = 10 * time.Second

// DeviceLockReason classifies device-lock failures for the calling UI.
type DeviceLockReason string

const (
	// DeviceLockNotSupported means no native authenticator is usable on
	// this surface. The capability carries the platform reason.
	DeviceLockNotSupported DeviceLockReason = "not-supported"

	// DeviceLockPromptFailed means the user cancelled or failed the
	// native prompt. Never counted against the brute-force policy.
	DeviceLockPromptFailed DeviceLockReason = "native-prompt-failed"

	// DeviceLockUnknown means the platform call itself faulted.
	DeviceLockUnknown DeviceLockReason = "unknown"
)

// DeviceLockError is the typed result of a failed device-lock operation.
type DeviceLockError struct {
	Reason     DeviceLockReason
	Capability authenticator.Capability // populated for not-supported
}

func (e *DeviceLockError) Error() string {
	if e.Reason == DeviceLockNotSupported && e.Capability.Reason != "" {
		return fmt.Sprintf("applock: device lock not supported: %s", e.Capability.Reason)
	}
	return fmt.Sprintf("applock: device lock failed: %s", e.Reason)
}

// Manager owns the app-lock snapshot and every transition on it. One
// instance per surface; surfaces coordinate through the stores and the
// optional bus, never through shared memory.
type Manager struct {
	cfg     *store.ConfigStore
	secrets *store.SecretStore
	auth    authenticator.Authenticator
	bus     syncbus.Bus
	auditor *audit.Logger
	now     func() time.Time
	source  string

	// desktopRuntime marks a native shell that may restore the session
	// from secure storage after startup; such a runtime locks
	// pessimistically at cold start.
	desktopRuntime bool
	sessionProbe   func() bool

	serializer *serializer

	mu           sync.Mutex
	state        State
	listeners    map[int]func(State)
	nextListener int
	hydrationGen uint64
	hydration    chan struct{} // closed when in-flight hydration ends
	unsubBus     func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthenticator wires the native platform authenticator.
func WithAuthenticator(a authenticator.Authenticator) Option {
	return func(m *Manager) {
		if a != nil {
			m.auth = a
		}
	}
}

// WithBus wires the cross-surface broadcast channel. A nil bus (the
// default) runs single-surface.
func WithBus(b syncbus.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithAuditLogger wires the audit log. Audit is best-effort; a nil
// logger disables it.
func WithAuditLogger(l *audit.Logger) Option {
	return func(m *Manager) { m.auditor = l }
}

// WithClock overrides the time source, used by the cooldown policy.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDesktopRuntime marks the hosting runtime as a native desktop
// shell for the cold-start rule.
func WithDesktopRuntime(desktop bool) Option {
	return func(m *Manager) { m.desktopRuntime = desktop }
}

// WithSessionProbe wires the "is a session key available in memory"
// query used by the cold-start rule and RefreshFromSession.
func WithSessionProbe(probe func() bool) Option {
	return func(m *Manager) {
		if probe != nil {
			m.sessionProbe = probe
		}
	}
}

// WithSource sets the audit source tag for operations on this Manager.
func WithSource(source string) Option {
	return func(m *Manager) { m.source = source }
}

// New opens the two storage tiers under dir and builds a Manager.
// Call Initialize before using it.
func New(dir string, opts ...Option) (*Manager, error) {
	cfg, err := store.OpenConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("applock: failed to open config store: %w", err)
	}
	secrets, err := store.OpenSecret(dir)
	if err != nil {
		return nil, fmt.Errorf("applock: failed to open secret store: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		secrets:      secrets,
		auth:         authenticator.Unavailable(authenticator.ReasonUnsupportedPlatform),
		now:          time.Now,
		source:       audit.SourceUI,
		sessionProbe: func() bool { return false },
		serializer:   newSerializer(dir),
		listeners:    make(map[int]func(State)),
		state:        State{LockType: LockTypeNone, LockScreenMode: ModeLock},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Initialize seeds the snapshot from the synchronous config store and
// applies the cold-start rule: an enabled lock starts locked only when a
// session is already available or the runtime is a native desktop shell;
// a fresh web surface with nothing restored has nothing to protect yet.
func (m *Manager) Initialize() error {
	m.mu.Lock()

	enabled := false
	if v, err := m.cfg.Get(keyEnabled); err == nil {
		enabled = parseBool(v)
	}
	lockType := LockTypeNone
	if v, err := m.cfg.Get(keyLockType); err == nil {
		lockType = ParseLockType(v)
	}
	var autoLockMs int64
	if v, err := m.cfg.Get(keyAutoLockTimeMs); err == nil {
		autoLockMs = parseInt64(v)
	}

	// Normalize: device lock on a surface without a native authenticator
	// degrades to disabled rather than an un-passable lock screen.
	if lockType == LockTypeDevice && !m.auth.Capability().Available {
		lockType = LockTypeNone
	}
	if lockType == LockTypeNone {
		enabled = false
	}
	if !enabled {
		lockType = LockTypeNone
	}

	m.state = State{
		Enabled:        enabled,
		LockType:       lockType,
		LockScreenMode: ModeLock,
		AutoLockTimeMs: autoLockMs,
	}
	if enabled && (m.desktopRuntime || m.sessionProbe()) {
		m.state.IsLocked = true
	}

	hydrate := m.state.IsLocked && lockType.UsesPassphrase()
	if hydrate {
		m.startHydrationLocked()
	}
	m.mu.Unlock()

	if m.bus != nil {
		m.unsubBus = m.bus.Subscribe(m.applyRemote)
	}
	m.notify()
	return nil
}

// RefreshFromSession re-evaluates the cold-start decision once session
// restoration completes. It only ever locks: a surface locked
// pessimistically at cold start stays locked regardless of what the
// probe now reports.
func (m *Manager) RefreshFromSession() {
	m.mu.Lock()
	changed := false
	if m.state.Enabled && !m.state.IsLocked && m.sessionProbe() {
		m.state.IsLocked = true
		m.state.LockScreenMode = ModeLock
		changed = true
		if m.state.LockType.UsesPassphrase() {
			m.startHydrationLocked()
		}
	}
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to run synchronously after every committed
// state change. The returned function unsubscribes and is safe to call
// during notification and more than once.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Lock gates the UI. Idempotent: locking an already-locked surface only
// restarts brute-force hydration.
func (m *Manager) Lock() {
	m.lock(ModeLock)
}

// Reauthenticate shows the lock screen for a one-off identity check
// before a sensitive action.
func (m *Manager) Reauthenticate() {
	m.lock(ModeReauthenticate)
}

func (m *Manager) lock(mode LockScreenMode) {
	m.mu.Lock()
	if !m.state.Enabled {
		m.mu.Unlock()
		return
	}
	wasLocked := m.state.IsLocked
	prevMode := m.state.LockScreenMode
	m.state.IsLocked = true
	m.state.LockScreenMode = mode
	if m.state.LockType.UsesPassphrase() {
		m.startHydrationLocked()
	}
	m.mu.Unlock()

	if !wasLocked {
		m.logAudit(audit.OpLock, audit.ResultSuccess, nil)
		m.publish(syncbus.Message{Type: syncbus.KindLock})
	}
	if !wasLocked || prevMode != mode {
		m.notify()
	}
}

// AttemptUnlock validates one passphrase attempt. Outcomes are a closed
// set of values; faults inside the attempt are audited and mapped to
// OutcomeFailed rather than escaping.
func (m *Manager) AttemptUnlock(ctx context.Context, passphrase []byte) UnlockOutcome {
	m.mu.Lock()
	lockType := m.state.LockType
	m.mu.Unlock()
	if !lockType.UsesPassphrase() {
		return OutcomeFailed
	}

	outcome := OutcomeFailed
	err := m.serializer.runExclusive(ctx, func() error {
		outcome = m.validateAttempt(ctx, passphrase)
		return nil
	})
	if err != nil {
		// Cancelled while queued; no attempt was consumed.
		return OutcomeFailed
	}
	return outcome
}

// validateAttempt runs under the unlock serializer.
func (m *Manager) validateAttempt(ctx context.Context, passphrase []byte) UnlockOutcome {
	m.awaitHydration(ctx)

	// Any result a still-running hydration produces is now stale.
	m.mu.Lock()
	m.hydrationGen++
	m.mu.Unlock()

	// Re-read counters from the durable tier and merge pairwise-max, so
	// a stale surface cannot race an optimistic reset past another
	// surface's just-persisted failure.
	attempts, cooldown, err := m.readCounters(ctx)
	if err != nil {
		m.logAudit(audit.OpUnlockFailed, audit.ResultError, &audit.ErrorInfo{
			Code: "STORAGE_ERROR", Message: err.Error(),
		})
		return OutcomeFailed
	}

	m.mu.Lock()
	m.mergeCountersLocked(attempts, cooldown)
	count := m.state.InvalidAttemptCount
	expiresAt := m.state.CooldownExpiresAt
	m.mu.Unlock()

	if count >= LogoutThreshold {
		if err := m.persistCounters(ctx, count, 0); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to persist attempt counter: %v\n", err)
		}
		m.setCounters(count, 0)
		m.logAuditDenied(audit.OpForcedLogout, "attempt limit reached")
		return OutcomeLogout
	}

	nowMs := m.now().UnixMilli()
	if expiresAt > 0 && nowMs < expiresAt {
		m.logAuditDenied(audit.OpCooldown, "cooldown active")
		return OutcomeCooldown
	}

	stored, params, ok := m.readCredential(ctx)
	if !ok {
		// Corrupted or partially written state, not a wrong guess: the
		// attempt counter is left untouched.
		return OutcomeFailed
	}

	derived, err := kdf.Derive(passphrase, params.salt, params.opsLimit, params.memLimit)
	if err != nil {
		m.logAudit(audit.OpIntegrityError, audit.ResultError, &audit.ErrorInfo{
			Code: "DERIVE_FAILED", Message: err.Error(),
		})
		return OutcomeFailed
	}
	defer kdf.SecureWipe(derived)

	// Full derived outputs only; truncated or prefix comparison would
	// quietly weaken the verifier.
	if bytes.Equal(derived, stored) {
		return m.commitUnlockSuccess(ctx)
	}
	return m.commitUnlockFailure(ctx, count+1)
}

// commitUnlockSuccess resets brute-force state in both tiers and opens
// the gate.
func (m *Manager) commitUnlockSuccess(ctx context.Context) UnlockOutcome {
	if err := m.persistCounters(ctx, 0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist attempt reset: %v\n", err)
	}

	m.mu.Lock()
	m.hydrationGen++
	m.state.InvalidAttemptCount = 0
	m.state.CooldownExpiresAt = 0
	m.state.IsLocked = false
	m.mu.Unlock()

	m.logAudit(audit.OpUnlock, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{Type: syncbus.KindUnlock})
	m.publishBruteForce(0, 0)
	m.notify()
	return OutcomeSuccess
}

// commitUnlockFailure persists the incremented counter (and any new
// cooldown) before returning the outcome.
func (m *Manager) commitUnlockFailure(ctx context.Context, count int) UnlockOutcome {
	var expiresAt int64
	outcome := OutcomeFailed

	switch {
	case count >= LogoutThreshold:
		expiresAt = 0
		outcome = OutcomeLogout
	case count >= CooldownThreshold:
		expiresAt = m.now().Add(CooldownDuration(count)).UnixMilli()
		outcome = OutcomeCooldown
	}

	m.mu.Lock()
	// A cooldown never moves backwards outside an explicit reset.
	if outcome == OutcomeCooldown && m.state.CooldownExpiresAt > expiresAt {
		expiresAt = m.state.CooldownExpiresAt
	}
	m.mu.Unlock()

	if err := m.persistCounters(ctx, count, expiresAt); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist attempt counter: %v\n", err)
	}
	m.setCounters(count, expiresAt)

	switch outcome {
	case OutcomeLogout:
		m.logAuditDenied(audit.OpForcedLogout, "attempt limit reached")
	case OutcomeCooldown:
		m.logAudit(audit.OpUnlockFailed, audit.ResultError, &audit.ErrorInfo{
			Code: "AUTH_FAILED", Message: "cooldown activated",
		})
	default:
		m.logAudit(audit.OpUnlockFailed, audit.ResultError, &audit.ErrorInfo{
			Code: "AUTH_FAILED", Message: "invalid passphrase",
		})
	}

	m.publishBruteForce(count, expiresAt)
	m.notify()
	return outcome
}

// SetupPIN configures a PIN lock.
func (m *Manager) SetupPIN(ctx context.Context, pin []byte) error {
	if err := ValidatePIN(string(pin)); err != nil {
		return err
	}
	return m.setupPassphrase(ctx, LockTypePIN, pin)
}

// SetupPassword configures a password lock.
func (m *Manager) SetupPassword(ctx context.Context, password []byte) error {
	if err := ValidatePassword(string(password)); err != nil {
		return err
	}
	return m.setupPassphrase(ctx, LockTypePassword, password)
}

func (m *Manager) setupPassphrase(ctx context.Context, lockType LockType, secret []byte) error {
	d, err := kdf.DeriveInteractive(secret)
	if err != nil {
		return fmt.Errorf("applock: setup derivation failed: %w", err)
	}
	defer kdf.SecureWipe(d.Key)

	// One transaction: a hash is never observable without its salt and
	// cost parameters, and setup doubles as a brute-force reset.
	group := map[string]string{
		keyHash:              hex.EncodeToString(d.Key),
		keySalt:              hex.EncodeToString(d.Salt),
		keyOpsLimit:          formatInt64(int64(d.OpsLimit)),
		keyMemLimit:          formatInt64(int64(d.MemLimit)),
		keyInvalidAttempts:   "0",
		keyCooldownExpiresAt: "0",
	}
	if err := m.secrets.SetMany(ctx, group); err != nil {
		return fmt.Errorf("applock: failed to persist credential: %w", err)
	}

	if err := m.cfg.SetMany(map[string]string{
		keyEnabled:  "true",
		keyLockType: string(lockType),
	}); err != nil {
		return fmt.Errorf("applock: failed to persist config: %w", err)
	}

	m.mu.Lock()
	m.hydrationGen++
	m.state.Enabled = true
	m.state.LockType = lockType
	m.state.IsLocked = false
	m.state.InvalidAttemptCount = 0
	m.state.CooldownExpiresAt = 0
	autoLockMs := m.state.AutoLockTimeMs
	m.mu.Unlock()

	m.logAudit(audit.OpSetup, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{
		Type:           syncbus.KindConfig,
		Enabled:        true,
		LockType:       string(lockType),
		AutoLockTimeMs: autoLockMs,
	})
	m.publishBruteForce(0, 0)
	m.notify()
	return nil
}

// SetupDeviceLock configures the native authenticator as the unlock
// method. The decision to fall back to a passphrase when the platform
// cannot do this belongs to the caller, never to this layer.
func (m *Manager) SetupDeviceLock(ctx context.Context) error {
	cap := m.auth.Capability()
	if !cap.Available {
		return &DeviceLockError{Reason: DeviceLockNotSupported, Capability: cap}
	}

	ok, err := m.promptNative(ctx, promptReasonEnable)
	if err != nil {
		m.logAudit(audit.OpSetup, audit.ResultError, &audit.ErrorInfo{
			Code: "NATIVE_PROMPT_ERROR", Message: err.Error(),
		})
		return &DeviceLockError{Reason: DeviceLockUnknown}
	}
	if !ok {
		return &DeviceLockError{Reason: DeviceLockPromptFailed}
	}

	// Passphrase material from a previous lock type is gone after this.
	if err := m.secrets.DeleteAll(ctx); err != nil {
		return fmt.Errorf("applock: failed to clear credential material: %w", err)
	}
	if err := m.secrets.SetMany(ctx, map[string]string{
		keyInvalidAttempts:   "0",
		keyCooldownExpiresAt: "0",
	}); err != nil {
		return fmt.Errorf("applock: failed to reset counters: %w", err)
	}

	if err := m.cfg.SetMany(map[string]string{
		keyEnabled:  "true",
		keyLockType: string(LockTypeDevice),
	}); err != nil {
		return fmt.Errorf("applock: failed to persist config: %w", err)
	}

	m.mu.Lock()
	m.hydrationGen++
	m.state.Enabled = true
	m.state.LockType = LockTypeDevice
	m.state.IsLocked = false
	m.state.InvalidAttemptCount = 0
	m.state.CooldownExpiresAt = 0
	autoLockMs := m.state.AutoLockTimeMs
	m.mu.Unlock()

	m.logAudit(audit.OpSetup, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{
		Type:           syncbus.KindConfig,
		Enabled:        true,
		LockType:       string(LockTypeDevice),
		AutoLockTimeMs: autoLockMs,
	})
	m.notify()
	return nil
}

// AttemptDeviceUnlock runs the native prompt and opens the gate on
// approval. Cancellation and platform faults return typed errors and
// never touch the brute-force counters.
func (m *Manager) AttemptDeviceUnlock(ctx context.Context) error {
	m.mu.Lock()
	lockType := m.state.LockType
	m.mu.Unlock()
	if lockType != LockTypeDevice {
		return &DeviceLockError{Reason: DeviceLockNotSupported, Capability: m.auth.Capability()}
	}

	cap := m.auth.Capability()
	if !cap.Available {
		return &DeviceLockError{Reason: DeviceLockNotSupported, Capability: cap}
	}

	ok, err := m.promptNative(ctx, promptReasonUnlock)
	if err != nil {
		m.logAudit(audit.OpUnlockFailed, audit.ResultError, &audit.ErrorInfo{
			Code: "NATIVE_PROMPT_ERROR", Message: err.Error(),
		})
		return &DeviceLockError{Reason: DeviceLockUnknown}
	}
	if !ok {
		return &DeviceLockError{Reason: DeviceLockPromptFailed}
	}

	if err := m.persistCounters(ctx, 0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist attempt reset: %v\n", err)
	}

	m.mu.Lock()
	m.state.IsLocked = false
	m.state.InvalidAttemptCount = 0
	m.state.CooldownExpiresAt = 0
	m.mu.Unlock()

	m.logAudit(audit.OpUnlock, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{Type: syncbus.KindUnlock})
	m.notify()
	return nil
}

// promptNative invokes the platform prompt, containing any panic from
// the binding so an unlock attempt can never crash the host.
func (m *Manager) promptNative(ctx context.Context, reason string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("applock: native prompt panicked: %v", r)
		}
	}()
	return m.auth.Prompt(ctx, reason)
}

// SetAutoLockTime updates the idle delay before auto-lock. Negative
// values clamp to zero (lock immediately on background).
func (m *Manager) SetAutoLockTime(ctx context.Context, ms int64) error {
	if ms < 0 {
		ms = 0
	}
	if err := m.cfg.Set(keyAutoLockTimeMs, formatInt64(ms)); err != nil {
		return fmt.Errorf("applock: failed to persist auto-lock time: %w", err)
	}

	m.mu.Lock()
	m.state.AutoLockTimeMs = ms
	enabled := m.state.Enabled
	lockType := m.state.LockType
	m.mu.Unlock()

	m.publish(syncbus.Message{
		Type:           syncbus.KindConfig,
		Enabled:        enabled,
		LockType:       string(lockType),
		AutoLockTimeMs: ms,
	})
	m.notify()
	return nil
}

// Disable turns app lock off and clears all secret material and
// counters. Idempotent.
func (m *Manager) Disable(ctx context.Context) error {
	if err := m.secrets.DeleteAll(ctx); err != nil {
		return fmt.Errorf("applock: failed to clear secret material: %w", err)
	}
	if err := m.cfg.SetMany(map[string]string{
		keyEnabled:  "false",
		keyLockType: string(LockTypeNone),
	}); err != nil {
		return fmt.Errorf("applock: failed to persist config: %w", err)
	}

	m.mu.Lock()
	m.hydrationGen++
	m.state.Enabled = false
	m.state.LockType = LockTypeNone
	m.state.IsLocked = false
	m.state.InvalidAttemptCount = 0
	m.state.CooldownExpiresAt = 0
	autoLockMs := m.state.AutoLockTimeMs
	m.mu.Unlock()

	m.logAudit(audit.OpDisable, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{
		Type:           syncbus.KindConfig,
		Enabled:        false,
		LockType:       string(LockTypeNone),
		AutoLockTimeMs: autoLockMs,
	})
	m.notify()
	return nil
}

// Logout clears both tiers and resets the module as if freshly loaded.
// Safe to call when already disabled.
func (m *Manager) Logout(ctx context.Context) error {
	// Older releases persisted a device-lock boolean that no current
	// code writes; delete it explicitly so stale installs converge.
	if err := m.secrets.Delete(ctx, keyLegacyDeviceLock); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to delete legacy key: %v\n", err)
	}
	_ = m.cfg.Delete(keyLegacyDeviceLock)

	if err := m.secrets.DeleteAll(ctx); err != nil {
		return fmt.Errorf("applock: failed to clear secret material: %w", err)
	}
	if err := m.cfg.Clear(); err != nil {
		return fmt.Errorf("applock: failed to clear config: %w", err)
	}

	m.mu.Lock()
	m.hydrationGen++
	m.hydration = nil
	m.state = State{LockType: LockTypeNone, LockScreenMode: ModeLock}
	m.mu.Unlock()

	m.logAudit(audit.OpLogout, audit.ResultSuccess, nil)
	m.publish(syncbus.Message{
		Type:     syncbus.KindConfig,
		Enabled:  false,
		LockType: string(LockTypeNone),
	})
	m.notify()
	return nil
}

// Close detaches from the bus and closes the secret store.
func (m *Manager) Close() error {
	if m.unsubBus != nil {
		m.unsubBus()
	}
	return m.secrets.Close()
}

// ---------------------------------------------------------------------
// Hydration and counter plumbing
// ---------------------------------------------------------------------

// startHydrationLocked begins a background read of the durable counters.
// Caller must hold mu. The generation counter is the cancellation
// mechanism: a result whose generation is stale on completion is
// discarded instead of overwriting newer state.
func (m *Manager) startHydrationLocked() {
	m.hydrationGen++
	gen := m.hydrationGen
	done := make(chan struct{})
	m.hydration = done

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), hydrationTimeout)
		defer cancel()

		attempts, cooldown, err := m.readCounters(ctx)
		if err != nil {
			return
		}

		m.mu.Lock()
		if gen != m.hydrationGen {
			m.mu.Unlock()
			return
		}
		changed := m.mergeCountersLocked(attempts, cooldown)
		if m.hydration == done {
			m.hydration = nil
		}
		m.mu.Unlock()

		if changed {
			m.notify()
		}
	}()
}

// awaitHydration blocks until any in-flight hydration completes.
func (m *Manager) awaitHydration(ctx context.Context) {
	m.mu.Lock()
	done := m.hydration
	m.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// readCounters reads the durable brute-force counters. Missing keys are
// zero; only transport-level failures surface as errors.
func (m *Manager) readCounters(ctx context.Context) (attempts int, cooldown int64, err error) {
	v, err := m.secrets.Get(ctx, keyInvalidAttempts)
	switch {
	case err == nil:
		attempts = parseInt(v)
	case errors.Is(err, store.ErrNotFound):
	default:
		return 0, 0, err
	}

	v, err = m.secrets.Get(ctx, keyCooldownExpiresAt)
	switch {
	case err == nil:
		cooldown = parseInt64(v)
	case errors.Is(err, store.ErrNotFound):
	default:
		return 0, 0, err
	}
	return attempts, cooldown, nil
}

// persistCounters writes both counters as one group.
func (m *Manager) persistCounters(ctx context.Context, attempts int, cooldown int64) error {
	return m.secrets.SetMany(ctx, map[string]string{
		keyInvalidAttempts:   formatInt64(int64(attempts)),
		keyCooldownExpiresAt: formatInt64(cooldown),
	})
}

// mergeCountersLocked applies pairwise-maximum merge semantics. Caller
// must hold mu.
func (m *Manager) mergeCountersLocked(attempts int, cooldown int64) bool {
	changed := false
	if attempts > m.state.InvalidAttemptCount {
		m.state.InvalidAttemptCount = attempts
		changed = true
	}
	if cooldown > m.state.CooldownExpiresAt {
		m.state.CooldownExpiresAt = cooldown
		changed = true
	}
	return changed
}

// setCounters overwrites the in-memory counters.
func (m *Manager) setCounters(attempts int, cooldown int64) {
	m.mu.Lock()
	m.state.InvalidAttemptCount = attempts
	m.state.CooldownExpiresAt = cooldown
	m.mu.Unlock()
}

// credentialParams are the stored derivation inputs.
type credentialParams struct {
	salt     []byte
	opsLimit uint32
	memLimit uint32
}

// readCredential loads the stored verifier and derivation parameters.
// Missing or undecodable fields are an integrity error: audited, and
// reported to the caller as a non-guess failure.
func (m *Manager) readCredential(ctx context.Context) ([]byte, credentialParams, bool) {
	integrity := func(code, msg string) ([]byte, credentialParams, bool) {
		m.logAudit(audit.OpIntegrityError, audit.ResultError, &audit.ErrorInfo{Code: code, Message: msg})
		return nil, credentialParams{}, false
	}

	hashHex, err := m.secrets.Get(ctx, keyHash)
	if err != nil {
		return integrity("MISSING_HASH", "stored hash not readable")
	}
	saltHex, err := m.secrets.Get(ctx, keySalt)
	if err != nil {
		return integrity("MISSING_SALT", "stored salt not readable")
	}
	opsStr, err := m.secrets.Get(ctx, keyOpsLimit)
	if err != nil {
		return integrity("MISSING_PARAMS", "stored ops limit not readable")
	}
	memStr, err := m.secrets.Get(ctx, keyMemLimit)
	if err != nil {
		return integrity("MISSING_PARAMS", "stored mem limit not readable")
	}

	hash, err := hex.DecodeString(hashHex)
	if err != nil || len(hash) == 0 {
		return integrity("CORRUPT_HASH", "stored hash not decodable")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return integrity("CORRUPT_SALT", "stored salt not decodable")
	}

	return hash, credentialParams{
		salt:     salt,
		opsLimit: uint32(parseInt64(opsStr)),
		memLimit: uint32(parseInt64(memStr)),
	}, true
}

// ---------------------------------------------------------------------
// Notification, broadcast, audit helpers
// ---------------------------------------------------------------------

// notify invokes every listener with a snapshot copy, outside mu so a
// listener may subscribe, unsubscribe or read back.
func (m *Manager) notify() {
	m.mu.Lock()
	snapshot := m.state
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// publish sends a broadcast when a bus is wired. Best-effort: failures
// are reported, never propagated to the state change that caused them.
func (m *Manager) publish(msg syncbus.Message) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(msg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to broadcast %s: %v\n", msg.Type, err)
	}
}

func (m *Manager) publishBruteForce(attempts int, cooldown int64) {
	m.publish(syncbus.Message{
		Type:                syncbus.KindBruteForce,
		InvalidAttemptCount: attempts,
		CooldownExpiresAt:   cooldown,
	})
}

func (m *Manager) logAudit(op, result string, errInfo *audit.ErrorInfo) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Log(op, m.source, result, errInfo, nil); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to audit %s: %v\n", op, err)
	}
}

func (m *Manager) logAuditDenied(op, reason string) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.LogDenied(op, m.source, reason); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to audit %s: %v\n", op, err)
	}
}
