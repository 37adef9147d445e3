package applock

import "github.com/forest6511/applockctl/pkg/syncbus"

// applyRemote folds a message from another surface into local state.
// Remote state is advisory for counters (pairwise max) and
// authoritative for config; a surface never re-broadcasts what it
// received, so there is no echo loop.
func (m *Manager) applyRemote(msg syncbus.Message) {
	switch msg.Type {
	case syncbus.KindLock:
		m.mu.Lock()
		changed := m.state.Enabled && !m.state.IsLocked
		if changed {
			m.state.IsLocked = true
			m.state.LockScreenMode = ModeLock
			if m.state.LockType.UsesPassphrase() {
				m.startHydrationLocked()
			}
		}
		m.mu.Unlock()
		if changed {
			m.notify()
		}

	case syncbus.KindUnlock:
		m.mu.Lock()
		changed := m.state.IsLocked
		m.state.IsLocked = false
		m.state.InvalidAttemptCount = 0
		m.state.CooldownExpiresAt = 0
		m.mu.Unlock()
		if changed {
			m.notify()
		}

	case syncbus.KindConfig:
		enabled := msg.Enabled
		lockType := ParseLockType(msg.LockType)

		// A device lock enabled elsewhere may not be usable here.
		if lockType == LockTypeDevice && !m.auth.Capability().Available {
			lockType = LockTypeNone
			enabled = false
		}
		if !enabled {
			lockType = LockTypeNone
		}

		m.mu.Lock()
		changed := m.state.Enabled != enabled ||
			m.state.LockType != lockType ||
			m.state.AutoLockTimeMs != msg.AutoLockTimeMs
		m.state.Enabled = enabled
		m.state.LockType = lockType
		m.state.AutoLockTimeMs = msg.AutoLockTimeMs
		if !enabled {
			changed = changed || m.state.IsLocked
			m.state.IsLocked = false
			m.state.InvalidAttemptCount = 0
			m.state.CooldownExpiresAt = 0
		}
		m.mu.Unlock()
		if changed {
			m.notify()
		}

	case syncbus.KindBruteForce:
		m.mu.Lock()
		changed := m.mergeCountersLocked(msg.InvalidAttemptCount, msg.CooldownExpiresAt)
		m.mu.Unlock()
		if changed {
			m.notify()
		}
	}
}
