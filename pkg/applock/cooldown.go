package applock

import "time"

// Brute-force policy thresholds. The fifth consecutive failure starts an
// escalating cooldown; the tenth is treated as a compromised-device
// signal and forces a full account logout instead of another wait.
const (
	// CooldownThreshold is the failure count at which cooldowns begin.
	CooldownThreshold = 5

	// LogoutThreshold is the cumulative failure count that forces logout.
	LogoutThreshold = 10

	// cooldownBase is the first cooldown window.
	cooldownBase = 30 * time.Second
)

// CooldownDuration returns the cooldown for cumulative failure count n.
// Doubles per failure from 30s at the fifth: 30s, 60s, 120s, 240s, 480s
// for attempts 5 through 9. Zero below the threshold; callers never ask
// for n >= LogoutThreshold, which forces logout rather than a wait.
func CooldownDuration(n int) time.Duration {
	if n < CooldownThreshold {
		return 0
	}
	return cooldownBase << uint(n-CooldownThreshold)
}
