package policy

import "time"

// timeModifier scales how aggressively age-based rules apply as a
// declared maintenance window approaches: 1.0 outside the pre-window,
// linearly decaying to minApplyDelay/preWindow at maint, and pinned at
// that floor from maint onward (the window never fully closes to zero,
// matching spec.md's "never fully stop matching" maintenance-mode rule).
func timeModifier(now, maint time.Time, preWindow, minApplyDelay time.Duration) float64 {
	floor := float64(minApplyDelay) / float64(preWindow)
	start := maint.Add(-preWindow)
	switch {
	case now.Before(start):
		return 1.0
	case !now.Before(maint):
		return floor
	default:
		elapsed := now.Sub(start)
		frac := float64(elapsed) / float64(preWindow)
		return 1.0 - frac*(1.0-floor)
	}
}

// effectiveAge scales a raw age by 1/timeModifier so an entry looks
// older as the maintenance deadline approaches, making age-based rules
// fire earlier.
func effectiveAge(age time.Duration, modifier float64) time.Duration {
	if modifier <= 0 {
		modifier = 1
	}
	return time.Duration(float64(age) / modifier)
}
