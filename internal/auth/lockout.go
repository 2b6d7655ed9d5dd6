package auth

import "time"

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = 30 * time.Minute
)

// LockState is the per-user slice of state the lockout policy operates on.
// It is read from and written back to the store by the caller; the policy
// itself never touches storage.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutPolicy decides when repeated login failures suspend an account.
// The lock is advisory and time-based: nothing clears it actively, every
// login re-evaluates it against the current clock.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: defaultMaxAttempts, LockDuration: defaultLockDuration}
}

func (p LockoutPolicy) IsLocked(state LockState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// OnFailure increments the failure counter and, once the counter reaches the
// threshold, stamps a lock expiry. The counter is deliberately not reset when
// the lock is applied: only a successful login clears it, so attempts made
// after the lock lapses re-lock immediately on failure.
func (p LockoutPolicy) OnFailure(state LockState, now time.Time) LockState {
	next := LockState{FailedAttempts: state.FailedAttempts + 1, LockedUntil: state.LockedUntil}
	if next.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess resets the counter and clears any lock.
func (p LockoutPolicy) OnSuccess() LockState {
	return LockState{}
}
