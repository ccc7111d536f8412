package config

import "time"

// LockConfig carries the tuning values for the in-process lock service:
// the acquisition budget granted to callers and the thresholds used by the
// operational stats endpoint.  The contention classification cut-offs and
// the wait-time warning threshold are operational tuning values, not
// correctness-critical, so they are loaded from the environment with
// sensible defaults rather than hard-coded.
type LockConfig struct {
    AcquireTimeout   time.Duration // how long a caller may wait to become holder
    GoodThreshold    int           // active locks up to this count classify as "good"
    WaitWarnDuration time.Duration // average wait above this triggers recommendations
}

// LoadLockConfig reads the lock tuning values from environment variables.
// Defaults: 5s acquisition budget, "good" up to 5 active locks, warnings
// above a 100ms average wait.
func LoadLockConfig() LockConfig {
    return LockConfig{
        AcquireTimeout:   envDur("LOCK_ACQUIRE_TIMEOUT", 5*time.Second),
        GoodThreshold:    envInt("LOCK_GOOD_THRESHOLD", 5),
        WaitWarnDuration: envDur("LOCK_WAIT_WARN", 100*time.Millisecond),
    }
}
