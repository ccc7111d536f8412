package config

// This file implements the dynamic runtime settings snapshot.  A handful of
// operational switches (currently whether registration is open at all) can
// be flipped at runtime without a restart by writing keys to Redis.  Rather
// than reading Redis (or, worse, environment variables) at arbitrary call
// sites, callers take one immutable RuntimeSettings snapshot per request
// from a RuntimeSource, which refreshes its cached copy at a fixed
// interval.  When no Redis client is configured the defaults apply and the
// feature degrades to static configuration.

import (
    "context"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"
)

// RuntimeSettings is an immutable snapshot of the dynamic switches.
type RuntimeSettings struct {
    RegistrationOpen bool // master switch for creating new purchases
}

// RuntimeConfig controls how snapshots are refreshed.
type RuntimeConfig struct {
    RefreshInterval time.Duration // how long a cached snapshot stays valid
    Prefix          string        // Redis key prefix, e.g. "runtime"
}

// LoadRuntimeConfig reads the snapshot refresh settings from environment
// variables.  Defaults: refresh every 30s under the "runtime" prefix.
func LoadRuntimeConfig() RuntimeConfig {
    return RuntimeConfig{
        RefreshInterval: envDur("RUNTIME_REFRESH_INTERVAL", 30*time.Second),
        Prefix:          envStr("RUNTIME_PREFIX", "runtime"),
    }
}

// RuntimeSource serves RuntimeSettings snapshots, re-reading Redis once the
// cached copy is older than the refresh interval.  It is safe for
// concurrent use.
type RuntimeSource struct {
    rdb *redis.Client
    cfg RuntimeConfig

    mu        sync.Mutex
    cached    RuntimeSettings
    fetchedAt time.Time
}

// NewRuntimeSource builds a RuntimeSource.  The Redis client may be nil,
// in which case every snapshot carries the defaults.
func NewRuntimeSource(rdb *redis.Client, cfg RuntimeConfig) *RuntimeSource {
    return &RuntimeSource{rdb: rdb, cfg: cfg}
}

// Snapshot returns the current settings, refreshing from Redis when the
// cached copy has expired.  Redis errors fall back to the last known (or
// default) values; a missing key means the default for that switch.
func (s *RuntimeSource) Snapshot(ctx context.Context) RuntimeSettings {
    s.mu.Lock()
    defer s.mu.Unlock()
    if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.cfg.RefreshInterval {
        return s.cached
    }
    settings := RuntimeSettings{RegistrationOpen: true}
    if s.rdb != nil {
        v, err := s.rdb.Get(ctx, s.cfg.Prefix+":registration_open").Result()
        switch {
        case err == redis.Nil:
            // key absent, keep default
        case err != nil:
            // Redis unavailable: serve the previous snapshot if we have one.
            if !s.fetchedAt.IsZero() {
                return s.cached
            }
        default:
            settings.RegistrationOpen = v == "1" || v == "true"
        }
    }
    s.cached = settings
    s.fetchedAt = time.Now()
    return s.cached
}
