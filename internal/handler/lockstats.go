package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/event-registration/internal/config" // lock tuning thresholds
    "github.com/iliyamo/event-registration/internal/lock"   // lock service stats
)

// Efficiency classification returned by the lock stats endpoint.
const (
    efficiencyOptimal        = "optimal"
    efficiencyGood           = "good"
    efficiencyHighContention = "high_contention"
)

// LockStatsHandler exposes a read-only snapshot of the in-process lock
// service for operators.  The route is admin-only; the numbers are
// cumulative since process start.
type LockStatsHandler struct {
    Locks *lock.Service
    Cfg   config.LockConfig
}

func NewLockStatsHandler(locks *lock.Service, cfg config.LockConfig) *LockStatsHandler {
    return &LockStatsHandler{Locks: locks, Cfg: cfg}
}

type lockStatsResp struct {
    ActiveLocks       int      `json:"active_locks"`
    TotalAcquisitions uint64   `json:"total_acquisitions"`
    AvgWaitMillis     float64  `json:"avg_wait_ms"`
    Efficiency        string   `json:"efficiency"`
    Recommendations   []string `json:"recommendations,omitempty"`
}

// Stats handles GET /v1/system/locks.  The efficiency label classifies the
// number of currently held locks: none is optimal, up to the configured
// threshold is good, anything beyond that counts as high contention.  When
// the average acquisition wait crosses the configured warning line the
// response also carries tuning recommendations.
func (h *LockStatsHandler) Stats(c echo.Context) error {
    st := h.Locks.Stats()

    resp := lockStatsResp{
        ActiveLocks:       st.ActiveLocks,
        TotalAcquisitions: st.TotalAcquisitions,
        AvgWaitMillis:     st.AvgWaitMillis,
    }
    switch {
    case st.ActiveLocks == 0:
        resp.Efficiency = efficiencyOptimal
    case st.ActiveLocks <= h.Cfg.GoodThreshold:
        resp.Efficiency = efficiencyGood
    default:
        resp.Efficiency = efficiencyHighContention
    }

    warnMillis := float64(h.Cfg.WaitWarnDuration.Milliseconds())
    if st.AvgWaitMillis > warnMillis {
        resp.Recommendations = append(resp.Recommendations,
            "average lock wait exceeds the warning threshold; check for slow payment provider calls inside locked sections",
            "consider narrowing lock scopes or raising capacity on heavily contended events",
        )
    }
    return c.JSON(http.StatusOK, resp)
}
