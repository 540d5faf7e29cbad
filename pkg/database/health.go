package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolHealth is a point-in-time snapshot of database connectivity and
// connection pool pressure, surfaced on the health endpoint.
type PoolHealth struct {
	PingMS   int64 `json:"ping_ms"`
	Open     int   `json:"open"`
	InUse    int   `json:"in_use"`
	Idle     int   `json:"idle"`
	MaxOpen  int   `json:"max_open"`
	Waits    int64 `json:"waits"`
	WaitedMS int64 `json:"waited_ms"`
}

// Summary renders the snapshot as a one-line health check message.
func (h *PoolHealth) Summary() string {
	return fmt.Sprintf("ping %dms, %d/%d conns in use, %d waits",
		h.PingMS, h.InUse, h.MaxOpen, h.Waits)
}

// Health pings the database and snapshots pool statistics. The snapshot is
// returned even when the ping fails so callers can report pool pressure
// alongside the error.
func Health(ctx context.Context, db *sql.DB) (*PoolHealth, error) {
	started := time.Now()
	err := db.PingContext(ctx)

	stats := db.Stats()
	h := &PoolHealth{
		PingMS:   time.Since(started).Milliseconds(),
		Open:     stats.OpenConnections,
		InUse:    stats.InUse,
		Idle:     stats.Idle,
		MaxOpen:  stats.MaxOpenConnections,
		Waits:    stats.WaitCount,
		WaitedMS: stats.WaitDuration.Milliseconds(),
	}
	if err != nil {
		return h, fmt.Errorf("pinging database: %w", err)
	}
	return h, nil
}
