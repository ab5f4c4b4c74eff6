package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wapuda/metanix/internal/extract"
)

// Janitor removes request workspaces a crashed worker left behind.
type Janitor struct {
	root     string
	ttl      time.Duration
	interval time.Duration
}

func NewJanitor(root string, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = ttl
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{root: root, ttl: ttl, interval: interval}
}

// Start sweeps once immediately and then every interval until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().Str("root", j.root).Dur("ttl", j.ttl).Msg("workspace janitor started")
	j.Sweep(time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("workspace janitor stopped")
			return
		case now := <-ticker.C:
			j.Sweep(now)
		}
	}
}

func (j *Janitor) Sweep(now time.Time) int {
	n, err := extract.SweepWorkspaces(j.root, j.ttl, now)
	if err != nil {
		log.Warn().Err(err).Msg("workspace sweep incomplete")
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("stale workspaces removed")
	}
	return n
}
