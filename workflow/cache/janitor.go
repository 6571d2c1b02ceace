package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is anything holding entries that expire.
type Sweeper interface {
	Sweep() int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func() int

// Sweep calls f.
func (f SweeperFunc) Sweep() int { return f() }

// Janitor periodically sweeps a named set of Sweepers.
type Janitor struct {
	interval time.Duration
	sweepers map[string]Sweeper
	logger   *zap.Logger
}

// NewJanitor creates a janitor. interval <= 0 defaults to one minute.
func NewJanitor(interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		interval: interval,
		sweepers: make(map[string]Sweeper),
		logger:   logger.With(zap.String("component", "janitor")),
	}
}

// Add registers a sweeper under name. Must be called before Run.
func (j *Janitor) Add(name string, s Sweeper) *Janitor {
	j.sweepers[name] = s
	return j
}

// SweepOnce sweeps every registered sweeper and returns the removals per name.
func (j *Janitor) SweepOnce() map[string]int {
	out := make(map[string]int, len(j.sweepers))
	for name, s := range j.sweepers {
		n := s.Sweep()
		out[name] = n
		if n > 0 {
			j.logger.Debug("swept expired entries", zap.String("table", name), zap.Int("removed", n))
		}
	}
	return out
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepOnce()
		}
	}
}
