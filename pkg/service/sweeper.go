package service

import (
	"context"
	"time"

	"github.com/frostbyte73/core"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/admission-server/pkg/config"
	"github.com/livekit/admission-server/pkg/telemetry/prometheus"
)

// Sweeper evicts pending entries whose owners stopped polling without
// removing themselves. Clients abandoning a wait send a best-effort remove;
// when that is lost the entry would otherwise sit queued forever.
type Sweeper struct {
	store    WaitingStore
	maxAge   time.Duration
	interval time.Duration

	stop core.Fuse
}

func NewSweeper(conf *config.Config, store WaitingStore) *Sweeper {
	return &Sweeper{
		store:    store,
		maxAge:   conf.WaitingRoom.MaxPendingAge,
		interval: conf.WaitingRoom.SweepInterval,
	}
}

func (s *Sweeper) Start() {
	if s.maxAge == 0 {
		return
	}
	go s.worker()
}

func (s *Sweeper) Stop() {
	s.stop.Break()
}

func (s *Sweeper) worker() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop.Watch():
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	evicted, err := s.store.SweepPending(ctx, s.maxAge)
	if err != nil {
		logger.Warnw("pending sweep failed", err)
	}
	if len(evicted) > 0 {
		prometheus.EvictedAdd(len(evicted))
		for _, p := range evicted {
			logger.Infow("evicted stale pending participant",
				"identity", p.Identity, "waited", time.Since(p.JoinedAt))
		}
	}
}
