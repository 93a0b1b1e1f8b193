package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor probes the server periodically and reports every result.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	onChange func(online bool)
	log      logging.Logger

	online atomic.Bool
	known  atomic.Bool
}

func NewMonitor(p Pinger, interval time.Duration, onChange func(bool), log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{pinger: p, interval: interval, onChange: onChange, log: log}
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Check probes once and reports the result.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout())
	err := m.pinger.Ping(pctx)
	cancel()

	online := err == nil
	prev := m.online.Swap(online)
	if !m.known.Swap(true) || prev != online {
		if online {
			m.log.Info(ctx, "server reachable")
		} else {
			m.log.Warn(ctx, "server unreachable", "error", err)
		}
	}
	if m.onChange != nil {
		m.onChange(online)
	}
	return online
}

func (m *Monitor) timeout() time.Duration {
	if m.interval > 0 && m.interval < 10*time.Second {
		return m.interval
	}
	return 10 * time.Second
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	interval := m.interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}
