package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
)

// DefaultDebounce is the quiet period after the last local edit before a
// scheduled sync starts.
const DefaultDebounce = 2 * time.Second

// Runner is what the scheduler triggers. *Engine implements it.
type Runner interface {
	SyncData(ctx context.Context) error
	MarkPending()
}

// Scheduler debounces sync requests and holds them while offline.
type Scheduler struct {
	ctx    context.Context
	runner Runner
	delay  time.Duration
	log    logging.Logger

	mu            sync.Mutex
	timer         *time.Timer
	online        bool
	waitingOnline bool
	stopped       bool

	wg sync.WaitGroup
}

// NewScheduler returns a scheduler that starts out online. Runs use ctx.
func NewScheduler(ctx context.Context, runner Runner, delay time.Duration, log logging.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{ctx: ctx, runner: runner, delay: delay, log: log, online: true}
}

// ScheduleSync requests a sync after the debounce delay, restarting the delay
// if one is already pending. While offline the request waits for SetOnline.
func (s *Scheduler) ScheduleSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.runner.MarkPending()

	if !s.online {
		if !s.waitingOnline {
			s.waitingOnline = true
			s.log.Debug(s.ctx, "offline, sync deferred until back online")
		}
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// ForceSync cancels the debounce and syncs now.
func (s *Scheduler) ForceSync() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopTimer()
	s.mu.Unlock()
	s.start()
}

// SetOnline records connectivity. Coming back online runs the sync that was
// deferred while offline, once.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	run := online && !wasOnline && s.waitingOnline && !s.stopped
	if run {
		s.waitingOnline = false
	}
	if !online {
		// A pending debounce would only fail; keep it as a deferred request.
		if s.timer != nil && s.timer.Stop() {
			s.waitingOnline = true
		}
		s.timer = nil
	}
	s.mu.Unlock()

	if run {
		s.log.Info(s.ctx, "back online, running deferred sync")
		s.start()
	}
}

func (s *Scheduler) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Stop cancels timers and waits for a running sync to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopTimer()
	s.waitingOnline = false
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	s.start()
}

func (s *Scheduler) start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runner.SyncData(s.ctx)
	}()
}
