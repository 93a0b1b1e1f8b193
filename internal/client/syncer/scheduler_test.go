package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	runs    atomic.Int32
	pending atomic.Int32
	gate    chan struct{}
}

func (r *fakeRunner) SyncData(context.Context) error {
	if r.gate != nil {
		<-r.gate
	}
	r.runs.Add(1)
	return nil
}

func (r *fakeRunner) MarkPending() { r.pending.Add(1) }

func newTestScheduler(t *testing.T, delay time.Duration) (*Scheduler, *fakeRunner) {
	t.Helper()
	r := &fakeRunner{}
	s := NewScheduler(context.Background(), r, delay, logging.Nop())
	t.Cleanup(s.Stop)
	return s, r
}

func TestScheduler_DebounceCoalescesBursts(t *testing.T) {
	s, r := newTestScheduler(t, 30*time.Millisecond)

	for i := 0; i < 5; i++ {
		s.ScheduleSync()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int32(0), r.runs.Load())
	assert.Equal(t, int32(5), r.pending.Load())

	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, timeoutShort, tick)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), r.runs.Load())
}

func TestScheduler_OfflineDefersUntilOnline(t *testing.T) {
	s, r := newTestScheduler(t, 10*time.Millisecond)

	s.SetOnline(false)
	s.ScheduleSync()
	s.ScheduleSync()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), r.runs.Load())
	assert.Equal(t, int32(2), r.pending.Load())

	s.SetOnline(true)
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, timeoutShort, tick)

	// Repeated online reports do not trigger more runs.
	s.SetOnline(true)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), r.runs.Load())
}

func TestScheduler_GoingOfflineKeepsPendingDebounce(t *testing.T) {
	s, r := newTestScheduler(t, 50*time.Millisecond)

	s.ScheduleSync()
	s.SetOnline(false)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), r.runs.Load())

	s.SetOnline(true)
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, timeoutShort, tick)
}

func TestScheduler_OnlineWithoutRequestDoesNothing(t *testing.T) {
	s, r := newTestScheduler(t, 10*time.Millisecond)
	s.SetOnline(false)
	s.SetOnline(true)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), r.runs.Load())
	assert.True(t, s.Online())
}

func TestScheduler_ForceSyncSkipsDebounce(t *testing.T) {
	s, r := newTestScheduler(t, time.Hour)

	s.ScheduleSync()
	s.ForceSync()
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, timeoutShort, tick)
}

func TestScheduler_StopWaitsForRunAndIgnoresLaterRequests(t *testing.T) {
	r := &fakeRunner{gate: make(chan struct{})}
	s := NewScheduler(context.Background(), r, 10*time.Millisecond, nil)

	s.ForceSync()

	var wg sync.WaitGroup
	wg.Add(1)
	stopped := make(chan struct{})
	go func() {
		defer wg.Done()
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(r.gate)
	wg.Wait()
	assert.Equal(t, int32(1), r.runs.Load())

	s.ScheduleSync()
	s.ForceSync()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), r.runs.Load())
}

func TestScheduler_DrivesEngineToSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := NewScheduler(ctx, f.engine, 10*time.Millisecond, logging.Nop())
	t.Cleanup(s.Stop)
	f.records.SetNotifier(s)

	s.SetOnline(false)
	_, err := f.records.Update(ctx, &models.Note{Meta: models.Meta{ID: "A"}, Title: "offline edit"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, f.engine.Status().State)
	assert.Equal(t, 0, f.api.pushCount())

	s.SetOnline(true)
	require.Eventually(t, func() bool { return f.api.pushCount() == 1 }, timeoutShort, tick)
	require.Eventually(t, func() bool { return f.engine.Status().State == models.SyncSuccess }, timeoutShort, tick)
	assert.GreaterOrEqual(t, f.cursor(t), "2024-03-01T12:00:00.000Z")
}
