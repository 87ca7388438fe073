package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/distlock"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func noop(context.Context) (any, error) { return "ok", nil }

func registerDefaults(t *testing.T, s *Scheduler, fn JobFunc) {
	t.Helper()
	for _, name := range []string{JobScanEvents, JobProcessTriggers, JobProcessLeftovers, JobSendPending} {
		require.NoError(t, s.Register(name, DefaultSchedules[name], fn))
	}
}

// blockingJob signals started and then waits for release.
func blockingJob() (JobFunc, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	return func(ctx context.Context) (any, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, started, release
}

func TestRegister_Validation(t *testing.T) {
	s := New(nil)
	assert.Error(t, s.Register("bad", "every hour", noop))
	require.NoError(t, s.Register(JobScanEvents, "0 * * * *", noop))
	assert.Error(t, s.Register(JobScanEvents, "5 * * * *", noop))
	assert.Equal(t, []string{JobScanEvents}, s.Jobs())
}

func TestStart_IsIdempotent(t *testing.T) {
	s := New(nil)
	registerDefaults(t, s, noop)

	for name, st := range s.Status() {
		assert.Equal(t, StateStopped, st.State, name)
		assert.Nil(t, st.NextRun)
	}

	s.Start()
	s.Start()
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 4)
	st := s.Status()
	require.Len(t, st, 4)
	for name, js := range st {
		assert.Equal(t, StateRunning, js.State, name)
		assert.Equal(t, DefaultSchedules[name], js.Schedule)
		require.NotNil(t, js.NextRun)
		assert.True(t, js.NextRun.After(time.Now()))
	}
	assert.Equal(t, 45, st[JobSendPending].NextRun.Minute())
}

func TestStartStopJob(t *testing.T) {
	s := New(nil)
	registerDefaults(t, s, noop)

	assert.ErrorIs(t, s.StartJob("nope"), ErrUnknownJob)
	assert.ErrorIs(t, s.StopJob("nope"), ErrUnknownJob)

	require.NoError(t, s.StartJob(JobSendPending))
	defer s.Stop()
	st := s.Status()
	assert.Equal(t, StateRunning, st[JobSendPending].State)
	assert.Equal(t, StateStopped, st[JobScanEvents].State)

	require.NoError(t, s.StopJob(JobSendPending))
	assert.Equal(t, StateStopped, s.Status()[JobSendPending].State)
	assert.Empty(t, s.cron.Entries())
}

func TestRunJobManually_RecordsStatusAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(nil, WithMetrics(m))
	require.NoError(t, s.Register(JobProcessTriggers, DefaultSchedules[JobProcessTriggers], noop))
	require.NoError(t, s.Register(JobSendPending, DefaultSchedules[JobSendPending], func(context.Context) (any, error) {
		return nil, errors.New("smtp down")
	}))

	res, err := s.RunJobManually(context.Background(), JobProcessTriggers)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	_, err = s.RunJobManually(context.Background(), JobSendPending)
	assert.EqualError(t, err, "smtp down")

	_, err = s.RunJobManually(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)

	st := s.Status()
	assert.Equal(t, int64(1), st[JobProcessTriggers].Runs)
	assert.Equal(t, "ok", st[JobProcessTriggers].LastResult)
	require.NotNil(t, st[JobProcessTriggers].LastRun)
	assert.Equal(t, "smtp down", st[JobSendPending].LastError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(JobProcessTriggers, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(JobSendPending, "error")))
}

func TestRunJobManually_PanicBecomesError(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(JobScanEvents, "0 * * * *", func(context.Context) (any, error) {
		panic("boom")
	}))
	_, err := s.RunJobManually(context.Background(), JobScanEvents)
	assert.ErrorContains(t, err, "panicked")
	assert.False(t, s.Status()[JobScanEvents].Executing)
}

func TestRunJobManually_BusyInProcess(t *testing.T) {
	s := New(nil)
	fn, started, release := blockingJob()
	require.NoError(t, s.Register(JobProcessTriggers, "10 * * * *", fn))

	errc := make(chan error, 1)
	go func() {
		_, err := s.RunJobManually(context.Background(), JobProcessTriggers)
		errc <- err
	}()
	<-started
	assert.True(t, s.Status()[JobProcessTriggers].Executing)

	_, err := s.RunJobManually(context.Background(), JobProcessTriggers)
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	require.NoError(t, <-errc)
	assert.False(t, s.Status()[JobProcessTriggers].Executing)
}

func TestRunJobManually_BusyAcrossInstances(t *testing.T) {
	client := setupTestRedis(t)
	locks := distlock.NewProvider(client, nil)
	s1 := New(locks)
	s2 := New(locks)

	fn, started, release := blockingJob()
	require.NoError(t, s1.Register(JobProcessTriggers, "10 * * * *", fn))
	require.NoError(t, s2.Register(JobProcessTriggers, "10 * * * *", noop))

	errc := make(chan error, 1)
	go func() {
		_, err := s1.RunJobManually(context.Background(), JobProcessTriggers)
		errc <- err
	}()
	<-started

	_, err := s2.RunJobManually(context.Background(), JobProcessTriggers)
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	require.NoError(t, <-errc)

	res, err := s2.RunJobManually(context.Background(), JobProcessTriggers)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestRunJobManually_RenewsLockPastTTL(t *testing.T) {
	locks := distlock.NewProvider(nil, nil)
	ttl := 40 * time.Millisecond
	s1 := New(locks, WithLockTTL(ttl))
	s2 := New(locks, WithLockTTL(ttl))

	fn, started, release := blockingJob()
	require.NoError(t, s1.Register(JobScanEvents, "0 * * * *", fn))
	require.NoError(t, s2.Register(JobScanEvents, "0 * * * *", noop))

	errc := make(chan error, 1)
	go func() {
		_, err := s1.RunJobManually(context.Background(), JobScanEvents)
		errc <- err
	}()
	<-started

	time.Sleep(3 * ttl)
	_, err := s2.RunJobManually(context.Background(), JobScanEvents)
	assert.ErrorIs(t, err, ErrJobBusy, "lock must be renewed while the run is in flight")

	close(release)
	require.NoError(t, <-errc)

	_, err = s2.RunJobManually(context.Background(), JobScanEvents)
	require.NoError(t, err)
}

func TestStop_WaitsForExecutions(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.Register(JobScanEvents, "0 * * * *", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(finished)
		return nil, ctx.Err()
	}))
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _, _ = s.RunJobManually(ctx, JobScanEvents) }()
	<-started

	done := s.Stop()
	select {
	case <-done.Done():
		t.Fatal("stop finished while a job was executing")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not finish")
	}
	select {
	case <-finished:
	default:
		t.Fatal("job had not finished when stop returned")
	}
	assert.Equal(t, StateStopped, s.Status()[JobScanEvents].State)
}
