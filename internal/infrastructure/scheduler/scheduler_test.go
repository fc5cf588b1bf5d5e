package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/pkg/logger"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error { l.released++; return nil }, true, nil
}

func newTestScheduler(locker Locker) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = logger.Nop()
	cfg.Locker = locker
	cfg.TickInterval = 5 * time.Millisecond
	return NewScheduler(cfg)
}

func TestParseCron(t *testing.T) {
	ce, err := ParseCron("0 9 * * 1-5")
	require.NoError(t, err)

	// пятница 10:00 -> понедельник 09:00
	friday := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC), ce.Next(friday))

	every, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 3, 10, 15, 0, 0, time.UTC), every.Next(friday))

	list, err := ParseCron("0 8,12 * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC), list.Next(friday))

	weekly, err := ParseCron("@weekly")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), weekly.Next(friday))

	for _, bad := range []string{"", "* * * *", "61 * * * *", "*/0 * * * *", "a * * * *"} {
		_, err := ParseCron(bad)
		assert.Error(t, err, bad)
	}
}

func TestCronFollowsLocationOfTime(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*60*60)
	ce, err := ParseCron("0 9 * * *")
	require.NoError(t, err)

	now := time.Date(2024, 5, 3, 3, 0, 0, 0, time.UTC).In(almaty) // 08:00 local
	next := ce.Next(now)
	assert.Equal(t, time.Date(2024, 5, 3, 4, 0, 0, 0, time.UTC), next.UTC())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 10m")
	require.NoError(t, err)
	assert.Equal(t, "@every 10m0s", s.String())

	friday := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	s, err = ParseSchedule("@workdays 09:00")
	require.NoError(t, err)
	assert.Equal(t, "@workdays 09:00", s.String())
	assert.Equal(t, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC), s.Next(friday))

	s, err = ParseSchedule("@daily 7")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 4, 7, 0, 0, 0, time.UTC), s.Next(friday))

	s, err = ParseSchedule("30 9 * * *")
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * *", s.String())

	_, err = ParseSchedule("@daily 25")
	assert.Error(t, err)
	_, err = ParseSchedule("@every nope")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.ErrorIs(t, s.SetEnabled("missing", false), ErrJobNotFound)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(nil)
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("db down")}
	panicking := &countingJob{name: "panicking", panic: true}
	for _, j := range []*countingJob{ok, failing, panicking} {
		require.NoError(t, s.Register(j, NewIntervalSchedule(time.Hour)))
	}

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = s.RunNow(context.Background(), "failing")
	assert.EqualError(t, err, "db down")

	_, err = s.RunNow(context.Background(), "panicking")
	assert.ErrorIs(t, err, ErrJobPanic)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.Len(t, s.GetHistory(0), 3)
	assert.Len(t, s.GetHistory(1), 1)
}

func TestRunNow_SkippedWhenLocked(t *testing.T) {
	locker := &fakeLocker{held: true}
	s := newTestScheduler(locker)
	job := &countingJob{name: "locked"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "locked")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(0), job.runs.Load())

	locker.held = false
	_, err = s.RunNow(context.Background(), "locked")
	require.NoError(t, err)
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Equal(t, 1, locker.released)
}

func TestLoopRunsDueJobs(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
