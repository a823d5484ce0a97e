package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func quietScheduler() *Scheduler {
	return New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestScheduler_RegisterRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := quietScheduler()
	defer s.Stop()

	job := &countingJob{name: "reconcile"}
	require.NoError(t, s.Register("*/5 * * * *", job))

	err := s.Register("@hourly", &countingJob{name: "reconcile"})
	assert.ErrorContains(t, err, "already registered")

	err = s.Register("not a cron spec", &countingJob{name: "other"})
	assert.ErrorContains(t, err, "invalid spec")
}

func TestScheduler_RunNow(t *testing.T) {
	s := quietScheduler()
	defer s.Stop()

	job := &countingJob{name: "scan_risk"}
	require.NoError(t, s.Register("@hourly", job))

	require.NoError(t, s.RunNow("scan_risk"))
	assert.Equal(t, 1, job.runs)

	result, ok := s.LastRun("scan_risk")
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, "scan_risk", result.JobName)

	assert.ErrorContains(t, s.RunNow("unknown"), "unknown job")
}

func TestScheduler_LastRunRecordsFailure(t *testing.T) {
	s := quietScheduler()
	defer s.Stop()

	boom := errors.New("job exploded")
	job := &countingJob{name: "failing", err: boom}
	require.NoError(t, s.Register("@hourly", job))
	require.NoError(t, s.RunNow("failing"))

	result, ok := s.LastRun("failing")
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, boom)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := quietScheduler()

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
