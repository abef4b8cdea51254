package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyxlight/ledger/internal/platform/mlog"
)

func TestRunNow_ExecutesRegisteredTask(t *testing.T) {
	s := New(&mlog.NoneLogger{})

	var called bool
	s.AddTask("test_task", 2, 0, func(ctx context.Context) (map[string]any, error) {
		called = true
		return map[string]any{"rows": 3}, nil
	})

	result, err := s.RunNow(context.Background(), "test_task")
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, 3, result["rows"])
}

func TestRunNow_UnknownTaskErrors(t *testing.T) {
	s := New(&mlog.NoneLogger{})

	_, err := s.RunNow(context.Background(), "does_not_exist")
	require.Error(t, err)
}

func TestRunNow_TracksErrorCount(t *testing.T) {
	s := New(&mlog.NoneLogger{})

	s.AddTask("failing_task", 2, 0, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	_, err := s.RunNow(context.Background(), "failing_task")
	require.NoError(t, err) // RunNow itself doesn't surface the task's error

	stats := s.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, 1, stats[0].ErrorCount)
	require.Equal(t, 0, stats[0].RunCount)
}

func TestShouldRun_OnlyFiresOncePerDayAtScheduledMinute(t *testing.T) {
	task := &Task{Name: "x", Hour: 2, Minute: 0, Enabled: true, Fn: func(ctx context.Context) (map[string]any, error) { return nil, nil }}

	today := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	require.True(t, task.shouldRun(today))

	task.lastRun = today
	laterSameDay := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	require.False(t, task.shouldRun(laterSameDay))

	nextDay := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	require.True(t, task.shouldRun(nextDay))
}

func TestShouldRun_DisabledTaskNeverRuns(t *testing.T) {
	task := &Task{Name: "x", Hour: 2, Minute: 0, Enabled: false, Fn: func(ctx context.Context) (map[string]any, error) { return nil, nil }}

	now := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	require.False(t, task.shouldRun(now))
}

func TestSetupDefault_RegistersThreeNightlyTasks(t *testing.T) {
	s := New(&mlog.NoneLogger{})

	noop := func(ctx context.Context) (map[string]any, error) { return nil, nil }
	SetupDefault(s, noop, noop, noop)

	stats := s.Stats()
	require.Len(t, stats, 3)

	byName := make(map[string]TaskStats)
	for _, st := range stats {
		byName[st.Name] = st
	}

	require.Equal(t, "02:00", byName["nightly_dpo_export"].Schedule)
	require.Equal(t, "03:00", byName["nightly_backup"].Schedule)
	require.Equal(t, "05:00", byName["cleanup_logs"].Schedule)
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	s := New(&mlog.NoneLogger{})
	s.Stop()
}
