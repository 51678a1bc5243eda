package cron

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "jobs.yaml"))

	// Missing file is empty
	jobs, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, jobs)

	job := &Job{ID: "j1", Schedule: "@every 1h", Type: "every", Message: "standup", Channel: "telegram", ChatID: "1", Enabled: true}
	require.NoError(t, store.Save(job))

	jobs, err = store.LoadAll()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "standup", jobs[0].Message)

	// Save with same ID replaces
	job.Message = "updated"
	require.NoError(t, store.Save(job))
	jobs, _ = store.LoadAll()
	require.Len(t, jobs, 1)
	assert.Equal(t, "updated", jobs[0].Message)

	require.NoError(t, store.Delete("j1"))
	jobs, _ = store.LoadAll()
	assert.Empty(t, jobs)
}

func TestScheduler_AddListRemove(t *testing.T) {
	s := NewScheduler(NewFileStore(filepath.Join(t.TempDir(), "jobs.yaml")), nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	out, err := s.AddJob("standup", "post the standup", "telegram", "1", "0 9 * * *", 0, "")
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled")

	listing, err := s.ListJobs()
	require.NoError(t, err)
	assert.Contains(t, listing, "post the standup")

	jobs := s.List()
	require.Len(t, jobs, 1)

	out, err = s.RemoveJob(jobs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	listing, _ = s.ListJobs()
	assert.Equal(t, "No scheduled jobs.", listing)
}

func TestScheduler_AddJob_RequiresSchedule(t *testing.T) {
	s := NewScheduler(nil, nil)
	_, err := s.AddJob("x", "msg", "cli", "1", "", 0, "")
	assert.Error(t, err)
}

func TestScheduler_RejectsInvalidCron(t *testing.T) {
	s := NewScheduler(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.AddJob("bad", "msg", "cli", "1", "not a cron expr", 0, "")
	assert.Error(t, err)
}

func TestScheduler_OneShotFiresHandler(t *testing.T) {
	var fired atomic.Int32
	var gotChannel, gotChat, gotMessage string
	handler := func(_ context.Context, job *Job) error {
		gotChannel, gotChat, gotMessage = job.Channel, job.ChatID, job.Message
		fired.Add(1)
		return nil
	}

	s := NewScheduler(NewFileStore(filepath.Join(t.TempDir(), "jobs.yaml")), handler)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.AddJob("reminder", "drink water", "telegram", "42", "", 0, "50ms")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "telegram", gotChannel)
	assert.Equal(t, "42", gotChat)
	assert.Equal(t, "drink water", gotMessage)

	// One-shot jobs remove themselves after firing
	require.Eventually(t, func() bool { return len(s.List()) == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_LoadsPersistedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	store := NewFileStore(path)
	require.NoError(t, store.Save(&Job{
		ID: "persisted", Schedule: "0 9 * * *", Type: "cron",
		Message: "daily", Channel: "cli", ChatID: "1", Enabled: true,
	}))

	s := NewScheduler(NewFileStore(path), nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	job, ok := s.Get("persisted")
	require.True(t, ok)
	assert.Equal(t, "daily", job.Message)
}

func TestParseOneShotTime(t *testing.T) {
	now := time.Now()

	got, err := parseOneShotTime("5m")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(5*time.Minute), got, time.Second)

	got, err = parseOneShotTime("2030-01-02T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, 2030, got.Year())

	_, err = parseOneShotTime("whenever")
	assert.Error(t, err)
}
