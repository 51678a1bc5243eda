// Package cron schedules reminders and recurring agent tasks. Jobs are
// persisted to a YAML file and fired through a handler that feeds the
// job's message back into the gateway as a synthetic inbound message.
package cron

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled task.
type Job struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name,omitempty" json:"name,omitempty"`
	Schedule  string     `yaml:"schedule" json:"schedule"`
	Type      string     `yaml:"type" json:"type"` // "cron", "every", "at"
	Message   string     `yaml:"message" json:"message"`
	Channel   string     `yaml:"channel" json:"channel"`
	ChatID    string     `yaml:"chat_id" json:"chat_id"`
	Enabled   bool       `yaml:"enabled" json:"enabled"`
	CreatedAt time.Time  `yaml:"created_at" json:"created_at"`
	LastRunAt *time.Time `yaml:"last_run_at,omitempty" json:"last_run_at,omitempty"`
	LastError string     `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	RunCount  int        `yaml:"run_count" json:"run_count"`
}

// JobHandler fires when a job triggers.
type JobHandler func(ctx context.Context, job *Job) error

// JobStorage persists jobs across restarts.
type JobStorage interface {
	Save(job *Job) error
	Delete(id string) error
	LoadAll() ([]*Job, error)
}

// minJobInterval guards against cron firing the same job twice within the
// same second boundary.
const minJobInterval = 2 * time.Second

// Scheduler manages scheduled jobs with robfig/cron.
type Scheduler struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cron        *cron.Cron
	cronIDs     map[string]cron.EntryID
	runningJobs map[string]bool
	storage     JobStorage
	handler     JobHandler
	jobTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler backed by the given storage.
func NewScheduler(storage JobStorage, handler JobHandler) *Scheduler {
	return &Scheduler{
		jobs:        make(map[string]*Job),
		cronIDs:     make(map[string]cron.EntryID),
		runningJobs: make(map[string]bool),
		storage:     storage,
		handler:     handler,
		jobTimeout:  5 * time.Minute,
	}
}

// Start loads persisted jobs and begins firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if s.storage != nil {
		jobs, err := s.storage.LoadAll()
		if err != nil {
			log.Printf("[Cron] load jobs failed: %v", err)
		} else {
			s.mu.Lock()
			for _, job := range jobs {
				s.jobs[job.ID] = job
				if job.Enabled {
					if err := s.scheduleJob(job); err != nil {
						log.Printf("[Cron] skipping job %s with invalid schedule %q: %v", job.ID, job.Schedule, err)
					}
				}
			}
			s.mu.Unlock()
		}
	}

	s.cron.Start()
	log.Printf("[Cron] Scheduler started with %d jobs", len(s.jobs))
	return nil
}

// Stop shuts the scheduler down, waiting briefly for running jobs.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			log.Println("[Cron] stop timed out")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// Add registers a new job.
func (s *Scheduler) Add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	if job.Schedule == "" {
		return fmt.Errorf("job schedule is required")
	}
	if job.Type == "" {
		job.Type = "cron"
	}
	job.CreatedAt = time.Now()

	if s.cron != nil && job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
		}
	}

	s.jobs[job.ID] = job
	if s.storage != nil {
		if err := s.storage.Save(job); err != nil {
			log.Printf("[Cron] persist job %s failed: %v", job.ID, err)
		}
	}
	log.Printf("[Cron] job %s added (%s %q)", job.ID, job.Type, job.Schedule)
	return nil
}

// Remove deletes a job by ID.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job %q not found", jobID)
	}
	if entryID, ok := s.cronIDs[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, jobID)
	}
	delete(s.jobs, jobID)

	if s.storage != nil {
		if err := s.storage.Delete(jobID); err != nil {
			log.Printf("[Cron] delete job %s from storage failed: %v", jobID, err)
		}
	}
	log.Printf("[Cron] job %s removed", jobID)
	return nil
}

// List returns all jobs sorted by creation time.
func (s *Scheduler) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a job by ID.
func (s *Scheduler) Get(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// scheduleJob registers a job with cron (called under lock).
func (s *Scheduler) scheduleJob(job *Job) error {
	if job.Type == "at" {
		go s.runOneShot(job)
		return nil
	}

	schedule := job.Schedule
	if job.Type == "every" && !strings.HasPrefix(schedule, "@") {
		schedule = "@every " + schedule
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return err
	}
	s.cronIDs[job.ID] = entryID
	return nil
}

// runOneShot waits for the job's fire time, executes once, and removes
// the job.
func (s *Scheduler) runOneShot(job *Job) {
	target, err := parseOneShotTime(job.Schedule)
	if err != nil {
		log.Printf("[Cron] invalid one-shot time %q for job %s: %v", job.Schedule, job.ID, err)
		return
	}

	delay := time.Until(target)
	if delay <= 0 {
		s.executeJob(job)
		s.Remove(job.ID)
		return
	}

	select {
	case <-time.After(delay):
		if _, ok := s.Get(job.ID); !ok {
			return // removed while waiting
		}
		s.executeJob(job)
		s.Remove(job.ID)
	case <-s.ctx.Done():
	}
}

// parseOneShotTime accepts a relative duration ("5m", "1h30m"), RFC3339,
// "2006-01-02 15:04", or "15:04" (today or tomorrow).
func parseOneShotTime(timeStr string) (time.Time, error) {
	now := time.Now()

	if d, err := time.ParseDuration(timeStr); err == nil && d > 0 {
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04", timeStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("15:04", timeStr); err == nil {
		target := time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), 0, 0, now.Location())
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", timeStr)
}

// executeJob runs a job through the handler. A per-job running flag and a
// spin-loop guard prevent overlapping and duplicate same-second runs.
func (s *Scheduler) executeJob(job *Job) {
	s.mu.Lock()
	if s.runningJobs[job.ID] {
		s.mu.Unlock()
		log.Printf("[Cron] skipping job %s (already running)", job.ID)
		return
	}
	if job.LastRunAt != nil && time.Since(*job.LastRunAt) < minJobInterval {
		s.mu.Unlock()
		return
	}
	s.runningJobs[job.ID] = true
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.runningJobs, job.ID)
		s.mu.Unlock()

		if r := recover(); r != nil {
			job.LastError = fmt.Sprintf("panic: %v", r)
			log.Printf("[Cron] job %s panicked: %v", job.ID, r)
		}
		if s.storage != nil {
			s.storage.Save(job)
		}
	}()

	if s.handler == nil {
		job.LastError = "no handler configured"
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	if err := s.handler(ctx, job); err != nil {
		job.LastError = err.Error()
		log.Printf("[Cron] job %s failed: %v", job.ID, err)
	} else {
		job.LastError = ""
	}
}

// --- tools.JobScheduler implementation (the schedule tool's surface) ---

// AddJob creates a job from the schedule tool's arguments. Exactly one of
// cronExpr, everySeconds, or at must be given.
func (s *Scheduler) AddJob(name, message, channel, chatID, cronExpr string, everySeconds int, at string) (string, error) {
	job := &Job{
		ID:      uuid.NewString()[:8],
		Name:    name,
		Message: message,
		Channel: channel,
		ChatID:  chatID,
		Enabled: true,
	}

	switch {
	case cronExpr != "":
		job.Type = "cron"
		job.Schedule = cronExpr
	case everySeconds > 0:
		job.Type = "every"
		job.Schedule = fmt.Sprintf("%ds", everySeconds)
	case at != "":
		job.Type = "at"
		job.Schedule = at
	default:
		return "", fmt.Errorf("one of cron_expr, every_seconds, or at is required")
	}

	if err := s.Add(job); err != nil {
		return "", err
	}
	return fmt.Sprintf("Job %s scheduled (%s %q)", job.ID, job.Type, job.Schedule), nil
}

// ListJobs formats all jobs for tool output.
func (s *Scheduler) ListJobs() (string, error) {
	jobs := s.List()
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "- %s [%s %q] -> %s:%s %q (runs: %d)\n",
			j.ID, j.Type, j.Schedule, j.Channel, j.ChatID, j.Message, j.RunCount)
	}
	return b.String(), nil
}

// RemoveJob deletes a job for tool output.
func (s *Scheduler) RemoveJob(jobID string) (string, error) {
	if err := s.Remove(jobID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Job %s removed", jobID), nil
}
