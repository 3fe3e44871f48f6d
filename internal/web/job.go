package web

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tunevault/internal/synclock"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrJobNotFound is returned for an unknown or expired job id.
var ErrJobNotFound = errors.New("job not found")

// Job is one playlist sync started from the web UI. JobManager hands out
// copies; the stored job is only changed through UpdateJob.
type Job struct {
	ID          string
	URL         string
	Folder      string
	Bitrate     int
	Status      JobStatus
	Progress    float64 // 0..1
	Completed   int     // tracks finished, whatever their outcome
	Total       int
	Current     string // "(i/n) label" of the track in flight
	Stored      int
	Skipped     int
	Failed      int
	Message     string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	cancel context.CancelFunc
}

// JobManager manages sync jobs
type JobManager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	listeners map[string][]chan Job
}

const jobRetention = 1 * time.Hour

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[string]*Job),
		listeners: make(map[string][]chan Job),
	}
}

// StartCleanup starts a background goroutine that removes old finished jobs.
// Stops when ctx is cancelled.
func (jm *JobManager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jm.cleanup()
			}
		}
	}()
}

func (jm *JobManager) cleanup() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cutoff := time.Now().Add(-jobRetention)
	for id, job := range jm.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(jm.jobs, id)
			for _, ch := range jm.listeners[id] {
				close(ch)
			}
			delete(jm.listeners, id)
		}
	}
}

// CreateJob registers a pending job and returns a snapshot of it. Only one
// unfinished job may write into a folder at a time.
func (jm *JobManager) CreateJob(url, folder string, bitrate int) (Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if active, ok := jm.activeForFolder(folder); ok {
		return Job{}, fmt.Errorf("%w: job %s is syncing into %q", synclock.ErrBusy, active.ID, folder)
	}

	job := &Job{
		ID:        generateJobID(),
		URL:       url,
		Folder:    folder,
		Bitrate:   bitrate,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.snapshot(), nil
}

// GetJob retrieves a job by ID
func (jm *JobManager) GetJob(id string) (Job, error) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, ok := jm.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.snapshot(), nil
}

// ListJobs returns all jobs, newest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (jm *JobManager) activeForFolder(folder string) (*Job, bool) {
	for _, job := range jm.jobs {
		if job.Folder == folder && !job.Status.Done() {
			return job, true
		}
	}
	return nil, false
}

// UpdateJob updates job status
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	oldStatus := job.Status
	fn(job)

	// Update timestamps based on status changes
	if oldStatus != job.Status {
		switch job.Status {
		case StatusRunning:
			if job.StartedAt == nil {
				now := time.Now()
				job.StartedAt = &now
			}
		case StatusCompleted, StatusFailed, StatusCancelled:
			if job.CompletedAt == nil {
				now := time.Now()
				job.CompletedAt = &now
			}
		}
	}

	jm.notifyListeners(id, job.snapshot())
	return nil
}

// SetCancel stores the function that stops the job's sync.
func (jm *JobManager) SetCancel(id string, cancel context.CancelFunc) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.cancel = cancel
	return nil
}

// Cancel stops a job. Finished jobs are left untouched.
func (jm *JobManager) Cancel(id string) (Job, error) {
	var cancel context.CancelFunc
	err := jm.UpdateJob(id, func(j *Job) {
		if j.Status.Done() {
			return
		}
		cancel = j.cancel
		j.Status = StatusCancelled
		j.Message = "Sync cancelled"
	})
	if err != nil {
		return Job{}, err
	}
	if cancel != nil {
		cancel()
	}
	return jm.GetJob(id)
}

// Subscribe subscribes to job updates
func (jm *JobManager) Subscribe(jobID string) <-chan Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	ch := make(chan Job, 10)
	jm.listeners[jobID] = append(jm.listeners[jobID], ch)
	return ch
}

// Unsubscribe removes a listener
func (jm *JobManager) Unsubscribe(jobID string, ch <-chan Job) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	listeners := jm.listeners[jobID]
	for i, listener := range listeners {
		if listener == ch {
			jm.listeners[jobID] = append(listeners[:i], listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

// notifyListeners sends updates to all listeners. A slow listener loses its
// oldest pending update rather than the newest.
func (jm *JobManager) notifyListeners(jobID string, job Job) {
	for _, ch := range jm.listeners[jobID] {
		select {
		case ch <- job:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- job:
			default:
			}
		}
	}
}

func (j *Job) snapshot() Job {
	c := *j
	c.cancel = nil
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func generateJobID() string {
	return "job_" + uuid.NewString()
}
