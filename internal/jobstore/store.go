// Package jobstore keeps in-memory records of submitted build and
// deploy jobs for the status endpoints.
package jobstore

import (
	"sort"
	"sync"
	"time"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      JobStatus  `json:"status"`
	Repo        string     `json:"repo"`
	PRNumber    int        `json:"pr_number"`
	Arch        string     `json:"arch,omitempty"`
	TargetRepo  string     `json:"target_repo,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Logs        []LogEntry `json:"logs,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
	}
}

func (s *Store) Create(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = job
}

// Get returns a copy of the job so callers never observe concurrent
// status updates mid-read.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

// List returns copies of all jobs, newest first.
func (s *Store) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func copyJob(job *Job) *Job {
	cp := *job
	cp.Logs = append([]LogEntry(nil), job.Logs...)
	return &cp
}

func (s *Store) SetStatus(id string, status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.UpdatedAt = time.Now()
	}
}

func (s *Store) AddLog(id, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Logs = append(job.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
		job.UpdatedAt = time.Now()
	}
}
