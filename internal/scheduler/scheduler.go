// Package scheduler submits build and deploy jobs to the external job
// system through a bounded worker pool with retries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/stackforge/layerbot/internal/jobstore"
)

var (
	// ErrQueueFull indicates the scheduler cannot accept new jobs right now.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed indicates the scheduler has been shut down.
	ErrQueueClosed = errors.New("job queue is closed")
)

// JobKind separates build submissions from artifact deployments.
type JobKind string

const (
	JobBuild  JobKind = "build"
	JobDeploy JobKind = "deploy"
)

// Target names one build target: an architecture and the repository
// to build for it.
type Target struct {
	Arch   string
	RepoID string
}

// Job is one unit of work handed to the external job system.
type Job struct {
	ID          string
	Kind        JobKind
	Repo        string
	PRNumber    int
	RequestedBy string
	Target      Target
}

// Config controls scheduler behaviour.
type Config struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// BuildCommand and DeployCommand are the external programs the
	// worker invokes per job.
	BuildCommand  string
	DeployCommand string
}

// Scheduler serializes job execution per PR and retries failed
// submissions with exponential backoff.
type Scheduler struct {
	runner Runner
	store  *jobstore.Store
	cfg    Config
	logger *slog.Logger

	queue chan *queueItem

	keyedLocks *keyedMutex

	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

type queueItem struct {
	job     *Job
	attempt int
}

// New creates a scheduler and starts its workers.
func New(runner Runner, store *jobstore.Store, cfg Config, logger *slog.Logger) *Scheduler {
	normalized := normalizeConfig(cfg)
	s := &Scheduler{
		runner:     runner,
		store:      store,
		cfg:        normalized,
		logger:     logger.With("component", "scheduler"),
		queue:      make(chan *queueItem, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		stopCh:     make(chan struct{}),
	}
	s.startWorkers()
	return s
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 15 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.BuildCommand == "" {
		cfg.BuildCommand = "submit-build"
	}
	if cfg.DeployCommand == "" {
		cfg.DeployCommand = "deploy-artifacts"
	}
	return cfg
}

func (s *Scheduler) startWorkers() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// SubmitBuild enqueues one build job per target for the PR.
func (s *Scheduler) SubmitBuild(ctx context.Context, repo string, prNumber int, sender string, targets []Target) error {
	for _, target := range targets {
		job := &Job{
			ID:          jobID(repo, prNumber, string(JobBuild), target.Arch),
			Kind:        JobBuild,
			Repo:        repo,
			PRNumber:    prNumber,
			RequestedBy: sender,
			Target:      target,
		}
		if err := s.Enqueue(job); err != nil {
			return err
		}
	}
	return nil
}

// DeployArtifacts enqueues a deploy job for the PR's built artifacts.
func (s *Scheduler) DeployArtifacts(ctx context.Context, repo string, prNumber int, sender string) error {
	return s.Enqueue(&Job{
		ID:          jobID(repo, prNumber, string(JobDeploy), ""),
		Kind:        JobDeploy,
		Repo:        repo,
		PRNumber:    prNumber,
		RequestedBy: sender,
	})
}

// Enqueue queues a job for execution.
func (s *Scheduler) Enqueue(job *Job) error {
	if job == nil {
		return errors.New("scheduler enqueue: job is nil")
	}

	select {
	case <-s.stopCh:
		return ErrQueueClosed
	default:
	}

	select {
	case s.queue <- &queueItem{job: job, attempt: 1}:
		s.record(job)
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Scheduler) record(job *Job) {
	if s.store == nil {
		return
	}
	s.store.Create(&jobstore.Job{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Status:      jobstore.StatusPending,
		Repo:        job.Repo,
		PRNumber:    job.PRNumber,
		Arch:        job.Target.Arch,
		TargetRepo:  job.Target.RepoID,
		RequestedBy: job.RequestedBy,
	})
	s.store.AddLog(job.ID, "info", "Job queued")
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case item, ok := <-s.queue:
			if !ok {
				return
			}
			s.process(item)
		}
	}
}

func (s *Scheduler) process(item *queueItem) {
	job := item.job

	key := fmt.Sprintf("%s#%d", job.Repo, job.PRNumber)
	s.keyedLocks.Lock(key)
	err := s.execute(job)
	s.keyedLocks.Unlock(key)

	if err != nil {
		s.logger.Warn("job attempt failed",
			"job", job.ID, "attempt", item.attempt, "error", err)
		s.handleRetry(item, err)
		return
	}

	s.logger.Info("job succeeded", "job", job.ID, "attempt", item.attempt)
	if s.store != nil {
		s.store.SetStatus(job.ID, jobstore.StatusCompleted)
		s.store.AddLog(job.ID, "success", "Job submitted")
	}
}

func (s *Scheduler) execute(job *Job) error {
	if s.store != nil {
		s.store.SetStatus(job.ID, jobstore.StatusRunning)
	}

	var output []byte
	var err error
	switch job.Kind {
	case JobBuild:
		output, err = s.runner.Run(s.cfg.BuildCommand,
			"--repo", job.Repo,
			"--pr", strconv.Itoa(job.PRNumber),
			"--arch", job.Target.Arch,
			"--target-repo", job.Target.RepoID,
		)
	case JobDeploy:
		output, err = s.runner.Run(s.cfg.DeployCommand,
			"--repo", job.Repo,
			"--pr", strconv.Itoa(job.PRNumber),
		)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		return fmt.Errorf("%s command failed: %w\nOutput: %s", job.Kind, err, string(output))
	}
	return nil
}

func (s *Scheduler) handleRetry(item *queueItem, execErr error) {
	if item.attempt >= s.cfg.MaxAttempts {
		s.logger.Error("job exceeded max attempts",
			"job", item.job.ID, "max_attempts", s.cfg.MaxAttempts, "error", execErr)
		if s.store != nil {
			s.store.SetStatus(item.job.ID, jobstore.StatusFailed)
			s.store.AddLog(item.job.ID, "error", execErr.Error())
		}
		return
	}

	nextAttempt := item.attempt + 1
	delay := s.backoffDuration(nextAttempt)
	s.logger.Info("scheduling retry",
		"job", item.job.ID, "attempt", nextAttempt, "delay", delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			s.enqueueRetry(&queueItem{job: item.job, attempt: nextAttempt})
		case <-s.stopCh:
		}
	}()
}

func (s *Scheduler) enqueueRetry(item *queueItem) {
	for {
		select {
		case <-s.stopCh:
			return
		case s.queue <- item:
			return
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (s *Scheduler) backoffDuration(attempt int) time.Duration {
	backoff := float64(s.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= s.cfg.BackoffMultiplier
		if backoff >= float64(s.cfg.MaxBackoff) {
			return s.cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Shutdown gracefully stops the scheduler.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.once.Do(func() {
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func jobID(repo string, prNumber int, kind, arch string) string {
	id := fmt.Sprintf("%s-%d-%s", repo, prNumber, kind)
	if arch != "" {
		id += "-" + arch
	}
	return fmt.Sprintf("%s-%d", sanitize(id), time.Now().UnixNano())
}

func sanitize(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '/' {
			out[i] = '-'
		}
	}
	return string(out)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if !ok {
		return
	}

	m.Unlock()
}
