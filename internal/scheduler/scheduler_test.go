package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stackforge/layerbot/internal/jobstore"
)

type mockRunner struct {
	mu    sync.Mutex
	calls [][]string
	errs  []error

	block chan struct{}
}

func (m *mockRunner) Run(name string, args ...string) ([]byte, error) {
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string{name}, args...))
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return []byte("command output"), err
		}
	}
	return nil, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockRunner) call(i int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func testScheduler(t *testing.T, runner Runner, store *jobstore.Store, cfg Config) *Scheduler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(runner, store, cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubmitBuildRunsCommandPerTarget(t *testing.T) {
	runner := &mockRunner{}
	store := jobstore.NewStore()
	s := testScheduler(t, runner, store, Config{
		Workers:      1,
		BuildCommand: "submit-build",
	})

	targets := []Target{
		{Arch: "linux/aarch64/common", RepoID: "software-2024.06"},
		{Arch: "linux/x86_64/intel", RepoID: "software-2024.06"},
	}
	if err := s.SubmitBuild(context.Background(), "acme/stack", 42, "alice", targets); err != nil {
		t.Fatalf("SubmitBuild returned error: %v", err)
	}

	waitFor(t, func() bool { return runner.callCount() == 2 }, "build commands never ran")

	want := []string{
		"submit-build",
		"--repo", "acme/stack",
		"--pr", "42",
		"--arch", "linux/aarch64/common",
		"--target-repo", "software-2024.06",
	}
	got := runner.call(0)
	if len(got) != len(want) {
		t.Fatalf("command = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command = %v, want %v", got, want)
		}
	}

	waitFor(t, func() bool {
		jobs := store.List()
		if len(jobs) != 2 {
			return false
		}
		for _, job := range jobs {
			if job.Status != jobstore.StatusCompleted {
				return false
			}
		}
		return true
	}, "jobs never reached completed status")
}

func TestDeployArtifactsRunsDeployCommand(t *testing.T) {
	runner := &mockRunner{}
	store := jobstore.NewStore()
	s := testScheduler(t, runner, store, Config{
		Workers:       1,
		DeployCommand: "deploy-artifacts",
	})

	if err := s.DeployArtifacts(context.Background(), "acme/stack", 42, "alice"); err != nil {
		t.Fatalf("DeployArtifacts returned error: %v", err)
	}

	waitFor(t, func() bool { return runner.callCount() == 1 }, "deploy command never ran")

	got := runner.call(0)
	want := []string{"deploy-artifacts", "--repo", "acme/stack", "--pr", "42"}
	if len(got) != len(want) {
		t.Fatalf("command = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command = %v, want %v", got, want)
		}
	}
}

func TestFailedJobIsRetried(t *testing.T) {
	runner := &mockRunner{errs: []error{errors.New("transient")}}
	store := jobstore.NewStore()
	s := testScheduler(t, runner, store, Config{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	if err := s.DeployArtifacts(context.Background(), "acme/stack", 42, "alice"); err != nil {
		t.Fatalf("DeployArtifacts returned error: %v", err)
	}

	waitFor(t, func() bool { return runner.callCount() == 2 }, "job was never retried")
	waitFor(t, func() bool {
		jobs := store.List()
		return len(jobs) == 1 && jobs[0].Status == jobstore.StatusCompleted
	}, "retried job never completed")
}

func TestJobFailsAfterMaxAttempts(t *testing.T) {
	boom := errors.New("persistent")
	runner := &mockRunner{errs: []error{boom, boom, boom}}
	store := jobstore.NewStore()
	s := testScheduler(t, runner, store, Config{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	if err := s.DeployArtifacts(context.Background(), "acme/stack", 42, "alice"); err != nil {
		t.Fatalf("DeployArtifacts returned error: %v", err)
	}

	waitFor(t, func() bool {
		jobs := store.List()
		return len(jobs) == 1 && jobs[0].Status == jobstore.StatusFailed
	}, "job never reached failed status")

	if got := runner.callCount(); got != 3 {
		t.Errorf("ran %d attempts, want 3", got)
	}
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	runner := &mockRunner{block: make(chan struct{})}
	defer close(runner.block)

	s := testScheduler(t, runner, nil, Config{Workers: 1, QueueSize: 1})

	// First job occupies the worker, second fills the queue slot.
	if err := s.Enqueue(&Job{ID: "a", Kind: JobDeploy, Repo: "acme/stack", PRNumber: 1}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	waitFor(t, func() bool { return len(s.queue) == 0 }, "worker never picked up the first job")
	if err := s.Enqueue(&Job{ID: "b", Kind: JobDeploy, Repo: "acme/stack", PRNumber: 2}); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}

	err := s.Enqueue(&Job{ID: "c", Kind: JobDeploy, Repo: "acme/stack", PRNumber: 3})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestEnqueueRejectsAfterShutdown(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil, Config{Workers: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Shutdown(ctx)

	err := s.Enqueue(&Job{ID: "a", Kind: JobDeploy, Repo: "acme/stack", PRNumber: 1})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("error = %v, want ErrQueueClosed", err)
	}
}

func TestJobsForSamePullRequestDoNotOverlap(t *testing.T) {
	var mu sync.Mutex
	running := 0
	maxRunning := 0

	runner := runnerFunc(func(name string, args ...string) ([]byte, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	})

	s := testScheduler(t, runner, nil, Config{Workers: 4, QueueSize: 8})

	targets := []Target{
		{Arch: "linux/x86_64/intel", RepoID: "r"},
		{Arch: "linux/x86_64/amd", RepoID: "r"},
		{Arch: "linux/aarch64/common", RepoID: "r"},
	}
	if err := s.SubmitBuild(context.Background(), "acme/stack", 42, "alice", targets); err != nil {
		t.Fatalf("SubmitBuild returned error: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return maxRunning >= 1 && running == 0
	}, "jobs never ran")

	// Give the remaining jobs time to drain through the keyed lock.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if maxRunning > 1 {
		t.Errorf("observed %d concurrent jobs for one PR, want serialized execution", maxRunning)
	}
}

type runnerFunc func(name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(name string, args ...string) ([]byte, error) {
	return f(name, args...)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	s := &Scheduler{cfg: normalizeConfig(Config{
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Second,
	})}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := s.backoffDuration(tc.attempt); got != tc.want {
			t.Errorf("backoffDuration(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
