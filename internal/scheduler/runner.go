package scheduler

import "os/exec"

// Runner executes the external submission commands. The abstraction
// keeps the worker pool testable without spawning processes.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner is the production implementation using os/exec.
type ExecRunner struct{}

// Run executes a command and returns its combined output.
func (r *ExecRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}
