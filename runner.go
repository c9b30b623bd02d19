package fireflower

import (
	"bytes"
	"fmt"
	"os/exec"
)

// Runner wraps invocation of one external executable (the compiler,
// linker, or objcopy-equivalent), the way the teacher repo's
// spicy.NewRunner(cmdPath) does for the N64 toolchain. It exists so the
// Compile Scheduler and link step don't each re-implement stdout/stderr
// capture and error wrapping.
type Runner struct {
	Path string
}

// NewRunner returns a Runner invoking the executable at path.
func NewRunner(path string) *Runner {
	return &Runner{Path: path}
}

// Run invokes the runner's executable with args, relative to the path
// already embedded in the Runner (args[0] is not the executable name).
func (r *Runner) Run(args ...string) error {
	return r.run(r.Path, args)
}

// RunArgs invokes an executable whose path is args[0], using the Runner
// only for consistent output capture and error formatting. The Compile
// Scheduler builds full command lines (executable included) up front, so
// it calls this form rather than Run.
func (r *Runner) RunArgs(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("fireflower: empty command")
	}
	return r.run(args[0], args[1:])
}

func (r *Runner) run(path string, args []string) error {
	cmd := exec.Command(path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w\n%s%s", path, args, err, stdout.String(), stderr.String())
	}
	return nil
}
