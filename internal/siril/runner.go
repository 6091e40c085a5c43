package siril

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIRunner executes a whole script through siril-cli in batch mode. Unlike
// the pipe client there is no per-command feedback; the process consumes the
// script on stdin and exits once.
type CLIRunner struct {
	// Binary overrides autodetection when set.
	Binary string
	// WorkDir is the session root the script's relative paths assume.
	WorkDir string
}

// Run feeds the script text to the batch binary and returns its combined
// output. A missing binary reports ErrNotConnected so callers fall back to
// the same manual-run guidance as the pipe path.
func (r *CLIRunner) Run(ctx context.Context, scriptText string) (string, error) {
	bin := r.Binary
	if bin == "" {
		st := Detect()
		if !st.Available {
			return "", ErrNotConnected
		}
		bin = st.Path
	}

	cmd := exec.CommandContext(ctx, bin, "-s", "-")
	cmd.Stdin = strings.NewReader(scriptText)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("batch run failed: %w", err)
	}
	return string(out), nil
}
