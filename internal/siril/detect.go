package siril

import (
	"os/exec"
	"strings"
)

// Status reports whether a usable host binary was found.
type Status struct {
	Available bool
	Path      string
	Version   string
	Error     error
}

// Detect probes PATH for a batch-capable binary, preferring siril-cli over
// the GUI binary, and grabs its version banner for display.
func Detect() Status {
	var path string
	var err error
	for _, name := range []string{"siril-cli", "siril"} {
		if path, err = exec.LookPath(name); err == nil {
			break
		}
	}
	if err != nil {
		return Status{Available: false, Error: err}
	}

	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		// Some builds exit non-zero for --version but still print it.
		if len(out) == 0 {
			return Status{Available: true, Path: path, Version: "unknown"}
		}
	}
	return Status{Available: true, Path: path, Version: extractVersion(string(out))}
}

func extractVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "unknown"
}
