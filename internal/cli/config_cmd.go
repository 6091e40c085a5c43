package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

func (r *Root) cmdConfig(ctx context.Context, args []string) error {
	_ = ctx
	if len(args) == 0 {
		return r.configShow()
	}
	switch args[0] {
	case "show":
		return r.configShow()
	case "path":
		fmt.Fprintf(os.Stdout, "%s\n", configPath())
		return nil
	case "validate":
		return r.configValidate()
	default:
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func configPath() string {
	if p := os.Getenv("PREPFLOW_CONFIG"); p != "" {
		return p
	}
	return "(default) ~/.config/prepflow/config.json"
}

func (r *Root) configValidate() error {
	if err := r.cfg.Stages.Validate(); err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}
	fmt.Printf("Configuration OK\n")
	return nil
}

func (r *Root) configShow() error {
	fmt.Printf("Current configuration:\n")
	fmt.Printf("Config file: %s\n", configPath())
	fmt.Printf("\nSession:\n")
	fmt.Printf("  Working directory: %s\n", r.cfg.Session.WorkingDir)
	fmt.Printf("  Frame directories: %s %s %s %s\n",
		r.cfg.Session.BiasesDir, r.cfg.Session.FlatsDir,
		r.cfg.Session.DarksDir, r.cfg.Session.LightsDir)
	fmt.Printf("\nConnection:\n")
	fmt.Printf("  Pipe directory: %s\n", r.cfg.Connection.PipeDir)
	if r.cfg.Connection.SirilBinary != "" {
		fmt.Printf("  Siril binary: %s\n", r.cfg.Connection.SirilBinary)
	} else {
		fmt.Printf("  Siril binary: auto-detect\n")
	}
	fmt.Printf("  Connect timeout: %ds\n", r.cfg.Connection.ConnectTimeout)
	fmt.Printf("\nStages:\n")
	fmt.Printf("  Sequence name: %s\n", r.cfg.Stages.Convert.Basename)
	fmt.Printf("  Master bias: %t  Master flat: %t  Master dark: %t\n",
		r.cfg.Stages.Convert.CreateBias, r.cfg.Stages.Convert.CreateFlat, r.cfg.Stages.Convert.CreateDark)
	fmt.Printf("  Stacking: %s/%s\n", r.cfg.Stages.Stacking.Method, r.cfg.Stages.Stacking.Rejection)
	fmt.Printf("\nPaths:\n")
	fmt.Printf("  Script output: %s\n", r.cfg.Paths.ScriptOutput)
	fmt.Printf("  Profiles directory: %s\n", r.cfg.Paths.ProfilesDir)
	fmt.Printf("  Database path: %s\n", r.cfg.Paths.DatabasePath)
	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s  Format: %s  Directory: %s\n",
		r.cfg.Logging.Level, r.cfg.Logging.Format, r.cfg.Logging.LogDir)
	return nil
}

func (r *Root) cmdVersion() error {
	fmt.Printf("Prepflow v1.0.0-dev\n")
	fmt.Printf("Built with Go %s\n", runtime.Version())
	st := r.detectFn()
	if st.Available {
		fmt.Printf("Host application: %s (%s)\n", st.Path, st.Version)
	} else {
		fmt.Printf("Host application: not found\n")
	}
	return nil
}
