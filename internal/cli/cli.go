package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"prepflow/internal/config"
	"prepflow/internal/logging"
	"prepflow/internal/pipeline"
	"prepflow/internal/server"
	"prepflow/internal/session"
	"prepflow/internal/siril"
	"prepflow/internal/storage"
	"prepflow/internal/tui"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

type serverFunc func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, cfg *config.Config, watchDir string, log *slog.Logger) error

type detectFunc func() siril.Status

type tuiFunc func(stages config.Stages, sum session.Summary, runFn func(config.Stages) (int, error), saveFn func(config.Stages) error) (config.Stages, error)

func defaultServe(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, cfg *config.Config, watchDir string, log *slog.Logger) error {
	if real, ok := pipe.(*pipeline.Pipeline); ok {
		return server.Serve(ctx, addr, store, real, cfg, watchDir, log)
	}
	return fmt.Errorf("pipeline does not support server operation")
}

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	serveFn  serverFunc
	detectFn detectFunc
	tuiFn    tuiFunc
}

// NewRoot constructs the CLI root command.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		serveFn:  defaultServe,
		detectFn: siril.Detect,
		tuiFn:    tui.Run,
	}
}

// Run parses args and dispatches to subcommands.
func (r *Root) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		r.usage()
		return nil
	}

	// Global help handling
	if args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		if len(args) == 1 {
			r.usage()
			return nil
		}
		return r.showCommandHelp(args[1])
	}

	switch args[0] {
	case "scan":
		return r.cmdScan(ctx, args[1:])
	case "generate":
		return r.cmdGenerate(ctx, args[1:])
	case "run":
		return r.cmdRun(ctx, args[1:])
	case "tui":
		return r.cmdTui(ctx, args[1:])
	case "serve":
		return r.cmdServe(ctx, args[1:])
	case "status":
		return r.cmdStatus(ctx, args[1:])
	case "profiles":
		return r.cmdProfiles(ctx, args[1:])
	case "config":
		return r.cmdConfig(ctx, args[1:])
	case "version":
		return r.cmdVersion()
	default:
		r.log.Error("unknown command", "command", args[0])
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// sessionDir resolves the session directory from the first positional
// argument, falling back to the configured working directory.
func (r *Root) sessionDir(fs *flag.FlagSet) string {
	if fs.NArg() > 0 {
		return fs.Arg(0)
	}
	return r.cfg.Session.WorkingDir
}

// applyProfile overlays a named stage preset onto the configuration.
func (r *Root) applyProfile(name string) error {
	if name == "" {
		return nil
	}
	p, err := config.LoadProfile(r.cfg.Paths.ProfilesDir, name)
	if err != nil {
		return err
	}
	p.Apply(r.cfg)
	r.log.Info("profile applied", "profile", p.Name)
	return nil
}

func (r *Root) cmdScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := r.sessionDir(fs)

	job := pipeline.Job{
		ID:         newID("scan"),
		Type:       pipeline.JobScan,
		SessionDir: dir,
	}
	res, err := r.enqueueAndWait(ctx, job)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Session %s\n", dir)
	for _, kind := range session.Kinds {
		if n, ok := res.Meta[string(kind)].(int); ok {
			fmt.Fprintf(os.Stdout, "  %-8s %d frames\n", kind, n)
		}
	}
	return nil
}

func (r *Root) cmdGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	output := fs.String("output", r.cfg.Paths.ScriptOutput, "script output path")
	profile := fs.String("profile", "", "stage preset to apply")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := r.applyProfile(*profile); err != nil {
		return err
	}

	job := pipeline.Job{
		ID:         newID("gen"),
		Type:       pipeline.JobGenerate,
		SessionDir: r.sessionDir(fs),
		Output:     *output,
	}
	res, err := r.enqueueAndWait(ctx, job)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Script written to %s", *output)
	if n, ok := res.Meta["commands"].(int); ok {
		fmt.Fprintf(os.Stdout, " (%d commands)", n)
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func (r *Root) cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	output := fs.String("output", r.cfg.Paths.ScriptOutput, "script output path")
	profile := fs.String("profile", "", "stage preset to apply")
	batch := fs.Bool("batch", false, "run through siril-cli instead of the command pipes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := r.applyProfile(*profile); err != nil {
		return err
	}

	mode := "pipe"
	if *batch {
		mode = "batch"
	}

	job := pipeline.Job{
		ID:         newID("run"),
		Type:       pipeline.JobRun,
		SessionDir: r.sessionDir(fs),
		Output:     *output,
		Mode:       mode,
	}
	res, err := r.enqueueAndWait(ctx, job)
	if err != nil {
		if hint, ok := res.Meta["hint"].(string); ok {
			fmt.Fprintf(os.Stdout, "%v\nScript saved to %s; %s.\n", err, *output, hint)
		}
		return err
	}
	if n, ok := res.Meta["executed"].(int); ok {
		fmt.Fprintf(os.Stdout, "Preprocessing finished, %d commands executed\n", n)
	}
	return nil
}

func (r *Root) cmdTui(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	output := fs.String("output", r.cfg.Paths.ScriptOutput, "script output path")
	profile := fs.String("profile", "", "stage preset to apply")
	batch := fs.Bool("batch", false, "run through siril-cli instead of the command pipes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := r.applyProfile(*profile); err != nil {
		return err
	}
	dir := r.sessionDir(fs)

	sum, err := session.Scan(dir, r.cfg.Session)
	if err != nil {
		return err
	}

	mode := "pipe"
	if *batch {
		mode = "batch"
	}

	runFn := func(stages config.Stages) (int, error) {
		job := pipeline.Job{
			ID:         newID("run"),
			Type:       pipeline.JobRun,
			SessionDir: dir,
			Output:     *output,
			Mode:       mode,
			Stages:     &stages,
		}
		res, err := r.enqueueAndWait(ctx, job)
		if err != nil {
			return 0, err
		}
		n, _ := res.Meta["executed"].(int)
		return n, nil
	}

	saveFn := func(stages config.Stages) error {
		r.cfg.Stages = stages
		return r.cfg.Save()
	}

	edited, err := r.tuiFn(r.cfg.Stages, sum, runFn, saveFn)
	if err != nil {
		return err
	}
	r.cfg.Stages = edited
	return nil
}

func (r *Root) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	watch := fs.String("watch", "", "session directory to monitor for new frames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return r.serveFn(ctx, *addr, r.store, r.pipeline, r.cfg, *watch, r.log)
}

func (r *Root) cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "number of recent runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_ = ctx

	st := r.detectFn()
	logging.LogHostStatus(r.log, st.Available, st.Version, st.Path, st.Error)
	if st.Available {
		fmt.Fprintf(os.Stdout, "Host application: %s (%s)\n", st.Path, st.Version)
	} else {
		fmt.Fprintln(os.Stdout, "Host application: not found in PATH")
	}

	pipePath := filepath.Join(r.cfg.Connection.PipeDir, "siril_command.in")
	if _, err := os.Stat(pipePath); err == nil {
		fmt.Fprintf(os.Stdout, "Command pipes: present in %s\n", r.cfg.Connection.PipeDir)
	} else {
		fmt.Fprintf(os.Stdout, "Command pipes: not found in %s\n", r.cfg.Connection.PipeDir)
	}

	if r.store == nil {
		return nil
	}
	runs, err := r.store.RecentRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "No recorded runs")
		return nil
	}
	fmt.Fprintln(os.Stdout, "Recent runs:")
	for _, run := range runs {
		line := fmt.Sprintf("  %s  %-9s %-5s %s", run.ID, run.Status, run.Mode, run.SessionDir)
		if run.Error != "" {
			line += "  (" + run.Error + ")"
		}
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func (r *Root) cmdProfiles(ctx context.Context, args []string) error {
	_ = ctx
	if len(args) > 0 && args[0] == "show" {
		if len(args) < 2 {
			return fmt.Errorf("profiles show requires a profile name")
		}
		p, err := config.LoadProfile(r.cfg.Paths.ProfilesDir, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Profile: %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(os.Stdout, "  %s\n", p.Description)
		}
		fmt.Fprintf(os.Stdout, "  Stacking: %s/%s\n", p.Stages.Stacking.Method, p.Stages.Stacking.Rejection)
		fmt.Fprintf(os.Stdout, "  Drizzle: %t  Debayer: %t\n", p.Stages.Registration.Drizzle, p.Stages.Calibration.Debayer)
		return nil
	}

	profiles, err := config.ListProfiles(r.cfg.Paths.ProfilesDir)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintf(os.Stdout, "No profiles in %s\n", r.cfg.Paths.ProfilesDir)
		return nil
	}
	fmt.Fprintln(os.Stdout, "Available profiles:")
	for _, p := range profiles {
		if p.Description != "" {
			fmt.Fprintf(os.Stdout, "  %-20s %s\n", p.Name, p.Description)
		} else {
			fmt.Fprintf(os.Stdout, "  %s\n", p.Name)
		}
	}
	return nil
}

func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	empty := pipeline.Result{Job: job, Meta: map[string]any{}}

	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	if err := r.enqueue(ctx, job); err != nil {
		return empty, err
	}
	for {
		select {
		case <-ctx.Done():
			return empty, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return empty, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				if res.Meta == nil {
					res.Meta = map[string]any{}
				}
				return res, res.Error
			}
		}
	}
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.pipeline.Submit(job); err != nil {
		return err
	}

	r.log.Info("job queued", "type", job.Type, "id", job.ID, "session", job.SessionDir)
	return nil
}

func (r *Root) usage() {
	fmt.Fprintf(os.Stdout, `Prepflow - Siril Preprocessing Front End

Usage:
  prepflow <command> [options] [session_dir]

Commands:
  scan         Count calibration and light frames in a session directory
  generate     Render the preprocessing script without running it
  run          Generate the script and forward it to a running host instance
  tui          Edit stage options interactively with a live script preview
  status       Show host availability and recent run history
  serve        Start the HTTP API server
  profiles     List or inspect stage presets
  config       Manage configuration settings
  version      Show version information

Global Options:
  --help, -h      Show help for command

Examples:
  prepflow scan /data/m31/
  prepflow generate /data/m31/ --output m31.ssf
  prepflow run /data/m31/ --profile osc-drizzle
  prepflow run /data/m31/ --batch
  prepflow tui /data/m31/
  prepflow serve --addr :8080 --watch /data/m31/

For detailed help on any command:
  prepflow help <command>
`)
}

func (r *Root) showCommandHelp(cmd string) error {
	switch cmd {
	case "scan":
		fmt.Fprintf(os.Stdout, "Usage: prepflow scan [session_dir]\nCount frames in the biases/flats/darks/lights subdirectories.\nExamples:\n  prepflow scan /data/m31/\n")
	case "generate":
		fmt.Fprintf(os.Stdout, "Usage: prepflow generate [options] [session_dir]\nRender the preprocessing script for the session.\nOptions:\n  --output PATH    Script output path (default: %s)\n  --profile NAME   Apply a stage preset before generating\nExamples:\n  prepflow generate /data/m31/ --output m31.ssf\n", r.cfg.Paths.ScriptOutput)
	case "run":
		fmt.Fprintf(os.Stdout, "Usage: prepflow run [options] [session_dir]\nGenerate the script and send it to the host, one command at a time.\nStops at the first failing command. When the host cannot be reached the\nscript is still written so it can be run manually.\nOptions:\n  --output PATH    Script output path (default: %s)\n  --profile NAME   Apply a stage preset before running\n  --batch          Use siril-cli instead of the command pipes\nExamples:\n  prepflow run /data/m31/\n  prepflow run /data/m31/ --batch\n", r.cfg.Paths.ScriptOutput)
	case "tui":
		fmt.Fprintf(os.Stdout, "Usage: prepflow tui [options] [session_dir]\nEdit stage options in an interactive form with a live script preview.\nOptions:\n  --output PATH    Script output path (default: %s)\n  --profile NAME   Apply a stage preset before editing\n  --batch          Use siril-cli for runs started from the form\n", r.cfg.Paths.ScriptOutput)
	case "status":
		fmt.Fprintf(os.Stdout, "Usage: prepflow status [options]\nShow host application availability, command pipe presence, and run history.\nOptions:\n  --limit N        Number of recent runs to show (default: 10)\n")
	case "serve":
		fmt.Fprintf(os.Stdout, "Usage: prepflow serve [options]\nStart the HTTP API server with job streaming over SSE and WebSocket.\nOptions:\n  --addr ADDR      Listen address (default: :8080)\n  --watch DIR      Session directory to monitor for new frames\n")
	case "profiles":
		fmt.Fprintf(os.Stdout, "Usage: prepflow profiles [show <name>]\nList stage presets from %s, or show one in detail.\n", r.cfg.Paths.ProfilesDir)
	case "config":
		fmt.Fprintf(os.Stdout, "Usage: prepflow config <subcommand>\nSubcommands:\n  show             Display current configuration\n  path             Show the config file location\n  validate         Check stage options for invalid values\nExamples:\n  prepflow config show\n")
	default:
		r.usage()
	}
	return nil
}

func newID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%04d", prefix, ts, rand.Intn(10000))
}
