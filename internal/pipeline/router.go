package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"prepflow/internal/config"
	"prepflow/internal/logging"
	"prepflow/internal/script"
	"prepflow/internal/session"
	"prepflow/internal/siril"
	"prepflow/internal/storage"
)

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log       *slog.Logger
	store     *storage.Store
	cfg       *config.Config
	clientFac clientFactory
	batchRun  batchRunFunc
}

type clientFactory func() siril.Client

type batchRunFunc func(ctx context.Context, scriptText, workDir string) (string, error)

func newRouter(logger *slog.Logger, store *storage.Store, cfg *config.Config) Processor {
	return &router{
		log:   logger,
		store: store,
		cfg:   cfg,
		clientFac: func() siril.Client {
			return siril.NewPipeClient(cfg.Connection.PipeDir, logger)
		},
		batchRun: func(ctx context.Context, scriptText, workDir string) (string, error) {
			r := &siril.CLIRunner{Binary: cfg.Connection.SirilBinary, WorkDir: workDir}
			return r.Run(ctx, scriptText)
		},
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobScan:
		return r.handleScan(ctx, job)
	case JobGenerate:
		return r.handleGenerate(ctx, job)
	case JobRun:
		return r.handleRun(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

func (r *router) handleScan(ctx context.Context, job Job) Result {
	sum, err := session.Scan(job.SessionDir, r.cfg.Session)
	meta := map[string]any{
		"dir": sum.Dir,
	}
	for _, kind := range session.Kinds {
		meta[string(kind)] = sum.Count(kind)
	}
	return Result{Job: job, Error: err, Meta: meta}
}

func (r *router) handleGenerate(ctx context.Context, job Job) Result {
	s, sum, err := r.generate(job)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	meta := map[string]any{
		"output":   job.Output,
		"lines":    s.LineCount(),
		"commands": len(s.Commands()),
		"lights":   sum.Count(session.Lights),
	}
	return Result{Job: job, Error: nil, Meta: meta}
}

func (r *router) handleRun(ctx context.Context, job Job) Result {
	s, _, err := r.generate(job)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	start := time.Now()
	logging.LogRunStart(r.log, jobMode(job), job.ID, job.SessionDir, len(s.Commands()))

	if job.Mode == "batch" {
		out, err := r.batchRun(ctx, s.Text(), job.SessionDir)
		meta := map[string]any{"output": out}
		if err != nil {
			logging.LogRunError(r.log, "batch", job.ID, time.Since(start), err, "")
			meta["hint"] = siril.ManualRunHint
			return Result{Job: job, Error: err, Meta: meta}
		}
		logging.LogRunComplete(r.log, "batch", job.ID, time.Since(start), len(s.Commands()))
		meta["executed"] = len(s.Commands())
		meta["commands"] = len(s.Commands())
		return Result{Job: job, Meta: meta}
	}

	client := r.clientFac()
	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout())
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		logging.LogRunError(r.log, "pipe", job.ID, time.Since(start), err, "")
		return Result{Job: job, Error: err, Meta: map[string]any{"hint": siril.ManualRunHint}}
	}
	defer client.Close()

	executed := 0
	var failedCmd string
	err = siril.RunScript(ctx, client, s, func(res siril.CommandResult) {
		executed++
		logging.LogCommand(r.log, job.ID, res.Index, res.Command, res.Err)
		if res.Err != nil {
			failedCmd = res.Command
		}
		if r.store != nil {
			_ = r.store.RecordCommand(storage.RunCommandRecord{
				RunID:   job.ID,
				Seq:     res.Index,
				Command: res.Command,
				Success: res.Ok(),
				Error:   errString(res.Err),
			})
		}
	})

	meta := map[string]any{"executed": executed, "commands": len(s.Commands())}
	if err != nil {
		logging.LogRunError(r.log, "pipe", job.ID, time.Since(start), err, failedCmd)
		meta["failed_command"] = failedCmd
		return Result{Job: job, Error: err, Meta: meta}
	}
	logging.LogRunComplete(r.log, "pipe", job.ID, time.Since(start), executed)
	return Result{Job: job, Meta: meta}
}

// generate scans the session, renders the script and writes the artifact.
// Run jobs share this path so the executed commands always match the text
// the user can inspect.
func (r *router) generate(job Job) (*script.Script, session.Summary, error) {
	sum, err := session.Scan(job.SessionDir, r.cfg.Session)
	if err != nil {
		return nil, sum, err
	}

	stages := r.cfg.Stages
	if job.Stages != nil {
		stages = *job.Stages
	}
	s := script.Generate(stages, sum)

	if job.Output != "" {
		if dir := filepath.Dir(job.Output); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, sum, err
			}
		}
		if err := os.WriteFile(job.Output, []byte(s.Text()+"\n"), 0644); err != nil {
			return nil, sum, err
		}
	}

	if r.store != nil {
		_ = r.store.RecordScript(storage.ScriptRecord{
			ID:           job.ID,
			SessionDir:   job.SessionDir,
			LineCount:    s.LineCount(),
			CommandCount: len(s.Commands()),
			Content:      s.Text(),
		})
	}
	return s, sum, nil
}

func (r *router) connectTimeout() time.Duration {
	secs := r.cfg.Connection.ConnectTimeout
	if secs <= 0 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}
