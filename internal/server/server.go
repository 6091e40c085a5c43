package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"prepflow/internal/config"
	"prepflow/internal/pipeline"
	"prepflow/internal/script"
	"prepflow/internal/session"
	"prepflow/internal/storage"
)

// Server exposes script generation and run control over HTTP.
type Server struct {
	addr     string
	store    *storage.Store
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	watcher  *session.Watcher
	hub      *WebSocketHub
	log      *slog.Logger
	server   *http.Server
}

// NewServer creates a server. When watchDir is non-empty the session is
// watched for frame changes and updated summaries are pushed to websocket
// clients.
func NewServer(
	addr string,
	store *storage.Store,
	pipe *pipeline.Pipeline,
	cfg *config.Config,
	watchDir string,
	log *slog.Logger,
) (*Server, error) {

	s := &Server{
		addr:     addr,
		store:    store,
		pipeline: pipe,
		cfg:      cfg,
		hub:      NewWebSocketHub(log),
		log:      log,
	}

	if watchDir != "" {
		watcher, err := session.NewWatcher(watchDir, cfg.Session, log)
		if err != nil {
			log.Warn("failed to set up session watcher", "error", err)
		} else {
			s.watcher = watcher
			log.Info("session watcher initialized", "dir", watchDir)
		}
	}

	return s, nil
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.forwardResults(ctx)
		return nil
	})

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.log.Error("failed to start session watcher", "error", err)
			return err
		}
		g.Go(func() error {
			s.forwardSummaries(ctx)
			return nil
		})
	}

	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")

		if s.watcher != nil {
			s.watcher.Stop()
		}

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/script", s.handleGenerateScript).Methods("POST")
	r.HandleFunc("/runs", s.handleCreateRun).Methods("POST")
	r.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}/commands", s.handleRunCommands).Methods("GET")
	r.HandleFunc("/stream", s.handleResultStream).Methods("GET")
	r.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")
}

// Serve is the convenience entry point used by the CLI.
func Serve(ctx context.Context, addr string, store *storage.Store, pipe *pipeline.Pipeline, cfg *config.Config, watchDir string, log *slog.Logger) error {
	server, err := NewServer(addr, store, pipe, cfg, watchDir, log)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type scriptRequest struct {
	SessionDir string `json:"session_dir"`
}

type scriptResponse struct {
	ID       string `json:"id"`
	Script   string `json:"script"`
	Lines    int    `json:"lines"`
	Commands int    `json:"commands"`
}

// handleGenerateScript renders the script for a session synchronously.
// Generation is pure and fast, so there is no reason to queue it.
func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionDir == "" {
		req.SessionDir = s.cfg.Session.WorkingDir
	}

	sum, err := session.Scan(req.SessionDir, s.cfg.Session)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sc := script.Generate(s.cfg.Stages, sum)

	id := uuid.NewString()
	if s.store != nil {
		_ = s.store.RecordScript(storage.ScriptRecord{
			ID:           id,
			SessionDir:   req.SessionDir,
			LineCount:    sc.LineCount(),
			CommandCount: len(sc.Commands()),
			Content:      sc.Text(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scriptResponse{
		ID:       id,
		Script:   sc.Text(),
		Lines:    sc.LineCount(),
		Commands: len(sc.Commands()),
	})
}

type runRequest struct {
	SessionDir string `json:"session_dir"`
	Mode       string `json:"mode"`
	Output     string `json:"output"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionDir == "" {
		req.SessionDir = s.cfg.Session.WorkingDir
	}
	if req.Mode == "" {
		req.Mode = "pipe"
	}

	job := pipeline.Job{
		ID:         uuid.NewString(),
		Type:       pipeline.JobRun,
		SessionDir: req.SessionDir,
		Output:     req.Output,
		Mode:       req.Mode,
	}
	if err := s.pipeline.Submit(job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": job.ID, "mode": req.Mode})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.RecentRuns(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

func (s *Server) handleRunCommands(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recs, err := s.store.RunCommands(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

func (s *Server) handleResultStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(streamEvent{
				Kind:  "result",
				JobID: res.Job.ID,
				Type:  string(res.Job.Type),
				Error: errString(res.Error),
				Meta:  res.Meta,
			})
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

type streamEvent struct {
	Kind  string         `json:"kind"`
	JobID string         `json:"job_id,omitempty"`
	Type  string         `json:"type,omitempty"`
	Error string         `json:"error,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// forwardResults mirrors pipeline results onto the websocket hub.
func (s *Server) forwardResults(ctx context.Context) {
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, err := json.Marshal(streamEvent{
				Kind:  "result",
				JobID: res.Job.ID,
				Type:  string(res.Job.Type),
				Error: errString(res.Error),
				Meta:  res.Meta,
			})
			if err == nil {
				s.hub.Broadcast(payload)
			}
		}
	}
}

// forwardSummaries pushes watcher rescans onto the websocket hub.
func (s *Server) forwardSummaries(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sum, ok := <-s.watcher.Summaries:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]any{
				"kind":    "summary",
				"summary": sum,
			})
			if err == nil {
				s.hub.Broadcast(payload)
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
