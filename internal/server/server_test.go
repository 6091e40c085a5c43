package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepflow/internal/config"
	"prepflow/internal/pipeline"
	"prepflow/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	ctx, cancel := context.WithCancel(context.Background())
	pipe := pipeline.New(ctx, 1, slog.Default(), store, cfg)
	t.Cleanup(func() {
		cancel()
		pipe.Stop()
	})

	s, err := NewServer("127.0.0.1:0", store, pipe, cfg, "", slog.Default())
	require.NoError(t, err)
	return s, store
}

func sessionDirWithLights(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lights"), 0755))
	for _, name := range []string{"light_001.fit", "light_002.fit"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lights", name), []byte("frame"), 0644))
	}
	return dir
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandleGenerateScript(t *testing.T) {
	s, store := newTestServer(t)
	dir := sessionDirWithLights(t)

	body := strings.NewReader(`{"session_dir": "` + dir + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/script", body)
	rec := httptest.NewRecorder()
	s.handleGenerateScript(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp scriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Contains(t, resp.Script, "requires 1.4.0")
	assert.Contains(t, resp.Script, "convert light")
	assert.Greater(t, resp.Commands, 0)

	saved, err := store.Script(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Script, saved.Content)
}

func TestHandleGenerateScriptBadBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/script", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.handleGenerateScript(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateRunQueues(t *testing.T) {
	s, _ := newTestServer(t)
	dir := sessionDirWithLights(t)

	body := strings.NewReader(`{"session_dir": "` + dir + `", "mode": "pipe"}`)
	req := httptest.NewRequest(http.MethodPost, "/runs", body)
	rec := httptest.NewRecorder()
	s.handleCreateRun(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "pipe", resp["mode"])
}

func TestHandleListRuns(t *testing.T) {
	s, store := newTestServer(t)

	require.NoError(t, store.RecordRunQueued(storage.RunRecord{
		ID: "run-1", Mode: "pipe", Status: "queued", SessionDir: "/data/m31",
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	s.handleListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var runs []storage.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestHandleRunCommands(t *testing.T) {
	s, store := newTestServer(t)

	require.NoError(t, store.RecordCommand(storage.RunCommandRecord{
		RunID: "run-9", Seq: 0, Command: "requires 1.4.0", Success: true,
	}))

	r := mux.NewRouter()
	s.setupRoutes(r)
	req := httptest.NewRequest(http.MethodGet, "/runs/run-9/commands", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var cmds []storage.RunCommandRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmds))
	require.Len(t, cmds, 1)
	assert.Equal(t, "requires 1.4.0", cmds[0].Command)
}
