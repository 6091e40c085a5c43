package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScriptRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := ScriptRecord{
		ID:           "script-1",
		SessionDir:   "/data/m31",
		LineCount:    40,
		CommandCount: 25,
		Content:      "# Siril Preprocessing Script\nrequires 1.4.0\n",
	}
	require.NoError(t, s.RecordScript(rec))

	got, err := s.Script("script-1")
	require.NoError(t, err)
	assert.Equal(t, rec.SessionDir, got.SessionDir)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, 25, got.CommandCount)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordRunQueued(RunRecord{
		ID: "run-1", ScriptID: "script-1", Mode: "pipe", Status: "queued", SessionDir: "/data/m31",
	}))
	require.NoError(t, s.RecordRunStart("run-1"))
	require.NoError(t, s.RecordRunResult("run-1", "completed", ""))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, "pipe", runs[0].Mode)
	require.NotNil(t, runs[0].StartedAt)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Empty(t, runs[0].Error)
}

func TestRunFailureRecordsError(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordRunQueued(RunRecord{ID: "run-2", Mode: "batch", Status: "queued"}))
	require.NoError(t, s.RecordRunResult("run-2", "failed", "could not connect to the host application"))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Error, "could not connect")
}

func TestRunCommandsOrdered(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordRunQueued(RunRecord{ID: "run-3", Mode: "pipe", Status: "queued"}))
	cmds := []RunCommandRecord{
		{RunID: "run-3", Seq: 0, Command: "requires 1.4.0", Success: true},
		{RunID: "run-3", Seq: 1, Command: "cd biases", Success: true},
		{RunID: "run-3", Seq: 2, Command: "convert bias -out=../process", Success: false, Error: "no frames"},
	}
	for _, c := range cmds {
		require.NoError(t, s.RecordCommand(c))
	}

	got, err := s.RunCommands("run-3")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, cmds[i].Command, c.Command)
		assert.Equal(t, cmds[i].Success, c.Success)
	}
	assert.Equal(t, "no frames", got[2].Error)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	assert.NoError(t, s.RecordScript(ScriptRecord{}))
	assert.NoError(t, s.RecordRunQueued(RunRecord{}))
	assert.NoError(t, s.RecordRunStart("x"))
	assert.NoError(t, s.RecordRunResult("x", "failed", "boom"))
	assert.NoError(t, s.RecordCommand(RunCommandRecord{}))
	_, err := s.RecentRuns(5)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
