package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for generated scripts and runs.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scripts (
            id TEXT PRIMARY KEY,
            session_dir TEXT NOT NULL,
            line_count INTEGER,
            command_count INTEGER,
            content TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            script_id TEXT,
            mode TEXT NOT NULL,
            status TEXT NOT NULL,
            session_dir TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS run_commands (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            seq INTEGER NOT NULL,
            command TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            error_message TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_script_id ON runs(script_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_commands_run_id ON run_commands(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// ScriptRecord captures one generated script artifact.
type ScriptRecord struct {
	ID           string
	SessionDir   string
	LineCount    int
	CommandCount int
	Content      string
	CreatedAt    time.Time
}

// RunRecord captures one script execution attempt. Mode is "pipe" or
// "batch"; status moves queued -> running -> completed or failed.
type RunRecord struct {
	ID          string
	ScriptID    string
	Mode        string
	Status      string
	SessionDir  string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RunCommandRecord captures one dispatched command within a run.
type RunCommandRecord struct {
	RunID   string
	Seq     int
	Command string
	Success bool
	Error   string
}

// RecordScript persists a generated script.
func (s *Store) RecordScript(rec ScriptRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO scripts (id, session_dir, line_count, command_count, content) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, rec.SessionDir, rec.LineCount, rec.CommandCount, rec.Content)
	return err
}

// Script fetches one script by id.
func (s *Store) Script(id string) (ScriptRecord, error) {
	if s == nil {
		return ScriptRecord{}, errors.New("store not initialized")
	}
	var rec ScriptRecord
	err := s.DB.QueryRow(`SELECT id, session_dir, line_count, command_count, content, created_at FROM scripts WHERE id=?;`, id).
		Scan(&rec.ID, &rec.SessionDir, &rec.LineCount, &rec.CommandCount, &rec.Content, &rec.CreatedAt)
	return rec, err
}

// RecordRunQueued inserts a pending run.
func (s *Store) RecordRunQueued(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO runs (id, script_id, mode, status, session_dir) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, rec.ScriptID, rec.Mode, rec.Status, rec.SessionDir)
	return err
}

// RecordRunStart marks a run as running.
func (s *Store) RecordRunStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE runs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordRunResult finalizes a run.
func (s *Store) RecordRunResult(id, status, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE runs SET status=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, status, errMsg, id)
	return err
}

// RecordCommand appends one command outcome to a run.
func (s *Store) RecordCommand(rec RunCommandRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO run_commands (run_id, seq, command, success, error_message) VALUES (?, ?, ?, ?, ?);`,
		rec.RunID, rec.Seq, rec.Command, rec.Success, rec.Error)
	return err
}

// RecentRuns returns the latest runs up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, script_id, mode, status, session_dir, created_at, started_at, completed_at, error_message FROM runs ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var scriptID, sessionDir, errorMsg sql.NullString
		var created time.Time
		var started, completed sql.NullTime
		if err := rows.Scan(&rec.ID, &scriptID, &rec.Mode, &rec.Status, &sessionDir, &created, &started, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.ScriptID = scriptID.String
		rec.SessionDir = sessionDir.String
		rec.CreatedAt = created
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		if errorMsg.Valid {
			rec.Error = errorMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RunCommands returns the command log of a run in dispatch order.
func (s *Store) RunCommands(runID string) ([]RunCommandRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT run_id, seq, command, success, error_message FROM run_commands WHERE run_id=? ORDER BY seq ASC;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunCommandRecord
	for rows.Next() {
		var rec RunCommandRecord
		var errorMsg sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Command, &rec.Success, &errorMsg); err != nil {
			return nil, err
		}
		rec.Error = errorMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
