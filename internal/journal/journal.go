package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed run journal: it records pipeline runs, their
// upload batch outcomes, and their retrieval turns.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "earthquery.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Runs ---

// StartRun records a new run in the "running" state.
func (s *Store) StartRun(id string, docCount int) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, doc_count)
		VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), StatusRunning, docCount,
	)
	return err
}

// FinishRun marks the run completed or failed.
func (s *Store) FinishRun(id, status, errMsg string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(id string) (Run, error) {
	var r Run
	var startedAt, finishedAt string
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, doc_count, error
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.DocCount, &r.Error)
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt != "" {
		if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return Run{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, doc_count, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.DocCount, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finishedAt != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Batches ---

// RecordBatch appends one batch outcome to a run.
func (s *Store) RecordBatch(b Batch) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO batches (run_id, seq, batch_id, size, indexed, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.RunID, b.Seq, b.BatchID, b.Size, b.Indexed, b.Status, b.Error,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListBatches returns a run's batch outcomes in dispatch order.
func (s *Store) ListBatches(runID string) ([]Batch, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, batch_id, size, indexed, status, error, created_at
		FROM batches WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Batch
	for rows.Next() {
		var b Batch
		var createdAt string
		if err := rows.Scan(&b.RunID, &b.Seq, &b.BatchID, &b.Size, &b.Indexed, &b.Status, &b.Error, &createdAt); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// --- Queries ---

// RecordQuery appends one retrieval turn to a run.
func (s *Store) RecordQuery(q Query) error {
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO queries (run_id, question, answer, reference_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.RunID, q.Question, q.Answer, q.References,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListQueries returns a run's retrieval turns in order.
func (s *Store) ListQueries(runID string) ([]Query, error) {
	rows, err := s.db.Query(`
		SELECT run_id, question, answer, reference_count, created_at
		FROM queries WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Query
	for rows.Next() {
		var q Query
		var createdAt string
		if err := rows.Scan(&q.RunID, &q.Question, &q.Answer, &q.References, &createdAt); err != nil {
			return nil, err
		}
		if q.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, q)
	}
	return results, rows.Err()
}
