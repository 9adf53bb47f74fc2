// Package sqlstore keeps job records in a SQL "results" table on PostgreSQL
// (lib/pq) or SQLite (go-sqlite3).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/perclft/qcircuit/jobs"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id           TEXT PRIMARY KEY,
	backend      TEXT NOT NULL,
	shots        INTEGER NOT NULL,
	status       TEXT NOT NULL,
	complete     BOOLEAN NOT NULL DEFAULT FALSE,
	result       TEXT,
	error        TEXT,
	error_kind   TEXT,
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
`

// Store implements jobs.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
}

var _ jobs.Store = (*Store)(nil)

// Open connects to dsn with driver ("postgres" or "sqlite3"/"sqlite") and
// verifies the connection. Call Migrate before first use.
func Open(driver, dsn string) (*Store, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		driver = DriverPostgres
	case "sqlite", "sqlite3":
		driver = DriverSQLite
	default:
		return nil, errors.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	if driver == DriverSQLite {
		// SQLite has a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "execute %q", pragma)
			}
		}
	}
	return &Store{db: db, driver: driver}, nil
}

// Migrate creates the results table if it does not exist. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) Create(ctx context.Context, job jobs.Job) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO results (id, backend, shots, status, complete, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), job.ID, job.Backend, job.Shots, string(job.Status), job.Complete(), job.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "insert job")
	}
	if n == 0 {
		return jobs.ErrExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (jobs.Job, error) {
	var (
		job         jobs.Job
		status      string
		complete    bool
		result      sql.NullString
		errMsg      sql.NullString
		errKind     sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, backend, shots, status, complete, result, error, error_kind, created_at, completed_at
		FROM results WHERE id = ?
	`), id).Scan(&job.ID, &job.Backend, &job.Shots, &status, &complete, &result, &errMsg, &errKind, &job.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return jobs.Job{}, jobs.ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, errors.Wrap(err, "load job")
	}

	job.Status = jobs.Status(status)
	job.Error = errMsg.String
	job.ErrorKind = errKind.String
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return jobs.Job{}, errors.Wrap(err, "decode result")
		}
	}
	return job, nil
}

func (s *Store) Finish(ctx context.Context, id string, o jobs.Outcome) error {
	var result sql.NullString
	if o.Result != nil {
		data, err := json.Marshal(o.Result)
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
		result = sql.NullString{String: string(data), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE results
		SET status = ?, complete = ?, result = ?, error = ?, error_kind = ?, completed_at = ?
		WHERE id = ?
	`), string(o.Status), o.Status == jobs.StatusComplete, result, nullString(o.Error), nullString(o.ErrorKind), o.CompletedAt.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "update job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update job")
	}
	if n == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
