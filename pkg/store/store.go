// Package store archives benchmark results in a SQLite database so runs
// against different filesystems or days can be compared later.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	started TIMESTAMP NOT NULL,
	fs_name TEXT NOT NULL,
	mount   TEXT NOT NULL,
	mode    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	name    TEXT NOT NULL,
	header  TEXT NOT NULL,
	row_idx INTEGER NOT NULL,
	fields  TEXT NOT NULL,
	PRIMARY KEY (run_id, name, row_idx)
);`

// Store is an open results database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path in WAL mode.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED=0") {
			return nil, errs.Wrap(errs.InvalidConfig, err, "the sqlite driver needs cgo")
		}
		return nil, errs.Wrap(errs.IO, err, "open results db %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IO, err, "open results db %s", path)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IO, err, "set WAL mode")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IO, err, "create schema")
	}
	logger.Debug("results db open", zap.String("path", path), zap.String("journal_mode", mode))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Run is one archived benchmark run.
type Run struct {
	ID      string
	Started time.Time
	FSName  string
	Mount   string
	Mode    string

	store *Store
}

// BeginRun registers a new run under a fresh id.
func (s *Store) BeginRun(fsName, mount, mode string) (*Run, error) {
	r := &Run{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		FSName:  fsName,
		Mount:   mount,
		Mode:    mode,
		store:   s,
	}
	_, err := s.db.Exec("INSERT INTO runs (id, started, fs_name, mount, mode) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Started, r.FSName, r.Mount, r.Mode)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "begin run")
	}
	s.logger.Info("archiving run", zap.String("run_id", r.ID), zap.String("fs", fsName))
	return r, nil
}

// Save stores res under name, replacing an earlier result of the same
// name in this run.
func (r *Run) Save(name string, res *report.BenchResult) error {
	header, err := json.Marshal(res.Header)
	if err != nil {
		return errs.Wrap(errs.FormatError, err, "encode header of %s", name)
	}
	tx, err := r.store.db.Begin()
	if err != nil {
		return errs.Wrap(errs.IO, err, "save %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM results WHERE run_id = ? AND name = ?", r.ID, name); err != nil {
		return errs.Wrap(errs.IO, err, "save %s", name)
	}
	stmt, err := tx.Prepare("INSERT INTO results (run_id, name, header, row_idx, fields) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return errs.Wrap(errs.IO, err, "save %s", name)
	}
	defer stmt.Close()
	for i, rec := range res.Records {
		fields, err := json.Marshal([]string(rec))
		if err != nil {
			return errs.Wrap(errs.FormatError, err, "encode row %d of %s", i, name)
		}
		if _, err := stmt.Exec(r.ID, name, string(header), i, string(fields)); err != nil {
			return errs.Wrap(errs.IO, err, "save row %d of %s", i, name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.IO, err, "save %s", name)
	}
	return nil
}

// Runs lists archived runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query("SELECT id, started, fs_name, mount, mode FROM runs ORDER BY started DESC")
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "list runs")
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r := Run{store: s}
		if err := rows.Scan(&r.ID, &r.Started, &r.FSName, &r.Mount, &r.Mode); err != nil {
			return nil, errs.Wrap(errs.IO, err, "scan run")
		}
		out = append(out, r)
	}
	return out, errs.Wrap(errs.IO, rows.Err(), "list runs")
}

// Results reads back the result stored as name in run runID.
func (s *Store) Results(runID, name string) (*report.BenchResult, error) {
	rows, err := s.db.Query("SELECT header, fields FROM results WHERE run_id = ? AND name = ? ORDER BY row_idx", runID, name)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "read %s", name)
	}
	defer rows.Close()

	var res *report.BenchResult
	for rows.Next() {
		var header, fields string
		if err := rows.Scan(&header, &fields); err != nil {
			return nil, errs.Wrap(errs.IO, err, "scan %s", name)
		}
		if res == nil {
			var h []string
			if err := json.Unmarshal([]byte(header), &h); err != nil {
				return nil, errs.Wrap(errs.ParseError, err, "decode header of %s", name)
			}
			res = report.New(h...)
		}
		var rec []string
		if err := json.Unmarshal([]byte(fields), &rec); err != nil {
			return nil, errs.Wrap(errs.ParseError, err, "decode row of %s", name)
		}
		if err := res.Add(rec); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IO, err, "read %s", name)
	}
	if res == nil {
		return nil, errs.New(errs.InvalidIndex, "no result %q in run %s", name, runID)
	}
	return res, nil
}

func (r *Run) String() string {
	return fmt.Sprintf("%s %s (%s) %s", r.ID, r.FSName, r.Mount, r.Mode)
}
