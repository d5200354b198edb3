package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/reelmatch/match-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, ttl: defaultObservationTTL}, nil
}

// SetObservationTTL overrides the default cache lifetime.
func (s *SQLiteStore) SetObservationTTL(ttl time.Duration) {
	if ttl != 0 {
		s.ttl = ttl
	}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS match_runs (
	id             TEXT PRIMARY KEY,
	category       TEXT NOT NULL,
	reference_name TEXT NOT NULL DEFAULT '',
	reference_url  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'queued',
	error          TEXT NOT NULL DEFAULT '',
	profile        TEXT,
	results        TEXT,
	stats          TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observation_cache (
	fingerprint  TEXT NOT NULL,
	category     TEXT NOT NULL,
	version      TEXT NOT NULL,
	observation  TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at   DATETIME NOT NULL,
	PRIMARY KEY (fingerprint, category, version)
);

CREATE INDEX IF NOT EXISTS idx_match_runs_status ON match_runs(status);
CREATE INDEX IF NOT EXISTS idx_match_runs_category ON match_runs(category);
CREATE INDEX IF NOT EXISTS idx_observation_cache_expires_at ON observation_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, category, referenceName, referenceURL string) (*model.MatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_runs (id, category, reference_name, reference_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, category, referenceName, referenceURL, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.MatchRun{
		ID:            id,
		Category:      category,
		ReferenceName: referenceName,
		ReferenceURL:  referenceURL,
		Status:        model.RunStatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) MarkRunFailed(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run failed %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SaveRunReport(ctx context.Context, runID string, report *model.MatchReport, stats model.RunStats) error {
	profileJSON, err := json.Marshal(report.Profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	resultsJSON, err := json.Marshal(report.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET profile = ?, results = ?, stats = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(profileJSON), string(resultsJSON), string(statsJSON),
		string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save run report %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunProfile(ctx context.Context, runID string, profile *model.FusedProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET profile = ?, updated_at = ? WHERE id = ?`,
		string(profileJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run profile %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.MatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, category, reference_name, reference_url, status, error, profile, results, stats, created_at, updated_at
		 FROM match_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.MatchRun, error) {
	query := `SELECT id, category, reference_name, reference_url, status, error, profile, results, stats, created_at, updated_at
	 FROM match_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.MatchRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetCachedObservation(ctx context.Context, fingerprint, category, version string) (*model.SourceObservation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT observation FROM observation_cache
		 WHERE fingerprint = ? AND category = ? AND version = ? AND expires_at > datetime('now')`,
		fingerprint, category, version,
	)

	var obsJSON string
	err := row.Scan(&obsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached observation")
	}

	var obs model.SourceObservation
	if err := json.Unmarshal([]byte(obsJSON), &obs); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: unmarshal cached observation")
	}
	return &obs, true, nil
}

func (s *SQLiteStore) SetCachedObservation(ctx context.Context, fingerprint, category, version string, obs *model.SourceObservation) error {
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal observation")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO observation_cache (fingerprint, category, version, observation, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint, category, version) DO UPDATE SET
		   observation = excluded.observation,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		fingerprint, category, version, string(obsJSON), now, now.Add(s.ttl),
	)
	return eris.Wrap(err, "sqlite: set cached observation")
}

func (s *SQLiteStore) DeleteExpiredObservations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM observation_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired observations")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.MatchRun, error) {
	var r model.MatchRun
	var profileJSON, resultsJSON, statsJSON sql.NullString

	err := row.Scan(&r.ID, &r.Category, &r.ReferenceName, &r.ReferenceURL,
		&r.Status, &r.Error, &profileJSON, &resultsJSON, &statsJSON,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan run")
	}

	if profileJSON.Valid && profileJSON.String != "" && profileJSON.String != "null" {
		r.Profile = &model.FusedProfile{}
		if err := json.Unmarshal([]byte(profileJSON.String), r.Profile); err != nil {
			return nil, eris.Wrap(err, "unmarshal profile")
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &r.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal results")
		}
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	return &r, nil
}
