package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/reelmatch/match-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Satisfied by both
// *pgxpool.Pool and pgxmock pools in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	ttl     time.Duration
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO match_runs (id, category, reference_name, reference_url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE match_runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, category, reference_name, reference_url, status, error, profile, results, stats, created_at, updated_at FROM match_runs WHERE id = $1`,
	"get_cached_obs":    `SELECT observation FROM observation_cache WHERE fingerprint = $1 AND category = $2 AND version = $3 AND expires_at > now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, ttl: defaultObservationTTL, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used in tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: defaultObservationTTL}
}

// SetObservationTTL overrides the default cache lifetime.
func (s *PostgresStore) SetObservationTTL(ttl time.Duration) {
	if ttl != 0 {
		s.ttl = ttl
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS match_runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	category       TEXT NOT NULL,
	reference_name TEXT NOT NULL DEFAULT '',
	reference_url  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'queued',
	error          TEXT NOT NULL DEFAULT '',
	profile        JSONB,
	results        JSONB,
	stats          JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observation_cache (
	fingerprint  TEXT NOT NULL,
	category     TEXT NOT NULL,
	version      TEXT NOT NULL,
	observation  JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (fingerprint, category, version)
);

CREATE INDEX IF NOT EXISTS idx_match_runs_status ON match_runs(status);
CREATE INDEX IF NOT EXISTS idx_match_runs_category ON match_runs(category);
CREATE INDEX IF NOT EXISTS idx_observation_cache_expires_at ON observation_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, category, referenceName, referenceURL string) (*model.MatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, category, reference_name, reference_url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, category, referenceName, referenceURL, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) MarkRunFailed(ctx context.Context, runID string, cause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run failed %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) SaveRunReport(ctx context.Context, runID string, report *model.MatchReport, stats model.RunStats) error {
	profileJSON, err := json.Marshal(report.Profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	resultsJSON, err := json.Marshal(report.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET profile = $1, results = $2, stats = $3, status = $4, updated_at = $5 WHERE id = $6`,
		profileJSON, resultsJSON, statsJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run report %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunProfile(ctx context.Context, runID string, profile *model.FusedProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET profile = $1, updated_at = $2 WHERE id = $3`,
		profileJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run profile %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.MatchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, category, reference_name, reference_url, status, error, profile, results, stats, created_at, updated_at
		 FROM match_runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.MatchRun, error) {
	query := `SELECT id, category, reference_name, reference_url, status, error, profile, results, stats, created_at, updated_at
	 FROM match_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.MatchRun
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetCachedObservation(ctx context.Context, fingerprint, category, version string) (*model.SourceObservation, bool, error) {
	var obsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT observation FROM observation_cache
		 WHERE fingerprint = $1 AND category = $2 AND version = $3 AND expires_at > now()`,
		fingerprint, category, version,
	).Scan(&obsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached observation")
	}

	var obs model.SourceObservation
	if err := json.Unmarshal(obsJSON, &obs); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal cached observation")
	}
	return &obs, true, nil
}

func (s *PostgresStore) SetCachedObservation(ctx context.Context, fingerprint, category, version string, obs *model.SourceObservation) error {
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal observation")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO observation_cache (fingerprint, category, version, observation, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint, category, version) DO UPDATE SET
		   observation = $4, created_at = $5, expires_at = $6`,
		fingerprint, category, version, obsJSON, now, now.Add(s.ttl),
	)
	return eris.Wrap(err, "postgres: set cached observation")
}

func (s *PostgresStore) DeleteExpiredObservations(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM observation_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired observations")
	}
	return int(tag.RowsAffected()), nil
}

func scanPostgresRun(row scannable) (*model.MatchRun, error) {
	var r model.MatchRun
	var profileJSON, resultsJSON, statsJSON []byte

	err := row.Scan(&r.ID, &r.Category, &r.ReferenceName, &r.ReferenceURL,
		&r.Status, &r.Error, &profileJSON, &resultsJSON, &statsJSON,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(profileJSON) > 0 && string(profileJSON) != "null" {
		r.Profile = &model.FusedProfile{}
		if err := json.Unmarshal(profileJSON, r.Profile); err != nil {
			return nil, eris.Wrap(err, "unmarshal profile")
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal results")
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	return &r, nil
}
