/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/example/dep-pulse/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
}

func MustOpen(ctx context.Context, dsn string, log zerolog.Logger) *DB {
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil { log.Fatal().Err(err).Msg("parse db dsn") }
    cfg.MaxConns = 8
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil { log.Fatal().Err(err).Msg("open db pool") }
    if err := pool.Ping(ctx); err != nil { log.Fatal().Err(err).Msg("ping db") }
    return &DB{Pool: pool}
}

func (d *DB) Close() { d.Pool.Close() }

// TryAdvisoryLock grabs a session-scoped Postgres advisory lock so only one
// instance runs the scheduled sweep at a time.
func (d *DB) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var got bool
    err := d.Pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got)
    return got, err
}

func (d *DB) AdvisoryUnlock(ctx context.Context, key int64) error {
    _, err := d.Pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
    return err
}

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func New(db *DB, log zerolog.Logger) *Repository {
    return &Repository{db: db, log: log}
}

// UpsertWorkItem inserts or refreshes a synced item, keyed by the external
// tracker id, and returns the internal id.
func (r *Repository) UpsertWorkItem(ctx context.Context, it domain.WorkItem) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx, `
        INSERT INTO work_items (ext_id, title, type, state, team, sprint, assignee, story_points, description, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10, now()),now())
        ON CONFLICT (ext_id) DO UPDATE SET
            title = EXCLUDED.title,
            type = EXCLUDED.type,
            state = EXCLUDED.state,
            team = EXCLUDED.team,
            sprint = EXCLUDED.sprint,
            assignee = EXCLUDED.assignee,
            story_points = EXCLUDED.story_points,
            description = EXCLUDED.description,
            updated_at = now()
        RETURNING id`,
        it.ExtID, it.Title, it.Type, it.State, it.Team, it.Sprint, it.Assignee, it.StoryPoints, it.Description, it.CreatedAt,
    ).Scan(&id)
    if err != nil { return 0, fmt.Errorf("upsert work item %s: %w", it.ExtID, err) }
    return id, nil
}

// UpsertDependency inserts an edge or refreshes it. Existing derived scores
// survive the upsert; only a fresh scoring pass changes them. Tracker
// provenance sticks: a later text-derived suggestion of the same edge must
// not downgrade it.
func (r *Repository) UpsertDependency(ctx context.Context, d domain.Dependency) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx, `
        INSERT INTO dependencies (source_id, target_id, kind, provenance)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (source_id, target_id, kind) DO UPDATE SET
            provenance = CASE WHEN dependencies.provenance = 'tracker'
                              THEN dependencies.provenance
                              ELSE EXCLUDED.provenance END
        RETURNING id`,
        d.SourceID, d.TargetID, d.Kind, d.Provenance,
    ).Scan(&id)
    if err != nil { return 0, fmt.Errorf("upsert dependency %d->%d: %w", d.SourceID, d.TargetID, err) }
    return id, nil
}

func (r *Repository) GetWorkItem(ctx context.Context, id int64) (domain.WorkItem, error) {
    var it domain.WorkItem
    err := r.db.Pool.QueryRow(ctx, `
        SELECT id, ext_id, title, type, state, team, sprint, assignee, story_points, description, created_at, updated_at
        FROM work_items WHERE id = $1`, id,
    ).Scan(&it.ID, &it.ExtID, &it.Title, &it.Type, &it.State, &it.Team, &it.Sprint, &it.Assignee, &it.StoryPoints, &it.Description, &it.CreatedAt, &it.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return it, domain.ErrNotFound }
    if err != nil { return it, fmt.Errorf("get work item %d: %w", id, err) }
    return it, nil
}

func (r *Repository) ListWorkItems(ctx context.Context) ([]domain.WorkItem, error) {
    rows, err := r.db.Pool.Query(ctx, `
        SELECT id, ext_id, title, type, state, team, sprint, assignee, story_points, description, created_at, updated_at
        FROM work_items ORDER BY id`)
    if err != nil { return nil, fmt.Errorf("list work items: %w", err) }
    defer rows.Close()
    var out []domain.WorkItem
    for rows.Next() {
        var it domain.WorkItem
        if err := rows.Scan(&it.ID, &it.ExtID, &it.Title, &it.Type, &it.State, &it.Team, &it.Sprint, &it.Assignee, &it.StoryPoints, &it.Description, &it.CreatedAt, &it.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, it)
    }
    return out, rows.Err()
}

func (r *Repository) ListDependencies(ctx context.Context) ([]domain.Dependency, error) {
    rows, err := r.db.Pool.Query(ctx, `
        SELECT id, source_id, target_id, kind, provenance, risk_score, expected_delay, scored_model, scored_at
        FROM dependencies ORDER BY id`)
    if err != nil { return nil, fmt.Errorf("list dependencies: %w", err) }
    defer rows.Close()
    var out []domain.Dependency
    for rows.Next() {
        var d domain.Dependency
        var model *string
        if err := rows.Scan(&d.ID, &d.SourceID, &d.TargetID, &d.Kind, &d.Provenance, &d.RiskScore, &d.ExpectedDelay, &model, &d.ScoredAt); err != nil {
            return nil, err
        }
        if model != nil { d.ScoredModel = *model }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (r *Repository) GetDependency(ctx context.Context, id int64) (domain.Dependency, error) {
    var d domain.Dependency
    var model *string
    err := r.db.Pool.QueryRow(ctx, `
        SELECT id, source_id, target_id, kind, provenance, risk_score, expected_delay, scored_model, scored_at
        FROM dependencies WHERE id = $1`, id,
    ).Scan(&d.ID, &d.SourceID, &d.TargetID, &d.Kind, &d.Provenance, &d.RiskScore, &d.ExpectedDelay, &model, &d.ScoredAt)
    if errors.Is(err, pgx.ErrNoRows) { return d, domain.ErrNotFound }
    if err != nil { return d, fmt.Errorf("get dependency %d: %w", id, err) }
    if model != nil { d.ScoredModel = *model }
    return d, nil
}

// UpdateDependencyScore writes both derived fields in one statement so they
// are never partially set.
func (r *Repository) UpdateDependencyScore(ctx context.Context, id int64, riskScore, expectedDelay int, model string) error {
    tag, err := r.db.Pool.Exec(ctx, `
        UPDATE dependencies
        SET risk_score = $2, expected_delay = $3, scored_model = $4, scored_at = now()
        WHERE id = $1`, id, riskScore, expectedDelay, model)
    if err != nil { return fmt.Errorf("update dependency score %d: %w", id, err) }
    if tag.RowsAffected() == 0 { return domain.ErrNotFound }
    return nil
}

// TopRiskDependencies returns scored edges ordered by risk, highest first.
func (r *Repository) TopRiskDependencies(ctx context.Context, limit int) ([]domain.Dependency, error) {
    rows, err := r.db.Pool.Query(ctx, `
        SELECT id, source_id, target_id, kind, provenance, risk_score, expected_delay, scored_model, scored_at
        FROM dependencies WHERE risk_score IS NOT NULL
        ORDER BY risk_score DESC, expected_delay DESC, id LIMIT $1`, limit)
    if err != nil { return nil, fmt.Errorf("top risk dependencies: %w", err) }
    defer rows.Close()
    var out []domain.Dependency
    for rows.Next() {
        var d domain.Dependency
        var model *string
        if err := rows.Scan(&d.ID, &d.SourceID, &d.TargetID, &d.Kind, &d.Provenance, &d.RiskScore, &d.ExpectedDelay, &model, &d.ScoredAt); err != nil {
            return nil, err
        }
        if model != nil { d.ScoredModel = *model }
        out = append(out, d)
    }
    return out, rows.Err()
}

// BulkInsertVelocitySamples replaces a team's history with the freshly
// aggregated one.
func (r *Repository) BulkInsertVelocitySamples(ctx context.Context, team string, samples []domain.VelocitySample) error {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return fmt.Errorf("begin velocity tx: %w", err) }
    defer tx.Rollback(ctx)

    if _, err := tx.Exec(ctx, `DELETE FROM velocity_samples WHERE team = $1`, team); err != nil {
        return fmt.Errorf("clear velocity %s: %w", team, err)
    }
    b := &pgx.Batch{}
    for i, s := range samples {
        b.Queue(`INSERT INTO velocity_samples (team, iteration, position, completed, planned) VALUES ($1,$2,$3,$4,$5)`,
            team, s.Iteration, i, s.Completed, s.Planned)
    }
    if err := tx.SendBatch(ctx, b).Close(); err != nil {
        return fmt.Errorf("insert velocity %s: %w", team, err)
    }
    return tx.Commit(ctx)
}

func (r *Repository) ListTeamVelocities(ctx context.Context) ([]domain.TeamVelocity, error) {
    rows, err := r.db.Pool.Query(ctx, `
        SELECT team, iteration, completed, planned
        FROM velocity_samples ORDER BY team, position`)
    if err != nil { return nil, fmt.Errorf("list velocities: %w", err) }
    defer rows.Close()
    var out []domain.TeamVelocity
    for rows.Next() {
        var team string
        var s domain.VelocitySample
        if err := rows.Scan(&team, &s.Iteration, &s.Completed, &s.Planned); err != nil {
            return nil, err
        }
        if len(out) == 0 || out[len(out)-1].Team != team {
            out = append(out, domain.TeamVelocity{Team: team})
        }
        out[len(out)-1].Samples = append(out[len(out)-1].Samples, s)
    }
    return out, rows.Err()
}

// LastRun summarizes the most recent scoring sweep.
type LastRun struct {
    ID         int64      `json:"id"`
    Kind       string     `json:"kind"`
    StartedAt  time.Time  `json:"startedAt"`
    FinishedAt *time.Time `json:"finishedAt,omitempty"`
    Scored     int        `json:"scored"`
    Enhanced   int        `json:"enhanced"`
    Fallback   int        `json:"fallback"`
    Alerts     int        `json:"alerts"`
    Error      *string    `json:"error,omitempty"`
}

func (r *Repository) StartScoringRun(ctx context.Context, kind string) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx,
        `INSERT INTO scoring_runs (kind, started_at) VALUES ($1, now()) RETURNING id`, kind,
    ).Scan(&id)
    if err != nil { return 0, fmt.Errorf("start scoring run: %w", err) }
    return id, nil
}

func (r *Repository) FinishScoringRun(ctx context.Context, id int64, scored, enhanced, fallback, alerts int, runErr error) error {
    var errText *string
    if runErr != nil {
        s := runErr.Error()
        errText = &s
    }
    _, err := r.db.Pool.Exec(ctx, `
        UPDATE scoring_runs
        SET finished_at = now(), scored = $2, enhanced = $3, fallback = $4, alerts = $5, error = $6
        WHERE id = $1`, id, scored, enhanced, fallback, alerts, errText)
    if err != nil { return fmt.Errorf("finish scoring run %d: %w", id, err) }
    return nil
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    var lr LastRun
    err := r.db.Pool.QueryRow(ctx, `
        SELECT id, kind, started_at, finished_at, scored, enhanced, fallback, alerts, error
        FROM scoring_runs ORDER BY started_at DESC LIMIT 1`,
    ).Scan(&lr.ID, &lr.Kind, &lr.StartedAt, &lr.FinishedAt, &lr.Scored, &lr.Enhanced, &lr.Fallback, &lr.Alerts, &lr.Error)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, fmt.Errorf("get last run: %w", err) }
    return &lr, nil
}
