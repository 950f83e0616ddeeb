package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists agents and meetings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			instructions TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_user_created ON agents (user_id, created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			ended_at TIMESTAMPTZ NULL,
			recording_url TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_user_created ON meetings (user_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_agent ON meetings (agent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init records schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const agentColumns = `a.id, a.user_id, a.name, a.instructions, a.created_at, a.updated_at`

const meetingColumns = `m.id, m.user_id, m.agent_id, m.name, m.status, m.created_at, m.updated_at,
	m.started_at, m.ended_at, m.recording_url, m.summary, m.transcript`

func (s *PostgresStore) InsertAgent(ctx context.Context, a Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, user_id, name, instructions, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.UserID, a.Name, a.Instructions, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, userID, id string) (AgentDetail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+`,
		        (SELECT COUNT(*) FROM meetings m WHERE m.agent_id = a.id) AS meeting_count
		   FROM agents a WHERE a.id=$1 AND a.user_id=$2`,
		id, userID,
	)
	d, err := scanAgentDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentDetail{}, ErrNotFound
		}
		return AgentDetail{}, fmt.Errorf("get agent: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, f AgentFilter, limit, offset int) ([]AgentDetail, error) {
	where, args := agentWhere(f)
	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+`,
		        (SELECT COUNT(*) FROM meetings m WHERE m.agent_id = a.id) AS meeting_count
		   FROM agents a WHERE `+where+`
		  ORDER BY a.created_at DESC, a.id DESC
		  LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := make([]AgentDetail, 0, limit)
	for rows.Next() {
		d, err := scanAgentDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountAgents(ctx context.Context, f AgentFilter) (int, error) {
	where, args := agentWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents a WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, a Agent) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE agents a SET name=$3, instructions=$4, updated_at=$5
		  WHERE a.id=$1 AND a.user_id=$2
		  RETURNING `+agentColumns,
		a.ID, a.UserID, a.Name, a.Instructions, a.UpdatedAt,
	)
	out, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	return out, nil
}

// DeleteAgent removes the agent and, through the foreign key cascade, every
// meeting that references it. It returns how many meetings went with it.
func (s *PostgresStore) DeleteAgent(ctx context.Context, userID, id string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var removed int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM meetings WHERE agent_id=$1`, id).Scan(&removed); err != nil {
		return 0, fmt.Errorf("count agent meetings: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM agents WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

func (s *PostgresStore) InsertMeeting(ctx context.Context, m Meeting) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO meetings (id, user_id, agent_id, name, status, created_at, updated_at)
		 SELECT $1,$2,$3,$4,$5,$6,$7
		  WHERE EXISTS (SELECT 1 FROM agents WHERE id=$3 AND user_id=$2)`,
		m.ID, m.UserID, m.AgentID, m.Name, string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetMeeting(ctx context.Context, userID, id string) (MeetingDetail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+`, `+agentColumns+`,
		        EXTRACT(EPOCH FROM (m.ended_at - m.started_at))::float8 AS duration
		   FROM meetings m JOIN agents a ON a.id = m.agent_id
		  WHERE m.id=$1 AND m.user_id=$2`,
		id, userID,
	)
	d, err := scanMeetingDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MeetingDetail{}, ErrNotFound
		}
		return MeetingDetail{}, fmt.Errorf("get meeting: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListMeetingsByStatus(ctx context.Context, status Status, limit int) ([]Meeting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingColumns+`
		   FROM meetings m
		  WHERE m.status=$1
		  ORDER BY m.updated_at, m.id
		  LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list meetings by status: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LookupMeeting(ctx context.Context, id string) (Meeting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings m WHERE m.id=$1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, fmt.Errorf("lookup meeting: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMeetings(ctx context.Context, f MeetingFilter, limit, offset int) ([]MeetingDetail, error) {
	where, args := meetingWhere(f)
	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingColumns+`, `+agentColumns+`,
		        EXTRACT(EPOCH FROM (m.ended_at - m.started_at))::float8 AS duration
		   FROM meetings m JOIN agents a ON a.id = m.agent_id
		  WHERE `+where+`
		  ORDER BY m.created_at DESC, m.id DESC
		  LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	out := make([]MeetingDetail, 0, limit)
	for rows.Next() {
		d, err := scanMeetingDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountMeetings(ctx context.Context, f MeetingFilter) (int, error) {
	where, args := meetingWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM meetings m WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count meetings: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateMeeting(ctx context.Context, u MeetingUpdate) (Meeting, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE meetings m
		    SET name = COALESCE(NULLIF($3, ''), m.name),
		        agent_id = COALESCE(NULLIF($4, ''), m.agent_id),
		        updated_at = $5
		  WHERE m.id=$1 AND m.user_id=$2
		    AND ($4 = '' OR EXISTS (SELECT 1 FROM agents WHERE id=$4 AND user_id=$2))
		  RETURNING `+meetingColumns,
		u.ID, u.UserID, u.Name, u.AgentID, u.At,
	)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, fmt.Errorf("update meeting: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) DeleteMeeting(ctx context.Context, userID, id string) (Meeting, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM meetings m WHERE m.id=$1 AND m.user_id=$2 RETURNING `+meetingColumns,
		id, userID,
	)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, fmt.Errorf("delete meeting: %w", err)
	}
	return m, nil
}

// TransitionMeeting applies a compare-and-set status change. A missing row
// yields ErrNotFound; a row whose status moved yields ErrStatusMismatch.
func (s *PostgresStore) TransitionMeeting(ctx context.Context, t Transition) (Meeting, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE meetings m
		    SET status = $3,
		        updated_at = $4,
		        started_at = COALESCE($5, m.started_at),
		        ended_at = CASE WHEN $11::boolean THEN NULL ELSE COALESCE($6, m.ended_at) END,
		        recording_url = COALESCE(NULLIF($7, ''), m.recording_url),
		        summary = COALESCE(NULLIF($8, ''), m.summary),
		        transcript = COALESCE(NULLIF($9, ''), m.transcript)
		  WHERE m.id=$1 AND m.status=$2 AND ($10 = '' OR m.user_id=$10)
		  RETURNING `+meetingColumns,
		t.MeetingID, string(t.From), string(t.To), t.At, t.StartedAt, t.EndedAt,
		t.RecordingURL, t.Summary, t.Transcript, t.UserID, t.ClearEndedAt,
	)
	m, err := scanMeeting(row)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Meeting{}, fmt.Errorf("transition meeting: %w", err)
	}
	cur, lookupErr := s.LookupMeeting(ctx, t.MeetingID)
	if lookupErr != nil {
		return Meeting{}, lookupErr
	}
	if t.UserID != "" && cur.UserID != t.UserID {
		return Meeting{}, ErrNotFound
	}
	return Meeting{}, ErrStatusMismatch
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func agentWhere(f AgentFilter) (string, []any) {
	clauses := []string{"a.user_id=$1"}
	args := []any{f.UserID}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, escapeLike(search)+"%")
		clauses = append(clauses, fmt.Sprintf("a.name ILIKE $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func meetingWhere(f MeetingFilter) (string, []any) {
	clauses := []string{"m.user_id=$1"}
	args := []any{f.UserID}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		clauses = append(clauses, fmt.Sprintf("m.name ILIKE $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("m.status=$%d", len(args)))
	}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		clauses = append(clauses, fmt.Sprintf("m.agent_id=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// escapeLike neutralizes LIKE wildcards in user search input.
func escapeLike(in string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(in)
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Instructions, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanAgentDetail(row pgx.Row) (AgentDetail, error) {
	var d AgentDetail
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Instructions, &d.CreatedAt, &d.UpdatedAt, &d.MeetingCount)
	return d, err
}

func scanMeeting(row pgx.Row) (Meeting, error) {
	var (
		m      Meeting
		status string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.AgentID, &m.Name, &status, &m.CreatedAt, &m.UpdatedAt,
		&m.StartedAt, &m.EndedAt, &m.RecordingURL, &m.Summary, &m.Transcript)
	m.Status = Status(status)
	return m, err
}

func scanMeetingDetail(row pgx.Row) (MeetingDetail, error) {
	var (
		d      MeetingDetail
		status string
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.AgentID, &d.Name, &status, &d.CreatedAt, &d.UpdatedAt,
		&d.StartedAt, &d.EndedAt, &d.RecordingURL, &d.Summary, &d.Transcript,
		&d.Agent.ID, &d.Agent.UserID, &d.Agent.Name, &d.Agent.Instructions, &d.Agent.CreatedAt, &d.Agent.UpdatedAt,
		&d.DurationSeconds,
	)
	d.Status = Status(status)
	return d, err
}

// isForeignKeyViolation reports an agent removed between the existence
// check and the insert.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
