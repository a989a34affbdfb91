package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/zkdrop/dropbot/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path guard and send-log operations.
var preparedStatements = map[string]string{
	"candidate_exists":  `SELECT 1 FROM candidates WHERE link = $1`,
	"notified_recently": `SELECT 1 FROM send_log WHERE link = $1 AND sent_at >= $2 LIMIT 1`,
	"log_notified":      `INSERT INTO send_log (id, link, sent_at) VALUES ($1, $2, $3)`,
	"get_trust_cache":   `SELECT score, verdict, checked_at FROM trust_cache WHERE link = $1 AND contract = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	link          TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	social_handle TEXT NOT NULL DEFAULT '',
	reward_xp     DOUBLE PRECISION,
	trust_score   INTEGER,
	verdict       TEXT NOT NULL DEFAULT 'unknown',
	rank_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	notified      BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS send_log (
	id      TEXT PRIMARY KEY,
	link    TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recipients (
	chat_id       BIGINT PRIMARY KEY,
	username      TEXT NOT NULL DEFAULT '',
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	banned        BOOLEAN NOT NULL DEFAULT false,
	unreachable   BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS trust_cache (
	link       TEXT NOT NULL,
	contract   TEXT NOT NULL DEFAULT '',
	score      INTEGER,
	verdict    TEXT NOT NULL,
	checked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (link, contract)
);

CREATE TABLE IF NOT EXISTS support_tickets (
	id         TEXT PRIMARY KEY,
	chat_id    BIGINT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_send_log_link_sent_at ON send_log(link, sent_at);
CREATE INDEX IF NOT EXISTS idx_candidates_notified ON candidates(notified);
CREATE INDEX IF NOT EXISTS idx_support_tickets_status ON support_tickets(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CandidateExists(ctx context.Context, link string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM candidates WHERE link = $1`, link,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: candidate exists %s", link)
	}
	return true, nil
}

func (s *PostgresStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO candidates (link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.Link, c.Title, c.Description, c.SocialHandle,
		c.RewardXP, c.TrustScore, string(c.Verdict), c.RankScore, c.DiscoveredAt, c.Notified,
	)
	return eris.Wrapf(err, "postgres: insert candidate %s", c.Link)
}

func (s *PostgresStore) MarkCandidateNotified(ctx context.Context, link string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET notified = true WHERE link = $1`, link,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark notified %s", link)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: candidate not found: %s", link)
	}
	return nil
}

func (s *PostgresStore) TopCandidates(ctx context.Context, since time.Time, limit int) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified
		 FROM candidates
		 WHERE discovered_at >= $1 AND verdict = 'clean'
		 ORDER BY rank_score DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top candidates")
	}
	defer rows.Close()
	return scanPgCandidateRows(rows)
}

func (s *PostgresStore) UnnotifiedCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified
		 FROM candidates
		 WHERE NOT notified AND verdict = 'clean'
		 ORDER BY rank_score DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unnotified candidates")
	}
	defer rows.Close()
	return scanPgCandidateRows(rows)
}

func scanPgCandidateRows(rows pgx.Rows) ([]model.Candidate, error) {
	var out []model.Candidate
	for rows.Next() {
		var (
			c       model.Candidate
			verdict string
		)
		if err := rows.Scan(&c.Link, &c.Title, &c.Description, &c.SocialHandle,
			&c.RewardXP, &c.TrustScore, &verdict, &c.RankScore, &c.DiscoveredAt, &c.Notified); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.Verdict = model.Verdict(verdict)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) WasNotifiedRecently(ctx context.Context, link string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM send_log WHERE link = $1 AND sent_at >= $2 LIMIT 1`,
		link, cutoff,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: notified recently %s", link)
	}
	return true, nil
}

func (s *PostgresStore) LogNotified(ctx context.Context, link string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO send_log (id, link, sent_at) VALUES ($1, $2, $3)`,
		uuid.New().String(), link, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: log notified %s", link)
}

func (s *PostgresStore) SendHistory(ctx context.Context, link string, limit int) ([]model.SendRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, link, sent_at FROM send_log WHERE link = $1 ORDER BY sent_at DESC LIMIT $2`,
		link, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: send history")
	}
	defer rows.Close()

	var out []model.SendRecord
	for rows.Next() {
		var r model.SendRecord
		if err := rows.Scan(&r.ID, &r.Link, &r.SentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan send record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate send log")
}

func (s *PostgresStore) AddRecipient(ctx context.Context, chatID int64, username string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recipients (chat_id, username, registered_at) VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id) DO NOTHING`,
		chatID, username, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add recipient %d", chatID)
}

func (s *PostgresStore) ListActiveRecipients(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chat_id FROM recipients WHERE NOT banned AND NOT unreachable ORDER BY registered_at, chat_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active recipients")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recipient")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate recipients")
}

func (s *PostgresStore) RecipientCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recipients WHERE NOT banned`,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: recipient count")
}

func (s *PostgresStore) BanRecipient(ctx context.Context, chatID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipients SET banned = true WHERE chat_id = $1`, chatID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: ban recipient %d", chatID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: recipient not found: %d", chatID)
	}
	return nil
}

func (s *PostgresStore) MarkRecipientUnreachable(ctx context.Context, chatID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipients SET unreachable = true WHERE chat_id = $1`, chatID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark unreachable %d", chatID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: recipient not found: %d", chatID)
	}
	return nil
}

func (s *PostgresStore) GetTrustCache(ctx context.Context, link, contract string) (*model.TrustResult, error) {
	var (
		score   *int
		verdict string
		checked time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT score, verdict, checked_at FROM trust_cache WHERE link = $1 AND contract = $2`,
		link, contract,
	).Scan(&score, &verdict, &checked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get trust cache %s", link)
	}
	return &model.TrustResult{Score: score, Verdict: model.Verdict(verdict), CheckedAt: checked}, nil
}

func (s *PostgresStore) PutTrustCache(ctx context.Context, link, contract string, res model.TrustResult) error {
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trust_cache (link, contract, score, verdict, checked_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (link, contract) DO UPDATE SET score = EXCLUDED.score, verdict = EXCLUDED.verdict, checked_at = EXCLUDED.checked_at`,
		link, contract, res.Score, string(res.Verdict), res.CheckedAt,
	)
	return eris.Wrapf(err, "postgres: put trust cache %s", link)
}

func (s *PostgresStore) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO support_tickets (id, chat_id, category, body, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ChatID, t.Category, t.Body, string(t.Status), t.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: create ticket %s", t.ID)
}

func (s *PostgresStore) ListOpenTickets(ctx context.Context) ([]model.SupportTicket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, category, body, status, created_at FROM support_tickets WHERE status = 'open' ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list open tickets")
	}
	defer rows.Close()

	var tickets []model.SupportTicket
	for rows.Next() {
		var (
			t      model.SupportTicket
			status string
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Category, &t.Body, &status, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ticket")
		}
		t.Status = model.TicketStatus(status)
		tickets = append(tickets, t)
	}
	return tickets, eris.Wrap(rows.Err(), "postgres: iterate tickets")
}
