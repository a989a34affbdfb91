package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/zkdrop/dropbot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	link          TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	social_handle TEXT NOT NULL DEFAULT '',
	reward_xp     REAL,
	trust_score   INTEGER,
	verdict       TEXT NOT NULL DEFAULT 'unknown',
	rank_score    REAL NOT NULL DEFAULT 0,
	discovered_at DATETIME NOT NULL DEFAULT (datetime('now')),
	notified      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS send_log (
	id      TEXT PRIMARY KEY,
	link    TEXT NOT NULL,
	sent_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recipients (
	chat_id       INTEGER PRIMARY KEY,
	username      TEXT NOT NULL DEFAULT '',
	registered_at DATETIME NOT NULL DEFAULT (datetime('now')),
	banned        INTEGER NOT NULL DEFAULT 0,
	unreachable   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trust_cache (
	link       TEXT NOT NULL,
	contract   TEXT NOT NULL DEFAULT '',
	score      INTEGER,
	verdict    TEXT NOT NULL,
	checked_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (link, contract)
);

CREATE TABLE IF NOT EXISTS support_tickets (
	id         TEXT PRIMARY KEY,
	chat_id    INTEGER NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_send_log_link_sent_at ON send_log(link, sent_at);
CREATE INDEX IF NOT EXISTS idx_candidates_notified ON candidates(notified);
CREATE INDEX IF NOT EXISTS idx_support_tickets_status ON support_tickets(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CandidateExists(ctx context.Context, link string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM candidates WHERE link = ?`, link,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: candidate exists %s", link)
	}
	return true, nil
}

func (s *SQLiteStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates (link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Link, c.Title, c.Description, c.SocialHandle,
		nullFloat(c.RewardXP), nullInt(c.TrustScore),
		string(c.Verdict), c.RankScore, c.DiscoveredAt, boolToInt(c.Notified),
	)
	return eris.Wrapf(err, "sqlite: insert candidate %s", c.Link)
}

func (s *SQLiteStore) MarkCandidateNotified(ctx context.Context, link string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET notified = 1 WHERE link = ?`, link,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark notified %s", link)
	}
	return checkRowsAffected(res, "candidate", link)
}

func (s *SQLiteStore) TopCandidates(ctx context.Context, since time.Time, limit int) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified
		 FROM candidates
		 WHERE discovered_at >= ? AND verdict = 'clean'
		 ORDER BY rank_score DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top candidates")
	}
	defer rows.Close()
	return scanCandidateRows(rows)
}

func (s *SQLiteStore) UnnotifiedCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link, title, description, social_handle, reward_xp, trust_score, verdict, rank_score, discovered_at, notified
		 FROM candidates
		 WHERE notified = 0 AND verdict = 'clean'
		 ORDER BY rank_score DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unnotified candidates")
	}
	defer rows.Close()
	return scanCandidateRows(rows)
}

func scanCandidateRows(rows *sql.Rows) ([]model.Candidate, error) {
	var out []model.Candidate
	for rows.Next() {
		var (
			c        model.Candidate
			reward   sql.NullFloat64
			trust    sql.NullInt64
			verdict  string
			notified int
		)
		if err := rows.Scan(&c.Link, &c.Title, &c.Description, &c.SocialHandle,
			&reward, &trust, &verdict, &c.RankScore, &c.DiscoveredAt, &notified); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if reward.Valid {
			v := reward.Float64
			c.RewardXP = &v
		}
		if trust.Valid {
			v := int(trust.Int64)
			c.TrustScore = &v
		}
		c.Verdict = model.Verdict(verdict)
		c.Notified = notified != 0
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) WasNotifiedRecently(ctx context.Context, link string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM send_log WHERE link = ? AND sent_at >= ? LIMIT 1`,
		link, cutoff,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: notified recently %s", link)
	}
	return true, nil
}

func (s *SQLiteStore) LogNotified(ctx context.Context, link string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO send_log (id, link, sent_at) VALUES (?, ?, ?)`,
		uuid.New().String(), link, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: log notified %s", link)
}

func (s *SQLiteStore) SendHistory(ctx context.Context, link string, limit int) ([]model.SendRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, link, sent_at FROM send_log WHERE link = ? ORDER BY sent_at DESC LIMIT ?`,
		link, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: send history")
	}
	defer rows.Close()

	var out []model.SendRecord
	for rows.Next() {
		var r model.SendRecord
		if err := rows.Scan(&r.ID, &r.Link, &r.SentAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan send record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate send log")
}

func (s *SQLiteStore) AddRecipient(ctx context.Context, chatID int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients (chat_id, username, registered_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, username, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add recipient %d", chatID)
}

func (s *SQLiteStore) ListActiveRecipients(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM recipients WHERE banned = 0 AND unreachable = 0 ORDER BY registered_at, chat_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active recipients")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recipient")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate recipients")
}

func (s *SQLiteStore) RecipientCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipients WHERE banned = 0`,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: recipient count")
}

func (s *SQLiteStore) BanRecipient(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET banned = 1 WHERE chat_id = ?`, chatID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: ban recipient %d", chatID)
	}
	return checkRowsAffected(res, "recipient", chatID)
}

func (s *SQLiteStore) MarkRecipientUnreachable(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET unreachable = 1 WHERE chat_id = ?`, chatID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark unreachable %d", chatID)
	}
	return checkRowsAffected(res, "recipient", chatID)
}

func (s *SQLiteStore) GetTrustCache(ctx context.Context, link, contract string) (*model.TrustResult, error) {
	var (
		score   sql.NullInt64
		verdict string
		checked time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT score, verdict, checked_at FROM trust_cache WHERE link = ? AND contract = ?`,
		link, contract,
	).Scan(&score, &verdict, &checked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trust cache %s", link)
	}

	res := &model.TrustResult{Verdict: model.Verdict(verdict), CheckedAt: checked}
	if score.Valid {
		v := int(score.Int64)
		res.Score = &v
	}
	return res, nil
}

func (s *SQLiteStore) PutTrustCache(ctx context.Context, link, contract string, res model.TrustResult) error {
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_cache (link, contract, score, verdict, checked_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(link, contract) DO UPDATE SET score = excluded.score, verdict = excluded.verdict, checked_at = excluded.checked_at`,
		link, contract, nullInt(res.Score), string(res.Verdict), res.CheckedAt,
	)
	return eris.Wrapf(err, "sqlite: put trust cache %s", link)
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_tickets (id, chat_id, category, body, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.ChatID, t.Category, t.Body, string(t.Status), t.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: create ticket %s", t.ID)
}

func (s *SQLiteStore) ListOpenTickets(ctx context.Context) ([]model.SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, category, body, status, created_at FROM support_tickets WHERE status = 'open' ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list open tickets")
	}
	defer rows.Close()

	var tickets []model.SupportTicket
	for rows.Next() {
		var (
			t      model.SupportTicket
			status string
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Category, &t.Body, &status, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ticket")
		}
		t.Status = model.TicketStatus(status)
		tickets = append(tickets, t)
	}
	return tickets, eris.Wrap(rows.Err(), "sqlite: iterate tickets")
}

func checkRowsAffected(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %v", kind, id)
	}
	return nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
