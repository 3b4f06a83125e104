package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onionwatch/internal/model"
)

// Link status values stored in the links table. A link that was never
// checked has StatusUnchecked.
const (
	StatusUnchecked = ""
	StatusAlive     = string(model.StatusAlive)
	StatusDead      = string(model.StatusDead)
)

// ErrEmptyURL is returned when a link or investigation has no URL.
var ErrEmptyURL = errors.New("url must not be empty")

// Store provides SQLite-based storage for links, their liveness history and
// investigation results. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database file at dbPath.
func Open(dbPath string, opts Options) (*Store, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		response_time REAL NOT NULL DEFAULT 0,
		last_checked DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_links_status ON links(status);

	-- One row per check, newest last
	CREATE TABLE IF NOT EXISTS liveness_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id INTEGER NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		response_time REAL NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		failure_kind TEXT NOT NULL DEFAULT '',
		checked_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checks_link ON liveness_checks(link_id);

	CREATE TABLE IF NOT EXISTS investigations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		success INTEGER NOT NULL DEFAULT 0,
		total_findings INTEGER NOT NULL DEFAULT 0,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Link is a stored onion link and its latest liveness state.
type Link struct {
	ID           int64
	URL          string
	Title        string
	Status       string
	StatusCode   int
	ResponseTime float64
	LastChecked  time.Time
	CreatedAt    time.Time
}

// Target converts the link into a liveness target.
func (l Link) Target() model.Target {
	return model.Target{ID: l.ID, URL: l.URL}
}

// UpsertLink stores url, updating the title when a non-empty one is given,
// and returns the link's ID.
func (s *Store) UpsertLink(ctx context.Context, url, title string) (int64, error) {
	if url == "" {
		return 0, ErrEmptyURL
	}

	query := `
	INSERT INTO links (url, title) VALUES (?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = CASE WHEN excluded.title != '' THEN excluded.title ELSE links.title END
	`
	if _, err := s.db.ExecContext(ctx, query, url, title); err != nil {
		return 0, fmt.Errorf("failed to upsert link: %w", err)
	}

	// LastInsertId is not reliable after the conflict branch.
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM links WHERE url = ?", url).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read link id: %w", err)
	}
	return id, nil
}

// GetLink returns the link stored under url, or nil if there is none.
func (s *Store) GetLink(ctx context.Context, url string) (*Link, error) {
	query := `
	SELECT id, url, title, status, status_code, response_time, last_checked, created_at
	FROM links WHERE url = ?
	`
	link, err := scanLink(s.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// ListLinks returns links ordered by ID. A non-empty status filters by
// status; pass StatusUnchecked explicitly through ListUnchecked.
func (s *Store) ListLinks(ctx context.Context, status string) ([]Link, error) {
	query := `
	SELECT id, url, title, status, status_code, response_time, last_checked, created_at
	FROM links
	`
	args := make([]any, 0, 1)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id"
	return s.queryLinks(ctx, query, args...)
}

// ListUnchecked returns links that have never been checked.
func (s *Store) ListUnchecked(ctx context.Context) ([]Link, error) {
	query := `
	SELECT id, url, title, status, status_code, response_time, last_checked, created_at
	FROM links WHERE status = '' ORDER BY id
	`
	return s.queryLinks(ctx, query)
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*Link, error) {
	var (
		link        Link
		lastChecked sql.NullString
		createdAt   sql.NullString
	)
	if err := row.Scan(
		&link.ID,
		&link.URL,
		&link.Title,
		&link.Status,
		&link.StatusCode,
		&link.ResponseTime,
		&lastChecked,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		link.LastChecked = parseTimestamp(lastChecked.String)
	}
	if createdAt.Valid {
		link.CreatedAt = parseTimestamp(createdAt.String)
	}
	return &link, nil
}

// Record stores a liveness record. The link is found by TargetID, or by URL
// when TargetID is zero or unknown, and created if missing. Alive records
// update the status code and response time; dead records only update the
// status and check time so the last good measurement is kept.
func (s *Store) Record(ctx context.Context, record model.LivenessRecord) error {
	if record.URL == "" && record.TargetID == 0 {
		return ErrEmptyURL
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	linkID, err := resolveLinkID(ctx, tx, record)
	if err != nil {
		return err
	}

	checkedAt := record.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	ts := checkedAt.UTC().Format(time.RFC3339Nano)

	if record.IsAlive() {
		_, err = tx.ExecContext(ctx, `
		UPDATE links SET status = ?, status_code = ?, response_time = ?, last_checked = ?
		WHERE id = ?`,
			StatusAlive, record.StatusCode, record.ResponseTimeSeconds(), ts, linkID)
	} else {
		_, err = tx.ExecContext(ctx, `
		UPDATE links SET status = ?, last_checked = ? WHERE id = ?`,
			StatusDead, ts, linkID)
	}
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO liveness_checks (link_id, status, status_code, response_time, reason, failure_kind, checked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		linkID,
		string(record.Status),
		record.StatusCode,
		record.ResponseTimeSeconds(),
		record.Reason,
		string(record.FailureKind),
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert liveness check: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit liveness record: %w", err)
	}
	return nil
}

func resolveLinkID(ctx context.Context, tx *sql.Tx, record model.LivenessRecord) (int64, error) {
	var id int64
	if record.TargetID != 0 {
		err := tx.QueryRowContext(ctx, "SELECT id FROM links WHERE id = ?", record.TargetID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("failed to find link: %w", err)
		}
	}
	if record.URL == "" {
		return 0, fmt.Errorf("link %d not found: %w", record.TargetID, ErrEmptyURL)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO links (url) VALUES (?) ON CONFLICT(url) DO NOTHING", record.URL); err != nil {
		return 0, fmt.Errorf("failed to create link: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT id FROM links WHERE url = ?", record.URL).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to find link: %w", err)
	}
	return id, nil
}

// History returns up to limit liveness records for url, newest first.
// A non-positive limit returns every record.
func (s *Store) History(ctx context.Context, url string, limit int) ([]model.LivenessRecord, error) {
	query := `
	SELECT l.id, l.url, c.status, c.status_code, c.response_time, c.reason, c.failure_kind, c.checked_at
	FROM liveness_checks c JOIN links l ON l.id = c.link_id
	WHERE l.url = ?
	ORDER BY c.id DESC
	`
	args := []any{url}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []model.LivenessRecord
	for rows.Next() {
		var (
			r            model.LivenessRecord
			status, kind string
			seconds      float64
			checkedAt    string
		)
		if err := rows.Scan(&r.TargetID, &r.URL, &status, &r.StatusCode, &seconds, &r.Reason, &kind, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		r.Status = model.LivenessStatus(status)
		r.FailureKind = model.FailureKind(kind)
		r.ResponseTime = time.Duration(seconds * float64(time.Second))
		r.CheckedAt = parseTimestamp(checkedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveInvestigation stores inv, replacing an earlier result for the same URL.
func (s *Store) SaveInvestigation(ctx context.Context, inv *model.Investigation) error {
	if inv == nil || inv.URL == "" {
		return ErrEmptyURL
	}

	resultJSON, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to serialize investigation: %w", err)
	}

	query := `
	INSERT INTO investigations (url, success, total_findings, result_json)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		success = excluded.success,
		total_findings = excluded.total_findings,
		result_json = excluded.result_json,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, inv.URL, inv.Success, inv.TotalFindings(), string(resultJSON)); err != nil {
		return fmt.Errorf("failed to save investigation: %w", err)
	}
	return nil
}

// GetInvestigation returns the stored investigation for url, or nil.
func (s *Store) GetInvestigation(ctx context.Context, url string) (*model.Investigation, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, "SELECT result_json FROM investigations WHERE url = ?", url).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investigation: %w", err)
	}

	var inv model.Investigation
	if err := json.Unmarshal([]byte(resultJSON), &inv); err != nil {
		return nil, fmt.Errorf("failed to parse investigation: %w", err)
	}
	return &inv, nil
}

// Stats summarizes the stored data.
type Stats struct {
	Links          int `json:"links"`
	Alive          int `json:"alive"`
	Dead           int `json:"dead"`
	Unchecked      int `json:"unchecked"`
	Checks         int `json:"checks"`
	Investigations int `json:"investigations"`
}

// Stats returns row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'alive' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'dead' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = '' THEN 1 ELSE 0 END), 0)
	FROM links
	`
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.Links, &st.Alive, &st.Dead, &st.Unchecked); err != nil {
		return Stats{}, fmt.Errorf("failed to count links: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM liveness_checks").Scan(&st.Checks); err != nil {
		return Stats{}, fmt.Errorf("failed to count checks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM investigations").Scan(&st.Investigations); err != nil {
		return Stats{}, fmt.Errorf("failed to count investigations: %w", err)
	}
	return st, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each of timestampFormats and returns the zero time
// when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
