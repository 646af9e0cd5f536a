package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/footprint/internal/model"
)

// DatabaseFile is the database file name inside the database directory.
const DatabaseFile = "footprint.db"

// Store provides SQLite-based storage for session results and checkpoints.
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

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw&_pragma=busy_timeout(5000)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection serializes all workers.
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
	CREATE TABLE IF NOT EXISTS sites (
		domain TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		category TEXT,
		rank INTEGER
	);

	CREATE TABLE IF NOT EXISTS crawl_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		mode TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		final_url TEXT,
		page_title TEXT,
		load_time_ms INTEGER,
		banner_strategy TEXT,
		banner_cmp TEXT,
		banner_button TEXT,
		banner_detected INTEGER,
		banner_action INTEGER,
		banner_revealed INTEGER,
		consent_at TEXT,
		total_requests INTEGER,
		third_party_requests INTEGER,
		tracker_requests INTEGER,
		total_bytes INTEGER,
		third_party_bytes INTEGER,
		tracker_bytes INTEGER,
		weight_first_party INTEGER,
		weight_cdn INTEGER,
		weight_tracker INTEGER,
		weight_ad INTEGER,
		weight_functional INTEGER,
		weight_unknown INTEGER,
		fingerprint_severity TEXT,
		fingerprint_events INTEGER,
		total_cookies INTEGER,
		third_party_cookies INTEGER,
		tracking_cookies INTEGER,
		storage_entries INTEGER,
		screenshot_path TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_task ON crawl_sessions(domain, mode);
	CREATE INDEX IF NOT EXISTS idx_sessions_run ON crawl_sessions(run_id);

	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
		url TEXT NOT NULL,
		host TEXT,
		domain TEXT,
		method TEXT,
		resource_type TEXT,
		third_party INTEGER,
		entity TEXT,
		entity_category TEXT,
		resource_class TEXT,
		status_code INTEGER,
		size_bytes INTEGER,
		failed INTEGER,
		duration_ms INTEGER,
		since_start_ms INTEGER,
		since_consent_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id);
	CREATE INDEX IF NOT EXISTS idx_requests_entity ON requests(entity);

	CREATE TABLE IF NOT EXISTS cookies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
		name TEXT NOT NULL,
		domain TEXT,
		path TEXT,
		value_hash TEXT,
		expires TEXT,
		lifetime_days REAL,
		is_session INTEGER,
		secure INTEGER,
		http_only INTEGER,
		same_site TEXT,
		third_party INTEGER,
		tracking INTEGER,
		entity TEXT,
		set_before_consent INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_cookies_session ON cookies(session_id);

	CREATE TABLE IF NOT EXISTS storage_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
		origin TEXT,
		key TEXT,
		value_size INTEGER,
		tracking INTEGER
	);

	CREATE TABLE IF NOT EXISTS fingerprint_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
		api TEXT NOT NULL,
		method TEXT,
		detail TEXT,
		script_domain TEXT,
		entity TEXT,
		called_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_fingerprint_session ON fingerprint_events(session_id);

	CREATE TABLE IF NOT EXISTS checkpoints (
		domain TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		session_id INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (domain, mode)
	);
	`
	if _, err := s.db.ExecContext(context.Background(), schema); err != nil {
		return err
	}
	return s.addColumns(context.Background())
}

// addedColumns were introduced after the first schema version. Databases
// created before get them on open.
var addedColumns = []struct{ table, column, typ string }{
	{"crawl_sessions", "total_bytes", "INTEGER"},
	{"crawl_sessions", "third_party_bytes", "INTEGER"},
	{"crawl_sessions", "tracker_bytes", "INTEGER"},
	{"crawl_sessions", "weight_first_party", "INTEGER"},
	{"crawl_sessions", "weight_cdn", "INTEGER"},
	{"crawl_sessions", "weight_tracker", "INTEGER"},
	{"crawl_sessions", "weight_ad", "INTEGER"},
	{"crawl_sessions", "weight_functional", "INTEGER"},
	{"crawl_sessions", "weight_unknown", "INTEGER"},
	{"crawl_sessions", "fingerprint_severity", "TEXT"},
	{"crawl_sessions", "fingerprint_events", "INTEGER"},
	{"requests", "resource_class", "TEXT"},
}

func (s *Store) addColumns(ctx context.Context) error {
	existing := make(map[string]bool)
	for _, table := range []string{"crawl_sessions", "requests"} {
		rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			existing[table+"."+name] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	for _, c := range addedColumns {
		if existing[c.table+"."+c.column] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.typ)); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// UpsertSites records the site catalog.
func (s *Store) UpsertSites(ctx context.Context, sites []model.Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO sites (domain, url, category, rank) VALUES (?, ?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
		url = excluded.url,
		category = excluded.category,
		rank = excluded.rank
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare sites: %w", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, site := range sites {
		if _, err := stmt.ExecContext(ctx, site.Domain, site.URL, site.Category, site.Rank); err != nil {
			return fmt.Errorf("%w: insert site %s: %w", ErrPersistence, site.Domain, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit sites: %w", ErrPersistence, err)
	}
	return nil
}

// Commit writes a terminal session result with its requests, cookies and
// storage entries, then marks the checkpoint, all in one transaction.
// On success r.ID holds the new session row id.
//
// Every result gets its own session row. The checkpoint of a (site, mode)
// pair points to the latest success; a failure never replaces a success.
// Committing the same run attempt twice returns ErrAlreadyCommitted and
// writes nothing.
func (s *Store) Commit(ctx context.Context, r *model.SessionResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing int64
	row := tx.QueryRowContext(ctx, `
	SELECT id FROM crawl_sessions
	WHERE run_id = ? AND domain = ? AND mode = ? AND attempt = ?
	`, r.RunID, r.Site.Domain, string(r.Mode), r.Attempt)
	switch scanErr := row.Scan(&existing); {
	case scanErr == nil:
		r.ID = existing
		return fmt.Errorf("%w: %s attempt %d of run %s", ErrAlreadyCommitted, r.Key(), r.Attempt, r.RunID)
	case !errors.Is(scanErr, sql.ErrNoRows):
		return fmt.Errorf("%w: read session: %w", ErrPersistence, scanErr)
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sites (domain, url, category, rank) VALUES (?, ?, ?, ?)`,
		r.Site.Domain, r.Site.URL, r.Site.Category, r.Site.Rank); err != nil {
		return fmt.Errorf("%w: insert site: %w", ErrPersistence, err)
	}

	id, err := insertSession(ctx, tx, r)
	if err != nil {
		return err
	}
	if err := insertRequests(ctx, tx, id, r.Requests); err != nil {
		return err
	}
	if err := insertCookies(ctx, tx, id, r.Cookies); err != nil {
		return err
	}
	if err := insertStorage(ctx, tx, id, r.Storage); err != nil {
		return err
	}
	if err := insertFingerprinting(ctx, tx, id, r.Fingerprinting); err != nil {
		return err
	}

	// Failures may be replaced by anything, a success only by a newer success.
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO checkpoints (domain, mode, status, session_id, attempts, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(domain, mode) DO UPDATE SET
		status = excluded.status,
		session_id = excluded.session_id,
		attempts = excluded.attempts,
		updated_at = excluded.updated_at
	WHERE checkpoints.status != 'success' OR excluded.status = 'success'
	`, r.Site.Domain, string(r.Mode), string(r.Status), id, r.Attempt, formatTime(time.Now())); err != nil {
		return fmt.Errorf("%w: upsert checkpoint: %w", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	r.ID = id
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, r *model.SessionResult) (int64, error) {
	t := r.Totals()
	w := r.Weight()
	var consentAt any
	if !r.ConsentAt.IsZero() {
		consentAt = formatTime(r.ConsentAt)
	}
	res, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_sessions (
		run_id, domain, mode, attempt, status, started_at, completed_at,
		final_url, page_title, load_time_ms,
		banner_strategy, banner_cmp, banner_button, banner_detected, banner_action, banner_revealed,
		consent_at, total_requests, third_party_requests, tracker_requests,
		total_bytes, third_party_bytes, tracker_bytes,
		weight_first_party, weight_cdn, weight_tracker, weight_ad, weight_functional, weight_unknown,
		fingerprint_severity, fingerprint_events,
		total_cookies, third_party_cookies, tracking_cookies, storage_entries,
		screenshot_path, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID, r.Site.Domain, string(r.Mode), r.Attempt, string(r.Status),
		formatTime(r.StartedAt), formatTime(r.CompletedAt),
		r.FinalURL, r.PageTitle, r.LoadTime.Milliseconds(),
		string(r.Banner.Strategy), r.Banner.CMP, r.Banner.ButtonText,
		r.Banner.Detected, r.Banner.ActionTaken, r.Banner.Revealed,
		consentAt, t.Requests, t.ThirdPartyRequests, t.TrackerRequests,
		t.Bytes, t.ThirdPartyBytes, t.TrackerBytes,
		w.FirstParty, w.CDN, w.Tracker, w.Ad, w.Functional, w.Unknown,
		string(r.FingerprintSeverity()), t.FingerprintEvents,
		t.Cookies, t.ThirdPartyCookies, t.TrackingCookies, t.StorageEntries,
		r.ScreenshotPath, r.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert session: %w", ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: session id: %w", ErrPersistence, err)
	}
	return id, nil
}

func insertRequests(ctx context.Context, tx *sql.Tx, sessionID int64, reqs []model.ClassifiedRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO requests (
		session_id, url, host, domain, method, resource_type, third_party,
		entity, entity_category, resource_class, status_code, size_bytes, failed,
		duration_ms, since_start_ms, since_consent_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare requests: %w", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, q := range reqs {
		var entity, category any
		if q.Entity != nil {
			entity, category = q.Entity.Name, string(q.Entity.Category)
		}
		var sinceConsent any
		if q.SinceConsent != nil {
			sinceConsent = q.SinceConsent.Milliseconds()
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, q.URL, q.Host, q.Domain, q.Method, q.ResourceType, q.ThirdParty,
			entity, category, string(q.Class), q.StatusCode, q.SizeBytes, q.Failed,
			q.Duration.Milliseconds(), q.SinceStart.Milliseconds(), sinceConsent,
		); err != nil {
			return fmt.Errorf("%w: insert request: %w", ErrPersistence, err)
		}
	}
	return nil
}

func insertCookies(ctx context.Context, tx *sql.Tx, sessionID int64, cookies []model.ClassifiedCookie) error {
	if len(cookies) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO cookies (
		session_id, name, domain, path, value_hash, expires, lifetime_days,
		is_session, secure, http_only, same_site, third_party, tracking,
		entity, set_before_consent
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare cookies: %w", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, c := range cookies {
		var expires, entity any
		if !c.Expires.IsZero() {
			expires = formatTime(c.Expires)
		}
		if c.Entity != nil {
			entity = c.Entity.Name
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, c.Name, c.Domain, c.Path, c.ValueHash, expires, c.LifetimeDays,
			c.IsSession, c.Secure, c.HTTPOnly, c.SameSite, c.ThirdParty, c.Tracking,
			entity, c.SetBeforeConsent,
		); err != nil {
			return fmt.Errorf("%w: insert cookie: %w", ErrPersistence, err)
		}
	}
	return nil
}

func insertStorage(ctx context.Context, tx *sql.Tx, sessionID int64, items []model.StorageEntry) error {
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO storage_items (session_id, origin, key, value_size, tracking) VALUES (?, ?, ?, ?, ?)`,
			sessionID, it.Origin, it.Key, it.ValueSize, it.Tracking,
		); err != nil {
			return fmt.Errorf("%w: insert storage item: %w", ErrPersistence, err)
		}
	}
	return nil
}

func insertFingerprinting(ctx context.Context, tx *sql.Tx, sessionID int64, events []model.FingerprintEvent) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO fingerprint_events (session_id, api, method, detail, script_domain, entity, called_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare fingerprint events: %w", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, e := range events {
		var entity, at any
		if e.Entity != nil {
			entity = e.Entity.Name
		}
		if !e.At.IsZero() {
			at = formatTime(e.At)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, string(e.API), e.Method, e.Detail, e.ScriptDomain, entity, at,
		); err != nil {
			return fmt.Errorf("%w: insert fingerprint event: %w", ErrPersistence, err)
		}
	}
	return nil
}
