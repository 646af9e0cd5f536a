package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/footprint/internal/model"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testResult(domain string, mode model.ConsentMode, status model.Status, attempt int) *model.SessionResult {
	site := model.Site{URL: "https://" + domain + "/", Domain: domain, Category: "news", Rank: 1}
	task := model.NewCrawlTask(site, mode)
	task.Attempt = attempt
	r := model.NewSessionResult("run-1", task)
	r.Status = status
	r.StartedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.CompletedAt = r.StartedAt.Add(90 * time.Second)
	if status != model.StatusSuccess {
		r.Fail(status, errors.New("navigation timed out"))
		return r
	}
	since := 2 * time.Second
	ga := &model.TrackerEntity{Name: "Google", Category: model.CategoryAnalytics}
	r.Banner = model.BannerMatch{Strategy: model.StrategyKnownCMP, CMP: "onetrust", Detected: true, ActionTaken: true, ButtonText: "Accept"}
	r.ConsentAt = r.StartedAt.Add(5 * time.Second)
	r.Requests = []model.ClassifiedRequest{
		{URL: "https://" + domain + "/", Host: domain, Domain: domain, Method: "GET", Class: model.ResourceFirstParty, SizeBytes: 30000},
		{URL: "https://www.google-analytics.com/g/collect", Host: "www.google-analytics.com", Domain: "google-analytics.com", Method: "POST", ThirdParty: true, Entity: ga, Class: model.ResourceTracker, SizeBytes: 43, SinceConsent: &since},
	}
	r.Cookies = []model.ClassifiedCookie{
		{Name: "_ga", Domain: "." + domain, ValueHash: "abc", LifetimeDays: 400, Tracking: true, Entity: ga},
		{Name: "lang", Domain: domain, IsSession: true, SetBeforeConsent: true},
	}
	r.Storage = []model.StorageEntry{{Origin: "https://" + domain, Key: "_hjid", ValueSize: 36, Tracking: true}}
	r.Fingerprinting = []model.FingerprintEvent{
		{API: model.FingerprintCanvas, Method: "toDataURL", Detail: "220x30", ScriptDomain: "google-analytics.com", Entity: ga, At: r.StartedAt.Add(3 * time.Second)},
	}
	return r
}

// TestOpen tests store opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "dir")
		s, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dir, DatabaseFile)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "absent"), Options{})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})
}

// TestCommit tests atomic result and checkpoint persistence.
func TestCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("success writes result rows and checkpoint", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		r := testResult("example.cz", model.ConsentAccept, model.StatusSuccess, 1)
		if err := s.Commit(ctx, r); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if r.ID == 0 {
			t.Error("expected session id to be set")
		}

		cp, err := s.Checkpoint(ctx, r.Key())
		if err != nil || cp == nil {
			t.Fatalf("Checkpoint() = %v, %v", cp, err)
		}
		if cp.Status != model.StatusSuccess || cp.SessionID != r.ID || cp.Attempts != 1 {
			t.Errorf("unexpected checkpoint %+v", cp)
		}

		var requests, cookies, storage int
		_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE session_id = ?`, r.ID).Scan(&requests)
		_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cookies WHERE session_id = ?`, r.ID).Scan(&cookies)
		_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM storage_items WHERE session_id = ?`, r.ID).Scan(&storage)
		if requests != 2 || cookies != 2 || storage != 1 {
			t.Errorf("rows = %d requests, %d cookies, %d storage", requests, cookies, storage)
		}

		var (
			total, thirdParty, tracker, weightFirst, weightTracker int64
			severity                                               string
			events                                                 int
		)
		err = s.db.QueryRowContext(ctx, `
		SELECT total_bytes, third_party_bytes, tracker_bytes, weight_first_party, weight_tracker, fingerprint_severity,
			(SELECT COUNT(*) FROM fingerprint_events f WHERE f.session_id = crawl_sessions.id AND f.entity = 'Google')
		FROM crawl_sessions WHERE id = ?`, r.ID).
			Scan(&total, &thirdParty, &tracker, &weightFirst, &weightTracker, &severity, &events)
		if err != nil {
			t.Fatal(err)
		}
		if total != 30043 || thirdParty != 43 || tracker != 43 {
			t.Errorf("bytes = %d total, %d third-party, %d tracker", total, thirdParty, tracker)
		}
		if weightFirst != 30000 || weightTracker != 43 {
			t.Errorf("weight = %d first-party, %d tracker", weightFirst, weightTracker)
		}
		if severity != string(model.SeverityActive) || events != 1 {
			t.Errorf("fingerprinting = %s with %d attributed events", severity, events)
		}
		var class string
		_ = s.db.QueryRowContext(ctx, `SELECT resource_class FROM requests WHERE session_id = ? AND entity = 'Google'`, r.ID).Scan(&class)
		if class != string(model.ResourceTracker) {
			t.Errorf("resource_class = %q", class)
		}
	})

	t.Run("a later run stores its success and moves the checkpoint", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		first := testResult("example.cz", model.ConsentReject, model.StatusSuccess, 1)
		if err := s.Commit(ctx, first); err != nil {
			t.Fatal(err)
		}
		second := testResult("example.cz", model.ConsentReject, model.StatusSuccess, 1)
		second.RunID = "run-2"
		if err := s.Commit(ctx, second); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if second.ID == 0 || second.ID == first.ID {
			t.Fatalf("expected a new session row, got id %d (first %d)", second.ID, first.ID)
		}
		if n, _ := s.SessionCount(ctx, first.Key()); n != 2 {
			t.Errorf("expected 2 session rows, got %d", n)
		}
		cp, err := s.Checkpoint(ctx, first.Key())
		if err != nil || cp == nil {
			t.Fatalf("Checkpoint() = %v, %v", cp, err)
		}
		if cp.Status != model.StatusSuccess || cp.SessionID != second.ID {
			t.Errorf("checkpoint = %+v, want success pointing to session %d", cp, second.ID)
		}
		done, _ := s.CompletedTasks(ctx)
		if len(done) != 1 {
			t.Errorf("expected one completed task, got %d", len(done))
		}
	})

	t.Run("committing the same attempt twice is rejected", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		r := testResult("example.cz", model.ConsentAccept, model.StatusSuccess, 1)
		if err := s.Commit(ctx, r); err != nil {
			t.Fatal(err)
		}
		firstID := r.ID
		if err := s.Commit(ctx, r); !errors.Is(err, ErrAlreadyCommitted) {
			t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
		}
		if r.ID != firstID {
			t.Errorf("session id changed from %d to %d", firstID, r.ID)
		}
		if n, _ := s.SessionCount(ctx, r.Key()); n != 1 {
			t.Errorf("expected 1 session row, got %d", n)
		}
	})

	t.Run("failure checkpoint is replaced by a later success", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		failed := testResult("slow.cz", model.ConsentIgnore, model.StatusTimeout, 3)
		if err := s.Commit(ctx, failed); err != nil {
			t.Fatal(err)
		}
		done, _ := s.CompletedTasks(ctx)
		if done[failed.Key()] {
			t.Error("timeout must not count as completed")
		}

		ok := testResult("slow.cz", model.ConsentIgnore, model.StatusSuccess, 1)
		if err := s.Commit(ctx, ok); err != nil {
			t.Fatal(err)
		}
		cp, _ := s.Checkpoint(ctx, ok.Key())
		if cp.Status != model.StatusSuccess || cp.SessionID != ok.ID {
			t.Errorf("unexpected checkpoint %+v", cp)
		}

		// A later failure never downgrades the success.
		late := testResult("slow.cz", model.ConsentIgnore, model.StatusError, 2)
		if err := s.Commit(ctx, late); err != nil {
			t.Fatal(err)
		}
		cp, _ = s.Checkpoint(ctx, ok.Key())
		if cp.Status != model.StatusSuccess {
			t.Errorf("success was downgraded to %s", cp.Status)
		}
	})

	t.Run("cancelled context leaves no partial rows", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		r := testResult("example.cz", model.ConsentAccept, model.StatusSuccess, 1)
		if err := s.Commit(cctx, r); !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if cp, _ := s.Checkpoint(ctx, r.Key()); cp != nil {
			t.Errorf("checkpoint written without result: %+v", cp)
		}
		if n, _ := s.SessionCount(ctx, r.Key()); n != 0 {
			t.Errorf("expected no session rows, got %d", n)
		}
	})

	t.Run("concurrent commits of distinct tasks", func(t *testing.T) {
		t.Parallel()
		s := setupTestStore(t)

		var wg sync.WaitGroup
		errs := make(chan error, 30)
		for i := range 10 {
			for _, mode := range model.AllConsentModes() {
				wg.Add(1)
				go func() {
					defer wg.Done()
					domain := string(rune('a'+i)) + ".cz"
					errs <- s.Commit(ctx, testResult(domain, mode, model.StatusSuccess, 1))
				}()
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("Commit() error = %v", err)
			}
		}
		done, err := s.CompletedTasks(ctx)
		if err != nil || len(done) != 30 {
			t.Errorf("expected 30 completed tasks, got %d, %v", len(done), err)
		}
	})
}

// TestUpsertSites tests catalog persistence.
func TestUpsertSites(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()
	sites := []model.Site{
		{URL: "https://a.cz/", Domain: "a.cz", Rank: 1},
		{URL: "https://b.cz/", Domain: "b.cz", Rank: 2},
	}
	if err := s.UpsertSites(ctx, sites); err != nil {
		t.Fatal(err)
	}
	sites[0].Category = "news"
	if err := s.UpsertSites(ctx, sites); err != nil {
		t.Fatal(err)
	}

	var n int
	var category string
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites`).Scan(&n)
	_ = s.db.QueryRowContext(ctx, `SELECT category FROM sites WHERE domain = 'a.cz'`).Scan(&category)
	if n != 2 || category != "news" {
		t.Errorf("sites = %d, category = %q", n, category)
	}
}

// TestStats tests run aggregation.
func TestStats(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()
	for _, r := range []*model.SessionResult{
		testResult("a.cz", model.ConsentAccept, model.StatusSuccess, 1),
		testResult("b.cz", model.ConsentAccept, model.StatusSuccess, 2),
		testResult("c.cz", model.ConsentAccept, model.StatusBlocked, 1),
		testResult("a.cz", model.ConsentReject, model.StatusTimeout, 3),
	} {
		if err := s.Commit(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.Stats(ctx, "run-1", 5)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Sessions != 4 || st.ByStatus[model.StatusSuccess] != 2 || st.ByStatus[model.StatusBlocked] != 1 {
		t.Errorf("unexpected status counts %+v", st.ByStatus)
	}
	accept := st.ByMode[model.ConsentAccept]
	if accept.Sessions != 2 || accept.ConsentActions != 2 || accept.TrackerRequests != 2 || accept.CookiesBeforeConsent != 2 {
		t.Errorf("unexpected accept stats %+v", accept)
	}
	if accept.Bytes != 60086 || accept.ThirdPartyBytes != 86 || accept.TrackerBytes != 86 {
		t.Errorf("unexpected accept bytes %+v", accept)
	}
	if accept.Weight.FirstParty != 60000 || accept.Weight.Tracker != 86 || accept.Weight.Total() != accept.Bytes {
		t.Errorf("unexpected accept weight %+v", accept.Weight)
	}
	if accept.Fingerprinting != 2 {
		t.Errorf("fingerprinting sessions = %d, want 2", accept.Fingerprinting)
	}
	if len(st.TopEntities) != 1 || st.TopEntities[0].Name != "Google" || st.TopEntities[0].Sites != 2 {
		t.Errorf("unexpected entities %+v", st.TopEntities)
	}

	other, err := s.Stats(ctx, "other-run", 5)
	if err != nil || other.Sessions != 0 {
		t.Errorf("unexpected stats for unknown run: %+v, %v", other, err)
	}
}

// TestCompletedTasksError tests that read failures are persistence errors.
func TestCompletedTasksError(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if _, err := s.CompletedTasks(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

// TestOpenAddsColumns tests that a database without the byte and
// fingerprinting columns is upgraded on open.
func TestOpenAddsColumns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, DatabaseFile))
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(context.Background(), `
	CREATE TABLE crawl_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL, domain TEXT NOT NULL, mode TEXT NOT NULL,
		attempt INTEGER NOT NULL, status TEXT NOT NULL,
		started_at TEXT, completed_at TEXT, final_url TEXT, page_title TEXT, load_time_ms INTEGER,
		banner_strategy TEXT, banner_cmp TEXT, banner_button TEXT,
		banner_detected INTEGER, banner_action INTEGER, banner_revealed INTEGER,
		consent_at TEXT, total_requests INTEGER, third_party_requests INTEGER, tracker_requests INTEGER,
		total_cookies INTEGER, third_party_cookies INTEGER, tracking_cookies INTEGER, storage_entries INTEGER,
		screenshot_path TEXT, error TEXT
	);
	CREATE TABLE requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL, url TEXT NOT NULL, host TEXT, domain TEXT, method TEXT,
		resource_type TEXT, third_party INTEGER, entity TEXT, entity_category TEXT,
		status_code INTEGER, size_bytes INTEGER, failed INTEGER,
		duration_ms INTEGER, since_start_ms INTEGER, since_consent_ms INTEGER
	);`)
	_ = db.Close()
	if err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open old database: %v", err)
	}
	defer s.Close()

	r := testResult("example.cz", model.ConsentAccept, model.StatusSuccess, 1)
	if err := s.Commit(context.Background(), r); err != nil {
		t.Fatalf("Commit() on upgraded database error = %v", err)
	}
	st, err := s.Stats(context.Background(), "run-1", 0)
	if err != nil || st.ByMode[model.ConsentAccept].Bytes != 30043 {
		t.Errorf("Stats() = %+v, %v", st, err)
	}
}
