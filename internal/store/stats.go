package store

import (
	"context"
	"fmt"

	"github.com/nao1215/footprint/internal/model"
)

// RunStats aggregates the sessions committed by one run.
type RunStats struct {
	RunID    string                          `json:"run_id"`
	Sessions int                             `json:"sessions"`
	ByStatus map[model.Status]int            `json:"by_status"`
	ByMode   map[model.ConsentMode]ModeStats `json:"by_mode"`

	// TopEntities are the tracker entities contacted on most sites, best first.
	TopEntities []EntityStats `json:"top_entities,omitempty"`
}

// ModeStats sums the successful sessions of one consent mode.
type ModeStats struct {
	Sessions             int                  `json:"sessions"`
	BannersDetected      int                  `json:"banners_detected"`
	ConsentActions       int                  `json:"consent_actions"`
	Requests             int                  `json:"requests"`
	ThirdPartyRequests   int                  `json:"third_party_requests"`
	TrackerRequests      int                  `json:"tracker_requests"`
	Bytes                int64                `json:"bytes"`
	ThirdPartyBytes      int64                `json:"third_party_bytes"`
	TrackerBytes         int64                `json:"tracker_bytes"`
	Weight               model.ResourceWeight `json:"weight"`
	Cookies              int                  `json:"cookies"`
	TrackingCookies      int                  `json:"tracking_cookies"`
	CookiesBeforeConsent int                  `json:"cookies_before_consent"`

	// Fingerprinting counts sessions with active or aggressive fingerprinting.
	Fingerprinting int `json:"fingerprinting"`
}

// EntityStats counts the reach of a tracker entity.
type EntityStats struct {
	Name     string `json:"name"`
	Sites    int    `json:"sites"`
	Requests int    `json:"requests"`
}

// Stats aggregates the sessions of runID. topN bounds TopEntities.
func (s *Store) Stats(ctx context.Context, runID string, topN int) (*RunStats, error) {
	st := &RunStats{
		RunID:    runID,
		ByStatus: make(map[model.Status]int),
		ByMode:   make(map[model.ConsentMode]ModeStats),
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT status, COUNT(*) FROM crawl_sessions WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: status stats: %w", ErrPersistence, err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan status stats: %w", ErrPersistence, err)
		}
		st.ByStatus[model.Status(status)] = n
		st.Sessions += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: status stats: %w", ErrPersistence, err)
	}

	rows, err = s.db.QueryContext(ctx, `
	SELECT s.mode, COUNT(*),
		COALESCE(SUM(s.banner_detected), 0), COALESCE(SUM(s.banner_action), 0),
		COALESCE(SUM(s.total_requests), 0), COALESCE(SUM(s.third_party_requests), 0),
		COALESCE(SUM(s.tracker_requests), 0),
		COALESCE(SUM(s.total_bytes), 0), COALESCE(SUM(s.third_party_bytes), 0), COALESCE(SUM(s.tracker_bytes), 0),
		COALESCE(SUM(s.weight_first_party), 0), COALESCE(SUM(s.weight_cdn), 0), COALESCE(SUM(s.weight_tracker), 0),
		COALESCE(SUM(s.weight_ad), 0), COALESCE(SUM(s.weight_functional), 0), COALESCE(SUM(s.weight_unknown), 0),
		COALESCE(SUM(s.total_cookies), 0), COALESCE(SUM(s.tracking_cookies), 0),
		COALESCE(SUM((SELECT COUNT(*) FROM cookies c WHERE c.session_id = s.id AND c.set_before_consent = 1)), 0),
		COALESCE(SUM(s.fingerprint_severity IN ('active', 'aggressive')), 0)
	FROM crawl_sessions s
	WHERE s.run_id = ? AND s.status = 'success'
	GROUP BY s.mode
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: mode stats: %w", ErrPersistence, err)
	}
	for rows.Next() {
		var (
			mode string
			m    ModeStats
		)
		w := &m.Weight
		if err := rows.Scan(&mode, &m.Sessions, &m.BannersDetected, &m.ConsentActions,
			&m.Requests, &m.ThirdPartyRequests, &m.TrackerRequests,
			&m.Bytes, &m.ThirdPartyBytes, &m.TrackerBytes,
			&w.FirstParty, &w.CDN, &w.Tracker, &w.Ad, &w.Functional, &w.Unknown,
			&m.Cookies, &m.TrackingCookies, &m.CookiesBeforeConsent, &m.Fingerprinting); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan mode stats: %w", ErrPersistence, err)
		}
		st.ByMode[model.ConsentMode(mode)] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: mode stats: %w", ErrPersistence, err)
	}

	if topN <= 0 {
		return st, nil
	}
	rows, err = s.db.QueryContext(ctx, `
	SELECT r.entity, COUNT(DISTINCT s.domain), COUNT(*)
	FROM requests r JOIN crawl_sessions s ON s.id = r.session_id
	WHERE s.run_id = ? AND r.entity IS NOT NULL
	GROUP BY r.entity
	ORDER BY COUNT(DISTINCT s.domain) DESC, COUNT(*) DESC, r.entity
	LIMIT ?
	`, runID, topN)
	if err != nil {
		return nil, fmt.Errorf("%w: entity stats: %w", ErrPersistence, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e EntityStats
		if err := rows.Scan(&e.Name, &e.Sites, &e.Requests); err != nil {
			return nil, fmt.Errorf("%w: scan entity stats: %w", ErrPersistence, err)
		}
		st.TopEntities = append(st.TopEntities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: entity stats: %w", ErrPersistence, err)
	}
	return st, nil
}
