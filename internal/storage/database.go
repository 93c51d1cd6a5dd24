package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/priority-crawler/prowl/internal/robots"
	"github.com/priority-crawler/prowl/internal/session"
)

// Database handles all database operations.
type Database struct {
	db *sql.DB
	mu sync.RWMutex

	// Session the Save* methods write under
	sessionID string
}

// NewDatabase creates a new database connection.
func NewDatabase(path string) (*Database, error) {
	// SQLite connection with optimizations
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &Database{db: db}, nil
}

// Initialize creates tables and views.
func (d *Database) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Create tables
	if _, err := d.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Create views
	if _, err := d.db.Exec(ViewsSchema); err != nil {
		return fmt.Errorf("failed to create views: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// --- Session Operations ---

// BeginSession inserts the session row and selects it as the write target
// for subsequent Save calls.
func (d *Database) BeginSession(id, seedURL, configJSON string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO sessions (id, seed_url, status, config_json)
		VALUES (?, ?, ?, ?)
	`, id, seedURL, SessionRunning, configJSON)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.sessionID = id
	return nil
}

// FinishSession closes out the session row and writes the importance
// scores computed after the crawl back onto the page rows.
func (d *Database) FinishSession(result *session.Result, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE sessions
		SET status = ?, completed_at = CURRENT_TIMESTAMP, pages_visited = ?, pages_failed = ?, edges = ?
		WHERE id = ?
	`, status, result.Stats.PagesVisited, result.Stats.PagesFailed, result.Stats.Edges, result.SessionID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`UPDATE pages SET importance_score = ? WHERE session_id = ? AND url = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, page := range result.Pages {
		if _, err := stmt.Exec(page.ImportanceScore, result.SessionID, page.URL); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSession retrieves a session by ID.
func (d *Database) GetSession(id string) (*SessionRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var row SessionRow
	var completedAt sql.NullTime
	err := d.db.QueryRow(`
		SELECT id, seed_url, started_at, completed_at, status, pages_visited, pages_failed, edges, config_json
		FROM sessions WHERE id = ?
	`, id).Scan(
		&row.ID, &row.SeedURL, &row.StartedAt, &completedAt, &row.Status,
		&row.PagesVisited, &row.PagesFailed, &row.Edges, &row.ConfigJSON,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		row.CompletedAt = &completedAt.Time
	}
	return &row, nil
}

// --- Page Operations ---

// SavePage inserts a visited page record.
func (d *Database) SavePage(record *session.PageRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessionID == "" {
		return fmt.Errorf("no active session")
	}

	_, err := d.db.Exec(`
		INSERT INTO pages (session_id, url, depth, referer, status_code, content_type, latency_ms,
			fetched_at, title, meta_description, canonical_url, heading_text, word_count,
			detected_language, outlink_count, importance_score, failed, fetch_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, url) DO UPDATE SET
			status_code = excluded.status_code,
			content_type = excluded.content_type,
			latency_ms = excluded.latency_ms,
			fetched_at = excluded.fetched_at,
			title = excluded.title,
			meta_description = excluded.meta_description,
			canonical_url = excluded.canonical_url,
			heading_text = excluded.heading_text,
			word_count = excluded.word_count,
			detected_language = excluded.detected_language,
			outlink_count = excluded.outlink_count,
			failed = excluded.failed,
			fetch_error = excluded.fetch_error
	`, d.sessionID, record.URL, record.Depth, record.Referer, record.StatusCode, record.ContentType,
		record.Latency.Milliseconds(), record.FetchedAt, record.Title, record.MetaDescription,
		record.CanonicalURL, record.HeadingText, record.WordCount, record.DetectedLanguage,
		record.OutlinkCount, record.ImportanceScore, record.Failed, record.FetchError)

	return err
}

// GetPages retrieves all pages for a session in insertion order.
func (d *Database) GetPages(sessionID string) ([]*PageRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, url, depth, referer, status_code, content_type, latency_ms,
			fetched_at, title, meta_description, canonical_url, heading_text, word_count,
			detected_language, outlink_count, importance_score, failed, fetch_error
		FROM pages
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPages(rows)
}

// TopPages retrieves the highest-importance pages for a session.
func (d *Database) TopPages(sessionID string, limit int) ([]*PageRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, url, depth, referer, status_code, content_type, latency_ms,
			fetched_at, title, meta_description, canonical_url, heading_text, word_count,
			detected_language, outlink_count, importance_score, failed, fetch_error
		FROM pages
		WHERE session_id = ? AND failed = 0
		ORDER BY importance_score DESC, id ASC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPages(rows)
}

func scanPages(rows *sql.Rows) ([]*PageRow, error) {
	var pages []*PageRow
	for rows.Next() {
		var page PageRow
		var latencyMs int64
		if err := rows.Scan(
			&page.ID, &page.SessionID, &page.URL, &page.Depth, &page.Referer,
			&page.StatusCode, &page.ContentType, &latencyMs, &page.FetchedAt,
			&page.Title, &page.MetaDescription, &page.CanonicalURL, &page.HeadingText,
			&page.WordCount, &page.DetectedLanguage, &page.OutlinkCount,
			&page.ImportanceScore, &page.Failed, &page.FetchError,
		); err != nil {
			return nil, err
		}
		page.Latency = time.Duration(latencyMs) * time.Millisecond
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

// --- Edge Operations ---

// SaveEdges inserts the edges discovered on one page in a batch.
func (d *Database) SaveEdges(edges []*session.LinkEdge) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessionID == "" {
		return fmt.Errorf("no active session")
	}
	if len(edges) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO links (session_id, source, target, anchor_text, is_nofollow, is_disallowed, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, edge := range edges {
		_, err := stmt.Exec(d.sessionID, edge.Source, edge.Target, edge.AnchorText,
			edge.NoFollow, edge.Disallowed, edge.Priority)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetEdges retrieves all edges for a session.
func (d *Database) GetEdges(sessionID string) ([]*EdgeRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, source, target, anchor_text, is_nofollow, is_disallowed, priority
		FROM links
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*EdgeRow
	for rows.Next() {
		var edge EdgeRow
		if err := rows.Scan(&edge.ID, &edge.SessionID, &edge.Source, &edge.Target,
			&edge.AnchorText, &edge.NoFollow, &edge.Disallowed, &edge.Priority); err != nil {
			return nil, err
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

// --- Robots Policy Operations ---

// SavePolicy inserts or refreshes the cached policy for a host.
func (d *Database) SavePolicy(policy *robots.Policy) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rules := struct {
		Allow    []string `json:"allow"`
		Disallow []string `json:"disallow"`
	}{policy.Allow, policy.Disallow}
	rulesJSON, _ := json.Marshal(rules)
	sitemapsJSON, _ := json.Marshal(policy.Sitemaps)

	_, err := d.db.Exec(`
		INSERT INTO robots_policies (host, agent, fetched_ok, fetch_status, crawl_delay_ms, rules_json, sitemaps_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			agent = excluded.agent,
			fetched_ok = excluded.fetched_ok,
			fetch_status = excluded.fetch_status,
			crawl_delay_ms = excluded.crawl_delay_ms,
			rules_json = excluded.rules_json,
			sitemaps_json = excluded.sitemaps_json,
			fetched_at = CURRENT_TIMESTAMP
	`, policy.Host, policy.Agent, policy.FetchedOK, policy.FetchStatus,
		policy.CrawlDelay.Milliseconds(), string(rulesJSON), string(sitemapsJSON))

	return err
}

// GetPolicy retrieves the cached policy for a host.
func (d *Database) GetPolicy(host string) (*PolicyRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var row PolicyRow
	var crawlDelayMs int64
	err := d.db.QueryRow(`
		SELECT id, host, agent, fetched_ok, fetch_status, crawl_delay_ms, rules_json, sitemaps_json, fetched_at
		FROM robots_policies WHERE host = ?
	`, host).Scan(
		&row.ID, &row.Host, &row.Agent, &row.FetchedOK, &row.FetchStatus,
		&crawlDelayMs, &row.RulesJSON, &row.SitemapsJSON, &row.FetchedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.CrawlDelay = time.Duration(crawlDelayMs) * time.Millisecond
	return &row, nil
}

// --- Statistics ---

// Stats holds database statistics for one session.
type Stats struct {
	TotalPages      int
	FailedPages     int
	TotalEdges      int
	NoFollowEdges   int
	DisallowedEdges int
	AvgLatencyMs    float64
	StatusCodes     map[int]int
}

// GetStats retrieves statistics for a session.
func (d *Database) GetStats(sessionID string) (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &Stats{
		StatusCodes: make(map[int]int),
	}

	// Page counts
	d.db.QueryRow(`SELECT COUNT(*) FROM pages WHERE session_id = ?`, sessionID).Scan(&stats.TotalPages)
	d.db.QueryRow(`SELECT COUNT(*) FROM pages WHERE session_id = ? AND failed = 1`, sessionID).Scan(&stats.FailedPages)
	d.db.QueryRow(`SELECT COALESCE(AVG(latency_ms), 0) FROM pages WHERE session_id = ? AND failed = 0`, sessionID).Scan(&stats.AvgLatencyMs)

	// Edge counts
	d.db.QueryRow(`SELECT COUNT(*) FROM links WHERE session_id = ?`, sessionID).Scan(&stats.TotalEdges)
	d.db.QueryRow(`SELECT COUNT(*) FROM links WHERE session_id = ? AND is_nofollow = 1`, sessionID).Scan(&stats.NoFollowEdges)
	d.db.QueryRow(`SELECT COUNT(*) FROM links WHERE session_id = ? AND is_disallowed = 1`, sessionID).Scan(&stats.DisallowedEdges)

	// Status codes
	rows, err := d.db.Query(`SELECT status_code, COUNT(*) FROM pages WHERE session_id = ? GROUP BY status_code`, sessionID)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var code, count int
			rows.Scan(&code, &count)
			stats.StatusCodes[code] = count
		}
	}

	return stats, nil
}
