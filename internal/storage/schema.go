package storage

// Schema contains SQL statements to create database tables.
const Schema = `
-- Sessions table: one row per crawl run
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    seed_url TEXT NOT NULL,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    status TEXT DEFAULT 'running',
    pages_visited INTEGER DEFAULT 0,
    pages_failed INTEGER DEFAULT 0,
    edges INTEGER DEFAULT 0,
    config_json TEXT
);

-- Pages table: one row per visited URL per session
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    url TEXT NOT NULL,
    depth INTEGER DEFAULT 0,
    referer TEXT,
    status_code INTEGER,
    content_type TEXT,
    latency_ms INTEGER,
    fetched_at DATETIME,
    title TEXT,
    meta_description TEXT,
    canonical_url TEXT,
    heading_text TEXT,
    word_count INTEGER DEFAULT 0,
    detected_language TEXT,
    outlink_count INTEGER DEFAULT 0,
    importance_score REAL DEFAULT 0,
    failed BOOLEAN DEFAULT 0,
    fetch_error TEXT,
    UNIQUE(session_id, url)
);

CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
CREATE INDEX IF NOT EXISTS idx_pages_status_code ON pages(status_code);
CREATE INDEX IF NOT EXISTS idx_pages_score ON pages(importance_score);

-- Links table: discovered edges with the priority assigned at discovery
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    anchor_text TEXT,
    is_nofollow BOOLEAN DEFAULT 0,
    is_disallowed BOOLEAN DEFAULT 0,
    priority REAL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_links_session ON links(session_id);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

-- Robots policies table: one row per host, refreshed on conflict
CREATE TABLE IF NOT EXISTS robots_policies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL UNIQUE,
    agent TEXT,
    fetched_ok BOOLEAN DEFAULT 0,
    fetch_status INTEGER DEFAULT 0,
    crawl_delay_ms INTEGER DEFAULT 0,
    rules_json TEXT,
    sitemaps_json TEXT,
    fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_robots_host ON robots_policies(host);
`

// ViewsSchema contains SQL for useful views
const ViewsSchema = `
-- View: Pages ranked by importance
CREATE VIEW IF NOT EXISTS v_top_pages AS
SELECT
    p.session_id,
    p.url,
    p.depth,
    p.title,
    p.word_count,
    p.outlink_count,
    p.importance_score,
    (SELECT COUNT(*) FROM links l WHERE l.session_id = p.session_id AND l.target = p.url) as inlinks_count
FROM pages p
WHERE p.failed = 0
ORDER BY p.importance_score DESC;

-- View: Response codes summary
CREATE VIEW IF NOT EXISTS v_status_codes AS
SELECT
    session_id,
    status_code,
    COUNT(*) as count
FROM pages
GROUP BY session_id, status_code
ORDER BY status_code;

-- View: Failed fetches
CREATE VIEW IF NOT EXISTS v_failed_pages AS
SELECT
    session_id,
    url,
    depth,
    referer,
    fetch_error
FROM pages
WHERE failed = 1;

-- View: Links pointing at robots-excluded targets
CREATE VIEW IF NOT EXISTS v_blocked_targets AS
SELECT
    session_id,
    source,
    target,
    anchor_text,
    priority
FROM links
WHERE is_disallowed = 1;

-- View: Duplicate titles
CREATE VIEW IF NOT EXISTS v_duplicate_titles AS
SELECT
    p.session_id,
    p.title,
    COUNT(*) as count,
    GROUP_CONCAT(p.url, ' | ') as urls
FROM pages p
WHERE p.title IS NOT NULL AND p.title != ''
GROUP BY p.session_id, p.title
HAVING COUNT(*) > 1
ORDER BY count DESC;
`
