package journal

// Schema is the base sqlite schema, applied idempotently on open.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE NOT NULL,
	event_type TEXT NOT NULL,
	request_id TEXT DEFAULT '',
	market_id TEXT DEFAULT '',
	amount TEXT DEFAULT '',
	reason TEXT DEFAULT '',
	detail TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id);
CREATE INDEX IF NOT EXISTS idx_events_market ON events(market_id);

CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT UNIQUE NOT NULL,
	market_id TEXT NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	resolved_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_requests_resolved ON requests(resolved);

CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	market_id TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	side TEXT NOT NULL,
	amount TEXT NOT NULL,
	confidence INTEGER NOT NULL DEFAULT 0,
	rationale TEXT DEFAULT '',
	entered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	closed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_positions_active ON positions(active);

CREATE TABLE IF NOT EXISTS schedule_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	handle TEXT UNIQUE NOT NULL,
	last_status TEXT DEFAULT '',
	last_run_at DATETIME,
	run_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
