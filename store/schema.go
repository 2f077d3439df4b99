package store

const schema = `
CREATE TABLE IF NOT EXISTS brokers (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	username        TEXT NOT NULL,
	password        TEXT NOT NULL,
	company         TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	auth_required   INTEGER NOT NULL DEFAULT 0,
	otp_uri         TEXT NOT NULL DEFAULT '',
	entries_format  TEXT NOT NULL DEFAULT 'allied',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS formats (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	template_identifier TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	template_payload    TEXT NOT NULL DEFAULT '{}',
	is_active           INTEGER NOT NULL DEFAULT 1,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	sections_json   TEXT NOT NULL DEFAULT '{}',
	status          TEXT NOT NULL DEFAULT 'pending',
	initiated_by    TEXT NOT NULL DEFAULT '',
	started_at      INTEGER,
	completed_at    INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_items (
	id                  TEXT PRIMARY KEY,
	batch_id            TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	mawb                TEXT NOT NULL,
	airport_code        TEXT NOT NULL DEFAULT '',
	customer            TEXT NOT NULL DEFAULT '',
	checkbook_hawbs     TEXT NOT NULL DEFAULT '',
	broker_id           TEXT NOT NULL,
	format_id           TEXT NOT NULL,
	result_id           TEXT,
	status              TEXT NOT NULL DEFAULT 'pending',
	position            INTEGER NOT NULL DEFAULT 0,
	logs_json           TEXT NOT NULL DEFAULT '[]',
	processing_seconds  INTEGER,
	started_at          INTEGER,
	completed_at        INTEGER,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_items_batch ON batch_items(batch_id, position);

CREATE TABLE IF NOT EXISTS results (
	id              TEXT PRIMARY KEY,
	mawb            TEXT NOT NULL,
	broker_id       TEXT NOT NULL,
	format_id       TEXT NOT NULL,
	batch_id        TEXT,
	status          TEXT NOT NULL,
	broker_name     TEXT NOT NULL DEFAULT '',
	template_name   TEXT NOT NULL DEFAULT '',
	airport_code    TEXT NOT NULL DEFAULT '',
	customer        TEXT NOT NULL DEFAULT '',
	sections_json   TEXT NOT NULL DEFAULT '{}',
	summary_json    TEXT NOT NULL DEFAULT '{}',
	artifact_path   TEXT NOT NULL DEFAULT '',
	artifact_url    TEXT NOT NULL DEFAULT '',
	pdf_path        TEXT NOT NULL DEFAULT '',
	pdf_url         TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	completed_at    INTEGER,
	updated_at      INTEGER NOT NULL,
	UNIQUE (mawb, broker_id, format_id)
);
CREATE INDEX IF NOT EXISTS idx_results_batch ON results(batch_id);
CREATE INDEX IF NOT EXISTS idx_results_mawb ON results(mawb);
`
