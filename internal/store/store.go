package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteDriverNameConstant  = "sqlite3"
	openErrorTemplateConstant = "opening store at %s: %w"
	initErrorTemplateConstant = "initializing store schema: %w"
)

const schemaStatement = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	organization_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_repositories (
	project_id TEXT NOT NULL,
	name TEXT NOT NULL,
	remote_url TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS audits (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	level TEXT NOT NULL,
	status TEXT NOT NULL,
	base_audit_id TEXT NOT NULL DEFAULT '',
	commit_pins TEXT NOT NULL DEFAULT '{}',
	file_count INTEGER NOT NULL DEFAULT 0,
	token_count INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	actual_cost REAL NOT NULL DEFAULT 0,
	max_severity TEXT NOT NULL DEFAULT '',
	executive_summary TEXT NOT NULL DEFAULT '',
	is_public INTEGER NOT NULL DEFAULT 0,
	owner_notified INTEGER NOT NULL DEFAULT 0,
	owner_notified_at TEXT,
	publishable_after TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS findings (
	id TEXT PRIMARY KEY,
	audit_id TEXT NOT NULL,
	repository TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL,
	line_start INTEGER NOT NULL DEFAULT 0,
	line_end INTEGER NOT NULL DEFAULT 0,
	severity TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	exploitation TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	code_snippet TEXT NOT NULL DEFAULT '',
	cwe_id TEXT NOT NULL DEFAULT '',
	cvss_score REAL NOT NULL DEFAULT 0,
	component TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	resolved_in_audit_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS findings_audit_fingerprint
	ON findings (audit_id, fingerprint);

CREATE TABLE IF NOT EXISTS plan_entries (
	audit_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	repository TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	tokens INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (audit_id, position)
);

CREATE TABLE IF NOT EXISTS project_classifications (
	project_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	threat_model TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ownership_cache (
	viewer_id TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	is_owner INTEGER NOT NULL,
	expires_at TEXT NOT NULL,
	PRIMARY KEY (viewer_id, organization_id)
);
`

// Store wraps the SQLite connection shared by the pipeline and the API surface.
type Store struct {
	database *sql.DB
}

// Open connects to the SQLite database at databasePath and bootstraps the schema.
func Open(databasePath string) (*Store, error) {
	database, openError := sql.Open(sqliteDriverNameConstant, databasePath)
	if openError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, databasePath, openError)
	}
	if pingError := database.Ping(); pingError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, databasePath, pingError)
	}
	if _, schemaError := database.Exec(schemaStatement); schemaError != nil {
		return nil, fmt.Errorf(initErrorTemplateConstant, schemaError)
	}
	return &Store{database: database}, nil
}

// Close releases the underlying connection.
func (persistentStore *Store) Close() error {
	return persistentStore.database.Close()
}

func encodeTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func encodeOptionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return encodeTime(*value)
}

func decodeTime(value string) time.Time {
	parsed, parseError := time.Parse(time.RFC3339Nano, value)
	if parseError != nil {
		return time.Time{}
	}
	return parsed
}

func decodeOptionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed := decodeTime(value.String)
	return &parsed
}

func encodeBool(value bool) int {
	if value {
		return 1
	}
	return 0
}
