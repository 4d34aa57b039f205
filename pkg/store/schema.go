package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// CreateSchema creates the database schema if it doesn't exist.
func CreateSchema(db *sql.DB) error {
	if err := createSchemaVersionTable(db); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	if err := createScansTable(db); err != nil {
		return fmt.Errorf("creating scans table: %w", err)
	}

	if err := createRuleResultsTable(db); err != nil {
		return fmt.Errorf("creating rule_results table: %w", err)
	}

	if err := createMatchesTable(db); err != nil {
		return fmt.Errorf("creating matches table: %w", err)
	}

	return nil
}

func createSchemaVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Insert version if table is empty
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	}

	return nil
}

func createScansTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY NOT NULL,
			root TEXT NOT NULL,
			report_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)
	`)
	return err
}

func createRuleResultsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rule_results (
			scan_id TEXT NOT NULL REFERENCES scans(id),
			rule_name TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			files_read INTEGER NOT NULL,
			files_failed INTEGER NOT NULL,
			PRIMARY KEY (scan_id, rule_name)
		)
	`)
	return err
}

func createMatchesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id),
			rule_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			rel_path TEXT NOT NULL,
			abs_path TEXT NOT NULL,
			secret TEXT NOT NULL,
			snippet TEXT NOT NULL,
			offset_start INTEGER NOT NULL,
			offset_end INTEGER NOT NULL,
			snippet_start INTEGER NOT NULL,
			snippet_end INTEGER NOT NULL,
			UNIQUE(scan_id, rule_name, fingerprint)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_matches_scan_id ON matches(scan_id)
	`)
	return err
}
