package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/types"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer; also keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// BeginScan records a new scan.
func (s *SQLiteStore) BeginScan(scan *Scan) error {
	_, err := s.db.Exec(`
		INSERT INTO scans (id, root, report_path, started_at)
		VALUES (?, ?, ?, ?)
	`,
		scan.ID,
		scan.Root,
		scan.ReportPath,
		scan.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}
	return nil
}

// AddRuleResult stores a rule result and its matches in one transaction.
func (s *SQLiteStore) AddRuleResult(scanID string, result *types.RuleResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var errText *string
	if result.Err != nil {
		msg := result.Err.Error()
		errText = &msg
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO rule_results (scan_id, rule_name, status, error, duration_ms, files_read, files_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		scanID,
		result.RuleName,
		result.Status.String(),
		errText,
		result.Duration.Milliseconds(),
		result.FilesRead,
		result.FilesFailed,
	)
	if err != nil {
		return fmt.Errorf("inserting rule result: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO matches (scan_id, rule_name, fingerprint, rel_path, abs_path, secret, snippet, offset_start, offset_end, snippet_start, snippet_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range result.Matches {
		_, err := stmt.Exec(
			scanID,
			result.RuleName,
			m.Fingerprint,
			m.RelPath,
			m.AbsPath,
			m.Secret,
			m.Snippet,
			m.Span.Start,
			m.Span.End,
			m.SnippetSpan.Start,
			m.SnippetSpan.End,
		)
		if err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rule result: %w", err)
	}
	return nil
}

// FinishScan marks a scan as finished.
func (s *SQLiteStore) FinishScan(scanID string, finishedAt time.Time) error {
	res, err := s.db.Exec("UPDATE scans SET finished_at = ? WHERE id = ?", finishedAt.UTC().Format(timeLayout), scanID)
	if err != nil {
		return fmt.Errorf("updating scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating scan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scan %s not found", scanID)
	}
	return nil
}

// GetScans retrieves all scans, oldest first.
func (s *SQLiteStore) GetScans() ([]*Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, root, report_path, started_at, finished_at
		FROM scans
		ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		var scan Scan
		var started string
		var finished sql.NullString

		if err := rows.Scan(&scan.ID, &scan.Root, &scan.ReportPath, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning scan: %w", err)
		}

		scan.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finished.Valid {
			scan.FinishedAt, err = time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}

		scans = append(scans, &scan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scans: %w", err)
	}

	return scans, nil
}

// GetMatches retrieves the matches of a scan in insertion order.
func (s *SQLiteStore) GetMatches(scanID string) ([]*types.Match, error) {
	rows, err := s.db.Query(`
		SELECT rule_name, fingerprint, rel_path, abs_path, secret, snippet, offset_start, offset_end, snippet_start, snippet_end
		FROM matches
		WHERE scan_id = ?
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	matches := []*types.Match{}
	for rows.Next() {
		var m types.Match

		err := rows.Scan(
			&m.RuleName,
			&m.Fingerprint,
			&m.RelPath,
			&m.AbsPath,
			&m.Secret,
			&m.Snippet,
			&m.Span.Start,
			&m.Span.End,
			&m.SnippetSpan.Start,
			&m.SnippetSpan.End,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}

		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}

	return matches, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
