// Package state persists per-project export progress between runs, so
// incremental fetches only ask Redmine for what changed since the last run.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ProjectState records how far an export got for one project.
type ProjectState struct {
	Project            string
	LastIssueUpdated   time.Time
	LastWikiUpdated    time.Time
	IssuesProcessed    int
	WikiPagesProcessed int
	LastRun            time.Time
}

// Store is a SQLite-backed state store. It is safe for use from a single
// process; the underlying database file is locked by the driver.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS project_state (
	project              TEXT PRIMARY KEY,
	last_issue_updated   TEXT NOT NULL DEFAULT '',
	last_wiki_updated    TEXT NOT NULL DEFAULT '',
	issues_processed     INTEGER NOT NULL DEFAULT 0,
	wiki_pages_processed INTEGER NOT NULL DEFAULT 0,
	last_run             TEXT NOT NULL DEFAULT ''
);`

// Open opens (creating if needed) the state database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the recorded state for a project. The second return value is
// false when the project has never been exported.
func (s *Store) Get(project string) (ProjectState, bool, error) {
	row := s.db.QueryRow(`
		SELECT last_issue_updated, last_wiki_updated,
		       issues_processed, wiki_pages_processed, last_run
		FROM project_state WHERE project = ?`, project)

	var issueUpd, wikiUpd, lastRun string
	ps := ProjectState{Project: project}
	err := row.Scan(&issueUpd, &wikiUpd, &ps.IssuesProcessed, &ps.WikiPagesProcessed, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectState{Project: project}, false, nil
	}
	if err != nil {
		return ProjectState{}, false, fmt.Errorf("state: read %q: %w", project, err)
	}

	if ps.LastIssueUpdated, err = parseTime(issueUpd); err != nil {
		return ProjectState{}, false, fmt.Errorf("state: read %q: %w", project, err)
	}
	if ps.LastWikiUpdated, err = parseTime(wikiUpd); err != nil {
		return ProjectState{}, false, fmt.Errorf("state: read %q: %w", project, err)
	}
	if ps.LastRun, err = parseTime(lastRun); err != nil {
		return ProjectState{}, false, fmt.Errorf("state: read %q: %w", project, err)
	}
	return ps, true, nil
}

// Put writes the state for a project, replacing any existing row.
func (s *Store) Put(ps ProjectState) error {
	_, err := s.db.Exec(`
		INSERT INTO project_state
			(project, last_issue_updated, last_wiki_updated,
			 issues_processed, wiki_pages_processed, last_run)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			last_issue_updated   = excluded.last_issue_updated,
			last_wiki_updated    = excluded.last_wiki_updated,
			issues_processed     = excluded.issues_processed,
			wiki_pages_processed = excluded.wiki_pages_processed,
			last_run             = excluded.last_run`,
		ps.Project, formatTime(ps.LastIssueUpdated), formatTime(ps.LastWikiUpdated),
		ps.IssuesProcessed, ps.WikiPagesProcessed, formatTime(ps.LastRun))
	if err != nil {
		return fmt.Errorf("state: write %q: %w", ps.Project, err)
	}
	return nil
}

// Projects lists every project with recorded state.
func (s *Store) Projects() ([]string, error) {
	rows, err := s.db.Query(`SELECT project FROM project_state ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("state: list projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("state: list projects: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Times are stored as RFC 3339 text; the zero time is stored as the empty
// string so fresh rows read back as zero values.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
