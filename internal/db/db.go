// Package db opens the reviewer's local workspace database. Everything
// reviewdesk persists for one reviewer (edit drafts, the action log) lives in
// a single SQLite file under .reviewdesk/ next to the config.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".reviewdesk"
	dbName       = "reviewdesk.db"
)

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, dbName)
}

// Open creates the workspace state directory if needed and opens the
// database with foreign keys enabled.
func Open(workspace string) (*sql.DB, error) {
	p := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("workspace %s: %w", workspace, err)
	}
	conn, err := sql.Open("sqlite", "file:"+p+"?cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return conn, nil
}
