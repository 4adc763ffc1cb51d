// Package migrate brings the workspace database up to the current schema.
// Migration files under sql/ are named NNNN_description.sql and applied in
// filename order inside one transaction; the highest applied number is kept
// in schema_version, so reruns are no-ops.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

func Migrate(db *sql.DB) error {
	names, err := fs.Glob(schemaFS, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}
	current := 0
	err = tx.QueryRow(`SELECT version FROM schema_version`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}

	for _, name := range names {
		v, err := fileVersion(name)
		if err != nil {
			return err
		}
		if v <= current {
			continue
		}
		stmts, err := schemaFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(stmts)); err != nil {
			return fmt.Errorf("apply %s: %w", path.Base(name), err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, v); err != nil {
			return fmt.Errorf("schema_version: %w", err)
		}
		current = v
	}
	return tx.Commit()
}

func fileVersion(name string) (int, error) {
	base := path.Base(name)
	cut := strings.IndexByte(base, '_')
	if cut <= 0 {
		return 0, fmt.Errorf("migration %s: want NNNN_description.sql", base)
	}
	v, err := strconv.Atoi(base[:cut])
	if err != nil {
		return 0, fmt.Errorf("migration %s: want NNNN_description.sql", base)
	}
	return v, nil
}
