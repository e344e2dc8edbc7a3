// Package migrations applies the versioned SQL schema.
//
// Files are named {version}_{name}.{up|down}.sql, e.g.
// 000003_collaborations.up.sql, and are read from an fs.FS so the
// server binary can embed them.
package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migration represents a database migration file.
type Migration struct {
	Version   string
	Name      string
	Direction string // "up" or "down"
	Path      string
}

// String returns the migration identifier.
func (m Migration) String() string {
	return fmt.Sprintf("%s_%s.%s.sql", m.Version, m.Name, m.Direction)
}

// Load returns the migrations of one direction sorted by version.
// Files that do not follow the naming convention are skipped.
func Load(fsys fs.FS, direction string) ([]Migration, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("invalid migration direction: %s", direction)
	}
	suffix := fmt.Sprintf(".%s.sql", direction)

	var migrations []Migration
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}

		// 000001_catalog.up.sql -> version=000001, name=catalog
		baseName := strings.TrimSuffix(d.Name(), suffix)
		parts := strings.SplitN(baseName, "_", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil
		}

		if other, ok := seen[parts[0]]; ok {
			return fmt.Errorf("duplicate migration version %s: %s and %s", parts[0], other, path)
		}
		seen[parts[0]] = path

		migrations = append(migrations, Migration{
			Version:   parts[0],
			Name:      parts[1],
			Direction: direction,
			Path:      path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Versions returns the versions of a migration list.
func Versions(migrations []Migration) []string {
	versions := make([]string, len(migrations))
	for i, m := range migrations {
		versions[i] = m.Version
	}
	return versions
}
