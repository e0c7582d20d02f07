package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// DefaultRoot is where migrations live relative to the repository root.
const DefaultRoot = "db/migrations"

type Runner struct {
	FS   fs.FS
	Root string
}

func NewRunner(files fs.FS) *Runner {
	return &Runner{FS: files, Root: DefaultRoot}
}

// WithRoot points the runner at a different migrations directory inside FS.
func (r *Runner) WithRoot(root string) *Runner {
	r.Root = strings.Trim(root, "/")
	return r
}

// Files lists the migration files for dialect in apply order.
func (r *Runner) Files(dialect string) ([]string, error) {
	if dialect == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	root := r.Root
	if root == "" {
		root = DefaultRoot
	}
	base := path.Join(root, dialect)
	entries, err := fs.ReadDir(r.FS, base)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, path.Join(base, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (r *Runner) Apply(ctx context.Context, db *sql.DB, dialect string) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	files, err := r.Files(dialect)
	if err != nil {
		return err
	}
	for _, file := range files {
		sqlBytes, err := fs.ReadFile(r.FS, file)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply %s: %w", file, err)
		}
	}
	return nil
}
