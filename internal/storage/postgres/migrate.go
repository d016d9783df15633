package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every up migration in file-name order. Migrations are
// written to be idempotent, so running it twice is harmless.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	return run(ctx, db, logger, "up")
}

// Rollback applies every down migration in reverse file-name order.
func Rollback(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	return run(ctx, db, logger, "down")
}

func run(ctx context.Context, db *sql.DB, logger *slog.Logger, direction string) (int, error) {
	files, err := migrationFiles(direction)
	if err != nil {
		return 0, err
	}

	for _, name := range files {
		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return 0, fmt.Errorf("read migration file %s: %w", name, err)
		}

		if logger != nil {
			logger.Info("running migration", "file", name)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return 0, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return len(files), nil
}

func migrationFiles(direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be 'up' or 'down', got %q", direction)
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fmt.Sprintf(".%s.sql", direction)) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	return files, nil
}
