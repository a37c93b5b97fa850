package ops

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
)

func stringPtr(s string) *string { return &s }
func intPtr(i int) *int          { return &i }

// newTestDB opens a fresh database in a temp dir.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// newTestConfig returns the default config with dir added to allowed_paths.
func newTestConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	if dir != "" {
		cfg.AllowedPaths = []string{dir}
	}
	return cfg
}

// recorded is the RecordOptions used by tests that persist runs.
func recorded(workspace string) RecordOptions {
	return RecordOptions{Record: true, Workspace: workspace}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}
