package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"loginway/internal/platform/database"
)

func TestApplyCreatesSchemaOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	if err := Apply(ctx, db, nil); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	// Re-applying is a no-op.
	if err := Apply(ctx, db, nil); err != nil {
		t.Fatalf("second Apply returned error: %v", err)
	}

	var tables []string
	if err := db.SelectContext(ctx, &tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'sessions') ORDER BY name`); err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 2 || tables[0] != "sessions" || tables[1] != "users" {
		t.Fatalf("unexpected tables: %v", tables)
	}
}

func TestDialectFor(t *testing.T) {
	cases := []struct {
		driver, dialect, dir string
		wantErr              bool
	}{
		{"postgres", "postgres", "postgres", false},
		{"sqlite", "sqlite3", "sqlite", false},
		{"sqlite3", "sqlite3", "sqlite", false},
		{"mysql", "", "", true},
	}
	for _, tc := range cases {
		dialect, dir, err := dialectFor(tc.driver)
		if (err != nil) != tc.wantErr {
			t.Fatalf("dialectFor(%q) error = %v, wantErr %v", tc.driver, err, tc.wantErr)
		}
		if dialect != tc.dialect || dir != tc.dir {
			t.Fatalf("dialectFor(%q) = %q, %q", tc.driver, dialect, dir)
		}
	}
}
