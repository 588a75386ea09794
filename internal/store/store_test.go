// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"taxonomy/internal/database"
	"taxonomy/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taxonomy")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "taxonomy")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testStore returns a store on the test database plus a title prefix unique
// to this test, so tests sharing the database never collide on titles.
func testStore(t *testing.T) (*CategoryStore, string) {
	t.Helper()
	return NewCategoryStore(testDB(t), false), uuid.NewString()[:8] + "-"
}

// mkCategory inserts a category with its closure rows, the way the tree
// manager does. Root categories are removed (with their subtrees) when the
// test finishes.
func mkCategory(t *testing.T, s *CategoryStore, title string, parent *models.Category) *models.Category {
	t.Helper()
	ctx := context.Background()

	var parentID *int64
	if parent != nil {
		parentID = &parent.ID
	}

	var c *models.Category
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.LockTree(ctx); err != nil {
			return err
		}
		var err error
		c, err = s.Create(ctx, title, parentID)
		if err != nil {
			return err
		}
		return s.InsertLeaf(ctx, c.ID, parentID)
	})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}

	if parent == nil {
		t.Cleanup(func() { s.db.Exec("DELETE FROM categories WHERE id = $1", c.ID) })
	}
	return c
}

// move re-parents c under parent (nil for root) and rebuilds its closure rows.
func move(t *testing.T, s *CategoryStore, c *models.Category, parent *models.Category) {
	t.Helper()
	ctx := context.Background()

	var parentID *int64
	if parent != nil {
		parentID = &parent.ID
	}

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.LockTree(ctx); err != nil {
			return err
		}
		if _, err := s.Update(ctx, &models.Category{ID: c.ID, Title: c.Title, ParentID: parentID}); err != nil {
			return err
		}
		_, _, err := s.RebuildFor(ctx, c.ID)
		return err
	})
	if err != nil {
		t.Fatalf("move %q: %v", c.Title, err)
	}
	if parent == nil {
		t.Cleanup(func() { s.db.Exec("DELETE FROM categories WHERE id = $1", c.ID) })
	}
}

func idsOf(cs []*models.Category) []int64 {
	out := make([]int64, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
