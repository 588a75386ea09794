package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// seedNode is one category of the development sample tree.
type seedNode struct {
	title    string
	children []seedNode
}

// sampleTree is inserted by Seed into an empty database.
var sampleTree = []seedNode{
	{title: "Books", children: []seedNode{
		{title: "Fiction", children: []seedNode{
			{title: "Science Fiction"},
			{title: "Fantasy"},
		}},
		{title: "Non-Fiction", children: []seedNode{
			{title: "History"},
		}},
	}},
	{title: "Music", children: []seedNode{
		{title: "Jazz"},
		{title: "Classical"},
	}},
}

// Seed populates the database with a small sample category tree for
// development. It does nothing if any category exists already.
func Seed(db *sql.DB) error {
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	// Check if any categories exist already.
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	var inserted int
	for _, n := range sampleTree {
		c, err := seedInsert(ctx, tx, n, nil)
		if err != nil {
			return err
		}
		inserted += c
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with sample categories", "count", inserted)
	return nil
}

// seedInsert writes n and its children together with their closure rows.
// Returns the number of categories inserted.
func seedInsert(ctx context.Context, tx *sql.Tx, n seedNode, parentID *int64) (int, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO categories (title, parent_id) VALUES ($1, $2) RETURNING id`,
		n.title, parentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed insert %q: %w", n.title, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO category_closure (ancestor_id, descendant_id, depth)
		SELECT $1::bigint, $1::bigint, 0
		UNION ALL
		SELECT p.ancestor_id, $1::bigint, p.depth + 1
		FROM category_closure p
		WHERE p.descendant_id = $2`, id, parentID); err != nil {
		return 0, fmt.Errorf("seed closure %q: %w", n.title, err)
	}

	inserted := 1
	for _, child := range n.children {
		c, err := seedInsert(ctx, tx, child, &id)
		if err != nil {
			return 0, err
		}
		inserted += c
	}
	return inserted, nil
}
