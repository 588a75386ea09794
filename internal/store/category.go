// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxonomy/internal/models"
)

// CategoryStore manages categories and their closure index in the database.
type CategoryStore struct {
	db              *sql.DB
	caseInsensitive bool
}

// NewCategoryStore returns a new CategoryStore. When caseInsensitive is set,
// title lookups ignore letter case.
func NewCategoryStore(db *sql.DB, caseInsensitive bool) *CategoryStore {
	return &CategoryStore{db: db, caseInsensitive: caseInsensitive}
}

const categoryColumns = `c.id, c.title, c.created_at, c.parent_id`

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }, extra ...any) (*models.Category, error) {
	var c models.Category
	dest := append([]any{&c.ID, &c.Title, &c.CreatedAt, &c.ParentID}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanCategories drains rows whose trailing column is a depth.
func scanCategories(rows *sql.Rows) ([]*models.Category, error) {
	defer rows.Close()

	var items []*models.Category
	for rows.Next() {
		var depth int
		c, err := scanCategory(rows, &depth)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Depth = depth
		items = append(items, c)
	}
	return items, rows.Err()
}

// FindByID retrieves a category by ID with its depth. Returns nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+categoryColumns+`,
		       (SELECT COUNT(*) - 1 FROM category_closure cl WHERE cl.descendant_id = c.id)
		FROM categories c
		WHERE c.id = $1`, id)

	var depth int
	c, err := scanCategory(row, &depth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	c.Depth = max(depth, 0)
	return c, nil
}

// FindByTitle retrieves the category holding title. Returns nil if not found.
func (s *CategoryStore) FindByTitle(ctx context.Context, title string) (*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories c WHERE c.title = $1`
	if s.caseInsensitive {
		query = `SELECT ` + categoryColumns + ` FROM categories c WHERE LOWER(c.title) = LOWER($1)
			ORDER BY c.id LIMIT 1`
	}

	c, err := scanCategory(s.conn(ctx).QueryRowContext(ctx, query, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by title: %w", err)
	}
	return c, nil
}

// Create inserts a new category row and returns it. The caller is
// responsible for indexing it with InsertLeaf in the same transaction.
func (s *CategoryStore) Create(ctx context.Context, title string, parentID *int64) (*models.Category, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO categories AS c (title, parent_id)
		VALUES ($1, $2)
		RETURNING `+categoryColumns,
		title, parentID,
	)
	c, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", mapWriteError(err))
	}
	return c, nil
}

// Update writes the title and parent of an existing category and returns the
// stored row. The closure index is not touched; see RebuildFor.
func (s *CategoryStore) Update(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		UPDATE categories AS c SET title = $1, parent_id = $2
		WHERE c.id = $3
		RETURNING `+categoryColumns,
		c.Title, c.ParentID, c.ID,
	)
	updated, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update category: %w", mapWriteError(err))
	}
	return updated, nil
}

// Delete removes a category by ID. Descendants and every closure row that
// references them go with it (ON DELETE CASCADE). Returns the number of
// directly deleted rows.
func (s *CategoryStore) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete category rows affected: %w", err)
	}
	return n, nil
}

// Forest returns every category whose depth is at most maxDepth, each with
// its absolute depth, ordered by depth then id so parents precede children.
func (s *CategoryStore) Forest(ctx context.Context, maxDepth int) ([]*models.Category, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+categoryColumns+`, cl.depth
		FROM categories c
		JOIN category_closure cl ON cl.descendant_id = c.id
		JOIN categories r ON r.id = cl.ancestor_id AND r.parent_id IS NULL
		WHERE cl.depth <= $1
		ORDER BY cl.depth, c.id
	`, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("list category forest: %w", err)
	}
	return scanCategories(rows)
}

// Count returns the number of live categories.
func (s *CategoryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}
