// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// closure.go maintains and queries the category_closure table: one row per
// ancestor/descendant pair, self pairs included, so ancestor, descendant and
// depth lookups never walk parent links recursively.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxonomy/internal/models"
)

// rebuildDepthGuard bounds the recursive CTEs below so a corrupted parent
// graph cannot loop forever.
const rebuildDepthGuard = 10_000

// derivedClosureCTE derives the closure relation from parent links.
const derivedClosureCTE = `
	WITH RECURSIVE derived (ancestor_id, descendant_id, depth) AS (
		SELECT id, id, 0 FROM categories
		UNION ALL
		SELECT d.ancestor_id, c.id, d.depth + 1
		FROM derived d
		JOIN categories c ON c.parent_id = d.descendant_id
		WHERE d.depth < $1
	)`

// InsertLeaf indexes a freshly inserted category: its self pair plus one row
// for every ancestor-or-self of parentID.
func (s *CategoryStore) InsertLeaf(ctx context.Context, id int64, parentID *int64) error {
	db := s.conn(ctx)

	if _, err := db.ExecContext(ctx, `
		INSERT INTO category_closure (ancestor_id, descendant_id, depth)
		VALUES ($1, $1, 0)`, id); err != nil {
		return fmt.Errorf("insert closure self row: %w", err)
	}

	if parentID == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO category_closure (ancestor_id, descendant_id, depth)
		SELECT p.ancestor_id, $1::bigint, p.depth + 1
		FROM category_closure p
		WHERE p.descendant_id = $2`, id, *parentID); err != nil {
		return fmt.Errorf("insert closure ancestor rows: %w", mapWriteError(err))
	}
	return nil
}

// RebuildFor regenerates the closure rows of id's subtree after its parent
// link changed. Rows tying a subtree member to a node outside the subtree
// are dropped, then re-derived from the current parent of id: one row per
// (ancestor-or-self of the parent) x (member of the subtree). Rows inside
// the subtree do not depend on its position and are kept.
func (s *CategoryStore) RebuildFor(ctx context.Context, id int64) (removed, added int64, err error) {
	db := s.conn(ctx)

	res, err := db.ExecContext(ctx, `
		DELETE FROM category_closure
		WHERE descendant_id IN (SELECT descendant_id FROM category_closure WHERE ancestor_id = $1)
		  AND ancestor_id NOT IN (SELECT descendant_id FROM category_closure WHERE ancestor_id = $1)`, id)
	if err != nil {
		return 0, 0, fmt.Errorf("detach subtree closure: %w", err)
	}
	removed, _ = res.RowsAffected()

	res, err = db.ExecContext(ctx, `
		INSERT INTO category_closure (ancestor_id, descendant_id, depth)
		SELECT p.ancestor_id, sub.descendant_id, p.depth + sub.depth + 1
		FROM category_closure p
		CROSS JOIN category_closure sub
		WHERE p.descendant_id = (SELECT parent_id FROM categories WHERE id = $1)
		  AND sub.ancestor_id = $1`, id)
	if err != nil {
		return removed, 0, fmt.Errorf("attach subtree closure: %w", err)
	}
	added, _ = res.RowsAffected()

	return removed, added, nil
}

// Ancestors returns the proper ancestors of id ordered root first. Depth on
// each returned category is its absolute depth.
func (s *CategoryStore) Ancestors(ctx context.Context, id int64) ([]*models.Category, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+categoryColumns+`, cl.depth
		FROM category_closure cl
		JOIN categories c ON c.id = cl.ancestor_id
		WHERE cl.descendant_id = $1 AND cl.depth > 0
		ORDER BY cl.depth DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list category ancestors: %w", err)
	}

	items, err := scanCategories(rows)
	if err != nil {
		return nil, err
	}
	// The farthest ancestor is the root; rewrite distances as depths.
	for i, c := range items {
		c.Depth = i
	}
	return items, nil
}

// CountAncestors returns the number of proper ancestors of id. A missing id
// has none.
func (s *CategoryStore) CountAncestors(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM category_closure
		WHERE descendant_id = $1 AND ancestor_id <> $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count category ancestors: %w", err)
	}
	return n, nil
}

// Descendants returns id and every category below it. Depth on each returned
// category is its distance from id.
func (s *CategoryStore) Descendants(ctx context.Context, id int64) ([]*models.Category, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+categoryColumns+`, cl.depth
		FROM category_closure cl
		JOIN categories c ON c.id = cl.descendant_id
		WHERE cl.ancestor_id = $1
		ORDER BY cl.depth, c.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list category descendants: %w", err)
	}
	return scanCategories(rows)
}

// DeepestDescendant returns the member of id's subtree (id included) with
// the most ancestors, and that member's ancestor count. Ties go to the
// highest parent id, then the highest id. A missing id yields (0, 0).
func (s *CategoryStore) DeepestDescendant(ctx context.Context, id int64) (int64, int, error) {
	var leafID int64
	var depth int
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT sub.descendant_id, COUNT(a.ancestor_id) - 1 AS leaf_depth
		FROM category_closure sub
		JOIN category_closure a ON a.descendant_id = sub.descendant_id
		JOIN categories c ON c.id = sub.descendant_id
		WHERE sub.ancestor_id = $1
		GROUP BY sub.descendant_id, c.parent_id
		ORDER BY leaf_depth DESC, c.parent_id DESC NULLS LAST, sub.descendant_id DESC
		LIMIT 1`, id).Scan(&leafID, &depth)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("find deepest descendant: %w", err)
	}
	return leafID, depth, nil
}

// IsDescendant reports whether id lies in the subtree rooted at ancestorID.
// A node is its own descendant.
func (s *CategoryStore) IsDescendant(ctx context.Context, ancestorID, id int64) (bool, error) {
	var ok bool
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM category_closure WHERE ancestor_id = $1 AND descendant_id = $2
		)`, ancestorID, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check descendant: %w", err)
	}
	return ok, nil
}

// Closure returns every closure row whose descendant is id, nearest first.
func (s *CategoryStore) Closure(ctx context.Context, id int64) ([]models.ClosureRow, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT ancestor_id, descendant_id, depth
		FROM category_closure
		WHERE descendant_id = $1
		ORDER BY depth`, id)
	if err != nil {
		return nil, fmt.Errorf("list closure rows: %w", err)
	}
	defer rows.Close()

	var items []models.ClosureRow
	for rows.Next() {
		var r models.ClosureRow
		if err := rows.Scan(&r.AncestorID, &r.DescendantID, &r.Depth); err != nil {
			return nil, fmt.Errorf("scan closure row: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// Rebuild discards the whole closure index and regenerates it from parent
// links. Returns the number of rows written.
func (s *CategoryStore) Rebuild(ctx context.Context) (int64, error) {
	var written int64
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.LockTree(ctx); err != nil {
			return err
		}

		db := s.conn(ctx)
		if _, err := db.ExecContext(ctx, `DELETE FROM category_closure`); err != nil {
			return fmt.Errorf("clear closure: %w", err)
		}

		res, err := db.ExecContext(ctx, derivedClosureCTE+`
			INSERT INTO category_closure (ancestor_id, descendant_id, depth)
			SELECT ancestor_id, descendant_id, depth FROM derived`, rebuildDepthGuard)
		if err != nil {
			return fmt.Errorf("derive closure: %w", err)
		}
		written, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// VerifyReport compares the stored closure index against one derived from
// parent links.
type VerifyReport struct {
	Missing int64 `json:"missing"` // derived rows absent from the index
	Extra   int64 `json:"extra"`   // indexed rows the parent links do not imply
}

// Consistent reports whether the index matches the parent links exactly.
func (r VerifyReport) Consistent() bool {
	return r.Missing == 0 && r.Extra == 0
}

// Verify checks the closure index against the parent links without
// modifying anything.
func (s *CategoryStore) Verify(ctx context.Context) (VerifyReport, error) {
	var r VerifyReport
	err := s.conn(ctx).QueryRowContext(ctx, derivedClosureCTE+`
		SELECT
			(SELECT COUNT(*) FROM derived d WHERE NOT EXISTS (
				SELECT 1 FROM category_closure cl
				WHERE cl.ancestor_id = d.ancestor_id
				  AND cl.descendant_id = d.descendant_id
				  AND cl.depth = d.depth)),
			(SELECT COUNT(*) FROM category_closure cl WHERE NOT EXISTS (
				SELECT 1 FROM derived d
				WHERE cl.ancestor_id = d.ancestor_id
				  AND cl.descendant_id = d.descendant_id
				  AND cl.depth = d.depth))`, rebuildDepthGuard).Scan(&r.Missing, &r.Extra)
	if err != nil {
		return r, fmt.Errorf("verify closure: %w", err)
	}
	return r, nil
}
