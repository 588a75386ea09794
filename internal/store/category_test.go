// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCategoryCreateAndFind(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()

	root := mkCategory(t, s, p+"root", nil)
	child := mkCategory(t, s, p+"child", root)

	if root.ID == 0 || child.ID == 0 {
		t.Fatal("expected ids to be assigned")
	}
	if time.Since(root.CreatedAt) > time.Minute {
		t.Errorf("created_at looks wrong: %v", root.CreatedAt)
	}

	got, err := s.FindByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected category")
	}
	if got.Title != p+"child" {
		t.Errorf("title: got %q", got.Title)
	}
	if got.ParentID == nil || *got.ParentID != root.ID {
		t.Errorf("parent: got %v, want %d", got.ParentID, root.ID)
	}
	if got.Depth != 1 {
		t.Errorf("depth: got %d, want 1", got.Depth)
	}

	got, err = s.FindByID(ctx, root.ID)
	if err != nil {
		t.Fatalf("FindByID root: %v", err)
	}
	if got.ParentID != nil || got.Depth != 0 {
		t.Errorf("root: got parent %v depth %d", got.ParentID, got.Depth)
	}
}

func TestCategoryFindByIDMissing(t *testing.T) {
	s, _ := testStore(t)

	got, err := s.FindByID(context.Background(), -1)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestCategoryFindByTitle(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	c := mkCategory(t, s, p+"Title", nil)

	got, err := s.FindByTitle(ctx, p+"Title")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if got == nil || got.ID != c.ID {
		t.Fatalf("expected category %d, got %+v", c.ID, got)
	}

	got, err = s.FindByTitle(ctx, strings.ToUpper(p+"Title"))
	if err != nil {
		t.Fatalf("FindByTitle upper: %v", err)
	}
	if got != nil {
		t.Error("exact match store should not match a different case")
	}

	ci := NewCategoryStore(s.db, true)
	got, err = ci.FindByTitle(ctx, strings.ToUpper(p+"Title"))
	if err != nil {
		t.Fatalf("FindByTitle case-insensitive: %v", err)
	}
	if got == nil || got.ID != c.ID {
		t.Errorf("case-insensitive store should match, got %+v", got)
	}
}

func TestCategoryCreateConstraintErrors(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	mkCategory(t, s, p+"taken", nil)

	_, err := s.Create(ctx, p+"taken", nil)
	if !errors.Is(err, ErrTitleTaken) {
		t.Errorf("duplicate title: got %v, want ErrTitleTaken", err)
	}

	missing := int64(-42)
	_, err = s.Create(ctx, p+"orphan", &missing)
	if !errors.Is(err, ErrParentMissing) {
		t.Errorf("missing parent: got %v, want ErrParentMissing", err)
	}
}

func TestCategoryUpdate(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	c := mkCategory(t, s, p+"before", nil)

	c.Title = p + "after"
	updated, err := s.Update(ctx, c)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != p+"after" {
		t.Errorf("title: got %q", updated.Title)
	}
	if !updated.CreatedAt.Equal(c.CreatedAt) {
		t.Error("created_at must not change")
	}

	c.ID = -1
	updated, err = s.Update(ctx, c)
	if err != nil {
		t.Fatalf("Update missing: %v", err)
	}
	if updated != nil {
		t.Error("expected nil for missing category")
	}
}

func TestCategoryUpdateDuplicateTitle(t *testing.T) {
	s, p := testStore(t)
	mkCategory(t, s, p+"one", nil)
	two := mkCategory(t, s, p+"two", nil)

	two.Title = p + "one"
	if _, err := s.Update(context.Background(), two); !errors.Is(err, ErrTitleTaken) {
		t.Errorf("got %v, want ErrTitleTaken", err)
	}
}

func TestCategoryDeleteCascades(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	root := mkCategory(t, s, p+"root", nil)
	mid := mkCategory(t, s, p+"mid", root)
	leaf := mkCategory(t, s, p+"leaf", mid)

	n, err := s.Delete(ctx, mid.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 1 {
		t.Errorf("affected: got %d, want 1", n)
	}

	for _, id := range []int64{mid.ID, leaf.ID} {
		got, err := s.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got != nil {
			t.Errorf("category %d should be gone", id)
		}
		rows, err := s.Closure(ctx, id)
		if err != nil {
			t.Fatalf("Closure: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("category %d still has %d closure rows", id, len(rows))
		}
	}

	desc, err := s.Descendants(ctx, root.ID)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if !equalIDs(idsOf(desc), []int64{root.ID}) {
		t.Errorf("root descendants: got %v", idsOf(desc))
	}

	n, err = s.Delete(ctx, mid.ID)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if n != 0 {
		t.Errorf("deleting a missing id: got %d, want 0", n)
	}
}

func TestCategoryForest(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	root := mkCategory(t, s, p+"root", nil)
	child := mkCategory(t, s, p+"child", root)
	grandchild := mkCategory(t, s, p+"grandchild", child)

	flat, err := s.Forest(ctx, 1)
	if err != nil {
		t.Fatalf("Forest: %v", err)
	}

	depths := map[int64]int{}
	for _, c := range flat {
		depths[c.ID] = c.Depth
		if c.Depth > 1 {
			t.Errorf("category %d exceeds max depth: %d", c.ID, c.Depth)
		}
	}
	if d, ok := depths[root.ID]; !ok || d != 0 {
		t.Errorf("root: got %d, %v", d, ok)
	}
	if d, ok := depths[child.ID]; !ok || d != 1 {
		t.Errorf("child: got %d, %v", d, ok)
	}
	if _, ok := depths[grandchild.ID]; ok {
		t.Error("grandchild should be cut off at depth 1")
	}

	for i := 1; i < len(flat); i++ {
		if flat[i-1].Depth > flat[i].Depth {
			t.Fatal("forest must be ordered by depth")
		}
	}
}

func TestCategoryCount(t *testing.T) {
	s, p := testStore(t)
	mkCategory(t, s, p+"counted", nil)

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least 1, got %d", n)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.Create(ctx, p+"rolled-back", nil)
		if err != nil {
			return err
		}
		if err := s.InsertLeaf(ctx, c.ID, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	got, err := s.FindByTitle(ctx, p+"rolled-back")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if got != nil {
		t.Error("rolled back category is visible")
	}
}

func TestWithinTxNested(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.WithinTx(ctx, func(ctx context.Context) error {
			c, err := s.Create(ctx, p+"nested", nil)
			if err != nil {
				return err
			}
			id = c.ID
			return s.InsertLeaf(ctx, c.ID, nil)
		})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	t.Cleanup(func() { s.db.Exec("DELETE FROM categories WHERE id = $1", id) })

	got, err := s.FindByID(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("nested write not committed: %v", err)
	}
}

func TestLockTreeRequiresTx(t *testing.T) {
	s, _ := testStore(t)

	if err := s.LockTree(context.Background()); !errors.Is(err, ErrNoTx) {
		t.Errorf("got %v, want ErrNoTx", err)
	}
}
