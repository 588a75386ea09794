// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package tree is the category tree manager. It validates every mutation
// against the current tree (parent existence, title uniqueness, depth
// budget) and applies the node write together with the closure index
// maintenance in a single transaction.
package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"taxonomy/internal/metrics"
	"taxonomy/internal/models"
	"taxonomy/internal/store"
)

// DefaultMaxDepth is the largest number of proper ancestors a category may have.
const DefaultMaxDepth = 100

// Repository is the persistence the tree manager runs on. Calls made with
// the context handed to WithinTx's callback share one transaction.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockTree(ctx context.Context) error

	FindByID(ctx context.Context, id int64) (*models.Category, error)
	FindByTitle(ctx context.Context, title string) (*models.Category, error)
	Create(ctx context.Context, title string, parentID *int64) (*models.Category, error)
	Update(ctx context.Context, c *models.Category) (*models.Category, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Forest(ctx context.Context, maxDepth int) ([]*models.Category, error)

	Ancestors(ctx context.Context, id int64) ([]*models.Category, error)
	CountAncestors(ctx context.Context, id int64) (int, error)
	Descendants(ctx context.Context, id int64) ([]*models.Category, error)
	DeepestDescendant(ctx context.Context, id int64) (int64, int, error)
	IsDescendant(ctx context.Context, ancestorID, id int64) (bool, error)
	InsertLeaf(ctx context.Context, id int64, parentID *int64) error
	RebuildFor(ctx context.Context, id int64) (removed, added int64, err error)
	Rebuild(ctx context.Context) (int64, error)
}

// Cache stores rendered query results. Implementations must treat failures
// as misses; Invalidate drops everything cached so far. Get reports the
// generation it looked under and Set writes under the generation it is
// given, so results computed across an Invalidate are never served.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, gen int64, ok bool)
	Set(ctx context.Context, gen int64, key string, data []byte)
	Invalidate(ctx context.Context)
}

// Input carries the writable fields of a category.
type Input struct {
	Title    string
	ParentID *int64
}

// Service implements the tree manager operations.
type Service struct {
	repo     Repository
	cache    Cache
	maxDepth int
}

// NewService returns a Service. A nil cache disables result caching and a
// non-positive maxDepth selects DefaultMaxDepth.
func NewService(repo Repository, cache Cache, maxDepth int) *Service {
	if cache == nil {
		cache = noCache{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Service{repo: repo, cache: cache, maxDepth: maxDepth}
}

// MaxDepth returns the configured depth cap.
func (s *Service) MaxDepth() int {
	return s.maxDepth
}

// normalizeParent treats a zero parent id the same as no parent.
func normalizeParent(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

// Create validates and inserts a new category. The parent lookup, title
// collision lookup and parent depth count are independent and run
// concurrently before anything is written.
func (s *Service) Create(ctx context.Context, in Input) (c *models.Category, err error) {
	defer observe("create")(&err)

	parentID := normalizeParent(in.ParentID)

	var (
		parent      *models.Category
		existing    *models.Category
		parentDepth int
	)
	g, gctx := errgroup.WithContext(ctx)
	if parentID != nil {
		g.Go(func() (err error) {
			parent, err = s.FindOne(gctx, *parentID)
			return err
		})
		g.Go(func() (err error) {
			parentDepth, err = s.repo.CountAncestors(gctx, *parentID)
			return err
		})
	}
	g.Go(func() (err error) {
		existing, err = s.repo.FindByTitle(gctx, in.Title)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if parentID != nil && parent == nil {
		return nil, ErrInvalidParent
	}
	if existing != nil {
		return nil, ErrDuplicateTitle
	}
	if parent != nil && parentDepth >= s.maxDepth {
		return nil, ErrDepthExceeded
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockTree(ctx); err != nil {
			return err
		}

		created, err := s.repo.Create(ctx, in.Title, parentID)
		if err != nil {
			return translateWriteError(err)
		}
		if err := s.repo.InsertLeaf(ctx, created.ID, parentID); err != nil {
			return translateWriteError(err)
		}

		// The parent may have moved between validation and the lock.
		depth, err := s.repo.CountAncestors(ctx, created.ID)
		if err != nil {
			return err
		}
		if depth > s.maxDepth {
			return ErrDepthExceeded
		}
		created.Depth = depth
		c = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	slog.Info("category created", "id", c.ID, "parent_id", ptrValue(c.ParentID), "depth", c.Depth)
	return c, nil
}

// Update changes the title and parent of category id. A nil parent moves
// the category to the root. Moving a category re-derives the closure rows
// of its whole subtree, so the depth check covers the deepest member of the
// subtree, not just the category itself.
func (s *Service) Update(ctx context.Context, id int64, in Input) (c *models.Category, err error) {
	defer observe("update")(&err)

	parentID := normalizeParent(in.ParentID)

	var target, parent, existing *models.Category
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		target, err = s.FindOne(gctx, id)
		return err
	})
	if parentID != nil {
		g.Go(func() (err error) {
			parent, err = s.FindOne(gctx, *parentID)
			return err
		})
	}
	g.Go(func() (err error) {
		existing, err = s.repo.FindByTitle(gctx, in.Title)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if target == nil {
		return nil, ErrNotFound
	}
	if parentID != nil && parent == nil {
		return nil, ErrInvalidParent
	}
	if existing != nil && existing.ID != target.ID {
		return nil, ErrDuplicateTitle
	}

	var removed, added int64
	moved := !sameParent(target.ParentID, parentID)
	if parent != nil && moved {
		if err := s.checkMove(ctx, target, parent); err != nil {
			return nil, err
		}
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockTree(ctx); err != nil {
			return err
		}

		if parent != nil && moved {
			cycle, err := s.repo.IsDescendant(ctx, target.ID, parent.ID)
			if err != nil {
				return err
			}
			if cycle {
				return errParentCycle
			}
		}

		updated, err := s.repo.Update(ctx, &models.Category{ID: target.ID, Title: in.Title, ParentID: parentID})
		if err != nil {
			return translateWriteError(err)
		}
		if updated == nil {
			return ErrNotFound
		}

		if moved {
			removed, added, err = s.repo.RebuildFor(ctx, updated.ID)
			if err != nil {
				return err
			}

			_, deepest, err := s.repo.DeepestDescendant(ctx, updated.ID)
			if err != nil {
				return err
			}
			if deepest > s.maxDepth {
				return ErrDepthExceeded
			}
		}

		depth, err := s.repo.CountAncestors(ctx, updated.ID)
		if err != nil {
			return err
		}
		updated.Depth = depth
		c = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if moved {
		metrics.ClosureRowsRewritten.WithLabelValues("removed").Add(float64(removed))
		metrics.ClosureRowsRewritten.WithLabelValues("added").Add(float64(added))
	}
	s.cache.Invalidate(ctx)
	slog.Info("category updated", "id", c.ID, "parent_id", ptrValue(c.ParentID), "moved", moved)
	return c, nil
}

// checkMove rejects moving target under parent when parent lies inside
// target's subtree, or when the deepest member of the subtree would end up
// with more than maxDepth proper ancestors.
func (s *Service) checkMove(ctx context.Context, target, parent *models.Category) error {
	if parent.ID == target.ID {
		return errParentCycle
	}

	var (
		cycle       bool
		parentDepth int
		targetDepth int
		leafDepth   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cycle, err = s.repo.IsDescendant(gctx, target.ID, parent.ID)
		return err
	})
	g.Go(func() (err error) {
		parentDepth, err = s.repo.CountAncestors(gctx, parent.ID)
		return err
	})
	g.Go(func() (err error) {
		targetDepth, err = s.repo.CountAncestors(gctx, target.ID)
		return err
	})
	g.Go(func() (err error) {
		_, leafDepth, err = s.repo.DeepestDescendant(gctx, target.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cycle {
		return errParentCycle
	}

	newDepth := parentDepth + 1
	if newDepth > s.maxDepth {
		return ErrDepthExceeded
	}
	height := max(leafDepth-targetDepth, 0)
	if newDepth+height > s.maxDepth {
		return ErrDepthExceeded
	}
	return nil
}

// Delete removes category id and its whole subtree. A missing id is not an
// error; it reports zero affected rows.
func (s *Service) Delete(ctx context.Context, id int64) (n int64, err error) {
	defer observe("delete")(&err)

	if id <= 0 {
		return 0, nil
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockTree(ctx); err != nil {
			return err
		}
		n, err = s.repo.Delete(ctx, id)
		return err
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.cache.Invalidate(ctx)
		slog.Info("category deleted", "id", id)
	}
	return n, nil
}

// FindOne returns category id, or nil when it does not exist. Non-positive
// ids are never looked up.
func (s *Service) FindOne(ctx context.Context, id int64) (*models.Category, error) {
	if id <= 0 {
		return nil, nil
	}
	return s.repo.FindByID(ctx, id)
}

// FindTreeByID returns the ancestor chain of category id joined with its
// whole subtree, nested under the topmost ancestor. The requested category
// is marked Selected.
func (s *Service) FindTreeByID(ctx context.Context, id int64) (root *models.Category, err error) {
	defer observe("find_tree")(&err)

	key := "tree:" + strconv.FormatInt(id, 10)
	data, gen, ok := s.cache.Get(ctx, key)
	if ok {
		var cached models.Category
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	c, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	var ancestors, descendants []*models.Category
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ancestors, err = s.repo.Ancestors(gctx, c.ID)
		return err
	})
	g.Go(func() (err error) {
		descendants, err = s.repo.Descendants(gctx, c.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	roots := Assemble(append(ancestors, descendants...), 0)
	if len(roots) != 1 {
		return nil, fmt.Errorf("assemble tree for category %d: got %d roots", id, len(roots))
	}
	root = roots[0]
	if selected := root.Find(c.ID); selected != nil {
		selected.Selected = true
	}

	if data, err := json.Marshal(root); err == nil {
		s.cache.Set(ctx, gen, key, data)
	}
	return root, nil
}

// FindAll returns every root category with its subtree nested beneath it,
// at most maxDepth levels deep.
func (s *Service) FindAll(ctx context.Context) (roots []*models.Category, err error) {
	defer observe("find_all")(&err)

	const key = "forest"
	data, gen, ok := s.cache.Get(ctx, key)
	if ok {
		var cached []*models.Category
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	flat, err := s.repo.Forest(ctx, s.maxDepth)
	if err != nil {
		return nil, err
	}
	roots = Assemble(flat, 0)
	prune(roots, s.maxDepth)
	if roots == nil {
		roots = []*models.Category{}
	}

	if data, err := json.Marshal(roots); err == nil {
		s.cache.Set(ctx, gen, key, data)
	}
	return roots, nil
}

// Reindex regenerates the whole closure index from parent links.
func (s *Service) Reindex(ctx context.Context) (n int64, err error) {
	defer observe("reindex")(&err)

	n, err = s.repo.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx)
	slog.Info("closure index rebuilt", "rows", n)
	return n, nil
}

// translateWriteError maps constraint violations that slipped past
// validation (concurrent writers) onto validation kinds.
func translateWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrTitleTaken):
		return ErrDuplicateTitle
	case errors.Is(err, store.ErrParentMissing):
		return ErrInvalidParent
	}
	return err
}

// observe starts timing an operation; the returned func records its outcome.
func observe(operation string) func(*error) {
	started := time.Now()
	return func(errp *error) {
		metrics.ObserveTreeOperation(operation, resultLabel(*errp), started)
	}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptrValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, int64, bool) { return nil, -1, false }
func (noCache) Set(context.Context, int64, string, []byte)        {}
func (noCache) Invalidate(context.Context)                        {}
