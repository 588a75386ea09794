// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"taxonomy/internal/models"
	"taxonomy/internal/store"
)

// memRepo is an in-memory Repository. The closure relation is derived from
// parent links on every read, so it is always exact; this isolates the
// manager's validation protocol from the SQL maintenance code.
type memRepo struct {
	txMu sync.Mutex // serializes transactions

	mu          sync.Mutex
	nodes       map[int64]models.Category
	nextID      int64
	findByIDs   int
	forestCalls int
	rebuilds    int

	// afterForest, when set, runs once Forest has read its rows and
	// released the lock.
	afterForest func()
}

func newMemRepo() *memRepo {
	return &memRepo{nodes: make(map[int64]models.Category)}
}

func (r *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := maps.Clone(r.nodes)
	nextID := r.nextID
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.nodes = snapshot
		r.nextID = nextID
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) LockTree(context.Context) error { return nil }

// chain returns the proper ancestors of id, nearest first. Caller holds mu.
func (r *memRepo) chain(id int64) []int64 {
	var out []int64
	n, ok := r.nodes[id]
	for ok && n.ParentID != nil {
		out = append(out, *n.ParentID)
		n, ok = r.nodes[*n.ParentID]
	}
	return out
}

func (r *memRepo) get(id int64, depth int) *models.Category {
	n := r.nodes[id]
	n.Depth = depth
	return &n
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findByIDs++
	if _, ok := r.nodes[id]; !ok {
		return nil, nil
	}
	return r.get(id, len(r.chain(id))), nil
}

func (r *memRepo) FindByTitle(_ context.Context, title string) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.nodes {
		if n.Title == title {
			return r.get(id, 0), nil
		}
	}
	return nil, nil
}

func (r *memRepo) titleTaken(title string, except int64) bool {
	for id, n := range r.nodes {
		if n.Title == title && id != except {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(_ context.Context, title string, parentID *int64) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.titleTaken(title, 0) {
		return nil, fmt.Errorf("create category: %w", store.ErrTitleTaken)
	}
	if parentID != nil {
		if _, ok := r.nodes[*parentID]; !ok {
			return nil, fmt.Errorf("create category: %w", store.ErrParentMissing)
		}
	}
	r.nextID++
	r.nodes[r.nextID] = models.Category{
		ID:        r.nextID,
		Title:     title,
		CreatedAt: time.Now(),
		ParentID:  parentID,
	}
	return r.get(r.nextID, 0), nil
}

func (r *memRepo) Update(_ context.Context, c *models.Category) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[c.ID]
	if !ok {
		return nil, nil
	}
	if r.titleTaken(c.Title, c.ID) {
		return nil, fmt.Errorf("update category: %w", store.ErrTitleTaken)
	}
	n.Title = c.Title
	n.ParentID = c.ParentID
	r.nodes[c.ID] = n
	return r.get(c.ID, 0), nil
}

func (r *memRepo) Delete(_ context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return 0, nil
	}
	for _, m := range r.subtree(id) {
		delete(r.nodes, m)
	}
	return 1, nil
}

// subtree returns id and every node below it. Caller holds mu.
func (r *memRepo) subtree(id int64) []int64 {
	var out []int64
	for m := range r.nodes {
		if m == id || slices.Contains(r.chain(m), id) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

func (r *memRepo) Forest(ctx context.Context, maxDepth int) ([]*models.Category, error) {
	out := r.forest(maxDepth)
	if r.afterForest != nil {
		r.afterForest()
	}
	return out, nil
}

func (r *memRepo) forest(maxDepth int) []*models.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forestCalls++
	var out []*models.Category
	for id := range r.nodes {
		if d := len(r.chain(id)); d <= maxDepth {
			out = append(out, r.get(id, d))
		}
	}
	slices.SortFunc(out, func(a, b *models.Category) int {
		return cmp.Or(cmp.Compare(a.Depth, b.Depth), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (r *memRepo) Ancestors(_ context.Context, id int64) ([]*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chain(id)
	slices.Reverse(chain)
	out := make([]*models.Category, 0, len(chain))
	for i, a := range chain {
		out = append(out, r.get(a, i))
	}
	return out, nil
}

func (r *memRepo) CountAncestors(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chain(id)), nil
}

func (r *memRepo) Descendants(_ context.Context, id int64) ([]*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return nil, nil
	}
	var out []*models.Category
	for _, m := range r.subtree(id) {
		out = append(out, r.get(m, slices.Index(append([]int64{m}, r.chain(m)...), id)))
	}
	return out, nil
}

func (r *memRepo) DeepestDescendant(_ context.Context, id int64) (int64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var leaf int64
	deepest := 0
	for _, m := range r.subtree(id) {
		if d := len(r.chain(m)); leaf == 0 || d > deepest {
			leaf, deepest = m, d
		}
	}
	return leaf, deepest, nil
}

func (r *memRepo) IsDescendant(_ context.Context, ancestorID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return false, nil
	}
	return id == ancestorID || slices.Contains(r.chain(id), ancestorID), nil
}

func (r *memRepo) InsertLeaf(context.Context, int64, *int64) error { return nil }

func (r *memRepo) RebuildFor(_ context.Context, id int64) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.subtree(id)))
	return n, n, nil
}

func (r *memRepo) Rebuild(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuilds++
	var rows int64
	for id := range r.nodes {
		rows += int64(len(r.chain(id))) + 1
	}
	return rows, nil
}

// memCache is an in-memory Cache with generation semantics: entries are
// keyed by generation and Invalidate moves to the next one.
type memCache struct {
	mu            sync.Mutex
	gen           int64
	entries       map[string][]byte
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%d:%s", gen, key)
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[c.entryKey(c.gen, key)]
	return data, c.gen, ok
}

func (c *memCache) Set(_ context.Context, gen int64, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.entryKey(gen, key)] = data
}

func (c *memCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	c.gen++
}
