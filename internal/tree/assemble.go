// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import (
	"cmp"
	"slices"

	"taxonomy/internal/models"
)

// Assemble nests a flat list of categories by parent id. Categories whose
// parent is absent from the list become roots. Depth is recomputed from the
// nesting, starting at baseDepth for roots. Roots and siblings are ordered by
// id. Input categories are copied; their Children are replaced.
func Assemble(flat []*models.Category, baseDepth int) []*models.Category {
	byID := make(map[int64]*models.Category, len(flat))
	order := make([]*models.Category, 0, len(flat))
	for _, c := range flat {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		cp := *c
		cp.Children = nil
		byID[c.ID] = &cp
		order = append(order, &cp)
	}

	slices.SortFunc(order, func(a, b *models.Category) int {
		return cmp.Compare(a.ID, b.ID)
	})

	var roots []*models.Category
	for _, c := range order {
		if c.ParentID != nil {
			if parent, ok := byID[*c.ParentID]; ok && parent != c {
				parent.Children = append(parent.Children, c)
				continue
			}
		}
		roots = append(roots, c)
	}

	for _, r := range roots {
		setDepth(r, baseDepth)
	}
	return roots
}

func setDepth(c *models.Category, depth int) {
	c.Depth = depth
	for _, child := range c.Children {
		setDepth(child, depth+1)
	}
}

// prune drops every node deeper than maxDepth levels below the roots.
func prune(roots []*models.Category, maxDepth int) {
	for _, r := range roots {
		r.Walk(func(c *models.Category) bool {
			if c.Depth >= maxDepth {
				c.Children = nil
				return false
			}
			return true
		})
	}
}
