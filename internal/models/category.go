// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// MaxTitleLen is the longest title a category may carry, in characters.
const MaxTitleLen = 500

// Category is a single node of the category hierarchy. Every category has
// at most one parent; a nil ParentID marks a root.
type Category struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	ParentID  *int64    `json:"parentId"`

	// Virtual fields populated when a nested tree is assembled.
	Depth    int         `json:"depth"`
	Selected bool        `json:"selected,omitempty"`
	Children []*Category `json:"children,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// Walk visits c and every nested child depth-first, parents before children.
// Returning false from fn stops the walk below the current node.
func (c *Category) Walk(fn func(*Category) bool) {
	if !fn(c) {
		return
	}
	for _, child := range c.Children {
		child.Walk(fn)
	}
}

// Find returns the node with the given id inside the nested tree rooted at
// c, or nil.
func (c *Category) Find(id int64) *Category {
	var found *Category
	c.Walk(func(n *Category) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// ClosureRow is one (ancestor, descendant) pair of the closure index.
// Depth is the number of edges between the two; self pairs have depth 0.
type ClosureRow struct {
	AncestorID   int64 `json:"ancestorId"`
	DescendantID int64 `json:"descendantId"`
	Depth        int   `json:"depth"`
}
