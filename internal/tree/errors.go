// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import (
	"errors"
	"strings"
)

// Kind classifies a request-level validation failure.
type Kind string

const (
	KindNotFound       Kind = "NotFound"
	KindInvalidParent  Kind = "InvalidParent"
	KindDuplicateTitle Kind = "DuplicateTitle"
	KindDepthExceeded  Kind = "DepthExceeded"
)

// Error is a validation failure detected before anything was written.
// Storage faults are never reported as *Error.
type Error struct {
	Kind     Kind
	Messages []string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + strings.Join(e.Messages, "; ")
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound, Messages: []string{"category not found"}}
	ErrInvalidParent  = &Error{Kind: KindInvalidParent, Messages: []string{"invalid parentId"}}
	ErrDuplicateTitle = &Error{Kind: KindDuplicateTitle, Messages: []string{"Category with title already exists"}}
	ErrDepthExceeded  = &Error{Kind: KindDepthExceeded, Messages: []string{"child category count in depth exceeded"}}

	errParentCycle = &Error{Kind: KindInvalidParent, Messages: []string{
		"invalid parentId",
		"a category cannot be moved under itself or one of its descendants",
	}}
)

// KindOf returns the validation kind carried by err, or "" for nil and for
// infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// resultLabel names the outcome of an operation for metrics.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
