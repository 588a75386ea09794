// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers exposes the category tree manager over a JSON HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taxonomy/internal/middleware"
	"taxonomy/internal/models"
	"taxonomy/internal/tree"
)

// maxBodyBytes bounds request bodies; a 500 character title fits easily.
const maxBodyBytes = 64 << 10

// CategoryService is the tree manager as seen by the HTTP layer.
type CategoryService interface {
	Create(ctx context.Context, in tree.Input) (*models.Category, error)
	Update(ctx context.Context, id int64, in tree.Input) (*models.Category, error)
	Delete(ctx context.Context, id int64) (int64, error)
	FindOne(ctx context.Context, id int64) (*models.Category, error)
	FindTreeByID(ctx context.Context, id int64) (*models.Category, error)
	FindAll(ctx context.Context) ([]*models.Category, error)
}

// Categories groups the category endpoints.
type Categories struct {
	svc CategoryService
}

// NewCategories creates the category handler group.
func NewCategories(svc CategoryService) *Categories {
	return &Categories{svc: svc}
}

// Create handles POST /categories.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCategory(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /categories and returns the nested forest.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.FindAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roots)
}

// Get handles GET /categories/{id}.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.FindOne(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c == nil {
		writeError(w, r, tree.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Tree handles GET /categories/tree/{id}: the category's ancestors and
// descendants nested under its topmost ancestor.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	root, err := h.svc.FindTreeByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// Update handles PATCH /categories/{id}. An absent parentId moves the
// category to the root.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := decodeCategory(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /categories/{id}. Deleting a missing category
// reports zero affected rows.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	n, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"affected": n})
}

// parseID reads the {id} URL parameter. The router only matches digits, so
// a failure here means the value overflowed int64.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeCategory reads and validates a category request body.
func decodeCategory(w http.ResponseWriter, r *http.Request) (tree.Input, bool) {
	var req categoryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "request body must be a JSON object with a title and an optional parentId")
		return tree.Input{}, false
	}
	if msgs := validateCategory(&req); msgs != nil {
		writeBadRequest(w, msgs...)
		return tree.Input{}, false
	}
	return tree.Input{Title: req.Title, ParentID: req.ParentID}, true
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	StatusCode int      `json:"statusCode"`
	Error      string   `json:"error"`
	Kind       string   `json:"kind,omitempty"`
	Message    []string `json:"message"`
}

// writeError maps a tree manager error onto a status code. Validation kinds
// carry their messages; anything else is an infrastructure fault and is
// logged, not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *tree.Error
	if !errors.As(err, &terr) {
		slog.Error("category request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromCtx(r.Context()),
			"error", err,
		)
		status := http.StatusInternalServerError
		writeJSON(w, status, errorResponse{
			StatusCode: status,
			Error:      http.StatusText(status),
			Message:    []string{"internal server error"},
		})
		return
	}

	status := http.StatusBadRequest
	if terr.Kind == tree.KindNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Kind:       string(terr.Kind),
		Message:    terr.Messages,
	})
}

func writeBadRequest(w http.ResponseWriter, msgs ...string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		StatusCode: http.StatusBadRequest,
		Error:      http.StatusText(http.StatusBadRequest),
		Message:    msgs,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
