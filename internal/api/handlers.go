// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// maxBodyBytes caps request bodies. Webhook and booking payloads are small;
// anything larger is malformed or hostile.
const maxBodyBytes = 1 << 20

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// decodeJSON reads and decodes the request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// pathUUID parses a UUID route parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q is not a UUID", name, raw)
	}
	return id, nil
}

// parsePagination reads limit/offset query parameters with bounds applied.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// parseDate reads a date query parameter, accepting 2006-01-02 or RFC3339.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected 2006-01-02 or RFC3339", raw)
	}
	return t, nil
}

// parseInt64 reads an integer query parameter, returning 0 when absent.
func parseInt64(raw string) int64 {
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

// newPagination builds the pagination block for a list response.
func newPagination(total, count, limit, offset int) *PaginationMeta {
	return &PaginationMeta{
		Total:   int64(total),
		Count:   count,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+count < total,
	}
}
