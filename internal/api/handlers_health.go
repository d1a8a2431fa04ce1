// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"context"
	"net/http"
	"time"
)

// healthStatus is the body of GET /health.
type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health handles GET /health. Reports degraded (503) when the database does
// not answer a ping within two seconds.
func (router *Router) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Database: "up"}
	if err := router.db.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Database = "down"
		NewResponseWriter(w, r).writeJSON(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    status,
		})
		return
	}

	NewResponseWriter(w, r).Success(status)
}
