// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
)

// ChiMiddleware provides the middleware factories used by the router: CORS
// from the server config, IP-keyed rate limits, and endpoint-class variants.
type ChiMiddleware struct {
	cfg  config.ServerConfig
	cors func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware factory from server configuration.
func NewChiMiddleware(cfg config.ServerConfig) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return &ChiMiddleware{cfg: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware. Must be global to handle OPTIONS preflight.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default IP-keyed rate limiter.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.rateLimit(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitWrite returns a stricter limiter for write endpoints (bookings,
// payments). A quarter of the default budget.
func (m *ChiMiddleware) RateLimitWrite() func(http.Handler) http.Handler {
	reqs := m.cfg.RateLimitReqs / 4
	if reqs < 1 {
		reqs = 1
	}
	return m.rateLimit(reqs, m.cfg.RateLimitWindow)
}

// RateLimitWebhook returns a permissive limiter for gateway webhooks, which
// arrive in bursts on payment settlement.
func (m *ChiMiddleware) RateLimitWebhook() func(http.Handler) http.Handler {
	return m.rateLimit(m.cfg.RateLimitReqs*10, m.cfg.RateLimitWindow)
}

func (m *ChiMiddleware) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests,
				ErrCodeTooManyRequests, "Rate limit exceeded")
		}),
	)
}

// RequestIDWithLogging adds an X-Request-ID header and threads the ID through
// the logging context so every log line in the request carries it.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogging logs one line per completed request with method, route
// pattern, status, and duration, and feeds the API metrics.
func RequestLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			// The route pattern is only resolved after routing, so read it here.
			endpoint := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}
			metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), duration)

			logging.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", duration).
				Int("bytes", ww.BytesWritten()).
				Msg("Request completed")
		})
	}
}
