package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Extension origin schemes accepted by the origin guard.
const (
	chromeExtensionScheme  = "chrome-extension://"
	firefoxExtensionScheme = "moz-extension://"
)

// originPolicy decides which browser origins may call the API.
// With no pinned extension IDs any extension origin is accepted.
type originPolicy struct {
	extensionIDs map[string]bool
}

func newOriginPolicy(ids []string) originPolicy {
	p := originPolicy{extensionIDs: make(map[string]bool, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			p.extensionIDs[id] = true
		}
	}
	return p
}

// allowed reports whether an Origin header value is localhost or a permitted extension.
// An empty origin (CLI, curl) is allowed.
func (p originPolicy) allowed(origin string) bool {
	if origin == "" {
		return true
	}

	for _, scheme := range []string{chromeExtensionScheme, firefoxExtensionScheme} {
		if id, ok := strings.CutPrefix(origin, scheme); ok {
			if len(p.extensionIDs) == 0 {
				return id != ""
			}
			return p.extensionIDs[id]
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isLoopbackName(u.Hostname())
}

// isAllowedHost checks that the Host header names the loopback interface, so a
// rebinding domain resolving to 127.0.0.1 is still refused.
func isAllowedHost(host string) bool {
	if host == "" {
		return true
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimPrefix(hostname, "[")
	hostname = strings.TrimSuffix(hostname, "]")
	return isLoopbackName(hostname)
}

func isLoopbackName(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// guard validates Host and Origin, echoes allowed origins for CORS and answers preflights.
func (p originPolicy) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAllowedHost(r.Host) {
			writeErrorBody(w, http.StatusForbidden, "FORBIDDEN", "invalid host header")
			return
		}

		origin := r.Header.Get("Origin")
		if !p.allowed(origin) {
			writeErrorBody(w, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			return
		}

		// Echo the origin, never "*".
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
