package server

import (
	"fmt"
	"net/http"
)

// getScheme determines the HTTP scheme
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

// getBaseURL returns the base URL for HTTP
func getBaseURL(r *http.Request) string {
	return fmt.Sprintf("%s://%s", getScheme(r), r.Host)
}

// getWSURL returns the base URL for websocket connections
func getWSURL(r *http.Request) string {
	if getScheme(r) == "https" {
		return fmt.Sprintf("wss://%s", r.Host)
	}
	return fmt.Sprintf("ws://%s", r.Host)
}
