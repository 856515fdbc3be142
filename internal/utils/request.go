package utils

import (
	"net/http"
	"strings"
)

// ClientIP resolves the visitor address from proxy headers, falling back to
// the supplied value (usually gin's c.ClientIP()).
func ClientIP(r *http.Request, fallback string) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if fallback != "" {
		return fallback
	}
	return "127.0.0.1"
}
