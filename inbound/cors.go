package inbound

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "GET, POST, OPTIONS"
)

type cors struct {
	any     bool
	origins map[string]struct{}
}

func newCORS(allowed []string) cors {
	c := cors{origins: map[string]struct{}{}}
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			c.any = true
		default:
			c.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	return c
}

func (c cors) allowOrigin(origin string) string {
	if c.any {
		return "*"
	}
	if origin == "" {
		return ""
	}
	if _, ok := c.origins[strings.ToLower(strings.TrimRight(origin, "/"))]; ok {
		return origin
	}
	return ""
}

// handler answers every preflight before routing and decorates the other
// responses with the allowed origin.
func (c cors) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		if !c.any {
			header.Add("Vary", "Origin")
		}
		if allowed := c.allowOrigin(r.Header.Get("Origin")); allowed != "" {
			header.Set("Access-Control-Allow-Origin", allowed)
			header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			header.Set("Access-Control-Allow-Methods", corsAllowMethods)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
