package server

import (
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may call the API. The server's
// own origin is always allowed; any other must be listed.
type originPolicy struct {
	listed map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{listed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			p.listed[o] = true
		}
	}
	return p
}

func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}

func (p originPolicy) isListed(origin string) bool {
	return p.listed[normalizeOrigin(origin)]
}

// allows reports whether r may be served. Requests without an Origin header
// do not come from a browser page and pass.
func (p originPolicy) allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.isListed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// cors sends CORS headers only to listed origins and refuses requests from
// foreign pages, so no other site can spend the relay's credential.
func cors(policy originPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !policy.allows(r) {
			writeError(w, http.StatusForbidden, "Origin not allowed")
			return
		}
		if policy.isListed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length")
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
