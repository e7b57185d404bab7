package mw

import (
	"anchor/internal/config"
	"net/http"
	"slices"
)

type CORSMiddleware struct {
	Origins []string
	Methods []string
	Headers []string
}

func NewCORS(cfg *config.CORSConfig) *CORSMiddleware {
	if cfg == nil {
		return &CORSMiddleware{}
	}
	return &CORSMiddleware{
		Origins: cfg.Origins,
		Methods: cfg.Methods,
		Headers: cfg.Headers,
	}
}

func (c *CORSMiddleware) Handler() func(http.Handler) http.Handler {
	methods := joinOrDefault(c.Methods, "GET,POST,OPTIONS")
	headers := joinOrDefault(c.Headers, "Authorization,Content-Type")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := c.allowOrigin(r.Header.Get("Origin"))
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// one origin per response: "*" or the matching request origin
func (c *CORSMiddleware) allowOrigin(origin string) string {
	if len(c.Origins) == 0 || slices.Contains(c.Origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.Origins, origin) {
		return origin
	}
	return ""
}

func joinOrDefault(v []string, def string) string {
	if len(v) == 0 {
		return def
	}

	s := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] != "" {
			s += "," + v[i]
		}
	}
	return s
}
