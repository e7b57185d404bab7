package mw

import (
	"anchor/internal/config"
	"anchor/internal/security"
	"anchor/pkg/httputil"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

type RateLimitMiddleware struct {
	log      logger.Logger
	rdb      goredis.Scripter
	byIP     config.RateBucket
	byJWT    config.RateBucket
	verifier security.Verifier // optional
}

// verifier may be nil, then only the ip bucket applies to anonymous callers
func NewRateLimit(log logger.Logger, rdb goredis.Scripter, cfg *config.RateLimitConfig, verifier security.Verifier) (*RateLimitMiddleware, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the rate limiter")
	}
	if cfg == nil {
		return nil, errors.New("rate limit config is required to the rate limiter")
	}

	// sane defaults
	byIP, byJWT := cfg.ByIP, cfg.ByJWT
	if byIP.TTL <= 0 {
		byIP.TTL = 2 * time.Minute
	}
	if byJWT.TTL <= 0 {
		byJWT.TTL = 2 * time.Minute
	}
	if byIP.RefillPerSec <= 0 {
		byIP.RefillPerSec = 10
	}
	if byIP.Burst <= 0 {
		byIP.Burst = 20
	}
	if byJWT.RefillPerSec <= 0 {
		byJWT.RefillPerSec = 50
	}
	if byJWT.Burst <= 0 {
		byJWT.Burst = 100
	}

	return &RateLimitMiddleware{log: log, rdb: rdb, byIP: byIP, byJWT: byJWT, verifier: verifier}, nil
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		okIP := m.allow(ctx, "rl:ip:"+ip, now, m.byIP)

		okJWT := true
		if sub := m.subject(r); sub != "" {
			okJWT = m.allow(ctx, "rl:jwt:"+sub, now, m.byJWT)
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", "1")
			_ = httputil.Error(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) subject(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	if m.verifier == nil || r.Header.Get("Authorization") == "" {
		return ""
	}
	claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return claims.Subject
}

// token bucket in one atomic round trip
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec
-- ARGV[3] = burst
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tostring(tokens), 'ts', now)
redis.call('EXPIRE', key, ttl)

return allowed
`)

// allow fails open when redis is unavailable
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) bool {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	allowed, err := luaTokenBucket.Run(ctx, m.rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64()
	if err != nil {
		m.log.Warnf("Rate limiter unavailable for %s, error=%v", key, err)
		return true
	}

	return allowed == 1
}

func clientIP(r *http.Request) string {
	// first hop of the proxy chain
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
