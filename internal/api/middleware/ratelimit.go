package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// Repeated violations within violationWindow block the IP for blockDuration.
const (
	violationLimit  = 10
	violationWindow = time.Hour
	blockDuration   = 24 * time.Hour
)

type routeLimit struct {
	pattern string
	limit   RateLimit
}

// RateLimiter applies fixed window limits per route, keyed by user or IP.
type RateLimiter struct {
	counter          ratelimit.Counter
	limits           []routeLimit // first match wins
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter. Counts go through counter and
// blocks through blocks, so both work in memory or on Redis.
func NewRateLimiter(counter ratelimit.Counter, blocks cache.Store[string], logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		counter:          counter,
		blocker:          NewIPBlocker(blocks),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
		limits: []routeLimit{
			{"POST /api/register", RateLimit{10, time.Hour, ipKey}},
			{"POST /api/login", RateLimit{20, time.Minute, ipKey}},
			{"POST /api/account/delete", RateLimit{5, time.Hour, userKey}},
			{"POST /api/upload", RateLimit{30, time.Minute, userKey}},
			{"POST /api/guilds", RateLimit{120, time.Hour, userKey}},
			{"POST /api/invites/join", RateLimit{30, time.Minute, userKey}},
			{"GET /api/user_search", RateLimit{30, time.Minute, userKey}},
			{"GET /api/rooms/", RateLimit{120, time.Minute, userKey}},
			{"POST /api/admin/", RateLimit{5, time.Minute, userKey}},
			{"GET /ws", RateLimit{30, time.Minute, ipKey}},
		},
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	// Check exact IP match
	if rl.whitelistIPs[ipStr] {
		return true
	}

	// Check CIDR ranges
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// userKey returns the session token's bucket when one is presented,
// otherwise the IP bucket. Limits run before authentication, so the token
// stands in for the user.
func userKey(r *http.Request) string {
	if token := TokenFromRequest(r); token != "" {
		return "ratelimit:session:" + token
	}
	return ipKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	// Then X-Forwarded-For
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	// Then X-Real-IP
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		// Skip rate limiting for whitelisted IPs
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		// Check IP block first
		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		// Find matching limit
		pattern, limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.counter.CheckAndIncrement(r.Context(), key+":"+pattern, limit.Requests, limit.Window)

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()

			// Track violation
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) (string, *RateLimit) {
	key := r.Method + " " + r.URL.Path

	for _, rlim := range rl.limits {
		if strings.HasPrefix(key, rlim.pattern) {
			l := rlim.limit
			return rlim.pattern, &l
		}
	}
	return "", nil
}

// trackViolation counts rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	below, _, _ := rl.counter.CheckAndIncrement(ctx, "violations:ip:"+ip, violationLimit-1, violationWindow)
	if below {
		return
	}
	rl.blocker.Block(ctx, ip, blockDuration, "repeated rate limit violations")
	metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Msg("IP auto-blocked for repeated violations")
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	blocks cache.Store[string]
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(blocks cache.Store[string]) *IPBlocker {
	return &IPBlocker{blocks: blocks}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	_, blocked := b.blocks.Get(ctx, blockKey(ip))
	return blocked
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.blocks.Put(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.blocks.Delete(ctx, blockKey(ip))
}
