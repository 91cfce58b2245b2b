package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/bfi/internal/logging"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	MaxAttempts int           // Maximum attempts per window (default: 5)
	Window      time.Duration // Time window for rate limiting (default: 1 minute)
	BlockAfter  int           // Block after this many failed attempts (default: 10)
	BlockTime   time.Duration // Base block duration (default: 5 minutes, doubles each block)
}

// DefaultRateLimitConfig returns the default rate limiting configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 5,
		Window:      time.Minute,
		BlockAfter:  10,
		BlockTime:   5 * time.Minute,
	}
}

// DefaultSubmitLimitConfig returns the default limits on POST /runs. Run
// submissions never count as failures, so only MaxAttempts and Window
// apply.
func DefaultSubmitLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 120,
		Window:      time.Minute,
	}
}

// rateLimiter implements a sliding window rate limiter with exponential backoff.
type rateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	log    *logging.Logger

	// attempts tracks timestamps of attempts per IP
	attempts map[string][]time.Time

	// failures tracks consecutive failed attempts per IP
	failures map[string]int

	// blocked tracks IPs that are blocked due to too many failures
	// value is the time when the block expires
	blocked map[string]time.Time
}

// newRateLimiter creates a new rate limiter with the given configuration.
func newRateLimiter(config RateLimitConfig, logger *logging.Logger) *rateLimiter {
	if logger == nil {
		logger = logging.Nop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.BlockAfter <= 0 {
		config.BlockAfter = 10
	}
	if config.BlockTime <= 0 {
		config.BlockTime = 5 * time.Minute
	}

	return &rateLimiter{
		config:   config,
		log:      logger,
		attempts: make(map[string][]time.Time),
		failures: make(map[string]int),
		blocked:  make(map[string]time.Time),
	}
}

// newSubmitLimiter creates the limiter for run submissions, filling unset
// fields from DefaultSubmitLimitConfig.
func newSubmitLimiter(config RateLimitConfig, logger *logging.Logger) *rateLimiter {
	defaults := DefaultSubmitLimitConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return newRateLimiter(config, logger)
}

// checkResult represents the result of a rate limit check.
type checkResult struct {
	Allowed    bool
	RetryAfter time.Duration // How long until the client can retry
	IsBlocked  bool          // True if blocked due to too many failures
	Reason     string        // Human-readable reason for rejection
	Attempts   int           // Attempts in the current window, or failures when blocked
}

// check checks if the IP is allowed to make a request.
func (rl *rateLimiter) check(ip string) checkResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Check if IP is blocked due to too many failures
	if blockExpiry, isBlocked := rl.blocked[ip]; isBlocked {
		if now.Before(blockExpiry) {
			return checkResult{
				RetryAfter: blockExpiry.Sub(now),
				IsBlocked:  true,
				Reason:     "too many failed attempts",
				Attempts:   rl.failures[ip],
			}
		}
		// Block has expired, remove it
		delete(rl.blocked, ip)
	}

	rl.attempts[ip] = pruneAttempts(rl.attempts[ip], now.Add(-rl.config.Window))

	currentAttempts := len(rl.attempts[ip])
	if currentAttempts >= rl.config.MaxAttempts {
		// Retry when the oldest attempt leaves the window
		retryAfter := rl.attempts[ip][0].Add(rl.config.Window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return checkResult{
			RetryAfter: retryAfter,
			Reason:     "rate limit exceeded",
			Attempts:   currentAttempts,
		}
	}

	rl.attempts[ip] = append(rl.attempts[ip], now)
	return checkResult{Allowed: true, Attempts: currentAttempts + 1}
}

// allow checks the client of r against the limiter. Over the limit, it
// writes a 429 response with Retry-After and returns false.
func (rl *rateLimiter) allow(w http.ResponseWriter, r *http.Request) (ip string, ok bool) {
	ip = extractIP(r)
	res := rl.check(ip)
	if res.Allowed {
		return ip, true
	}

	rl.log.Warn("request rejected", "ip", ip, "path", r.URL.Path, "reason", res.Reason, "retry_after", res.RetryAfter.String())
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	http.Error(w, res.Reason, http.StatusTooManyRequests)
	return ip, false
}

// recordSuccess records a successful authentication, resetting the failure counter.
func (rl *rateLimiter) recordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Reset failure count on successful auth
	delete(rl.failures, ip)
	delete(rl.blocked, ip)
}

// recordFailure records a failed authentication attempt.
// If the failure count exceeds the threshold, the IP will be blocked with exponential backoff.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.failures[ip]++
	failCount := rl.failures[ip]

	// Check if we should block this IP
	if failCount >= rl.config.BlockAfter {
		// Calculate exponential backoff: blockTime * 2^(blocks-1)
		// Where blocks is the number of times we've had to block this IP
		blocks := (failCount - rl.config.BlockAfter) / rl.config.BlockAfter
		multiplier := 1 << blocks // 2^blocks
		blockDuration := rl.config.BlockTime * time.Duration(multiplier)

		// Cap at 24 hours
		maxBlock := 24 * time.Hour
		if blockDuration > maxBlock {
			blockDuration = maxBlock
		}

		rl.blocked[ip] = time.Now().Add(blockDuration)
		rl.log.Warn("ip blocked", "ip", ip, "duration", blockDuration.String(), "failures", failCount)
	}
}

// cleanup removes expired entries from the rate limiter.
// Should be called periodically.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.config.Window)

	for ip, timestamps := range rl.attempts {
		if valid := pruneAttempts(timestamps, windowStart); len(valid) == 0 {
			delete(rl.attempts, ip)
		} else {
			rl.attempts[ip] = valid
		}
	}

	// Clean up expired blocks
	for ip, expiry := range rl.blocked {
		if now.After(expiry) {
			delete(rl.blocked, ip)
		}
	}

	// Clean up old failure counts for IPs that haven't been seen recently
	// Keep failure counts for blocked IPs
	for ip := range rl.failures {
		if _, isBlocked := rl.blocked[ip]; !isBlocked {
			if _, hasAttempts := rl.attempts[ip]; !hasAttempts {
				delete(rl.failures, ip)
			}
		}
	}
}

// pruneAttempts drops timestamps at or before windowStart.
func pruneAttempts(timestamps []time.Time, windowStart time.Time) []time.Time {
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	return valid
}

// extractIP extracts the client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers first (for reverse proxy scenarios),
// then falls back to the remote address.
func extractIP(r *http.Request) string {
	// X-Forwarded-For can be "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		client, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(client)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
