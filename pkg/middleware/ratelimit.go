package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/validation"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// MaxKeys bounds the number of tracked clients; the least recently
	// seen are evicted first
	MaxKeys int
}

// DefaultRateLimitConfig returns the API-wide limit: 20 req/s plus a burst of 40
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 20,
		WindowDuration:    time.Second,
		BurstSize:         40,
		MaxKeys:           10000,
	}
}

// LoginRateLimitConfig returns the login limit: 10 attempts per minute
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		MaxKeys:           10000,
	}
}

func (c *RateLimitConfig) capacity() int {
	return c.RequestsPerWindow + c.BurstSize
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is implemented by RateLimiter and DistributedRateLimiter
type Limiter interface {
	Take(ctx context.Context, key string) Decision
}

// RateLimiter implements rate limiting using token bucket algorithm.
// Idle buckets expire out of the cache after two windows.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.LRU[string, *bucket]
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	maxKeys := config.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 10000
	}

	return &RateLimiter{
		config:  config,
		buckets: lru.NewLRU[string, *bucket](maxKeys, nil, 2*config.WindowDuration),
		now:     time.Now,
	}
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: rl.config.capacity(), lastUpdate: rl.now()}
	}
	// re-adding refreshes the expiry of an active key
	rl.buckets.Add(key, b)
	return b
}

// Take consumes one token for key
func (rl *RateLimiter) Take(_ context.Context, key string) Decision {
	b := rl.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(b.lastUpdate)

	// Refill tokens based on elapsed time
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > rl.config.capacity() {
			b.tokens = rl.config.capacity()
		}
		b.lastUpdate = now
	}

	decision := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens > 0 {
		b.tokens--
		decision.Allowed = true
		decision.Remaining = b.tokens
		return decision
	}

	perToken := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
	decision.RetryAfter = perToken - elapsed
	if decision.RetryAfter <= 0 {
		decision.RetryAfter = perToken
	}
	return decision
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.Take(context.Background(), key).Allowed
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	b, exists := rl.buckets.Peek(key)
	rl.mu.Unlock()

	if !exists {
		return rl.config.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	return rl.buckets.Len()
}

// KeyFunc derives the rate limit key for a request
type KeyFunc func(r *http.Request) string

// ClientIPKey limits per client address
func ClientIPKey(r *http.Request) string {
	return "ip:" + httputil.ClientIP(r)
}

// CallerKey limits per authenticated caller, or per address before
// authentication
func CallerKey(r *http.Request) string {
	if caller := auth.CallerFrom(r.Context()); caller != nil {
		return "user:" + caller.ID
	}
	return ClientIPKey(r)
}

// maxLoginBody bounds how much of a login body is buffered for keying
const maxLoginBody = 64 << 10

// LoginKey limits per client address and submitted email. The body is
// handed on to the handler intact: the buffered prefix is replayed ahead
// of whatever was not read.
func LoginKey(r *http.Request) string {
	key := ClientIPKey(r)
	if r.Body == nil || r.Body == http.NoBody {
		return key
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), r.Body), Closer: r.Body}
	if err != nil || len(raw) == maxLoginBody {
		return key
	}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Email != "" {
		key += ":email:" + validation.NormalizeEmail(body.Email)
	}
	return key
}

// replayBody reads the buffered prefix then the rest of the original body
type replayBody struct {
	io.Reader
	io.Closer
}

// RateLimitRecorder counts rejected requests. *observability.Metrics implements it.
type RateLimitRecorder interface {
	RecordRateLimited(limiter string)
}

// RateLimit returns middleware that rejects requests over the limit with
// 429 and a Retry-After header. name labels the rejection metric.
func RateLimit(name string, limiter Limiter, keyFn KeyFunc, recorder RateLimitRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Take(r.Context(), keyFn(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				if recorder != nil {
					recorder.RecordRateLimited(name)
				}
				w.Header().Set("Retry-After", httputil.RetryAfterSeconds(decision.RetryAfter))
				httputil.WriteTooManyRequests(w, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
