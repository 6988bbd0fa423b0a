package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the default number of submissions per minute per member and kind
	DefaultRateLimit = 30
	// DefaultBurstSize is the default burst size
	DefaultBurstSize = 5
	// CleanupInterval is how often idle buckets are swept
	CleanupInterval = 5 * time.Minute
	// LimiterTTL is how long an idle bucket is kept
	LimiterTTL = 10 * time.Minute
)

// Submission kinds throttled independently of each other
const (
	SubmitLoan         = "loan"
	SubmitPayment      = "payment"
	SubmitReceipt      = "receipt"
	SubmitContribution = "contribution"
)

type bucketKey struct {
	memberID int32
	kind     string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles ledger submissions with a token bucket per member
// and submission kind, so a burst of payments does not block a contribution
type RateLimiter struct {
	mu                sync.Mutex
	buckets           map[bucketKey]*bucket
	requestsPerMinute int
	burstSize         int
	now               func() time.Time
	stopCh            chan struct{}
	stopOnce          sync.Once
}

// NewRateLimiter creates a RateLimiter with the default limits
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(DefaultRateLimit, DefaultBurstSize)
}

// NewRateLimiterWithConfig creates a RateLimiter allowing requestsPerMinute
// sustained submissions with bursts of burstSize
func NewRateLimiterWithConfig(requestsPerMinute int, burstSize int) *RateLimiter {
	rl := &RateLimiter{
		buckets:           make(map[bucketKey]*bucket),
		requestsPerMinute: requestsPerMinute,
		burstSize:         burstSize,
		now:               time.Now,
		stopCh:            make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Reserve takes a token for the member's submission of kind. It returns zero
// when the submission may proceed, otherwise how long until it would be
// allowed. A rejected submission does not consume a token.
func (r *RateLimiter) Reserve(memberID int32, kind string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := bucketKey{memberID: memberID, kind: kind}
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(r.requestsPerMinute)/60.0), r.burstSize)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Minute
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// Allow reports whether the member may submit kind now
func (r *RateLimiter) Allow(memberID int32, kind string) bool {
	return r.Reserve(memberID, kind) == 0
}

// Remaining returns the whole tokens left in the member's bucket for kind
func (r *RateLimiter) Remaining(memberID int32, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[bucketKey{memberID: memberID, kind: kind}]
	if !ok {
		return r.burstSize
	}
	tokens := int(b.limiter.TokensAt(r.now()))
	if tokens < 0 {
		return 0
	}
	return tokens
}

func (r *RateLimiter) sweep() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			cutoff := r.now().Add(-LimiterTTL)
			for key, b := range r.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(r.buckets, key)
				}
			}
			r.mu.Unlock()
		case <-r.stopCh:
			return
		}
	}
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Throttle returns middleware limiting submissions of kind per member.
// Admins and requests without a resolved member are not throttled.
func (r *RateLimiter) Throttle(kind string) echo.MiddlewareFunc {
	limit := strconv.Itoa(r.requestsPerMinute)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			memberID := GetMemberID(c)
			if memberID == 0 || IsAdmin(c) {
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", limit)

			if delay := r.Reserve(memberID, kind); delay > 0 {
				retryAfter := int(math.Ceil(delay.Seconds()))
				header.Set("X-RateLimit-Remaining", "0")
				header.Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn().
					Int32("member_id", memberID).
					Str("kind", kind).
					Int("retry_after", retryAfter).
					Msg("Submission rate limit exceeded")

				return c.JSON(http.StatusTooManyRequests, problemDetails{
					Type:     errorTypeRateLimit,
					Title:    "Rate Limit Exceeded",
					Status:   http.StatusTooManyRequests,
					Detail:   "Too many " + kind + " submissions. Please retry after " + strconv.Itoa(retryAfter) + " seconds.",
					Instance: c.Request().URL.Path,
				})
			}

			header.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining(memberID, kind)))
			return next(c)
		}
	}
}
