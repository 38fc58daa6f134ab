package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/projectvision/vision/pkg/contextkeys"
	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/observability"
)

// Quota allows Limit requests per Window
type Quota struct {
	Limit  int
	Window time.Duration
}

// DefaultInviteQuota is the per-inviter limit on invite creation
var DefaultInviteQuota = Quota{Limit: 30, Window: time.Hour}

func (q Quota) orDefault() Quota {
	if q.Limit <= 0 || q.Window <= 0 {
		return DefaultInviteQuota
	}
	return q
}

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is set on denials
	RetryAfter time.Duration
}

// Limiter decides whether a keyed request may proceed
type Limiter interface {
	// Allow consumes one request for key. On backend errors it returns an
	// allowing decision together with the error.
	Allow(ctx context.Context, key string) (Decision, error)
	Quota() Quota
}

// LocalLimiter is an in-process token bucket per key. It serves
// single-instance deployments without Redis.
type LocalLimiter struct {
	quota Quota
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens  float64
	updated time.Time
}

// NewLocalLimiter creates an in-process limiter
func NewLocalLimiter(quota Quota) *LocalLimiter {
	return &LocalLimiter{
		quota:   quota.orDefault(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *LocalLimiter) Quota() Quota {
	return l.quota
}

// perSecond is the refill rate
func (l *LocalLimiter) perSecond() float64 {
	return float64(l.quota.Limit) / l.quota.Window.Seconds()
}

// Allow takes a token from the key's bucket, refilling it for the time
// elapsed since the last request
func (l *LocalLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(l.quota.Limit)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, updated: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(capacity, b.tokens+now.Sub(b.updated).Seconds()*l.perSecond())
	b.updated = now

	d := Decision{Limit: l.quota.Limit}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d, nil
	}
	d.RetryAfter = time.Duration((1 - b.tokens) / l.perSecond() * float64(time.Second))
	return d, nil
}

// Prune drops buckets idle for a full window; they would be full again
func (l *LocalLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := 0
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= l.quota.Window {
			delete(l.buckets, key)
			pruned++
		}
	}
	return pruned
}

// StartPruning prunes idle buckets once per window until ctx is done
func (l *LocalLimiter) StartPruning(ctx context.Context) {
	logger := observability.FromContext(ctx)
	ticker := time.NewTicker(l.quota.Window)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(logger, "rate limiter pruning")
		for {
			select {
			case <-ticker.C:
				if n := l.Prune(); n > 0 {
					logger.WithField("buckets", n).Debug("Pruned idle rate limit buckets")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit limits requests per authenticated user, or per client IP for
// anonymous callers. name labels the limiter in metrics and keys. Backend
// errors fail open.
func RateLimit(name string, limiter Limiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := name + ":ip:" + getClientIP(r)
			if userID := contextkeys.GetUserID(ctx); userID != "" {
				key = name + ":user:" + userID
			}

			d, err := limiter.Allow(ctx, key)
			if err != nil {
				observability.FromContext(ctx).
					WithError(err).
					WithField("limiter", name).
					Warn("Rate limiter unavailable, allowing request")
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				metrics.RecordRateLimited(name)
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				httputil.WriteTooManyRequests(w, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds up so clients never retry early
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func getClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind a proxy
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
