package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fotoljay/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateRule is a fixed window budget for the requests it matches. An empty
// PathPrefix or Method matches everything. Rules with no positive Limit are
// skipped.
type RateRule struct {
	Name       string
	Method     string
	PathPrefix string
	Limit      int
	Window     time.Duration
}

func (rule RateRule) matches(r *http.Request) bool {
	if rule.Method != "" && rule.Method != r.Method {
		return false
	}
	return strings.HasPrefix(r.URL.Path, rule.PathPrefix)
}

// RateLimiter counts requests in Redis. Each request is charged against the
// first rule that matches it.
type RateLimiter struct {
	client  redis.Cmdable
	prefix  string
	rules   []RateRule
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRateLimiter(client redis.Cmdable, prefix string, m *metrics.Metrics, logger *zap.Logger, rules ...RateRule) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, rules: rules, metrics: m, logger: logger}
}

// caller identifies the client: the user when authenticated, else the remote IP
func caller(r *http.Request) string {
	if actor, ok := GetActor(r.Context()); ok {
		return "user:" + actor.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// hit charges one request to key and returns the count in the current window
// together with the time left in it.
func (l *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	ttl := pttl.Val()
	if ttl < 0 {
		// first hit of the window
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return incr.Val(), ttl, nil
}

// Middleware enforces the rules. Redis failures let the request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rule *RateRule
		for i := range l.rules {
			if l.rules[i].Limit > 0 && l.rules[i].matches(r) {
				rule = &l.rules[i]
				break
			}
		}
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		who := caller(r)
		key := l.prefix + ":" + rule.Name + ":" + who
		count, ttl, err := l.hit(r.Context(), key, rule.Window)
		if err != nil {
			l.logger.Error("Rate limit check failed", zap.String("key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(rule.Limit) {
			l.metrics.RateLimited(rule.Name)
			l.logger.Warn("Rate limit exceeded",
				zap.String("rule", rule.Name),
				zap.String("caller", who),
				zap.Int64("count", count),
			)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))
			RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(rule.Limit)-count, 10))
		next.ServeHTTP(w, r)
	})
}
