package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"hrdash/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimiter struct {
	general *limiter.Limiter
	heavy   *limiter.Limiter
	keyFn   RateLimitKeyFunc
	log     *logrus.Logger
	now     func() time.Time
}

// NewRateLimiter builds the limiter from a formatted rate such as "120-M".
// Heavy routes (bulk import, expiry sweep, uploads) get a quarter of it.
func NewRateLimiter(formatted string, log *logrus.Logger) (*RateLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, errors.Wrapf(err, "parse rate %q", formatted)
	}
	heavyRate := limiter.Rate{Period: rate.Period, Limit: max(rate.Limit/4, 1)}
	return &RateLimiter{
		general: limiter.New(memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "general", CleanUpInterval: time.Minute}), rate),
		heavy:   limiter.New(memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "heavy", CleanUpInterval: time.Minute}), heavyRate),
		keyFn:   clientIPKey,
		log:     log,
		now:     time.Now,
	}, nil
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enforce(w, r, rl.general) {
			return
		}
		if isHeavy(r) && !rl.enforce(w, r, rl.heavy) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) enforce(w http.ResponseWriter, r *http.Request, lim *limiter.Limiter) bool {
	key := rl.keyFn(r)
	state, err := lim.Get(r.Context(), key)
	if err != nil {
		rl.log.WithError(err).Warn("rate limiter lookup failed")
		return true
	}

	resetIn := max(int(time.Unix(state.Reset, 0).Sub(rl.now()).Seconds()), 0)
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(state.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(state.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetIn))

	if state.Reached {
		w.Header().Set("Retry-After", strconv.Itoa(max(resetIn, 1)))
		rl.log.WithFields(logrus.Fields{
			"key":    key,
			"path":   r.URL.Path,
			"method": r.Method,
			"limit":  state.Limit,
		}).Warn("rate limit exceeded")
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}
	return true
}

func isHeavy(r *http.Request) bool {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/upload-bulk"):
		return true
	case strings.HasSuffix(path, "/check-expired"):
		return true
	case r.Method == http.MethodPost && strings.Contains(path, "/upload/"):
		return true
	}
	return false
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if value := strings.TrimSpace(strings.Split(fwd, ",")[0]); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
