package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "shelfwatch/pkg/errors"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"
)

const StationHeader = "X-Station-ID"

type StationExtractor func(r *http.Request) string

// StationRateLimiter is a sliding-window limiter keyed by scan station.
type StationRateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor StationExtractor
	log       *logger.Logger
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewStationRateLimiter(limit int, window time.Duration, extractor StationExtractor, log *logger.Logger) *StationRateLimiter {
	if extractor == nil {
		extractor = DefaultStationExtractor
	}
	limiter := &StationRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *StationRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *StationRateLimiter) evictIdle() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for station, timestamps := range rl.requests {
		if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) >= rl.window {
			delete(rl.requests, station)
		}
	}
}

func (rl *StationRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow records a request for station and reports whether it fits the
// window. When it does not, the second value is the wait until the oldest
// request leaves the window.
func (rl *StationRateLimiter) Allow(station string) (bool, time.Duration) {
	if station == "" || rl.limit <= 0 {
		return true, 0
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[station]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[station] = valid
		return false, rl.window - now.Sub(valid[0])
	}

	rl.requests[station] = append(valid, now)
	return true, 0
}

func StationRateLimit(limiter *StationRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			station := limiter.extractor(r)

			allowed, retryAfter := limiter.Allow(station)
			if !allowed {
				rejectRateLimited(w, limiter.log, r, station, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, station string, retryAfter time.Duration) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestIDFromContext(r.Context()),
		"station", station,
		"path", r.URL.Path,
	)

	appErr := apperrors.PolicyBlocked("Rate limit exceeded", retryAfter)
	w.Header().Set("Retry-After", strconv.FormatInt(apperrors.RemainingSeconds(retryAfter), 10))
	if err := httputil.WriteError(w, appErr); err != nil {
		log.Error("failed to write error response", "middleware", "StationRateLimit", "operation", "WriteError", "error", err)
	}
}

// DefaultStationExtractor keys on the X-Station-ID header and falls back to
// the client IP.
func DefaultStationExtractor(r *http.Request) string {
	if station := r.Header.Get(StationHeader); station != "" {
		return station
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
