package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiters hold one token bucket per registry host. A pass probes
// every service in turn, and many services usually share a registry,
// so without this a large swarm would burst its registry's request
// quota.
//
// A round tripper obtained from RoundTripper halves the host's limit
// (at most once) when it sees `HTTP 429 Too Many Requests`; call
// Recover after an uneventful request to raise it again towards RPS.
type RateLimiters struct {
	RPS     float64
	Burst   int
	Logger  log.Logger
	perHost map[string]*rate.Limiter
	mu      sync.Mutex
}

func (limiters *RateLimiters) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}
	if limit > limiters.RPS {
		return limiters.RPS
	}
	return limit
}

// limiterFor must be called with mu held.
func (limiters *RateLimiters) limiterFor(host string) *rate.Limiter {
	if limiters.perHost == nil {
		limiters.perHost = map[string]*rate.Limiter{}
	}
	rl, ok := limiters.perHost[host]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(limiters.RPS), limiters.Burst)
		limiters.perHost[host] = rl
	}
	return rl
}

func (limiters *RateLimiters) scale(host string, by float64, msg string) {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()

	limiter := limiters.limiterFor(host)
	oldLimit := float64(limiter.Limit())
	newLimit := limiters.clip(oldLimit * by)
	if oldLimit != newLimit && limiters.Logger != nil {
		limiters.Logger.Log("info", msg, "host", host, "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

func (limiters *RateLimiters) backOff(host string) {
	limiters.scale(host, 1/backOffBy, "reducing rate limit")
}

// Recover bumps the limit for host back up after a successful use.
func (limiters *RateLimiters) Recover(host string) {
	limiters.scale(host, recoverBy, "increasing rate limit")
}

// Limit reports the current limit for host, in requests per second.
func (limiters *RateLimiters) Limit(host string) float64 {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()
	return float64(limiters.limiterFor(host).Limit())
}

// RoundTripper wraps rt so that requests to host wait for the host's
// limiter.
func (limiters *RateLimiters) RoundTripper(rt http.RoundTripper, host string) http.RoundTripper {
	limiters.mu.Lock()
	rl := limiters.limiterFor(host)
	limiters.mu.Unlock()

	var reduceOnce sync.Once
	return &roundTripRateLimiter{
		rl: rl,
		tx: rt,
		slowDown: func() {
			reduceOnce.Do(func() { limiters.backOff(host) })
		},
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait gives up early if the request's deadline cannot be met.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.slowDown()
	}
	return resp, err
}
