// Package ratelimit provides per-caller token bucket rate limiting. Calls
// that move funds (POST/PUT/PATCH/DELETE) draw from a smaller bucket than
// reads.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/p2pescrow/internal/auth"
)

// Class separates read traffic from state-changing traffic.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// RejectedTotal counts 429 responses by class.
var RejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pescrow",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected by the rate limiter.",
	},
	[]string{"class"},
)

func init() {
	prometheus.MustRegister(RejectedTotal)
}

// Config configures rate limiting
type Config struct {
	ReadRPM  int // sustained reads per caller per minute
	WriteRPM int // sustained writes per caller per minute
	Burst    int // bucket capacity for both classes
	// IdleTTL drops buckets that have not been touched for this long.
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the limits used when RATE_LIMIT_RPM is unset.
func DefaultConfig() Config {
	return Config{
		ReadRPM:         120,
		WriteRPM:        30,
		Burst:           20,
		IdleTTL:         2 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// FromRPM derives a config from a single read budget. Writes get a quarter.
func FromRPM(rpm int) Config {
	cfg := DefaultConfig()
	if rpm > 0 {
		cfg.ReadRPM = rpm
		cfg.WriteRPM = max(rpm/4, 1)
	}
	return cfg
}

// Limiter tracks token buckets by class and caller.
type Limiter struct {
	cfg      Config
	now      func() time.Time
	mu       sync.Mutex
	buckets  map[string]*bucket
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

// New creates a limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	l := newLimiter(cfg, time.Now)
	go l.cleanupLoop()
	return l
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		now:     now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTTL)
	n := 0
	for key, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) rate(class Class) float64 {
	if class == ClassWrite {
		return float64(l.cfg.WriteRPM) / 60
	}
	return float64(l.cfg.ReadRPM) / 60
}

// Allow takes one token from caller's bucket for class. When the bucket is
// empty it returns false and how long until a token is available.
func (l *Limiter) Allow(class Class, caller string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := string(class) + "|" + caller
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), last: now}
		l.buckets[key] = b
	}

	perSecond := l.rate(class)
	b.tokens = math.Min(float64(l.cfg.Burst), b.tokens+now.Sub(b.last).Seconds()*perSecond)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if perSecond <= 0 {
		return false, time.Minute
	}
	wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return false, wait
}

// ClassOf maps an HTTP method to its bucket class.
func ClassOf(method string) Class {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Middleware limits by X-User-ID when the gateway forwarded one, else by
// client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := "ip:" + c.ClientIP()
		if userID := c.GetHeader(auth.HeaderUserID); userID != "" {
			caller = "user:" + userID
		}

		class := ClassOf(c.Request.Method)
		ok, wait := l.Allow(class, caller)
		if !ok {
			RejectedTotal.WithLabelValues(string(class)).Inc()
			retryAfter := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
