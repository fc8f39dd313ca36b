// Package ratelimit provides a keyed token-bucket limiter used by the
// RateLimit middleware. Keys are usually client IPs, but any string works.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Default limiter values.
const (
	DefaultRate            = 100
	DefaultCleanupInterval = 1 * time.Minute
	DefaultEntryTTL        = 1 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config configures a Limiter.
type Config struct {
	Rate            float64       // tokens per second
	Burst           int           // maximum bucket capacity
	TrustedProxies  []string      // CIDR ranges (or single IPs) of trusted proxies
	TrustAllProxies bool          // trust forwarding headers from any source
	CleanupInterval time.Duration // how often stale keys are dropped
	EntryTTL        time.Duration // how long a key lives without activity

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Limiter keeps one rate.Limiter per key.
type Limiter struct {
	limit   rate.Limit
	burst   int
	entries map[string]*entry
	mu      sync.RWMutex
	clock   clock.Clock

	trustedProxies  []*net.IPNet
	trustProxy      bool
	cleanupInterval time.Duration
	entryTTL        time.Duration

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a limiter and starts its cleanup goroutine. Call Stop when
// the limiter is no longer needed.
func New(cfg Config) *Limiter {
	rps := cfg.Rate
	if rps <= 0 {
		rps = DefaultRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps * 2)
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	entryTTL := cfg.EntryTTL
	if entryTTL <= 0 {
		entryTTL = DefaultEntryTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	l := &Limiter{
		limit:           rate.Limit(rps),
		burst:           burst,
		entries:         make(map[string]*entry),
		clock:           clk,
		cleanupInterval: cleanupInterval,
		entryTTL:        entryTTL,
		stopCh:          make(chan struct{}),
		stoppedCh:       make(chan struct{}),
	}

	if cfg.TrustAllProxies {
		l.trustProxy = true
	} else {
		for _, cidr := range cfg.TrustedProxies {
			if network := parseNetwork(cidr); network != nil {
				l.trustedProxies = append(l.trustedProxies, network)
				l.trustProxy = true
			}
		}
	}

	go l.cleanup()
	return l
}

func parseNetwork(s string) *net.IPNet {
	if _, network, err := net.ParseCIDR(s); err == nil {
		return network
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	bits := 128
	if ip.To4() != nil {
		bits = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// Allow takes one token for key. It returns whether the request is allowed,
// the tokens left and, when denied, the seconds until a token is available.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, retryAfterSec int64) {
	now := l.clock.Now()
	e := l.get(key, now)

	if e.limiter.AllowN(now, 1) {
		rem := int(math.Floor(e.limiter.TokensAt(now)))
		return true, max(rem, 0), 0
	}

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	retry := int64(math.Ceil(delay.Seconds()))
	if retry < 1 {
		retry = 1
	}
	return false, 0, retry
}

func (l *Limiter) get(key string, now time.Time) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		e, ok = l.entries[key]
		if !ok {
			e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
			l.entries[key] = e
		}
		e.lastSeen = now
		l.mu.Unlock()
		return e
	}
	l.mu.Lock()
	e.lastSeen = now
	l.mu.Unlock()
	return e
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.stoppedCh
}

// Done is closed once the cleanup goroutine has exited.
func (l *Limiter) Done() <-chan struct{} { return l.stoppedCh }

func (l *Limiter) cleanup() {
	ticker := l.clock.Ticker(l.cleanupInterval)
	defer ticker.Stop()
	defer close(l.stoppedCh)

	for {
		select {
		case <-ticker.C:
			l.removeStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) removeStale() {
	cutoff := l.clock.Now().Add(-l.entryTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// ClientIP returns the client address for a request coming from remoteAddr.
// Forwarding headers are honoured only when remoteAddr is a trusted proxy.
func (l *Limiter) ClientIP(remoteAddr string, header http.Header) string {
	remoteIP := hostOnly(remoteAddr)
	if !l.isTrustedProxy(remoteIP) || header == nil {
		return remoteIP
	}

	if xff := header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return remoteIP
}

func (l *Limiter) isTrustedProxy(ip string) bool {
	if !l.trustProxy {
		return false
	}
	if l.trustedProxies == nil {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range l.trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
