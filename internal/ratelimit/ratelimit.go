// Package ratelimit enforces the policy's invocation budgets. The slot is
// consumed at admission, before any connector call, so a hung downstream
// cannot hold budget hostage.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a check-and-increment admission gate. The in-memory
// implementation below serves a single instance; a shared-store
// implementation satisfies the same interface for multi-instance
// deployments.
type Limiter interface {
	// AllowTenant consumes one slot from the tenant's per-minute budget.
	// perMinute <= 0 means unlimited.
	AllowTenant(tenantID string, perMinute int) bool

	// AllowRun consumes one slot from the tenant+run budget.
	// maxCalls <= 0 means unlimited.
	AllowRun(tenantID, runID string, maxCalls int) bool
}

const (
	runEntryTTL   = time.Hour
	runPruneAbove = 10_000
)

type tenantBucket struct {
	limiter   *rate.Limiter
	perMinute int
}

type runCounter struct {
	count    int
	lastSeen time.Time
}

// MemoryLimiter is the single-instance Limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	tenants map[string]*tenantBucket
	runs    map[string]*runCounter
	now     func() time.Time
}

// NewMemoryLimiter creates an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		tenants: make(map[string]*tenantBucket),
		runs:    make(map[string]*runCounter),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) AllowTenant(tenantID string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	bucket, ok := l.tenants[tenantID]
	if !ok || bucket.perMinute != perMinute {
		// Rebuilt whenever the policy's limit changes.
		bucket = &tenantBucket{
			limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
			perMinute: perMinute,
		}
		l.tenants[tenantID] = bucket
	}
	l.mu.Unlock()
	return bucket.limiter.Allow()
}

func (l *MemoryLimiter) AllowRun(tenantID, runID string, maxCalls int) bool {
	if maxCalls <= 0 {
		return true
	}
	key := tenantID + ":" + runID
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.runs) > runPruneAbove {
		l.pruneLocked(now)
	}

	c, ok := l.runs[key]
	if !ok {
		c = &runCounter{}
		l.runs[key] = c
	}
	c.lastSeen = now
	if c.count >= maxCalls {
		return false
	}
	c.count++
	return true
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for key, c := range l.runs {
		if now.Sub(c.lastSeen) > runEntryTTL {
			delete(l.runs, key)
		}
	}
}
