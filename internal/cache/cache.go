package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/identityhub/internal/domain/user"
)

// Profiles is an in-process TTL cache of public profiles keyed by search query.
type Profiles struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
	now func() time.Time
}
type entry struct {
	val user.PublicProfile
	exp time.Time
}

func NewProfiles(ttl time.Duration) *Profiles {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Profiles{
		ttl: ttl,
		m:   make(map[string]entry),
		now: time.Now,
	}
}

func (c *Profiles) Get(_ context.Context, key string) (user.PublicProfile, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return user.PublicProfile{}, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed it
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return user.PublicProfile{}, false
	}

	return e.val, true
}

func (c *Profiles) Set(_ context.Context, key string, val user.PublicProfile) {
	c.mu.Lock()
	c.m[key] = entry{val: val, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Profiles) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
