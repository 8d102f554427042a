// Package cache memoizes final answers per normalized query fingerprint
// with a TTL and an LRU capacity bound.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

type entry struct {
	fingerprint string
	answer      *domain.Answer
	expiresAt   time.Time
}

// ResponseCache evicts least-recently-used entries past capacity and treats
// TTL-expired entries exactly like misses. Safe for concurrent use.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	byKey    map[string]*list.Element
	now      func() time.Time
}

func New(capacity int, ttl time.Duration) *ResponseCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		byKey:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Tests use it to step time.
func (c *ResponseCache) WithClock(now func() time.Time) *ResponseCache {
	c.now = now
	return c
}

func (c *ResponseCache) Get(fingerprint string) (*domain.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.byKey[fingerprint]
	if !ok {
		return nil, false
	}
	cached := element.Value.(*entry)
	if !c.now().Before(cached.expiresAt) {
		c.order.Remove(element)
		delete(c.byKey, fingerprint)
		return nil, false
	}
	c.order.MoveToFront(element)
	return cached.answer, true
}

func (c *ResponseCache) Put(fingerprint string, answer *domain.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if element, ok := c.byKey[fingerprint]; ok {
		cached := element.Value.(*entry)
		cached.answer = answer
		cached.expiresAt = expiresAt
		c.order.MoveToFront(element)
		return
	}

	c.byKey[fingerprint] = c.order.PushFront(&entry{
		fingerprint: fingerprint,
		answer:      answer,
		expiresAt:   expiresAt,
	})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.byKey, oldest.Value.(*entry).fingerprint)
	}
}

// Len reports the number of live entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
