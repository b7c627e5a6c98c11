// Package httpcache memoizes idempotent HTTP responses by request
// fingerprint, with LRU eviction at a fixed capacity and TTL expiry.
//
// Caching is opt-in per configuration: only requests whose method is in the
// cacheable-methods set and whose resulting status is in the cacheable-status
// set are ever stored. The cache is an explicitly constructed, explicitly
// owned service; it is safe for concurrent use by download workers.
package httpcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

// fingerprintHeaders are the request headers that distinguish otherwise
// identical calls. Authorization is included so responses personalized to a
// token are never served to another one.
var fingerprintHeaders = []string{"Authorization", "Range", "Accept"}

type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

type entry struct {
	resp       *storedResponse
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a capacity-bounded, TTL-expiring response cache.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache

	ttl      time.Duration
	methods  map[string]struct{}
	statuses map[int]struct{}
	log      logging.Logger
	now      func() time.Time
}

// New builds an empty cache. Eviction removes the least-recently-used entry
// once capacity entries are stored.
func New(capacity int, ttl time.Duration, methods []string, statuses []int, log logging.Logger) *Cache {
	ms := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		ms[m] = struct{}{}
	}
	ss := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		ss[s] = struct{}{}
	}
	return &Cache{
		lru:      &lru.Cache{MaxEntries: capacity},
		ttl:      ttl,
		methods:  ms,
		statuses: ss,
		log:      log,
		now:      time.Now,
	}
}

// FromConfig builds the process-wide cache from the runtime configuration.
func FromConfig(cfg *config.Config, log logging.Logger) *Cache {
	return New(cfg.ClientCacheCapacity, cfg.ClientCacheTTL,
		cfg.ClientCacheableMethods, cfg.ClientCacheableStatusCodes, log)
}

// Fingerprint derives the cache key from method, URL and the relevant
// request headers.
func Fingerprint(req *http.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", req.Method, req.URL.String())
	for _, name := range fingerprintHeaders {
		fmt.Fprintf(h, "%s:%s\n", name, req.Header.Get(name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrFetch returns a live cached response for req, or invokes fetch and
// stores the result if it qualifies. The returned response always carries a
// readable body.
func (c *Cache) GetOrFetch(req *http.Request, fetch func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	if _, ok := c.methods[req.Method]; !ok {
		return fetch(req)
	}

	key := Fingerprint(req)
	if stored, ok := c.lookup(key); ok {
		return stored.toResponse(), nil
	}

	resp, err := fetch(req)
	if err != nil {
		return resp, err
	}

	if _, ok := c.statuses[resp.StatusCode]; !ok {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		// Degrade to the uncached path; the caller still sees the
		// transport failure, not a cache failure.
		return resp, fmt.Errorf("read response body: %w", err)
	}

	stored := &storedResponse{
		status: resp.StatusCode,
		header: resp.Header.Clone(),
		body:   body,
	}
	c.insert(key, stored)

	return stored.toResponse(), nil
}

func (c *Cache) lookup(key string) (*storedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(key))
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if c.now().After(e.expiresAt) {
		c.lru.Remove(lru.Key(key))
		return nil, false
	}
	return e.resp, true
}

func (c *Cache) insert(key string, resp *storedResponse) {
	now := c.now()
	c.mu.Lock()
	c.lru.Add(lru.Key(key), &entry{
		resp:       resp,
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	})
	c.mu.Unlock()
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge clears the cache; called at process teardown.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Clear()
	c.mu.Unlock()
}

func (s *storedResponse) toResponse() *http.Response {
	return &http.Response{
		StatusCode:    s.status,
		Status:        fmt.Sprintf("%d %s", s.status, http.StatusText(s.status)),
		Header:        s.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
	}
}
