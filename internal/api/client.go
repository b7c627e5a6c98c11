// Package api implements the HTTP clients for the backend services: the
// well-known-value service for discovery, the work package service for
// work-order tokens and the download service for metadata, envelopes and
// access URLs.
//
// All outbound calls go through the shared retry engine; idempotent metadata
// calls are additionally memoized in the response cache.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/genofetch/internal/httpcache"
	"github.com/dmitrijs2005/genofetch/internal/logging"
	"github.com/dmitrijs2005/genofetch/internal/retry"
)

// defaultRequestTimeout bounds a whole request including the body; it must
// leave room for a full part download on a slow link.
const defaultRequestTimeout = 5 * time.Minute

// Presigner converts s3:// access URLs into plain HTTPS URLs that download
// workers can GET directly.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string) (string, error)
}

// Client issues requests against the backend services.
type Client struct {
	httpc     *http.Client
	retrier   *retry.Engine
	cache     *httpcache.Cache
	presigner Presigner
	log       logging.Logger
}

// NewClient wires the HTTP transport to the retry engine and response cache.
// cache may be nil to disable memoization.
func NewClient(httpc *http.Client, retrier *retry.Engine, cache *httpcache.Cache, log logging.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{httpc: httpc, retrier: retrier, cache: cache, log: log}
}

// SetPresigner attaches the presigner used for s3:// access URLs.
func (c *Client) SetPresigner(p Presigner) { c.presigner = p }

// Do issues a request through the retry engine, bypassing the cache. Each
// attempt re-clones the request so body-less methods can be reissued safely.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.retrier.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		return c.httpc.Do(req.Clone(ctx))
	})
}

// doCached routes the request through the response cache; misses fall through
// to the retried transport.
func (c *Client) doCached(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.cache == nil {
		return c.Do(ctx, req)
	}
	return c.cache.GetOrFetch(req, func(r *http.Request) (*http.Response, error) {
		return c.Do(ctx, r)
	})
}

// ResolveAccessURL turns an access URL from a metadata response into a
// directly fetchable URL. http(s) URLs pass through unchanged; s3:// URLs
// are presigned.
func (c *Client) ResolveAccessURL(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse access url: %w", err)
	}
	if u.Scheme != "s3" {
		return raw, nil
	}
	if c.presigner == nil {
		return "", fmt.Errorf("access url %s requires an object-store presigner", raw)
	}
	return c.presigner.PresignGet(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
}

func badStatus(resp *http.Response) error {
	return fmt.Errorf("unexpected response %s", resp.Status)
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
