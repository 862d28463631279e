package httpx

import (
    "context"
    "net"
    "net/http"
    "sync/atomic"
    "time"

    "golang.org/x/time/rate"
)

// Client is a small wrapper around http.Client with sane defaults.
// Limiter, when set, gates live upstream calls; cache hits are not gated.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
    Limiter   *rate.Limiter

    calls atomic.Int64
}

func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    c := &Client{UserAgent: "onvista-go/1.0"}
    c.HTTP = &http.Client{Timeout: timeout, Transport: &liveTransport{c: c, base: transport}}
    return c
}

// EnableCache stores GET responses under dir and serves repeats from disk
// while they are younger than validity days. Must be called before first use.
func (c *Client) EnableCache(dir string, validityDays int) error {
    cache, err := newCacheTransport(c.HTTP.Transport, dir, validityDays)
    if err != nil {
        return err
    }
    c.HTTP.Transport = cache
    return nil
}

// LiveCalls reports how many requests actually went upstream.
func (c *Client) LiveCalls() int64 { return c.calls.Load() }

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req.WithContext(ctx))
}

// liveTransport sits below the cache: it only sees requests that go upstream.
type liveTransport struct {
    c    *Client
    base http.RoundTripper
}

func (t *liveTransport) RoundTrip(req *http.Request) (*http.Response, error) {
    if lim := t.c.Limiter; lim != nil {
        if err := lim.Wait(req.Context()); err != nil {
            return nil, err
        }
    }
    t.c.calls.Add(1)
    return t.base.RoundTrip(req)
}
