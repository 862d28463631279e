// Package onvista fetches instrument metadata and historical OHLC series
// from the onvista.de financial website, either through its unofficial JSON
// API or by scraping the website pages the way a browser sees them.
package onvista

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"onvista/internal/httpx"
	"onvista/metastore"
)

const (
	defaultAPIURL     = "https://api.onvista.de/api/v1"
	defaultWebsiteURL = "https://www.onvista.de"
	defaultChartURL   = "https://chartdata.onvista.de"
	defaultExchange   = "GER"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=onvista_test -destination=mock_http_client_test.go -source=onvista.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for onvista.de. It is safe for concurrent use.
type Client struct {
	// apiURL is the base URL of the JSON API.
	apiURL string
	// websiteURL is the base URL of the scraped website pages.
	websiteURL string
	// chartURL is the base URL of the legacy chartdata endpoint.
	chartURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// transport is the built-in transport, nil when a custom client is set.
	transport *httpx.Client
	// store persists resolved instruments, nil disables persistence.
	store metastore.Store

	defaultExchange string
	selectors       Selectors
	legacy          bool
	log             *slog.Logger

	timeout       time.Duration
	cacheDir      string
	cacheValidity int
	throttleRPS   float64
	throttleBurst int

	src source
	sf  singleflight.Group
}

// ClientOption is a configuration option for the onvista client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The response cache and throttle
// options only work with the built-in transport.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithUserAgent sets the User-Agent sent with each request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.header.Set("User-Agent", ua)
	}
}

// WithAPIURL sets the base URL for the JSON API.
func WithAPIURL(u string) ClientOption {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(u, "/")
	}
}

// WithWebsiteURL sets the base URL for the website pages.
func WithWebsiteURL(u string) ClientOption {
	return func(c *Client) {
		c.websiteURL = strings.TrimRight(u, "/")
	}
}

// WithChartURL sets the base URL for the legacy chartdata endpoint.
func WithChartURL(u string) ClientOption {
	return func(c *Client) {
		c.chartURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the request timeout of the built-in transport.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithResponseCache stores HTTP responses under dir and serves repeated
// requests from disk while entries are younger than validity days. Strongly
// recommended to keep traffic away from the site.
func WithResponseCache(dir string, validityDays int) ClientOption {
	return func(c *Client) {
		c.cacheDir = dir
		c.cacheValidity = validityDays
	}
}

// WithThrottle limits live upstream requests to rps with the given burst.
func WithThrottle(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.throttleRPS = rps
		c.throttleBurst = burst
	}
}

// WithMetaStore persists resolved instruments to s.
func WithMetaStore(s metastore.Store) ClientOption {
	return func(c *Client) {
		c.store = s
	}
}

// WithDefaultExchange sets the exchange code used to pick a notation when
// the caller does not name one.
func WithDefaultExchange(code string) ClientOption {
	return func(c *Client) {
		c.defaultExchange = code
	}
}

// WithLegacyScraper switches from the JSON API to scraping the website pages.
func WithLegacyScraper() ClientOption {
	return func(c *Client) {
		c.legacy = true
	}
}

// WithSelectors overrides the XPath selectors of the website scraper.
func WithSelectors(sel Selectors) ClientOption {
	return func(c *Client) {
		c.selectors = sel
	}
}

// WithLogger sets the logger. The client is silent by default.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a new onvista client.
func New(options ...ClientOption) (*Client, error) {
	c := &Client{
		apiURL:          defaultAPIURL,
		websiteURL:      defaultWebsiteURL,
		chartURL:        defaultChartURL,
		header:          http.Header{},
		defaultExchange: defaultExchange,
		selectors:       DefaultSelectors(),
		log:             slog.New(slog.DiscardHandler),
		timeout:         10 * time.Second,
		cacheValidity:   1,
	}
	for _, option := range options {
		option(c)
	}

	if c.httpClient == nil {
		t := httpx.New(c.timeout)
		if c.throttleRPS > 0 {
			burst := c.throttleBurst
			if burst <= 0 {
				burst = 1
			}
			t.Limiter = rate.NewLimiter(rate.Limit(c.throttleRPS), burst)
		}
		if c.cacheDir != "" {
			if err := t.EnableCache(c.cacheDir, c.cacheValidity); err != nil {
				return nil, fmt.Errorf("response cache: %w", err)
			}
		}
		c.transport = t
		c.httpClient = transportClient{t}
	} else if c.cacheDir != "" || c.throttleRPS > 0 {
		return nil, fmt.Errorf("onvista: response cache and throttle require the built-in transport")
	}

	if c.legacy {
		c.src = &legacySource{c: c}
	} else {
		c.src = &restSource{c: c}
	}
	return c, nil
}

// Search returns instruments matching key, such as a name fragment, symbol
// or ISIN. A search without hits returns an empty slice, not an error.
// With the website scraper only ISINs can be looked up.
func (c *Client) Search(ctx context.Context, key string) ([]Instrument, error) {
	found, err := c.src.search(ctx, key)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []Instrument{}
	}
	c.log.DebugContext(ctx, "search done", "key", key, "hits", len(found))
	return found, nil
}

// Resolve returns the full record for an ISIN. The metadata store is
// consulted first; a miss fetches from onvista and persists the result.
// Concurrent resolves of the same ISIN share one upstream request.
func (c *Client) Resolve(ctx context.Context, isin string) (*Instrument, error) {
	isin = strings.ToUpper(strings.TrimSpace(isin))
	if ins, ok := c.fromStore(ctx, isin); ok {
		c.log.DebugContext(ctx, "resolve served from store", "isin", isin)
		return ins, nil
	}
	v, err, _ := c.sf.Do(isin, func() (any, error) {
		// Double check: another flight may have stored it meanwhile.
		if ins, ok := c.fromStore(ctx, isin); ok {
			return ins, nil
		}
		return c.fetchAndStore(ctx, isin)
	})
	if err != nil {
		return nil, err
	}
	ins := *v.(*Instrument)
	return &ins, nil
}

// Refresh fetches a fresh record from onvista regardless of the store and
// persists it.
func (c *Client) Refresh(ctx context.Context, isin string) (*Instrument, error) {
	return c.fetchAndStore(ctx, strings.ToUpper(strings.TrimSpace(isin)))
}

// Quotes fetches the OHLC series for an instrument, sorted by timestamp,
// oldest first. An unset resolution means month. Quote data is always
// fetched live; only the HTTP response cache, when enabled, short-circuits
// repeated identical requests.
func (c *Client) Quotes(ctx context.Context, ins Instrument, req QuoteRequest) ([]Quote, error) {
	if req.Resolution == "" {
		req.Resolution = ResolutionMonth
	}
	qs, err := c.src.quotes(ctx, ins, req)
	if err != nil {
		return nil, err
	}
	c.log.DebugContext(ctx, "quotes fetched", "isin", ins.ISIN, "resolution", string(req.Resolution), "n", len(qs))
	return qs, nil
}

// Stored lists every instrument in the metadata store.
func (c *Client) Stored(ctx context.Context) ([]Instrument, error) {
	if c.store == nil {
		return nil, nil
	}
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Instrument, 0, len(keys))
	for _, k := range keys {
		b, err := c.store.Get(ctx, k)
		if err != nil {
			if errors.Is(err, metastore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var ins Instrument
		if err := json.Unmarshal(b, &ins); err != nil {
			return nil, &ParseError{What: "stored instrument " + k, Err: err}
		}
		out = append(out, ins)
	}
	return out, nil
}

// Forget removes an instrument from the metadata store.
func (c *Client) Forget(ctx context.Context, isin string) error {
	if c.store == nil {
		return nil
	}
	return c.store.Delete(ctx, strings.ToUpper(strings.TrimSpace(isin)))
}

// LiveCalls reports upstream round trips made through the built-in
// transport. Responses served from the cache do not count.
func (c *Client) LiveCalls() int64 {
	if c.transport == nil {
		return 0
	}
	return c.transport.LiveCalls()
}

func (c *Client) fromStore(ctx context.Context, isin string) (*Instrument, bool) {
	if c.store == nil {
		return nil, false
	}
	b, err := c.store.Get(ctx, isin)
	if err != nil {
		return nil, false
	}
	var ins Instrument
	if err := json.Unmarshal(b, &ins); err != nil {
		// A broken record is treated as a miss and overwritten on refetch.
		c.log.DebugContext(ctx, "stored instrument unreadable", "isin", isin, "err", err)
		return nil, false
	}
	return &ins, true
}

func (c *Client) fetchAndStore(ctx context.Context, isin string) (*Instrument, error) {
	ins, err := c.src.resolve(ctx, Instrument{ISIN: isin})
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		b, err := json.Marshal(ins)
		if err != nil {
			return nil, fmt.Errorf("encoding instrument: %w", err)
		}
		if err := c.store.Put(ctx, ins.ISIN, b); err != nil {
			c.log.WarnContext(ctx, "persisting instrument failed", "isin", ins.ISIN, "err", err)
		}
	}
	c.log.DebugContext(ctx, "instrument resolved", "isin", ins.ISIN, "uid", ins.UID)
	return ins, nil
}

// pickNotation selects the venue for a quote request: the explicit one, the
// instrument's venue on the default exchange, or its first venue.
func (c *Client) pickNotation(ins Instrument, req QuoteRequest) *Notation {
	if req.Notation != nil {
		return req.Notation
	}
	if n, ok := ins.NotationByExchange(c.defaultExchange); ok {
		return &n
	}
	if len(ins.Notations) > 0 {
		n := ins.Notations[0]
		return &n
	}
	return nil
}

// get performs a GET against url with the configured headers and returns the
// body. Requests are not retried; errors carry the upstream status.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, ErrNotFound

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, &StatusError{Code: res.StatusCode, URL: url, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// transportClient adapts the built-in transport to the HTTPClient interface.
type transportClient struct {
	t *httpx.Client
}

func (a transportClient) Do(req *http.Request) (*http.Response, error) {
	return a.t.Do(req.Context(), req)
}
