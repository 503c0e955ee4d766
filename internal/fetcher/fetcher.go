// Package fetcher issues outbound product page requests with a rotating
// user-agent and proxy identity.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

// directKey indexes the client used when no proxy is selected.
const directKey = ""

// Fetcher performs single GET requests. It never retries.
type Fetcher struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*http.Client

	pick func(n int) int
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	return &Fetcher{
		cfg:     cfg.WithDefaults(),
		clients: make(map[string]*http.Client),
		pick:    rand.IntN,
	}
}

// Fetch GETs rawURL using one user agent and one proxy chosen uniformly at
// random from opts. Every failure is returned as a *FetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*domain.RawPage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := f.clientFor(f.choose(opts.Proxies, directKey))
	if err != nil {
		return nil, &FetchFailure{URL: rawURL, Reason: ReasonInvalidProxy, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &FetchFailure{URL: rawURL, Reason: ReasonInvalidRequest, Err: err}
	}
	req.Header.Set("User-Agent", f.choose(opts.UserAgents, DefaultUserAgent))
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Language", DefaultAcceptLanguage)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchFailure{URL: rawURL, Reason: classify(ctx, err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchFailure{URL: rawURL, StatusCode: resp.StatusCode, Reason: ReasonHTTPStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchFailure{URL: rawURL, StatusCode: resp.StatusCode, Reason: classifyRead(ctx, err), Err: err}
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, &FetchFailure{
			URL:    rawURL,
			Reason: ReasonBodyTooLarge,
			Err:    fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes),
		}
	}

	return &domain.RawPage{URL: rawURL, StatusCode: resp.StatusCode, Body: body}, nil
}

func (f *Fetcher) choose(pool []string, fallback string) string {
	if len(pool) == 0 {
		return fallback
	}
	return pool[f.pick(len(pool))]
}

// clientFor returns a cached client whose transport routes through proxy.
func (f *Fetcher) clientFor(proxy string) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[proxy]; ok {
		return c, nil
	}

	transport := &http.Transport{
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   f.cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}

	if proxy != directKey {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	c := &http.Client{Transport: transport}
	f.clients[proxy] = c
	return c, nil
}

// Close releases idle connections held by every cached transport.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.clients {
		c.CloseIdleConnections()
	}
}

func classify(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}

func classifyRead(ctx context.Context, err error) string {
	if classify(ctx, err) == ReasonTimeout {
		return ReasonTimeout
	}
	return ReasonReadBody
}
