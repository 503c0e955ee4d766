package fetcher

import "time"

// Default identity and limits used when the caller supplies none.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	DefaultAcceptLanguage = "en-US,en;q=0.5"

	defaultTimeout               = 60 * time.Second
	defaultMaxBodyBytes          = 10 * 1024 * 1024 // 10 MB
	defaultMaxIdleConns          = 100
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
)

// Config holds process-wide fetcher settings.
type Config struct {
	// Timeout bounds a single request when Options.Timeout is zero.
	Timeout time.Duration
	// MaxBodyBytes caps the response body; larger pages are a FetchFailure.
	MaxBodyBytes int64
	// MaxIdleConnsPerHost is applied to every per-proxy transport.
	MaxIdleConnsPerHost int
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	return c
}

// Options are the per-call identity pools and timeout.
type Options struct {
	UserAgents []string
	Proxies    []string
	Timeout    time.Duration
}
