// Package httpclient builds retrying HTTP clients for outbound calls.
package httpclient

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type config struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
}

// Option configures the client built by New
type Option func(*config)

// New returns a retryablehttp.Client. Defaults are a 10s request timeout and
// two retries waiting between 500ms and 5s.
func New(opts ...Option) *retryablehttp.Client {
	cfg := config{
		timeout:      10 * time.Second,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		retryMax:     2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax
	return client
}

// WithTimeout bounds a single request attempt
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryWait sets the backoff bounds between attempts
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = minWait
		c.retryWaitMax = maxWait
	}
}

// WithRetryMax sets the number of retries after the first attempt
func WithRetryMax(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}
