package client

import (
	"fmt"
	"time"
)

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout sets the timeout of a single HTTP attempt.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithRetries bounds the retries of idempotent calls. Zero disables them.
func WithRetries(n int, initial time.Duration) Option {
	return func(c *Client) error {
		if n < 0 || initial <= 0 {
			return fmt.Errorf("invalid retry settings: n=%d initial=%v", n, initial)
		}
		c.maxRetries = uint64(n)
		c.initialBackoff = initial
		return nil
	}
}

// WithDebugLogging logs every request and response at debug level.
// Dumps include bodies and cookies.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		if enabled {
			c.http.Transport = &debugTransport{base: c.http.Transport}
		}
		return nil
	}
}
