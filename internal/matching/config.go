package matching

import "strings"

// Config tunes kernel behaviour that has varied across toolkit
// releases.
type Config struct {
	// SingleValueHeaders are header names whose values are never split
	// on commas. Matching is case-insensitive.
	SingleValueHeaders []string
}

// DefaultConfig returns the kernel defaults. The single-value header
// list covers the date-bearing headers plus Set-Cookie and User-Agent.
func DefaultConfig() *Config {
	return &Config{
		SingleValueHeaders: []string{
			"Date",
			"Last-Modified",
			"Expires",
			"If-Modified-Since",
			"If-Unmodified-Since",
			"Retry-After",
			"Set-Cookie",
			"User-Agent",
		},
	}
}

func (c *Config) isSingleValueHeader(name string) bool {
	for _, h := range c.SingleValueHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
