// Package httpc provides the shared HTTP client used for model API calls.
// Use it instead of http.DefaultClient so timeouts are always set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts. DefaultTimeout covers image generation, the slowest
// model call.
const (
	DefaultTimeout         = 90 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client is the shared client.
var Client = NewClient(DefaultTimeout)

// NewClient creates a client with the given overall timeout. Zero means
// no timeout, for callers that bound requests with a context instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewTransport returns a transport with bounded dial, TLS and idle times.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
