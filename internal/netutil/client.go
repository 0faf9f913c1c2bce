// Package netutil builds the shared HTTP client used by the gateway and
// CDN fetches: pooled connections, the timeouts of spec.md §5, HTTPS_PROXY
// support, and optional binding to a specific local interface for --bind.
package netutil

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds connection-pool tuning knobs for the shared client.
type ClientConfig struct {
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	// BindAddr, if non-nil, is the local address dialed from — spec.md §6's --bind.
	BindAddr net.IP
}

// DefaultClientConfig returns pooling settings tuned for a small number of
// long-lived gateway/CDN connections rather than a large download fleet.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:               5 * time.Second, // spec.md §4.4: HTTP read timeout default 5s
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient builds an *http.Client honoring cfg. Proxying via HTTPS_PROXY is
// picked up automatically by http.ProxyFromEnvironment.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if cfg.BindAddr != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: cfg.BindAddr}
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
	}

	return &http.Client{
		Timeout:   30 * time.Second, // overall request deadline, body included; cfg.Timeout is not applied here
		Transport: transport,
	}
}
