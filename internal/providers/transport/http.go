// Package transport holds the HTTP plumbing shared by the REST provider
// clients: client construction, body decoding, SSE framing and stream guards.
package transport

import (
	"compress/gzip"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	moderr "github.com/lizzyg/gemrouter/errors"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultKeepAlive             = 30 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 60 * time.Second

	// AcceptEncoding is sent by clients that decode bodies with DecodeBody.
	AcceptEncoding = "gzip, br"

	maxErrorBody = 64 << 10
)

// NewHTTPClient builds the client used by provider adapters. A non-empty proxy
// URL overrides the proxy environment variables. There is no overall timeout;
// streams can run for minutes, so callers bound requests with their context.
func NewHTTPClient(proxy string) (*http.Client, error) {
	proxyFn := http.ProxyFromEnvironment
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxyFn = http.ProxyURL(u)
	}
	transport := &http.Transport{
		Proxy:                 proxyFn,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}, nil
}

// DecodeBody wraps resp.Body according to its Content-Encoding. Closing the
// result closes the underlying body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return readCloser{Reader: gz, closers: []io.Closer{gz, resp.Body}}, nil
	case "br":
		return readCloser{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StatusError reads the (possibly compressed) body of a non-2xx response and
// returns it as an UpstreamError. It closes resp.Body.
func StatusError(provider string, resp *http.Response) error {
	defer resp.Body.Close()
	var body []byte
	if r, err := DecodeBody(resp); err == nil {
		body, _ = io.ReadAll(io.LimitReader(r, maxErrorBody))
	}
	return moderr.NewUpstreamError(provider, resp.StatusCode, resp.Status, strings.TrimSpace(string(body)))
}

// IsSuccess reports a 2xx status.
func IsSuccess(status int) bool { return status >= 200 && status < 300 }
