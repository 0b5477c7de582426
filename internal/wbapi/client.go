package wbapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/retail-lens/wb-crawler/internal/proxy"
)

type proxyKey struct{}

// Client performs proxied requests against the marketplace API. Every
// request carries a proxy chosen at call time; the shared transport reads it
// from the request context, so one connection pool serves the whole rotation.
type Client struct {
	http    *http.Client
	reg     *proxy.Registry
	limiter *rate.Limiter
}

// ClientOptions configures the API client.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = 60
	}
	return o
}

// NewClient creates a Client over the given proxy registry.
func NewClient(reg *proxy.Registry, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			d, ok := req.Context().Value(proxyKey{}).(proxy.Descriptor)
			if !ok {
				return nil, eris.New("wbapi: request without a proxy lease")
			}
			return d.URL(), nil
		},
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		TLSHandshakeTimeout: 10 * time.Second,
		// Transport-level fan-out ceiling, above the per-catalog task limit.
		MaxConnsPerHost:     60,
		MaxIdleConnsPerHost: 30,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		reg:     reg,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

// Lease picks a fresh random proxy, blocking while the reachable set is
// empty.
func (c *Client) Lease(ctx context.Context) (proxy.Descriptor, error) {
	return c.reg.GetRandom(ctx)
}

// Disable removes the leased proxy from rotation for the configured
// cooldown.
func (c *Client) Disable(d proxy.Descriptor) {
	c.reg.Disable(d)
}

// Do issues one proxied request. The caller owns the response body.
func (c *Client) Do(ctx context.Context, d proxy.Descriptor, method, rawURL string, headers http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wbapi: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(
		context.WithValue(ctx, proxyKey{}, d),
		method, rawURL, nil,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "wbapi: create request %s", rawURL)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "wbapi: %s %s via %s", method, rawURL, d.Addr())
	}
	return resp, nil
}

// GetJSONVia fetches rawURL through the given proxy and decodes the body
// into out when the status is 200. Other statuses return ErrStatus.
func (c *Client) GetJSONVia(ctx context.Context, d proxy.Descriptor, rawURL string, headers http.Header, out any) error {
	resp, err := c.Do(ctx, d, http.MethodGet, rawURL, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "wbapi: decode %s", rawURL)
	}
	return nil
}

// GetJSON is GetJSONVia with an internally leased proxy.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers http.Header, out any) error {
	d, err := c.Lease(ctx)
	if err != nil {
		return err
	}
	return c.GetJSONVia(ctx, d, rawURL, headers, out)
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wbapi: status %d from %s", e.StatusCode, e.URL)
}
