// Package api is the client for the farm management REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenProvider supplies the bearer token for authenticated requests. An empty token sends none.
type TokenProvider interface {
	CurrentToken() string
}

type TokenProviderFunc func() string

func (f TokenProviderFunc) CurrentToken() string {
	return f()
}

type Option func(c *Client) error

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.hc = client
		return nil
	}
}

func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) error {
		c.tokens = p
		return nil
	}
}

// WithHealthURL sets the absolute URL of the health endpoint. It defaults to the API root.
func WithHealthURL(raw string) Option {
	return func(c *Client) error {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrap(err, "[WithHealthURL] parse")
		}
		c.healthURL = u
		return nil
	}
}

// WithRetries sets how many times a failed GET is retried.
func WithRetries(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			n = 0
		}
		c.retries = n
		return nil
	}
}

// WithUnauthorizedHook sets fn to run when an authenticated request is answered with 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) error {
		c.onUnauthorized = fn
		return nil
	}
}

type Client struct {
	hc             *http.Client
	url            url.URL
	healthURL      *url.URL
	tokens         TokenProvider
	retries        int
	onUnauthorized func()
}

// Open returns a client for the API rooted at baseURL, e.g. "http://localhost:8000/api".
func Open(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Open] parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[Open] base url %q must be absolute", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := Client{
		hc:      http.DefaultClient,
		url:     *u,
		tokens:  TokenProviderFunc(func() string { return "" }),
		retries: 3,
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}

	hc := *c.hc
	hc.Transport = &loggingTransport{base: &bearerTransport{tokens: c.tokens, base: c.hc.Transport}}
	c.hc = &hc
	return &c, nil
}

func (c *Client) WithOpts(opts ...Option) (*Client, error) {
	newC := *c
	for _, opt := range opts {
		if err := opt(&newC); err != nil {
			return nil, err
		}
	}
	return &newC, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.url.String()
}

type request struct {
	method  string
	path    string
	params  url.Values
	body    any
	raw     io.Reader
	ctype   string
	headers map[string]string
	// anonymous requests carry no bearer token and never trigger the unauthorized hook
	anonymous bool
}

// do sends req and decodes a JSON response into output when output is non-nil.
func (c *Client) do(ctx context.Context, req request, output any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponseAsJSON(resp, output)
}

// send returns a successful response; the caller closes its body. GETs are retried with backoff
// on transport failures and 5xx/429 responses.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.send] encode body")
		}
		payload = b
	}

	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.retries
	}
	bckoff := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	for attempt := 1; ; attempt++ {
		httpReq, err := c.newRequest(ctx, req, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.hc.Do(httpReq)
		if err != nil {
			err = networkError(httpReq, err)
		} else if err = c.checkResponse(httpReq, resp, req.anonymous); err == nil {
			return resp, nil
		}

		if attempt >= attempts || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		wait := bckoff.Duration()
		log.Warn().Err(err).Str("url", httpReq.URL.String()).Dur("wait", wait).Msg("request failed, will retry")
		select {
		case <-ctx.Done():
			return nil, networkError(httpReq, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) newRequest(ctx context.Context, req request, payload []byte) (*http.Request, error) {
	var body io.Reader
	switch {
	case req.raw != nil:
		body = req.raw
	case payload != nil:
		body = bytes.NewReader(payload)
	}

	if req.anonymous {
		ctx = context.WithValue(ctx, anonymousKey{}, true)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.formatURL(req.path, req.params), body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newRequest]")
	}
	httpReq.Header.Set("Accept", "application/json")
	switch {
	case req.ctype != "":
		httpReq.Header.Set("Content-Type", req.ctype)
	case payload != nil:
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *Client) formatURL(path string, params url.Values) string {
	u := c.url
	u.Path = c.url.Path + path
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// checkResponse turns a non-2xx response into an *Error, closing its body.
func (c *Client) checkResponse(req *http.Request, resp *http.Response, anonymous bool) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	apiErr := errorFromResponse(resp)
	if resp.StatusCode == http.StatusUnauthorized && !anonymous && c.tokens.CurrentToken() != "" && c.onUnauthorized != nil {
		log.Warn().Str("url", req.URL.String()).Msg("token rejected by backend")
		c.onUnauthorized()
	}
	return apiErr
}

func decodeResponseAsJSON(resp *http.Response, output any) error {
	if output == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(output); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}
