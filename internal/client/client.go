package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TokenSource yields the bearer token of the session a request belongs to.
// It must never fail; an absent session yields "".
type TokenSource interface {
	Token(ctx context.Context) string
}

// Progress is the global progress indicator.
type Progress interface {
	Start()
	Done()
}

// Interceptor observes every request. Before may replace the request; After
// always runs once the exchange finished, whatever its outcome.
type Interceptor interface {
	Before(req *http.Request) (*http.Request, error)
	After(req *http.Request, resp *http.Response, err error)
}

// RequestOption tweaks a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	hideProgressBar bool
}

// HideProgressBar opts a request out of the global progress indicator.
func HideProgressBar() RequestOption {
	return func(o *requestOptions) { o.hideProgressBar = true }
}

// Client is the single request pipeline shared by the whole process.
type Client struct {
	BaseURL      string
	HTTP         *http.Client
	Logger       *slog.Logger
	interceptors []Interceptor
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTP = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTP.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.Logger = logger }
}

// WithProgress installs the progress interceptor.
func WithProgress(p Progress) Option {
	return func(c *Client) {
		if p != nil {
			c.interceptors = append(c.interceptors, &progressInterceptor{progress: p})
		}
	}
}

// WithInterceptor appends a custom interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) { c.interceptors = append(c.interceptors, i) }
}

// New creates the shared client. The auth interceptor is always installed first.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: DefaultTimeout,
		},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		interceptors: []Interceptor{&authInterceptor{tokens: tokens}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request and decodes the JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do runs one exchange through the interceptor chain. Failures are returned as
// *RequestError, *TransportError or *ResponseError.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &RequestError{Err: err}
	}
	req = req.WithContext(context.WithValue(req.Context(), optionsKey{}, ro))

	var ran []Interceptor
	for _, i := range c.interceptors {
		next, err := i.Before(req)
		if err != nil {
			runAfter(ran, req, nil, err)
			return &RequestError{Err: err}
		}
		req = next
		ran = append(ran, i)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	runAfter(ran, req, resp, err)
	if err != nil {
		c.Logger.Debug("Request failed", "method", method, "path", path, "error", err)
		return &TransportError{Method: method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	c.Logger.Debug("Request finished", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return newResponseError(method, req.URL.String(), resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func runAfter(ran []Interceptor, req *http.Request, resp *http.Response, err error) {
	for i := len(ran) - 1; i >= 0; i-- {
		ran[i].After(req, resp, err)
	}
}

type optionsKey struct{}

func optionsFrom(req *http.Request) requestOptions {
	ro, _ := req.Context().Value(optionsKey{}).(requestOptions)
	return ro
}

type authInterceptor struct {
	tokens TokenSource
}

// Before reads the token fresh for every request; it may change between calls.
func (a *authInterceptor) Before(req *http.Request) (*http.Request, error) {
	token := ""
	if a.tokens != nil {
		token = a.tokens.Token(req.Context())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (a *authInterceptor) After(*http.Request, *http.Response, error) {}

type progressInterceptor struct {
	progress Progress
}

type progressStartedKey struct{}

func (p *progressInterceptor) Before(req *http.Request) (*http.Request, error) {
	if optionsFrom(req).hideProgressBar {
		return req, nil
	}
	p.progress.Start()
	return req.WithContext(context.WithValue(req.Context(), progressStartedKey{}, true)), nil
}

func (p *progressInterceptor) After(req *http.Request, _ *http.Response, _ error) {
	if started, _ := req.Context().Value(progressStartedKey{}).(bool); started {
		p.progress.Done()
	}
}
