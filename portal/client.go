// CLAUDE:SUMMARY HTTP client with cookie jar, portal headers, and transient-error retry.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Client issues authenticated portal requests. It is safe for use by the
// batched entry-detail fan-out; the cookie jar is shared.
type Client struct {
	cfg Config

	mu   sync.Mutex
	http *http.Client
	jar  http.CookieJar
}

// NewClient builds a client around the given session cookies.
func NewClient(cfg Config, cookies []*http.Cookie) (*Client, error) {
	cfg.defaults()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("portal: cookie jar: %w", err)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal: base URL: %w", err)
	}
	jar.SetCookies(base, cookies)

	c := &Client{cfg: cfg, jar: jar}
	c.http = c.newHTTPClient()
	return c, nil
}

func (c *Client) newHTTPClient() *http.Client {
	return &http.Client{
		Jar: c.jar,
		// Redirects are followed; the portal bounces through interstitial
		// pages after form posts.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Response is a fully drained portal reply.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
	FinalURL    string
}

// PostForm posts an urlencoded form and drains the reply.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.cfg.BaseURL+path, form, timeout)
}

// Get fetches an absolute or portal-relative URL and drains the reply.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.absolute(rawURL), nil, timeout)
}

// absolute resolves portal-relative links the way a browser would.
func (c *Client) absolute(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "/") {
		rawURL = "/" + rawURL
	}
	return c.cfg.BaseURL + rawURL
}

// do runs one request with up to MaxRetries attempts and 0.5·2^k backoff
// on timeouts, connection resets, and 5xx replies. The underlying HTTP
// client is rebuilt after a connection-level failure.
func (c *Client) do(ctx context.Context, method, fullURL string, form url.Values, timeout time.Duration) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BaseBackoff * (1 << uint(attempt-1))
			c.cfg.Logger.Warn("portal request retry",
				"url", fullURL, "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.once(ctx, method, fullURL, form, timeout)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTransportError(err) {
				return nil, err
			}
			lastErr = err
			// A reset connection can leave poisoned keep-alives behind.
			c.mu.Lock()
			c.http.CloseIdleConnections()
			c.http = c.newHTTPClient()
			c.mu.Unlock()
			continue
		}
		lastErr = fmt.Errorf("portal: %s returned %d", fullURL, resp.StatusCode)
	}
	return nil, fmt.Errorf("portal: %s: retries exhausted: %w", fullURL, lastErr)
}

func (c *Client) once(ctx context.Context, method, fullURL string, form url.Values, timeout time.Duration) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("portal: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Origin", c.cfg.BaseURL)
	req.Header.Set("Referer", c.cfg.BaseURL+"/")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.mu.Lock()
	client := c.http
	c.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal: %s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("portal: read body: %w", err)
	}
	return &Response{
		Body:        data,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// Cookies returns the jar's current cookies for the portal origin.
func (c *Client) Cookies() []*http.Cookie {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(base)
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF")
}
