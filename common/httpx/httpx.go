package httpx

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/atomic"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
)

// Client is a shared outbound HTTP client with a host allowlist, jittered
// retries and a consecutive-failure circuit breaker. Safe for concurrent use.
type Client struct {
	hc        *http.Client
	opt       Options
	fail      atomic.Int32 // consecutive failures
	openUntil atomic.Int64 // unix nanos for circuit open deadline
}

type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	HostAllowlist      []string
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

var (
	ErrCircuitOpen    = errors.New("circuit open")
	ErrHostNotAllowed = errors.New("host not allowed")
)

// StatusError is returned when the upstream keeps answering with 5xx.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: %s returned status %d", e.URL, e.Status)
}

func NewFromConfig(cfg *config.HTTPClientConfig) *Client {
	if cfg == nil {
		cfg = &config.HTTPClientConfig{}
	}
	opt := Options{
		Timeout:            millisOr(cfg.TimeoutMs, 1200*time.Millisecond),
		Retry:              1,
		BackoffMin:         millisOr(cfg.BackoffMinMs, 100*time.Millisecond),
		BackoffMax:         millisOr(cfg.BackoffMaxMs, 800*time.Millisecond),
		HostAllowlist:      cfg.HostAllowlist,
		MaxConsecutiveFail: 5,
		CircuitOpen:        5 * time.Second,
	}
	if cfg.Retry > 0 {
		opt.Retry = cfg.Retry
	}
	if cfg.MaxConsecutiveFailures > 0 {
		opt.MaxConsecutiveFail = cfg.MaxConsecutiveFailures
	}
	if cfg.CircuitOpenSeconds > 0 {
		opt.CircuitOpen = time.Duration(cfg.CircuitOpenSeconds) * time.Second
	}
	return New(opt)
}

func New(opt Options) *Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: opt.Timeout}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		hc:  &http.Client{Timeout: opt.Timeout, Transport: transport},
		opt: opt,
	}
}

func (c *Client) allowed(u *url.URL) bool {
	if len(c.opt.HostAllowlist) == 0 {
		return true
	}
	host := u.Hostname()
	for _, h := range c.opt.HostAllowlist {
		if matchHost(h, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if strings.EqualFold(pattern, host) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suf := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suf) || host == suf
	}
	return false
}

// Do sends req, retrying transport errors and 5xx answers. Responses with a
// status below 500 are returned as-is; callers check the status themselves.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allowed(req.URL) {
		logger.Warnf("httpx: blocked outbound host: %s", req.URL.Host)
		return nil, ErrHostNotAllowed
	}
	if c.openUntil.Load() > time.Now().UnixNano() {
		return nil, ErrCircuitOpen
	}

	attempts := uint(c.opt.Retry + 1)
	var resp *http.Response
	err := retry.Do(
		func() error {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return retry.Unrecoverable(err)
				}
				req.Body = body
			}
			r, err := c.hc.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode >= 500 {
				// close body on failure to reuse connection
				_ = r.Body.Close()
				return &StatusError{URL: req.URL.Redacted(), Status: r.StatusCode}
			}
			resp = r
			return nil
		},
		c.retryOptions(req, attempts)...,
	)
	if err == nil {
		c.fail.Store(0)
		return resp, nil
	}

	// open circuit on consecutive failures
	if c.fail.Inc() >= int32(c.opt.MaxConsecutiveFail) {
		c.openUntil.Store(time.Now().Add(c.opt.CircuitOpen).UnixNano())
		c.fail.Store(0)
		logger.Warnf("httpx: circuit opened for %v", c.opt.CircuitOpen)
	}
	return nil, err
}

func (c *Client) retryOptions(req *http.Request, attempts uint) []retry.Option {
	opts := []retry.Option{
		retry.Context(req.Context()),
		retry.Attempts(attempts),
		retry.Delay(c.opt.BackoffMin),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnf("httpx: request failed (try %d/%d) to %s: %v", n+1, attempts, req.URL.Redacted(), err)
		}),
	}
	// RandomDelay panics on a zero jitter window
	if j := jitterRange(c.opt.BackoffMin, c.opt.BackoffMax); j > 0 {
		opts = append(opts, retry.MaxJitter(j), retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)))
	} else {
		opts = append(opts, retry.DelayType(retry.FixedDelay))
	}
	return opts
}

// HTTPClient exposes the underlying client for SDKs that take *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.hc
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func jitterRange(min, max time.Duration) time.Duration {
	if max <= min {
		return 0
	}
	return max - min
}

func millisOr(ms int, def time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
