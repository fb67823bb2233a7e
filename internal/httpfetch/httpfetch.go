// Package httpfetch is the single HTTP primitive used to talk to Douyin:
// fetch a URL with the configured session cookies, optionally following
// redirects, and hand back the final URL, status and decoded body.
package httpfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRedirects = 10
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// NetworkError reports a transport failure or a non-2xx response.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("network error: %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type Response struct {
	FinalURL string
	Status   int
	Header   http.Header
	Body     []byte
}

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	Referer      string
	Cookies      string
	MaxRedirects int
	Transport    http.RoundTripper
	Logger       *zap.SugaredLogger
}

type Client struct {
	follow   *resty.Client
	noFollow *resty.Client
	logger   *zap.SugaredLogger
}

func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	return &Client{
		follow:   newResty(cfg, followPolicy(cfg)),
		noFollow: newResty(cfg, resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse })),
		logger:   logger,
	}
}

// followPolicy bounds the redirect chain and re-applies the session cookie,
// which net/http drops when a redirect crosses domains (v.douyin.com to
// haohuo.jinritemai.com).
func followPolicy(cfg Config) resty.RedirectPolicy {
	cookies := strings.TrimSpace(cfg.Cookies)
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
		}
		if cookies != "" {
			req.Header.Set("Cookie", cookies)
		}
		return nil
	})
}

func newResty(cfg Config, policy resty.RedirectPolicy) *resty.Client {
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(policy).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/json,image/avif,image/webp,*/*;q=0.8").
		SetHeader("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8").
		SetHeader("Accept-Encoding", "gzip, br")
	if cfg.Transport != nil {
		c.SetTransport(cfg.Transport)
	}
	if ref := strings.TrimSpace(cfg.Referer); ref != "" {
		c.SetHeader("Referer", ref)
	}
	if cookies := strings.TrimSpace(cfg.Cookies); cookies != "" {
		c.SetHeader("Cookie", cookies)
	}
	return c
}

// Fetch issues a GET for rawURL. Transport failures and non-2xx statuses are
// returned as *NetworkError. When followRedirects is false a 3xx response is
// returned as-is with FinalURL set to the resolved Location.
func (c *Client) Fetch(ctx context.Context, rawURL string, followRedirects bool) (Response, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Response{}, &NetworkError{URL: rawURL, Err: errors.New("missing url")}
	}

	rc := c.follow
	if !followRedirects {
		rc = c.noFollow
	}

	resp, err := rc.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		c.logger.Debugw("http_fetch_failed", "url", rawURL, "err", err)
		return Response{}, &NetworkError{URL: rawURL, Err: err}
	}

	out := Response{
		FinalURL: finalURL(rawURL, resp),
		Status:   resp.StatusCode(),
		Header:   resp.Header(),
	}

	redirect := !followRedirects && out.Status >= http.StatusMultipleChoices && out.Status < http.StatusBadRequest
	if !redirect && (out.Status < http.StatusOK || out.Status >= http.StatusMultipleChoices) {
		return out, &NetworkError{URL: rawURL, Status: out.Status}
	}

	body, err := decodeBody(resp.Header().Get("Content-Encoding"), resp.Body())
	if err != nil {
		return out, &NetworkError{URL: rawURL, Err: fmt.Errorf("decode body: %w", err)}
	}
	out.Body = body

	c.logger.Debugw("http_fetch_ok",
		"url", rawURL,
		"final_url", out.FinalURL,
		"status", out.Status,
		"bytes", len(out.Body),
	)
	return out, nil
}

func finalURL(requested string, resp *resty.Response) string {
	raw := resp.RawResponse
	if raw == nil {
		return requested
	}
	if loc := raw.Header.Get("Location"); loc != "" && raw.StatusCode >= 300 && raw.StatusCode < 400 {
		base := raw.Request.URL
		if u, err := base.Parse(loc); err == nil {
			return u.String()
		}
		return loc
	}
	if raw.Request != nil && raw.Request.URL != nil {
		return raw.Request.URL.String()
	}
	return requested
}

// decodeBody undoes content encodings the transport left in place. Gzip is
// only decoded when the payload still carries the gzip magic bytes, since
// the HTTP stack may already have inflated it.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return body, nil
	}
}

// WithQuery returns rawURL with params merged into its query string.
func WithQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
