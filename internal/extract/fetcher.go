package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultFetchMaxBytes = 5 << 20
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	maxRedirects = 5
)

// RawPage is a fetched page decoded to UTF-8.
type RawPage struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        string
	Truncated   bool // body exceeded the byte cap
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*RawPage, error)
}

type FetcherConfig struct {
	Timeout           time.Duration
	MaxBytes          int64
	UserAgent         string
	AllowPrivateHosts bool
}

type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
}

var (
	errBlockedAddress = errors.New("address is not publicly routable")
	errRedirectScheme = errors.New("redirect to a non-http scheme")
)

var blockedCIDRs = []*net.IPNet{
	mustParseCIDR("0.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("100.64.0.0/10"),
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fc00::/7"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(value string) *net.IPNet {
	_, parsed, err := net.ParseCIDR(value)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", value, err))
	}
	return parsed
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsPrivate() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// NewHTTPFetcher builds a fetcher with its own pooled client. The client is
// safe for concurrent use.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultFetchMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if !cfg.AllowPrivateHosts {
		// Checked at dial time so DNS answers pointing inward are caught too.
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || isBlockedIP(ip) {
				return fmt.Errorf("%w: %s", errBlockedAddress, host)
			}
			return nil
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("%w: %s", errRedirectScheme, req.URL.Scheme)
				}
				return nil
			},
		},
		timeout:   cfg.Timeout,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
}

// ValidateURL accepts only absolute http(s) URLs with a host. It does no I/O.
func ValidateURL(raw string) (*url.URL, error) {
	invalid := "url must be an absolute http or https address"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errInvalidURL(invalid, nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errInvalidURL(invalid, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" || u.Opaque != "" {
		return nil, errInvalidURL(invalid, fmt.Errorf("unsupported url %q", raw))
	}
	u.Scheme = scheme
	return u, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errInvalidURL("url must be an absolute http or https address", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classify(ctx, fetchCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &Error{
			Kind:           KindFetchFailed,
			UpstreamStatus: resp.StatusCode,
			Message:        fmt.Sprintf("the page returned HTTP %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, f.classify(ctx, fetchCtx, err)
	}
	truncated := int64(len(raw)) > f.maxBytes
	if truncated {
		raw = raw[:f.maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	body := decodeBody(raw, contentType)

	slog.DebugContext(ctx, "page fetched",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"truncated", truncated,
		"content_type", contentType,
		"duration_ms", time.Since(start).Milliseconds())

	return &RawPage{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Truncated:   truncated,
	}, nil
}

// classify maps a transport error. Caller cancellation is not a timeout.
func (f *HTTPFetcher) classify(parent, fetchCtx context.Context, err error) *Error {
	if errors.Is(err, errBlockedAddress) || errors.Is(err, errRedirectScheme) {
		return errInvalidURL("url must point to a public web page", err)
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return newError(KindFetchFailed, "could not fetch the page", context.Canceled)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindFetchTimeout, fmt.Sprintf("the page did not respond within %s", f.timeout), err)
	}
	return newError(KindFetchFailed, "could not fetch the page", err)
}

// decodeBody converts the page to UTF-8 using the Content-Type charset, a
// <meta> declaration, or content sniffing.
func decodeBody(raw []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	return strings.ToValidUTF8(string(decoded), "")
}
