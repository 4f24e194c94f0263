package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"
)

// defaultMaxBytes caps a fetched document body.
const defaultMaxBytes = 8 << 20

// ErrBlockedAddress is returned when a URL resolves to an address the
// fetcher is not allowed to reach.
var ErrBlockedAddress = errors.New("address not allowed")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// FetchConfig holds the configuration for URL uploads.
type FetchConfig struct {
	// HTTPTimeout is the timeout for each fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// MaxBytes is the largest body accepted. Defaults to 8 MiB if zero.
	MaxBytes int64

	// AllowPrivate lets fetches reach loopback, private, and link-local
	// addresses. Leave it off when URLs come from API callers.
	AllowPrivate bool
}

// Fetcher retrieves plain-text documents over HTTP(S).
type Fetcher struct {
	// cfg holds the resolved fetch configuration.
	cfg FetchConfig

	// httpClient is the HTTP client used for fetching documents.
	httpClient *http.Client
}

// NewFetcher constructs a Fetcher, applying defaults to zero fields.
func NewFetcher(cfg FetchConfig) *Fetcher {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa-go/1.0 (document upload)"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	if !cfg.AllowPrivate {
		dialer := &net.Dialer{Timeout: 10 * time.Second, Control: refusePrivate}
		client.Transport = &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &Fetcher{cfg: cfg, httpClient: client}
}

// refusePrivate is a net.Dialer Control hook. It runs after name resolution,
// so it also covers redirects and DNS names pointing at internal hosts.
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !publicAddr(ip) {
		return fmt.Errorf("%w: %s (%s)", ErrBlockedAddress, ip, network)
	}
	return nil
}

// publicAddr reports whether ip is a globally routable unicast address.
func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// Fetch downloads rawURL and returns the body as text together with a
// document name derived from the last path segment.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (name, text string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("invalid document url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/pdf" {
		return "", "", errPDF
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return "", "", fmt.Errorf("document at %s exceeds %d bytes", rawURL, f.cfg.MaxBytes)
	}

	return nameFromURL(u), string(body), nil
}

// nameFromURL returns the last non-empty path segment of u, or the host
// when the path is empty.
func nameFromURL(u *url.URL) string {
	p := strings.TrimRight(u.Path, "/")
	if base := path.Base(p); base != "." && base != "/" && base != "" {
		if unescaped, err := url.PathUnescape(base); err == nil {
			return unescaped
		}
		return base
	}
	return u.Host
}
