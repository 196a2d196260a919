package feedclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"feedpipe/internal/feedlib"
	"feedpipe/internal/resilience/circuitbreaker"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// maxTrackedHosts caps the per-host limiter map. Image probes hit many
// hosts; past this the map is reset instead of tracking LRU.
const maxTrackedHosts = 4096

// ReadOptions customizes a single fetch.
type ReadOptions struct {
	// ETag enables a conditional request via If-None-Match.
	ETag string

	// LastModified enables a conditional request via If-Modified-Since.
	LastModified string

	// Referer is sent as the Referer header when non-empty.
	Referer string

	// IgnoreContent discards the body and keeps only status and headers.
	// Image probes use this; a GET is still issued because many image
	// hosts reject HEAD.
	IgnoreContent bool
}

// Response is the outcome of one fetch. Status always holds either the real
// HTTP status or a synthetic feedlib status; Body is UTF-8 regardless of the
// source encoding.
type Response struct {
	Status       int
	URL          string
	Body         []byte
	ETag         string
	LastModified string
	Encoding     string
	ContentType  string
}

// OK reports a plain 200 response.
func (r *Response) OK() bool { return r.Status == http.StatusOK }

// statusError carries a synthetic status through the http.Client error path,
// so redirect rejections keep their classification.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// Reader fetches URLs with conditional-request support, SSRF protection,
// size caps, a circuit breaker and per-host politeness.
// Safe for concurrent use.
type Reader struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	config  Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewReader creates a Reader from the given configuration.
func NewReader(cfg Config) *Reader {
	reader := &Reader{
		config:   cfg,
		breaker:  circuitbreaker.New(cfg.Breaker),
		limiters: make(map[string]*rate.Limiter),
	}
	reader.client = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return &statusError{
					status: feedlib.StatusTooManyRedirects,
					err:    fmt.Errorf("stopped after %d redirects", len(via)),
				}
			}
			// 飛び先も毎回検証する。リダイレクトで内部ネットワークへ
			// 誘導する攻撃を防ぐため。
			if status, err := checkURL(req.URL.String(), cfg.DenyPrivateIPs); err != nil {
				return &statusError{status: status, err: err}
			}
			return nil
		},
	}
	return reader
}

// Breaker exposes the reader's circuit breaker for health reporting.
func (r *Reader) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

// Read fetches rawURL. The returned Response is never nil and its Status is
// always set: a real HTTP status when the server answered, a synthetic
// feedlib status otherwise. The error carries the underlying cause for
// logging and retry classification.
func (r *Reader) Read(ctx context.Context, rawURL string, opt ReadOptions) (*Response, error) {
	resp := &Response{URL: rawURL, Status: feedlib.StatusUnknownError}

	if status, err := checkURL(rawURL, r.config.DenyPrivateIPs); err != nil {
		resp.Status = status
		return resp, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return resp, fmt.Errorf("parse url: %w", err)
	}
	if err := r.waitHost(ctx, u.Hostname()); err != nil {
		resp.Status = classify(err)
		return resp, err
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.doRead(ctx, rawURL, opt)
	})
	if err != nil {
		resp.Status = classify(err)
		return resp, err
	}
	return result.(*Response), nil
}

// doRead performs the request. Policy rejections (size, content type,
// decoding) come back as a Response with a synthetic status and nil error so
// the circuit breaker only counts transport failures.
func (r *Reader) doRead(ctx context.Context, rawURL string, opt ReadOptions) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.config.UserAgent)
	if opt.ETag != "" {
		req.Header.Set("If-None-Match", opt.ETag)
	}
	if opt.LastModified != "" {
		req.Header.Set("If-Modified-Since", opt.LastModified)
	}
	if opt.Referer != "" {
		req.Header.Set("Referer", opt.Referer)
	}

	httpResp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp := &Response{
		Status:       httpResp.StatusCode,
		URL:          rawURL,
		ETag:         httpResp.Header.Get("ETag"),
		LastModified: httpResp.Header.Get("Last-Modified"),
		ContentType:  httpResp.Header.Get("Content-Type"),
	}
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		resp.URL = httpResp.Request.URL.String()
	}

	if opt.IgnoreContent || httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, nil
	}
	if !r.config.AllowNonWebpage && !isWebpageContentType(resp.ContentType) {
		resp.Status = feedlib.StatusContentTypeInvalid
		return resp, nil
	}
	if httpResp.ContentLength > r.config.MaxBodySize {
		resp.Status = feedlib.StatusContentTooLarge
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, r.config.MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > r.config.MaxBodySize {
		resp.Status = feedlib.StatusContentTooLarge
		return resp, nil
	}

	decoded, encoding, err := decodeBody(body, resp.ContentType)
	if err != nil {
		resp.Status = feedlib.StatusContentDecodingError
		return resp, nil
	}
	resp.Body = decoded
	resp.Encoding = encoding
	return resp, nil
}

// waitHost applies the per-host token bucket before a request goes out.
func (r *Reader) waitHost(ctx context.Context, host string) error {
	r.mu.Lock()
	if len(r.limiters) > maxTrackedHosts {
		r.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := r.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.config.HostRequestRate), r.config.HostBurst)
		r.limiters[host] = lim
	}
	r.mu.Unlock()
	return lim.Wait(ctx)
}

// classify folds a transport error into a synthetic response status.
func classify(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return feedlib.StatusDNSError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return feedlib.StatusConnectionTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return feedlib.StatusConnectionTimeout
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return feedlib.StatusSSLError
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return feedlib.StatusSSLError
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return feedlib.StatusConnectionReset
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return feedlib.StatusConnectionReset
	}
	return feedlib.StatusUnknownError
}

// isWebpageContentType accepts the content types feeds and story pages are
// actually served with. Empty or unparsable headers pass: enough real feeds
// omit or mangle Content-Type that rejecting them loses data.
func isWebpageContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json" || mediaType == "application/feed+json":
		return true
	case strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "xml"):
		return true
	case mediaType == "application/octet-stream":
		return true
	}
	return false
}

// decodeBody transcodes body to UTF-8 using the content-type charset, meta
// tags and byte sniffing, and returns the detected source encoding name.
func decodeBody(body []byte, contentType string) ([]byte, string, error) {
	_, name, _ := charset.DetermineEncoding(body, contentType)
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, name, err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, name, err
	}
	return decoded, name, nil
}
