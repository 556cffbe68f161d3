// Package http reads remote containers with HTTP range requests.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

// ErrRangeUnsupported is returned when the server ignores range requests.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements random access reads via HTTP range requests.
// It satisfies nestzip.ByteSource (io.ReaderAt plus Size).
type Source struct {
	url                   string
	client                *nethttp.Client
	headers               nethttp.Header
	logger                *slog.Logger
	timeout               time.Duration
	size                  int64
	etag                  string
	lastModified          string
	useConditionalHeaders bool
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithTimeout bounds each request. Zero means no limit beyond the client's own.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.timeout = d
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithConditionalHeaders sends If-Match or If-Unmodified-Since with every
// range request so a container replaced mid-read is detected. A server that
// answers 412 is retried once without the conditions.
func WithConditionalHeaders() Option {
	return func(s *Source) {
		s.useConditionalHeaders = true
	}
}

// NewSource creates a Source backed by HTTP range requests.
// It probes the remote to determine the content size.
func NewSource(url string, opts ...Option) (*Source, error) {
	s := &Source{
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if err := s.fetchMetadata(); err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	s.logger.Debug("opened remote container", "url", url, "size", s.size, "etag", s.etag)
	return s, nil
}

// URL returns the remote address.
func (s *Source) URL() string {
	return s.url
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// LastModified returns the Last-Modified time reported by the server.
func (s *Source) LastModified() (time.Time, bool) {
	if s.lastModified == "" {
		return time.Time{}, false
	}
	t, err := nethttp.ParseTime(s.lastModified)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReadAt reads len(p) bytes from the remote at off using one range request.
// It implements [io.ReaderAt]. If fewer bytes are available than requested,
// it returns the number of bytes read along with io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	expected := len(p)
	if end >= s.size {
		end = s.size - 1
		expected = int(end - off + 1)
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.rangeRequest(ctx, off, end, true)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode == nethttp.StatusPreconditionFailed && s.hasConditionalHeaders() {
		resp.Body.Close()
		s.logger.Debug("precondition failed, retrying unconditionally", "url", s.url)
		resp, err = s.rangeRequest(ctx, off, end, false)
		if err != nil {
			return 0, err
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("range request failed: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:expected])
	if err != nil {
		return n, err
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases idle connections held by the client.
func (s *Source) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Source) context() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// fetchMetadata records content size and validators. It tries HEAD first,
// then confirms range support with a one-byte probe.
func (s *Source) fetchMetadata() error {
	ctx, cancel := s.context()
	defer cancel()

	headSize := int64(-1)
	if req, err := s.newRequest(ctx, nethttp.MethodHead, false); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			headSize = resp.ContentLength
			s.etag = resp.Header.Get("ETag")
			s.lastModified = resp.Header.Get("Last-Modified")
			resp.Body.Close()
		}
	}

	size, etag, lastModified, err := s.rangeProbe(ctx)
	if err != nil {
		return err
	}
	if headSize > 0 && headSize != size {
		return fmt.Errorf("content size mismatch: head=%d range=%d", headSize, size)
	}
	s.size = size
	if s.etag == "" {
		s.etag = etag
	}
	if s.lastModified == "" {
		s.lastModified = lastModified
	}
	return nil
}

// rangeProbe verifies range support and reads the size from Content-Range.
func (s *Source) rangeProbe(ctx context.Context) (size int64, etag, lastModified string, err error) {
	req, err := s.newRequest(ctx, nethttp.MethodGet, false)
	if err != nil {
		return 0, "", "", err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		// An empty resource cannot satisfy bytes=0-0.
		if total, perr := parseContentRange(resp.Header.Get("Content-Range")); perr == nil && total == 0 {
			return 0, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
		}
		return 0, "", "", fmt.Errorf("range probe failed: %s", resp.Status)
	case nethttp.StatusOK:
		// Servers may ignore the range of an empty resource.
		if resp.ContentLength == 0 {
			return 0, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
		}
		return 0, "", "", ErrRangeUnsupported
	default:
		return 0, "", "", fmt.Errorf("range probe failed: %s", resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return 0, "", "", errors.New("range probe missing Content-Range")
	}
	size, err = parseContentRange(crange)
	if err != nil {
		return 0, "", "", err
	}
	return size, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

// newRequest creates a request carrying the configured headers and, when
// enabled, the recorded validators.
func (s *Source) newRequest(ctx context.Context, method string, withConditions bool) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet && withConditions && s.useConditionalHeaders {
		if s.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

func (s *Source) rangeRequest(ctx context.Context, off, end int64, withConditions bool) (*nethttp.Response, error) {
	req, err := s.newRequest(ctx, nethttp.MethodGet, withConditions)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
	s.logger.Debug("range request", "url", s.url, "offset", off, "length", end-off+1)
	return s.client.Do(req)
}

func (s *Source) hasConditionalHeaders() bool {
	if !s.useConditionalHeaders {
		return false
	}
	return s.etag != "" || s.lastModified != ""
}

// parseContentRange extracts the total size from "bytes start-end/size" or
// "bytes */size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
