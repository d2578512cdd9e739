package fetcher

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"flatwatch/internal/config"
	"flatwatch/internal/observability"
)

// ErrDisallowed — robots.txt запрещает загрузку страницы.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// FetchError — сетевая ошибка или неуспешный HTTP-статус. Такие ошибки
// считаются временными: следующий цикл повторит запрос.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Fetcher struct {
	client *http.Client
	cfg    *config.Config
	logger *observability.Logger
	guard  *guard
}

type FetchResponse struct {
	StatusCode int
	// Body — тело ответа, перекодированное в UTF-8.
	Body    []byte
	URL     string
	Headers http.Header
}

func NewFetcher(cfg *config.Config, logger *observability.Logger) *Fetcher {
	if logger == nil {
		logger = observability.NewNop()
	}
	client := newHTTPClient(cfg)

	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
		guard:  newGuard(cfg, client, logger),
	}
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout: cfg.GetTotalTimeout(),
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.GetConnectTimeout(),
			}).DialContext,
			TLSHandshakeTimeout: cfg.GetConnectTimeout(),
			MaxIdleConns:        cfg.HTTP.MaxIdleConnections,
			MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnectionsPerHost,
			IdleConnTimeout:     cfg.GetIdleConnectionTimeout(),
		},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	// robots.txt и лимит частоты
	if _, err := f.guard.admit(ctx, urlStr); err != nil {
		return nil, err
	}

	// Fetch with retries
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= f.cfg.HTTP.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.calculateBackoff(attempt)
			f.logger.Debug("Retrying fetch", "url", urlStr, "attempt", attempt, "backoff", backoff, "error", lastErr)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, &FetchError{URL: urlStr, Attempts: attempts, Err: ctx.Err()}
			}
		}
		attempts++

		resp, err := f.fetchOnce(ctx, urlStr)
		if err != nil {
			lastErr = err
			continue
		}

		// Retry on 5xx or 429
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &FetchError{URL: urlStr, StatusCode: resp.StatusCode}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &FetchError{URL: urlStr, StatusCode: resp.StatusCode, Attempts: attempts}
		}

		return resp, nil
	}

	var statusErr *FetchError
	if errors.As(lastErr, &statusErr) {
		return nil, &FetchError{URL: urlStr, StatusCode: statusErr.StatusCode, Attempts: attempts}
	}
	return nil, &FetchError{URL: urlStr, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, urlStr string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.cfg.HTTP.UserAgent)
	req.Header.Set("Accept-Language", f.cfg.HTTP.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	body, err := decodeBody(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Response received",
		"url", urlStr,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"content_encoding", resp.Header.Get("Content-Encoding"),
		"size", len(body),
	)

	return &FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL.String(),
		Headers:    resp.Header,
	}, nil
}

// decodeBody перекодирует тело в UTF-8 по Content-Type или по первым байтам документа.
func decodeBody(r io.Reader, contentType string) ([]byte, error) {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(1024)
	enc, _, _ := charset.DetermineEncoding(peek, contentType)
	return io.ReadAll(transform.NewReader(br, enc.NewDecoder()))
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	minMS := f.cfg.Backoff.MinMS
	maxMS := f.cfg.Backoff.MaxMS
	jitterPct := f.cfg.Backoff.JitterPct

	// Exponential backoff: min * 2^(attempt-1)
	exponential := minMS * (1 << uint(attempt-1))
	if exponential > maxMS || exponential <= 0 {
		exponential = maxMS
	}

	// Apply jitter: ±jitterPct%
	jitterRange := float64(exponential) * float64(jitterPct) / 100
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange
	finalMS := float64(exponential) + jitter

	if finalMS < float64(minMS) {
		finalMS = float64(minMS)
	}

	return time.Duration(math.Max(finalMS, 0)) * time.Millisecond
}
