// Package fetch implements the shared page fetcher: a browser-like HTTP GET
// with response classification (HTTP error, anti-bot challenge, suspiciously
// short body) and bounded exponential-backoff retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind classifies a failed fetch.
type Kind string

const (
	KindHTTPStatus Kind = "http_status"
	KindBlocked    Kind = "blocked"
	KindShort      Kind = "suspicious_short"
)

// Error is the retryable fetch failure taxonomy. Transport-level errors are
// wrapped separately and not retried.
type Error struct {
	Kind   Kind
	Status int
	URL    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch: HTTP %d for %s", e.Status, e.URL)
	case KindBlocked:
		return fmt.Sprintf("fetch: anti-bot/verification page detected for %s", e.URL)
	default:
		return fmt.Sprintf("fetch: suspiciously short HTML for %s", e.URL)
	}
}

// Policy is the per-source fetch behavior: timeout, block markers, the
// minimum plausible body length, and whether marker/short-body hits are a
// soft warning instead of a hard failure (some sources serve legitimate
// short pages).
type Policy struct {
	Timeout    time.Duration
	Markers    []string
	MinBodyLen int
	SoftBlock  bool
	Referer    string
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"

const maxBodyBytes = 8 << 20

// Options tunes the retry schedule; zero values take defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// DumpDir enables writing raw response bodies for diagnostics.
	DumpDir string
}

type Fetcher struct {
	client      *http.Client
	log         *zap.SugaredLogger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	dumpDir     string
}

func New(log *zap.SugaredLogger, opts Options) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 800 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: nil, // follow redirects
		},
		log:         log,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		dumpDir:     opts.DumpDir,
	}
}

// Fetch gets one search page. Classified failures (Error) are retried with
// exponential backoff up to MaxAttempts; the last error propagates so the
// caller can skip the remaining pages of that source.
func (f *Fetcher) Fetch(ctx context.Context, url, source string, page int, pol Policy) ([]byte, error) {
	var lastErr error
	delay := f.baseDelay

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		body, err := f.fetchOnce(ctx, url, source, page, pol)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if _, retryable := err.(*Error); !retryable {
			return nil, err
		}
		if attempt < f.maxAttempts {
			f.log.Warnw("fetch failed, retrying",
				"source", source, "page", page, "attempt", attempt, "delay", delay, "err", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay *= 2
			if delay > f.maxDelay {
				delay = f.maxDelay
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, source string, page int, pol Policy) ([]byte, error) {
	timeout := pol.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if pol.Referer != "" {
		req.Header.Set("Referer", pol.Referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	f.log.Debugw("response", "source", source, "page", page, "status", resp.StatusCode, "len", len(body))

	f.dump(source, page, body)

	low := strings.ToLower(string(body))
	blocked := containsAny(low, pol.Markers)
	short := pol.MinBodyLen > 0 && len(body) < pol.MinBodyLen

	if pol.SoftBlock {
		// Policy choice: this source serves legitimate short pages and the
		// markers have false positives; warn and hand the body to the parser.
		if blocked || short {
			f.log.Warnw("anti-bot/short heuristics triggered, parsing anyway",
				"source", source, "page", page, "len", len(body))
		}
		if resp.StatusCode >= 400 {
			return nil, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode, URL: url}
		}
		return body, nil
	}

	if blocked {
		return nil, &Error{Kind: KindBlocked, Status: resp.StatusCode, URL: url}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode, URL: url}
	}
	if short {
		return nil, &Error{Kind: KindShort, Status: resp.StatusCode, URL: url}
	}
	return body, nil
}

// dump persists the raw body for diagnostics. Failures are logged and never
// affect the fetch result.
func (f *Fetcher) dump(source string, page int, body []byte) {
	if f.dumpDir == "" {
		return
	}
	if err := os.MkdirAll(f.dumpDir, 0o755); err != nil {
		f.log.Warnw("dump dir", "err", err)
		return
	}
	name := filepath.Join(f.dumpDir, fmt.Sprintf("%s_p%d.html", source, page))
	if err := os.WriteFile(name, body, 0o644); err != nil {
		f.log.Warnw("failed to save HTML", "source", source, "file", name, "err", err)
		return
	}
	f.log.Infow("saved HTML", "source", source, "file", name)
}

func containsAny(low string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(low, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	// +/- 20%
	f := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * f)
}
