package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	maxNetworkBackoff   = 60 * time.Second
	maxRateLimitBackoff = 300 * time.Second
	resetBuffer         = 5 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryTransport retries a request on network errors and on GitHub rate limiting.
//
// Every attempt, rate limited or not, draws from the same budget of MaxRetries+1 attempts.
// When the budget runs out on a rate limited response that response is returned to the
// caller; when it runs out on a network error the error is returned.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Logger     *slog.Logger
	Sleep      Sleeper
	Now        func() time.Time
}

// NewRetryTransport wraps base with the default sleeper and clock.
func NewRetryTransport(base http.RoundTripper, maxRetries int, logger *slog.Logger) *RetryTransport {
	return &RetryTransport{
		Base:       base,
		MaxRetries: maxRetries,
		Logger:     logger,
		Sleep:      SleepContext,
		Now:        time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
	}

	ctx := req.Context()
	for retry := 0; ; retry++ {
		if retry > 0 {
			t.Logger.Debug("retrying request", "attempt", retry, "max_retries", t.MaxRetries, "url", req.URL.String())
		}

		attempt := req.Clone(ctx)
		if body != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(body))
			attempt.ContentLength = int64(len(body))
		}

		resp, err := t.base().RoundTrip(attempt)
		if err != nil {
			if retry >= t.MaxRetries || ctx.Err() != nil {
				t.Logger.Warn("request failed after retries", "retries", t.MaxRetries, "url", req.URL.String(), "error", err)
				return nil, err
			}
			wait := backoff(retry, maxNetworkBackoff)
			kind := "error"
			if isTimeout(err) {
				kind = "timeout"
			}
			t.Logger.Warn("request "+kind+", retrying", "wait", wait, "error", err)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		wait, limited := t.rateLimitWait(resp, retry)
		if !limited || retry >= t.MaxRetries {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// rateLimitWait decides whether resp is a rate limit response and how long to wait.
func (t *RetryTransport) rateLimitWait(resp *http.Response, retry int) (time.Duration, bool) {
	t.Logger.Debug("response received", "status", resp.StatusCode, "headers", resp.Header)

	if resp.StatusCode == http.StatusForbidden {
		remaining := resp.Header.Get("X-RateLimit-Remaining")
		if n, err := strconv.Atoi(remaining); err == nil && n == 0 {
			wait := backoff(retry, maxRateLimitBackoff)
			if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
				until := time.Unix(reset, 0).Sub(t.now()).Truncate(time.Second)
				wait = max(until, 0) + resetBuffer
			}
			t.Logger.Warn("rate limit exceeded, waiting before retry", "wait", wait)
			return wait, true
		}
	}

	retryAfter := resp.Header.Get("Retry-After")
	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && retryAfter != "") {
		wait := backoff(retry, maxRateLimitBackoff)
		if retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				wait = time.Duration(seconds) * time.Second
			} else {
				t.Logger.Debug("invalid Retry-After header value", "value", retryAfter)
			}
		}
		t.Logger.Warn("secondary rate limit hit, waiting before retry", "wait", wait)
		return wait, true
	}

	return 0, false
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryTransport) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (t *RetryTransport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// backoff returns min(2^retry seconds, ceiling).
func backoff(retry int, ceiling time.Duration) time.Duration {
	wait := time.Duration(math.Pow(2, float64(retry))) * time.Second
	if wait > ceiling || wait <= 0 {
		return ceiling
	}
	return wait
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
