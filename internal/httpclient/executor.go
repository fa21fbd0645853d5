package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paasify/cfvault/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// StatusError is a non-2xx reply. It keeps the body so callers can extract
// the service's error detail.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.Status)
}

// ResponseBody returns the raw reply body.
func (e *StatusError) ResponseBody() []byte { return e.Body }

// Executor sends JSON requests with optional throttling and retries of
// network errors and 5xx replies. 4xx replies are never retried.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	retryMax int
	tag      string
}

// New creates an Executor. rateMgr may be nil.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, retryMax int, tag string) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		retryMax: retryMax,
		tag:      tag,
	}
}

// PostJSON marshals in, POSTs it to url and decodes the reply into out.
// Numbers in the reply decode as json.Number. rateLimitKey scopes the throttle.
func (e *Executor) PostJSON(ctx context.Context, url, rateLimitKey string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(attempt-1)); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.tag+".http_failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.tag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("latency", elapsed))
			lastErr = &StatusError{Method: http.MethodPost, URL: url, Status: resp.StatusCode, Body: body}
			continue
		}

		if resp.StatusCode >= 400 {
			return &StatusError{Method: http.MethodPost, URL: url, Status: resp.StatusCode, Body: body}
		}

		if out != nil && len(body) > 0 {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(out); err != nil {
				e.logger.Warn(e.tag+".decode_failed",
					zap.String("url", url),
					zap.Error(err))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.tag+".http_success",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.tag, e.retryMax+1, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
