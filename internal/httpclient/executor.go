// Package httpclient runs JSON calls against settlement collaborators with
// rate limiting and bounded retries.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/rate"
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

// StatusError is a non-2xx response. Body is kept for error-code mapping.
type StatusError struct {
	Service    string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Service, e.StatusCode)
}

// Call describes one JSON request. Body is marshalled once and re-sent on
// every attempt.
type Call struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
	// RateKey scopes the limiter; defaults to Path.
	RateKey string
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	baseURL  string
	retryMax int
	service  string
}

// New creates an Executor. retryMax applies to transport errors and 5xx;
// 4xx responses are returned at once as *StatusError.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	baseURL string,
	retryMax int,
	service string,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		retryMax: retryMax,
		service:  service,
	}
}

// WithRetries returns a copy of e with a different retry budget.
func (e *Executor) WithRetries(retryMax int) *Executor {
	cp := *e
	cp.retryMax = retryMax
	return &cp
}

// DoJSON executes call and JSON-decodes a 2xx response into out.
func (e *Executor) DoJSON(ctx context.Context, call Call, out any) error {
	var payload []byte
	if call.Body != nil {
		var err error
		if payload, err = json.Marshal(call.Body); err != nil {
			return fmt.Errorf("encode %s body: %w", call.Path, err)
		}
	}

	key := call.RateKey
	if key == "" {
		key = call.Path
	}
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, key); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	url := e.baseURL + call.Path
	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(Backoff(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("%s %s: %w", e.service, call.Path, ctx.Err())
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, call.Method, url, body)
		if err != nil {
			return fmt.Errorf("build %s request: %w", call.Path, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range call.Headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.service+".http_failed",
				zap.String("path", call.Path),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", e.service, call.Path, ctx.Err())
			}
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.service+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("path", call.Path),
				zap.Int("attempt", attempt),
				zap.Duration("latency", elapsed))
			lastErr = &StatusError{Service: e.service, StatusCode: resp.StatusCode, Body: respBody}
			continue
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Service: e.service, StatusCode: resp.StatusCode, Body: respBody}
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				e.logger.Warn(e.service+".decode_failed",
					zap.String("path", call.Path),
					zap.Error(err))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.service+".http_success",
			zap.String("path", call.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.service, e.retryMax+1, lastErr)
}
