// Package fetch wraps outbound HTTP calls with a fixed-delay retry policy.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Policy controls how often a failed operation is re-attempted. The delay is
// fixed between attempts: no jitter, no exponential growth.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy mirrors the viewer's production settings: five attempts five
// seconds apart, so a single call blocks for at most ~25 s before giving up.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Delay: 5 * time.Second}
}

// Validate reports whether the policy can be applied.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("fetch: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("fetch: delay must not be negative, got %s", p.Delay)
	}
	return nil
}

// Do invokes op until it succeeds or the policy's attempt cap is reached.
// Successes short-circuit immediately. Every failure is retried identically;
// transient and permanent errors are not distinguished, so callers wrapping
// non-idempotent operations must not use this. The error from the final
// attempt is returned unchanged. Each failed attempt is logged with its
// attempt number.
func Do[T any](ctx context.Context, policy Policy, logger *slog.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		logger.Warn("attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.String("error", err.Error()))
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.Delay):
		}
	}
	return zero, lastErr
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %d: %s", e.Code, e.Body)
}

// DoRequest issues req through client under the retry policy. The request is
// cloned for every attempt so a consumed body never leaks into a retry.
// Non-2xx responses count as failures and are retried like transport errors.
func DoRequest(ctx context.Context, client *http.Client, req *http.Request, policy Policy, logger *slog.Logger) (*http.Response, error) {
	if client == nil {
		return nil, errors.New("fetch: http client is required")
	}
	if req == nil {
		return nil, errors.New("fetch: request is required")
	}
	return Do(ctx, policy, logger, func(ctx context.Context) (*http.Response, error) {
		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// DecodeJSON decodes a JSON payload from r into v.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
