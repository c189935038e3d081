// Package llm is the boundary to the remote text-completion service:
// request in, text out, or a classifiable failure.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request describes one completion call. Schema, when non-nil, asks the
// service for strict JSON matching the schema (name required).
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64

	SchemaName string
	Schema     map[string]any
}

// Completer is implemented by the OpenAI client and by test stubs.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Class buckets completion errors for backoff selection.
type Class int

const (
	ClassOther Class = iota
	ClassRateLimit
	ClassTransport
	ClassServer
)

// Classify inspects an error from the completion service. Rate limiting is
// distinguished from other transient failures so its backoff can be longer.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case isRateLimitError(err):
		return ClassRateLimit
	case isTransportError(err):
		return ClassTransport
	case isServerError(err):
		return ClassServer
	default:
		return ClassOther
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "ssl") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused")
}

// RetryPolicy bounds the retry loop. Sleep is injectable so tests do not
// wait out real backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(context.Context, time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
	}
}

// Backoff returns the wait before retrying a failed attempt (0-based).
// Transport-class and rate-limit failures wait twice as long.
func (p RetryPolicy) Backoff(class Class, attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt+1)
	if class == ClassTransport || class == ClassRateLimit {
		d *= 2
	}
	return d
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CompleteWithRetry runs req against c, retrying classifiable failures with
// class-dependent backoff up to the attempt cap. The last error is returned
// when attempts are exhausted.
func CompleteWithRetry(ctx context.Context, c Completer, req Request, policy RetryPolicy) (string, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		out, err := c.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if attempt < policy.MaxAttempts-1 {
			if serr := policy.sleep(ctx, policy.Backoff(Classify(err), attempt)); serr != nil {
				return "", serr
			}
		}
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}
