package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentcore/core"
)

// ErrorFromHTTPStatus maps a provider HTTP failure onto the core error
// taxonomy. The Retry-After header is honored for 429 responses.
func ErrorFromHTTPStatus(status int, header http.Header, body string) *core.Error {
	msg := fmt.Sprintf("status %d", status)
	if b := strings.TrimSpace(body); b != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(b, 512))
	}

	e := &core.Error{Op: core.OpGeneration, Message: msg}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind = core.KindAuthenticationFailed
	case status == http.StatusTooManyRequests:
		e.Kind = core.KindRateLimitExceeded
		if header != nil {
			e.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
		}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		e.Kind = core.KindInvalidInput
	case status == http.StatusNotFound:
		e.Kind = core.KindModelNotFound
	case status == http.StatusRequestTimeout, status >= 500:
		e.Kind = core.KindProviderUnavailable
	default:
		e.Kind = core.KindGenerationFailed
	}

	return e
}

// ParseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. Invalid or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// ProviderError maps an SDK failure carrying an HTTP status onto the core
// taxonomy, keeping the SDK error as cause. Context errors become cancelled
// or timeout; status 0 (transport failure) is provider unavailable.
func ProviderError(ctx context.Context, status int, header http.Header, cause error) *core.Error {
	if ctx != nil && ctx.Err() != nil {
		return ContextError(ctx.Err())
	}

	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return ContextError(cause)
	}

	if status == 0 {
		return core.WrapError(core.KindProviderUnavailable, core.OpGeneration, cause)
	}

	e := ErrorFromHTTPStatus(status, header, "")
	e.Err = cause

	return e
}

// ContextError converts a context error into a cancelled or timeout error.
func ContextError(err error) *core.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.KindTimeout, core.OpGeneration, err)
	}

	return core.WrapError(core.KindCancelled, core.OpGeneration, err)
}

// IsRetryableKind reports whether a failure of kind k is worth retrying
// against the same provider.
func IsRetryableKind(k core.ErrorKind) bool {
	switch k {
	case core.KindRateLimitExceeded, core.KindProviderUnavailable, core.KindGenerationFailed, core.KindDecodingError:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
