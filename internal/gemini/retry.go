package gemini

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxBackoff caps the exponential backoff delay
const maxBackoff = 10 * time.Second

// retryableStatuses are HTTP statuses worth another attempt
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// doWithRetry issues the request built by build, retrying transport errors
// and retryable statuses with capped exponential backoff. The request is
// rebuilt on every attempt so its body can be re-read.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && isRetryableError(err) {
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &APIError{Kind: KindTransport, Message: err.Error()}
		}

		if retryableStatuses[resp.StatusCode] && attempt < c.maxRetries {
			log.Warnf("Gemini API returned status %d, retrying (attempt %d/%d)", resp.StatusCode, attempt, c.maxRetries)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, &APIError{Kind: KindTransport, Message: lastErr.Error()}
	}
	return nil, &APIError{Kind: KindTransport, Message: "retry budget exhausted"}
}

// backoff waits base * 2^(attempt-1) capped at maxBackoff, or returns early
// when the context is cancelled
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.baseDelay << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// isRetryableError checks if an error is retryable (e.g., network timeout,
// temporary network issue)
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "Timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "EOF") {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
