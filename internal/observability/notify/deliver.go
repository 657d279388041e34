package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// retryBaseDelay grows linearly per attempt.
const retryBaseDelay = 200 * time.Millisecond

// maxErrorBody caps how much of a rejected response is quoted in the error.
const maxErrorBody = 4096

// Deliver runs send up to retryLimit+1 times, stopping at the first success or when ctx ends.
// The last send error is returned.
func Deliver(ctx context.Context, retryLimit int, send func(context.Context) error) error {
	attempts := max(retryLimit, 0) + 1
	var err error
	for attempt := 1; ; attempt++ {
		if err = send(ctx); err == nil || attempt == attempts {
			return err
		}
		timer := time.NewTimer(time.Duration(attempt) * retryBaseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PostJSON posts body to endpoint and treats any non-2xx status as an error quoting the
// response. sink names the destination in error messages.
func PostJSON(ctx context.Context, hc *http.Client, sink, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", sink, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return fmt.Errorf("read %s error response: %w", sink, readErr)
		}
		return fmt.Errorf("%s %s: %s", sink, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HTTPClient returns hc, or a client bounded by timeout (5s when unset).
func HTTPClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Or returns value unless it is blank.
func Or(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
