package fetcher

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ClientOptions tune the retrying GET client.
type ClientOptions struct {
	// MaxRetries is the total number of attempts, not the number of retries
	// after the first try. Minimum 1.
	MaxRetries int
	// RetryBackoff is the base delay before the second attempt; subsequent
	// delays double, with jitter drawn uniformly from [0, 0.5*backoff].
	RetryBackoff time.Duration
	// WarningThreshold flags slow responses: an attempt that takes longer
	// logs a warning even when it succeeds. Zero disables the check.
	WarningThreshold time.Duration
	Timeout          time.Duration
	UserAgent        string
}

// Client performs HTTP GETs with retry, exponential backoff, and jitter.
// It never surfaces an error: once every attempt has failed the caller gets
// (nil, false) and the failure has already been logged.
type Client struct {
	opts   ClientOptions
	client *http.Client
	logger zerolog.Logger
}

// NewClient constructs a retrying client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "loadcast/1.0"
	}

	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "fetch_client").Logger(),
	}
}

// Get issues a GET with retries. Failed attempts escalate through the log
// levels: everything before the second-to-last attempt is debug, the
// second-to-last is a warning, the final one an error. A fully failed call
// therefore emits exactly one warning and one error.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, headers http.Header) ([]byte, bool) {
	attempts := c.opts.MaxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		body, err := c.do(ctx, rawURL, params, headers)
		elapsed := time.Since(started)

		if err == nil {
			if c.opts.WarningThreshold > 0 && elapsed > c.opts.WarningThreshold {
				c.logger.Warn().
					Str("url", rawURL).
					Dur("elapsed", elapsed).
					Dur("threshold", c.opts.WarningThreshold).
					Msg("slow response from data source")
			}
			return body, true
		}

		evt := c.logger.Debug()
		switch attempt {
		case attempts:
			evt = c.logger.Error()
		case attempts - 1:
			evt = c.logger.Warn()
		}
		evt.Err(err).
			Str("url", rawURL).
			Int("attempt", attempt).
			Int("max_retries", attempts).
			Msg("request failed")

		if attempt == attempts {
			break
		}

		backoff := time.Duration(float64(c.opts.RetryBackoff) * math.Pow(2, float64(attempt-1)))
		jitter := time.Duration(rand.Float64() * 0.5 * float64(backoff))
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff + jitter):
		}
	}

	return nil, false
}

func (c *Client) do(ctx context.Context, rawURL string, params url.Values, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		query := req.URL.Query()
		for key, values := range params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		req.URL.RawQuery = query.Encode()
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if detail != "" {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}
