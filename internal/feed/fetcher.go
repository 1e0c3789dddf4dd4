package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Errors returned by Fetch.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrTooLarge    = errors.New("feed exceeds size limit")
)

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config holds configuration for a Fetcher.
type Config struct {
	// Name identifies the feed source in logs, health and the breaker.
	Name string

	// Timeout bounds a single HTTP attempt. Default: 2 minutes
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 3
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff.
	// Defaults: 1s and 30s
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxBytes caps the downloaded body. Default: 256 MiB
	MaxBytes int64

	Breaker BreakerConfig

	// Health, when set, records every fetch outcome.
	Health *Health

	// HTTPClient overrides the default client. Its Timeout is left as-is.
	HTTPClient *http.Client
}

// Fetcher downloads feeds from one source.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewFetcher creates a fetcher and registers it with cfg.Health.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 256 << 20
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{
		cfg:     cfg,
		client:  client,
		breaker: newBreaker(cfg.Name, cfg.Breaker),
	}
	if cfg.Health != nil {
		cfg.Health.register(cfg.Name, f)
	}
	return f
}

// Name returns the feed source name.
func (f *Fetcher) Name() string {
	return f.cfg.Name
}

// State returns the breaker state.
func (f *Fetcher) State() gobreaker.State {
	return f.breaker.State()
}

// Counts returns the breaker counts.
func (f *Fetcher) Counts() gobreaker.Counts {
	return f.breaker.Counts()
}

// Fetch downloads url. Network errors, 5xx and 429 are retried with
// exponential backoff; other non-2xx responses fail immediately with a
// *StatusError. When the breaker is open Fetch fails with ErrCircuitOpen
// without making a request.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialInterval
	bo.MaxInterval = f.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var body []byte
	operation := func() error {
		data, err := f.breaker.Execute(func() ([]byte, error) {
			return f.get(ctx, url)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrTooLarge) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = data
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, f.cfg.MaxRetries), ctx))
	if f.cfg.Health != nil {
		if err != nil {
			f.cfg.Health.recordFailure(f.cfg.Name, err)
		} else {
			f.cfg.Health.recordSuccess(f.cfg.Name, len(body))
		}
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}
	return data, nil
}
