// Package api is the adapter for the marketplace's JSON-over-HTTP
// interface: one retrying, rate-limited, breaker-guarded client plus
// typed endpoint wrappers that translate between wire DTOs and domain
// records.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

const (
	defaultMaxRetries      = 3
	defaultRetryBase       = time.Second
	defaultTotalBudget     = 30 * time.Second
	defaultCallTimeout     = 30 * time.Second
	defaultConnectTimeout  = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 60 * time.Second
	defaultTransportRate   = 12 // sends per second per account
)

// PermitAcquirer grants rate-limiter permits. The client acquires one
// before every HTTP attempt, retries included.
type PermitAcquirer interface {
	Acquire(ctx context.Context, account shared.Account, class string) error
}

// Observer receives one event per HTTP attempt. The metrics adapter
// implements it; NopObserver is the default.
type Observer interface {
	RecordAttempt(account, method, path string, statusCode int, duration time.Duration)
}

// NopObserver discards all attempt events.
type NopObserver struct{}

func (NopObserver) RecordAttempt(string, string, string, int, time.Duration) {}

// AccountConfig holds one account's endpoint and credentials.
type AccountConfig struct {
	BaseURL  string
	Username string
	Password string
}

// ClientConfig tunes the transport. Zero values pick the marketplace
// defaults.
type ClientConfig struct {
	Accounts        map[shared.Account]AccountConfig
	MaxRetries      int
	RetryBase       time.Duration
	TotalBudget     time.Duration
	CallTimeout     time.Duration
	ConnectTimeout  time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration

	// TransportRate spaces the actual sends per account. The window
	// limiter admits in bursts at window edges; this floor keeps those
	// admissions from reaching the host in the same millisecond.
	TransportRate float64

	// HTTPClient overrides the built transport; tests use it to
	// shrink timeouts.
	HTTPClient *http.Client
}

func (cfg *ClientConfig) withDefaults() {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.TotalBudget == 0 {
		cfg.TotalBudget = defaultTotalBudget
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if cfg.TransportRate == 0 {
		cfg.TransportRate = defaultTransportRate
	}
}

// Client talks to the marketplace API for all configured accounts.
type Client struct {
	httpClient *http.Client
	accounts   map[shared.Account]AccountConfig
	breakers   map[shared.Account]*CircuitBreaker
	pacers     map[shared.Account]*rate.Limiter
	limiter    PermitAcquirer
	clock      shared.Clock
	logger     *zap.Logger
	observer   Observer

	rngMu sync.Mutex
	rng   *rand.Rand

	maxRetries  int
	retryBase   time.Duration
	totalBudget time.Duration
}

// NewClient builds the client. The random source feeds backoff jitter;
// tests inject a seeded one for reproducible delays.
func NewClient(cfg ClientConfig, limiter PermitAcquirer, clock shared.Clock, rng *rand.Rand, logger *zap.Logger, observer Observer) *Client {
	cfg.withDefaults()
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.CallTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	breakers := make(map[shared.Account]*CircuitBreaker, len(cfg.Accounts))
	pacers := make(map[shared.Account]*rate.Limiter, len(cfg.Accounts))
	for account := range cfg.Accounts {
		breakers[account] = NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown, clock, tripsBreaker)
		pacers[account] = rate.NewLimiter(rate.Limit(cfg.TransportRate), 1)
	}

	return &Client{
		httpClient:  httpClient,
		accounts:    cfg.Accounts,
		breakers:    breakers,
		pacers:      pacers,
		limiter:     limiter,
		clock:       clock,
		logger:      logger,
		observer:    observer,
		rng:         rng,
		maxRetries:  cfg.MaxRetries,
		retryBase:   cfg.RetryBase,
		totalBudget: cfg.TotalBudget,
	}
}

// Breaker exposes the account's circuit breaker for status reporting.
func (c *Client) Breaker(account shared.Account) *CircuitBreaker {
	return c.breakers[account]
}

// Call sends one logical request: compact-JSON body, basic auth for
// the account, a limiter permit and a paced send slot before every
// attempt, jittered exponential backoff on retryable failures, all
// under the account's circuit breaker.
func (c *Client) Call(ctx context.Context, method, path string, account shared.Account, class string, body any, query url.Values) (*Envelope, error) {
	acct, ok := c.accounts[account]
	if !ok {
		return nil, fmt.Errorf("account %q is not configured", account)
	}
	breaker := c.breakers[account]

	var payload []byte
	if body != nil {
		var err error
		payload, err = marshalCompact(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	var env *Envelope
	err := breaker.Call(func() error {
		var callErr error
		env, callErr = c.doWithRetries(ctx, acct, account, class, method, path, payload, query)
		return callErr
	})
	if err != nil {
		if errors.Is(err, shared.ErrCircuitOpen) {
			return nil, fmt.Errorf("account %s: %w", account, shared.ErrCircuitOpen)
		}
		return nil, err
	}
	return env, nil
}

// doWithRetries runs the attempt loop: permit, attempt, classify, back
// off. Retry-After from a 429 overrides the computed backoff. A retry
// is abandoned when its delay would blow the total budget.
func (c *Client) doWithRetries(ctx context.Context, acct AccountConfig, account shared.Account, class, method, path string, payload []byte, query url.Values) (*Envelope, error) {
	start := c.clock.Now()
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt - 1)
			if hint := retryAfterHint(lastErr); hint > 0 {
				delay = hint
			}
			if c.clock.Now().Sub(start)+delay > c.totalBudget {
				c.logger.Warn("retry budget exhausted",
					zap.String("account", string(account)),
					zap.String("path", path),
					zap.Int("attempts", attempt),
					zap.Error(lastErr))
				break
			}
			c.logger.Debug("retrying marketplace call",
				zap.String("account", string(account)),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			c.clock.Sleep(delay)
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, shared.ErrCancelled)
		}
		if err := c.limiter.Acquire(ctx, account, class); err != nil {
			return nil, err
		}
		if err := c.pacers[account].Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, shared.ErrCancelled)
		}

		env, err := c.attempt(ctx, acct, account, method, path, payload, query)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s %s gave up after retries: %w", method, path, lastErr)
}

// attempt performs exactly one HTTP round trip.
func (c *Client) attempt(ctx context.Context, acct AccountConfig, account shared.Account, method, path string, payload []byte, query url.Values) (*Envelope, error) {
	endpoint := strings.TrimRight(acct.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(acct.Username, acct.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	attemptStart := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.RecordAttempt(string(account), method, path, 0, c.clock.Now().Sub(attemptStart))
		return nil, fmt.Errorf("%s %s: %w", method, path, categorizeTransport(err))
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	c.observer.RecordAttempt(string(account), method, path, resp.StatusCode, c.clock.Now().Sub(attemptStart))
	if readErr != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, shared.ErrNetwork)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %w", method, path, categorizeStatus(resp.StatusCode, resp.Header, raw))
	}
	return parseEnvelope(raw, resp.StatusCode)
}

// backoffDelay computes base * 2^exp with a uniform +-base/2 jitter.
func (c *Client) backoffDelay(exp int) time.Duration {
	delay := c.retryBase << uint(exp)
	if c.rng == nil {
		return delay
	}
	c.rngMu.Lock()
	jitter := (c.rng.Float64()*2 - 1) * float64(c.retryBase) / 2
	c.rngMu.Unlock()
	return delay + time.Duration(jitter)
}

// marshalCompact encodes v as single-line JSON without HTML escaping,
// the shape the marketplace parser expects.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
