// Package catalog talks to the companion application-catalog service,
// which knows the locally stored package files and their display names.
// Discovery uses it to map a catalog application onto a package file.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Record is one catalog application. PackageID is nil for entries the
// catalog has not identified yet; discovery then falls back to probing
// the file.
type Record struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	PackageID *string `json:"package_id"`
	FilePath  string  `json:"file_path"`
}

type listResponse struct {
	Applications []Record `json:"applications"`
}

// Client wraps resty with rate limiting and a circuit breaker; the
// catalog service restarts independently of this one.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *logging.Logger
}

// NewClient builds a catalog client from configuration.
func NewClient(cfg config.CatalogConfig, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", "droiddeck/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), int(cfg.RateRPS)+1)
	}

	breaker := resilience.New("catalog", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		http:    httpClient,
		limiter: limiter,
		breaker: breaker,
		log:     log.Named("catalog"),
	}
}

// GetAllApplications lists every catalog application.
func (c *Client) GetAllApplications(ctx context.Context) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog rate limit: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		var body listResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&body).
			Get("/v1/applications")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("catalog returned %s", resp.Status())
		}
		return body.Applications, nil
	})
	if err == resilience.ErrCircuitOpen {
		return nil, fmt.Errorf("catalog unavailable: circuit breaker open")
	}
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}

	apps := result.([]Record)
	c.log.Debug("catalog listed", zap.Int("applications", len(apps)))
	return apps, nil
}

// GetApplication fetches one catalog application by id.
func (c *Client) GetApplication(ctx context.Context, id string) (*Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog rate limit: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		var body Record
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetPathParam("id", id).
			Get("/v1/applications/{id}")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == 404 {
			return nil, fmt.Errorf("application %s not found", id)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("catalog returned %s", resp.Status())
		}
		return &body, nil
	})
	if err == resilience.ErrCircuitOpen {
		return nil, fmt.Errorf("catalog unavailable: circuit breaker open")
	}
	if err != nil {
		return nil, err
	}
	return result.(*Record), nil
}
