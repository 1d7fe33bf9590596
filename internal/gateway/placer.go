package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rtpalgo/terminal/internal/metrics"
	"github.com/rtpalgo/terminal/internal/types"
)

// PlacerConfig holds retry and throttling settings for order placement.
type PlacerConfig struct {
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond int
}

// DefaultPlacerConfig returns the default placement policy.
func DefaultPlacerConfig() PlacerConfig {
	return PlacerConfig{
		MaxRetries:        5,
		RetryDelay:        3 * time.Second,
		RequestsPerSecond: 10,
	}
}

// Placer wraps a Gateway with bounded placement retries and a request
// rate limit. Exhausted retries surface as ErrPlacementFailed scoped to
// the one order; the engine decides whether that halts anything wider.
type Placer struct {
	gw      Gateway
	cfg     PlacerConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPlacer creates a retrying placer around gw.
func NewPlacer(gw Gateway, cfg PlacerConfig, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &Placer{
		gw:      gw,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		logger:  logger,
	}
}

// Place attempts placement up to MaxRetries times with RetryDelay
// between attempts.
func (p *Placer) Place(ctx context.Context, req OrderRequest) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("placement rate limit: %w", err)
		}

		orderID, err := p.gw.Place(ctx, req)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		metrics.PlacementRetries.Inc()

		p.logger.Warn("order placement failed, retrying",
			"instrument", req.Instrument,
			"attempt", attempt,
			"max_retries", p.cfg.MaxRetries,
			"err", err,
		)

		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.cfg.RetryDelay):
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v",
		types.ErrPlacementFailed, p.cfg.MaxRetries, lastErr)
}

// Modify forwards to the gateway under the shared rate limit. Failures
// are non-fatal to the row.
func (p *Placer) Modify(ctx context.Context, orderID string, req OrderRequest) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("modification rate limit: %w", err)
	}
	return p.gw.Modify(ctx, orderID, req)
}

// Cancel forwards to the gateway under the shared rate limit.
func (p *Placer) Cancel(ctx context.Context, orderID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("cancellation rate limit: %w", err)
	}
	return p.gw.Cancel(ctx, orderID)
}

// OrderStatus forwards to the gateway under the shared rate limit.
func (p *Placer) OrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return OrderStatus{State: OrderUnknown}, fmt.Errorf("status rate limit: %w", err)
	}
	return p.gw.OrderStatus(ctx, orderID)
}

// Margin forwards to the gateway.
func (p *Placer) Margin(ctx context.Context) (MarginSummary, error) {
	return p.gw.Margin(ctx)
}

var _ Gateway = (*Placer)(nil)
