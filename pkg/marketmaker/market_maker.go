package marketmaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MarketMaker represents the market making service
type MarketMaker struct {
	cfg          *Config
	logger       *slog.Logger
	orderPlacer  OrderPlacer
	probFetcher  ProbabilityFetcher
	strategy     Strategy
	activeOrders sync.Map // map[OrderRef]bool - tracks resting quotes
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger *slog.Logger, orderPlacer OrderPlacer, probFetcher ProbabilityFetcher, strategy Strategy) (*MarketMaker, error) {
	return &MarketMaker{
		cfg:         cfg,
		logger:      logger.With("component", "MarketMaker"),
		orderPlacer: orderPlacer,
		probFetcher: probFetcher,
		strategy:    strategy,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start begins the market making process
func (m *MarketMaker) Start(ctx context.Context) error {
	m.logger.Info("Starting market maker service",
		"market", m.cfg.MarketID,
		"outcome", m.cfg.OutcomeID,
		"update_interval", m.cfg.UpdateInterval)

	m.wg.Add(1)
	go m.run(ctx)

	return nil
}

// Stop gracefully shuts down the market maker
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info("Stopping market maker service")

	close(m.stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Market maker stopped successfully")
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	// Pull remaining quotes off the book.
	if err := m.cancelAllOrders(ctx); err != nil {
		m.logger.Error("Failed to cancel all orders during shutdown", "error", err)
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}

	return nil
}

// run is the main market making loop
func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping market maker loop")
			return
		case <-m.stopCh:
			m.logger.Info("Stop signal received, stopping market maker loop")
			return
		case <-ticker.C:
			if err := m.updateOrders(ctx); err != nil {
				m.logger.Error("Failed to update orders", "error", err)
				// Continue running despite errors
			}
		}
	}
}

// updateOrders performs a single iteration of the market making process
func (m *MarketMaker) updateOrders(ctx context.Context) error {
	probability, err := m.probFetcher.FetchProbability(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch probability: %w", err)
	}

	quotes, err := m.strategy.CalculateQuotes(ctx, probability)
	if err != nil {
		return fmt.Errorf("failed to calculate quotes: %w", err)
	}

	// Cancel the previous ladder before quoting the new one.
	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, quote := range quotes {
		ref, err := m.orderPlacer.PlaceOrder(ctx, quote)
		if err != nil {
			m.logger.Error("Failed to place order",
				"side", quote.Side.String(),
				"tick", quote.Tick,
				"error", err)
			continue
		}

		m.activeOrders.Store(ref, true)

		m.logger.Debug("Successfully placed order",
			"order_id", ref.ID,
			"side", quote.Side.String(),
			"tick", quote.Tick)
	}

	return nil
}

// cancelAllOrders cancels all tracked active orders
func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	m.activeOrders.Range(func(key, _ interface{}) bool {
		ref := key.(OrderRef)

		if err := m.orderPlacer.CancelOrder(ctx, ref); err != nil {
			m.logger.Error("Failed to cancel order",
				"order_id", ref.ID,
				"error", err)
			lastErr = err
			// Continue canceling other orders even if one fails
			return true
		}

		m.activeOrders.Delete(ref)
		m.logger.Debug("Successfully cancelled order", "order_id", ref.ID)
		return true
	})

	return lastErr
}
