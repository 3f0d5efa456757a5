package marketmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openclob/pointsbook/pkg/core"
)

// Ensure httpOrderPlacer implements OrderPlacer interface
var _ OrderPlacer = (*httpOrderPlacer)(nil)

// httpOrderPlacer implements the OrderPlacer interface over the trading
// server's REST API.
type httpOrderPlacer struct {
	client *http.Client
	cfg    *Config
	logger *slog.Logger
}

// NewHTTPOrderPlacer returns an OrderPlacer talking to the configured
// API base URL.
func NewHTTPOrderPlacer(cfg *Config, logger *slog.Logger) (OrderPlacer, error) {
	logger.Info("Using trading API", "url", cfg.APIBaseURL, "engine", cfg.EngineName)

	return &httpOrderPlacer{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		logger: logger.With("component", "httpOrderPlacer"),
	}, nil
}

// PlaceOrder submits a limit order and returns its reference.
func (p *httpOrderPlacer) PlaceOrder(ctx context.Context, quote Quote) (OrderRef, error) {
	p.logger.Debug("Placing order",
		"side", quote.Side.String(),
		"tick", quote.Tick,
		"size", quote.Size)

	var result struct {
		OrderID uint64 `json:"OrderID"`
	}
	err := p.post(ctx, fmt.Sprintf("/engines/%s/orders", p.cfg.EngineName), map[string]any{
		"user":    uint64(p.cfg.UserID),
		"market":  uint32(p.cfg.MarketID),
		"outcome": uint16(p.cfg.OutcomeID),
		"side":    strings.ToLower(quote.Side.String()),
		"tick":    uint8(quote.Tick),
		"size":    quote.Size,
	}, &result)
	if err != nil {
		p.logger.Error("PlaceOrder failed",
			"side", quote.Side.String(),
			"tick", quote.Tick,
			"error", err)
		return OrderRef{}, fmt.Errorf("PlaceOrder failed: %w", err)
	}

	p.logger.Info("Successfully placed order",
		"order_id", result.OrderID,
		"side", quote.Side.String(),
		"tick", quote.Tick)
	return OrderRef{Side: quote.Side, ID: core.OrderID(result.OrderID)}, nil
}

// CancelOrder removes a resting order. An order that is already gone
// counts as cancelled.
func (p *httpOrderPlacer) CancelOrder(ctx context.Context, ref OrderRef) error {
	p.logger.Debug("Cancelling order", "order_id", ref.ID)

	// Non-head orders need predecessor hints.
	var hints struct {
		Candidates []uint64 `json:"candidates"`
	}
	path := fmt.Sprintf("/engines/%s/orders/%d/predecessors?market=%d&outcome=%d&side=%s",
		p.cfg.EngineName, ref.ID, p.cfg.MarketID, p.cfg.OutcomeID,
		strings.ToLower(ref.Side.String()))
	if err := p.get(ctx, path, &hints); err != nil {
		if isGone(err) {
			p.logger.Info("Order already gone, skipping cancel", "order_id", ref.ID)
			return nil
		}
		return fmt.Errorf("fetch predecessors failed: %w", err)
	}

	err := p.post(ctx, fmt.Sprintf("/engines/%s/cancels", p.cfg.EngineName), map[string]any{
		"user":            uint64(p.cfg.UserID),
		"market":          uint32(p.cfg.MarketID),
		"outcome":         uint16(p.cfg.OutcomeID),
		"side":            strings.ToLower(ref.Side.String()),
		"order":           uint64(ref.ID),
		"prev_candidates": hints.Candidates,
	}, nil)
	if err != nil {
		// A filled or already-cancelled order achieves the same goal.
		if isGone(err) {
			p.logger.Info("Cancel skipped as order was not open (likely filled)",
				"order_id", ref.ID)
			return nil
		}
		p.logger.Error("CancelOrder failed", "order_id", ref.ID, "error", err)
		return fmt.Errorf("CancelOrder failed: %w", err)
	}

	p.logger.Info("Successfully cancelled order", "order_id", ref.ID)
	return nil
}

// Close implements OrderPlacer.
func (p *httpOrderPlacer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d)", e.message, e.status)
}

// isGone reports whether the API said the order no longer exists or is
// no longer open.
func isGone(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && (apiErr.status == http.StatusNotFound || apiErr.status == http.StatusConflict)
}

func (p *httpOrderPlacer) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.APIBaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *httpOrderPlacer) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.cfg.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *httpOrderPlacer) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var decoded struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &decoded) != nil || decoded.Error == "" {
			decoded.Error = "request failed"
		}
		return &apiError{status: resp.StatusCode, message: decoded.Error}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
