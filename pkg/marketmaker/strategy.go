package marketmaker

import (
	"context"
	"log/slog"
	"math"

	"github.com/openclob/pointsbook/pkg/core"
)

// LayeredSymmetricQuoting quotes symmetric bid/ask ladders around the
// tick implied by the oracle probability. Levels that would fall off
// the price axis are dropped rather than clamped, so quoting near the
// extremes produces a one-sided ladder.
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger *slog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *slog.Logger) Strategy {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With("component", "LayeredSymmetricQuoting"),
	}
}

// CalculateQuotes implements Strategy
func (s *LayeredSymmetricQuoting) CalculateQuotes(ctx context.Context, probability float64) ([]Quote, error) {
	center := int(math.Round(probability * 100))
	if center < int(core.MinTick) {
		center = int(core.MinTick)
	}
	if center > int(core.MaxTick) {
		center = int(core.MaxTick)
	}

	quotes := make([]Quote, 0, s.cfg.NumLevels*2)

	for i := 0; i < s.cfg.NumLevels; i++ {
		bidTick := center - s.cfg.HalfSpreadTicks - i*s.cfg.StepTicks
		askTick := center + s.cfg.HalfSpreadTicks + i*s.cfg.StepTicks

		if bidTick >= int(core.MinTick) {
			quotes = append(quotes, Quote{Side: core.Bid, Tick: core.Tick(bidTick), Size: s.cfg.OrderSize})
		}
		if askTick <= int(core.MaxTick) {
			quotes = append(quotes, Quote{Side: core.Ask, Tick: core.Tick(askTick), Size: s.cfg.OrderSize})
		}

		s.logger.Debug("Calculated quote pair",
			"level", i+1,
			"bid_tick", bidTick,
			"ask_tick", askTick,
			"size", s.cfg.OrderSize)
	}

	return quotes, nil
}
