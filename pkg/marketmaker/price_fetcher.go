package marketmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// oracleProbabilityFetcher implements ProbabilityFetcher against a
// probability oracle exposing a simple JSON endpoint.
type oracleProbabilityFetcher struct {
	client  *http.Client
	cfg     *Config
	logger  *slog.Logger
	baseURL string
}

// oracleResponse represents the response from the oracle's probability endpoint
type oracleResponse struct {
	Market      uint32 `json:"market"`
	Outcome     uint16 `json:"outcome"`
	Probability string `json:"probability"`
}

// NewProbabilityFetcher creates a new ProbabilityFetcher backed by the
// configured oracle URL
func NewProbabilityFetcher(cfg *Config, logger *slog.Logger) (ProbabilityFetcher, error) {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}

	return &oracleProbabilityFetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "oracleProbabilityFetcher"),
		baseURL: cfg.OracleURL,
	}, nil
}

// FetchProbability fetches the current probability from the oracle
func (f *oracleProbabilityFetcher) FetchProbability(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/probability?market=%d&outcome=%d", f.baseURL, f.cfg.MarketID, f.cfg.OutcomeID)

	var attempts int
	var lastErr error
	for attempts = 1; attempts <= f.cfg.MaxRetries; attempts++ {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed (attempt %d/%d): %w",
				attempts, f.cfg.MaxRetries, err)
			f.logger.Warn("Probability fetch request failed",
				"attempt", attempts,
				"max_retries", f.cfg.MaxRetries,
				"error", err)
			time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP request returned non-200 status (attempt %d/%d): %d",
				attempts, f.cfg.MaxRetries, resp.StatusCode)
			f.logger.Warn("Probability fetch returned non-200 status",
				"attempt", attempts,
				"max_retries", f.cfg.MaxRetries,
				"status", resp.StatusCode)
			time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
			continue
		}

		var oracleResp oracleResponse
		err = json.NewDecoder(resp.Body).Decode(&oracleResp)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response (attempt %d/%d): %w",
				attempts, f.cfg.MaxRetries, err)
			f.logger.Warn("Failed to decode probability response",
				"attempt", attempts,
				"max_retries", f.cfg.MaxRetries,
				"error", err)
			time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
			continue
		}

		probability, err := strconv.ParseFloat(oracleResp.Probability, 64)
		if err != nil || probability <= 0 || probability >= 1 {
			lastErr = fmt.Errorf("invalid probability '%s' (attempt %d/%d)",
				oracleResp.Probability, attempts, f.cfg.MaxRetries)
			f.logger.Warn("Invalid probability value",
				"attempt", attempts,
				"max_retries", f.cfg.MaxRetries,
				"probability", oracleResp.Probability)
			time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
			continue
		}

		f.logger.Debug("Successfully fetched probability",
			"market", f.cfg.MarketID,
			"outcome", f.cfg.OutcomeID,
			"probability", probability,
			"attempt", attempts)
		return probability, nil
	}

	return 0, fmt.Errorf("failed to fetch probability after %d attempts: %w", attempts-1, lastErr)
}

// Close implements ProbabilityFetcher
func (f *oracleProbabilityFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
