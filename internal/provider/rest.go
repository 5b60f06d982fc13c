package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/config"
	"github.com/quantpulse/price-engine/internal/models"
)

const maxErrorPayload = 512

// RESTProvider adapts a JSON-over-HTTP candle API to the PriceProvider
// interface. Most commercial OHLCV feeds fit this shape; anything exotic gets
// its own implementation.
type RESTProvider struct {
	name         string
	baseURL      string
	apiKey       string
	capabilities models.SourceCapabilities
	httpClient   *http.Client
	logger       *logrus.Logger
}

// candleResponse is the wire shape of a candle endpoint response.
type candleResponse struct {
	Candles []wireCandle `json:"candles"`
}

type wireCandle struct {
	Timestamp     int64   `json:"timestamp"` // unix seconds, candle open
	Open          string  `json:"open"`
	High          string  `json:"high"`
	Low           string  `json:"low"`
	Close         string  `json:"close"`
	Volume        string  `json:"volume"`
	TradeCount    *int64  `json:"trade_count,omitempty"`
	QuoteCurrency *string `json:"quote_currency,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRESTProvider builds a provider from its source configuration.
func NewRESTProvider(cfg config.SourceConfig, logger *logrus.Logger) (*RESTProvider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("source config missing name")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("source %s missing base_url", cfg.Name)
	}

	categories := make([]models.AssetCategory, 0, len(cfg.Categories))
	for _, raw := range cfg.Categories {
		cat := models.AssetCategory(strings.ToUpper(raw))
		if !cat.Valid() {
			return nil, fmt.Errorf("source %s declares unknown category %q", cfg.Name, raw)
		}
		categories = append(categories, cat)
	}

	timeout := config.Duration(cfg.Timeout, 30*time.Second)

	return &RESTProvider{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		capabilities: models.SourceCapabilities{
			Categories:      categories,
			HistoricalDepth: config.Duration(cfg.HistoricalDepth, 0),
			MaxRequests:     cfg.MaxRequests,
			WindowSeconds:   cfg.WindowSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name returns the source identifier.
func (p *RESTProvider) Name() string {
	return p.name
}

// Capabilities returns the declared source capabilities.
func (p *RESTProvider) Capabilities() models.SourceCapabilities {
	return p.capabilities
}

// FetchCandles retrieves candles for [start, end] from the remote API.
func (p *RESTProvider) FetchCandles(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]Candle, error) {
	query := url.Values{}
	query.Set("interval", strconv.Itoa(int(interval)))
	query.Set("start", strconv.FormatInt(start.UTC().Unix(), 10))
	query.Set("end", strconv.FormatInt(end.UTC().Unix(), 10))

	endpoint := fmt.Sprintf("%s/api/v1/candles/%s?%s", p.baseURL, url.PathEscape(ticker), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Source: p.name, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.WithError(err).Warn("Error closing response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Source: p.name, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Source: p.name, RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Source: p.name, Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Source: p.name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(body))}
	case resp.StatusCode >= 400:
		return nil, &ValidationError{Source: p.name, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, errorMessage(body)), Payload: truncate(body)}
	}

	var decoded candleResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ValidationError{Source: p.name, Message: err.Error(), Payload: truncate(body)}
	}

	candles := make([]Candle, 0, len(decoded.Candles))
	for _, wc := range decoded.Candles {
		candle, err := wc.normalize(interval)
		if err != nil {
			return nil, &ValidationError{Source: p.name, Message: err.Error(), Payload: truncate(body)}
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (wc wireCandle) normalize(interval models.Interval) (Candle, error) {
	ts := time.Unix(wc.Timestamp, 0).UTC()
	if !ts.Equal(interval.Align(ts)) {
		return Candle{}, fmt.Errorf("timestamp %d not aligned to %d minute interval", wc.Timestamp, interval)
	}

	candle := Candle{Timestamp: ts, TradeCount: wc.TradeCount}
	if wc.QuoteCurrency != nil {
		candle.QuoteCurrency = *wc.QuoteCurrency
	}

	for _, field := range []struct {
		name string
		raw  string
		dest *decimal.Decimal
	}{
		{"open", wc.Open, &candle.Open},
		{"high", wc.High, &candle.High},
		{"low", wc.Low, &candle.Low},
		{"close", wc.Close, &candle.Close},
		{"volume", wc.Volume, &candle.Volume},
	} {
		value, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Candle{}, fmt.Errorf("bad %s value %q", field.name, field.raw)
		}
		*field.dest = value
	}

	if candle.High.LessThan(candle.Low) {
		return Candle{}, fmt.Errorf("high %s below low %s", candle.High, candle.Low)
	}
	return candle, nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return truncate(body)
}

func truncate(body []byte) string {
	if len(body) > maxErrorPayload {
		return string(body[:maxErrorPayload]) + "..."
	}
	return string(body)
}
