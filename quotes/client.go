package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/workflow"
	"github.com/shopspring/decimal"
)

// Client fetches spot quotes from a Yahoo-compatible quote endpoint.
// Symbols follow the exchange-suffix convention (PETR4.SA, VOD.L).
// It implements workflow.QuoteProvider.
type Client struct {
	baseURL string
	http    *http.Client
	limiter <-chan time.Time
}

// NewClient builds a client from the environment:
//   - QUOTES_API_BASE_URL (default https://query1.finance.yahoo.com)
//   - QUOTES_API_TIMEOUT_SECONDS (default 5; quote calls are blocking I/O
//     inside batch runs and must not hang them)
//   - QUOTES_RATE_LIMIT_PER_MIN (default 60)
func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("QUOTES_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	timeout := time.Duration(config.IntFromEnv("QUOTES_API_TIMEOUT_SECONDS", 5)) * time.Second
	ratePerMin := config.IntFromEnv("QUOTES_RATE_LIMIT_PER_MIN", 60)
	if ratePerMin <= 0 {
		ratePerMin = 60
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: time.Tick(time.Minute / time.Duration(ratePerMin)),
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string   `json:"symbol"`
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuote returns the regular market price for a symbol, or
// workflow.ErrQuoteNotFound when the provider knows nothing about it.
func (c *Client) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	<-c.limiter

	params := url.Values{}
	params.Set("symbols", symbol)
	endpoint := c.baseURL + "/v7/finance/quote?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, workflow.ErrQuoteNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("quotes api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, err
	}
	if parsed.QuoteResponse.Error != nil {
		return decimal.Zero, fmt.Errorf("quotes api error: %s", parsed.QuoteResponse.Error.Description)
	}
	for _, r := range parsed.QuoteResponse.Result {
		if r.RegularMarketPrice != nil {
			return decimal.NewFromFloat(*r.RegularMarketPrice), nil
		}
	}
	return decimal.Zero, workflow.ErrQuoteNotFound
}
