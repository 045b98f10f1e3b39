package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/volatility"
)

var _ volatility.HistoryProvider = (*ClobClient)(nil)

// ClobClient is the read-only REST client for the Polymarket CLOB API. Only
// the public price-history endpoint is used.
type ClobClient struct {
	http *httpDoer
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, timeout time.Duration) *ClobClient {
	return &ClobClient{http: newHTTPDoer(baseURL, timeout)}
}

// PriceHistory returns the price series of token between start and end,
// sampled every fidelity (rounded down to whole minutes, at least one).
func (c *ClobClient) PriceHistory(ctx context.Context, token string, start, end time.Time, fidelity time.Duration) ([]domain.PricePoint, error) {
	minutes := int(fidelity / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	params := url.Values{}
	params.Set("market", token)
	params.Set("startTs", strconv.FormatInt(start.Unix(), 10))
	params.Set("endTs", strconv.FormatInt(end.Unix(), 10))
	params.Set("fidelity", strconv.Itoa(minutes))

	body, err := c.http.get(ctx, "/prices-history", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w", token, err)
	}

	var hist APIPriceHistory
	if err := json.Unmarshal(body, &hist); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode price history: %w", err)
	}
	return hist.ToDomain(), nil
}
