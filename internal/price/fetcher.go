// Package price converts raffle amounts to fiat using CoinGecko quotes.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// coinID is the CoinGecko id of the raffle's currency. Testnet ETH is
// quoted at the mainnet price.
const coinID = "ethereum"

// Fetcher retrieves ETH prices from CoinGecko.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	currency string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithBaseURL points the fetcher at another CoinGecko-compatible API.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

// NewFetcher creates a fetcher quoting in currency (default usd).
func NewFetcher(currency string, opts ...Option) *Fetcher {
	if currency == "" {
		currency = "usd"
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
		currency: strings.ToLower(currency),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Currency returns the quote currency.
func (f *Fetcher) Currency() string { return f.currency }

// ETH returns the price of one ETH.
func (f *Fetcher) ETH(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", f.baseURL, coinID, f.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned %d", resp.StatusCode)
	}

	// {"ethereum":{"usd":1234.56}}
	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parsing price response: %w", err)
	}
	p, ok := raw[coinID][f.currency]
	if !ok {
		return 0, fmt.Errorf("no %s quote for %s", f.currency, coinID)
	}
	return p, nil
}

// Value converts wei to the quote currency.
func (f *Fetcher) Value(ctx context.Context, wei *big.Int) (float64, error) {
	p, err := f.ETH(ctx)
	if err != nil {
		return 0, err
	}
	return ToFiat(wei, p), nil
}

// ToFiat converts wei at price per ETH.
func ToFiat(wei *big.Int, price float64) float64 {
	if wei == nil {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return eth * price
}

// Format renders v like "12.34 USD".
func Format(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", v, strings.ToUpper(currency))
}
