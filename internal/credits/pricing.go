package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// markupMultiplier is applied on top of the backend's unit price.
const markupMultiplier = 1.1

// Pricer quotes the cost of one generation call for a model endpoint.
type Pricer interface {
	Price(ctx context.Context, model string) (float64, error)
}

// StaticPricer serves prices from a fixed table, falling back to a
// default. Used for tests and deployments without a pricing API.
type StaticPricer struct {
	Prices  map[string]float64
	Default float64
}

func (p StaticPricer) Price(_ context.Context, model string) (float64, error) {
	if price, ok := p.Prices[model]; ok {
		return price, nil
	}
	return p.Default, nil
}

// HTTPPricer fetches unit prices from the model gateway's pricing API
// and applies the platform markup. Quotes are cached briefly; prices
// change rarely but every node execution asks.
type HTTPPricer struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu     sync.Mutex
	cache  map[string]cachedPrice
	maxAge time.Duration
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// NewHTTPPricer creates a pricer against the given pricing endpoint.
func NewHTTPPricer(baseURL, apiKey string) *HTTPPricer {
	return &HTTPPricer{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[string]cachedPrice),
		maxAge:  5 * time.Minute,
	}
}

// Price returns the marked-up cost of one call to the model.
func (p *HTTPPricer) Price(ctx context.Context, model string) (float64, error) {
	p.mu.Lock()
	if c, ok := p.cache[model]; ok && time.Since(c.fetched) < p.maxAge {
		p.mu.Unlock()
		return c.price, nil
	}
	p.mu.Unlock()

	reqURL := fmt.Sprintf("%s?endpoint_id=%s", p.baseURL, url.QueryEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build pricing request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Key "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read pricing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricing API returned %d", resp.StatusCode)
	}

	var decoded struct {
		Prices []struct {
			UnitPrice float64 `json:"unit_price"`
		} `json:"prices"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, fmt.Errorf("decode pricing response: %w", err)
	}
	if len(decoded.Prices) == 0 {
		return 0, fmt.Errorf("no pricing found for model %s", model)
	}

	price := decoded.Prices[0].UnitPrice * markupMultiplier

	p.mu.Lock()
	p.cache[model] = cachedPrice{price: price, fetched: time.Now()}
	p.mu.Unlock()

	return price, nil
}
