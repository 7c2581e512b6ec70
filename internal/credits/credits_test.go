package credits

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func testLedger(t *testing.T, name string) Ledger {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryLedger()
	case "redis":
		mr := miniredis.RunT(t)
		l, err := NewRedisLedger("redis://" + mr.Addr())
		if err != nil {
			t.Fatalf("NewRedisLedger: %v", err)
		}
		t.Cleanup(func() { l.Close() })
		return l
	default:
		t.Fatalf("unknown ledger %q", name)
		return nil
	}
}

func TestLedger(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			l := testLedger(t, impl)

			if _, err := l.Balance(ctx, "u1"); !errors.Is(err, ErrAccountNotFound) {
				t.Errorf("expected ErrAccountNotFound, got %v", err)
			}

			if _, err := l.Grant(ctx, "u1", 10); err != nil {
				t.Fatalf("Grant: %v", err)
			}

			tx, err := l.Deduct(ctx, "u1", "fal-ai/nano-banana", 2.5)
			if err != nil {
				t.Fatalf("Deduct: %v", err)
			}
			if tx.Amount != -2.5 || tx.Type != TxSpend {
				t.Errorf("tx = %+v", tx)
			}

			acct, err := l.Balance(ctx, "u1")
			if err != nil {
				t.Fatalf("Balance: %v", err)
			}
			if math.Abs(acct.Balance-7.5) > 1e-9 || math.Abs(acct.TotalSpent-2.5) > 1e-9 {
				t.Errorf("account = %+v", acct)
			}

			if _, err := l.Deduct(ctx, "u1", "fal-ai/veo3.1", 100); !errors.Is(err, ErrInsufficientCredits) {
				t.Errorf("expected ErrInsufficientCredits, got %v", err)
			}

			refund, err := l.Refund(ctx, "u1", tx.ID, "generation failed")
			if err != nil {
				t.Fatalf("Refund: %v", err)
			}
			if refund.Amount != 2.5 || refund.Type != TxRefund {
				t.Errorf("refund = %+v", refund)
			}

			acct, _ = l.Balance(ctx, "u1")
			if math.Abs(acct.Balance-10) > 1e-9 {
				t.Errorf("balance after refund = %v", acct.Balance)
			}

			// A refund cannot be refunded.
			if _, err := l.Refund(ctx, "u1", refund.ID, ""); !errors.Is(err, ErrTxNotFound) {
				t.Errorf("expected ErrTxNotFound, got %v", err)
			}
		})
	}
}

func TestDeductUnknownAccount(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			l := testLedger(t, impl)
			if _, err := l.Deduct(context.Background(), "nobody", "m", 1); !errors.Is(err, ErrAccountNotFound) {
				t.Errorf("expected ErrAccountNotFound, got %v", err)
			}
		})
	}
}

func TestStaticPricer(t *testing.T) {
	p := StaticPricer{Prices: map[string]float64{"fal-ai/nano-banana": 0.04}, Default: 0.1}

	if price, _ := p.Price(context.Background(), "fal-ai/nano-banana"); price != 0.04 {
		t.Errorf("price = %v", price)
	}
	if price, _ := p.Price(context.Background(), "unknown/model"); price != 0.1 {
		t.Errorf("default price = %v", price)
	}
}

func TestHTTPPricer(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("endpoint_id"); got != "fal-ai/veo3.1" {
			t.Errorf("endpoint_id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"prices": []map[string]float64{{"unit_price": 1.0}},
		})
	}))
	defer srv.Close()

	p := NewHTTPPricer(srv.URL, "key")
	price, err := p.Price(context.Background(), "fal-ai/veo3.1")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if math.Abs(price-1.1) > 1e-9 {
		t.Errorf("price with markup = %v", price)
	}

	// Second lookup is served from cache.
	if _, err := p.Price(context.Background(), "fal-ai/veo3.1"); err != nil {
		t.Fatalf("Price: %v", err)
	}
	if calls != 1 {
		t.Errorf("API called %d times", calls)
	}
}

func TestHTTPPricerNoPricing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"prices": []any{}})
	}))
	defer srv.Close()

	p := NewHTTPPricer(srv.URL, "")
	if _, err := p.Price(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown model")
	}
}
