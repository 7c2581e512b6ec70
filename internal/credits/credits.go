// Package credits meters generative model usage. Cost is deducted
// before a backend call and refunded when the call fails.
package credits

import (
	"context"
	"errors"
	"time"
)

// Transaction types recorded in the ledger.
const (
	TxSpend  = "spend"
	TxRefund = "refund"
	TxGrant  = "grant"
)

// Sentinel errors.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrTxNotFound          = errors.New("transaction not found")
)

// Transaction records one balance change.
type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	Type         string    `json:"type"`
	Model        string    `json:"model,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is a user's credit balance.
type Account struct {
	UserID     string    `json:"user_id"`
	Balance    float64   `json:"balance"`
	TotalSpent float64   `json:"total_spent"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger tracks balances and transactions. Deduct must be atomic: two
// concurrent deductions may not both succeed on a balance covering only
// one of them.
type Ledger interface {
	// Grant adds credits to a user's balance, creating the account if
	// needed.
	Grant(ctx context.Context, userID string, amount float64) (*Transaction, error)

	// Deduct removes amount from the balance for a model call and
	// returns the transaction used for a later refund. Returns
	// ErrInsufficientCredits when the balance does not cover amount.
	Deduct(ctx context.Context, userID, model string, amount float64) (*Transaction, error)

	// Refund reverses an earlier spend transaction.
	Refund(ctx context.Context, userID, txID, reason string) (*Transaction, error)

	// Balance returns the user's account.
	Balance(ctx context.Context, userID string) (*Account, error)
}
