package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-memory Ledger. Suitable for development and
// testing; balances are lost on restart.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*Account
	txs      map[string]*Transaction
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[string]*Account),
		txs:      make(map[string]*Transaction),
	}
}

func (l *MemoryLedger) record(userID string, amount float64, txType, model, reason string, balanceAfter float64) *Transaction {
	tx := &Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Type:         txType,
		Model:        model,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	l.txs[tx.ID] = tx
	return tx
}

func (l *MemoryLedger) Grant(_ context.Context, userID string, amount float64) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[userID]
	if !ok {
		acct = &Account{UserID: userID}
		l.accounts[userID] = acct
	}
	acct.Balance += amount
	acct.UpdatedAt = time.Now().UTC()

	return l.record(userID, amount, TxGrant, "", "", acct.Balance), nil
}

func (l *MemoryLedger) Deduct(_ context.Context, userID, model string, amount float64) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if acct.Balance < amount {
		return nil, ErrInsufficientCredits
	}

	acct.Balance -= amount
	acct.TotalSpent += amount
	acct.UpdatedAt = time.Now().UTC()

	return l.record(userID, -amount, TxSpend, model, "", acct.Balance), nil
}

func (l *MemoryLedger) Refund(_ context.Context, userID, txID, reason string) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	orig, ok := l.txs[txID]
	if !ok || orig.UserID != userID || orig.Type != TxSpend {
		return nil, ErrTxNotFound
	}

	acct, ok := l.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	amount := -orig.Amount
	acct.Balance += amount
	acct.TotalSpent -= amount
	acct.UpdatedAt = time.Now().UTC()

	return l.record(userID, amount, TxRefund, orig.Model, reason, acct.Balance), nil
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *acct
	return &copied, nil
}

// Verify interface compliance
var _ Ledger = (*MemoryLedger)(nil)
