package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayush/research-assistant/backend/internal/models"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrUserNotFound also matches ErrInsufficientCredits: an unknown user
	// has no credits to spend.
	ErrUserNotFound  = fmt.Errorf("%w: user not found", ErrInsufficientCredits)
	ErrInvalidAmount = errors.New("credit amount must not be negative")
)

// UserStore is the persistence the ledger needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	DecrementCredits(ctx context.Context, id string, amount int) (int, error)
}

// Ledger gates job admission on a user's balance and debits completed jobs.
//
// Reserve and Debit are independent writes: nothing is held between them, so
// two jobs admitted against the same last credit can both complete.
type Ledger struct {
	users UserStore
}

func NewLedger(users UserStore) *Ledger {
	return &Ledger{users: users}
}

// Reserve checks that the user exists and has at least one credit.
func (l *Ledger) Reserve(ctx context.Context, userID string) (*models.User, error) {
	u, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Credits < 1 {
		return nil, ErrInsufficientCredits
	}
	return u, nil
}

// Debit spends one credit, clamped at zero.
func (l *Ledger) Debit(ctx context.Context, userID string) (int, error) {
	return l.Deduct(ctx, userID, 1)
}

// Deduct lowers the balance by amount, clamped at zero, and returns the new
// balance.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	credits, err := l.users.DecrementCredits(ctx, userID, amount)
	if errors.Is(err, models.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement credits: %w", err)
	}
	return credits, nil
}

// Balance returns the user with their current credits.
func (l *Ledger) Balance(ctx context.Context, userID string) (*models.User, error) {
	u, err := l.users.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}
