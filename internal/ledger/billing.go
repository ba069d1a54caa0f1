package ledger

import (
	"context"
	"time"

	"tradejournal/pkg/db"
)

// DBBillingChecker satisfies BillingChecker directly off the users table: a
// user is paid while IsPaid is set and, if PaidUntil is present, it has not
// yet elapsed. There is no transactional lock here — the worst case is one
// extra mutation slipping through between expiry and the next check, which
// is acceptable for a gate that only blocks new trade creation.
type DBBillingChecker struct {
	DB *db.Database
}

// NewDBBillingChecker wraps database for use as a ledger.BillingChecker.
func NewDBBillingChecker(database *db.Database) *DBBillingChecker {
	return &DBBillingChecker{DB: database}
}

func (c *DBBillingChecker) IsPaid(ctx context.Context, userID string) (bool, error) {
	user, err := c.DB.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil || !user.IsPaid {
		return false, nil
	}
	if user.PaidUntil != nil && user.PaidUntil.Before(time.Now()) {
		return false, nil
	}
	return true, nil
}
