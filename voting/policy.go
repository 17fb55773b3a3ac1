package voting

import "time"

// =============================================================================
// TOKEN POLICY - Allowance and refill cadence
// =============================================================================

const (
	// WeeklyAllowance is the token balance granted at registration and
	// restored by every refill.
	WeeklyAllowance = 10

	// RefillInterval is the minimum gap between refills: one week
	// (604,800,000 ms).
	RefillInterval = 7 * 24 * time.Hour
)

// TokenPolicy carries the two knobs of the allowance model. Production
// uses DefaultTokenPolicy; tests shrink it to exercise edge cases.
type TokenPolicy struct {
	WeeklyAllowance int
	RefillInterval  time.Duration
}

func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		WeeklyAllowance: WeeklyAllowance,
		RefillInterval:  RefillInterval,
	}
}

// NewAccount creates the token account for a freshly registered user:
// a full allowance, refill clock starting now.
func (p TokenPolicy) NewAccount(userID UserID, now time.Time) TokenAccount {
	return TokenAccount{
		UserID:       userID,
		Tokens:       p.WeeklyAllowance,
		LastRefillAt: now,
	}
}

// RefillDue reports whether a full interval has elapsed since the
// account's last refill.
func (p TokenPolicy) RefillDue(acct TokenAccount, now time.Time) bool {
	return now.Sub(acct.LastRefillAt) >= p.RefillInterval
}
