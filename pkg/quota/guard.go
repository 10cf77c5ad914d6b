// Package quota decides how many applications a search may still send in the
// current cycle.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// LimitsProbe is the slice of the platform client the guard needs.
type LimitsProbe interface {
	GetUsageLimits(ctx context.Context, token string) (hh.UsageLimits, error)
}

// SentCounter is the slice of the response repository the guard needs.
type SentCounter interface {
	CountSentSince(ctx context.Context, searchID uuid.UUID, since time.Time) (int, error)
}

// Allowance is the guard's decision for one cycle.
type Allowance struct {
	CanSend   bool
	Remaining int
	Reason    string // set when CanSend is false
	// TotalReached distinguishes a permanently finished search (lifetime
	// cap hit) from a daily window that will reopen.
	TotalReached bool
}

// Guard computes the remaining budget as the minimum of three independent
// limits: the platform's own daily cap, the search's daily cap against
// responses sent this UTC day, and the subscription quota. Any probe failure
// makes the guard fail closed — exceeding the platform's limits risks
// credential suspension, so "unknown" means "no".
type Guard struct {
	platform  LimitsProbe
	responses SentCounter
	now       func() time.Time
}

func NewGuard(platform LimitsProbe, responses SentCounter, now func() time.Time) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{platform: platform, responses: responses, now: now}
}

// The search daily limit counts from UTC midnight. Server-local midnight
// would shift across DST transitions and multi-region deployments.
func (g *Guard) dayStart() time.Time {
	return g.now().UTC().Truncate(24 * time.Hour)
}

func (g *Guard) Allowance(ctx context.Context, user auth.User, s search.Search) (Allowance, error) {
	limits, err := g.platform.GetUsageLimits(ctx, user.AccessToken)
	if err != nil {
		return Allowance{Reason: "platform limit check failed"}, err
	}
	platformRemaining := limits.DailyLimit - limits.DailyUsed
	if platformRemaining <= 0 {
		return Allowance{Reason: "platform daily limit reached"}, nil
	}

	sentToday, err := g.responses.CountSentSince(ctx, s.ID, g.dayStart())
	if err != nil {
		return Allowance{Reason: "search daily count failed"}, err
	}
	searchRemaining := s.DailyLimit - sentToday
	if searchRemaining <= 0 {
		return Allowance{Reason: "search daily limit reached"}, nil
	}

	subRemaining := user.Subscription.QuotaRemaining()
	if subRemaining <= 0 {
		return Allowance{Reason: "subscription quota exhausted"}, nil
	}

	// Lifetime cap on top of the daily windows.
	if s.TotalLimit > 0 {
		if totalRemaining := s.TotalLimit - s.ResponsesCount; totalRemaining <= 0 {
			return Allowance{Reason: "search total limit reached", TotalReached: true}, nil
		} else if totalRemaining < searchRemaining {
			searchRemaining = totalRemaining
		}
	}

	remaining := platformRemaining
	if searchRemaining < remaining {
		remaining = searchRemaining
	}
	if subRemaining < remaining {
		remaining = subRemaining
	}
	return Allowance{CanSend: true, Remaining: remaining}, nil
}
