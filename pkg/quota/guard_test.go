package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/search"
)

type fakeProbe struct {
	limits hh.UsageLimits
	err    error
}

func (f fakeProbe) GetUsageLimits(ctx context.Context, token string) (hh.UsageLimits, error) {
	return f.limits, f.err
}

type fakeCounter struct {
	sentToday int
	err       error
	gotSince  time.Time
}

func (f *fakeCounter) CountSentSince(ctx context.Context, searchID uuid.UUID, since time.Time) (int, error) {
	f.gotSince = since
	return f.sentToday, f.err
}

func activeUser(remaining int) auth.User {
	return auth.User{
		ID:          uuid.New(),
		AccessToken: "token",
		Subscription: auth.Subscription{
			Active:         true,
			ResponsesLimit: 1000,
			ResponsesUsed:  1000 - remaining,
		},
	}
}

func testSearch(daily, total, sentTotal int) search.Search {
	return search.Search{
		ID:             uuid.New(),
		DailyLimit:     daily,
		TotalLimit:     total,
		ResponsesCount: sentTotal,
	}
}

func TestAllowance_MinOfThreeBudgets(t *testing.T) {
	cases := []struct {
		name         string
		platform     hh.UsageLimits
		sentToday    int
		subRemaining int
		daily        int
		want         int
	}{
		{"platform is the floor", hh.UsageLimits{DailyLimit: 200, DailyUsed: 198}, 0, 1000, 50, 2},
		{"search daily is the floor", hh.UsageLimits{DailyLimit: 200, DailyUsed: 0}, 48, 1000, 50, 2},
		{"subscription is the floor", hh.UsageLimits{DailyLimit: 200, DailyUsed: 0}, 0, 3, 50, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := NewGuard(fakeProbe{limits: c.platform}, &fakeCounter{sentToday: c.sentToday}, nil)
			a, err := g.Allowance(context.Background(), activeUser(c.subRemaining), testSearch(c.daily, 0, 0))
			require.NoError(t, err)
			require.True(t, a.CanSend)
			require.Equal(t, c.want, a.Remaining)
		})
	}
}

func TestAllowance_Scenario1(t *testing.T) {
	// dailyLimit=2, platform has 50 remaining, subscription has 1000.
	g := NewGuard(
		fakeProbe{limits: hh.UsageLimits{DailyLimit: 50, DailyUsed: 0}},
		&fakeCounter{sentToday: 0},
		nil,
	)
	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(2, 200, 0))
	require.NoError(t, err)
	require.True(t, a.CanSend)
	require.Equal(t, 2, a.Remaining)
}

func TestAllowance_PlatformLimitReached(t *testing.T) {
	g := NewGuard(fakeProbe{limits: hh.UsageLimits{DailyLimit: 200, DailyUsed: 200}}, &fakeCounter{}, nil)
	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(50, 0, 0))
	require.NoError(t, err)
	require.False(t, a.CanSend)
	require.Zero(t, a.Remaining)
}

func TestAllowance_SearchDailyLimitReached(t *testing.T) {
	g := NewGuard(
		fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}},
		&fakeCounter{sentToday: 50},
		nil,
	)
	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(50, 0, 0))
	require.NoError(t, err)
	require.False(t, a.CanSend)
}

func TestAllowance_SubscriptionExhausted(t *testing.T) {
	// Scenario 4: responsesUsed == responsesLimit at cycle start.
	g := NewGuard(fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}}, &fakeCounter{}, nil)
	a, err := g.Allowance(context.Background(), activeUser(0), testSearch(50, 0, 0))
	require.NoError(t, err)
	require.False(t, a.CanSend)
	require.Equal(t, "subscription quota exhausted", a.Reason)
}

func TestAllowance_InactiveSubscription(t *testing.T) {
	u := activeUser(100)
	u.Subscription.Active = false
	g := NewGuard(fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}}, &fakeCounter{}, nil)
	a, err := g.Allowance(context.Background(), u, testSearch(50, 0, 0))
	require.NoError(t, err)
	require.False(t, a.CanSend)
}

func TestAllowance_TotalLimitCapsRemaining(t *testing.T) {
	g := NewGuard(fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}}, &fakeCounter{}, nil)

	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(50, 200, 199))
	require.NoError(t, err)
	require.True(t, a.CanSend)
	require.Equal(t, 1, a.Remaining)

	a, err = g.Allowance(context.Background(), activeUser(1000), testSearch(50, 200, 200))
	require.NoError(t, err)
	require.False(t, a.CanSend)
	require.Equal(t, "search total limit reached", a.Reason)
}

func TestAllowance_FailsClosedOnPlatformError(t *testing.T) {
	g := NewGuard(fakeProbe{err: errors.New("timeout")}, &fakeCounter{}, nil)
	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(50, 0, 0))
	require.Error(t, err)
	require.False(t, a.CanSend)
}

func TestAllowance_FailsClosedOnCountError(t *testing.T) {
	g := NewGuard(
		fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}},
		&fakeCounter{err: errors.New("db down")},
		nil,
	)
	a, err := g.Allowance(context.Background(), activeUser(1000), testSearch(50, 0, 0))
	require.Error(t, err)
	require.False(t, a.CanSend)
}

func TestAllowance_DayBoundaryIsUTCMidnight(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 13, 45, 12, 0, time.UTC)
	counter := &fakeCounter{}
	g := NewGuard(fakeProbe{limits: hh.UsageLimits{DailyLimit: 200}}, counter, func() time.Time { return fixed })

	_, err := g.Allowance(context.Background(), activeUser(10), testSearch(50, 0, 0))
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), counter.gotSince)
}
