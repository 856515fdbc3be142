package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"

	"affiliate-system/internal/database/models"
)

// seedActivity produces 4 clicks, 2 signups and 1 subscription for AFDASH0001.
func seedActivity(t *testing.T, env *testEnv) *models.Affiliate {
	t.Helper()
	a := env.seedAffiliate(t, "owner-1", "AFDASH0001", "DASH01", models.AffiliateStatusApproved)
	ctx := context.Background()

	for _, page := range []string{"/", "/pricing", "/products", "/blog"} {
		in := clickInput("AFDASH0001")
		in.LandingPage = page
		if _, err := env.h.TrackClick(ctx, in); err != nil {
			t.Fatalf("TrackClick: %v", err)
		}
	}
	for _, user := range []string{"user-1", "user-2"} {
		if _, err := env.h.TrackConversion(ctx, "AFDASH0001", ConversionEvent{EventType: EventSignup, UserID: user}); err != nil {
			t.Fatalf("signup: %v", err)
		}
	}
	if _, err := env.h.TrackConversion(ctx, "AFDASH0001", subscriptionEvent("user-1", "100")); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	return a
}

func TestDashboard_NotEnrolled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.h.Dashboard(context.Background(), "stranger", TimeframeMonth)
	assertCode(t, err, codes.NotFound)
}

func TestDashboard_PendingAffiliate(t *testing.T) {
	env := newTestEnv(t)
	env.seedAffiliate(t, "owner-1", "AFPEND0001", "PEND01", models.AffiliateStatusPending)

	d, err := env.h.Dashboard(context.Background(), "owner-1", TimeframeMonth)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Status != models.AffiliateStatusPending || d.Message == "" {
		t.Errorf("dashboard = %+v", d)
	}
	if d.Stats != nil || d.Affiliate != nil {
		t.Error("pending affiliates should not see stats")
	}
}

func TestDashboard_Stats(t *testing.T) {
	env := newTestEnv(t)
	a := seedActivity(t, env)

	d, err := env.h.Dashboard(context.Background(), "owner-1", TimeframeMonth)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Affiliate == nil || d.Affiliate.ID != a.ID || d.Affiliate.Tier != TierBronze {
		t.Fatalf("affiliate = %+v", d.Affiliate)
	}

	s := d.Stats
	if s.Clicks != 4 || s.Signups != 2 || s.Conversions != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/2/1", s.Clicks, s.Signups, s.Conversions)
	}
	if !s.Earnings.Equal(decimal.NewFromInt(30)) {
		t.Errorf("earnings = %s, want 30", s.Earnings)
	}
	if s.ClickToSignupRate != 50 || s.SignupToConversionRate != 50 || s.OverallConversionRate != 25 {
		t.Errorf("rates = %v/%v/%v", s.ClickToSignupRate, s.SignupToConversionRate, s.OverallConversionRate)
	}
	if !s.AverageCommissionPerConversion.Equal(decimal.NewFromInt(30)) {
		t.Errorf("average commission = %s", s.AverageCommissionPerConversion)
	}

	if len(d.RecentReferrals) != 2 {
		t.Errorf("recent referrals = %d, want 2", len(d.RecentReferrals))
	}
	if len(d.CommissionHistory) != 1 || d.CommissionHistory[0].SubscriptionPlan != "pro" {
		t.Errorf("commission history = %+v", d.CommissionHistory)
	}
	if got := d.MarketingMaterials.Links["pricing"]; got != "https://app.example.com/pricing?ref=DASH01" {
		t.Errorf("pricing link = %s", got)
	}
	if got := d.MarketingMaterials.TrackingURLs["homepage"]; got != "https://app.example.com/api/v1/affiliates/track/AFDASH0001?url=/" {
		t.Errorf("tracking url = %s", got)
	}
}

func TestDashboard_StatsAreCached(t *testing.T) {
	env := newTestEnv(t)
	a := seedActivity(t, env)
	ctx := context.Background()

	if _, err := env.h.Dashboard(ctx, "owner-1", TimeframeWeek); err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !env.cache.Has(dashboardCacheKey(a.ID, TimeframeWeek)) {
		t.Fatal("stats should be cached per timeframe")
	}

	// Written straight to the store, so the cache is not invalidated.
	if err := env.store.CreateClick(ctx, &models.AffiliateClick{AffiliateID: a.ID, Fingerprint: "x", Timestamp: testStart}); err != nil {
		t.Fatalf("CreateClick: %v", err)
	}
	d, err := env.h.Dashboard(ctx, "owner-1", TimeframeWeek)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Stats.Clicks != 4 {
		t.Errorf("clicks = %d, want cached 4", d.Stats.Clicks)
	}

	env.h.InvalidateAffiliateCaches(ctx, a.ID)
	d, err = env.h.Dashboard(ctx, "owner-1", TimeframeWeek)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Stats.Clicks != 5 {
		t.Errorf("clicks = %d, want 5 after invalidation", d.Stats.Clicks)
	}
}

func TestDashboard_TimeframeExcludesOldActivity(t *testing.T) {
	env := newTestEnv(t)
	seedActivity(t, env)
	env.clock.Advance(10 * 24 * time.Hour)

	d, err := env.h.Dashboard(context.Background(), "owner-1", TimeframeWeek)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Stats.Clicks != 0 || d.Stats.Conversions != 0 || len(d.CommissionHistory) != 0 {
		t.Errorf("week view 10 days later = %+v", d.Stats)
	}

	d, err = env.h.Dashboard(context.Background(), "owner-1", TimeframeAll)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Stats.Clicks != 4 {
		t.Errorf("all-time clicks = %d, want 4", d.Stats.Clicks)
	}
}

func TestTimeRange(t *testing.T) {
	tests := []struct {
		in       string
		wantTF   string
		wantFrom time.Time
	}{
		{"week", TimeframeWeek, testStart.AddDate(0, 0, -7)},
		{"month", TimeframeMonth, testStart.AddDate(0, -1, 0)},
		{"quarter", TimeframeQuarter, testStart.AddDate(0, -3, 0)},
		{"year", TimeframeYear, testStart.AddDate(-1, 0, 0)},
		{"all", TimeframeAll, time.Time{}},
		{"", TimeframeMonth, testStart.AddDate(0, -1, 0)},
		{"decade", TimeframeMonth, testStart.AddDate(0, -1, 0)},
	}
	for _, tt := range tests {
		tf, from := timeRange(tt.in, testStart)
		if tf != tt.wantTF || !from.Equal(tt.wantFrom) {
			t.Errorf("timeRange(%q) = %s %v, want %s %v", tt.in, tf, from, tt.wantTF, tt.wantFrom)
		}
	}
}

// ========================================
// Balance
// ========================================

func TestBalance(t *testing.T) {
	env := newTestEnv(t)
	env.seedAffiliate(t, "owner-1", "AFBAL00001", "BAL001", models.AffiliateStatusApproved)
	ctx := context.Background()

	if _, err := env.h.TrackConversion(ctx, "AFBAL00001", subscriptionEvent("user-1", "100")); err != nil {
		t.Fatalf("subscription: %v", err)
	}

	b, err := env.h.Balance(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !b.Balance.Pending.Equal(decimal.NewFromInt(30)) || b.Balance.CanRequestPayout {
		t.Errorf("balance = %+v, 30 is under the minimum", b.Balance)
	}
	if !b.Balance.MinimumPayout.Equal(decimal.NewFromInt(50)) {
		t.Errorf("minimumPayout = %s", b.Balance.MinimumPayout)
	}
	if len(b.PendingCommissions) != 1 {
		t.Errorf("pending commissions = %d, want 1", len(b.PendingCommissions))
	}

	if _, err := env.h.TrackConversion(ctx, "AFBAL00001", subscriptionEvent("user-2", "100")); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	b, err = env.h.Balance(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !b.Balance.CanRequestPayout {
		t.Errorf("60 pending should allow a payout request: %+v", b.Balance)
	}
}

func TestBalance_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedAffiliate(t, "owner-1", "AFBAL00001", "BAL001", models.AffiliateStatusPending)

	_, err := env.h.Balance(context.Background(), "stranger")
	assertCode(t, err, codes.NotFound)

	_, err = env.h.Balance(context.Background(), "owner-1")
	assertCode(t, err, codes.PermissionDenied)
}
