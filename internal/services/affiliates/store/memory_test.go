package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"affiliate-system/config"
	"affiliate-system/internal/database/models"
)

func seed(t *testing.T, m *Memory) *models.Affiliate {
	t.Helper()
	a := &models.Affiliate{
		UserID:         "owner-1",
		AffiliateCode:  "AFSTORE001",
		ReferralCode:   "STORE1",
		Status:         models.AffiliateStatusApproved,
		CommissionRate: decimal.RequireFromString("0.30"),
	}
	if err := m.CreateAffiliate(context.Background(), a); err != nil {
		t.Fatalf("CreateAffiliate: %v", err)
	}
	return a
}

func TestMemory_Lookups(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()

	if got, err := m.FindAffiliateByCode(ctx, "AFSTORE001"); err != nil || got.ID != a.ID {
		t.Errorf("FindAffiliateByCode = %+v, %v", got, err)
	}
	if _, err := m.FindAffiliateByCode(ctx, "STORE1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("referral code must not match by affiliate code, got %v", err)
	}
	if got, err := m.FindAffiliateByTrackingCode(ctx, "STORE1"); err != nil || got.ID != a.ID {
		t.Errorf("FindAffiliateByTrackingCode = %+v, %v", got, err)
	}
	if got, err := m.FindAffiliateByUserID(ctx, "owner-1"); err != nil || got.ID != a.ID {
		t.Errorf("FindAffiliateByUserID = %+v, %v", got, err)
	}
	if _, err := m.LockAffiliate(ctx, 999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("LockAffiliate(999) = %v, want ErrRecordNotFound", err)
	}
}

func TestMemory_CreateAffiliateUniqueness(t *testing.T) {
	m := NewMemory()
	seed(t, m)

	dup := &models.Affiliate{UserID: "owner-2", AffiliateCode: "AFSTORE001", ReferralCode: "OTHER1"}
	if err := m.CreateAffiliate(context.Background(), dup); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("duplicate affiliate code = %v, want ErrDuplicatedKey", err)
	}
}

func TestMemory_TransactionRollsBack(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Transaction(ctx, func(tx Store) error {
		if err := tx.CreateClick(ctx, &models.AffiliateClick{AffiliateID: a.ID, Fingerprint: "fp", Timestamp: time.Now()}); err != nil {
			return err
		}
		if err := tx.IncrementClicks(ctx, a.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction error = %v, want boom", err)
	}

	if n := len(m.Clicks()); n != 0 {
		t.Errorf("clicks = %d after rollback, want 0", n)
	}
	got, _ := m.LockAffiliate(ctx, a.ID)
	if got.ClicksGenerated != 0 {
		t.Errorf("clicksGenerated = %d after rollback, want 0", got.ClicksGenerated)
	}
}

func TestMemory_TransactionCommits(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()

	err := m.Transaction(ctx, func(tx Store) error {
		return tx.Transaction(ctx, func(inner Store) error {
			return inner.IncrementClicks(ctx, a.ID)
		})
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	got, _ := m.LockAffiliate(ctx, a.ID)
	if got.ClicksGenerated != 1 {
		t.Errorf("clicksGenerated = %d, want 1", got.ClicksGenerated)
	}
}

func TestMemory_HasRecentClick(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = m.CreateClick(ctx, &models.AffiliateClick{AffiliateID: a.ID, Fingerprint: "fp", Timestamp: at})

	tests := []struct {
		fingerprint string
		since       time.Time
		want        bool
	}{
		{"fp", at.Add(-time.Hour), true},
		{"fp", at, true},
		{"fp", at.Add(time.Second), false},
		{"other", at.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		got, err := m.HasRecentClick(ctx, a.ID, tt.fingerprint, tt.since)
		if err != nil {
			t.Fatalf("HasRecentClick: %v", err)
		}
		if got != tt.want {
			t.Errorf("HasRecentClick(%s, %v) = %v, want %v", tt.fingerprint, tt.since, got, tt.want)
		}
	}
}

func TestMemory_ConvertReferralsOnlyTouchesSignedUp(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = m.CreateReferral(ctx, &models.Referral{AffiliateID: a.ID, ReferredUserID: "u1", Status: models.ReferralStatusSignedUp, ClickTimestamp: &now})
	_ = m.CreateReferral(ctx, &models.Referral{AffiliateID: a.ID, ReferredUserID: "u2", Status: models.ReferralStatusSignedUp, ClickTimestamp: &now})

	conv := ReferralConversion{
		ConvertedAt:        now,
		SubscriptionID:     "sub_1",
		SubscriptionPlan:   "pro",
		SubscriptionAmount: decimal.NewFromInt(100),
		CommissionAmount:   decimal.NewFromInt(30),
	}
	n, err := m.ConvertReferrals(ctx, a.ID, "u1", conv)
	if err != nil || n != 1 {
		t.Fatalf("ConvertReferrals = %d, %v", n, err)
	}
	if n, _ := m.ConvertReferrals(ctx, a.ID, "u1", conv); n != 0 {
		t.Errorf("converted referrals must not convert twice, got %d", n)
	}

	counts, err := m.CountReferralsByStatus(ctx, a.ID, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("CountReferralsByStatus: %v", err)
	}
	if counts[models.ReferralStatusConverted] != 1 || counts[models.ReferralStatusSignedUp] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestMemory_SumAndListCommissions(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, amount := range []string{"30", "12.5", "7.25"} {
		created := base.Add(time.Duration(i) * time.Hour)
		st := models.CommissionStatusPending
		if i == 2 {
			st = models.CommissionStatusPaid
		}
		_ = m.CreateCommission(ctx, &models.Commission{
			AffiliateID: a.ID,
			Amount:      decimal.RequireFromString(amount),
			Status:      st,
			CreatedAt:   &created,
		})
	}

	totals, err := m.SumCommissions(ctx, a.ID, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("SumCommissions: %v", err)
	}
	if !totals.Total.Equal(decimal.RequireFromString("49.75")) || totals.Count != 3 {
		t.Errorf("totals = %s / %d", totals.Total, totals.Count)
	}

	pending, _ := m.ListCommissions(ctx, a.ID, models.CommissionStatusPending, time.Time{}, 0)
	if len(pending) != 2 || !pending[0].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("pending commissions = %+v, want newest first", pending)
	}
	limited, _ := m.ListCommissions(ctx, a.ID, "", time.Time{}, 1)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}
}

func TestMemory_IncrementClicksRecomputesRate(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()

	if err := m.UpdateAffiliateStats(ctx, a.ID, AffiliateStats{Conversions: 1, PendingEarnings: decimal.NewFromInt(30), ConversionRate: 1}); err != nil {
		t.Fatalf("UpdateAffiliateStats: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.IncrementClicks(ctx, a.ID); err != nil {
			t.Fatalf("IncrementClicks: %v", err)
		}
	}

	got, err := m.LockAffiliate(ctx, a.ID)
	if err != nil {
		t.Fatalf("LockAffiliate: %v", err)
	}
	if got.ClicksGenerated != 2 || got.ConversionRate != 0.5 {
		t.Errorf("clicks/rate = %d/%v, want 2/0.5", got.ClicksGenerated, got.ConversionRate)
	}
}

func TestMemory_RecurringLookups(t *testing.T) {
	m := NewMemory()
	a := seed(t, m)
	ctx := context.Background()

	if _, err := m.FindConvertedReferral(ctx, "sub_1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("FindConvertedReferral on empty store = %v, want ErrRecordNotFound", err)
	}

	sub := "sub_1"
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	for user, ts := range map[string]time.Time{"user-a": early, "user-b": late} {
		ts := ts
		r := &models.Referral{
			AffiliateID:         a.ID,
			ReferredUserID:      user,
			Status:              models.ReferralStatusConverted,
			ConversionTimestamp: &ts,
			SubscriptionID:      &sub,
		}
		if err := m.CreateReferral(ctx, r); err != nil {
			t.Fatalf("CreateReferral: %v", err)
		}
	}
	signedUp := &models.Referral{AffiliateID: a.ID, ReferredUserID: "user-c", Status: models.ReferralStatusSignedUp, SubscriptionID: &sub}
	if err := m.CreateReferral(ctx, signedUp); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}

	found, err := m.FindConvertedReferral(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindConvertedReferral: %v", err)
	}
	if found.ReferredUserID != "user-b" {
		t.Errorf("found %s, want the latest conversion user-b", found.ReferredUserID)
	}

	month := 2
	err = m.CreateCommission(ctx, &models.Commission{
		AffiliateID:    a.ID,
		Type:           models.CommissionTypeRecurring,
		Amount:         decimal.NewFromInt(5),
		Status:         models.CommissionStatusPending,
		ReferralID:     &found.ID,
		RecurringMonth: &month,
	})
	if err != nil {
		t.Fatalf("CreateCommission: %v", err)
	}

	if ok, err := m.HasRecurringCommission(ctx, found.ID, 2); err != nil || !ok {
		t.Errorf("HasRecurringCommission(month 2) = %v, %v", ok, err)
	}
	if ok, _ := m.HasRecurringCommission(ctx, found.ID, 3); ok {
		t.Error("month 3 has not been credited")
	}
}

func TestOpen(t *testing.T) {
	st, db, err := Open(config.DBConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := st.(*Memory); !ok || db != nil {
		t.Errorf("Open(memory) = %T, %v", st, db)
	}

	if _, _, err := Open(config.DBConfig{Driver: "mysql"}); err == nil {
		t.Error("unknown driver should fail")
	}
}
