package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"affiliate-system/internal/database/models"
)

var (
	_ Store = (*Gorm)(nil)
	_ Store = (*Memory)(nil)
	_ Store = (*memTx)(nil)
)

// ReferredUser is what StampReferredUser recorded for a user.
type ReferredUser struct {
	ReferredBy     string
	ReferralSource string
}

// Memory is a process-local Store for development runs and tests.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	nextID      int64
	affiliates  map[int64]models.Affiliate
	clicks      []models.AffiliateClick
	referrals   []models.Referral
	commissions []models.Commission
	events      []models.AffiliateEvent
	users       map[string]ReferredUser
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		affiliates: map[int64]models.Affiliate{},
		users:      map[string]ReferredUser{},
	}}
}

func (s *memState) clone() *memState {
	out := &memState{
		nextID:      s.nextID,
		affiliates:  make(map[int64]models.Affiliate, len(s.affiliates)),
		clicks:      append([]models.AffiliateClick(nil), s.clicks...),
		referrals:   append([]models.Referral(nil), s.referrals...),
		commissions: append([]models.Commission(nil), s.commissions...),
		events:      append([]models.AffiliateEvent(nil), s.events...),
		users:       make(map[string]ReferredUser, len(s.users)),
	}
	for k, v := range s.affiliates {
		out.affiliates[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	return out
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memTx{state: m.state}); err != nil {
		*m.state = *snapshot
		return err
	}
	return nil
}

func (m *Memory) tx() (*memTx, func()) {
	m.mu.Lock()
	return &memTx{state: m.state}, m.mu.Unlock
}

func (m *Memory) FindAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.FindAffiliateByCode(ctx, code)
}

func (m *Memory) FindAffiliateByTrackingCode(ctx context.Context, code string) (*models.Affiliate, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.FindAffiliateByTrackingCode(ctx, code)
}

func (m *Memory) FindAffiliateByUserID(ctx context.Context, userID string) (*models.Affiliate, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.FindAffiliateByUserID(ctx, userID)
}

func (m *Memory) LockAffiliate(ctx context.Context, id int64) (*models.Affiliate, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.LockAffiliate(ctx, id)
}

func (m *Memory) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	t, unlock := m.tx()
	defer unlock()
	return t.CreateAffiliate(ctx, affiliate)
}

func (m *Memory) UpdateAffiliateStats(ctx context.Context, id int64, stats AffiliateStats) error {
	t, unlock := m.tx()
	defer unlock()
	return t.UpdateAffiliateStats(ctx, id, stats)
}

func (m *Memory) IncrementClicks(ctx context.Context, id int64) error {
	t, unlock := m.tx()
	defer unlock()
	return t.IncrementClicks(ctx, id)
}

func (m *Memory) CreateClick(ctx context.Context, click *models.AffiliateClick) error {
	t, unlock := m.tx()
	defer unlock()
	return t.CreateClick(ctx, click)
}

func (m *Memory) HasRecentClick(ctx context.Context, affiliateID int64, fingerprint string, since time.Time) (bool, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.HasRecentClick(ctx, affiliateID, fingerprint, since)
}

func (m *Memory) CountClicks(ctx context.Context, affiliateID int64, from, to time.Time) (int64, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.CountClicks(ctx, affiliateID, from, to)
}

func (m *Memory) CreateReferral(ctx context.Context, referral *models.Referral) error {
	t, unlock := m.tx()
	defer unlock()
	return t.CreateReferral(ctx, referral)
}

func (m *Memory) HasReferral(ctx context.Context, affiliateID int64, userID string) (bool, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.HasReferral(ctx, affiliateID, userID)
}

func (m *Memory) ConvertReferrals(ctx context.Context, affiliateID int64, userID string, conv ReferralConversion) (int64, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.ConvertReferrals(ctx, affiliateID, userID, conv)
}

func (m *Memory) CountReferralsByStatus(ctx context.Context, affiliateID int64, from, to time.Time) (map[string]int64, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.CountReferralsByStatus(ctx, affiliateID, from, to)
}

func (m *Memory) ListReferrals(ctx context.Context, affiliateID int64, since time.Time, limit int) ([]models.Referral, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.ListReferrals(ctx, affiliateID, since, limit)
}

func (m *Memory) FindConvertedReferral(ctx context.Context, subscriptionID string) (*models.Referral, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.FindConvertedReferral(ctx, subscriptionID)
}

func (m *Memory) CreateCommission(ctx context.Context, commission *models.Commission) error {
	t, unlock := m.tx()
	defer unlock()
	return t.CreateCommission(ctx, commission)
}

func (m *Memory) SumCommissions(ctx context.Context, affiliateID int64, from, to time.Time) (CommissionTotals, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.SumCommissions(ctx, affiliateID, from, to)
}

func (m *Memory) ListCommissions(ctx context.Context, affiliateID int64, status string, since time.Time, limit int) ([]models.Commission, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.ListCommissions(ctx, affiliateID, status, since, limit)
}

func (m *Memory) HasRecurringCommission(ctx context.Context, referralID int64, month int) (bool, error) {
	t, unlock := m.tx()
	defer unlock()
	return t.HasRecurringCommission(ctx, referralID, month)
}

func (m *Memory) RecordEvent(ctx context.Context, event *models.AffiliateEvent) error {
	t, unlock := m.tx()
	defer unlock()
	return t.RecordEvent(ctx, event)
}

func (m *Memory) StampReferredUser(ctx context.Context, userID, affiliateCode, source string) error {
	t, unlock := m.tx()
	defer unlock()
	return t.StampReferredUser(ctx, userID, affiliateCode, source)
}

// --- Inspection ---

func (m *Memory) Clicks() []models.AffiliateClick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AffiliateClick(nil), m.state.clicks...)
}

func (m *Memory) Referrals() []models.Referral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Referral(nil), m.state.referrals...)
}

func (m *Memory) Commissions() []models.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Commission(nil), m.state.commissions...)
}

func (m *Memory) Events() []models.AffiliateEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AffiliateEvent(nil), m.state.events...)
}

func (m *Memory) ReferredUser(userID string) (ReferredUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[userID]
	return u, ok
}

// memTx operates on the state with the Memory lock already held.
type memTx struct {
	state *memState
}

func (t *memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) findAffiliate(match func(a models.Affiliate) bool) (*models.Affiliate, error) {
	ids := make([]int64, 0, len(t.state.affiliates))
	for id := range t.state.affiliates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if a := t.state.affiliates[id]; match(a) {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (t *memTx) FindAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return t.findAffiliate(func(a models.Affiliate) bool { return a.AffiliateCode == code })
}

func (t *memTx) FindAffiliateByTrackingCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return t.findAffiliate(func(a models.Affiliate) bool { return a.AffiliateCode == code || a.ReferralCode == code })
}

func (t *memTx) FindAffiliateByUserID(ctx context.Context, userID string) (*models.Affiliate, error) {
	return t.findAffiliate(func(a models.Affiliate) bool { return a.UserID == userID })
}

func (t *memTx) LockAffiliate(ctx context.Context, id int64) (*models.Affiliate, error) {
	a, ok := t.state.affiliates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (t *memTx) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	for _, a := range t.state.affiliates {
		if a.UserID == affiliate.UserID || a.AffiliateCode == affiliate.AffiliateCode || a.ReferralCode == affiliate.ReferralCode {
			return fmt.Errorf("failed to create affiliate: %w", gorm.ErrDuplicatedKey)
		}
	}
	affiliate.ID = t.state.id()
	now := time.Now()
	if affiliate.CreatedAt == nil {
		affiliate.CreatedAt = &now
	}
	affiliate.UpdatedAt = &now
	t.state.affiliates[affiliate.ID] = *affiliate
	return nil
}

func (t *memTx) UpdateAffiliateStats(ctx context.Context, id int64, stats AffiliateStats) error {
	a, ok := t.state.affiliates[id]
	if !ok {
		return nil
	}
	a.Conversions = stats.Conversions
	a.PendingEarnings = stats.PendingEarnings
	a.ConversionRate = stats.ConversionRate
	t.state.affiliates[id] = a
	return nil
}

func (t *memTx) IncrementClicks(ctx context.Context, id int64) error {
	a, ok := t.state.affiliates[id]
	if !ok {
		return nil
	}
	a.ClicksGenerated++
	a.ConversionRate = float64(a.Conversions) / float64(a.ClicksGenerated)
	t.state.affiliates[id] = a
	return nil
}

func (t *memTx) CreateClick(ctx context.Context, click *models.AffiliateClick) error {
	click.ID = t.state.id()
	t.state.clicks = append(t.state.clicks, *click)
	return nil
}

func (t *memTx) HasRecentClick(ctx context.Context, affiliateID int64, fingerprint string, since time.Time) (bool, error) {
	for _, c := range t.state.clicks {
		if c.AffiliateID == affiliateID && c.Fingerprint == fingerprint && !c.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountClicks(ctx context.Context, affiliateID int64, from, to time.Time) (int64, error) {
	var n int64
	for _, c := range t.state.clicks {
		if c.AffiliateID == affiliateID && between(c.Timestamp, from, to) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateReferral(ctx context.Context, referral *models.Referral) error {
	referral.ID = t.state.id()
	now := time.Now()
	if referral.CreatedAt == nil {
		referral.CreatedAt = &now
	}
	t.state.referrals = append(t.state.referrals, *referral)
	return nil
}

func (t *memTx) HasReferral(ctx context.Context, affiliateID int64, userID string) (bool, error) {
	for _, r := range t.state.referrals {
		if r.AffiliateID == affiliateID && r.ReferredUserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ConvertReferrals(ctx context.Context, affiliateID int64, userID string, conv ReferralConversion) (int64, error) {
	var n int64
	for i, r := range t.state.referrals {
		if r.AffiliateID != affiliateID || r.ReferredUserID != userID || r.Status != models.ReferralStatusSignedUp {
			continue
		}
		convertedAt := conv.ConvertedAt
		subscriptionID := conv.SubscriptionID
		plan := conv.SubscriptionPlan
		r.Status = models.ReferralStatusConverted
		r.ConversionTimestamp = &convertedAt
		r.SubscriptionID = &subscriptionID
		r.SubscriptionPlan = &plan
		r.SubscriptionAmount = decimal.NewNullDecimal(conv.SubscriptionAmount)
		r.CommissionAmount = decimal.NewNullDecimal(conv.CommissionAmount)
		r.CommissionPaid = false
		t.state.referrals[i] = r
		n++
	}
	return n, nil
}

func (t *memTx) CountReferralsByStatus(ctx context.Context, affiliateID int64, from, to time.Time) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, r := range t.state.referrals {
		if r.AffiliateID == affiliateID && r.ClickTimestamp != nil && between(*r.ClickTimestamp, from, to) {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (t *memTx) ListReferrals(ctx context.Context, affiliateID int64, since time.Time, limit int) ([]models.Referral, error) {
	var out []models.Referral
	for _, r := range t.state.referrals {
		if r.AffiliateID == affiliateID && r.ClickTimestamp != nil && !r.ClickTimestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClickTimestamp.After(*out[j].ClickTimestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) FindConvertedReferral(ctx context.Context, subscriptionID string) (*models.Referral, error) {
	var found *models.Referral
	for _, r := range t.state.referrals {
		if r.Status != models.ReferralStatusConverted || r.SubscriptionID == nil || *r.SubscriptionID != subscriptionID {
			continue
		}
		if found == nil || (r.ConversionTimestamp != nil && found.ConversionTimestamp != nil && r.ConversionTimestamp.After(*found.ConversionTimestamp)) {
			r := r
			found = &r
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (t *memTx) CreateCommission(ctx context.Context, commission *models.Commission) error {
	commission.ID = t.state.id()
	now := time.Now()
	if commission.CreatedAt == nil {
		commission.CreatedAt = &now
	}
	t.state.commissions = append(t.state.commissions, *commission)
	return nil
}

func (t *memTx) SumCommissions(ctx context.Context, affiliateID int64, from, to time.Time) (CommissionTotals, error) {
	totals := CommissionTotals{Total: decimal.Zero}
	for _, c := range t.state.commissions {
		if c.AffiliateID == affiliateID && c.CreatedAt != nil && between(*c.CreatedAt, from, to) {
			totals.Total = totals.Total.Add(c.Amount)
			totals.Count++
		}
	}
	return totals, nil
}

func (t *memTx) ListCommissions(ctx context.Context, affiliateID int64, status string, since time.Time, limit int) ([]models.Commission, error) {
	var out []models.Commission
	for _, c := range t.state.commissions {
		if c.AffiliateID != affiliateID || c.CreatedAt == nil || c.CreatedAt.Before(since) {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(*out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) HasRecurringCommission(ctx context.Context, referralID int64, month int) (bool, error) {
	for _, c := range t.state.commissions {
		if c.Type == models.CommissionTypeRecurring && c.ReferralID != nil && *c.ReferralID == referralID &&
			c.RecurringMonth != nil && *c.RecurringMonth == month {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) RecordEvent(ctx context.Context, event *models.AffiliateEvent) error {
	event.ID = t.state.id()
	t.state.events = append(t.state.events, *event)
	return nil
}

func (t *memTx) StampReferredUser(ctx context.Context, userID, affiliateCode, source string) error {
	t.state.users[userID] = ReferredUser{ReferredBy: affiliateCode, ReferralSource: source}
	return nil
}

func between(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
