package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"affiliate-system/internal/database/models"
)

const usersTable = "users"

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

// --- Affiliates ---

func (s *Gorm) FindAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).Where("affiliate_code = ?", code).First(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Gorm) FindAffiliateByTrackingCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.WithContext(ctx).
		Where("affiliate_code = ? OR referral_code = ?", code, code).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Gorm) FindAffiliateByUserID(ctx context.Context, userID string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Gorm) LockAffiliate(ctx context.Context, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, id).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Gorm) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	if err := s.db.WithContext(ctx).Create(affiliate).Error; err != nil {
		return fmt.Errorf("failed to create affiliate: %w", err)
	}
	return nil
}

func (s *Gorm) UpdateAffiliateStats(ctx context.Context, id int64, stats AffiliateStats) error {
	updates := map[string]interface{}{
		"conversions":      stats.Conversions,
		"pending_earnings": stats.PendingEarnings,
		"conversion_rate":  stats.ConversionRate,
	}
	if err := s.db.WithContext(ctx).Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update affiliate stats: %w", err)
	}
	return nil
}

// IncrementClicks bumps clicks_generated and recomputes conversion_rate from
// the pre-update row in the same statement.
func (s *Gorm) IncrementClicks(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"clicks_generated": gorm.Expr("clicks_generated + ?", 1),
			"conversion_rate":  gorm.Expr("conversions::float8 / (clicks_generated + 1)"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	return nil
}

// --- Clicks ---

func (s *Gorm) CreateClick(ctx context.Context, click *models.AffiliateClick) error {
	if err := s.db.WithContext(ctx).Create(click).Error; err != nil {
		return fmt.Errorf("failed to create click: %w", err)
	}
	return nil
}

func (s *Gorm) HasRecentClick(ctx context.Context, affiliateID int64, fingerprint string, since time.Time) (bool, error) {
	var click models.AffiliateClick
	err := s.db.WithContext(ctx).
		Select("id").
		Where("affiliate_id = ? AND fingerprint = ? AND timestamp >= ?", affiliateID, fingerprint, since).
		Take(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Gorm) CountClicks(ctx context.Context, affiliateID int64, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AffiliateClick{}).
		Where("affiliate_id = ? AND timestamp BETWEEN ? AND ?", affiliateID, from, to).
		Count(&count).Error
	return count, err
}

// --- Referrals ---

func (s *Gorm) CreateReferral(ctx context.Context, referral *models.Referral) error {
	if err := s.db.WithContext(ctx).Create(referral).Error; err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (s *Gorm) HasReferral(ctx context.Context, affiliateID int64, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("affiliate_id = ? AND referred_user_id = ?", affiliateID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Gorm) ConvertReferrals(ctx context.Context, affiliateID int64, userID string, conv ReferralConversion) (int64, error) {
	updates := map[string]interface{}{
		"status":               models.ReferralStatusConverted,
		"conversion_timestamp": conv.ConvertedAt,
		"subscription_id":      conv.SubscriptionID,
		"subscription_plan":    conv.SubscriptionPlan,
		"subscription_amount":  conv.SubscriptionAmount,
		"commission_amount":    conv.CommissionAmount,
		"commission_paid":      false,
	}
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("affiliate_id = ? AND referred_user_id = ? AND status = ?", affiliateID, userID, models.ReferralStatusSignedUp).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to convert referrals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Gorm) CountReferralsByStatus(ctx context.Context, affiliateID int64, from, to time.Time) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Select("status, COUNT(*) as count").
		Where("affiliate_id = ? AND click_timestamp BETWEEN ? AND ?", affiliateID, from, to).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *Gorm) ListReferrals(ctx context.Context, affiliateID int64, since time.Time, limit int) ([]models.Referral, error) {
	query := s.db.WithContext(ctx).
		Where("affiliate_id = ? AND click_timestamp >= ?", affiliateID, since).
		Order("click_timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var referrals []models.Referral
	err := query.Find(&referrals).Error
	return referrals, err
}

func (s *Gorm) FindConvertedReferral(ctx context.Context, subscriptionID string) (*models.Referral, error) {
	var referral models.Referral
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.ReferralStatusConverted).
		Order("conversion_timestamp desc").
		First(&referral).Error
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

// --- Commissions ---

func (s *Gorm) CreateCommission(ctx context.Context, commission *models.Commission) error {
	if err := s.db.WithContext(ctx).Create(commission).Error; err != nil {
		return fmt.Errorf("failed to create commission: %w", err)
	}
	return nil
}

func (s *Gorm) SumCommissions(ctx context.Context, affiliateID int64, from, to time.Time) (CommissionTotals, error) {
	var totals struct {
		Total decimal.Decimal
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0) as total, COUNT(*) as count").
		Where("affiliate_id = ? AND created_at BETWEEN ? AND ?", affiliateID, from, to).
		Scan(&totals).Error
	if err != nil {
		return CommissionTotals{}, err
	}
	return CommissionTotals{Total: totals.Total, Count: totals.Count}, nil
}

func (s *Gorm) ListCommissions(ctx context.Context, affiliateID int64, status string, since time.Time, limit int) ([]models.Commission, error) {
	query := s.db.WithContext(ctx).Where("affiliate_id = ? AND created_at >= ?", affiliateID, since)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var commissions []models.Commission
	err := query.Order("created_at desc").Find(&commissions).Error
	return commissions, err
}

func (s *Gorm) HasRecurringCommission(ctx context.Context, referralID int64, month int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Commission{}).
		Where("referral_id = ? AND recurring_month = ? AND type = ?", referralID, month, models.CommissionTypeRecurring).
		Count(&count).Error
	return count > 0, err
}

// --- Events & users ---

func (s *Gorm) RecordEvent(ctx context.Context, event *models.AffiliateEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *Gorm) StampReferredUser(ctx context.Context, userID, affiliateCode, source string) error {
	err := s.db.WithContext(ctx).Table(usersTable).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"referred_by":     affiliateCode,
			"referral_source": source,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to stamp referred user: %w", err)
	}
	return nil
}
