// Package store is the persistence port of the affiliate service.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"affiliate-system/internal/database/models"
)

// ReferralConversion is the subscription data copied onto SIGNED_UP referrals
// when they convert.
type ReferralConversion struct {
	ConvertedAt        time.Time
	SubscriptionID     string
	SubscriptionPlan   string
	SubscriptionAmount decimal.Decimal
	CommissionAmount   decimal.Decimal
}

// AffiliateStats are the aggregate counters rewritten on conversion.
type AffiliateStats struct {
	Conversions     int64
	PendingEarnings decimal.Decimal
	ConversionRate  float64
}

type CommissionTotals struct {
	Total decimal.Decimal
	Count int64
}

// Store is implemented by Gorm and Memory. Lookups that find nothing return
// gorm.ErrRecordNotFound.
type Store interface {
	// Transaction runs fn atomically; fn must only use the Store it is given.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error)
	FindAffiliateByTrackingCode(ctx context.Context, code string) (*models.Affiliate, error)
	FindAffiliateByUserID(ctx context.Context, userID string) (*models.Affiliate, error)
	// LockAffiliate reads the affiliate row for update.
	LockAffiliate(ctx context.Context, id int64) (*models.Affiliate, error)
	CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error
	UpdateAffiliateStats(ctx context.Context, id int64, stats AffiliateStats) error
	IncrementClicks(ctx context.Context, id int64) error

	CreateClick(ctx context.Context, click *models.AffiliateClick) error
	HasRecentClick(ctx context.Context, affiliateID int64, fingerprint string, since time.Time) (bool, error)
	CountClicks(ctx context.Context, affiliateID int64, from, to time.Time) (int64, error)

	CreateReferral(ctx context.Context, referral *models.Referral) error
	HasReferral(ctx context.Context, affiliateID int64, userID string) (bool, error)
	ConvertReferrals(ctx context.Context, affiliateID int64, userID string, conv ReferralConversion) (int64, error)
	CountReferralsByStatus(ctx context.Context, affiliateID int64, from, to time.Time) (map[string]int64, error)
	ListReferrals(ctx context.Context, affiliateID int64, since time.Time, limit int) ([]models.Referral, error)
	// FindConvertedReferral returns the latest CONVERTED referral for a subscription.
	FindConvertedReferral(ctx context.Context, subscriptionID string) (*models.Referral, error)

	CreateCommission(ctx context.Context, commission *models.Commission) error
	SumCommissions(ctx context.Context, affiliateID int64, from, to time.Time) (CommissionTotals, error)
	ListCommissions(ctx context.Context, affiliateID int64, status string, since time.Time, limit int) ([]models.Commission, error)
	HasRecurringCommission(ctx context.Context, referralID int64, month int) (bool, error)

	RecordEvent(ctx context.Context, event *models.AffiliateEvent) error
	// StampReferredUser marks the user row owned by the auth service.
	StampReferredUser(ctx context.Context, userID, affiliateCode, source string) error
}
