package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"affiliate-system/internal/database/models"
)

const (
	TimeframeWeek    = "week"
	TimeframeMonth   = "month"
	TimeframeQuarter = "quarter"
	TimeframeYear    = "year"
	TimeframeAll     = "all"

	recentReferralsLimit   = 20
	commissionHistoryLimit = 50
)

var timeframes = []string{TimeframeWeek, TimeframeMonth, TimeframeQuarter, TimeframeYear, TimeframeAll}

type DashboardAffiliate struct {
	ID              int64           `json:"id"`
	AffiliateCode   string          `json:"affiliateCode"`
	ReferralCode    string          `json:"referralCode"`
	Status          string          `json:"status"`
	CommissionRate  decimal.Decimal `json:"commissionRate"`
	TotalEarnings   decimal.Decimal `json:"totalEarnings"`
	PendingEarnings decimal.Decimal `json:"pendingEarnings"`
	PaidEarnings    decimal.Decimal `json:"paidEarnings"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	Tier            string          `json:"tier"`
}

type DashboardStats struct {
	Clicks                         int64           `json:"clicks"`
	Signups                        int64           `json:"signups"`
	Conversions                    int64           `json:"conversions"`
	Earnings                       decimal.Decimal `json:"earnings"`
	ClickToSignupRate              float64         `json:"clickToSignupRate"`
	SignupToConversionRate         float64         `json:"signupToConversionRate"`
	OverallConversionRate          float64         `json:"overallConversionRate"`
	AverageCommissionPerConversion decimal.Decimal `json:"averageCommissionPerConversion"`
}

type ReferralView struct {
	ID               int64               `json:"id"`
	Status           string              `json:"status"`
	SubscriptionPlan string              `json:"subscriptionPlan,omitempty"`
	CommissionAmount decimal.NullDecimal `json:"commissionAmount"`
	ClickDate        *time.Time          `json:"clickDate,omitempty"`
	SignupDate       *time.Time          `json:"signupDate,omitempty"`
	ConversionDate   *time.Time          `json:"conversionDate,omitempty"`
}

type CommissionView struct {
	ID               int64           `json:"id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Description      string          `json:"description"`
	SubscriptionPlan string          `json:"subscriptionPlan,omitempty"`
	CreatedAt        *time.Time      `json:"createdAt,omitempty"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
}

type MarketingMaterials struct {
	Links        map[string]string `json:"links"`
	TrackingURLs map[string]string `json:"trackingUrls"`
}

// Dashboard is the affiliate's own view. For affiliates that are not approved
// only Status, Message and RejectionReason are set.
type Dashboard struct {
	Status          string  `json:"status"`
	Message         string  `json:"message,omitempty"`
	RejectionReason *string `json:"rejectionReason,omitempty"`

	Timeframe          string              `json:"timeframe,omitempty"`
	Affiliate          *DashboardAffiliate `json:"affiliate,omitempty"`
	TierProgress       *TierProgress       `json:"tierProgress,omitempty"`
	Stats              *DashboardStats     `json:"stats,omitempty"`
	RecentReferrals    []ReferralView      `json:"recentReferrals,omitempty"`
	CommissionHistory  []CommissionView    `json:"commissionHistory,omitempty"`
	MarketingMaterials *MarketingMaterials `json:"marketingMaterials,omitempty"`
}

type PayoutBalance struct {
	Pending          decimal.Decimal `json:"pending"`
	Paid             decimal.Decimal `json:"paid"`
	Total            decimal.Decimal `json:"total"`
	CanRequestPayout bool            `json:"canRequestPayout"`
	MinimumPayout    decimal.Decimal `json:"minimumPayout"`
}

type PayoutSettings struct {
	Method      string  `json:"method"`
	PaypalEmail *string `json:"paypalEmail,omitempty"`
}

type PayoutSummary struct {
	Balance            PayoutBalance    `json:"balance"`
	PendingCommissions []CommissionView `json:"pendingCommissions"`
	PayoutSettings     PayoutSettings   `json:"payoutSettings"`
}

// timeRange maps a timeframe to its start. Unknown timeframes mean month.
func timeRange(timeframe string, now time.Time) (string, time.Time) {
	switch timeframe {
	case TimeframeWeek:
		return timeframe, now.AddDate(0, 0, -7)
	case TimeframeQuarter:
		return timeframe, now.AddDate(0, -3, 0)
	case TimeframeYear:
		return timeframe, now.AddDate(-1, 0, 0)
	case TimeframeAll:
		return timeframe, time.Time{}
	default:
		return TimeframeMonth, now.AddDate(0, -1, 0)
	}
}

func statusMessage(status string) string {
	switch status {
	case models.AffiliateStatusPending:
		return "Your affiliate application is under review. We will notify you within 2-3 business days."
	case models.AffiliateStatusRejected:
		return "Your affiliate application was not approved. Please see the reason below."
	default:
		return "Unknown status"
	}
}

// Dashboard builds the dashboard of the affiliate owned by userID.
func (h *AffiliateHandler) Dashboard(ctx context.Context, userID, timeframe string) (*Dashboard, error) {
	affiliate, err := h.findOwnAffiliate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if affiliate.Status != models.AffiliateStatusApproved {
		return &Dashboard{
			Status:          affiliate.Status,
			Message:         statusMessage(affiliate.Status),
			RejectionReason: affiliate.RejectionReason,
		}, nil
	}

	now := h.now()
	timeframe, from := timeRange(timeframe, now)

	stats, err := h.dashboardStats(ctx, affiliate.ID, timeframe, from, now)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load affiliate stats: %v", err)
	}

	referrals, err := h.store.ListReferrals(ctx, affiliate.ID, from, recentReferralsLimit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load referrals: %v", err)
	}
	commissions, err := h.store.ListCommissions(ctx, affiliate.ID, "", from, commissionHistoryLimit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load commissions: %v", err)
	}

	progress := TierProgressFor(affiliate.TotalEarnings)

	return &Dashboard{
		Status:    affiliate.Status,
		Timeframe: timeframe,
		Affiliate: &DashboardAffiliate{
			ID:              affiliate.ID,
			AffiliateCode:   affiliate.AffiliateCode,
			ReferralCode:    affiliate.ReferralCode,
			Status:          affiliate.Status,
			CommissionRate:  affiliate.CommissionRate,
			TotalEarnings:   affiliate.TotalEarnings,
			PendingEarnings: affiliate.PendingEarnings,
			PaidEarnings:    affiliate.PaidEarnings,
			ApprovedAt:      affiliate.ApprovedAt,
			Tier:            progress.Current,
		},
		TierProgress:       &progress,
		Stats:              stats,
		RecentReferrals:    lo.Map(referrals, func(r models.Referral, _ int) ReferralView { return referralView(r) }),
		CommissionHistory:  lo.Map(commissions, func(c models.Commission, _ int) CommissionView { return commissionView(c) }),
		MarketingMaterials: h.marketingMaterials(affiliate.AffiliateCode, affiliate.ReferralCode),
	}, nil
}

func (h *AffiliateHandler) dashboardStats(ctx context.Context, affiliateID int64, timeframe string, from, to time.Time) (*DashboardStats, error) {
	cacheKey := dashboardCacheKey(affiliateID, timeframe)

	val, err := h.cache.Get(ctx, cacheKey)
	if err == nil {
		var cached DashboardStats
		if err := json.Unmarshal([]byte(val), &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, errCacheMiss) {
		log.Printf("Redis error on get dashboard stats %d: %v", affiliateID, err)
	}

	clicks, err := h.store.CountClicks(ctx, affiliateID, from, to)
	if err != nil {
		return nil, err
	}
	referralCounts, err := h.store.CountReferralsByStatus(ctx, affiliateID, from, to)
	if err != nil {
		return nil, err
	}
	totals, err := h.store.SumCommissions(ctx, affiliateID, from, to)
	if err != nil {
		return nil, err
	}

	conversions := referralCounts[models.ReferralStatusConverted]
	signups := referralCounts[models.ReferralStatusSignedUp] + conversions

	stats := &DashboardStats{
		Clicks:                         clicks,
		Signups:                        signups,
		Conversions:                    conversions,
		Earnings:                       totals.Total,
		ClickToSignupRate:              percent(signups, clicks),
		SignupToConversionRate:         percent(conversions, signups),
		OverallConversionRate:          percent(conversions, clicks),
		AverageCommissionPerConversion: decimal.Zero,
	}
	if conversions > 0 {
		stats.AverageCommissionPerConversion = totals.Total.Div(decimal.NewFromInt(conversions))
	}

	if jsonData, err := json.Marshal(stats); err == nil {
		if err := h.cache.Set(ctx, cacheKey, jsonData, dashboardCacheTTL); err != nil {
			log.Printf("Failed to cache dashboard stats %d: %v", affiliateID, err)
		}
	}
	return stats, nil
}

// Balance returns the payout balance of the approved affiliate owned by userID.
func (h *AffiliateHandler) Balance(ctx context.Context, userID string) (*PayoutSummary, error) {
	affiliate, err := h.findOwnAffiliate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if affiliate.Status != models.AffiliateStatusApproved {
		return nil, status.Errorf(codes.PermissionDenied, "Affiliate account not approved")
	}

	pending, err := h.store.ListCommissions(ctx, affiliate.ID, models.CommissionStatusPending, time.Time{}, 0)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load pending commissions: %v", err)
	}

	return &PayoutSummary{
		Balance: PayoutBalance{
			Pending:          affiliate.PendingEarnings,
			Paid:             affiliate.PaidEarnings,
			Total:            affiliate.TotalEarnings,
			CanRequestPayout: affiliate.PendingEarnings.GreaterThanOrEqual(h.program.MinimumPayout),
			MinimumPayout:    h.program.MinimumPayout,
		},
		PendingCommissions: lo.Map(pending, func(c models.Commission, _ int) CommissionView { return commissionView(c) }),
		PayoutSettings: PayoutSettings{
			Method:      affiliate.PayoutMethod,
			PaypalEmail: affiliate.PaypalEmail,
		},
	}, nil
}

func (h *AffiliateHandler) marketingMaterials(affiliateCode, referralCode string) *MarketingMaterials {
	base := h.appURL
	return &MarketingMaterials{
		Links: map[string]string{
			"homepage": base + "?ref=" + referralCode,
			"pricing":  base + "/pricing?ref=" + referralCode,
			"products": base + "/products?ref=" + referralCode,
		},
		TrackingURLs: map[string]string{
			"homepage": base + "/api/v1/affiliates/track/" + affiliateCode + "?url=/",
			"pricing":  base + "/api/v1/affiliates/track/" + affiliateCode + "?url=/pricing",
			"products": base + "/api/v1/affiliates/track/" + affiliateCode + "?url=/products",
		},
	}
}

func referralView(r models.Referral) ReferralView {
	return ReferralView{
		ID:               r.ID,
		Status:           r.Status,
		SubscriptionPlan: lo.FromPtr(r.SubscriptionPlan),
		CommissionAmount: r.CommissionAmount,
		ClickDate:        r.ClickTimestamp,
		SignupDate:       r.SignupTimestamp,
		ConversionDate:   r.ConversionTimestamp,
	}
}

func commissionView(c models.Commission) CommissionView {
	return CommissionView{
		ID:               c.ID,
		Type:             c.Type,
		Amount:           c.Amount,
		Status:           c.Status,
		Description:      c.Description,
		SubscriptionPlan: lo.FromPtr(c.SubscriptionPlan),
		CreatedAt:        c.CreatedAt,
		PaidAt:           c.PaidAt,
	}
}

func percent(part, whole int64) float64 {
	return lo.Ternary(whole > 0, float64(part)/float64(whole)*100, 0)
}
