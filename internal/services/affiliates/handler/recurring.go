package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"affiliate-system/internal/database/models"
	"affiliate-system/internal/services/affiliates/store"
)

const (
	maxRecurringMonths   = 3
	recurringMonthLength = 30 * 24 * time.Hour
)

var recurringRateFactor = decimal.RequireFromString("0.5")

// RecurringPayment is a renewal charge on a subscription that converted
// through an affiliate.
type RecurringPayment struct {
	SubscriptionID string          `json:"subscriptionId"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
}

type RecurringResult struct {
	Tracked      bool            `json:"tracked"`
	AffiliateID  int64           `json:"affiliateId,omitempty"`
	CommissionID int64           `json:"commissionId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Month        int             `json:"month,omitempty"`
}

func validateRecurringPayment(p RecurringPayment) error {
	if strings.TrimSpace(p.SubscriptionID) == "" {
		return status.Errorf(codes.InvalidArgument, "Subscription ID is required")
	}
	if !p.Amount.IsPositive() {
		return status.Errorf(codes.InvalidArgument, "Amount must be greater than zero")
	}
	if !p.PeriodStart.IsZero() && !p.PeriodEnd.IsZero() && p.PeriodEnd.Before(p.PeriodStart) {
		return status.Errorf(codes.InvalidArgument, "Billing period ends before it starts")
	}
	return nil
}

// recurringMonth is the 1-based month of a renewal counted in 30-day blocks
// from the conversion.
func recurringMonth(convertedAt, now time.Time) int {
	elapsed := now.Sub(convertedAt)
	if elapsed < 0 {
		return 1
	}
	return int(elapsed/recurringMonthLength) + 1
}

// TrackRecurring pays half the affiliate's rate on renewals during the first
// three months after conversion. Renewals outside that window, for
// subscriptions without an affiliate, or already credited for the month are
// not tracked.
func (h *AffiliateHandler) TrackRecurring(ctx context.Context, p RecurringPayment) (*RecurringResult, error) {
	p.SubscriptionID = strings.TrimSpace(p.SubscriptionID)
	if err := validateRecurringPayment(p); err != nil {
		return nil, err
	}

	referral, err := h.store.FindConvertedReferral(ctx, p.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &RecurringResult{Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to find referral: %v", err)
	}
	if referral.ConversionTimestamp == nil {
		return &RecurringResult{AffiliateID: referral.AffiliateID, Amount: decimal.Zero}, nil
	}

	now := h.now()
	month := recurringMonth(*referral.ConversionTimestamp, now)
	result := &RecurringResult{AffiliateID: referral.AffiliateID, Amount: decimal.Zero, Month: month}
	if month > maxRecurringMonths {
		return result, nil
	}

	err = h.store.Transaction(ctx, func(tx store.Store) error {
		locked, err := tx.LockAffiliate(ctx, referral.AffiliateID)
		if err != nil {
			return err
		}
		if locked.Status != models.AffiliateStatusApproved {
			return nil
		}
		credited, err := tx.HasRecurringCommission(ctx, referral.ID, month)
		if err != nil || credited {
			return err
		}

		rate := locked.CommissionRate.Mul(recurringRateFactor)
		amount := p.Amount.Mul(rate)

		metadata := models.JSONMap{
			"monthNumber":   month,
			"recurringRate": rate.String(),
		}
		if !p.PeriodStart.IsZero() {
			metadata["billingPeriodStart"] = p.PeriodStart.UTC().Format(time.RFC3339)
		}
		if !p.PeriodEnd.IsZero() {
			metadata["billingPeriodEnd"] = p.PeriodEnd.UTC().Format(time.RFC3339)
		}

		referralID := referral.ID
		commission := &models.Commission{
			AffiliateID:        locked.ID,
			Type:               models.CommissionTypeRecurring,
			Amount:             amount,
			CommissionRate:     rate,
			SubscriptionAmount: p.Amount,
			Status:             models.CommissionStatusPending,
			SubscriptionID:     strPtr(p.SubscriptionID),
			SubscriptionPlan:   referral.SubscriptionPlan,
			Description:        fmt.Sprintf("Month %d recurring commission", month),
			ReferralID:         &referralID,
			RecurringMonth:     &month,
			Metadata:           metadata,
			CreatedAt:          &now,
		}
		if err := tx.CreateCommission(ctx, commission); err != nil {
			return err
		}

		err = tx.UpdateAffiliateStats(ctx, locked.ID, store.AffiliateStats{
			Conversions:     locked.Conversions,
			PendingEarnings: locked.PendingEarnings.Add(amount),
			ConversionRate:  ConversionRate(locked.Conversions, locked.ClicksGenerated),
		})
		if err != nil {
			return err
		}

		result.Tracked = true
		result.CommissionID = commission.ID
		result.Amount = amount
		return nil
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to record recurring commission: %v", err)
	}

	if result.Tracked {
		log.Printf("Recurring commission: affiliate=%d subscription=%s month=%d amount=%s",
			result.AffiliateID, p.SubscriptionID, month, result.Amount)
		h.InvalidateAffiliateCaches(ctx, result.AffiliateID)
	}
	return result, nil
}
