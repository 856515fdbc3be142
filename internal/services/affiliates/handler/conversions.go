package handler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"affiliate-system/internal/database/models"
	"affiliate-system/internal/services/affiliates/store"
)

const (
	EventSignup       = "signup"
	EventSubscription = "subscription"

	EventCommissionEarned = "commission_earned"

	ReferralSourceAffiliate = "affiliate"
)

type SubscriptionData struct {
	Plan           string          `json:"plan"`
	Amount         decimal.Decimal `json:"amount"`
	SubscriptionID string          `json:"subscriptionId"`
}

type ConversionEvent struct {
	EventType    string            `json:"eventType"`
	UserID       string            `json:"userId"`
	Subscription *SubscriptionData `json:"subscriptionData"`
	// ClickedAt is the attribution first visit when the caller knows it.
	ClickedAt *time.Time `json:"-"`
}

type ConversionResult struct {
	Tracked            bool
	AffiliateID        int64
	CommissionAmount   decimal.Decimal
	ReferralsConverted int64
}

// ConversionRate is conversions / clicks, 0 when there are no clicks.
func ConversionRate(conversions, clicks int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return float64(conversions) / float64(clicks)
}

func validateConversionEvent(code string, ev ConversionEvent) error {
	if code == "" {
		return status.Errorf(codes.InvalidArgument, "Affiliate code is required")
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return status.Errorf(codes.InvalidArgument, "User ID is required")
	}
	switch ev.EventType {
	case EventSignup:
		return nil
	case EventSubscription:
		if ev.Subscription == nil {
			return status.Errorf(codes.InvalidArgument, "Subscription data is required for subscription events")
		}
		if !ev.Subscription.Amount.IsPositive() {
			return status.Errorf(codes.InvalidArgument, "Subscription amount must be greater than zero")
		}
		return nil
	default:
		return status.Errorf(codes.InvalidArgument, "Unknown event type %q", ev.EventType)
	}
}

// TrackConversion records a signup or subscription for the affiliate behind
// code. An unknown code is not an error: tracking never fails the caller's
// primary operation, so the result just reports Tracked=false.
func (h *AffiliateHandler) TrackConversion(ctx context.Context, code string, ev ConversionEvent) (*ConversionResult, error) {
	code = strings.TrimSpace(code)
	if err := validateConversionEvent(code, ev); err != nil {
		return nil, err
	}

	affiliate, err := h.resolveAffiliate(ctx, code, true)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to resolve affiliate: %v", err)
	}
	if affiliate == nil {
		return &ConversionResult{}, nil
	}

	if ev.EventType == EventSignup {
		return h.trackSignup(ctx, affiliate, ev)
	}
	return h.trackSubscription(ctx, affiliate, ev)
}

func (h *AffiliateHandler) trackSignup(ctx context.Context, affiliate *cachedAffiliate, ev ConversionEvent) (*ConversionResult, error) {
	now := h.now()
	clickedAt := now
	if ev.ClickedAt != nil {
		clickedAt = *ev.ClickedAt
	}

	created := false
	err := h.store.Transaction(ctx, func(tx store.Store) error {
		exists, err := tx.HasReferral(ctx, affiliate.ID, ev.UserID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		referral := &models.Referral{
			AffiliateID:     affiliate.ID,
			ReferredUserID:  ev.UserID,
			Status:          models.ReferralStatusSignedUp,
			ClickTimestamp:  &clickedAt,
			SignupTimestamp: &now,
			CreatedAt:       &now,
		}
		if err := tx.CreateReferral(ctx, referral); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to record signup: %v", err)
	}
	if !created {
		return &ConversionResult{AffiliateID: affiliate.ID}, nil
	}

	// The users table belongs to the auth service; a failed stamp keeps the referral.
	if err := h.store.StampReferredUser(ctx, ev.UserID, affiliate.AffiliateCode, ReferralSourceAffiliate); err != nil {
		log.Printf("Failed to stamp referred user %s: %v", ev.UserID, err)
	}

	h.InvalidateAffiliateCaches(ctx, affiliate.ID)
	return &ConversionResult{Tracked: true, AffiliateID: affiliate.ID}, nil
}

func (h *AffiliateHandler) trackSubscription(ctx context.Context, affiliate *cachedAffiliate, ev ConversionEvent) (*ConversionResult, error) {
	now := h.now()
	sub := ev.Subscription
	result := &ConversionResult{AffiliateID: affiliate.ID}

	err := h.store.Transaction(ctx, func(tx store.Store) error {
		locked, err := tx.LockAffiliate(ctx, affiliate.ID)
		if err != nil {
			return err
		}

		commissionAmount := sub.Amount.Mul(locked.CommissionRate)

		converted, err := tx.ConvertReferrals(ctx, locked.ID, ev.UserID, store.ReferralConversion{
			ConvertedAt:        now,
			SubscriptionID:     sub.SubscriptionID,
			SubscriptionPlan:   sub.Plan,
			SubscriptionAmount: sub.Amount,
			CommissionAmount:   commissionAmount,
		})
		if err != nil {
			return err
		}

		commission := &models.Commission{
			AffiliateID:        locked.ID,
			Type:               models.CommissionTypeReferral,
			Amount:             commissionAmount,
			CommissionRate:     locked.CommissionRate,
			SubscriptionAmount: sub.Amount,
			Status:             models.CommissionStatusPending,
			SubscriptionID:     strPtr(sub.SubscriptionID),
			SubscriptionPlan:   strPtr(sub.Plan),
			Description:        commissionDescription(sub.Plan),
			CreatedAt:          &now,
		}
		if err := tx.CreateCommission(ctx, commission); err != nil {
			return err
		}

		err = tx.RecordEvent(ctx, &models.AffiliateEvent{
			UserID: locked.UserID,
			Event:  EventCommissionEarned,
			Metadata: models.JSONMap{
				"commissionId":       commission.ID,
				"affiliateId":        locked.ID,
				"referredUserId":     ev.UserID,
				"subscriptionPlan":   sub.Plan,
				"amount":             commissionAmount.String(),
				"subscriptionAmount": sub.Amount.String(),
				"commissionRate":     locked.CommissionRate.String(),
			},
			CreatedAt: &now,
		})
		if err != nil {
			return err
		}

		conversions := locked.Conversions + 1
		err = tx.UpdateAffiliateStats(ctx, locked.ID, store.AffiliateStats{
			Conversions:     conversions,
			PendingEarnings: locked.PendingEarnings.Add(commissionAmount),
			ConversionRate:  ConversionRate(conversions, locked.ClicksGenerated),
		})
		if err != nil {
			return err
		}

		result.CommissionAmount = commissionAmount
		result.ReferralsConverted = converted
		return nil
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to record subscription conversion: %v", err)
	}

	h.InvalidateAffiliateCaches(ctx, affiliate.ID)
	result.Tracked = true
	return result, nil
}

func commissionDescription(plan string) string {
	if plan == "" {
		return "Referral commission"
	}
	return fmt.Sprintf("Referral commission for %s subscription", plan)
}
