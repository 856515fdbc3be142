package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"affiliate-system/internal/database/models"
	"affiliate-system/internal/services/affiliates/store"
	"affiliate-system/internal/utils"
)

const (
	EventApplicationSubmitted = "affiliate_application_submitted"

	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeLength   = 6
	referralCodeAttempts = 5
)

type SocialMedia struct {
	Twitter   string `json:"twitter,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	YouTube   string `json:"youtube,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	Other     string `json:"other,omitempty"`
}

type ApplicationInput struct {
	CompanyName     string       `json:"companyName"`
	Website         string       `json:"website" validate:"omitempty,url"`
	SocialMedia     *SocialMedia `json:"socialMedia"`
	AudienceSize    *int64       `json:"audienceSize" validate:"omitempty,min=0"`
	Niche           string       `json:"niche" validate:"omitempty,min=3,max=100"`
	MarketingMethod string       `json:"marketingMethod" validate:"omitempty,oneof=content_marketing paid_advertising social_media email_marketing influencer seo youtube podcast webinars other"`
	PayoutMethod    string       `json:"payoutMethod" validate:"omitempty,oneof=PAYPAL BANK_TRANSFER STRIPE"`
	PaypalEmail     string       `json:"paypalEmail" validate:"omitempty,email"`
	Experience      string       `json:"experience" validate:"max=1000"`
	WhyAffiliate    string       `json:"whyAffiliate" validate:"max=1000"`
	TermsAccepted   bool         `json:"termsAccepted"`
	TaxID           string       `json:"taxId"`
}

type ApplicationResult struct {
	ID            int64  `json:"id"`
	AffiliateCode string `json:"affiliateCode"`
	ReferralCode  string `json:"referralCode"`
	Status        string `json:"status"`
}

type ApplicationStatus struct {
	HasApplied bool             `json:"hasApplied"`
	CanApply   bool             `json:"canApply,omitempty"`
	Affiliate  *AffiliateStatus `json:"affiliate,omitempty"`
}

type AffiliateStatus struct {
	models.Affiliate
	Tier string `json:"tier"`
}

// AffiliateCodeFor derives the stable affiliate code of a user.
func AffiliateCodeFor(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return "AF" + strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

func (h *AffiliateHandler) validateApplication(in ApplicationInput) error {
	if err := h.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return status.Errorf(codes.InvalidArgument, "Invalid application data: %s failed %s", fe.Field(), fe.Tag())
		}
		return status.Errorf(codes.InvalidArgument, "Invalid application data: %v", err)
	}
	if !in.TermsAccepted {
		return status.Errorf(codes.InvalidArgument, "Must accept terms")
	}
	return nil
}

// Apply enrolls userID as a PENDING affiliate with the default commission rate.
func (h *AffiliateHandler) Apply(ctx context.Context, userID string, in ApplicationInput) (*ApplicationResult, error) {
	if userID == "" {
		return nil, status.Errorf(codes.Unauthenticated, "User ID is required")
	}
	if err := h.validateApplication(in); err != nil {
		return nil, err
	}

	existing, err := h.store.FindAffiliateByUserID(ctx, userID)
	if err == nil {
		return nil, status.Errorf(codes.AlreadyExists, "You have already applied to the affiliate program (status %s)", existing.Status)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Errorf(codes.Internal, "Failed to check existing application: %v", err)
	}

	now := h.now()
	payoutMethod := in.PayoutMethod
	if payoutMethod == "" {
		payoutMethod = models.PayoutMethodPaypal
	}

	affiliate := &models.Affiliate{
		UserID:          userID,
		AffiliateCode:   AffiliateCodeFor(userID),
		Status:          models.AffiliateStatusPending,
		CommissionRate:  h.program.DefaultCommissionRate,
		TotalEarnings:   decimal.Zero,
		PendingEarnings: decimal.Zero,
		PaidEarnings:    decimal.Zero,
		CompanyName:     strPtr(in.CompanyName),
		Website:         strPtr(in.Website),
		SocialMedia:     socialMediaMap(in.SocialMedia),
		AudienceSize:    in.AudienceSize,
		Niche:           strPtr(in.Niche),
		MarketingMethod: strPtr(in.MarketingMethod),
		PayoutMethod:    payoutMethod,
		PaypalEmail:     strPtr(in.PaypalEmail),
		TaxID:           strPtr(in.TaxID),
		Experience:      strPtr(in.Experience),
		WhyAffiliate:    strPtr(in.WhyAffiliate),
		TermsAcceptedAt: &now,
		CreatedAt:       &now,
	}

	for attempt := 1; ; attempt++ {
		affiliate.ReferralCode, err = utils.RandomString(h.random, referralCodeAlphabet, referralCodeLength)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to generate referral code: %v", err)
		}
		affiliate.ID = 0

		err = h.createApplication(ctx, affiliate, in, now)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, status.Errorf(codes.Internal, "Failed to create affiliate application: %v", err)
		}

		// A duplicate is either a concurrent application by the same user or a
		// referral code collision; only the latter is worth another code.
		if _, lookupErr := h.store.FindAffiliateByUserID(ctx, userID); lookupErr == nil {
			return nil, status.Errorf(codes.AlreadyExists, "You have already applied to the affiliate program")
		} else if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(codes.Internal, "Failed to check existing application: %v", lookupErr)
		}
		if attempt == referralCodeAttempts {
			return nil, status.Errorf(codes.Internal, "Failed to allocate a unique referral code after %d attempts", attempt)
		}
		log.Printf("Referral code %s already taken, retrying for user %s", affiliate.ReferralCode, userID)
	}

	log.Printf("Affiliate application submitted: user=%s code=%s", userID, affiliate.AffiliateCode)

	return &ApplicationResult{
		ID:            affiliate.ID,
		AffiliateCode: affiliate.AffiliateCode,
		ReferralCode:  affiliate.ReferralCode,
		Status:        affiliate.Status,
	}, nil
}

func (h *AffiliateHandler) createApplication(ctx context.Context, affiliate *models.Affiliate, in ApplicationInput, now time.Time) error {
	return h.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateAffiliate(ctx, affiliate); err != nil {
			return err
		}

		metadata := models.JSONMap{
			"affiliateId":   affiliate.ID,
			"affiliateCode": affiliate.AffiliateCode,
			"referralCode":  affiliate.ReferralCode,
		}
		if in.Niche != "" {
			metadata["niche"] = in.Niche
		}
		if in.MarketingMethod != "" {
			metadata["marketingMethod"] = in.MarketingMethod
		}
		if in.AudienceSize != nil {
			metadata["audienceSize"] = *in.AudienceSize
		}
		return tx.RecordEvent(ctx, &models.AffiliateEvent{
			UserID:    affiliate.UserID,
			Event:     EventApplicationSubmitted,
			Metadata:  metadata,
			CreatedAt: &now,
		})
	})
}

// GetStatus reports whether userID has applied and, if so, the affiliate record.
func (h *AffiliateHandler) GetStatus(ctx context.Context, userID string) (*ApplicationStatus, error) {
	if userID == "" {
		return nil, status.Errorf(codes.Unauthenticated, "User ID is required")
	}
	affiliate, err := h.store.FindAffiliateByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ApplicationStatus{HasApplied: false, CanApply: true}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to get affiliate status: %v", err)
	}
	return &ApplicationStatus{
		HasApplied: true,
		Affiliate:  &AffiliateStatus{Affiliate: *affiliate, Tier: TierFor(affiliate.TotalEarnings)},
	}, nil
}

func socialMediaMap(sm *SocialMedia) models.JSONMap {
	if sm == nil {
		return nil
	}
	out := models.JSONMap{}
	for k, v := range map[string]string{
		"twitter":   sm.Twitter,
		"linkedin":  sm.LinkedIn,
		"youtube":   sm.YouTube,
		"instagram": sm.Instagram,
		"tiktok":    sm.TikTok,
		"other":     sm.Other,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
