package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AffiliateStatusPending  = "PENDING"
	AffiliateStatusApproved = "APPROVED"
	AffiliateStatusRejected = "REJECTED"

	ReferralStatusSignedUp  = "SIGNED_UP"
	ReferralStatusConverted = "CONVERTED"

	CommissionTypeReferral  = "REFERRAL"
	CommissionTypeRecurring = "RECURRING"

	CommissionStatusPending = "PENDING"
	CommissionStatusPaid    = "PAID"

	PayoutMethodPaypal       = "PAYPAL"
	PayoutMethodBankTransfer = "BANK_TRANSFER"
	PayoutMethodStripe       = "STRIPE"
)

// JSONMap stores free-form metadata in a json/jsonb column.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONMap: %v", value)
	}

	return json.Unmarshal(bytes, m)
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type Affiliate struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string          `gorm:"uniqueIndex;not null" json:"userId"`
	AffiliateCode   string          `gorm:"uniqueIndex;not null" json:"affiliateCode"`
	ReferralCode    string          `gorm:"uniqueIndex;not null" json:"referralCode"`
	Status          string          `gorm:"index;not null" json:"status"`
	CommissionRate  decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"commissionRate"`
	ClicksGenerated int64           `gorm:"not null;default:0" json:"clicksGenerated"`
	Conversions     int64           `gorm:"not null;default:0" json:"conversions"`
	ConversionRate  float64         `gorm:"type:double precision;not null;default:0" json:"conversionRate"`
	TotalEarnings   decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"totalEarnings"`
	PendingEarnings decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"pendingEarnings"`
	PaidEarnings    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"paidEarnings"`

	CompanyName     *string `json:"companyName,omitempty"`
	Website         *string `json:"website,omitempty"`
	SocialMedia     JSONMap `gorm:"type:jsonb" json:"socialMedia,omitempty"`
	AudienceSize    *int64  `json:"audienceSize,omitempty"`
	Niche           *string `json:"niche,omitempty"`
	MarketingMethod *string `json:"marketingMethod,omitempty"`
	PayoutMethod    string  `gorm:"not null;default:PAYPAL" json:"payoutMethod"`
	PaypalEmail     *string `json:"paypalEmail,omitempty"`
	TaxID           *string `json:"-"`
	Experience      *string `gorm:"type:text" json:"experience,omitempty"`
	WhyAffiliate    *string `gorm:"type:text" json:"whyAffiliate,omitempty"`

	TermsAcceptedAt *time.Time `json:"termsAcceptedAt,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason *string    `gorm:"type:text" json:"rejectionReason,omitempty"`
	CreatedAt       *time.Time `gorm:"autoCreateTime" json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `gorm:"autoUpdateTime" json:"updatedAt,omitempty"`
}

type AffiliateClick struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID   int64     `gorm:"not null;index:idx_clicks_dedup,priority:1" json:"affiliateId"`
	AffiliateCode string    `gorm:"not null" json:"affiliateCode"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `gorm:"type:text" json:"userAgent"`
	ReferrerURL   string    `gorm:"type:text" json:"referrerUrl"`
	LandingPage   string    `gorm:"type:text" json:"landingPage"`
	SessionID     string    `json:"sessionId"`
	Fingerprint   string    `gorm:"not null;index:idx_clicks_dedup,priority:2" json:"fingerprint"`
	Timestamp     time.Time `gorm:"not null;index:idx_clicks_dedup,priority:3" json:"timestamp"`
}

type Referral struct {
	ID                  int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID         int64               `gorm:"not null;index" json:"affiliateId"`
	ReferredUserID      string              `gorm:"not null;index" json:"referredUserId"`
	Status              string              `gorm:"not null;index" json:"status"`
	ClickTimestamp      *time.Time          `json:"clickTimestamp,omitempty"`
	SignupTimestamp     *time.Time          `json:"signupTimestamp,omitempty"`
	ConversionTimestamp *time.Time          `json:"conversionTimestamp,omitempty"`
	SubscriptionID      *string             `json:"subscriptionId,omitempty"`
	SubscriptionPlan    *string             `json:"subscriptionPlan,omitempty"`
	SubscriptionAmount  decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"subscriptionAmount"`
	CommissionAmount    decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"commissionAmount"`
	CommissionPaid      bool                `gorm:"not null;default:false" json:"commissionPaid"`
	CreatedAt           *time.Time          `gorm:"autoCreateTime" json:"createdAt,omitempty"`
	UpdatedAt           *time.Time          `gorm:"autoUpdateTime" json:"updatedAt,omitempty"`
}

type Commission struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID        int64           `gorm:"not null;index" json:"affiliateId"`
	Type               string          `gorm:"not null" json:"type"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"amount"`
	CommissionRate     decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"commissionRate"`
	SubscriptionAmount decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"subscriptionAmount"`
	Status             string          `gorm:"not null;index" json:"status"`
	SubscriptionID     *string         `json:"subscriptionId,omitempty"`
	SubscriptionPlan   *string         `json:"subscriptionPlan,omitempty"`
	Description        string          `gorm:"type:text" json:"description"`
	ReferralID         *int64          `gorm:"index" json:"referralId,omitempty"`
	RecurringMonth     *int            `json:"recurringMonth,omitempty"`
	Metadata           JSONMap         `gorm:"type:jsonb" json:"metadata,omitempty"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
	CreatedAt          *time.Time      `gorm:"autoCreateTime" json:"createdAt,omitempty"`
	UpdatedAt          *time.Time      `gorm:"autoUpdateTime" json:"updatedAt,omitempty"`
}

type AffiliateEvent struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string     `gorm:"not null;index" json:"userId"`
	Event     string     `gorm:"not null;index" json:"event"`
	Metadata  JSONMap    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt *time.Time `gorm:"autoCreateTime" json:"createdAt,omitempty"`
}
