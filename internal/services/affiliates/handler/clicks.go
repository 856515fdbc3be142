package handler

import (
	"context"
	"fmt"
	"strings"

	"affiliate-system/internal/database/models"
	"affiliate-system/internal/services/affiliates/store"
	"affiliate-system/internal/utils"
)

type ClickSource int

const (
	// ClickSourceLink is a tracking link click, resolved by affiliate code.
	ClickSourceLink ClickSource = iota
	// ClickSourceReferralParam is a ref/aff query parameter, resolved by
	// affiliate or referral code.
	ClickSourceReferralParam
)

type ClickInput struct {
	Code        string
	Source      ClickSource
	IPAddress   string
	UserAgent   string
	ReferrerURL string
	LandingPage string
}

type ClickResult struct {
	Tracked     bool
	Duplicate   bool
	SessionID   string
	Fingerprint string
	AffiliateID int64
}

// TrackClick records a click for an approved affiliate unless the same
// fingerprint already clicked inside the dedup window. Unknown and
// non-approved affiliates are skipped without error. The returned result is
// never nil so callers can set cookies even when recording failed.
func (h *AffiliateHandler) TrackClick(ctx context.Context, in ClickInput) (*ClickResult, error) {
	result := &ClickResult{}

	sessionID, err := utils.NewSessionID(h.random)
	if err != nil {
		return result, err
	}
	result.SessionID = sessionID

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return result, nil
	}

	affiliate, err := h.resolveAffiliate(ctx, code, in.Source == ClickSourceReferralParam)
	if err != nil {
		return result, err
	}
	if affiliate == nil || affiliate.Status != models.AffiliateStatusApproved {
		return result, nil
	}
	result.AffiliateID = affiliate.ID

	now := h.now()
	fingerprint := utils.Fingerprint(in.UserAgent, in.IPAddress, in.LandingPage)
	result.Fingerprint = fingerprint

	duplicate, err := h.store.HasRecentClick(ctx, affiliate.ID, fingerprint, now.Add(-h.program.DedupWindow))
	if err != nil {
		return result, fmt.Errorf("failed to check recent clicks: %w", err)
	}
	if duplicate {
		result.Duplicate = true
		return result, nil
	}

	err = h.store.Transaction(ctx, func(tx store.Store) error {
		click := &models.AffiliateClick{
			AffiliateID:   affiliate.ID,
			AffiliateCode: affiliate.AffiliateCode,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			ReferrerURL:   in.ReferrerURL,
			LandingPage:   in.LandingPage,
			SessionID:     sessionID,
			Fingerprint:   fingerprint,
			Timestamp:     now,
		}
		if err := tx.CreateClick(ctx, click); err != nil {
			return err
		}
		return tx.IncrementClicks(ctx, affiliate.ID)
	})
	if err != nil {
		return result, err
	}

	h.InvalidateAffiliateCaches(ctx, affiliate.ID)
	result.Tracked = true
	return result, nil
}
