package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/gorm"

	"affiliate-system/proto/affiliatepb"
)

// ConversionServer exposes conversion tracking to billing back-ends over gRPC.
type ConversionServer struct {
	affiliatepb.UnimplementedConversionServiceServer
	affiliates *AffiliateHandler
}

func NewConversionServer(affiliates *AffiliateHandler) *ConversionServer {
	return &ConversionServer{affiliates: affiliates}
}

type conversionRequest struct {
	AffiliateCode string `json:"affiliateCode"`
	ConversionEvent
	ClickedAt string `json:"clickedAt"`
}

func decodeStruct(req *structpb.Struct, out interface{}) error {
	if req == nil {
		return status.Errorf(codes.InvalidArgument, "Request body is required")
	}
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "Invalid request: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "Invalid request: %v", err)
	}
	return nil
}

func (s *ConversionServer) TrackConversion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in conversionRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	ev := in.ConversionEvent
	if in.ClickedAt != "" {
		clickedAt, err := time.Parse(time.RFC3339, in.ClickedAt)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "clickedAt must be RFC3339: %v", err)
		}
		ev.ClickedAt = &clickedAt
	}

	res, err := s.affiliates.TrackConversion(ctx, in.AffiliateCode, ev)
	if err != nil {
		return nil, err
	}

	return structpb.NewStruct(map[string]interface{}{
		"success":            true,
		"tracked":            res.Tracked,
		"affiliateId":        res.AffiliateID,
		"commissionAmount":   res.CommissionAmount.String(),
		"referralsConverted": res.ReferralsConverted,
	})
}

func (s *ConversionServer) GetAffiliate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		AffiliateCode string `json:"affiliateCode"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.AffiliateCode)
	if code == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Affiliate code is required")
	}

	affiliate, err := s.affiliates.store.FindAffiliateByTrackingCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Errorf(codes.NotFound, "Affiliate with code %s not found", code)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to get affiliate: %v", err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"id":              affiliate.ID,
		"affiliateCode":   affiliate.AffiliateCode,
		"referralCode":    affiliate.ReferralCode,
		"status":          affiliate.Status,
		"tier":            TierFor(affiliate.TotalEarnings),
		"commissionRate":  affiliate.CommissionRate.String(),
		"clicksGenerated": affiliate.ClicksGenerated,
		"conversions":     affiliate.Conversions,
		"conversionRate":  affiliate.ConversionRate,
		"pendingEarnings": affiliate.PendingEarnings.String(),
		"totalEarnings":   affiliate.TotalEarnings.String(),
	})
}

type recurringRequest struct {
	SubscriptionID string          `json:"subscriptionId"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    string          `json:"periodStart"`
	PeriodEnd      string          `json:"periodEnd"`
}

func parseOptionalTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be RFC3339: %v", field, err)
	}
	return t, nil
}

func (s *ConversionServer) TrackRecurring(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in recurringRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	start, err := parseOptionalTime("periodStart", in.PeriodStart)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalTime("periodEnd", in.PeriodEnd)
	if err != nil {
		return nil, err
	}

	res, err := s.affiliates.TrackRecurring(ctx, RecurringPayment{
		SubscriptionID: in.SubscriptionID,
		Amount:         in.Amount,
		PeriodStart:    start,
		PeriodEnd:      end,
	})
	if err != nil {
		return nil, err
	}

	return structpb.NewStruct(map[string]interface{}{
		"success":      true,
		"tracked":      res.Tracked,
		"affiliateId":  res.AffiliateID,
		"commissionId": res.CommissionID,
		"amount":       res.Amount.String(),
		"month":        res.Month,
	})
}
