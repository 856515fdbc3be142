// Package handler holds the affiliate program business logic shared by the
// HTTP gateway and the conversion gRPC service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"affiliate-system/config"
	"affiliate-system/internal/database/models"
	"affiliate-system/internal/services/affiliates/store"
)

const (
	AFFILIATE_CODE_CACHE_PREFIX      = "affiliate:code:"
	AFFILIATE_TRACKING_CACHE_PREFIX  = "affiliate:tracking:"
	AFFILIATE_DASHBOARD_CACHE_PREFIX = "affiliate:dashboard:"

	affiliateCacheTTL = 5 * time.Minute
	dashboardCacheTTL = 5 * time.Minute
)

type AffiliateHandler struct {
	store    store.Store
	cache    Cache
	program  config.ProgramConfig
	appURL   string
	validate *validator.Validate
	now      func() time.Time
	random   io.Reader
}

type Option func(*AffiliateHandler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *AffiliateHandler) { h.now = now }
}

// WithRandom overrides the entropy source used for session ids and referral codes.
func WithRandom(r io.Reader) Option {
	return func(h *AffiliateHandler) { h.random = r }
}

func NewAffiliateHandler(st store.Store, cache Cache, program config.ProgramConfig, appURL string, opts ...Option) *AffiliateHandler {
	if cache == nil {
		cache = nopCache{}
	}
	h := &AffiliateHandler{
		store:    st,
		cache:    cache,
		program:  program,
		appURL:   appURL,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// cachedAffiliate is the part of an affiliate the tracking paths need.
type cachedAffiliate struct {
	ID            int64  `json:"id"`
	AffiliateCode string `json:"affiliateCode"`
	Status        string `json:"status"`
}

// resolveAffiliate looks an affiliate up by code, going through the cache.
// byTrackingCode also matches referral codes. A nil result means no affiliate.
func (h *AffiliateHandler) resolveAffiliate(ctx context.Context, code string, byTrackingCode bool) (*cachedAffiliate, error) {
	prefix := AFFILIATE_CODE_CACHE_PREFIX
	if byTrackingCode {
		prefix = AFFILIATE_TRACKING_CACHE_PREFIX
	}
	cacheKey := prefix + code

	val, err := h.cache.Get(ctx, cacheKey)
	if err == nil {
		var cached cachedAffiliate
		if err := json.Unmarshal([]byte(val), &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, errCacheMiss) {
		log.Printf("Redis error on get affiliate %s: %v", code, err)
	}

	var affiliate *models.Affiliate
	if byTrackingCode {
		affiliate, err = h.store.FindAffiliateByTrackingCode(ctx, code)
	} else {
		affiliate, err = h.store.FindAffiliateByCode(ctx, code)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find affiliate %s: %w", code, err)
	}

	cached := &cachedAffiliate{ID: affiliate.ID, AffiliateCode: affiliate.AffiliateCode, Status: affiliate.Status}
	if jsonData, err := json.Marshal(cached); err == nil {
		if err := h.cache.Set(ctx, cacheKey, jsonData, affiliateCacheTTL); err != nil {
			log.Printf("Failed to cache affiliate %s: %v", code, err)
		}
	}
	return cached, nil
}

func dashboardCacheKey(affiliateID int64, timeframe string) string {
	return fmt.Sprintf("%s%d:%s", AFFILIATE_DASHBOARD_CACHE_PREFIX, affiliateID, timeframe)
}

// InvalidateAffiliateCaches drops the cached dashboard stats of the given affiliates.
func (h *AffiliateHandler) InvalidateAffiliateCaches(ctx context.Context, affiliateIDs ...int64) {
	var keys []string
	for _, id := range affiliateIDs {
		for _, tf := range timeframes {
			keys = append(keys, dashboardCacheKey(id, tf))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := h.cache.Del(ctx, keys...); err != nil {
		log.Printf("Failed to invalidate affiliate caches: %v", err)
	}
}

// findOwnAffiliate loads the affiliate owned by userID, NotFound when the user
// is not enrolled.
func (h *AffiliateHandler) findOwnAffiliate(ctx context.Context, userID string) (*models.Affiliate, error) {
	if userID == "" {
		return nil, status.Errorf(codes.Unauthenticated, "User ID is required")
	}
	affiliate, err := h.store.FindAffiliateByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Errorf(codes.NotFound, "User is not an affiliate")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to get affiliate: %v", err)
	}
	return affiliate, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
