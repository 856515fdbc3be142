package handlers

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"affiliate-system/internal/attribution"
	affiliates "affiliate-system/internal/services/affiliates/handler"
	"affiliate-system/internal/utils"
)

const requestTimeout = 10 * time.Second

// AffiliateService is the business layer behind the affiliate routes.
type AffiliateService interface {
	TrackClick(ctx context.Context, in affiliates.ClickInput) (*affiliates.ClickResult, error)
	TrackConversion(ctx context.Context, code string, ev affiliates.ConversionEvent) (*affiliates.ConversionResult, error)
	TrackRecurring(ctx context.Context, p affiliates.RecurringPayment) (*affiliates.RecurringResult, error)
	Apply(ctx context.Context, userID string, in affiliates.ApplicationInput) (*affiliates.ApplicationResult, error)
	GetStatus(ctx context.Context, userID string) (*affiliates.ApplicationStatus, error)
	Dashboard(ctx context.Context, userID, timeframe string) (*affiliates.Dashboard, error)
	Balance(ctx context.Context, userID string) (*affiliates.PayoutSummary, error)
}

type AffiliateHTTPHandler struct {
	affiliates   AffiliateService
	cookies      *attribution.Manager
	allowedHosts []string
}

func NewAffiliateHTTPHandler(svc AffiliateService, cookies *attribution.Manager, allowedHosts []string) *AffiliateHTTPHandler {
	return &AffiliateHTTPHandler{
		affiliates:   svc,
		cookies:      cookies,
		allowedHosts: allowedHosts,
	}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

// handleServiceError writes the HTTP form of err and reports whether it did.
func handleServiceError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.InvalidArgument, codes.FailedPrecondition:
			c.JSON(http.StatusBadRequest, errorResponse(s.Message()))
		case codes.NotFound:
			c.JSON(http.StatusNotFound, errorResponse(s.Message()))
		case codes.AlreadyExists:
			c.JSON(http.StatusConflict, errorResponse(s.Message()))
		case codes.PermissionDenied:
			c.JSON(http.StatusForbidden, errorResponse(s.Message()))
		case codes.Unauthenticated:
			c.JSON(http.StatusUnauthorized, errorResponse(s.Message()))
		default:
			log.Printf("Affiliate service error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.JSON(http.StatusInternalServerError, errorResponse("Internal server error"))
		}
	} else {
		log.Printf("Affiliate service error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, errorResponse("Internal server error"))
	}
	c.Abort()
	return true
}

// RedirectTarget resolves the url parameter of a tracking link. Relative paths
// are kept; absolute URLs must be http(s) and, when allowedHosts is not empty,
// point at one of them. Anything else becomes "/".
func RedirectTarget(raw string, allowedHosts []string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}

	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(raw, "/") {
			return "/" + raw
		}
		return raw
	}

	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "/"
	}
	if len(allowedHosts) == 0 {
		return raw
	}
	for _, host := range allowedHosts {
		if strings.EqualFold(u.Hostname(), host) {
			return raw
		}
	}
	return "/"
}

// --- Tracking ---

// TrackClick records a tracking link click and always redirects, even when
// recording fails.
func (h *AffiliateHTTPHandler) TrackClick(c *gin.Context) {
	code := c.Param("code")
	target := RedirectTarget(c.Query("url"), h.allowedHosts)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.TrackClick(ctx, affiliates.ClickInput{
		Code:        code,
		Source:      affiliates.ClickSourceLink,
		IPAddress:   utils.ClientIP(c.Request, c.ClientIP()),
		UserAgent:   c.Request.UserAgent(),
		ReferrerURL: c.Request.Referer(),
		LandingPage: target,
	})
	if err != nil {
		log.Printf("Affiliate click tracking failed for %s: %v", code, err)
	}

	sessionID := ""
	if res != nil {
		sessionID = res.SessionID
	}
	h.cookies.SetClickCookies(c.Writer, c.Request, code, sessionID)
	c.Redirect(http.StatusTemporaryRedirect, target)
}

// TrackConversion records a signup or subscription for the affiliate in the path.
func (h *AffiliateHTTPHandler) TrackConversion(c *gin.Context) {
	var ev affiliates.ConversionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format: "+err.Error()))
		return
	}

	code := c.Param("code")
	if attr, ok := h.cookies.Read(c.Request); ok && attr.AffiliateCode == code {
		firstVisit := attr.FirstVisit
		ev.ClickedAt = &firstVisit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.TrackConversion(ctx, code, ev)
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusOK, successResponse("Conversion processed", gin.H{"tracked": res.Tracked}))
}

// TrackAttributedConversion records a conversion for whichever affiliate the
// visitor's attribution cookies point at. Attribution is cleared once a
// subscription is tracked.
func (h *AffiliateHTTPHandler) TrackAttributedConversion(c *gin.Context) {
	var ev affiliates.ConversionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format: "+err.Error()))
		return
	}

	attr, ok := h.cookies.Read(c.Request)
	if !ok {
		c.JSON(http.StatusOK, successResponse("No affiliate attribution", gin.H{"tracked": false}))
		return
	}
	firstVisit := attr.FirstVisit
	ev.ClickedAt = &firstVisit

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.TrackConversion(ctx, attr.AffiliateCode, ev)
	if handleServiceError(c, err) {
		return
	}

	if res.Tracked && ev.EventType == affiliates.EventSubscription {
		h.cookies.Clear(c.Writer)
	}
	c.JSON(http.StatusOK, successResponse("Conversion processed", gin.H{"tracked": res.Tracked}))
}

// TrackRecurring records a renewal charge posted by the billing back-end.
func (h *AffiliateHTTPHandler) TrackRecurring(c *gin.Context) {
	var p affiliates.RecurringPayment
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.TrackRecurring(ctx, p)
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusOK, successResponse("Recurring payment processed", res))
}

// --- Applications ---

func (h *AffiliateHTTPHandler) Apply(c *gin.Context) {
	var req affiliates.ApplicationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.Apply(ctx, c.GetString("user_id"), req)
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, successResponse("Application submitted successfully! We will review your application within 2-3 business days.", res))
}

func (h *AffiliateHTTPHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.GetStatus(ctx, c.GetString("user_id"))
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusOK, successResponse("Affiliate status retrieved successfully", res))
}

// --- Dashboard & payouts ---

func (h *AffiliateHTTPHandler) Dashboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.Dashboard(ctx, c.GetString("user_id"), c.DefaultQuery("timeframe", affiliates.TimeframeMonth))
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusOK, successResponse("Affiliate dashboard retrieved successfully", res))
}

func (h *AffiliateHTTPHandler) Payouts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.affiliates.Balance(ctx, c.GetString("user_id"))
	if handleServiceError(c, err) {
		return
	}

	c.JSON(http.StatusOK, successResponse("Payout information retrieved successfully", res))
}
