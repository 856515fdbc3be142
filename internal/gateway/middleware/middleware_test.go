package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"affiliate-system/internal/attribution"
	affiliates "affiliate-system/internal/services/affiliates/handler"
	"affiliate-system/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "user": c.GetString(ContextUserID)})
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ========================================
// JWTAuth
// ========================================

func TestJWTAuth(t *testing.T) {
	secret := []byte("test-secret")
	r := gin.New()
	r.GET("/me", JWTAuth(secret), okHandler)

	token, _, err := utils.GenerateToken(secret, "user-42", "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	forged, _, _ := utils.GenerateToken([]byte("other"), "user-42", "user@example.com", time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"wrong signature", "Bearer " + forged, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ========================================
// RateLimit
// ========================================

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/limited", RateLimit("2-M", IPKey("test")), okHandler)

	for i := 0; i < 2; i++ {
		if w := serve(r, httptest.NewRequest(http.MethodGet, "/limited", nil)); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/limited", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/limited", nil)
	other.RemoteAddr = "198.51.100.9:4321"
	if w := serve(r, other); w.Code != http.StatusOK {
		t.Errorf("another client status = %d, want 200", w.Code)
	}
}

func TestUserKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	key := UserKey("apply")
	if got := key(c); got != "apply:ip:192.0.2.1" {
		t.Errorf("anonymous key = %s", got)
	}
	c.Set(ContextUserID, "user-42")
	if got := key(c); got != "apply:user:user-42" {
		t.Errorf("user key = %s", got)
	}
}

// ========================================
// CORS
// ========================================

func TestCORS(t *testing.T) {
	called := false
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/data", func(c *gin.Context) {
		called = true
		okHandler(c)
	})

	preflight := httptest.NewRequest(http.MethodOptions, "/data", nil)
	preflight.Header.Set("Origin", "https://app.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(r, preflight)
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("preflight allow-origin = %q", got)
	}
	if called {
		t.Error("preflight must not reach the route")
	}

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = serve(r, req)
	if w.Code != http.StatusOK || !called {
		t.Errorf("simple request status = %d, called = %v", w.Code, called)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	w = serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allow-origin = %q, want empty", got)
	}
}

// ========================================
// WebhookSecret
// ========================================

func TestWebhookSecret(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret("s3cret"), okHandler)

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(HeaderWebhookSecret, "s3cret")
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Errorf("matching secret status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(HeaderWebhookSecret, "guess")
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d", w.Code)
	}

	if w := serve(r, httptest.NewRequest(http.MethodPost, "/hook", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("missing secret status = %d", w.Code)
	}
}

func TestWebhookSecret_Disabled(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret(""), okHandler)
	if w := serve(r, httptest.NewRequest(http.MethodPost, "/hook", nil)); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without a configured secret", w.Code)
	}
}

// ========================================
// ReferralCapture
// ========================================

type recordingTracker struct {
	calls []affiliates.ClickInput
	err   error
}

func (r *recordingTracker) TrackClick(_ context.Context, in affiliates.ClickInput) (*affiliates.ClickResult, error) {
	r.calls = append(r.calls, in)
	if r.err != nil {
		return &affiliates.ClickResult{}, r.err
	}
	return &affiliates.ClickResult{Tracked: true, SessionID: "abc"}, nil
}

func newCaptureRouter(tracker ClickTracker) *gin.Engine {
	cookies := attribution.NewManager(false, 30*24*time.Hour, 24*time.Hour)
	r := gin.New()
	r.Use(ReferralCapture(tracker, cookies))
	r.GET("/pricing", okHandler)
	r.POST("/pricing", okHandler)
	return r
}

func TestReferralCapture_RedirectsWithoutParams(t *testing.T) {
	tracker := &recordingTracker{}
	r := newCaptureRouter(tracker)

	req := httptest.NewRequest(http.MethodGet, "/pricing?ref=PARTNER&plan=pro", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := serve(r, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/pricing?plan=pro" {
		t.Errorf("location = %s", got)
	}

	cookies := w.Result().Cookies()
	if c := findCookie(cookies, attribution.CookieRef); c == nil || c.Value != "PARTNER" {
		t.Errorf("affiliate_ref cookie = %+v", c)
	}
	if findCookie(cookies, attribution.CookieFirstVisit) == nil {
		t.Error("first visit cookie not set")
	}

	if len(tracker.calls) != 1 {
		t.Fatalf("tracked %d clicks, want 1", len(tracker.calls))
	}
	in := tracker.calls[0]
	if in.Code != "PARTNER" || in.Source != affiliates.ClickSourceReferralParam || in.LandingPage != "/pricing?ref=PARTNER&plan=pro" {
		t.Errorf("click input = %+v", in)
	}
}

func TestReferralCapture_AffParam(t *testing.T) {
	tracker := &recordingTracker{}
	w := serve(newCaptureRouter(tracker), httptest.NewRequest(http.MethodGet, "/pricing?aff=PARTNER", nil))
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/pricing" {
		t.Errorf("status = %d, location = %s", w.Code, w.Header().Get("Location"))
	}
	if len(tracker.calls) != 1 || tracker.calls[0].Code != "PARTNER" {
		t.Errorf("calls = %+v", tracker.calls)
	}
}

func TestReferralCapture_TrackingErrorsAreSwallowed(t *testing.T) {
	tracker := &recordingTracker{err: errors.New("db down")}
	w := serve(newCaptureRouter(tracker), httptest.NewRequest(http.MethodGet, "/pricing?ref=PARTNER", nil))
	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want 307 even when tracking fails", w.Code)
	}
}

func TestReferralCapture_PassThrough(t *testing.T) {
	tracker := &recordingTracker{}
	r := newCaptureRouter(tracker)

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/pricing?plan=pro", nil)); w.Code != http.StatusOK {
		t.Errorf("no ref status = %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodPost, "/pricing?ref=PARTNER", nil)); w.Code != http.StatusOK {
		t.Errorf("POST status = %d", w.Code)
	}
	if len(tracker.calls) != 0 {
		t.Errorf("tracked %d clicks, want 0", len(tracker.calls))
	}
}
