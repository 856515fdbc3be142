package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"affiliate-system/internal/attribution"
	affiliates "affiliate-system/internal/services/affiliates/handler"
	"affiliate-system/internal/utils"
)

var referralParams = []string{"ref", "aff"}

type ClickTracker interface {
	TrackClick(ctx context.Context, in affiliates.ClickInput) (*affiliates.ClickResult, error)
}

// ReferralCapture turns ?ref= and ?aff= visits into attribution cookies and a
// click, then redirects to the same URL without the parameters.
func ReferralCapture(tracker ClickTracker, cookies *attribution.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		query := c.Request.URL.Query()
		code := ""
		for _, p := range referralParams {
			if code = query.Get(p); code != "" {
				break
			}
		}
		if code == "" {
			c.Next()
			return
		}

		cookies.SetReferralCookies(c.Writer, c.Request, code)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if _, err := tracker.TrackClick(ctx, affiliates.ClickInput{
			Code:        code,
			Source:      affiliates.ClickSourceReferralParam,
			IPAddress:   utils.ClientIP(c.Request, c.ClientIP()),
			UserAgent:   c.Request.UserAgent(),
			ReferrerURL: c.Request.Referer(),
			LandingPage: c.Request.URL.RequestURI(),
		}); err != nil {
			log.Printf("Referral click tracking failed for %s: %v", code, err)
		}

		for _, p := range referralParams {
			query.Del(p)
		}
		clean := *c.Request.URL
		clean.RawQuery = query.Encode()
		c.Redirect(http.StatusTemporaryRedirect, clean.RequestURI())
		c.Abort()
	}
}
