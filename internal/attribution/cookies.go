// Package attribution carries affiliate attribution between requests in
// client-side cookies.
package attribution

import (
	"net/http"
	"strconv"
	"time"
)

const (
	CookieAffiliateCode = "affiliate_code"
	CookieSession       = "affiliate_session"
	CookieRef           = "affiliate_ref"
	CookieFirstVisit    = "affiliate_first_visit"
)

type Attribution struct {
	AffiliateCode string
	FirstVisit    time.Time
	SessionID     string
}

type Manager struct {
	Window     time.Duration
	SessionTTL time.Duration
	Secure     bool
	Now        func() time.Time
}

func NewManager(secure bool, window, sessionTTL time.Duration) *Manager {
	return &Manager{
		Window:     window,
		SessionTTL: sessionTTL,
		Secure:     secure,
		Now:        time.Now,
	}
}

// Read returns the attribution carried by r, or false when there is none or
// the first visit is older than the attribution window.
func (m *Manager) Read(r *http.Request) (*Attribution, bool) {
	code := cookieValue(r, CookieRef)
	if code == "" {
		code = cookieValue(r, CookieAffiliateCode)
	}
	if code == "" {
		return nil, false
	}

	firstVisit, ok := m.firstVisit(r)
	if !ok {
		return nil, false
	}
	if m.Now().Sub(firstVisit) > m.Window {
		return nil, false
	}

	return &Attribution{
		AffiliateCode: code,
		FirstVisit:    firstVisit,
		SessionID:     cookieValue(r, CookieSession),
	}, true
}

// SetClickCookies writes the attribution and session cookies for a tracking
// link click. The first-visit stamp is only written when absent so the
// original touch point survives later clicks.
func (m *Manager) SetClickCookies(w http.ResponseWriter, r *http.Request, code, sessionID string) {
	m.set(w, CookieAffiliateCode, code, m.Window)
	if sessionID != "" {
		m.set(w, CookieSession, sessionID, m.SessionTTL)
	}
	m.stampFirstVisit(w, r)
}

// SetReferralCookies writes the cookies for a ref/aff query parameter visit.
func (m *Manager) SetReferralCookies(w http.ResponseWriter, r *http.Request, code string) {
	m.set(w, CookieRef, code, m.Window)
	m.stampFirstVisit(w, r)
}

// Clear expires the parameter attribution cookies after a conversion.
func (m *Manager) Clear(w http.ResponseWriter) {
	for _, name := range []string{CookieRef, CookieFirstVisit} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (m *Manager) stampFirstVisit(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.firstVisit(r); ok {
		return
	}
	m.set(w, CookieFirstVisit, strconv.FormatInt(m.Now().UnixMilli(), 10), m.Window)
}

func (m *Manager) firstVisit(r *http.Request) (time.Time, bool) {
	raw := cookieValue(r, CookieFirstVisit)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (m *Manager) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
