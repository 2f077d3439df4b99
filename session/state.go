// CLAUDE:SUMMARY Session snapshot: cookies, origins, calculated expiry.
// Package session owns the portal authentication lifecycle: browser
// login with optional 2FA, cheap HTTP validity probes, and per-broker
// persistence of cookie snapshots.
package session

import (
	"net/http"
	"time"
)

// Cookie mirrors the browser cookie fields worth persisting. Expires is
// unix seconds; zero or negative means a session-only cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// LocalStorageItem is one origin-scoped key/value pair.
type LocalStorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin carries the local storage captured for one origin.
type Origin struct {
	Origin       string             `json:"origin"`
	LocalStorage []LocalStorageItem `json:"localStorage,omitempty"`
}

// State is a persisted login snapshot for one broker.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins,omitempty"`

	// CalculatedExpiry is the minimum future cookie expiry (unix
	// seconds) at snapshot time. Zero when every cookie is session-only.
	CalculatedExpiry int64 `json:"_calculated_expiry,omitempty"`
}

// ComputeExpiry recalculates CalculatedExpiry from the cookie set:
// the minimum expiry that is both positive and in the future.
func (s *State) ComputeExpiry(now time.Time) {
	s.CalculatedExpiry = 0
	nowSec := float64(now.Unix())
	for _, c := range s.Cookies {
		if c.Expires <= 0 || c.Expires <= nowSec {
			continue
		}
		exp := int64(c.Expires)
		if s.CalculatedExpiry == 0 || exp < s.CalculatedExpiry {
			s.CalculatedExpiry = exp
		}
	}
}

// Expired reports whether the snapshot's calculated expiry has passed.
// Snapshots without any persistent cookie never report expired; the
// probe decides for them.
func (s *State) Expired(now time.Time) bool {
	return s.CalculatedExpiry > 0 && now.Unix() >= s.CalculatedExpiry
}

// HTTPCookies converts the snapshot for use in an http.CookieJar.
func (s *State) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
