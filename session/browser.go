// CLAUDE:SUMMARY Headless login: credential form, optional TOTP step, cookie snapshot.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/clearway/dutyrec/otpgen"
	"github.com/clearway/dutyrec/portal"
)

const (
	selUsername    = "#lName"
	selPassword    = "#pass"
	selLoginSubmit = `input[type="submit"]`
	selTFAInput    = "#tfa"
	selTFASubmit   = `#tfaForm > div:nth-child(2) > input[type="submit"]`

	// The account menu only renders for an authenticated user.
	selLoginSuccess = `#menuTableBody > tr > td:nth-child(1)`
)

// loginViaBrowser drives a fresh headless Chrome through the portal
// login form and returns the resulting cookie snapshot. The browser is
// torn down before returning, success or not.
func (m *Manager) loginViaBrowser(ctx context.Context, cred Credentials) (*State, error) {
	log := m.cfg.Logger

	l := launcher.New().Headless(m.cfg.Headless)
	// Anti-detection flags.
	l = l.Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("session: launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("session: connect chrome: %w", err)
	}
	defer func() {
		browser.Close()
		l.Cleanup()
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("session: create page: %w", err)
	}
	page = page.Context(ctx)

	loginURL := m.cfg.BaseURL + portal.LoginPath
	if err := page.Navigate(loginURL); err != nil {
		return nil, fmt.Errorf("session: navigate %s: %w", loginURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn("login page load wait", "error", err)
	}

	if err := fillField(page, selUsername, cred.Username); err != nil {
		return nil, err
	}
	if err := fillField(page, selPassword, cred.Password); err != nil {
		return nil, err
	}
	if err := clickElement(page, selLoginSubmit); err != nil {
		return nil, err
	}
	log.Info("submitted credentials", "broker_id", cred.ID)

	if cred.AuthRequired {
		if err := m.completeTFA(ctx, page, cred); err != nil {
			return nil, err
		}
	}

	// Login is confirmed only once the authenticated menu appears.
	if _, err := page.Element(selLoginSuccess); err != nil {
		return nil, fmt.Errorf("session: login confirmation never appeared: %w", err)
	}
	log.Info("login confirmed", "broker_id", cred.ID)

	return snapshotState(browser, m.now())
}

// completeTFA waits for the TOTP prompt and submits a code with enough
// remaining validity to survive the round trip.
func (m *Manager) completeTFA(ctx context.Context, page *rod.Page, cred Credentials) error {
	gen, err := otpgen.New(cred.OTPURI, m.cfg.Logger)
	if err != nil {
		return fmt.Errorf("session: otp: %w", err)
	}

	tfa, err := page.Element(selTFAInput)
	if err != nil {
		return fmt.Errorf("session: 2fa field %s: %w", selTFAInput, err)
	}
	if err := tfa.WaitVisible(); err != nil {
		return fmt.Errorf("session: 2fa field visibility: %w", err)
	}

	code, err := gen.FreshCode(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("session: otp code: %w", err)
	}
	if err := tfa.Input(code); err != nil {
		return fmt.Errorf("session: enter otp: %w", err)
	}
	if err := clickElement(page, selTFASubmit); err != nil {
		return err
	}
	m.cfg.Logger.Info("submitted 2fa code", "broker_id", cred.ID)
	return nil
}

func fillField(page *rod.Page, selector, value string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("session: find %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("session: fill %s: %w", selector, err)
	}
	return nil
}

func clickElement(page *rod.Page, selector string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("session: find %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("session: click %s: %w", selector, err)
	}
	return nil
}

// snapshotState captures every browser cookie into a State and stamps
// its calculated expiry.
func snapshotState(browser *rod.Browser, now time.Time) (*State, error) {
	cookies, err := browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("session: read cookies: %w", err)
	}
	st := &State{Cookies: make([]Cookie, 0, len(cookies))}
	for _, c := range cookies {
		st.Cookies = append(st.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	st.ComputeExpiry(now)
	return st, nil
}
