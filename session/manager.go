// CLAUDE:SUMMARY Session manager: probe stored snapshots, reuse or relogin behind one browser slot.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/clearway/dutyrec/portal"
)

// Credentials is everything the login flow needs for one broker. The
// values arrive already unsealed from the credential store.
type Credentials struct {
	ID           string
	Username     string
	Password     string
	OTPURI       string
	AuthRequired bool
}

// Config configures the session manager.
type Config struct {
	// BaseURL of the portal. Default: portal.DefaultBaseURL.
	BaseURL string

	// ProbeTimeout bounds the HTTP validity check. Default: 10s.
	ProbeTimeout time.Duration

	// LoginTimeout bounds one full browser login. Default: 120s.
	LoginTimeout time.Duration

	// Headless controls the login browser. Default: true (set via New).
	Headless bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = portal.DefaultBaseURL
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager reuses stored sessions when a probe confirms they still work,
// and falls back to a browser login otherwise. Logins are serialized
// through a single slot; probes are cheap and run unguarded.
type Manager struct {
	cfg   Config
	files *FileStore
	sem   chan struct{}
	now   func() time.Time
}

// New builds a Manager over the given file store. The login browser
// runs headless.
func New(cfg Config, files *FileStore) *Manager {
	cfg.defaults()
	cfg.Headless = true
	return &Manager{
		cfg:   cfg,
		files: files,
		sem:   make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Acquire returns a working session for the broker. The bool reports
// whether a stored session was reused; false means a fresh login ran.
func (m *Manager) Acquire(ctx context.Context, cred Credentials) (*State, bool, error) {
	log := m.cfg.Logger

	if st, err := m.files.Load(cred.ID); err != nil {
		log.Warn("stored session unreadable, relogging", "broker_id", cred.ID, "error", err)
	} else if st != nil {
		if st.Expired(m.now()) {
			log.Info("stored session past expiry", "broker_id", cred.ID)
		} else if m.IsValid(ctx, st) {
			log.Info("reusing stored session", "broker_id", cred.ID)
			return st, true, nil
		} else {
			log.Info("stored session rejected by probe", "broker_id", cred.ID)
		}
	}

	st, err := m.Login(ctx, cred)
	if err != nil {
		return nil, false, err
	}
	if err := m.files.Save(cred.ID, st); err != nil {
		// The session itself works; persistence failure only costs the
		// next run a relogin.
		log.Warn("session persist failed", "broker_id", cred.ID, "error", err)
	}
	return st, false, nil
}

// Login runs a browser login, holding the single browser slot.
func (m *Manager) Login(ctx context.Context, cred Credentials) (*State, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.sem }()

	loginCtx, cancel := context.WithTimeout(ctx, m.cfg.LoginTimeout)
	defer cancel()

	st, err := m.loginViaBrowser(loginCtx, cred)
	if err != nil {
		return nil, fmt.Errorf("session: login broker %s: %w", cred.ID, err)
	}
	return st, nil
}

// Invalidate drops the stored snapshot so the next Acquire relogs.
func (m *Manager) Invalidate(brokerID string) error {
	return m.files.Delete(brokerID)
}

// IsValid probes the search page with the snapshot's cookies. A live
// session lands on the page itself; a dead one gets bounced to the
// login form.
func (m *Manager) IsValid(ctx context.Context, st *State) bool {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return false
	}
	base, err := url.Parse(m.cfg.BaseURL)
	if err != nil {
		return false
	}
	jar.SetCookies(base, st.HTTPCookies())

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.cfg.BaseURL+portal.AMSSearchPath, nil)
	if err != nil {
		return false
	}
	client := &http.Client{Jar: jar}
	resp, err := client.Do(req)
	if err != nil {
		m.cfg.Logger.Debug("session probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return false
	}
	page := string(body)

	final := resp.Request.URL.String()
	if strings.Contains(final, "security") || strings.Contains(final, "login") {
		return false
	}
	if strings.Contains(page, `id="lName"`) {
		return false
	}
	return strings.Contains(page, `id="pre"`)
}
