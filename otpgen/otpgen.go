// CLAUDE:SUMMARY TOTP code generation from otpauth URIs with a minimum validity window.
// Package otpgen produces portal 2FA codes from provisioning URIs.
package otpgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Generator wraps a parsed otpauth://totp/ provisioning URI.
type Generator struct {
	key    *otp.Key
	opts   totp.ValidateOpts
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New parses an otpauth://totp/ URI. Secret, period, digit count, and
// algorithm all come from the URI, with RFC defaults (30 s, 6 digits,
// SHA1) when absent.
func New(uri string, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		return nil, fmt.Errorf("otpgen: URI must start with otpauth://totp/")
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("otpgen: parse URI: %w", err)
	}
	if key.Secret() == "" {
		return nil, fmt.Errorf("otpgen: URI has no secret")
	}
	period := key.Period()
	if period == 0 {
		period = 30
	}
	digits := key.Digits()
	if digits == 0 {
		digits = otp.DigitsSix
	}
	return &Generator{
		key: key,
		opts: totp.ValidateOpts{
			Period:    uint(period),
			Digits:    digits,
			Algorithm: key.Algorithm(),
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// Period returns the rotation period in seconds.
func (g *Generator) Period() uint { return g.opts.Period }

// Code returns the current code regardless of remaining validity.
func (g *Generator) Code() (string, error) {
	code, err := totp.GenerateCodeCustom(g.key.Secret(), g.now(), g.opts)
	if err != nil {
		return "", fmt.Errorf("otpgen: generate: %w", err)
	}
	return code, nil
}

// Remaining reports how many seconds the current code stays valid.
func (g *Generator) Remaining() time.Duration {
	period := int64(g.opts.Period)
	elapsed := g.now().Unix() % period
	return time.Duration(period-elapsed) * time.Second
}

// FreshCode returns a code with at least minValidity left in its window.
// When the current window is about to close it waits for the next one,
// bounded by a little over one full period.
func (g *Generator) FreshCode(ctx context.Context, minValidity time.Duration) (string, error) {
	deadline := g.now().Add(time.Duration(g.opts.Period)*time.Second + 5*time.Second)
	for {
		remaining := g.Remaining()
		if remaining >= minValidity {
			return g.Code()
		}
		if g.now().After(deadline) {
			return "", fmt.Errorf("otpgen: no window with %s validity within deadline", minValidity)
		}
		g.logger.Debug("waiting for next code window", "remaining", remaining)
		wait := remaining + time.Second
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}
