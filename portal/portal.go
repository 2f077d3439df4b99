// CLAUDE:SUMMARY Portal adapter: shared retrying HTTP client over an authenticated cookie jar.
// Package portal implements the brokerage portal's form protocols: AMS
// lookup, entries index, custom report download, and 7501 batch PDF
// generation. All flows share one cookie jar obtained from a browser
// login; only that login needs a real browser.
package portal

import (
	"log/slog"
	"time"
)

// Endpoint paths. The host is configurable; the paths are fixed portal
// contracts.
const (
	LoginPath        = "/security/"
	AMSSearchPath    = "/app/ams/viewMawbs.do"
	EntriesPath      = "/app/entry/processViewEntries.do"
	EntryDetailPath  = "/app/entry/viewEntry.do"
	CustomReportPath = "/app/entry/downloadCustomizableReport.do"
	PDF7501Path      = "/app/entry/7501_Batch.pdf"
)

// DefaultBaseURL is the production portal host.
const DefaultBaseURL = "https://www.netchb.com"

// Config configures the portal client.
type Config struct {
	// BaseURL is the portal origin, without a trailing slash.
	BaseURL string

	// UserAgent is sent on every request.
	UserAgent string

	// Per-flow timeouts.
	SearchTimeout  time.Duration // AMS and entries searches, detail pages
	DetailTimeout  time.Duration // per-entry detail fetch
	ReportTimeout  time.Duration // custom report synthesis
	PDFTimeout     time.Duration // 7501 batch PDF synthesis
	DetailParallel int           // entry-detail fan-out width

	// Retry settings for transient failures.
	MaxRetries  int
	BaseBackoff time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 60 * time.Second
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = 120 * time.Second
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = 300 * time.Second
	}
	if c.PDFTimeout <= 0 {
		c.PDFTimeout = 600 * time.Second
	}
	if c.DetailParallel <= 0 {
		c.DetailParallel = 6
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
