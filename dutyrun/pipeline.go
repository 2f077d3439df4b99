// CLAUDE:SUMMARY Per-MAWB pipeline: AMS, entries, custom report, 7501 PDF, verification.
package dutyrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/clearway/dutyrec/artifact"
	"github.com/clearway/dutyrec/mawbinput"
	"github.com/clearway/dutyrec/pdfproc"
	"github.com/clearway/dutyrec/portal"
	"github.com/clearway/dutyrec/reportxl"
	"github.com/clearway/dutyrec/session"
	"github.com/clearway/dutyrec/verify"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sections selects which pipeline stages run for a batch.
type Sections struct {
	AMS     bool `json:"ams"`
	Entries bool `json:"entries"`
	Custom  bool `json:"custom"`
	PDF     bool `json:"download_7501_pdf"`
}

// Item is one unit of pipeline work: the parsed input row plus the
// broker and template it runs under.
type Item struct {
	Input  mawbinput.Item
	Broker session.Credentials

	BrokerName         string
	TemplateName       string
	TemplateIdentifier string
	TemplatePayload    string // JSON, see portal.ParseTemplatePayload

	Sections Sections
}

// Outcome is the full result of one pipeline run.
type Outcome struct {
	MAWB          string
	Summary       Summary
	Status        string // success | failed
	ErrorMessage  string
	SessionReused bool
	ExcelKey      string
	PDFKey        string
	Logs          []string
}

// SessionProvider yields a working portal session for a broker.
// Implemented by session.Manager; tests substitute a stub.
type SessionProvider interface {
	Acquire(ctx context.Context, cred session.Credentials) (*session.State, bool, error)
}

// ArtifactStore is the slice of the artifact gateway the pipeline
// needs. A nil store disables uploads.
type ArtifactStore interface {
	UploadBytes(ctx context.Context, key, contentType string, data []byte) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Prefix() string
}

// PDFProcessor post-processes the 7501 batch PDF. Implemented by
// pdfproc.Processor.
type PDFProcessor interface {
	Compress(ctx context.Context, data []byte) []byte
	ExtractSummary(data []byte) (pdfproc.Summary, error)
}

// Config configures a Pipeline.
type Config struct {
	Portal     portal.Config
	PresignTTL time.Duration // default 1h
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.PresignTTL <= 0 {
		c.PresignTTL = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline runs the reconciliation stages for one MAWB at a time.
type Pipeline struct {
	cfg       Config
	sessions  SessionProvider
	artifacts ArtifactStore
	pdf       PDFProcessor
}

// NewPipeline wires a Pipeline. artifacts may be nil; a nil pdf gets a
// default processor.
func NewPipeline(cfg Config, sessions SessionProvider, artifacts ArtifactStore, pdf PDFProcessor) *Pipeline {
	cfg.defaults()
	if pdf == nil {
		pdf = pdfproc.New(pdfproc.Config{Logger: cfg.Logger})
	}
	return &Pipeline{cfg: cfg, sessions: sessions, artifacts: artifacts, pdf: pdf}
}

// Hooks stream progress and log lines to the caller while a run is in
// flight. Either callback may be nil.
type Hooks struct {
	// Progress receives a message and the stage fraction in [0,1].
	Progress func(message string, fraction float64)
	// Log receives every pipeline log line.
	Log func(message string)
}

func (h Hooks) progress(msg string, frac float64) {
	if h.Progress != nil {
		h.Progress(msg, frac)
	}
}

// run state shared between stage helpers.
type run struct {
	item    Item
	out     *Outcome
	client  *portal.Client
	hooks   Hooks
	log     *slog.Logger
	entries *portal.EntriesResult
}

func (r *run) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.out.Logs = append(r.out.Logs, msg)
	r.log.Info(msg, "mawb", r.out.MAWB)
	if r.hooks.Log != nil {
		r.hooks.Log(msg)
	}
}

// Run executes the stage sequence for one item. It always returns an
// Outcome; errors inside a stage degrade that stage and continue, per
// the stage-isolation rule. Only login failure, Master Not Found, and
// Entries Not Found fail the item.
func (p *Pipeline) Run(ctx context.Context, item Item, hooks Hooks) *Outcome {
	out := &Outcome{
		MAWB:    item.Input.MAWB,
		Summary: NewSummary(item.Input.MAWB, item.Input.CheckbookHAWBs),
		Status:  "success",
	}
	r := &run{item: item, out: out, hooks: hooks, log: p.cfg.Logger}

	hooks.progress("acquiring session", 0.05)
	st, reused, err := p.sessions.Acquire(ctx, item.Broker)
	if err != nil {
		return fail(out, fmt.Sprintf("login failed: %v", err))
	}
	out.SessionReused = reused
	if reused {
		r.logf("Reusing stored session for broker %s", item.Broker.ID)
	} else {
		r.logf("Fresh login for broker %s", item.Broker.ID)
	}

	r.client, err = portal.NewClient(p.cfg.Portal, st.HTTPCookies())
	if err != nil {
		return fail(out, fmt.Sprintf("portal client: %v", err))
	}

	if item.Sections.AMS {
		hooks.progress("AMS lookup", 0.2)
		if stop := p.runAMS(ctx, r); stop {
			return out
		}
	}

	if item.Sections.Entries || item.Sections.Custom || item.Sections.PDF {
		hooks.progress("entries index", 0.4)
		if stop := p.runEntries(ctx, r); stop {
			return out
		}
	}

	if item.Sections.Custom {
		hooks.progress("custom report", 0.6)
		p.runCustomReport(ctx, r)
	}

	if item.Sections.PDF {
		hooks.progress("7501 batch PDF", 0.8)
		p.run7501(ctx, r)
	}

	hooks.progress("done", 1.0)
	return out
}

func fail(out *Outcome, msg string) *Outcome {
	out.Status = "failed"
	out.ErrorMessage = msg
	return out
}

func (p *Pipeline) runAMS(ctx context.Context, r *run) (stop bool) {
	sum, err := r.client.FetchAMS(ctx, r.item.Input.MAWB)
	if errors.Is(err, portal.ErrMasterNotFound) {
		r.logf("AMS: master not found")
		fail(r.out, "Master not found")
		return true
	}
	if err != nil {
		r.logf("AMS stage failed: %v", err)
		return false
	}

	s := r.out.Summary
	s["AMS Total HAWBs"] = sum.TotalHAWBs
	s["AMS Duty"] = sum.Duty
	s["AMS Total T-11 Entries"] = strconv.Itoa(sum.T11Entries)
	s["AMS Entries Accepted"] = strconv.Itoa(sum.Accepted)
	s["Rejected Entries"] = strconv.Itoa(sum.Rejected)
	s["7501 Total Houses"] = sum.TotalHouses
	r.logf("AMS: HAWBs=%s duty=%s T11=%d accepted=%d rejected=%d houses=%s",
		sum.TotalHAWBs, sum.Duty, sum.T11Entries, sum.Accepted, sum.Rejected, sum.TotalHouses)
	return false
}

func (p *Pipeline) runEntries(ctx context.Context, r *run) (stop bool) {
	res, err := r.client.FetchEntries(ctx, r.item.Input.MAWB)
	if errors.Is(err, portal.ErrEntriesNotFound) {
		r.logf("Entries: not found, skipping custom report and PDF")
		fail(r.out, "Entries not found")
		return true
	}
	if err != nil {
		r.logf("Entries stage failed: %v", err)
		return false
	}
	r.entries = res
	r.logf("Entries: %d rows, oldest entry date %s",
		len(res.Rows), res.OldestDate.Format("01/02/2006"))

	if r.item.Sections.Entries && len(res.Rows) > 0 {
		details := r.client.FetchEntryDetails(ctx, res.Rows)
		lines := 0
		for _, d := range details {
			lines += d.InvoiceLines
		}
		r.logf("Entry details: fetched %d of %d, %d invoice lines total",
			len(details), len(res.Rows), lines)
	}
	return false
}

func (p *Pipeline) runCustomReport(ctx context.Context, r *run) {
	if r.entries == nil || r.entries.OldestDate.IsZero() {
		r.logf("Custom report skipped: no oldest entry date")
		return
	}

	tpl, err := portal.ParseTemplatePayload(r.item.TemplatePayload)
	if err != nil {
		r.logf("Custom report stage failed: %v", err)
		return
	}
	data, err := r.client.DownloadCustomReport(ctx, r.item.Input.MAWB, r.entries.OldestDate, tpl)
	if err != nil {
		r.logf("Custom report stage failed: %v", err)
		return
	}

	parsed, err := reportxl.Parse(bytes.NewReader(data), r.item.TemplateIdentifier)
	if err != nil {
		r.logf("Custom report parse failed: %v", err)
		return
	}
	r.out.Summary.Merge(parsed.Fields())
	r.logf("Custom report: duty=%.2f houses=%d", parsed.ReportDuty, parsed.TotalHouse)

	if p.artifacts == nil {
		return
	}
	key := artifact.ExcelKey(p.artifacts.Prefix(), r.item.Input.MAWB,
		r.item.Input.AirportCode, r.item.Input.Customer, r.item.TemplateName)
	// Excel upload is best effort; the figures are already parsed.
	if err := p.artifacts.UploadBytes(ctx, key, xlsxContentType, data); err != nil {
		r.logf("Custom report upload failed: %v", err)
		return
	}
	r.out.ExcelKey = key
	r.logf("Custom report uploaded: %s", key)
}

func (p *Pipeline) run7501(ctx context.Context, r *run) {
	if r.entries == nil || len(r.entries.Rows) == 0 {
		r.logf("7501 PDF skipped: no entry rows")
		return
	}

	// The gate applies whenever both of its input sections were
	// requested; a failed stage contributes N/A values that parse as 0.
	if r.item.Sections.AMS && r.item.Sections.Custom {
		ok, issues := verify.PreGate(map[string]string(r.out.Summary))
		if !ok {
			r.logf("7501 PDF skipped, verification failed: %s", strings.Join(issues, "; "))
			r.out.Summary["7501 Batch PDF URL"] = ""
			return
		}
		r.logf("Pre-PDF verification passed")
	}

	// Only rows whose detail link carried a filerCode/entryNo query can
	// go into the batch request.
	entryNos := make([]int, 0, len(r.entries.Rows))
	for _, row := range r.entries.Rows {
		if row.EntryNo == 0 {
			continue
		}
		entryNos = append(entryNos, row.EntryNo)
	}
	if len(entryNos) == 0 {
		r.logf("7501 PDF skipped: no entry numbers captured")
		return
	}
	data, err := r.client.Download7501PDF(ctx, entryNos)
	if err != nil {
		r.logf("7501 PDF stage failed: %v", err)
		return
	}
	r.logf("7501 PDF downloaded: %d bytes for %d entries", len(data), len(entryNos))

	data = p.pdf.Compress(ctx, data)

	if sum, err := p.pdf.ExtractSummary(data); err != nil {
		r.logf("7501 PDF extraction failed: %v", err)
	} else {
		r.out.Summary["7501 Total T-11 Entries"] = strconv.Itoa(sum.EntryCount)
		r.out.Summary["7501 Duty"] = fmt.Sprintf("%.2f", sum.TotalDuty)
		if sum.EntryCount == 0 || sum.TotalDuty == 0 {
			r.logf("7501 PDF extraction returned zero values: entries=%d duty=%.2f",
				sum.EntryCount, sum.TotalDuty)
		}
	}

	p.upload7501(ctx, r, data)

	if r.item.Sections.AMS && r.item.Sections.Custom {
		if ok, issues := verify.Reconcile(map[string]string(r.out.Summary)); !ok {
			r.logf("Post-PDF reconciliation issues: %s", strings.Join(issues, "; "))
		} else {
			r.logf("Post-PDF reconciliation passed")
		}
	}
}

func (p *Pipeline) upload7501(ctx context.Context, r *run, data []byte) {
	if p.artifacts == nil {
		r.out.Summary["7501 Batch PDF URL"] = ""
		return
	}
	key := artifact.PDFKey(p.artifacts.Prefix(), r.item.Input.MAWB,
		r.item.Input.AirportCode, r.item.Input.Customer)
	if err := p.artifacts.UploadBytes(ctx, key, "application/pdf", data); err != nil {
		r.logf("7501 PDF upload failed: %v", err)
		r.out.Summary["7501 Batch PDF URL"] = ""
		return
	}
	r.out.PDFKey = key
	r.logf("7501 PDF uploaded: %s", key)

	url, err := p.artifacts.Presign(ctx, key, p.cfg.PresignTTL)
	if err != nil {
		r.logf("7501 PDF presign failed: %v", err)
		r.out.Summary["7501 Batch PDF URL"] = ""
		return
	}
	r.out.Summary["7501 Batch PDF URL"] = url
}
