// CLAUDE:SUMMARY 7501 batch PDF post-processing: text extraction, entry count, duty total.
// Package pdfproc compresses the downloaded 7501 batch PDF and pulls the
// reconciliation figures out of it: how many entries it contains and the
// summed "Total duty & fees" amount.
package pdfproc

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Config configures the processor.
type Config struct {
	// GSBinary is the Ghostscript executable. Default: "gs".
	GSBinary string

	// GSTimeout bounds one compression run. Default: 120s.
	GSTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.GSBinary == "" {
		c.GSBinary = "gs"
	}
	if c.GSTimeout <= 0 {
		c.GSTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Processor owns PDF compression and extraction for one pipeline.
type Processor struct {
	cfg Config
}

// New builds a Processor.
func New(cfg Config) *Processor {
	cfg.defaults()
	return &Processor{cfg: cfg}
}

// Summary is what the reconciliation needs from the batch PDF.
type Summary struct {
	// EntryCount is the number of distinct entry identifiers in the
	// document; one entry per page in a well-formed batch.
	EntryCount int

	// TotalDuty sums every "Total duty & fees" amount across entries.
	TotalDuty float64
}

// ExtractSummary reads the PDF text page by page and computes the entry
// count and duty total. Zero values are valid results; the caller warns
// on them.
func (p *Processor) ExtractSummary(data []byte) (Summary, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return Summary{}, fmt.Errorf("pdfproc: read pdf: %w", err)
	}

	var text strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		text.WriteString(pageText)
		text.WriteByte('\n')
	}

	sum := summarizeText(text.String())
	if sum.EntryCount == 0 && ctx.PageCount > 0 {
		// Entry identifiers can be drawn as images; fall back to one
		// entry per page.
		sum.EntryCount = ctx.PageCount
		p.cfg.Logger.Warn("no entry identifiers in pdf text, counting pages",
			"pages", ctx.PageCount)
	}
	return sum, nil
}

// entryNoRe matches a 7501 entry identifier: filer code, serial, check digit.
var entryNoRe = regexp.MustCompile(`\b([A-Z0-9]{3})-(\d{7})-(\d)\b`)

// dutyLineRe matches the "Total duty & fees" line and its amount.
var dutyLineRe = regexp.MustCompile(`(?i)total\s*duty\s*&\s*fees[^0-9$-]*\$?\s*([0-9][0-9,]*(?:\.\d+)?)`)

// summarizeText computes the Summary from extracted page text.
func summarizeText(text string) Summary {
	var sum Summary

	seen := map[string]bool{}
	for _, m := range entryNoRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			sum.EntryCount++
		}
	}

	for _, m := range dutyLineRe.FindAllStringSubmatch(text, -1) {
		sum.TotalDuty += ParseCurrency(m[1])
	}
	return sum
}

// ParseCurrency parses a monetary string, tolerating "$" and thousands
// separators. Unparseable input yields 0.
func ParseCurrency(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// extractPageText pulls the text operators out of one page's content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return streamText(data)
}

var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// streamText walks content stream lines and collects the string operands
// of the text-showing operators (Tj, TJ, '). Positioning operators become
// whitespace so amounts do not fuse with their labels.
func streamText(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:
			continue
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
			sb.WriteByte(' ')
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")), bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// decodePDFString resolves backslash escapes, including octal codes.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				break
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}
