// CLAUDE:SUMMARY Custom report workbook parsing: FTE-Match and Shoaib-Match dialects.
// Package reportxl parses the portal's customizable report workbook.
// Two template dialects exist: FTE-Match sums duty over every row,
// Shoaib-Match carries a per-row key in column A that deduplicates duty
// but not house counts.
package reportxl

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column layout, 0-indexed. Shoaib shifts the data columns right by one
// to make room for the dedup key in column A.
const (
	fteColInformal = 4
	fteColComplete = 6
	fteColEntry    = 2
	fteColRelease  = 8
	fteColHouse    = 13

	shoaibColKey      = 0
	shoaibColEntry    = 3
	shoaibColInformal = 5
	shoaibColComplete = 7
	shoaibColRelease  = 9
	shoaibColHouse    = 13
)

// Summary is the parsed report, pre-formatted the way the pipeline
// records it.
type Summary struct {
	ReportDuty    float64
	TotalInformal float64
	CompleteDuty  float64
	TotalHouse    int
	EntryDates    []string // sorted unique mm/dd/yy
	ReleaseDates  []string
}

// Fields renders the summary into its result-record keys.
func (s *Summary) Fields() map[string]string {
	return map[string]string{
		"Report Duty":         fmt.Sprintf("%.2f", s.ReportDuty),
		"Report Total House":  strconv.Itoa(s.TotalHouse),
		"Total Informal Duty": fmt.Sprintf("%.2f", s.TotalInformal),
		"Complete Total Duty": fmt.Sprintf("%.2f", s.CompleteDuty),
		"Entry Date":          joinOrNA(s.EntryDates),
		"Cargo Release Date":  joinOrNA(s.ReleaseDates),
	}
}

func joinOrNA(dates []string) string {
	if len(dates) == 0 {
		return "N/A"
	}
	return strings.Join(dates, ", ")
}

// IsShoaib reports whether the template identifier selects the
// Shoaib-Match dialect.
func IsShoaib(templateIdentifier string) bool {
	return strings.Contains(strings.ToLower(templateIdentifier), "shoaib")
}

// Parse reads the workbook's active sheet and applies the dialect
// selected by the template identifier. Rows that fail to read are
// skipped; a workbook of skipped rows still yields a zero Summary.
func Parse(r io.Reader, templateIdentifier string) (*Summary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("reportxl: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reportxl: read sheet %q: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return &Summary{}, nil
	}

	if IsShoaib(templateIdentifier) {
		return parseShoaib(rows[1:]), nil
	}
	return parseFTE(rows[1:]), nil
}

func parseFTE(rows [][]string) *Summary {
	s := &Summary{}
	entryDates := map[string]bool{}
	releaseDates := map[string]bool{}

	for _, row := range rows {
		informal, ok := parseAmount(cell(row, fteColInformal))
		if !ok {
			continue
		}
		complete, ok := parseAmount(cell(row, fteColComplete))
		if !ok {
			continue
		}
		if cell(row, fteColHouse) != "" {
			s.TotalHouse++
		}
		s.TotalInformal += informal
		s.CompleteDuty += complete
		collectDate(entryDates, cell(row, fteColEntry))
		collectDate(releaseDates, cell(row, fteColRelease))
	}

	s.ReportDuty = s.TotalInformal + s.CompleteDuty
	s.EntryDates = sortedKeys(entryDates)
	s.ReleaseDates = sortedKeys(releaseDates)
	return s
}

func parseShoaib(rows [][]string) *Summary {
	s := &Summary{}
	entryDates := map[string]bool{}
	releaseDates := map[string]bool{}
	seen := map[string]bool{}

	for _, row := range rows {
		key := strings.TrimSpace(cell(row, shoaibColKey))
		if key == "" {
			continue
		}
		informal, ok := parseAmount(cell(row, shoaibColInformal))
		if !ok {
			continue
		}
		complete, ok := parseAmount(cell(row, shoaibColComplete))
		if !ok {
			continue
		}

		// Houses count on every row; continuation rows repeat the key
		// but carry their own house cell.
		if cell(row, shoaibColHouse) != "" {
			s.TotalHouse++
		}
		if !seen[key] {
			seen[key] = true
			s.TotalInformal += informal
			s.CompleteDuty += complete
		}
		collectDate(entryDates, cell(row, shoaibColEntry))
		collectDate(releaseDates, cell(row, shoaibColRelease))
	}

	s.ReportDuty = s.TotalInformal + s.CompleteDuty
	s.EntryDates = sortedKeys(entryDates)
	s.ReleaseDates = sortedKeys(releaseDates)
	return s
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount parses a duty cell. Empty means zero; a non-empty cell
// that fails to parse invalidates the row.
func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/06",
	"1/2/06",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
}

// collectDate normalizes a date cell to mm/dd/yy and records it.
// Unrecognized non-empty values are kept verbatim, matching how the
// report surfaces whatever the portal emitted.
func collectDate(set map[string]bool, raw string) {
	if raw == "" {
		return
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			set[t.Format("01/02/06")] = true
			return
		}
	}
	set[raw] = true
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
