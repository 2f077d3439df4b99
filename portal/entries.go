// CLAUDE:SUMMARY Entries index: dynamic date-column discovery, row extraction, oldest date.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrEntriesNotFound is returned when the portal lists no entries for a
// master. Custom Report and PDF stages are skipped downstream.
var ErrEntriesNotFound = errors.New("portal: entries not found")

// EntryRow is one entry filed against the master.
type EntryRow struct {
	Date        time.Time
	Link        string // absolute detail-page URL
	QueryString string // "filerCode=...&entryNo=NNN"
	EntryNo     int
}

// EntriesResult is the parsed entries index.
type EntriesResult struct {
	Rows       []EntryRow
	OldestDate time.Time
}

var entryQueryRe = regexp.MustCompile(`filerCode=[^&]+&entryNo=(\d+)`)

// FetchEntries posts the entries search for a master and parses the
// result table.
func (c *Client) FetchEntries(ctx context.Context, mawb string) (*EntriesResult, error) {
	resp, err := c.PostForm(ctx, EntriesPath, entriesSearchForm(mawb), c.cfg.SearchTimeout)
	if err != nil {
		return nil, fmt.Errorf("portal: entries search: %w", err)
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}

	table := entriesTable(doc)
	if table == nil {
		return nil, fmt.Errorf("portal: entries table missing")
	}
	rows := findAll(table, "tr")
	dateCol := entryDateColumn(rows)

	var result EntriesResult
	for _, tr := range rows {
		if !hasClass(tr, "light") && !hasClass(tr, "dark") {
			continue
		}
		rowText := strings.ToLower(innerText(tr))
		if strings.Contains(rowText, "no results") || strings.Contains(rowText, "no entries") {
			return nil, ErrEntriesNotFound
		}
		if row, ok := c.parseEntryRow(tr, dateCol); ok {
			result.Rows = append(result.Rows, row)
			if result.OldestDate.IsZero() || row.Date.Before(result.OldestDate) {
				result.OldestDate = row.Date
			}
		}
	}
	if len(result.Rows) == 0 {
		return nil, ErrEntriesNotFound
	}
	return &result, nil
}

func (c *Client) parseEntryRow(tr *html.Node, dateCol int) (EntryRow, bool) {
	cells := rowCells(tr)
	if len(cells) == 0 {
		return EntryRow{}, false
	}

	// Entry date from the discovered column, then the historical
	// zero-indexed 5/6/4 positions.
	candidates := []int{dateCol, 5, 6, 4}
	var date time.Time
	found := false
	for _, col := range candidates {
		if col < 0 || col >= len(cells) {
			continue
		}
		if d, ok := parsePortalDate(innerText(cells[col])); ok {
			date = d
			found = true
			break
		}
	}
	if !found {
		return EntryRow{}, false
	}

	row := EntryRow{Date: date}
	if a := findFirst(cells[0], "a"); a != nil {
		href := attr(a, "href")
		row.Link = c.absolute(href)
		if m := entryQueryRe.FindStringSubmatch(href); m != nil {
			row.QueryString = m[0]
			row.EntryNo, _ = strconv.Atoi(m[1])
		}
	}
	return row, true
}

// parsePortalDate accepts the portal's mm/dd/yy cell format.
func parsePortalDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "/") || len(text) > 10 {
		return time.Time{}, false
	}
	for _, layout := range []string{"01/02/06", "1/2/06", "01/02/2006", "1/2/2006"} {
		if d, err := time.Parse(layout, text); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// entriesTable prefers the results table inside #veForm, falling back
// to the first dataCell table anywhere on the page.
func entriesTable(doc *html.Node) *html.Node {
	roots := []*html.Node{}
	if form := findByID(doc, "veForm"); form != nil {
		roots = append(roots, form)
	}
	roots = append(roots, doc)
	for _, root := range roots {
		for _, div := range findAll(root, "div") {
			if !hasClass(div, "dataCell") {
				continue
			}
			if table := findFirst(div, "table"); table != nil {
				return table
			}
		}
	}
	return nil
}

// entryDateColumn scans header rows for an "Entry Date" label. Returns
// -1 when the header cannot be located.
func entryDateColumn(rows []*html.Node) int {
	// Header candidates: explicit header-class rows, then the first two
	// rows of the table.
	var candidates []*html.Node
	for _, tr := range rows {
		if hasClass(tr, "header") {
			candidates = append(candidates, tr)
		}
	}
	if len(rows) >= 2 {
		candidates = append(candidates, rows[1])
	}
	if len(rows) >= 1 {
		candidates = append(candidates, rows[0])
	}
	for _, tr := range candidates {
		for i, text := range cellTexts(tr) {
			collapsed := strings.ReplaceAll(strings.ToLower(text), " ", "")
			if strings.Contains(collapsed, "entrydate") {
				return i
			}
		}
	}
	return -1
}

// entriesSearchForm reproduces the portal's full entries search form as
// captured from the network panel. Missing fillers change the response.
func entriesSearchForm(mawb string) url.Values {
	return url.Values{
		"entryNoSearch":                    {""},
		"brokerRefNo":                      {""},
		"importerRecord":                   {"0"},
		"importerRecordName":               {""},
		"importerSearchByProfile":          {"true"},
		"ultimateConsignee":                {"0"},
		"ultimateConsigneeName":            {""},
		"ultimateConsigneeSearchByProfile": {"true"},
		"freightForwarder":                 {"0"},
		"freightForwarderName":             {""},
		"freightForwarderSearchByProfile":  {"true"},
		"begin":                            {""},
		"end":                              {""},
		"entryStatus":                      {""},
		"cargoReleaseStatus":               {""},
		"manifestStatus":                   {""},
		"pgaAgency":                        {""},
		"ogaStatus":                        {""},
		"statusColor":                      {""},
		"entryType":                        {""},
		"portEntry":                        {""},
		"modeTransport":                    {""},
		"masterBill":                       {mawb},
		"searchTimePeriod":                 {"Y1"},
		"user":                             {""},
		"location":                         {"0"},
		"noPerPage":                        {"1000"},
		"entryNo":                          {"0"},
		"orderBy":                          {"vep1"},
	}
}
