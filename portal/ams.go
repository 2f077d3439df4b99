// CLAUDE:SUMMARY AMS lookup: master search, detail-page duty anchors, rejection math.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ErrMasterNotFound is returned when the portal reports no AWB for the
// searched master. The pipeline short-circuits on it.
var ErrMasterNotFound = errors.New("portal: master not found")

// AMSSummary holds the master-level figures scraped from the AMS search
// results and the master detail page.
type AMSSummary struct {
	ArrivalDate string
	TotalHAWBs  string
	TotalHouses string // detail anchor esH, commas stripped
	Duty        string // detail anchor esD, as displayed
	T11Entries  int    // detail anchor esC
	Accepted    int    // detail anchor esA
	Rejected    int    // T11Entries - Accepted
}

// FetchAMS searches AMS for an 11-digit MAWB and follows the first
// result's master link for the duty anchors.
func (c *Client) FetchAMS(ctx context.Context, mawb string) (*AMSSummary, error) {
	if len(mawb) != 11 {
		return nil, fmt.Errorf("portal: mawb %q is not 11 digits", mawb)
	}
	form := amsSearchForm(mawb)
	resp, err := c.PostForm(ctx, AMSSearchPath, form, c.cfg.SearchTimeout)
	if err != nil {
		return nil, fmt.Errorf("portal: ams search: %w", err)
	}
	if strings.Contains(strings.ToLower(string(resp.Body)), "there is no awb") {
		return nil, ErrMasterNotFound
	}

	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}
	results := findByID(doc, "resultsDiv")
	if results == nil {
		return nil, fmt.Errorf("portal: ams results container missing")
	}

	var summary AMSSummary
	var masterLink string
	for _, tr := range findAll(results, "tr") {
		if !hasClass(tr, "light") && !hasClass(tr, "dark") {
			continue
		}
		cells := rowCells(tr)
		if len(cells) < 7 {
			continue
		}
		summary.ArrivalDate = innerText(cells[5])
		summary.TotalHAWBs = innerText(cells[6])
		if a := findFirst(cells[0], "a"); a != nil {
			masterLink = attr(a, "href")
		}
		break
	}
	if masterLink == "" {
		return nil, fmt.Errorf("portal: ams master link missing")
	}

	detail, err := c.Get(ctx, masterLink, c.cfg.SearchTimeout)
	if err != nil {
		return nil, fmt.Errorf("portal: ams detail: %w", err)
	}
	detailDoc, err := parseHTML(detail.Body)
	if err != nil {
		return nil, err
	}

	summary.TotalHouses = strings.ReplaceAll(anchorText(detailDoc, "esH"), ",", "")
	summary.Duty = anchorText(detailDoc, "esD")
	if summary.T11Entries, err = anchorInt(detailDoc, "esC"); err != nil {
		return nil, err
	}
	if summary.Accepted, err = anchorInt(detailDoc, "esA"); err != nil {
		return nil, err
	}
	summary.Rejected = summary.T11Entries - summary.Accepted
	return &summary, nil
}

func anchorText(doc *html.Node, id string) string {
	n := findByID(doc, id)
	if n == nil {
		return ""
	}
	return innerText(n)
}

func anchorInt(doc *html.Node, id string) (int, error) {
	text := strings.ReplaceAll(anchorText(doc, id), ",", "")
	if text == "" {
		return 0, fmt.Errorf("portal: ams anchor %s missing", id)
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("portal: ams anchor %s: %w", id, err)
	}
	return v, nil
}

// amsSearchForm reproduces the portal search form, empty filler fields
// included. Dropping the fillers makes the endpoint return the blank
// search page instead of results.
func amsSearchForm(mawb string) url.Values {
	return url.Values{
		"prefix":           {mawb[:3]},
		"mawb":             {mawb[3:]},
		"refNo":            {""},
		"hawb":             {""},
		"arrivalBegin":     {""},
		"arrivalEnd":       {""},
		"container":        {""},
		"cbpStatus":        {""},
		"acasStatus":       {""},
		"arrivalAirport":   {""},
		"carrier":          {""},
		"flight":           {""},
		"client":           {"0"},
		"clientName":       {""},
		"searchByProfile":  {"true"},
		"searchTimePeriod": {"Y1"},
		"location":         {"0"},
		"user":             {""},
		"noPerPage":        {"25"},
		"cfs":              {"false"},
		"pageNo":           {"0"},
		"orderBy":          {"amb1"},
	}
}
