// CLAUDE:SUMMARY Custom Report download: template payload form, bounded date window.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TemplatePayload is the stored Custom Report template configuration.
// The portal identifies the template by the field arrays, not by a
// numeric templateId; the POST always carries templateId=0.
type TemplatePayload struct {
	HeaderFields   []string          `json:"headerFields"`
	ManifestFields []string          `json:"manifestFields"`
	InvoiceFields  []string          `json:"invoiceFields,omitempty"`
	LineFields     []string          `json:"lineFields,omitempty"`
	TariffFields   []string          `json:"tariffFields,omitempty"`
	DefaultValues  map[string]string `json:"defaultValues,omitempty"`
}

// ParseTemplatePayload decodes the JSON stored on a format row.
func ParseTemplatePayload(raw string) (*TemplatePayload, error) {
	var p TemplatePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("portal: template payload: %w", err)
	}
	if len(p.HeaderFields) == 0 || len(p.ManifestFields) == 0 {
		return nil, fmt.Errorf("portal: template payload requires headerFields and manifestFields")
	}
	return &p, nil
}

// DownloadCustomReport posts the report form and returns the workbook
// bytes. The response content type must indicate a spreadsheet.
func (c *Client) DownloadCustomReport(ctx context.Context, mawb string, oldestEntry time.Time, tpl *TemplatePayload) ([]byte, error) {
	form := customReportForm(mawb, oldestEntry, tpl, time.Now())
	resp, err := c.PostForm(ctx, CustomReportPath, form, c.cfg.ReportTimeout)
	if err != nil {
		return nil, fmt.Errorf("portal: custom report: %w", err)
	}
	ct := strings.ToLower(resp.ContentType)
	if !strings.Contains(ct, "excel") && !strings.Contains(ct, "spreadsheet") {
		preview := string(resp.Body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("portal: custom report returned %q, not a spreadsheet (body starts %q)", resp.ContentType, preview)
	}
	return resp.Body, nil
}

// customReportForm builds the POST body. Dates are MMDDYY. When the
// oldest entry is 25 or more days old the end date is capped at entry
// date + 25 days to bound the server-side query; otherwise it is today.
func customReportForm(mawb string, oldestEntry time.Time, tpl *TemplatePayload, today time.Time) url.Values {
	form := url.Values{}
	for k, v := range tpl.DefaultValues {
		form.Set(k, v)
	}
	form.Set("templateId", "0")

	end := today
	if today.Sub(oldestEntry) >= 25*24*time.Hour {
		end = oldestEntry.AddDate(0, 0, 25)
	}
	form.Set("begin", oldestEntry.Format("010206"))
	form.Set("end", end.Format("010206"))
	form.Set("masterBill", digitsOnly(mawb))

	for key, values := range map[string][]string{
		"headerFields":   tpl.HeaderFields,
		"manifestFields": tpl.ManifestFields,
		"invoiceFields":  tpl.InvoiceFields,
		"lineFields":     tpl.LineFields,
		"tariffFields":   tpl.TariffFields,
	} {
		// Array fields go out as repeated form keys.
		for _, v := range values {
			form.Add(key, v)
		}
	}
	return form
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
