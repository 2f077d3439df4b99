// CLAUDE:SUMMARY 7501 batch PDF generation via the direct form payload.
package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Download7501PDF asks the portal to synthesize the batch 7501 PDF for
// the given entry numbers. Synthesis is slow; the call uses PDFTimeout.
func (c *Client) Download7501PDF(ctx context.Context, entryNos []int) ([]byte, error) {
	if len(entryNos) == 0 {
		return nil, fmt.Errorf("portal: no entry numbers for 7501 pdf")
	}

	// The portal requires a trailing comma after the last entry number.
	var sb strings.Builder
	for _, n := range entryNos {
		sb.WriteString(strconv.Itoa(n))
		sb.WriteByte(',')
	}

	form := url.Values{
		"signature":          {""},
		"digitalSignature":   {""},
		"signedDate":         {time.Now().Format("010206")},
		"broker":             {"false"},
		"cashier":            {"false"},
		"record":             {"false"},
		"original":           {"false"},
		"multiple":           {"false"},
		"type7501":           {"2"},
		"separateConsignees": {"false"},
		"printPartNumbers":   {"false"},
		"printMfrName":       {"false"},
		"entryNoBlank":       {"false"},
		"entryNos":           {sb.String()},
		"type":               {"6"},
	}

	resp, err := c.PostForm(ctx, PDF7501Path, form, c.cfg.PDFTimeout)
	if err != nil {
		return nil, fmt.Errorf("portal: 7501 pdf: %w", err)
	}
	if !strings.Contains(strings.ToLower(resp.ContentType), "pdf") {
		preview := string(resp.Body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("portal: 7501 pdf returned %q, not a PDF (body starts %q)", resp.ContentType, preview)
	}
	return resp.Body, nil
}
