// CLAUDE:SUMMARY Entry detail pages fetched in bounded parallel batches.
package portal

import (
	"context"
	"sync"
	"time"
)

// EntryDetail summarizes one entry's detail page.
type EntryDetail struct {
	EntryNo      int
	InvoiceLines int // rows under #invBdy
}

// FetchEntryDetails fetches detail pages in batches of DetailParallel,
// awaiting each batch before issuing the next. Failed fetches are logged
// and skipped; results keep input order. This fan-out is the only
// parallelism in a pipeline run.
func (c *Client) FetchEntryDetails(ctx context.Context, rows []EntryRow) []EntryDetail {
	out := make([]*EntryDetail, len(rows))
	for start := 0; start < len(rows); start += c.cfg.DetailParallel {
		end := min(start+c.cfg.DetailParallel, len(rows))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d, err := c.fetchEntryDetail(ctx, rows[i])
				if err != nil {
					c.cfg.Logger.Warn("entry detail fetch failed",
						"entry_no", rows[i].EntryNo, "error", err)
					return
				}
				out[i] = d
			}(i)
		}
		wg.Wait()

		if end < len(rows) {
			// Breather between batches keeps the portal from throttling.
			select {
			case <-ctx.Done():
				return compactDetails(out)
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
	return compactDetails(out)
}

func (c *Client) fetchEntryDetail(ctx context.Context, row EntryRow) (*EntryDetail, error) {
	link := row.Link
	if link == "" && row.QueryString != "" {
		link = EntryDetailPath + "?" + row.QueryString
	}
	resp, err := c.Get(ctx, link, c.cfg.DetailTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}
	detail := &EntryDetail{EntryNo: row.EntryNo}
	if body := findByID(doc, "invBdy"); body != nil {
		detail.InvoiceLines = len(findAll(body, "tr"))
	}
	return detail, nil
}

func compactDetails(out []*EntryDetail) []EntryDetail {
	var details []EntryDetail
	for _, d := range out {
		if d != nil {
			details = append(details, *d)
		}
	}
	return details
}
