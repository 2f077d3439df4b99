package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// WHAT: A request that fails with 500 twice then succeeds completes in
// exactly 3 attempts.
// WHY: The portal throws sporadic 5xx under load; the retry wrapper must
// absorb exactly that much.
func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	resp, err := c.Get(context.Background(), "/ping", time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body %q", resp.Body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

// WHAT: Persistent 5xx exhausts retries and surfaces an error.
// WHY: The pipeline's stage isolation depends on a terminal error, not a
// hang.
func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Get(context.Background(), "/ping", time.Second); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

const amsSearchHTML = `<html><body><div id="resultsDiv"><table><tbody>
<tr class="header"><td>AWB</td><td>a</td><td>b</td><td>c</td><td>d</td><td>Arrival</td><td>HAWBs</td></tr>
<tr class="light"><td><a href="/app/ams/viewMawb.do?amsMawbId=42">235-94731221</a></td>
<td>x</td><td>x</td><td>x</td><td>x</td><td>01/05/26</td><td>10</td></tr>
</tbody></table></div></body></html>`

const amsDetailHTML = `<html><body>
<a id="esH">4,250</a>
<a id="esD">$1,234.56</a>
<a id="esC">3</a>
<a id="esA">3</a>
</body></html>`

// WHAT: The AMS flow posts the search, follows the master link, and
// assembles the summary with Rejected = T-11 - Accepted.
// WHY: These five figures drive the whole reconciliation.
func TestFetchAMS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(AMSSearchPath, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("prefix"); got != "235" {
			t.Errorf("prefix %q", got)
		}
		if got := r.PostForm.Get("mawb"); got != "94731221" {
			t.Errorf("mawb %q", got)
		}
		if got := r.PostForm.Get("searchTimePeriod"); got != "Y1" {
			t.Errorf("searchTimePeriod %q", got)
		}
		w.Write([]byte(amsSearchHTML))
	})
	mux.HandleFunc("/app/ams/viewMawb.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(amsDetailHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	got, err := c.FetchAMS(context.Background(), "23594731221")
	if err != nil {
		t.Fatalf("FetchAMS: %v", err)
	}
	want := AMSSummary{
		ArrivalDate: "01/05/26", TotalHAWBs: "10", TotalHouses: "4250",
		Duty: "$1,234.56", T11Entries: 3, Accepted: 3, Rejected: 0,
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}
}

// WHAT: The portal's "there is no awb" reply maps to ErrMasterNotFound.
// WHY: The pipeline short-circuits to a failed result on this exact
// condition.
func TestFetchAMSMasterNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>There is no AWB matching your search.</body></html>`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.FetchAMS(context.Background(), "23594731221")
	if !errors.Is(err, ErrMasterNotFound) {
		t.Fatalf("got %v, want ErrMasterNotFound", err)
	}
}

const entriesHTML = `<html><body><form id="veForm"><div class="dataCell"><table><tbody>
<tr><td>spacer</td></tr>
<tr class="header"><td>Entry No</td><td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td><div>Entry Date</div></td><td>f</td></tr>
<tr class="light"><td><a href="/app/entry/viewEntry.do?filerCode=ABC&entryNo=10001">ABC-10001</a></td>
<td>x</td><td>x</td><td>x</td><td>x</td><td>x</td><td>01/10/26</td><td>x</td></tr>
<tr class="dark"><td><a href="/app/entry/viewEntry.do?filerCode=ABC&entryNo=10002">ABC-10002</a></td>
<td>x</td><td>x</td><td>x</td><td>x</td><td>x</td><td>01/07/26</td><td>x</td></tr>
</tbody></table></div></form></body></html>`

// WHAT: Entries parsing discovers the date column by header text,
// captures links and entry numbers, and reports the oldest date.
// WHY: The oldest date seeds the Custom Report window; the entry number
// set seeds the 7501 PDF.
func TestFetchEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("masterBill"); got != "23594731221" {
			t.Errorf("masterBill %q", got)
		}
		if got := r.PostForm.Get("noPerPage"); got != "1000" {
			t.Errorf("noPerPage %q", got)
		}
		w.Write([]byte(entriesHTML))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	got, err := c.FetchEntries(context.Background(), "23594731221")
	if err != nil {
		t.Fatalf("FetchEntries: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	if got.Rows[0].EntryNo != 10001 || got.Rows[1].EntryNo != 10002 {
		t.Errorf("entry numbers: %d, %d", got.Rows[0].EntryNo, got.Rows[1].EntryNo)
	}
	if got.Rows[0].QueryString != "filerCode=ABC&entryNo=10001" {
		t.Errorf("query string %q", got.Rows[0].QueryString)
	}
	if !strings.HasPrefix(got.Rows[0].Link, srv.URL) {
		t.Errorf("link not absolute: %q", got.Rows[0].Link)
	}
	wantOldest := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	if !got.OldestDate.Equal(wantOldest) {
		t.Errorf("oldest %s, want %s", got.OldestDate, wantOldest)
	}
}

// WHAT: Without an "Entry Date" header, rows fall back to the fixed
// column positions 5, 6, 4 (zero-indexed) in that order.
// WHY: Some portal result tables ship header-less; a row whose date
// sits in the third fallback slot must still parse, or the master is
// misreported as having no entries.
func TestFetchEntriesHeaderlessFallback(t *testing.T) {
	page := `<html><body><form id="veForm"><div class="dataCell"><table><tbody>
<tr class="light"><td><a href="/app/entry/viewEntry.do?filerCode=ABC&entryNo=10003">ABC-10003</a></td>
<td>x</td><td>x</td><td>x</td><td>01/15/24</td><td>x</td><td>x</td></tr>
<tr class="dark"><td><a href="/app/entry/viewEntry.do?filerCode=ABC&entryNo=10004">ABC-10004</a></td>
<td>x</td><td>x</td><td>x</td><td>x</td><td>01/20/24</td><td>x</td></tr>
</tbody></table></div></form></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	got, err := c.FetchEntries(context.Background(), "23594731221")
	if err != nil {
		t.Fatalf("FetchEntries: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	wantOldest := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.OldestDate.Equal(wantOldest) {
		t.Errorf("oldest %s, want %s", got.OldestDate, wantOldest)
	}
	if got.Rows[1].Date != time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) {
		t.Errorf("second row date %s", got.Rows[1].Date)
	}
}

// WHAT: An empty result table maps to ErrEntriesNotFound.
// WHY: Custom Report and PDF are skipped when the master has no entries.
func TestFetchEntriesNotFound(t *testing.T) {
	page := `<html><body><div class="dataCell"><table><tbody>
<tr class="light"><td>No results found.</td></tr>
</tbody></table></div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.FetchEntries(context.Background(), "23594731221")
	if !errors.Is(err, ErrEntriesNotFound) {
		t.Fatalf("got %v, want ErrEntriesNotFound", err)
	}
}

// WHAT: The report window ends 25 days after the oldest entry when that
// entry is at least 25 days old; otherwise it ends today.
// WHY: Unbounded windows make the portal query crawl.
func TestCustomReportDateWindow(t *testing.T) {
	tpl := &TemplatePayload{
		HeaderFields:   []string{"h1"},
		ManifestFields: []string{"m1", "m2"},
		DefaultValues:  map[string]string{"entryStatus": ""},
	}
	today := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) // 50 days before
	form := customReportForm("235-94731221", old, tpl, today)
	if got := form.Get("begin"); got != "011026" {
		t.Errorf("begin %q", got)
	}
	if got := form.Get("end"); got != "020426" { // Jan 10 + 25 days
		t.Errorf("capped end %q", got)
	}
	if got := form.Get("masterBill"); got != "23594731221" {
		t.Errorf("masterBill %q", got)
	}
	if got := form.Get("templateId"); got != "0" {
		t.Errorf("templateId %q", got)
	}
	if got := form["manifestFields"]; len(got) != 2 {
		t.Errorf("manifestFields repeated %d times, want 2", len(got))
	}

	recent := today.AddDate(0, 0, -10)
	form = customReportForm("23594731221", recent, tpl, today)
	if got := form.Get("end"); got != "030126" {
		t.Errorf("recent end %q, want today", got)
	}
}

// WHAT: A non-spreadsheet reply fails the report download.
// WHY: The portal returns an HTML error page on bad templates; feeding
// that to the Excel parser would be a confusing failure two stages later.
func TestCustomReportContentTypeGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>session expired</html>"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	tpl := &TemplatePayload{HeaderFields: []string{"h"}, ManifestFields: []string{"m"}}
	_, err := c.DownloadCustomReport(context.Background(), "23594731221", time.Now().AddDate(0, 0, -3), tpl)
	if err == nil || !strings.Contains(err.Error(), "not a spreadsheet") {
		t.Fatalf("got %v, want content-type error", err)
	}
}

// WHAT: The 7501 POST carries a trailing comma after the entry list and
// the fixed direct-payload flags.
// WHY: The portal rejects the form without the trailing comma.
func TestDownload7501PDF(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	data, err := c.Download7501PDF(context.Background(), []int{10001, 10002})
	if err != nil {
		t.Fatalf("Download7501PDF: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty pdf body")
	}
	if got := gotForm.Get("entryNos"); got != "10001,10002," {
		t.Errorf("entryNos %q, want trailing comma form", got)
	}
	if gotForm.Get("type") != "6" || gotForm.Get("type7501") != "2" {
		t.Errorf("type fields: %q %q", gotForm.Get("type"), gotForm.Get("type7501"))
	}
}

// WHAT: A non-PDF reply aborts the PDF stage.
// WHY: Portal errors come back as HTML with status 200.
func TestDownload7501PDFBadContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>error</html>"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Download7501PDF(context.Background(), []int{1}); err == nil {
		t.Fatal("expected error")
	}
}

// WHAT: Detail pages are fetched for every row and invoice lines
// counted, regardless of fan-out batching.
// WHY: Batches of 6 must not drop or duplicate rows.
func TestFetchEntryDetails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html><body><table><tbody id="invBdy"><tr></tr><tr></tr></tbody></table></body></html>`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	var rows []EntryRow
	for i := 0; i < 8; i++ {
		rows = append(rows, EntryRow{
			EntryNo: 10000 + i,
			Link:    srv.URL + "/app/entry/viewEntry.do?filerCode=ABC&entryNo=1000" + string(rune('0'+i)),
		})
	}
	details := c.FetchEntryDetails(context.Background(), rows)
	if len(details) != 8 {
		t.Fatalf("got %d details, want 8", len(details))
	}
	if got := calls.Load(); got != 8 {
		t.Errorf("server saw %d calls, want 8", got)
	}
	for i, d := range details {
		if d.EntryNo != 10000+i {
			t.Errorf("detail %d out of order: %d", i, d.EntryNo)
		}
		if d.InvoiceLines != 2 {
			t.Errorf("detail %d invoice lines %d, want 2", i, d.InvoiceLines)
		}
	}
}
