package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/clearway/dutyrec/dutyrun"
	"github.com/clearway/dutyrec/store"
)

type stubRunner struct {
	mu   sync.Mutex
	ran  []string
	done chan string
}

func (r *stubRunner) RunBatch(ctx context.Context, batchID string, hooks dutyrun.BatchHooks) error {
	r.mu.Lock()
	r.ran = append(r.ran, batchID)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- batchID
	}
	return nil
}

type stubPresigner struct{}

func (stubPresigner) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func newTestServer(t *testing.T, presigner Presigner) (*store.Store, *stubRunner, http.Handler) {
	t.Helper()
	st := store.OpenMemory(t)
	runner := &stubRunner{done: make(chan string, 8)}
	srv := NewServer(Config{Logger: slog.New(slog.DiscardHandler)}, st, runner, presigner)
	return st, runner, srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// WHAT: broker CRUD round trip. Credentials go in through the API but
// never come back out in any response.
func TestBrokerCRUDRedaction(t *testing.T) {
	_, _, h := newTestServer(t, nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/brokers", map[string]any{
		"name":     "Broker One",
		"username": "user",
		"password": "hunter2",
		"otp_uri":  "otpauth://totp/x?secret=ABC",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hunter2") || strings.Contains(w.Body.String(), "otpauth") {
		t.Fatalf("credentials leaked in create response: %s", w.Body.String())
	}
	created := decode[store.Broker](t, w)
	if created.ID == "" {
		t.Fatal("no id assigned")
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/brokers/"+created.ID, nil)
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "hunter2") {
		t.Fatalf("get = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPut, "/api/v1/brokers/"+created.ID, map[string]any{
		"name":     "Broker Renamed",
		"username": "user",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[store.Broker](t, w); got.Name != "Broker Renamed" {
		t.Fatalf("name = %q", got.Name)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/brokers/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/brokers/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

func TestFormatCRUD(t *testing.T) {
	_, _, h := newTestServer(t, nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/formats", map[string]any{
		"name":                "FTE Match",
		"template_identifier": "fte-match",
		"template_payload":    `{"headerFields":["hf1"],"manifestFields":["mf1"]}`,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[store.Format](t, w)

	w = doJSON(t, h, http.MethodGet, "/api/v1/formats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if got := decode[[]store.Format](t, w); len(got) != 1 || got[0].ID != created.ID {
		t.Fatalf("list = %+v", got)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/formats/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing format = %d", w.Code)
	}
}

func seedAPICatalog(t *testing.T, st *store.Store) (brokerID, formatID string) {
	t.Helper()
	ctx := context.Background()
	b := &store.Broker{Name: "Broker One", Username: "user", Password: "pass", IsActive: true}
	if err := st.InsertBroker(ctx, b); err != nil {
		t.Fatal(err)
	}
	f := &store.Format{Name: "FTE Match", TemplateIdentifier: "fte-match", TemplatePayload: "{}", IsActive: true}
	if err := st.InsertFormat(ctx, f); err != nil {
		t.Fatal(err)
	}
	return b.ID, f.ID
}

// WHAT: a valid submission parses the pasted rows, records the batch,
// and hands it to the runner.
func TestSubmitBatch(t *testing.T) {
	st, runner, h := newTestServer(t, nil)
	brokerID, formatID := seedAPICatalog(t, st)

	input := "ORD\tMZZ\tBroker One\t3\t235-94731221\nJFK\tACM\tBroker One\t5\t235-94731232\n"
	w := doJSON(t, h, http.MethodPost, "/api/v1/batches", map[string]any{
		"input_text": input,
		"broker_id":  brokerID,
		"format_id":  formatID,
		"sections":   map[string]bool{"ams": true, "entries": true},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[submitBatchResponse](t, w)
	if resp.ItemCount != 2 || resp.Batch == nil || resp.Batch.ID == "" {
		t.Fatalf("resp = %+v", resp)
	}

	select {
	case id := <-runner.done:
		if id != resp.Batch.ID {
			t.Fatalf("runner got batch %s, want %s", id, resp.Batch.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner never invoked")
	}

	items, err := st.GetBatchItems(context.Background(), resp.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].MAWB != "23594731221" || items[0].CheckbookHAWBs != "3" {
		t.Fatalf("items = %+v", items)
	}
}

func TestSubmitBatchRejectsBadInput(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	brokerID, formatID := seedAPICatalog(t, st)

	w := doJSON(t, h, http.MethodPost, "/api/v1/batches", map[string]any{
		"input_text": "no digits here",
		"broker_id":  brokerID,
		"format_id":  formatID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("garbage input = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/batches", map[string]any{
		"input_text": "235-94731221",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing ids = %d", w.Code)
	}
}

func TestGetBatchWithCounts(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	brokerID, formatID := seedAPICatalog(t, st)

	batch, err := st.CreateBatch(context.Background(), map[string]bool{"ams": true}, "tester", []*store.BatchItem{
		{MAWB: "23594731221", BrokerID: brokerID, FormatID: formatID},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodGet, "/api/v1/batches/"+batch.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[batchStatusResponse](t, w)
	if resp.Batch.ID != batch.ID || resp.Counts.Total != 1 || resp.Counts.Pending != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/batches/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing batch = %d", w.Code)
	}
}

// WHAT: cancelling a batch that is not on the worker flips its rows
// directly.
func TestCancelBatchNotRunning(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	brokerID, formatID := seedAPICatalog(t, st)

	batch, err := st.CreateBatch(context.Background(), map[string]bool{"ams": true}, "", []*store.BatchItem{
		{MAWB: "23594731221", BrokerID: brokerID, FormatID: formatID},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/api/v1/batches/"+batch.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[map[string]any](t, w)
	if resp["was_running"] != false {
		t.Fatalf("resp = %+v", resp)
	}
	got, err := st.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "cancelled" {
		t.Fatalf("status = %s", got.Status)
	}
}

func seedResult(t *testing.T, st *store.Store, mawb, status string, summary map[string]string) *store.Result {
	t.Helper()
	brokerID, formatID := seedAPICatalog(t, st)
	sj, err := json.Marshal(summary)
	if err != nil {
		t.Fatal(err)
	}
	res := &store.Result{
		MAWB:         mawb,
		BrokerID:     brokerID,
		FormatID:     formatID,
		Status:       status,
		BrokerName:   "Broker One",
		TemplateName: "FTE Match",
		AirportCode:  "ORD",
		Customer:     "MZZ",
		SummaryJSON:  string(sj),
		PDFPath:      "netchb-duty/7501-batch-pdfs/235-94731221 ORD MZZ.pdf",
	}
	if err := st.UpsertResult(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestListAndGetResults(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	res := seedResult(t, st, "23594731221", "success", map[string]string{"AMS Duty": "$1.00"})

	w := doJSON(t, h, http.MethodGet, "/api/v1/results?mawb=23594731221", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if got := decode[[]store.Result](t, w); len(got) != 1 || got[0].ID != res.ID {
		t.Fatalf("list = %+v", got)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/results?mawb=99999999999", nil)
	if got := decode[[]store.Result](t, w); len(got) != 0 {
		t.Fatalf("filtered list = %+v", got)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/results/"+res.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/results/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing result = %d", w.Code)
	}
}

// WHAT: the export sheet carries the fixed column layout with formatted
// MAWB, dollar-formatted currency fields, blanks for N/A, and the
// verification verdict derived from status.
func TestExportResults(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	seedResult(t, st, "23594731221", "success", map[string]string{
		"Checkbook HAWBs": "3",
		"AMS Total HAWBs": "3",
		"AMS Duty":        "$9,000.00",
		"7501 Duty":       "9000.00",
		"Report Duty":     "N/A",
		"Entry Date":      "01/07/26",
	})

	w := doJSON(t, h, http.MethodGet, "/api/v1/results/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "duty-results.xlsx") {
		t.Fatalf("content disposition = %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Duty Results")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	header := rows[0]
	if header[0] != "Airport Code" || header[4] != "MAWB" || header[len(header)-2] != "Verification" {
		t.Fatalf("header = %v", header)
	}

	row := rows[1]
	cell := func(name string) string {
		for i, hdr := range header {
			if hdr == name {
				if i < len(row) {
					return row[i]
				}
				return ""
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	for name, want := range map[string]string{
		"Airport Code":    "ORD",
		"Customer":        "MZZ",
		"Broker Name":     "Broker One",
		"Checkbook HAWBs": "3",
		"MAWB":            "235-94731221",
		"AMS Duty":        "$9,000.00",
		"7501 Duty":       "$9,000.00",
		"Report Duty":     "",
		"Entry Date":      "01/07/26",
		"Verification":    "Verified",
		"Template Name":   "FTE Match",
	} {
		if got := cell(name); got != want {
			t.Errorf("column %q = %q, want %q", name, got, want)
		}
	}
}

func TestExportFailedResultVerdict(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	seedResult(t, st, "23594731221", "failed", map[string]string{"AMS Duty": "N/A"})

	w := doJSON(t, h, http.MethodGet, "/api/v1/results/export", nil)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("Duty Results")
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(rows[1], "|")
	if !strings.Contains(joined, "Failed") {
		t.Fatalf("row = %v", rows[1])
	}
}

func TestPresignResult(t *testing.T) {
	st, _, h := newTestServer(t, stubPresigner{})
	res := seedResult(t, st, "23594731221", "success", nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/results/"+res.ID+"/presign", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("presign = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[map[string]string](t, w)
	want := "https://signed.example/" + res.PDFPath
	if resp["pdf_url"] != want {
		t.Fatalf("pdf_url = %q, want %q", resp["pdf_url"], want)
	}
}

func TestPresignUnavailable(t *testing.T) {
	st, _, h := newTestServer(t, nil)
	res := seedResult(t, st, "23594731221", "success", nil)

	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/results/%s/presign", res.ID), nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("presign without storage = %d", w.Code)
	}
}
