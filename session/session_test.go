package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

// WHAT: calculated expiry is the minimum future cookie expiry.
// WHY: a snapshot must be considered stale as soon as its first
// load-bearing cookie dies, not when the last one does.
func TestComputeExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &State{Cookies: []Cookie{
		{Name: "session", Expires: float64(now.Add(2 * time.Hour).Unix())},
		{Name: "prefs", Expires: float64(now.Add(30 * 24 * time.Hour).Unix())},
		{Name: "transient", Expires: -1},
		{Name: "stale", Expires: float64(now.Add(-time.Hour).Unix())},
	}}
	st.ComputeExpiry(now)

	want := now.Add(2 * time.Hour).Unix()
	if st.CalculatedExpiry != want {
		t.Fatalf("CalculatedExpiry = %d, want %d", st.CalculatedExpiry, want)
	}
	if st.Expired(now) {
		t.Fatal("snapshot should not be expired yet")
	}
	if !st.Expired(now.Add(3 * time.Hour)) {
		t.Fatal("snapshot should be expired after its earliest cookie")
	}
}

// WHAT: a snapshot of session-only cookies never self-expires.
func TestComputeExpirySessionOnly(t *testing.T) {
	st := &State{Cookies: []Cookie{{Name: "s", Expires: -1}}}
	st.ComputeExpiry(time.Now())
	if st.CalculatedExpiry != 0 {
		t.Fatalf("CalculatedExpiry = %d, want 0", st.CalculatedExpiry)
	}
	if st.Expired(time.Now().Add(24 * time.Hour)) {
		t.Fatal("session-only snapshot must defer to the probe")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatal(err)
	}

	if st, err := fs.Load("b1"); err != nil || st != nil {
		t.Fatalf("Load on empty store = (%v, %v), want (nil, nil)", st, err)
	}

	in := &State{
		Cookies:          []Cookie{{Name: "JSESSIONID", Value: "abc", Domain: ".example.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true}},
		CalculatedExpiry: 1893456000,
	}
	if err := fs.Save("b1", in); err != nil {
		t.Fatal(err)
	}
	if !fs.Has("b1") {
		t.Fatal("Has = false after Save")
	}

	out, err := fs.Load("b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Cookies) != 1 || out.Cookies[0].Value != "abc" || out.CalculatedExpiry != in.CalculatedExpiry {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	hc := out.HTTPCookies()
	if len(hc) != 1 || hc[0].Name != "JSESSIONID" || !hc[0].HttpOnly {
		t.Fatalf("HTTPCookies mismatch: %+v", hc)
	}

	if err := fs.Delete("b1"); err != nil {
		t.Fatal(err)
	}
	if fs.Has("b1") {
		t.Fatal("Has = true after Delete")
	}
	if err := fs.Delete("b1"); err != nil {
		t.Fatalf("Delete on missing file: %v", err)
	}
}

func TestFileStoreClearAll(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := fs.Save(id, &State{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := fs.ClearAll(); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if fs.Has(id) {
			t.Fatalf("snapshot %s survived ClearAll", id)
		}
	}
}

func probeManager(t *testing.T, baseURL string) *Manager {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		BaseURL: baseURL,
		Logger:  slog.New(slog.NewTextHandler(testWriter{t}, nil)),
	}, fs)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// WHAT: the probe accepts only an authenticated search page.
// WHY: the portal answers 200 for both the real page and the login
// bounce, so status codes alone cannot distinguish a dead session.
func TestIsValid(t *testing.T) {
	authed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><input id="pre" name="prefix"></body></html>`))
	}))
	defer authed.Close()

	loginForm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><input id="lName"><input id="pass"></body></html>`))
	}))
	defer loginForm.Close()

	st := &State{}
	ctx := context.Background()

	if !probeManager(t, authed.URL).IsValid(ctx, st) {
		t.Fatal("authenticated page should validate")
	}
	if probeManager(t, loginForm.URL).IsValid(ctx, st) {
		t.Fatal("login form should not validate")
	}
}

// WHAT: a redirect onto the security area invalidates the session even
// if the landing page lacks the login markers.
func TestIsValidSecurityRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/ams/viewMawbs.do", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/security/", http.StatusFound)
	})
	mux.HandleFunc("/security/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><input id="pre"></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if probeManager(t, srv.URL).IsValid(context.Background(), &State{}) {
		t.Fatal("security redirect should invalidate")
	}
}
