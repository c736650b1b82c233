package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cozyfin/internal/auth"
	"cozyfin/internal/core"
	"cozyfin/internal/log"
	"cozyfin/internal/services"
	"cozyfin/internal/store/memory"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testPIN    = "0325"
)

type staticStatus struct{ degraded bool }

func (s staticStatus) Degraded() bool { return s.degraded }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := memory.New()
	conv, err := core.NewConverter(core.DefaultRates())
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	logger := log.New(log.Config{Level: slog.LevelError})
	svc := services.NewLedgerService(st, conv, core.DefaultFallbackMonthly, nil, logger)

	hash, err := auth.HashPIN(testPIN)
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	authSvc, err := auth.New(testSecret, hash, time.Hour)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}

	srv := NewServer(":0", svc, authSvc, staticStatus{}, logger)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	rr := do(srv, http.MethodPost, "/api/login", `{"user":"hubby","pin":"0325"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func do(srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}

	rr := do(srv, http.MethodGet, "/api/status", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"degraded":false`) {
		t.Errorf("status body = %s", rr.Body.String())
	}
}

func TestLoginRejectsWrongPIN(t *testing.T) {
	srv := newTestServer(t)

	rr := do(srv, http.MethodPost, "/api/login", `{"user":"hubby","pin":"9999"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong pin status = %d, want 401", rr.Code)
	}

	rr = do(srv, http.MethodPost, "/api/login", `{"user":"nobody","pin":"0325"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	rr := do(srv, http.MethodGet, "/api/transactions", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rr.Code)
	}

	rr = do(srv, http.MethodGet, "/api/transactions", "", "garbage")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rr.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	body := `{"user":"hubby","type":"Income","amount":"1000","currency":"USD","category":"Salary","date":"2025-03-10"}`
	rr := do(srv, http.MethodPost, "/api/transactions", body, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created core.Transaction
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created transaction has no ID")
	}

	rr = do(srv, http.MethodGet, "/api/transactions?user=hubby", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listed []core.Transaction
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("list = %+v, want the created entry", listed)
	}

	rr = do(srv, http.MethodDelete, "/api/transactions/"+created.ID, "", token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = do(srv, http.MethodDelete, "/api/transactions/"+created.ID, "", token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero amount", `{"user":"hubby","type":"Income","amount":"0","currency":"USD","category":"Salary","date":"2025-03-10"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"user":"hubby","type":"Income","amount":"10","currency":"USD","category":"Salary","date":"03/10/2025"}`, http.StatusUnprocessableEntity},
		{"unknown user", `{"user":"stranger","type":"Income","amount":"10","currency":"USD","category":"Salary","date":"2025-03-10"}`, http.StatusUnprocessableEntity},
		{"not json", `not json`, http.StatusBadRequest},
		{"unknown field", `{"user":"hubby","extra":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodPost, "/api/transactions", tt.body, token)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSummariesAndGoal(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	entries := []string{
		`{"user":"hubby","type":"Income","amount":"1000","currency":"USD","category":"Salary","date":"2025-03-10"}`,
		`{"user":"wifey","type":"Savings","amount":"4000000","currency":"COP","category":"Savings","date":"2025-03-11"}`,
	}
	for _, body := range entries {
		if rr := do(srv, http.MethodPost, "/api/transactions", body, token); rr.Code != http.StatusCreated {
			t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
		}
	}

	rr := do(srv, http.MethodGet, "/api/summary/hubby", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("user summary status = %d", rr.Code)
	}
	var sum core.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Income.Cents != 1000_00 {
		t.Errorf("hubby income = %d cents, want 100000", sum.Income.Cents)
	}

	rr = do(srv, http.MethodGet, "/api/summary/combined", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("combined status = %d", rr.Code)
	}
	var combined core.CombinedSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &combined); err != nil {
		t.Fatalf("decode combined: %v", err)
	}
	// Wifey's 4,000,000 COP savings is 1000 USD.
	if combined.Savings.Cents != 1000_00 {
		t.Errorf("combined savings = %d cents, want 100000", combined.Savings.Cents)
	}

	rr = do(srv, http.MethodGet, "/api/goal", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("goal status = %d", rr.Code)
	}
	var progress core.GoalProgress
	if err := json.Unmarshal(rr.Body.Bytes(), &progress); err != nil {
		t.Fatalf("decode goal: %v", err)
	}
	if progress.Saved.Cents != 1000_00 {
		t.Errorf("goal saved = %d cents, want 100000", progress.Saved.Cents)
	}
}

func TestAddFixedExpense(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	body := `{"name":"Rent","amount":{"cents":180000,"currency":"USD"},"automatic":true,"paycheck":"First Check"}`
	rr := do(srv, http.MethodPost, "/api/profiles/hubby/fixed-expenses", body, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add fixed expense status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodGet, "/api/profiles/hubby", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"name":"Rent"`) {
		t.Errorf("profile body missing fixed expense: %s", rr.Body.String())
	}
}

func TestExportHistoryDownload(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	body := `{"user":"wifey","type":"Expense","amount":"50000","currency":"COP","category":"Groceries","date":"2025-03-12"}`
	if rr := do(srv, http.MethodPost, "/api/transactions", body, token); rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}

	rr := do(srv, http.MethodGet, "/api/export/wifey", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "history_wifey.xlsx") {
		t.Errorf("Content-Disposition = %q", got)
	}
	// xlsx containers are zip files.
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Error("export body is not an xlsx container")
	}
}

func TestReceiptUploadAndFetch(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	body := `{"user":"hubby","type":"Expense","amount":"25","currency":"USD","category":"Dinner","date":"2025-03-12"}`
	rr := do(srv, http.MethodPost, "/api/transactions", body, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	var created core.Transaction
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/"+created.ID+"/receipt", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+token)
	upload := httptest.NewRecorder()
	srv.Handler.ServeHTTP(upload, req)
	if upload.Code != http.StatusNoContent {
		t.Fatalf("upload status = %d, body %s", upload.Code, upload.Body.String())
	}

	rr = do(srv, http.MethodGet, "/api/transactions/"+created.ID+"/receipt", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}

	rr = do(srv, http.MethodGet, "/api/transactions/missing/receipt", "", token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing receipt status = %d, want 404", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	rr := do(srv, http.MethodGet, "/healthz", "", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
