package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"portalmail/internal/config"
	"portalmail/internal/service"
)

func routerFixture(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Domain:        "example-school.de",
		DataDir:       dir,
		HistoryDBPath: filepath.Join(dir, "history.db"),
		SentMailbox:   "INBOX/Sent",
		NotifyMode:    "off",
	}
	svc, err := service.New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return NewRouter(cfg, svc)
}

func TestHealthLive(t *testing.T) {
	r := routerFixture(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	r := routerFixture(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/version", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if body["version"] == "" {
		t.Fatalf("expected non-empty version, got %v", body)
	}
}

func TestSchedulePutAndGet(t *testing.T) {
	r := routerFixture(t)
	line := "Europe/Berlin | 01-01-2030_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | once\n"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/v1/schedule", strings.NewReader(line)))
	if rec.Code != 200 {
		t.Fatalf("put schedule: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/schedule", nil))
	if rec.Code != 200 {
		t.Fatalf("get schedule: expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != line {
		t.Fatalf("schedule content mismatch: %q", rec.Body.String())
	}
}

func TestSchedulePutRejectsMalformedLine(t *testing.T) {
	r := routerFixture(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/v1/schedule", strings.NewReader("not a schedule line\n")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "invalid_schedule" {
		t.Fatalf("expected invalid_schedule, got %q", apiErr.Code)
	}
}

func TestHistoryEmpty(t *testing.T) {
	r := routerFixture(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/history", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Dispatches []json.RawMessage `json:"dispatches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Dispatches) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(body.Dispatches))
	}
}

func TestSendWithoutUsernameIsUnauthorized(t *testing.T) {
	r := routerFixture(t)
	body := `{"to":"john.doe","subject":"Hi","body":"Hello"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without configured username, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMessageRejectsBadID(t *testing.T) {
	r := routerFixture(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/messages/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
