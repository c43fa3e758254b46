package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusEndpointReturnsSnapshot(t *testing.T) {
	h := New(func() (pool, folders any) {
		return map[string]int{"active": 2}, []string{"INBOX", "Sent"}
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["pool"] == nil || body["folders"] == nil {
		t.Errorf("got %+v", body)
	}
}

func TestStatusEndpointRecoversFromPanic(t *testing.T) {
	h := New(func() (pool, folders any) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 after Recoverer catches the panic", rec.Code)
	}
}
