package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler answers 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func do(t *testing.T, h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ModeNone_PassesThrough(t *testing.T) {
	h := Middleware("none", "x-api-key", "secret")(okHandler)
	// No key on the request; should still pass because mode is none.
	if rec := do(t, h, nil); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestMiddleware_EmptySecret_PassesThrough(t *testing.T) {
	// An empty secret means auth is not configured → allow all.
	h := Middleware("apikey", "x-api-key", "")(okHandler)
	if rec := do(t, h, nil); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestMiddleware_CorrectKey_Passes(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret")(okHandler)
	rec := do(t, h, map[string]string{"x-api-key": "supersecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: got %q, want ok", rec.Body.String())
	}
}

func TestMiddleware_WrongKey_Unauthorized(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret")(okHandler)
	if rec := do(t, h, map[string]string{"x-api-key": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestMiddleware_MissingHeader_Unauthorized(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret")(okHandler)
	if rec := do(t, h, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestMiddleware_CustomHeader(t *testing.T) {
	h := Middleware("apikey", "x-docship-token", "mytoken")(okHandler)
	if rec := do(t, h, map[string]string{"X-Docship-Token": "mytoken"}); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestMiddleware_Bearer(t *testing.T) {
	h := Middleware("bearer", "", "tok")(okHandler)
	if rec := do(t, h, map[string]string{"Authorization": "Bearer tok"}); rec.Code != http.StatusOK {
		t.Errorf("valid token: got %d, want 200", rec.Code)
	}
	if rec := do(t, h, map[string]string{"Authorization": "tok"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing scheme: got %d, want 401", rec.Code)
	}
}
