package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireToken(t *testing.T) {
	const token = "service-token-123"

	called := false
	handler := RequireToken(token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"missing header", "", http.StatusUnauthorized, false},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, false},
		{"malformed header", "Bearer", http.StatusUnauthorized, false},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, false},
		{"valid token", "Bearer " + token, http.StatusOK, true},
		{"case-insensitive scheme", "bearer " + token, http.StatusOK, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			called = false

			req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if called != tc.wantCalled {
				t.Errorf("Expected handler called=%v, got %v", tc.wantCalled, called)
			}
		})
	}
}
