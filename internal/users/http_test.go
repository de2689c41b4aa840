package users

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPHandlerRejections(t *testing.T) {
	// Validation failures never reach storage, so a service without a pool
	// exercises the whole rejection surface.
	svc := NewService(nil, nil, nil)
	handler := svc.HTTPHandler()

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{
			name:       "GET not allowed",
			method:     http.MethodGet,
			body:       "",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "invalid JSON",
			method:     http.MethodPost,
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "name too short",
			method:     http.MethodPost,
			body:       `{"name": "ab"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "name too long",
			method:     http.MethodPost,
			body:       `{"name": "` + strings.Repeat("a", 51) + `"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing name",
			method:     http.MethodPost,
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/users", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HTTPHandler() status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
