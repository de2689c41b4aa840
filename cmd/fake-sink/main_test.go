package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{
			name: "short string unchanged",
			s:    "hello",
			n:    10,
			want: "hello",
		},
		{
			name: "exact length unchanged",
			s:    "hello",
			n:    5,
			want: "hello",
		},
		{
			name: "long string truncated",
			s:    "hello world",
			n:    5,
			want: "hello...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.s, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		v    string
		want string
	}{
		{
			name: "empty uses default",
			v:    "",
			want: ":8083",
		},
		{
			name: "bare port gets a colon",
			v:    "8084",
			want: ":8084",
		},
		{
			name: "colon port unchanged",
			v:    ":8084",
			want: ":8084",
		},
		{
			name: "host and port unchanged",
			v:    "0.0.0.0:8084",
			want: "0.0.0.0:8084",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listenAddr(tt.v); got != tt.want {
				t.Errorf("listenAddr(%q) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestHandlePushDuplicateDetection(t *testing.T) {
	mu.Lock()
	reqCount = 0
	failFirstN = 0
	seenKeys = map[string]int{}
	mu.Unlock()

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(`{"user_id":1}`))
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		handlePush(w, req)
		return w
	}

	if w := send("key-1"); w.Code != http.StatusOK {
		t.Errorf("first delivery status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := send("key-1"); w.Code != http.StatusOK {
		t.Errorf("duplicate delivery status = %d, want %d", w.Code, http.StatusOK)
	}

	mu.Lock()
	defer mu.Unlock()
	if seenKeys["key-1"] != 2 {
		t.Errorf("seenKeys[key-1] = %d, want 2", seenKeys["key-1"])
	}
}

func TestHandlePushFailFirstN(t *testing.T) {
	mu.Lock()
	reqCount = 0
	failFirstN = 2
	seenKeys = map[string]int{}
	mu.Unlock()
	defer func() {
		mu.Lock()
		failFirstN = 0
		mu.Unlock()
	}()

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		handlePush(w, req)
		return w
	}

	if w := send("a"); w.Code != http.StatusInternalServerError {
		t.Errorf("request 1 status = %d, want 500", w.Code)
	}
	if w := send("b"); w.Code != http.StatusInternalServerError {
		t.Errorf("request 2 status = %d, want 500", w.Code)
	}
	if w := send("c"); w.Code != http.StatusOK {
		t.Errorf("request 3 status = %d, want 200", w.Code)
	}
}
