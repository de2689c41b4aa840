package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	failFirstN = 0
	reqCount   = 0
	mu         sync.Mutex
	seenKeys   = map[string]int{}
)

func main() {
	// Parse fail first settings
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/push", handlePush)

	addr := listenAddr(os.Getenv("SINK_PORT"))
	log.Printf("fake-sink listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handlePush(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	key := r.Header.Get("Idempotency-Key")

	mu.Lock()
	reqCount++
	n := reqCount
	seenKeys[key]++
	dup := seenKeys[key] > 1
	mu.Unlock()

	// Simulate flakiness: first N requests -> 500
	if n <= failFirstN {
		log.Printf("FAILING (%d/%d) key=%q body=%s", n, failFirstN, key, truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	if dup {
		// Still accepted; this line is how retries that slipped past the
		// sender's idempotency gate get noticed.
		log.Printf("fake-sink DUPLICATE key=%q body=%s", key, truncate(string(b), 160))
	} else {
		log.Printf("fake-sink OK key=%q body=%s", key, truncate(string(b), 160))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// listenAddr accepts a bare port or a full host:port listen address
func listenAddr(v string) string {
	if v == "" {
		return ":8083"
	}
	if !strings.Contains(v, ":") {
		return ":" + v
	}
	return v
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
