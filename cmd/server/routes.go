package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/metrics"
)

// apiPrefix starts the path of every Connect procedure.
const apiPrefix = "/tabsplit.v1."

type routes struct {
	sessions     api.SessionServiceHandler
	receipts     api.ReceiptServiceHandler
	devices      api.DeviceServiceHandler
	metrics      *metrics.Metrics
	staticDir    string
	interceptors connect.HandlerOption
}

func newMux(r routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Register Connect services
	mux.Handle(api.NewSessionServiceHandler(r.sessions, r.interceptors))
	mux.Handle(api.NewReceiptServiceHandler(r.receipts, r.interceptors))
	mux.Handle(api.NewDeviceServiceHandler(r.devices, r.interceptors))

	mux.Handle("/metrics", r.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Handle all non-API routes with static file server
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, apiPrefix) {
			http.NotFound(w, req)
			return
		}

		// Share links (/?id=...) land on index.html
		urlPath := req.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(r.staticDir, filepath.Clean(urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, req, filepath.Join(r.staticDir, "index.html"))
			return
		}
		http.ServeFile(w, req, filePath)
	})

	return mux
}

// loggingMiddleware logs non-RPC requests; RPCs are logged by the Connect
// interceptor.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, apiPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
