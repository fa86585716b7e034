package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/coinchange/cdsusd-vault/internal/deposit"
	"github.com/coinchange/cdsusd-vault/internal/logger"
	"github.com/coinchange/cdsusd-vault/internal/metrics"
	"github.com/coinchange/cdsusd-vault/internal/notify"
	"github.com/coinchange/cdsusd-vault/internal/session"
	"github.com/coinchange/cdsusd-vault/internal/state"
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

const (
	defaultHistoryLimit = 20
	depositTimeout      = 5 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

// SessionManager is the session surface the API exposes.
type SessionManager interface {
	Snapshot() types.SessionView
	Connect(ctx context.Context) error
	Disconnect()
	Refresh(ctx context.Context) error
}

// DepositService submits deposits on behalf of the connected session.
type DepositService interface {
	Submit(ctx context.Context, amount, symbol string) (*vault.Deposit, error)
	Form() *deposit.Form
}

// WebServer serves the vault session and data to presentation consumers
type WebServer struct {
	router   *mux.Router
	port     string
	session  SessionManager
	deposits DepositService
	hub      *notify.Hub
	started  time.Time
	now      func() time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, sess SessionManager, deposits DepositService, hub *notify.Hub) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		session:  sess,
		deposits: deposits,
		hub:      hub,
		started:  time.Now(),
		now:      time.Now,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Preflight requests match no GET/POST route, so they need their own route for the
	// middleware chain to run. corsMiddleware answers them.
	ws.router.Methods(http.MethodOptions).HandlerFunc(ws.handlePreflight)

	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	ws.router.HandleFunc("/ws", ws.hub.ServeWS).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/session", ws.handleGetSession).Methods("GET")
	api.HandleFunc("/session/connect", ws.handleConnect).Methods("POST")
	api.HandleFunc("/session/disconnect", ws.handleDisconnect).Methods("POST")

	api.HandleFunc("/vault/refresh", ws.handleRefresh).Methods("POST")
	api.HandleFunc("/vault/metadata", ws.handleGetMetadata).Methods("GET")
	api.HandleFunc("/vault/user", ws.handleGetUserData).Methods("GET")
	api.HandleFunc("/vault/stats", ws.handleGetStats).Methods("GET")
	api.HandleFunc("/vault/history", ws.handleGetHistory).Methods("GET")
	api.HandleFunc("/vault/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetSummary).Methods("GET")

	api.HandleFunc("/tokens", ws.handleGetTokens).Methods("GET")
	api.HandleFunc("/deposit/quote", ws.handleDepositQuote).Methods("GET")
	api.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler with middleware applied.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: depositTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	webLogger.Info().Msg("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	view := ws.session.Snapshot()

	dbStatus := "disabled"
	hasErrors := false
	if state.DB != nil {
		dbStatus = "healthy"
		if err := state.TestDBConnection(r.Context()); err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": ws.now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "cdsusd-vault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"session_state":   view.State,
			"is_connected":    view.Connected,
			"has_metadata":    view.Metadata != nil,
			"database_status": dbStatus,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetSession returns the session flags without the cached vault data
func (ws *WebServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view := ws.session.Snapshot()
	view.Metadata = nil
	view.UserData = nil
	ws.writeJSONResponse(w, http.StatusOK, view)
}

// handleConnect connects the wallet; the outcome is also pushed as a notification
func (ws *WebServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := ws.session.Connect(r.Context())
	switch {
	case err == nil:
		ws.writeJSONResponse(w, http.StatusOK, ws.session.Snapshot())
	case errors.Is(err, session.ErrNoWalletDetected):
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "No wallet detected")
	case errors.Is(err, session.ErrConnectInProgress):
		ws.writeErrorResponse(w, http.StatusConflict, "Wallet connection already in progress")
	default:
		webLogger.Error().Err(err).Msg("Wallet connection failed")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to connect wallet")
	}
}

// handleDisconnect clears the session
func (ws *WebServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ws.session.Disconnect()
	ws.writeJSONResponse(w, http.StatusOK, ws.session.Snapshot())
}

// handleRefresh reloads vault data for the connected account
func (ws *WebServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := ws.session.Refresh(r.Context()); err != nil {
		webLogger.Error().Err(err).Msg("Vault data refresh failed")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to load vault data")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.session.Snapshot())
}

// handleGetMetadata returns the cached vault metadata, null when disconnected
func (ws *WebServer) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.session.Snapshot().Metadata)
}

// handleGetUserData returns the cached user data, null when disconnected
func (ws *WebServer) handleGetUserData(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.session.Snapshot().UserData)
}

// handleGetStats returns the derived dashboard values, null when no metadata is cached
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	view := ws.session.Snapshot()
	if view.Metadata == nil {
		ws.writeJSONResponse(w, http.StatusOK, nil)
		return
	}

	stats, err := vault.BuildStats(view.Metadata, view.UserData, ws.now())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to derive vault stats")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to derive vault stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

// handleGetHistory returns stored refresh snapshots
func (ws *WebServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	snapshots, err := state.GetRecentSnapshots(r.Context(), limit)
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve vault history")
		return
	}

	response := map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetReceipts returns stored deposit and withdrawal receipts
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	receipts, err := state.GetRecentActionReceipts(r.Context(), limit)
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSummary returns aggregate history statistics
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetActivitySummary(r.Context())
	if err != nil {
		ws.writeStoreError(w, err, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

type tokenResponse struct {
	types.Token
	DisplayBalance string `json:"display_balance"`
}

// handleGetTokens returns the deposit form's token table
func (ws *WebServer) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := ws.deposits.Form().Tokens()
	response := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		response = append(response, tokenResponse{Token: t, DisplayBalance: deposit.FormatBalance(t.Balance)})
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleDepositQuote previews a deposit from ?amount= or ?percent= of the token balance
func (ws *WebServer) handleDepositQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := query.Get("token")

	var fee string
	if meta := ws.session.Snapshot().Metadata; meta != nil {
		fee = meta.DepositFee
	}

	var (
		preview deposit.Preview
		err     error
	)
	form := ws.deposits.Form()
	if percentStr := query.Get("percent"); percentStr != "" {
		percent, convErr := strconv.Atoi(percentStr)
		if convErr != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Percent must be a whole number")
			return
		}
		preview, err = form.PreviewPercentage(symbol, percent, fee)
	} else {
		preview, err = form.Preview(symbol, query.Get("amount"), fee)
	}

	switch {
	case err == nil:
		ws.writeJSONResponse(w, http.StatusOK, preview)
	case errors.Is(err, deposit.ErrUnknownToken):
		ws.writeErrorResponse(w, http.StatusBadRequest, "Please select a supported token")
	default:
		webLogger.Error().Err(err).Str("deposit_fee", fee).Msg("Failed to quote deposit")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Deposit fee unavailable")
	}
}

type depositRequest struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

// handleDeposit runs a deposit and waits for it to finalize
func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Detached from the request: a closed connection must not stop the saga after approval.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), depositTimeout)
	defer cancel()

	d, err := ws.deposits.Submit(ctx, req.Amount, req.Token)
	switch {
	case err == nil:
	case errors.Is(err, deposit.ErrInvalidAmount), errors.Is(err, deposit.ErrUnknownToken):
		ws.writeErrorResponse(w, http.StatusBadRequest, "Please enter a valid amount")
		return
	case errors.Is(err, deposit.ErrInsufficientBalance):
		ws.writeErrorResponse(w, http.StatusBadRequest, "Insufficient balance")
		return
	case errors.Is(err, deposit.ErrNotConnected):
		ws.writeErrorResponse(w, http.StatusConflict, "Please connect your wallet first")
		return
	default:
		webLogger.Error().Err(err).Msg("Deposit failed")
		response := map[string]interface{}{
			"error":     true,
			"message":   "Deposit failed",
			"timestamp": ws.now().UTC(),
		}
		if d != nil {
			response["deposit"] = depositSummary(d)
		}
		ws.writeJSONResponse(w, http.StatusBadGateway, response)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, depositSummary(d))
}

// handleWithdraw answers with the presentation's "coming soon" state
func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ws.writeErrorResponse(w, http.StatusNotImplemented, "Withdrawals coming soon")
}

func depositSummary(d *vault.Deposit) map[string]interface{} {
	summary := map[string]interface{}{
		"id":       d.ID.String(),
		"stage":    d.Stage(),
		"approved": d.Approved(),
	}
	if hash := d.ApproveTx(); hash != (common.Hash{}) {
		summary["approve_tx"] = hash.Hex()
	}
	if hash := d.DepositTx(); hash != (common.Hash{}) {
		summary["deposit_tx"] = hash.Hex()
	}
	return summary
}

func parseLimit(r *http.Request) int {
	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeStoreError maps history store errors; a missing database is not a server fault
func (ws *WebServer) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, state.ErrDBNotInitialized) {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History database is not configured")
		return
	}
	webLogger.Error().Err(err).Msg(message)
	ws.writeErrorResponse(w, http.StatusInternalServerError, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": ws.now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the notification stream upgrade through the wrapper.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
