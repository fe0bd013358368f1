package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/service"
	"mizanpos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	log           *logrus.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log *logrus.Logger) *API {
	if log == nil {
		log = logrus.New()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		log:           log,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/parties", a.requireAuth(a.handleParties, "cashier", "admin"))
	mux.HandleFunc("/api/v1/parties/", a.requireAuth(a.handlePartyActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, "admin"))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseActions, "admin"))
	mux.HandleFunc("/api/v1/invoices/", a.requireAuth(a.handleInvoiceLookup, "cashier", "admin"))

	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayments, "cashier", "admin"))

	mux.HandleFunc("/api/v1/in-transit", a.requireAuth(a.handleInTransit, "admin"))
	mux.HandleFunc("/api/v1/in-transit/", a.requireAuth(a.handleInTransitActions, "admin"))

	mux.HandleFunc("/api/v1/rates/", a.requireAuth(a.handleRates, "cashier", "admin"))
	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// statusFor maps domain errors onto HTTP statuses. Validation faults are
// 400; settlement conflicts like short stock or over-returns are 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrDuplicateLot),
		errors.Is(err, store.ErrOverReturn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeResult(w, http.StatusOK, "ok", map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeResult(w, http.StatusOK, "login successful", map[string]any{
		"access_token": resp.AccessToken,
		"role":         resp.Role,
		"expires_at":   resp.ExpiresAt,
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "products listed", map[string]any{"products": products})
	case http.MethodPost:
		if !requireRole(w, r, "admin") {
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "product created", map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || actor.Role != role {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/products/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "product found", map[string]any{"product": product})
	case http.MethodPatch:
		if !requireRole(w, r, "admin") {
			return
		}
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "product updated", map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleParties(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		parties, err := a.service.ListParties(r.Context(), r.URL.Query().Get("type"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "parties listed", map[string]any{"parties": parties})
	case http.MethodPost:
		var req domain.PartyCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		party, err := a.service.CreateParty(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "party created", map[string]any{"party": party})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePartyActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/parties/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("party id required"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if id, ok := strings.CutSuffix(tail, "/ledger"); ok {
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		entries, err := a.service.ListLedgerEntries(r.Context(), strings.Trim(id, "/"), limit)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "ledger entries listed", map[string]any{"entries": entries})
		return
	}

	party, err := a.service.GetParty(r.Context(), tail)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusOK, "party found", map[string]any{"party": party})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		invoices, err := a.service.ListInvoices(r.Context(), domain.InvoiceSale, limit)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "sales listed", map[string]any{"invoices": invoices})
	case http.MethodPost:
		var draft domain.SaleDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if actor, ok := service.ActorFromContext(r.Context()); ok && draft.Cashier == "" {
			draft.Cashier = actor.Username
		}
		invoice, err := a.service.CompleteSale(r.Context(), draft)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "sale completed", map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

type returnRequest struct {
	Lines []domain.ReturnLine `json:"lines"`
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/sales/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/return"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req returnRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cashier := ""
		if actor, ok := service.ActorFromContext(r.Context()); ok {
			cashier = actor.Username
		}
		invoice, err := a.service.ReturnSale(r.Context(), strings.Trim(id, "/"), req.Lines, cashier)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "sale return recorded", map[string]any{"invoice": invoice})
		return
	}

	switch r.Method {
	case http.MethodGet:
		invoice, err := a.service.GetInvoice(r.Context(), tail)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "invoice found", map[string]any{"invoice": invoice})
	case http.MethodPut:
		var draft domain.SaleDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.UpdateSale(r.Context(), tail, draft)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "sale updated", map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		invoices, err := a.service.ListInvoices(r.Context(), domain.InvoicePurchase, limit)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "purchases listed", map[string]any{"invoices": invoices})
	case http.MethodPost:
		var draft domain.PurchaseDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.CreatePurchase(r.Context(), draft)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "purchase recorded", map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/purchases/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/return"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req returnRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.ReturnPurchase(r.Context(), strings.Trim(id, "/"), req.Lines)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "purchase return recorded", map[string]any{"invoice": invoice})
		return
	}

	switch r.Method {
	case http.MethodGet:
		invoice, err := a.service.GetInvoice(r.Context(), tail)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "invoice found", map[string]any{"invoice": invoice})
	case http.MethodPut:
		var draft domain.PurchaseDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.UpdatePurchase(r.Context(), tail, draft)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "purchase updated", map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r.URL.Path, "/api/v1/invoices/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}
	invoice, err := a.service.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusOK, "invoice found", map[string]any{"invoice": invoice})
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var draft domain.PaymentDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.service.ProcessPayment(r.Context(), draft)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusCreated, "payment recorded", map[string]any{"entry": entry})
}

func (a *API) handleInTransit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		invoices, err := a.service.ListInTransit(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "in-transit invoices listed", map[string]any{"invoices": invoices})
	case http.MethodPost:
		var draft domain.InTransitDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.CreateInTransit(r.Context(), draft)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusCreated, "in-transit invoice created", map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

type moveRequest struct {
	Moves      []domain.InTransitMovement `json:"moves"`
	PaidAmount decimal.Decimal            `json:"paid_amount"`
}

func (a *API) handleInTransitActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/in-transit/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/move"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req moveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.MoveInTransitItems(r.Context(), strings.Trim(id, "/"), req.Moves, req.PaidAmount)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "movement applied", map[string]any{"invoice": invoice})
		return
	}

	if id, ok := strings.CutSuffix(tail, "/archive"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		invoice, err := a.service.ArchiveInTransit(r.Context(), strings.Trim(id, "/"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "invoice archived", map[string]any{"invoice": invoice})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoice, err := a.service.GetInTransit(r.Context(), tail)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusOK, "invoice found", map[string]any{"invoice": invoice})
}

type rateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

func (a *API) handleRates(w http.ResponseWriter, r *http.Request) {
	code := pathTail(r.URL.Path, "/api/v1/rates/")
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("currency code required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		rate, err := a.service.GetExchangeRate(r.Context(), code)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "rate found", map[string]any{"rate": rate})
	case http.MethodPut:
		if !requireRole(w, r, "admin") {
			return
		}
		var req rateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rate, err := a.service.SetExchangeRate(r.Context(), code, req.Rate)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeResult(w, http.StatusOK, "rate updated", map[string]any{"rate": rate})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	report, err := a.service.DailyReport(r.Context(), day)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusOK, "report ready", map[string]any{"report": report})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var from, to time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("from must be RFC3339"))
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("to must be RFC3339"))
			return
		}
		to = parsed
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, http.StatusOK, "audit logs listed", map[string]any{"audit_logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

func pathTail(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses carry a generic message so internals never leak to
	// clients; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		logrus.WithField("status", status).WithError(err).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": msg,
	})
}

// writeResult wraps a successful response in the fixed envelope every
// operation shares. Payload keys sit beside success and message at the top
// level.
func writeResult(w http.ResponseWriter, status int, message string, payload map[string]any) {
	body := map[string]any{
		"success": true,
		"message": message,
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
