package cashflow_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"kasa-backend/internal/audit"
	"kasa-backend/internal/auth"
	"kasa-backend/internal/cashflow"
	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/config"
	"kasa-backend/internal/events"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"
	"kasa-backend/internal/storage/memory"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "kasa-test-secret-0123456789-abcdefgh"

var trt = time.FixedZone("TRT", 3*60*60)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.LogOptions
}

func (a *recordingAuditor) WriteLog(_ context.Context, opts audit.LogOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, opts)
	return nil
}

func (a *recordingAuditor) entityTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.EntityType)
	}
	return out
}

type testApp struct {
	app     *fiber.App
	store   *memory.Store
	auditor *recordingAuditor
	hub     *events.Hub
}

func newTestApp(t *testing.T, caps cashsession.Capabilities) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, trt)

	ta := &testApp{
		store:   memory.New(caps),
		auditor: &recordingAuditor{},
		hub:     events.NewHub(nil, logger),
	}
	agg := metrics.NewAggregator(ta.store, trt, logger)
	reg := cashsession.NewRegistry(ta.store, agg, ta.hub, cashsession.Options{
		Capabilities: caps,
		Location:     trt,
		Clock:        func() time.Time { return now },
		Logger:       logger,
		Auditor:      ta.auditor,
		VerifyDelay:  time.Millisecond,
	})
	t.Cleanup(reg.Shutdown)

	ta.app = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Beklenmeyen sunucu hatası"})
		},
	})
	api := ta.app.Group("/api")
	api.Use(auth.JWTMiddleware(&config.Config{JWTSecret: testSecret}))
	cashflow.NewHandler(reg, ta.store, ta.store, ta.hub).Register(api)
	return ta
}

func token(t *testing.T, userID, restaurantID uint, role models.UserRole) string {
	t.Helper()
	rid := restaurantID
	tok, err := auth.GenerateToken(testSecret, &models.User{ID: userID, Name: "Ayşe", Role: role, RestaurantID: &rid})
	require.NoError(t, err)
	return tok
}

func (ta *testApp) do(t *testing.T, method, path, tok string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cashflow.TerminalHeader, "T1")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func sessionPath(id float64, suffix string) string {
	return "/api/cash-sessions/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func TestHandler_RequiresToken(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	resp, _ := ta.do(t, http.MethodGet, "/api/cash-sessions/current", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_OpenTwiceConflicts(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)

	resp, body := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "open", body["state"])
	assert.Equal(t, "T1", body["terminal_id"])

	resp, body = ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestHandler_OpenValidation(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)

	resp, _ := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 0, ta.store.Mutations())
}

func TestHandler_FullCycle(t *testing.T) {
	for name, caps := range map[string]cashsession.Capabilities{
		"atomic":   cashsession.AllCapabilities(),
		"fallback": {},
	} {
		t.Run(name, func(t *testing.T) {
			ta := newTestApp(t, caps)
			tok := token(t, 7, 1, models.RoleCashier)

			var mu sync.Mutex
			var seen []events.Type
			ta.hub.Subscribe(events.RestaurantKey(1), func(e events.Event) {
				mu.Lock()
				seen = append(seen, e.Type)
				mu.Unlock()
			})

			resp, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
			require.Equal(t, http.StatusCreated, resp.StatusCode, opened)
			id := opened["id"].(float64)

			resp, body := ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), tok,
				map[string]any{"payment_method": "cash", "amount": 120_000})
			require.Equal(t, http.StatusCreated, resp.StatusCode, body)
			resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), tok,
				map[string]any{"payment_method": "card", "amount": 40_000})
			require.Equal(t, http.StatusCreated, resp.StatusCode, body)
			resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/expenses"), tok,
				map[string]any{"amount": 30_000, "category": "tedarik"})
			require.Equal(t, http.StatusCreated, resp.StatusCode, body)
			assert.Equal(t, "cash", body["payment_method"])

			resp, current := ta.do(t, http.MethodGet, "/api/cash-sessions/current", tok, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "OPEN", current["state"])
			assert.Equal(t, false, current["requires_manual_reconciliation"])
			totals := current["totals"].(map[string]any)
			assert.Equal(t, float64(140_000), totals["running_balance"])
			assert.Equal(t, float64(160_000), totals["total_sales"])

			resp, preview := ta.do(t, http.MethodPost, sessionPath(id, "/preview"), tok,
				map[string]any{"reported_closing_balance": 140_000})
			require.Equal(t, http.StatusOK, resp.StatusCode, preview)
			assert.Equal(t, float64(140_000), preview["calculated_balance"])
			disc := preview["discrepancy"].(map[string]any)
			assert.Equal(t, "normal", disc["tier"])

			resp, closed := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
				map[string]any{"reported_closing_balance": 140_000, "closing_notes": "gün sonu"})
			require.Equal(t, http.StatusOK, resp.StatusCode, closed)
			assert.Equal(t, false, closed["idempotent"])
			session := closed["session"].(map[string]any)
			assert.Equal(t, "closed", session["state"])
			assert.Equal(t, float64(140_000), session["calculated_closing_balance"])

			// tekrar: store'a gitmeden aynı sonuç
			before := ta.store.Mutations()
			resp, again := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
				map[string]any{"reported_closing_balance": 140_000})
			require.Equal(t, http.StatusOK, resp.StatusCode, again)
			assert.Equal(t, true, again["idempotent"])
			assert.Equal(t, before, ta.store.Mutations())

			resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), tok,
				map[string]any{"payment_method": "cash", "amount": 1_000})
			assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

			mu.Lock()
			assert.Contains(t, seen, events.SessionOpened)
			assert.Contains(t, seen, events.MovementRecorded)
			assert.Contains(t, seen, events.SessionClosed)
			mu.Unlock()
			assert.Equal(t,
				[]string{"cash_session", "transaction", "transaction", "expense", "cash_session"},
				ta.auditor.entityTypes())
		})
	}
}

func TestHandler_CloseGateReturnsDiscrepancy(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)

	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	resp, body := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
		map[string]any{"reported_closing_balance": 75_000})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	disc := body["discrepancy"].(map[string]any)
	assert.Equal(t, "critical", disc["tier"])
	assert.Equal(t, true, disc["requires_justification"])

	resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
		map[string]any{"reported_closing_balance": 75_000, "confirmed": true, "justification": "bozuk para sayılmadı"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	session := body["session"].(map[string]any)
	assert.Equal(t, "critical", session["discrepancy_tier"])
}

func TestHandler_CloseValidation(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)

	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)
	before := ta.store.Mutations()

	resp, _ := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
		map[string]any{"reported_closing_balance": 50_000, "admin_override": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/cash-sessions/abc/close", tok,
		map[string]any{"reported_closing_balance": 50_000})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, before, ta.store.Mutations())
}

func TestHandler_CloseBlockedByActiveOrders(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)

	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)
	ta.store.PutOrder(models.Order{RestaurantID: 1, TableLabel: "M4", Status: models.OrderStatusServed, Total: 8_000})

	resp, body := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok,
		map[string]any{"reported_closing_balance": 50_000})
	require.Equal(t, http.StatusConflict, resp.StatusCode, body)
	blockers := body["blockers"].([]any)
	require.Len(t, blockers, 1)
	assert.Equal(t, "active_order", blockers[0].(map[string]any)["kind"])

	resp, current := ta.do(t, http.MethodGet, "/api/cash-sessions/current", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OPEN", current["state"])
	assert.Equal(t, float64(8_000), current["receivable"])

	admin := token(t, 1, 1, models.RoleAdmin)
	resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/close"), admin,
		map[string]any{"reported_closing_balance": 50_000, "admin_override": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotEmpty(t, body["warnings"])
}

func TestHandler_OwnershipMismatchIsBadGateway(t *testing.T) {
	ta := newTestApp(t, cashsession.Capabilities{})
	ta.store.RestrictToCashier(true)

	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", token(t, 7, 1, models.RoleCashier),
		map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	resp, body := ta.do(t, http.MethodPost, sessionPath(id, "/close"), token(t, 8, 1, models.RoleCashier),
		map[string]any{"reported_closing_balance": 50_000})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, body)
	assert.Equal(t, string(cashsession.CodeOwnershipMismatch), body["code"])

	got, err := ta.store.GetSession(context.Background(), uint(id))
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
}

func TestHandler_CloseBalanceChangedConflicts(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)
	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	// başka terminalden gelen satış eşik kontrolü ile kayıt arasına düşer
	inserted := false
	ta.store.SetHook(func(op string) {
		if op != "CloseSessionAtomic" || inserted {
			return
		}
		inserted = true
		assert.NoError(t, ta.store.InsertTransaction(context.Background(), &models.Transaction{
			SessionID: uint(id), RestaurantID: 1, PaymentMethod: models.PaymentMethodCash, Amount: 20_000,
			PostedAt: time.Date(2025, 3, 14, 14, 59, 0, 0, trt),
		}))
	})

	resp, body := ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok, map[string]any{"reported_closing_balance": 50_000})
	require.Equal(t, http.StatusConflict, resp.StatusCode, body)

	got, err := ta.store.GetSession(context.Background(), uint(id))
	require.NoError(t, err)
	assert.True(t, got.IsOpen())

	resp, body = ta.do(t, http.MethodPost, sessionPath(id, "/close"), tok, map[string]any{"reported_closing_balance": 70_000})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
}

func TestHandler_ForeignRestaurantSessionNotFound(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", token(t, 7, 1, models.RoleCashier),
		map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	other := token(t, 20, 2, models.RoleAdmin)
	resp, _ := ta.do(t, http.MethodGet, sessionPath(id, ""), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), other,
		map[string]any{"payment_method": "cash", "amount": 1_000})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_IntakeValidation(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)
	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	cases := []map[string]any{
		{"payment_method": "cheque", "amount": 1_000},
		{"payment_method": "cash", "amount": 0},
		{"payment_method": "cash", "amount": 20_000_000},
		{"payment_method": "card", "amount": 1_000, "change_given": 50},
	}
	for _, body := range cases {
		resp, out := ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), tok, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, out)
	}

	resp, _ := ta.do(t, http.MethodPost, sessionPath(id, "/expenses"), tok, map[string]any{"amount": 1_000, "category": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_PeriodTotalsAndChart(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)
	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)
	ta.do(t, http.MethodPost, sessionPath(id, "/transactions"), tok, map[string]any{"payment_method": "digital", "amount": 12_500})

	resp, body := ta.do(t, http.MethodGet, "/api/cash-metrics/totals?period=week", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "week", body["period"])
	assert.Equal(t, "2025-03-10", body["from"])
	assert.Equal(t, "2025-03-16", body["to"])
	assert.Equal(t, float64(12_500), body["total_digital"])

	resp, _ = ta.do(t, http.MethodGet, "/api/cash-metrics/totals?period=year", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, "/api/cash-metrics/chart?period=daily&count=3", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	points := body["points"].([]any)
	require.Len(t, points, 3)
	assert.Equal(t, float64(12_500), points[2].(map[string]any)["digital"])

	resp, _ = ta.do(t, http.MethodGet, "/api/cash-metrics/chart?period=hourly", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_SessionReport(t *testing.T) {
	ta := newTestApp(t, cashsession.AllCapabilities())
	tok := token(t, 7, 1, models.RoleCashier)
	_, opened := ta.do(t, http.MethodPost, "/api/cash-sessions", tok, map[string]any{"initial_float": 50_000})
	id := opened["id"].(float64)

	resp, _ := ta.do(t, http.MethodGet, sessionPath(id, "/report.xlsx"), tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
}

func TestWriteSnapshotFormat(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, cashflow.WriteSnapshot(w, cashsession.Snapshot{State: cashsession.StateOpen, RestaurantID: 1, TerminalID: "T1"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: snapshot\ndata: {"), out)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
	assert.Contains(t, out, `"state":"OPEN"`)
}
