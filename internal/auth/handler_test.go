package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"kasa-backend/internal/config"
	"kasa-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAuthApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Restaurant{}, &models.User{}))

	cfg := &config.Config{JWTSecret: "auth-test-secret-0123456789-abcdefgh"}
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Post("/auth/register-admin", RegisterAdminHandler(db))
	app.Post("/auth/login", LoginHandler(cfg, db))
	protected := app.Group("", JWTMiddleware(cfg))
	protected.Get("/auth/me", MeHandler(db))
	protected.Post("/admin/cashiers", RequireRole(models.RoleAdmin), CreateCashierHandler(db))
	return app, db
}

func call(t *testing.T, app *fiber.App, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	status, body := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, body)
	return body["token"].(string)
}

func TestRegisterLoginAndMe(t *testing.T) {
	app, _ := newAuthApp(t)

	status, body := call(t, app, http.MethodPost, "/auth/register-admin", "", map[string]any{
		"restaurant_name": "Lokanta",
		"name":            "Yönetici",
		"email":           " Admin@Lokanta.com ",
		"password":        "gizli-sifre",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "admin@lokanta.com", body["email"])
	assert.NotNil(t, body["restaurant_id"])

	status, _ = call(t, app, http.MethodPost, "/auth/register-admin", "", map[string]any{
		"restaurant_name": "Lokanta",
		"name":            "Başka",
		"email":           "baska@lokanta.com",
		"password":        "gizli-sifre",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"email": "admin@lokanta.com", "password": "yanlis"})
	assert.Equal(t, http.StatusUnauthorized, status)

	tok := login(t, app, "admin@lokanta.com", "gizli-sifre")
	status, me := call(t, app, http.MethodGet, "/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, status, me)
	assert.Equal(t, "admin", me["role"])
	restaurant := me["restaurant"].(map[string]any)
	assert.Equal(t, "Lokanta", restaurant["name"])
}

func TestRegisterValidation(t *testing.T) {
	app, db := newAuthApp(t)

	status, body := call(t, app, http.MethodPost, "/auth/register-admin", "", map[string]any{
		"restaurant_name": "  ",
		"name":            "Yönetici",
		"email":           "a@b.com",
		"password":        "gizli-sifre",
	})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, _ = call(t, app, http.MethodPost, "/auth/register-admin", "", map[string]any{
		"restaurant_name": "Lokanta",
		"name":            "Yönetici",
		"email":           "a@b.com",
		"password":        "kisa",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	var n int64
	db.Model(&models.Restaurant{}).Count(&n)
	assert.Zero(t, n)
}

func TestCreateCashierAdminOnly(t *testing.T) {
	app, _ := newAuthApp(t)

	status, _ := call(t, app, http.MethodPost, "/auth/register-admin", "", map[string]any{
		"restaurant_name": "Lokanta",
		"name":            "Yönetici",
		"email":           "admin@lokanta.com",
		"password":        "gizli-sifre",
	})
	require.Equal(t, http.StatusCreated, status)
	adminTok := login(t, app, "admin@lokanta.com", "gizli-sifre")

	status, body := call(t, app, http.MethodPost, "/admin/cashiers", adminTok, map[string]any{
		"name":     "Ayşe",
		"email":    "ayse@lokanta.com",
		"password": "kasa-sifresi",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "cashier", body["role"])

	cashierTok := login(t, app, "ayse@lokanta.com", "kasa-sifresi")
	status, _ = call(t, app, http.MethodPost, "/admin/cashiers", cashierTok, map[string]any{
		"name":     "Mehmet",
		"email":    "mehmet@lokanta.com",
		"password": "kasa-sifresi",
	})
	assert.Equal(t, http.StatusForbidden, status)

	// SSE için token query'den de okunur
	status, me := call(t, app, http.MethodGet, "/auth/me?access_token="+cashierTok, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cashier", me["role"])
}
