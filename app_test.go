package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aj9599/raas-platform/config"
	"github.com/aj9599/raas-platform/database"
	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "hook-secret"

type testApp struct {
	*application
	handler http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()

	cfg := config.Default()
	cfg.DatabasePath = ":memory:"
	cfg.InvoicesDir = t.TempDir()
	cfg.WebhookSecret = testWebhookSecret
	cfg.EncryptionKey = "test-encryption-key"

	db, err := database.InitDB(cfg.DatabasePath, logger)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, logger))
	t.Cleanup(func() { db.Close() })

	app, err := newApplication(cfg, db, logger)
	require.NoError(t, err)
	t.Cleanup(app.hub.Close)

	return &testApp{application: app, handler: app.routes()}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    database.DefaultAdminEmail,
		"password": database.DefaultAdminPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// tokenFor issues a token for a freshly inserted account with the given role.
func (a *testApp) tokenFor(t *testing.T, role middleware.Role, customerID *int) string {
	t.Helper()
	res, err := a.db.Exec(`
		INSERT INTO accounts (tenant_id, email, first_name, role, customer_id, password_hash)
		VALUES (1, ?, 'Test', ?, ?, 'x')
	`, fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()), string(role), customerID)
	require.NoError(t, err)
	id, _ := res.LastInsertId()

	token, _, err := middleware.IssueToken(middleware.Identity{
		AccountID:  int(id),
		TenantID:   1,
		Role:       role,
		Email:      "test@example.com",
		CustomerID: customerID,
	}, a.cfg.JWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// billingSetup creates a distributor, a customer with one consumer unit and
// a March 2024 record through the API.
type billingSetup struct {
	distributorID  int
	customerID     int
	installationID int
}

func (a *testApp) seedBilling(t *testing.T, token string) billingSetup {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/distributors", token, map[string]any{"name": "Enel SP", "price_per_kwh": 0.8})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	distributor := decode[models.Distributor](t, rec)

	rec = a.do(t, http.MethodPost, "/api/customers", token, map[string]any{
		"name":                     "Padaria Boa Vista",
		"email":                    "padaria@example.com",
		"default_calculation_type": "compensation",
		"default_discount_pct":     20,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decode[models.Customer](t, rec)

	rec = a.do(t, http.MethodPost, "/api/installations", token, map[string]any{
		"code":           "UC-001",
		"type":           "consumer",
		"distributor_id": distributor.ID,
		"customer_id":    customer.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	installation := decode[models.Installation](t, rec)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/installations/%d/records", installation.ID), token, map[string]any{
		"period":       "03/2024",
		"consumption":  1000,
		"received":     900,
		"compensation": 800,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return billingSetup{distributorID: distributor.ID, customerID: customer.ID, installationID: installation.ID}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rec := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    database.DefaultAdminEmail,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/api/customers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/customers", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleChecks(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)
	customer := app.tokenFor(t, middleware.RoleCustomer, &setup.customerID)
	operator := app.tokenFor(t, middleware.RoleOperator, nil)

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		want   int
	}{
		{"customer cannot create customers", customer, http.MethodPost, "/api/customers", http.StatusForbidden},
		{"customer cannot list distributors", customer, http.MethodGet, "/api/distributors", http.StatusForbidden},
		{"customer cannot generate invoices", customer, http.MethodPost, "/api/invoices/generate", http.StatusForbidden},
		{"operator cannot manage users", operator, http.MethodGet, "/api/users", http.StatusForbidden},
		{"operator cannot create distributors", operator, http.MethodPost, "/api/distributors", http.StatusForbidden},
		{"operator cannot read settings", operator, http.MethodGet, "/api/settings/messaging", http.StatusForbidden},
		{"operator lists distributors", operator, http.MethodGet, "/api/distributors", http.StatusOK},
		{"customer lists own installations", customer, http.MethodGet, "/api/installations", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, tt.method, tt.path, tt.token, map[string]any{})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCustomerScoping(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	rec := app.do(t, http.MethodPost, "/api/customers", admin, map[string]any{"name": "Mercado Central"})
	require.Equal(t, http.StatusCreated, rec.Code)
	other := decode[models.Customer](t, rec)

	token := app.tokenFor(t, middleware.RoleCustomer, &other.ID)

	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/customers/%d", setup.customerID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/customers/%d", other.ID), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/installations/%d", setup.installationID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/installations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.Installation]](t, rec)
	assert.Empty(t, page.Items)
}

func TestDistributorValidation(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)

	rec := app.do(t, http.MethodPost, "/api/distributors", admin, map[string]any{"name": "", "price_per_kwh": 0.8})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodPost, "/api/distributors", admin, map[string]any{"name": "CPFL", "price_per_kwh": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodPost, "/api/distributors", admin, map[string]any{"name": "CPFL", "price_per_kwh": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/distributors", admin, map[string]any{"name": "CPFL", "price_per_kwh": 0.91})
	require.Equal(t, http.StatusCreated, rec.Code)
	d := decode[models.Distributor](t, rec)
	assert.Equal(t, "CPFL", d.Name)
	assert.InDelta(t, 0.91, d.PricePerKwh, 1e-12)
}

func TestDistributorInUseCannotBeDeleted(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	rec := app.do(t, http.MethodDelete, fmt.Sprintf("/api/distributors/%d", setup.distributorID), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInstallationValidation(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	rec := app.do(t, http.MethodPost, "/api/installations", admin, map[string]any{
		"code": "UC-009", "type": "BATTERY", "distributor_id": setup.distributorID, "customer_id": setup.customerID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/installations", admin, map[string]any{
		"code": "UC-009", "type": "GENERATOR", "distributor_id": 999, "customer_id": setup.customerID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/installations", admin, map[string]any{
		"code": "UC-001", "type": "GENERATOR", "distributor_id": setup.distributorID, "customer_id": setup.customerID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnergyRecordErrors(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)
	path := fmt.Sprintf("/api/installations/%d/records", setup.installationID)

	rec := app.do(t, http.MethodPost, path, admin, map[string]any{"period": "03/2024", "consumption": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, path, admin, map[string]any{"period": "13/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, path, admin, map[string]any{"period": "04/2024", "consumption": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// compensation above what was consumed or received
	rec = app.do(t, http.MethodPost, path, admin, map[string]any{
		"period": "04/2024", "consumption": 100, "received": 50, "compensation": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodGet, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "04/2024")

	rec = app.do(t, http.MethodPost, "/api/installations/999/records", admin, map[string]any{"period": "04/2024"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateInvoice(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	rec := app.do(t, http.MethodPost, "/api/invoices/generate", admin, map[string]any{
		"customer_id":      setup.customerID,
		"installation_ids": []int{setup.installationID},
		"period":           "03/2024",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[models.Invoice](t, rec)
	assert.Equal(t, "pending", inv.Status)
	assert.Equal(t, "compensation", inv.CalculationBasis)
	assert.InDelta(t, 800, inv.KwhQuantity, 1e-9)
	assert.InDelta(t, 0.64, inv.BilledRate, 1e-12)
	assert.InDelta(t, 512, inv.TotalAmount, 1e-9)

	// owner can read it, another customer cannot
	owner := app.tokenFor(t, middleware.RoleCustomer, &setup.customerID)
	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := 999
	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), app.tokenFor(t, middleware.RoleCustomer, &stranger), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPut, fmt.Sprintf("/api/invoices/%d/status", inv.ID), admin, map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(t, http.MethodPut, fmt.Sprintf("/api/invoices/%d/status", inv.ID), admin, map[string]string{"status": "overdue"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// installations referenced by an invoice stay
	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/api/installations/%d", setup.installationID), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.DashboardStats](t, rec)
	assert.Equal(t, 1, stats.TotalCustomers)
	assert.InDelta(t, 512, stats.PaidAmount, 1e-9)
}

func TestGenerateInvoiceErrors(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	rec := app.do(t, http.MethodPost, "/api/invoices/generate", admin, map[string]any{
		"customer_id":      setup.customerID,
		"installation_ids": []int{setup.installationID},
		"period":           "05/2024",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/invoices/generate", admin, map[string]any{
		"customer_id":      setup.customerID,
		"installation_ids": []int{},
		"period":           "03/2024",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/invoices/generate", admin, map[string]any{
		"customer_id":      setup.customerID,
		"installation_ids": []int{setup.installationID},
		"period":           "03/2024",
		"discount_pct":     150,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%d/send-email", 999), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnergyWebhook(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	app.seedBilling(t, admin)

	post := func(secret string, body any) *httptest.ResponseRecorder {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/webhook/energy/default", bytes.NewReader(data))
		req.Header.Set("X-Webhook-Secret", secret)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		return rec
	}
	msg := map[string]any{"installation_code": "UC-001", "period": "04/2024", "consumption": 950, "received": 800, "compensation": 700}

	assert.Equal(t, http.StatusUnauthorized, post("wrong", msg).Code)

	rec := post(testWebhookSecret, msg)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stored := decode[models.EnergyRecord](t, rec)
	assert.Equal(t, "webhook", stored.Source)

	assert.Equal(t, http.StatusOK, post(testWebhookSecret, msg).Code)

	unknown := map[string]any{"installation_code": "UC-404", "period": "04/2024"}
	assert.Equal(t, http.StatusNotFound, post(testWebhookSecret, unknown).Code)
}

func TestRecordsCSVImport(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("csv", "records.csv")
	require.NoError(t, err)
	fmt.Fprint(part, "period,consumption,received,compensation\n"+
		"03/2024,1000,900,800\n"+
		"04/2024,1100,\"950,5\",700\n"+
		"05/2024,abc,0,0\n"+
		"06/2024,100,50,500\n")
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/installations/%d/records/import", setup.installationID), &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Processed  int      `json:"processed"`
		Imported   int      `json:"imported"`
		Duplicates int      `json:"duplicates"`
		Errors     int      `json:"errors"`
		Periods    []string `json:"periods"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, []string{"04/2024"}, result.Periods)

	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/installations/%d/records/export", setup.installationID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "period,consumption,generation")
	assert.Contains(t, rec.Body.String(), "04/2024,1100,0,950.5,700")
}

func TestDeleteCustomerRevokesInvitations(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)

	rec := app.do(t, http.MethodPost, "/api/customers", admin, map[string]any{"name": "Mercado Central"})
	require.Equal(t, http.StatusCreated, rec.Code)
	customer := decode[models.Customer](t, rec)

	rec = app.do(t, http.MethodPost, "/api/invitations", admin, map[string]any{
		"email": "mercado@example.com", "role": "customer", "customer_id": customer.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var token string
	require.NoError(t, app.db.QueryRow(`SELECT token FROM invitations WHERE email = ?`, "mercado@example.com").Scan(&token))

	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/api/customers/%d", customer.ID), admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	var status string
	require.NoError(t, app.db.QueryRow(`SELECT status FROM invitations WHERE token = ?`, token).Scan(&status))
	assert.Equal(t, models.InvitationRevoked, status)

	rec = app.do(t, http.MethodPost, "/api/invitations/accept", "", map[string]any{
		"token": token, "first_name": "Ana", "password": "s3nha-forte",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestDeleteReportsFailedReferenceLookup(t *testing.T) {
	t.Run("installation", func(t *testing.T) {
		app := newTestApp(t)
		admin := app.login(t)
		setup := app.seedBilling(t, admin)

		_, err := app.db.Exec(`DROP TABLE invoice_installations`)
		require.NoError(t, err)

		rec := app.do(t, http.MethodDelete, fmt.Sprintf("/api/installations/%d", setup.installationID), admin, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var n int
		require.NoError(t, app.db.QueryRow(`SELECT COUNT(*) FROM installations WHERE id = ?`, setup.installationID).Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("distributor", func(t *testing.T) {
		app := newTestApp(t)
		admin := app.login(t)

		rec := app.do(t, http.MethodPost, "/api/distributors", admin, map[string]any{"name": "Light RJ", "price_per_kwh": 0.95})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		distributor := decode[models.Distributor](t, rec)

		_, err := app.db.Exec(`DROP TABLE installations`)
		require.NoError(t, err)

		rec = app.do(t, http.MethodDelete, fmt.Sprintf("/api/distributors/%d", distributor.ID), admin, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var n int
		require.NoError(t, app.db.QueryRow(`SELECT COUNT(*) FROM distributors WHERE id = ?`, distributor.ID).Scan(&n))
		assert.Equal(t, 1, n)
	})
}

func TestTokenFollowsStoredAccount(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t)
	setup := app.seedBilling(t, admin)

	operator := app.tokenFor(t, middleware.RoleOperator, nil)
	var accountID int
	require.NoError(t, app.db.QueryRow(`SELECT MAX(id) FROM accounts`).Scan(&accountID))

	rec := app.do(t, http.MethodGet, "/api/distributors", operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d/role", accountID), admin, map[string]any{
		"role": "customer", "customer_id": setup.customerID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodGet, "/api/distributors", operator, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := app.db.Exec(`UPDATE accounts SET is_active = 0 WHERE id = ?`, accountID)
	require.NoError(t, err)
	rec = app.do(t, http.MethodGet, "/api/auth/me", operator, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
