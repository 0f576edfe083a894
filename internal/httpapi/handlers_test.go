package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/davitran/accountd/internal/account"
	"github.com/davitran/accountd/internal/challenge"
	"github.com/davitran/accountd/internal/password"
	"github.com/davitran/accountd/internal/token"
)

type memUsers struct {
	byID map[string]account.User
}

func (s *memUsers) GetByEmail(_ context.Context, email string) (*account.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, account.ErrUserNotFound
}

func (s *memUsers) GetByID(_ context.Context, id string) (*account.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	cp := u
	return &cp, nil
}

func (s *memUsers) List(_ context.Context) ([]account.User, error) {
	out := make([]account.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := account.RoleWeight(out[i].Role), account.RoleWeight(out[j].Role)
		if wi != wj {
			return wi < wj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memUsers) Create(_ context.Context, u *account.User) error {
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return account.ErrEmailTaken
		}
	}
	s.byID[u.ID] = *u
	return nil
}

func (s *memUsers) CreateBatch(ctx context.Context, users []account.User) error {
	for i := range users {
		if err := s.Create(ctx, &users[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memUsers) Update(_ context.Context, u *account.User) error {
	if _, ok := s.byID[u.ID]; !ok {
		return account.ErrUserNotFound
	}
	s.byID[u.ID] = *u
	return nil
}

func (s *memUsers) Delete(_ context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return account.ErrUserNotFound
	}
	delete(s.byID, id)
	return nil
}

type memMailer struct {
	reg   map[string]string
	reset map[string]string
}

func (m *memMailer) SendRegistrationCode(_ context.Context, to, code string, _ time.Duration) error {
	m.reg[to] = code
	return nil
}

func (m *memMailer) SendPasswordResetCode(_ context.Context, to, code string, _ time.Duration) error {
	m.reset[to] = code
	return nil
}

type testAPI struct {
	srv    *httptest.Server
	svc    *account.Service
	mailer *memMailer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte("api-access-secret"),
		RefreshSecret: []byte("api-refresh-secret"),
		Issuer:        "accountd-test",
	})
	require.NoError(t, err)

	mailer := &memMailer{reg: map[string]string{}, reset: map[string]string{}}
	svc := account.NewService(
		&memUsers{byID: map[string]account.User{}},
		challenge.NewEngine(challenge.NewMemoryStore(), 3*time.Minute, 6),
		hasher, tokens, mailer, account.Config{},
	)

	reg := prometheus.NewRegistry()
	router := NewRouter(NewHandler(svc, reg), reg, RouterConfig{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, svc: svc, mailer: mailer}
}

func (a *testAPI) do(t *testing.T, method, path, bearer string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res, env
}

// register walks the OTP flow over HTTP and returns an access token for the
// new account.
func (a *testAPI) register(t *testing.T, email, pw string) string {
	t.Helper()
	res, _ := a.do(t, http.MethodPost, "/api/v1/get-otp", "", map[string]string{"email": email})
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	res, _ = a.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": email, "password": pw, "firstName": "Ada", "lastName": "Lovelace",
		"otp": a.mailer.reg[email],
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	return a.login(t, email, pw)
}

func (a *testAPI) login(t *testing.T, email, pw string) string {
	t.Helper()
	res, env := a.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": email, "password": pw,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	data := env.Data.(map[string]any)
	return data["accessToken"].(string)
}

// adminToken creates an admin straight through the service and logs in over
// HTTP.
func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	_, err := a.svc.CreateUser(context.Background(), account.CreateUserInput{
		Email: "admin@example.com", Password: "admin-secret", FirstName: "Root",
		LastName: "Admin", Role: account.RoleAdmin, IsActive: true, IsVerified: true,
	})
	require.NoError(t, err)
	return a.login(t, "admin@example.com", "admin-secret")
}

func TestRegistrationAndLoginOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	res, env := api.do(t, http.MethodPost, "/api/v1/get-otp", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "success", env.Status)

	otp := api.mailer.reg["ada@example.com"]
	require.Len(t, otp, 6)

	res, env = api.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
		"firstName": "Ada", "lastName": "Lovelace", "otp": otp,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	user := env.Data.(map[string]any)
	assert.Equal(t, "customer", user["role"])
	assert.NotContains(t, user, "passwordHash")

	res, env = api.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	data := env.Data.(map[string]any)
	assert.NotEmpty(t, data["accessToken"])
	assert.NotEmpty(t, data["refreshToken"])
	assert.NotZero(t, data["expiresOn"])
}

func TestGetOTPRejectsTakenEmail(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "ada@example.com", "correct horse")

	res, env := api.do(t, http.MethodPost, "/api/v1/get-otp", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "email already used", env.Message)
}

func TestRegisterBadCodeIsOneGenericMessage(t *testing.T) {
	api := newTestAPI(t)

	res, _ := api.do(t, http.MethodPost, "/api/v1/get-otp", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	wrong := "000000"
	if wrong == api.mailer.reg["ada@example.com"] {
		wrong = "000001"
	}

	// Mismatched code for a pending email and any code for an email with
	// nothing pending must be indistinguishable.
	_, mismatch := api.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
		"firstName": "Ada", "lastName": "Lovelace", "otp": wrong,
	})
	_, absent := api.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "nobody@example.com", "password": "correct horse",
		"firstName": "No", "lastName": "Body", "otp": "123456",
	})
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)
	assert.Equal(t, mismatch.Message, absent.Message)
}

func TestValidationErrorsListFields(t *testing.T) {
	api := newTestAPI(t)

	res, env := api.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "not-an-email", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation failed", env.Message)
	fields := env.Errors.(map[string]any)
	assert.Contains(t, fields, "Email")
	assert.Contains(t, fields, "Password")
}

func TestProfileRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	tok := api.register(t, "ada@example.com", "correct horse")

	res, _ := api.do(t, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = api.do(t, http.MethodGet, "/api/v1/profile", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, env := api.do(t, http.MethodGet, "/api/v1/profile", tok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ada@example.com", env.Data.(map[string]any)["email"])
}

func TestUpdateProfileOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	tok := api.register(t, "ada@example.com", "correct horse")

	res, env := api.do(t, http.MethodPatch, "/api/v1/update-profile", tok, map[string]string{
		"firstName": "Augusta",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, "Augusta", data["firstName"])
	assert.Equal(t, "Lovelace", data["lastName"])
}

func TestAdminRoutesRequireRole(t *testing.T) {
	api := newTestAPI(t)
	customer := api.register(t, "ada@example.com", "correct horse")

	res, env := api.do(t, http.MethodGet, "/api/v1/users", customer, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "insufficient role", env.Message)

	admin := api.adminToken(t)
	res, env = api.do(t, http.MethodGet, "/api/v1/users", admin, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	users := env.Data.([]any)
	require.Len(t, users, 2)
	// Role-weighted order: the admin account lists before the customer.
	assert.Equal(t, "admin", users[0].(map[string]any)["role"])
}

func TestAdminUserCRUD(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	res, env := api.do(t, http.MethodPost, "/api/v1/user", admin, map[string]any{
		"email": "ops@example.com", "password": "hunter2hunter2",
		"firstName": "Opal", "lastName": "Ops", "role": "manager", "isActive": true,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	id := env.Data.(map[string]any)["id"].(string)

	res, _ = api.do(t, http.MethodPost, "/api/v1/user", admin, map[string]any{
		"email": "ops@example.com", "password": "hunter2hunter2",
		"firstName": "Opal", "lastName": "Ops",
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, env = api.do(t, http.MethodGet, "/api/v1/user/"+id, admin, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "manager", env.Data.(map[string]any)["role"])

	res, env = api.do(t, http.MethodPatch, "/api/v1/update-user", admin, map[string]any{
		"email": "ops@example.com", "role": "deliver", "isActive": false,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "deliver", env.Data.(map[string]any)["role"])
	assert.Equal(t, false, env.Data.(map[string]any)["isActive"])

	res, _ = api.do(t, http.MethodDelete, "/api/v1/user/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = api.do(t, http.MethodGet, "/api/v1/user/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "ada@example.com", "old password")

	res, _ := api.do(t, http.MethodPost, "/api/v1/forgot-password", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	res, _ = api.do(t, http.MethodPatch, "/api/v1/reset-password", "", map[string]string{
		"email": "ada@example.com", "password": "new password",
		"otp": api.mailer.reset["ada@example.com"],
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = api.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "ada@example.com", "password": "old password",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	api.login(t, "ada@example.com", "new password")
}

func TestDisabledAccountGetsForbidden(t *testing.T) {
	api := newTestAPI(t)
	tok := api.register(t, "ada@example.com", "correct horse")

	inactive := false
	_, err := api.svc.UpdateUserByEmail(context.Background(), "ada@example.com", account.UserUpdate{IsActive: &inactive})
	require.NoError(t, err)

	// Token re-issued after the flag flip carries isActive=false.
	res, env := api.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	tok = env.Data.(map[string]any)["accessToken"].(string)

	res, env = api.do(t, http.MethodGet, "/api/v1/profile", tok, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "account is inactive", env.Message)
}

func buildWorkbook(t *testing.T, header []string, rows [][]string) *bytes.Buffer {
	t.Helper()
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		require.NoError(t, wb.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row))
	}
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportUsersOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	workbook := buildWorkbook(t,
		[]string{"Email", "Password", "First Name", "Last Name", "Role"},
		[][]string{
			{"alice@example.com", "pw-alice", "Alice", "Adams", "manager"},
			{"admin@example.com", "pw-dup", "Dup", "Licate", "customer"},
			{"", "pw-anon", "No", "Email", "customer"},
		})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "users.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/v1/users/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	res, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	require.Equal(t, http.StatusOK, res.StatusCode)
	report := env.Data.(map[string]any)
	assert.Equal(t, float64(1), report["imported"])
	assert.Equal(t, float64(2), report["skipped"])

	api.login(t, "alice@example.com", "pw-alice")
}

func TestImportRejectsNonWorkbook(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "users.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("email,password\na@x.com,pw"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/v1/users/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	res, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	api := newTestAPI(t)
	res, env := api.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "error", env.Status)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	res, env := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", env.Message)
}

func TestCORSPreflight(t *testing.T) {
	hasher, err := password.NewHasher(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	tokens, err := token.NewManager(token.Config{
		AccessSecret: []byte("a-secret"), RefreshSecret: []byte("r-secret"),
	})
	require.NoError(t, err)
	svc := account.NewService(
		&memUsers{byID: map[string]account.User{}},
		challenge.NewEngine(challenge.NewMemoryStore(), time.Minute, 6),
		hasher, tokens,
		&memMailer{reg: map[string]string{}, reset: map[string]string{}},
		account.Config{},
	)
	reg := prometheus.NewRegistry()
	router := NewRouter(NewHandler(svc, reg), reg, RouterConfig{
		CORSAllowedOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
