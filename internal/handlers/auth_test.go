package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avdonin/marketplace/internal/hash"
	"github.com/avdonin/marketplace/internal/models"
	"github.com/avdonin/marketplace/internal/service/token"
	"github.com/avdonin/marketplace/internal/validate"
)

type authEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	H  *AuthHandler
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	e := echo.New()
	e.Validator = validate.New()

	tokens := &token.Service{
		DB:            db,
		JWTSecret:     []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}
	return &authEnv{
		T:  t,
		E:  e,
		DB: db,
		H:  &AuthHandler{DB: db, Tokens: tokens},
	}
}

func (env *authEnv) doJSONRequest(method, path string, body any) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"email":      email,
		"password":   "super-secret-1",
		"first_name": "Ivan",
		"last_name":  "Petrov",
	}
}

func TestRegisterClient(t *testing.T) {
	env := newAuthEnv(t)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/client/register",
		registerBody("ivan@example.com"))
	require.NoError(t, env.H.RegisterClient(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// the password must never come back, hashed or otherwise
	require.NotContains(t, rec.Body.String(), "super-secret-1")
	require.NotContains(t, rec.Body.String(), "password")

	var user models.User
	require.NoError(t, env.DB.Where("email = ?", "ivan@example.com").First(&user).Error)
	require.Equal(t, models.RoleClient, user.Role)
	require.True(t, user.Active)
	require.NotEqual(t, "super-secret-1", user.PasswordHash)
	require.True(t, hash.CheckPassword(user.PasswordHash, "super-secret-1"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/client/register",
		registerBody("ivan@example.com"))
	require.NoError(t, env.H.RegisterClient(c))

	_, c = env.doJSONRequest(http.MethodPost, "/api/v1/auth/seller/register", map[string]any{
		"email":          "ivan@example.com",
		"password":       "super-secret-1",
		"company_name":   "Acme",
		"contact_person": "Ivan Petrov",
		"phone":          "+79990000000",
	})
	err := env.H.RegisterSeller(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newAuthEnv(t)

	body := registerBody("ivan@example.com")
	body["password"] = "short"
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/client/register", body)

	err := env.H.RegisterClient(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusBadRequest, he.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLogin(t *testing.T) {
	env := newAuthEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/client/register",
		registerBody("ivan@example.com"))
	require.NoError(t, env.H.RegisterClient(c))

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/login",
		map[string]any{"email": "ivan@example.com", "password": "super-secret-1"})
	require.NoError(t, env.H.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Role         string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, models.RoleClient, resp.Role)

	names := map[string]bool{}
	for _, ck := range rec.Result().Cookies() {
		names[ck.Name] = true
	}
	require.True(t, names["accessToken"])
	require.True(t, names["refreshToken"])
}

func TestLoginWrongPassword(t *testing.T) {
	env := newAuthEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/client/register",
		registerBody("ivan@example.com"))
	require.NoError(t, env.H.RegisterClient(c))

	_, c = env.doJSONRequest(http.MethodPost, "/api/v1/auth/login",
		map[string]any{"email": "ivan@example.com", "password": "wrong-password"})
	err := env.H.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newAuthEnv(t)

	var user models.User
	pwHash, err := hash.HashPassword("super-secret-1")
	require.NoError(t, err)
	user = models.User{Email: "ivan@example.com", PasswordHash: pwHash, Role: models.RoleClient, Active: true}
	require.NoError(t, env.DB.Create(&user).Error)

	pair, err := env.H.Tokens.Issue(user.ID, user.Role)
	require.NoError(t, err)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	c.Request().AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.Refresh})

	require.NoError(t, env.H.Logout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.RefreshToken
	require.NoError(t, env.DB.Where("token = ?", pair.Refresh).First(&stored).Error)
	require.True(t, stored.Revoked)
}
