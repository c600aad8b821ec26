package handlers

import (
	"net/http"
	"os"
	"testing"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/stretchr/testify/assert"
)

func TestAuthFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	if os.Getenv("JWT_ACCESS_SECRET") == "" {
		os.Setenv("JWT_ACCESS_SECRET", "test-access-secret")
	}
	if os.Getenv("JWT_REFRESH_SECRET") == "" {
		os.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret")
	}

	company := createTestCompany(t, "Компания авторизации")
	nobody := models.User{} // запросы без авторизационных заголовков

	// Регистрация в несуществующей компании отклоняется.
	var errResp response.ErrorResponse
	res := doJSON(t, "POST", ts.URL+"/auth/register", nobody, RegisterRequest{
		Nickname:  "newbie",
		Email:     "newbie@example.com",
		Password:  "secret123",
		CompanyID: 9999,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "COMPANY_NOT_FOUND", errResp.Code)

	// Успешная регистрация.
	res = doJSON(t, "POST", ts.URL+"/auth/register", nobody, RegisterRequest{
		Nickname:  "newbie",
		Email:     "newbie@example.com",
		Password:  "secret123",
		CompanyID: company.ID,
	}, nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	// Повторная регистрация с тем же email.
	res = doJSON(t, "POST", ts.URL+"/auth/register", nobody, RegisterRequest{
		Nickname:  "copycat",
		Email:     "newbie@example.com",
		Password:  "secret456",
		CompanyID: company.ID,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "EMAIL_EXISTS", errResp.Code)

	var user models.User
	assert.NoError(t, storage.DB.Where("email = ?", "newbie@example.com").First(&user).Error)
	assert.Equal(t, company.ID, user.CompanyID)
	assert.NotEqual(t, "secret123", user.PasswordHash, "Пароль должен храниться только в виде хеша")

	// Неверный пароль.
	res = doJSON(t, "POST", ts.URL+"/auth/login", nobody, LoginRequest{
		Email:    "newbie@example.com",
		Password: "wrong-password",
	}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", errResp.Code)

	// Успешный вход выдаёт пару токенов.
	var tokens response.TokenResponse
	res = doJSON(t, "POST", ts.URL+"/auth/login", nobody, LoginRequest{
		Email:    "newbie@example.com",
		Password: "secret123",
	}, &tokens)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	// Обновление пары по refresh токену.
	var refreshed response.TokenResponse
	res = doJSON(t, "POST", ts.URL+"/auth/refresh", nobody, RefreshTokenRequest{
		RefreshToken: tokens.RefreshToken,
	}, &refreshed)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)

	// Access токен в роли refresh не принимается.
	res = doJSON(t, "POST", ts.URL+"/auth/refresh", nobody, RefreshTokenRequest{
		RefreshToken: tokens.AccessToken,
	}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", errResp.Code)
}
