package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestApp(t *testing.T, accessTTL time.Duration) (*fiber.App, services.TokenService) {
	t.Helper()

	tokenService, err := services.NewTokenService(accessTTL, 7*24*time.Hour, "kusanagi", "dashboard", false, "", "", "test-secret-key-for-hmac-signing")
	require.NoError(t, err)

	app := fiber.New()
	app.Use(NewAuthMiddleware(tokenService).Authenticate())
	app.Get("/protected", func(c fiber.Ctx) error {
		profileID, ok := GetProfileIDFromContext(c)
		require.True(t, ok)
		return c.JSON(fiber.Map{"profile_id": profileID})
	})

	return app, tokenService
}

func TestAuthenticate_ValidAccessToken(t *testing.T) {
	app, tokenService := newAuthTestApp(t, time.Hour)

	access, _, err := tokenService.GenerateTokens(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	app, _ := newAuthTestApp(t, time.Hour)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	app, _ := newAuthTestApp(t, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	app, tokenService := newAuthTestApp(t, -time.Minute)

	access, _, err := tokenService.GenerateTokens(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_RejectsRefreshToken(t *testing.T) {
	app, tokenService := newAuthTestApp(t, time.Hour)

	_, refresh, err := tokenService.GenerateTokens(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
