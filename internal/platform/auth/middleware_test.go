package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func newProtectedEcho() *echo.Echo {
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		sub, _ := c.Get(SubjectKey).(string)
		return c.JSON(http.StatusOK, map[string]string{"subject": sub})
	}, RequireToken(testSecret))
	return e
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func request(e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireToken_ValidToken(t *testing.T) {
	e := newProtectedEcho()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec := request(e, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if body := rec.Body.String(); !strings.Contains(body, "user-1") {
		t.Errorf("subject missing from %s", body)
	}
}

func TestRequireToken_MissingHeader(t *testing.T) {
	rec := request(newProtectedEcho(), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireToken_NotBearer(t *testing.T) {
	rec := request(newProtectedEcho(), "Basic dXNlcjpwYXNz")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireToken_WrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", jwt.MapClaims{"sub": "user-1"})
	rec := request(newProtectedEcho(), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireToken_ExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	rec := request(newProtectedEcho(), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
