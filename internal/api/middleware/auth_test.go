package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type mockTokenChecker struct {
	existsFunc func(ctx context.Context, userID uint, jti string) (bool, error)
}

func (m *mockTokenChecker) Exists(ctx context.Context, userID uint, jti string) (bool, error) {
	return m.existsFunc(ctx, userID, jti)
}

const testSecret = "test-secret"

func signToken(t *testing.T, userID uint, jti string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthRouter(tokens TokenChecker) (*gin.Engine, *uint) {
	gin.SetMode(gin.TestMode)
	var gotUserID uint
	r := gin.New()
	r.Use(AuthMiddleware(testSecret, tokens))
	r.GET("/protected", func(c *gin.Context) {
		gotUserID = CurrentUserID(c)
		c.Status(http.StatusOK)
	})
	return r, &gotUserID
}

func doAuthRequest(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokens := &mockTokenChecker{
		existsFunc: func(ctx context.Context, userID uint, jti string) (bool, error) {
			return userID == 7 && jti == "jti-1", nil
		},
	}
	r, gotUserID := newAuthRouter(tokens)

	token := signToken(t, 7, "jti-1", time.Now().Add(time.Hour))
	w := doAuthRequest(r, "Bearer "+token)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if *gotUserID != 7 {
		t.Fatalf("expected userID 7 in context, got %d", *gotUserID)
	}
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	// 签名有效但 jti 已不在白名单，视为已注销。
	tokens := &mockTokenChecker{
		existsFunc: func(ctx context.Context, userID uint, jti string) (bool, error) {
			return false, nil
		},
	}
	r, _ := newAuthRouter(tokens)

	token := signToken(t, 7, "jti-1", time.Now().Add(time.Hour))
	w := doAuthRequest(r, "Bearer "+token)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	tokens := &mockTokenChecker{
		existsFunc: func(ctx context.Context, userID uint, jti string) (bool, error) {
			return true, nil
		},
	}
	r, _ := newAuthRouter(tokens)

	token := signToken(t, 7, "jti-1", time.Now().Add(-time.Minute))
	w := doAuthRequest(r, "Bearer "+token)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	tokens := &mockTokenChecker{
		existsFunc: func(ctx context.Context, userID uint, jti string) (bool, error) {
			return true, nil
		},
	}
	r, _ := newAuthRouter(tokens)

	for _, header := range []string{"", "Bearer", "Token abc", "Bearer not-a-jwt"} {
		w := doAuthRequest(r, header)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}
