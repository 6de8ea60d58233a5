package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type mockUserService struct {
	registerFunc func(ctx context.Context, in service.RegisterInput) error
	loginFunc    func(ctx context.Context, email, password string) (*model.User, error)
	verifyFunc   func(ctx context.Context, email, code, action string) error
	registerIn   *service.RegisterInput
	loginEmail   string
}

func (m *mockUserService) Register(ctx context.Context, in service.RegisterInput) error {
	m.registerIn = &in
	if m.registerFunc != nil {
		return m.registerFunc(ctx, in)
	}
	return nil
}

func (m *mockUserService) IssueCode(ctx context.Context, email string) error { return nil }

func (m *mockUserService) VerifyEmail(ctx context.Context, email, code, action string) error {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, email, code, action)
	}
	return nil
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	m.loginEmail = email
	if m.loginFunc != nil {
		return m.loginFunc(ctx, email, password)
	}
	return nil, apperr.Unprocessable("The provided credentials are incorrect.")
}

func (m *mockUserService) ForgotPassword(ctx context.Context, email string) error { return nil }

func (m *mockUserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return nil
}

func (m *mockUserService) Profile(ctx context.Context, userID uint) (*model.User, error) {
	return nil, apperr.NotFound("Resource not found.")
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID uint, name, username string) (*model.User, error) {
	return nil, apperr.NotFound("Resource not found.")
}

func (m *mockUserService) ChangePassword(ctx context.Context, userID uint, current, newPassword string) error {
	return nil
}

type mockTokenStore struct {
	saveCalls   int
	revokeCalls int
	savedUserID uint
	savedJTI    string
	savedTTL    time.Duration
}

func (m *mockTokenStore) Save(ctx context.Context, userID uint, jti string, ttl time.Duration) error {
	m.saveCalls++
	m.savedUserID = userID
	m.savedJTI = jti
	m.savedTTL = ttl
	return nil
}

func (m *mockTokenStore) RevokeAll(ctx context.Context, userID uint) error {
	m.revokeCalls++
	return nil
}

func newTestHandler(svc *mockUserService, tokens *mockTokenStore) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(svc, tokens, "test-secret", time.Hour, logger)
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Normal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	svc := &mockUserService{}
	h := newTestHandler(svc, &mockTokenStore{})

	r := gin.New()
	r.POST("/register", h.Register)

	w := postJSON(r, "/register", gin.H{
		"name":     "Jane Doe",
		"username": "janedoe",
		"email":    "  Jane@Example.COM ",
		"password": "secret-password",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.registerIn == nil {
		t.Fatalf("expected register to be called")
	}
	if svc.registerIn.Email != "jane@example.com" {
		t.Fatalf("expected normalized email, got %q", svc.registerIn.Email)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("An OTP has been sent to your email for verification")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	svc := &mockUserService{
		registerFunc: func(ctx context.Context, in service.RegisterInput) error {
			return apperr.Conflict("Email already taken.")
		},
	}
	h := newTestHandler(svc, &mockTokenStore{})

	r := gin.New()
	r.POST("/register", h.Register)

	w := postJSON(r, "/register", gin.H{
		"name":     "Jane Doe",
		"username": "janedoe",
		"email":    "jane@example.com",
		"password": "secret-password",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Email already taken.")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	h := newTestHandler(&mockUserService{}, &mockTokenStore{})

	r := gin.New()
	r.POST("/register", h.Register)

	w := postJSON(r, "/register", gin.H{
		"name":     "J",
		"username": "janedoe",
		"email":    "not-an-email",
		"password": "short",
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Message != "Validation failed" {
		t.Fatalf("expected validation message, got %q", resp.Message)
	}
	for _, field := range []string{"name", "email", "password"} {
		if len(resp.Errors[field]) == 0 {
			t.Fatalf("expected error for field %q, got %v", field, resp.Errors)
		}
	}
}

func TestLogin_Normal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	now := time.Now()
	svc := &mockUserService{
		loginFunc: func(ctx context.Context, email, password string) (*model.User, error) {
			return &model.User{
				ID:              7,
				Name:            "Jane Doe",
				Username:        "janedoe",
				Email:           email,
				EmailVerifiedAt: &now,
			}, nil
		},
	}
	tokens := &mockTokenStore{}
	h := newTestHandler(svc, tokens)

	r := gin.New()
	r.POST("/login", h.Login)

	w := postJSON(r, "/login", gin.H{"email": "jane@example.com", "password": "secret-password"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Result      bool   `json:"result"`
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Result || resp.TokenType != "Bearer" || resp.User.Username != "janedoe" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
	if tokens.saveCalls != 1 || tokens.savedUserID != 7 {
		t.Fatalf("expected token to be saved for user 7")
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(resp.AccessToken, &claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "7" {
		t.Fatalf("expected subject 7, got %q", claims.Subject)
	}
	if claims.ID != tokens.savedJTI {
		t.Fatalf("expected jti %q saved, got %q", claims.ID, tokens.savedJTI)
	}
}

func TestLogin_BadCredentialsSameMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	// 未知邮箱与错误密码返回完全一致的响应。
	svc := &mockUserService{}
	h := newTestHandler(svc, &mockTokenStore{})

	r := gin.New()
	r.POST("/login", h.Login)

	unknown := postJSON(r, "/login", gin.H{"email": "nobody@example.com", "password": "whatever-123"})
	wrongPass := postJSON(r, "/login", gin.H{"email": "jane@example.com", "password": "wrong-password"})

	if unknown.Code != http.StatusUnprocessableEntity || wrongPass.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for both, got %d and %d", unknown.Code, wrongPass.Code)
	}
	if unknown.Body.String() != wrongPass.Body.String() {
		t.Fatalf("expected identical bodies, got %s vs %s", unknown.Body.String(), wrongPass.Body.String())
	}
	if !bytes.Contains(unknown.Body.Bytes(), []byte("The provided credentials are incorrect.")) {
		t.Fatalf("unexpected body: %s", unknown.Body.String())
	}
}

func TestLogin_Unverified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	svc := &mockUserService{
		loginFunc: func(ctx context.Context, email, password string) (*model.User, error) {
			return nil, apperr.Unprocessable("Email not verified.")
		},
	}
	tokens := &mockTokenStore{}
	h := newTestHandler(svc, tokens)

	r := gin.New()
	r.POST("/login", h.Login)

	w := postJSON(r, "/login", gin.H{"email": "jane@example.com", "password": "secret-password"})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Email not verified.")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if tokens.saveCalls != 0 {
		t.Fatalf("expected no token issued")
	}
}

func TestVerifyEmail_InvalidCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	svc := &mockUserService{
		verifyFunc: func(ctx context.Context, email, code, action string) error {
			return apperr.BadRequest("Invalid or expired verification code, resend code.")
		},
	}
	h := newTestHandler(svc, &mockTokenStore{})

	r := gin.New()
	r.POST("/verify-email", h.VerifyEmail)

	w := postJSON(r, "/verify-email", gin.H{"email": "jane@example.com", "code": "123456"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Invalid or expired verification code, resend code.")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	tokens := &mockTokenStore{}
	h := newTestHandler(&mockUserService{}, tokens)

	r := gin.New()
	r.POST("/logout", func(c *gin.Context) {
		c.Set("userID", uint(7))
		h.Logout(c)
	})

	w := postJSON(r, "/logout", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if tokens.revokeCalls != 1 {
		t.Fatalf("expected revoke to be called once, got %d", tokens.revokeCalls)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("You have successfully logged out")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
