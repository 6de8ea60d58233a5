package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/api/respond"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserService 是认证流程的服务接口，便于测试替换。
type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) error
	IssueCode(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, code, action string) error
	Login(ctx context.Context, email, password string) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Profile(ctx context.Context, userID uint) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uint, name, username string) (*model.User, error)
	ChangePassword(ctx context.Context, userID uint, current, newPassword string) error
}

// TokenStore 管理已签发令牌的白名单。
type TokenStore interface {
	Save(ctx context.Context, userID uint, jti string, ttl time.Duration) error
	RevokeAll(ctx context.Context, userID uint) error
}

// Handler 提供注册、登录与账号管理接口。
type Handler struct {
	svc       UserService
	tokens    TokenStore
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc UserService, tokens TokenStore, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{
		svc:       svc,
		tokens:    tokens,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyEmailRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Code   string `json:"code" binding:"required,len=6"`
	Action string `json:"action"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6"`
	Password string `json:"password" binding:"required,min=8"`
}

type updateProfileRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Username string `json:"username" binding:"required,min=3,max=50"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type userView struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Register 创建新用户并触发验证码发送。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	in := service.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Username: strings.TrimSpace(req.Username),
		Email:    normalizeEmail(req.Email),
		Password: req.Password,
	}
	if err := h.svc.Register(c.Request.Context(), in); err != nil {
		respond.HandleError(c, h.logger, "auth.Register", err)
		return
	}

	if metrics.UserRegisteredTotal != nil {
		metrics.UserRegisteredTotal.Inc()
	}
	respond.Success(c, "Successful: An OTP has been sent to your email for verification")
}

// ResendCode 重新发送验证码。
func (h *Handler) ResendCode(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	if err := h.svc.IssueCode(c.Request.Context(), normalizeEmail(req.Email)); err != nil {
		respond.HandleError(c, h.logger, "auth.ResendCode", err)
		return
	}

	if metrics.OTPIssuedTotal != nil {
		metrics.OTPIssuedTotal.Inc()
	}
	respond.Success(c, "Verification code resent successfully")
}

// VerifyEmail 校验验证码。
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	err := h.svc.VerifyEmail(c.Request.Context(), normalizeEmail(req.Email), strings.TrimSpace(req.Code), req.Action)
	if err != nil {
		respond.HandleError(c, h.logger, "auth.VerifyEmail", err)
		return
	}

	if req.Action != service.ActionResetPassword && metrics.EmailVerifiedTotal != nil {
		metrics.EmailVerifiedTotal.Inc()
	}
	respond.Success(c, "Email verified successfully")
}

// Login 校验凭证并签发令牌。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	user, err := h.svc.Login(c.Request.Context(), normalizeEmail(req.Email), req.Password)
	if err != nil {
		if metrics.LoginFailedTotal != nil {
			metrics.LoginFailedTotal.Inc()
		}
		respond.HandleError(c, h.logger, "auth.Login", err)
		return
	}

	token, err := h.issueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, respond.DefaultErrorMessage)
		return
	}

	if metrics.LoginSuccessTotal != nil {
		metrics.LoginSuccessTotal.Inc()
	}
	h.logger.Info("user logged in", slog.String("email", user.Email))
	c.JSON(http.StatusOK, gin.H{
		"result":       true,
		"access_token": token,
		"token_type":   "Bearer",
		"user":         toUserView(user),
	})
}

// ForgotPassword 发送重置密码验证码。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), normalizeEmail(req.Email)); err != nil {
		respond.HandleError(c, h.logger, "auth.ForgotPassword", err)
		return
	}

	if metrics.OTPIssuedTotal != nil {
		metrics.OTPIssuedTotal.Inc()
	}
	respond.Success(c, "An OTP has been sent to your email for password reset")
}

// ResetPassword 校验验证码并设置新密码。
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	err := h.svc.ResetPassword(c.Request.Context(), normalizeEmail(req.Email), strings.TrimSpace(req.Code), req.Password)
	if err != nil {
		respond.HandleError(c, h.logger, "auth.ResetPassword", err)
		return
	}

	respond.Success(c, "Password reset successfully")
}

// Profile 返回当前用户资料。
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.svc.Profile(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respond.HandleError(c, h.logger, "auth.Profile", err)
		return
	}
	respond.SuccessWithData(c, toUserView(user), "profile data fetched")
}

// UpdateProfile 更新名称与用户名。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	_, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c),
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Username))
	if err != nil {
		respond.HandleError(c, h.logger, "auth.UpdateProfile", err)
		return
	}

	respond.Success(c, "Profile updated successfully")
}

// ChangePassword 校验当前密码并更换密码。
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindingError(c, err)
		return
	}

	err := h.svc.ChangePassword(c.Request.Context(), middleware.CurrentUserID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		respond.HandleError(c, h.logger, "auth.ChangePassword", err)
		return
	}

	respond.Success(c, "Password changed successfully")
}

// Logout 撤销当前用户的全部令牌。重复注销不报错。
func (h *Handler) Logout(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if err := h.tokens.RevokeAll(c.Request.Context(), userID); err != nil {
		respond.HandleError(c, h.logger, "auth.Logout", err)
		return
	}

	h.logger.Info("user logged out", slog.Uint64("user_id", uint64(userID)))
	respond.Success(c, "You have successfully logged out")
}

// issueToken 签发带 jti 的 JWT 并登记白名单。
func (h *Handler) issueToken(ctx context.Context, userID uint) (string, error) {
	jti := uuid.NewString()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return "", err
	}
	if err := h.tokens.Save(ctx, userID, jti, h.tokenTTL); err != nil {
		return "", err
	}
	return token, nil
}
