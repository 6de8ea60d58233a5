package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/mail"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ActionResetPassword 是 VerifyEmail 的非消费动作：
// 校验验证码但保留它，随后的重置密码步骤还要再用一次。
const ActionResetPassword = "resetp"

// RegisterInput 注册参数。
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// UserService 实现注册、验证码与账号管理流程。
//
// 所有方法都显式接收调用方身份，不依赖任何隐式的"当前用户"。
type UserService struct {
	db     *gorm.DB
	mailer mail.Sender
	logger *slog.Logger
	otpTTL time.Duration
	now    func() time.Time
}

// NewUserService 创建 UserService。
func NewUserService(db *gorm.DB, mailer mail.Sender, logger *slog.Logger, otpTTL time.Duration) *UserService {
	if otpTTL <= 0 {
		otpTTL = 20 * time.Minute
	}
	return &UserService{
		db:     db,
		mailer: mailer,
		logger: logger,
		otpTTL: otpTTL,
		now:    time.Now,
	}
}

// Register 创建新用户并发送验证码。
//
// 邮箱或用户名已被占用返回 409；验证码发送失败时注册整体失败，
// 刚创建的用户记录会被删掉，避免留下无法重新注册的半成品账号。
func (s *UserService) Register(ctx context.Context, in RegisterInput) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("query user: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("Email already taken.")
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return fmt.Errorf("query user: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("Username already taken.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Name:     in.Name,
		Username: in.Username,
		Email:    in.Email,
		Password: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if conflict := conflictFromDuplicate(err); conflict != nil {
			return conflict
		}
		s.logger.Error("create user failed", slog.String("email", in.Email), slog.String("error", err.Error()))
		return fmt.Errorf("create user: %w", err)
	}

	if err := s.IssueCode(ctx, user.Email); err != nil {
		if delErr := s.db.WithContext(ctx).Delete(&user).Error; delErr != nil {
			s.logger.Error("rollback user after mail failure failed",
				slog.String("email", in.Email), slog.String("error", delErr.Error()))
		}
		return err
	}

	s.logger.Info("user registered", slog.String("email", in.Email))
	return nil
}

// IssueCode 为指定邮箱生成并发送验证码。
//
// 新验证码直接覆盖之前未消费的验证码，不做频控。
func (s *UserService) IssueCode(ctx context.Context, email string) error {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("No email found.")
		}
		return fmt.Errorf("query user: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	exp := s.now().Add(s.otpTTL)

	updates := map[string]interface{}{
		"otp":            code,
		"otp_expires_at": &exp,
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		s.logger.Error("save verification code failed", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("save code: %w", err)
	}

	if err := s.mailer.SendVerificationCode(user.Email, code, "Email Verification"); err != nil {
		s.logger.Warn("send verification email failed", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("send verification: %w", err)
	}

	s.logger.Info("verification code issued", slog.String("email", email))
	return nil
}

// VerifyEmail 校验验证码。
//
// action 为 ActionResetPassword 时只校验不消费；其它情况下验证成功
// 会盖上邮箱验证时间戳并清空验证码（一次性）。
func (s *UserService) VerifyEmail(ctx context.Context, email, code, action string) error {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND otp = ? AND otp <> ''", email, code).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequest("Invalid or expired verification code, resend code.")
		}
		return fmt.Errorf("query user: %w", err)
	}
	if !otpValid(user.OTPExpiresAt, s.now()) {
		return apperr.BadRequest("Invalid or expired verification code, resend code.")
	}

	if action == ActionResetPassword {
		return nil
	}

	now := s.now()
	updates := map[string]interface{}{
		"email_verified_at": &now,
		"otp":               "",
		"otp_expires_at":    nil,
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		s.logger.Error("verify failed", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("verify email: %w", err)
	}

	s.logger.Info("email verified", slog.String("email", email))
	return nil
}

// Login 校验凭证并返回用户。
//
// "用户不存在"和"密码错误"返回同一条消息，不暴露哪一项失败；
// 凭证通过但邮箱未验证时单独报 NotVerified。
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unprocessable("The provided credentials are incorrect.")
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Unprocessable("The provided credentials are incorrect.")
	}

	if !user.IsVerified() {
		return nil, apperr.Unprocessable("Email not verified.")
	}

	return &user, nil
}

// ForgotPassword 为重置密码发送验证码。
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	return s.IssueCode(ctx, email)
}

// ResetPassword 校验验证码后更换密码。
//
// 新密码哈希与验证码清空在同一次更新里落库。
func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND otp = ? AND otp <> ''", email, code).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequest("Invalid or expired verification code.")
		}
		return fmt.Errorf("query user: %w", err)
	}
	if !otpValid(user.OTPExpiresAt, s.now()) {
		return apperr.BadRequest("Invalid or expired verification code.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	updates := map[string]interface{}{
		"password":       string(hash),
		"otp":            "",
		"otp_expires_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		s.logger.Error("reset password failed", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("reset password: %w", err)
	}

	s.logger.Info("password reset", slog.String("email", email))
	return nil
}

// Profile 返回用户资料。
func (s *UserService) Profile(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Resource not found.")
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// UpdateProfile 更新名称与用户名。
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, name, username string) (*model.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("username = ? AND id <> ?", username, userID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("Username already taken.")
	}

	updates := map[string]interface{}{
		"name":     name,
		"username": username,
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		s.logger.Error("update profile failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return s.Profile(ctx, userID)
}

// ChangePassword 校验当前密码后更换密码。其它会话的令牌保持有效。
func (s *UserService) ChangePassword(ctx context.Context, userID uint, current, newPassword string) error {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Resource not found.")
		}
		return fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return apperr.BadRequest("Invalid current password.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password", string(hash)).Error; err != nil {
		s.logger.Error("change password failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		return fmt.Errorf("change password: %w", err)
	}

	s.logger.Info("password changed", slog.Uint64("user_id", uint64(userID)))
	return nil
}

// conflictFromDuplicate 把撞到唯一索引的写入错误映射成 409。
//
// 注册时的计数检查先行，但两个并发注册可以同时通过计数，
// 输掉的那个直到 Create 才碰到唯一索引，不能漏成 500。
func conflictFromDuplicate(err error) *apperr.Error {
	var myErr *mysql.MySQLError
	dup := errors.Is(err, gorm.ErrDuplicatedKey) ||
		(errors.As(err, &myErr) && myErr.Number == 1062)
	if !dup {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "username") {
		return apperr.Conflict("Username already taken.")
	}
	return apperr.Conflict("Email already taken.")
}

// generateOTP 生成 [100000, 999999] 区间的均匀随机 6 位验证码。
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// otpValid 判断验证码在 now 时刻是否有效。
// 恰好等于过期时刻的验证码视为仍然有效（now ≤ expiry）。
func otpValid(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return !now.After(*expiresAt)
}
