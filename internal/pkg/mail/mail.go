package mail

import (
	"fmt"
	"log/slog"
	"strings"

	"taskmanager/internal/config"

	"gopkg.in/gomail.v2"
)

// Sender 定义验证码邮件发送接口。
type Sender interface {
	// SendVerificationCode 发送验证码邮件。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   code: 6 位数字验证码
	//   title: 邮件标题（如 "Email Verification" / "Password Reset"）
	SendVerificationCode(toEmail string, code string, title string) error
}

// EmailNotifier 基于 SMTP 实现 Sender。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件发送器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendVerificationCode 发送验证码邮件。
func (n *EmailNotifier) SendVerificationCode(toEmail string, code string, title string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}
	if title == "" {
		title = "Email Verification"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[TaskManager] "+title)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>You are almost there!</h2>
    <p style="text-align: left">Your verification code is</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>The code expires in 20 minutes.</p>
  </div>
</body>
</html>`, code)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("verification email sent", slog.String("to", toEmail), slog.String("title", title))
	return nil
}
