package service

import (
	"io"
	"log/slog"
	"testing"

	"taskmanager/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// newTestDB 返回一个迁移完成的内存 SQLite 库。
// 连接数限制为 1，否则每个连接会各自拿到一个空的 :memory: 库。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.SharedTask{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSender 记录最后一次发出的验证码，可注入发送失败。
type stubSender struct {
	lastEmail string
	lastCode  string
	sendErr   error
	calls     int
}

func (s *stubSender) SendVerificationCode(toEmail, code, title string) error {
	s.calls++
	if s.sendErr != nil {
		return s.sendErr
	}
	s.lastEmail = toEmail
	s.lastCode = code
	return nil
}
