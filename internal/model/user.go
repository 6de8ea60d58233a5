package model

import "time"

// User 表示系统用户。
//
// OTP 与 OTPExpiresAt 要么同时存在要么同时为空：
// 签发验证码时一起写入，验证消费时一起清空。
type User struct {
	ID       uint   `gorm:"primaryKey"`                    // 用户 ID
	Name     string `gorm:"type:varchar(100);not null"`    // 显示名称
	Username string `gorm:"type:varchar(50);uniqueIndex"`  // 用户名（唯一）
	Email    string `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password string `gorm:"not null"`                      // bcrypt 哈希

	EmailVerifiedAt *time.Time // 邮箱验证时间（null 表示未验证）
	OTP             string     `gorm:"type:varchar(16)"` // 邮箱验证码（空串表示无）
	OTPExpiresAt    *time.Time // 验证码过期时间

	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Tasks []Task `gorm:"foreignKey:UserID"`
}

// IsVerified 返回邮箱是否已验证。
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}
