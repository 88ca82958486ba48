package model

import "time"

// CodePurpose 验证码用途，限定验证码只能用于对应的流程
type CodePurpose string

const (
	PurposeRegister      CodePurpose = "register"
	PurposeLogin         CodePurpose = "login"
	PurposeResetPassword CodePurpose = "reset_password"
	PurposeBindPhone     CodePurpose = "bind_phone"
)

// ValidPurpose 检查用途取值是否合法
func ValidPurpose(p CodePurpose) bool {
	switch p {
	case PurposeRegister, PurposeLogin, PurposeResetPassword, PurposeBindPhone:
		return true
	}
	return false
}

// VerificationCode 短信验证码记录
// 同一手机号同一用途可以同时存在多条记录，校验时取最新一条；
// 记录只会被标记为已使用，不会删除，过期后自然失效。
type VerificationCode struct {
	ID        int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	Phone     string      `json:"phone" gorm:"size:20;index:idx_code_lookup;not null"`
	Code      string      `json:"-" gorm:"size:10;not null"`
	Purpose   CodePurpose `json:"purpose" gorm:"size:20;index:idx_code_lookup;not null"`
	CreatedAt time.Time   `json:"createdAt" gorm:"index"`
	ExpiresAt time.Time   `json:"expiresAt" gorm:"not null"`
	IsUsed    bool        `json:"isUsed" gorm:"default:false"`
}

// TableName 指定表名
func (VerificationCode) TableName() string {
	return "verification_codes"
}

// Expired 是否已过期
func (c *VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
