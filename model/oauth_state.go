package model

import "time"

// OAuthState 微信登录防 CSRF 状态码
// 状态码一次性消费，过期或已使用的状态码不可再用于回调校验。
type OAuthState struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	State       string    `json:"state" gorm:"size:100;uniqueIndex;not null"`
	RedirectURL string    `json:"redirectUrl" gorm:"size:500;not null"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt" gorm:"not null"`
	IsUsed      bool      `json:"isUsed" gorm:"default:false"`
}

// TableName 指定表名
func (OAuthState) TableName() string {
	return "oauth_states"
}

// Expired 是否已过期
func (s *OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
