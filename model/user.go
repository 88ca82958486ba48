package model

import "time"

// User 用户账号
// phone / wechat_openid / wechat_unionid 均为可空唯一键，
// 账号可以只有手机身份、只有微信身份，或两者都有。
type User struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username        string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	PasswordHash    string    `json:"-" gorm:"size:100"`
	Phone           *string   `json:"phone,omitempty" gorm:"size:20;uniqueIndex"`
	IsPhoneVerified bool      `json:"isPhoneVerified" gorm:"default:false"`
	Email           *string   `json:"email,omitempty" gorm:"size:100"`
	WechatOpenID    *string   `json:"-" gorm:"column:wechat_openid;size:100;uniqueIndex"`
	WechatUnionID   *string   `json:"-" gorm:"column:wechat_unionid;size:100;uniqueIndex"`
	WechatNickname  *string   `json:"wechatNickname,omitempty" gorm:"size:100"`
	WechatAvatar    *string   `json:"wechatAvatar,omitempty" gorm:"size:500"`
	LastLoginIP     *string   `json:"-" gorm:"size:45"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// HasWechatIdentity 是否已绑定微信身份
func (u *User) HasWechatIdentity() bool {
	return u.WechatOpenID != nil && *u.WechatOpenID != ""
}

// PhoneNumber returns the bound phone or "".
func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}
