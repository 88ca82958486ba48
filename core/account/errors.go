package account

import "errors"

// 认证流程的预期失败结果，由边界层映射为对外错误码。
var (
	// ErrInvalidCode 验证码不存在、不匹配或已被使用
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrExpiredCode 验证码存在但已过期
	ErrExpiredCode = errors.New("verification code expired")
	// ErrCodeCooldown 冷却期内重复请求发码
	ErrCodeCooldown = errors.New("verification code requested too frequently")
	// ErrDuplicatePhone 手机号已被注册
	ErrDuplicatePhone = errors.New("phone already registered")
	// ErrDuplicateOpenid 微信身份已被其他账号占用
	ErrDuplicateOpenid = errors.New("wechat identity already bound")
	// ErrNotRegistered 手机号没有对应账号
	ErrNotRegistered = errors.New("phone not registered")
	// ErrBadCredentials 密码错误
	ErrBadCredentials = errors.New("bad credentials")
	// ErrPhoneInUse 绑定的手机号已被其他账号持有且未请求合并
	ErrPhoneInUse = errors.New("phone in use by another account")
	// ErrStateNotFound 微信登录状态码无效或已被使用
	ErrStateNotFound = errors.New("oauth state not found")
	// ErrStateExpired 微信登录状态码已过期
	ErrStateExpired = errors.New("oauth state expired")
	// ErrSMSDelivery 验证码已落库但短信下发失败
	ErrSMSDelivery = errors.New("sms delivery failed")
)
