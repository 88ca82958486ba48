package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"TaskHub/core/auth"
	"TaskHub/core/wechat"
	"TaskHub/logger"
	"TaskHub/model"
	"TaskHub/repository"
)

// AvatarMirror 把微信头像转存到自有对象存储，返回可对外访问的URL。
// 转存失败不阻断登录。
type AvatarMirror interface {
	Mirror(ctx context.Context, openID, avatarURL string) (string, error)
}

// LoginResult 各登录协议的统一结果
type LoginResult struct {
	User              *model.User `json:"user"`
	IsNewUser         bool        `json:"isNewUser"`
	NeedsPhoneBinding bool        `json:"needsPhoneBinding"`
	AccessToken       string      `json:"accessToken"`
	RefreshToken      string      `json:"refreshToken"`
	RedirectURL       string      `json:"redirectUrl,omitempty"`
}

// Resolver 身份归并核心
// 对每个登录渠道决定入站凭据落到哪条用户记录上：
// 按唯一键查找、首次使用时创建、冲突时合并。
type Resolver struct {
	users    repository.UserRepository
	states   repository.StateRepository
	codes    *CodeService
	wx       *wechat.Client
	wxMini   *wechat.MiniClient
	issuer   *auth.Issuer
	avatars  AvatarMirror
	stateTTL time.Duration
	now      Clock
}

// NewResolver 创建身份归并服务
func NewResolver(
	users repository.UserRepository,
	states repository.StateRepository,
	codes *CodeService,
	wx *wechat.Client,
	wxMini *wechat.MiniClient,
	issuer *auth.Issuer,
	stateTTL time.Duration,
) *Resolver {
	return &Resolver{
		users:    users,
		states:   states,
		codes:    codes,
		wx:       wx,
		wxMini:   wxMini,
		issuer:   issuer,
		stateTTL: stateTTL,
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试用
func (r *Resolver) WithClock(now Clock) *Resolver {
	r.now = now
	return r
}

// WithAvatarMirror 启用头像转存
func (r *Resolver) WithAvatarMirror(m AvatarMirror) *Resolver {
	r.avatars = m
	return r
}

func strPtr(s string) *string {
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// randomUsername 生成随机用户名
func randomUsername() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// wechatUsername 从 openid 派生用户名
func wechatUsername(prefix, openID string) string {
	tail := openID
	if len(tail) > 8 {
		tail = tail[:8]
	}
	return prefix + tail
}

func (r *Resolver) issueTokens(ctx context.Context, user *model.User) (*auth.TokenPair, error) {
	return r.issuer.IssuePair(ctx, user)
}

func (r *Resolver) recordLoginIP(ctx context.Context, user *model.User, ip string) {
	if ip == "" {
		return
	}
	user.LastLoginIP = strPtr(ip)
	if err := r.users.Save(ctx, user, "last_login_ip"); err != nil {
		// 登录IP只是审计信息，写失败不阻断登录
		logger.Warn("记录登录IP失败", logger.Int64("userID", user.ID), logger.ErrorField(err))
	}
}

// Register 手机号+验证码+密码注册
// 先消费验证码再查重，重复注册报 ErrDuplicatePhone。
func (r *Resolver) Register(ctx context.Context, phone, code, password, username, ip string) (*LoginResult, error) {
	if err := r.codes.Verify(ctx, phone, code, model.PurposeRegister); err != nil {
		return nil, err
	}

	existing, err := r.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicatePhone
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if username == "" {
		username = randomUsername()
	}

	user := &model.User{
		Username:        username,
		PasswordHash:    hash,
		Phone:           strPtr(phone),
		IsPhoneVerified: true,
	}
	if err := r.users.Create(ctx, user); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, ErrDuplicatePhone
		}
		return nil, err
	}

	r.recordLoginIP(ctx, user, ip)
	tokens, err := r.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, IsNewUser: true, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// LoginWithPassword 手机号密码登录
func (r *Resolver) LoginWithPassword(ctx context.Context, phone, password, ip string) (*LoginResult, error) {
	user, err := r.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotRegistered
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrBadCredentials
	}

	r.recordLoginIP(ctx, user, ip)
	tokens, err := r.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// LoginWithCode 手机号验证码登录，账号不存在时自动注册
func (r *Resolver) LoginWithCode(ctx context.Context, phone, code, ip string) (*LoginResult, error) {
	if err := r.codes.Verify(ctx, phone, code, model.PurposeLogin); err != nil {
		return nil, err
	}

	isNew := false
	user, err := r.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{
			Username:        randomUsername(),
			Phone:           strPtr(phone),
			IsPhoneVerified: true,
		}
		if err := r.users.Create(ctx, user); err != nil {
			if !repository.IsDuplicateKey(err) {
				return nil, err
			}
			// 并发登录创建同一手机号，落败方转为查询
			user, err = r.users.FindByPhone(ctx, phone)
			if err != nil {
				return nil, err
			}
			if user == nil {
				return nil, fmt.Errorf("user vanished after duplicate-key retry for phone %s", phone)
			}
		} else {
			isNew = true
		}
	}

	r.recordLoginIP(ctx, user, ip)
	tokens, err := r.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, IsNewUser: isNew, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// WechatLoginURL 生成微信扫码登录URL并登记防CSRF状态码
func (r *Resolver) WechatLoginURL(ctx context.Context, redirectURL string) (string, string, error) {
	state := uuid.NewString()
	now := r.now()
	rec := &model.OAuthState{
		State:       state,
		RedirectURL: redirectURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.stateTTL),
	}
	if err := r.states.Create(ctx, rec); err != nil {
		return "", "", err
	}
	return r.wx.BuildLoginURL(state, wechat.ScopeLogin), state, nil
}

// findByWechat 按 unionid 优先、openid 兜底查找用户
func (r *Resolver) findByWechat(ctx context.Context, openID, unionID string) (*model.User, error) {
	if unionID != "" {
		user, err := r.users.FindByWechatUnionID(ctx, unionID)
		if err != nil || user != nil {
			return user, err
		}
	}
	return r.users.FindByWechatOpenID(ctx, openID)
}

// WechatWebLogin 微信网页扫码登录回调处理
// 消费状态码 → 换取令牌 → 拉取资料 → 身份归并。
// 已有账号的微信资料以本次返回为准整体覆盖。
func (r *Resolver) WechatWebLogin(ctx context.Context, code, state, ip string) (*LoginResult, error) {
	stateRec, result, err := r.states.Consume(ctx, state, r.now())
	if err != nil {
		return nil, err
	}
	switch result {
	case repository.ConsumeExpired:
		return nil, ErrStateExpired
	case repository.ConsumeInvalid:
		return nil, ErrStateNotFound
	}

	token, err := r.wx.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := r.wx.FetchProfile(ctx, token.AccessToken, token.OpenID)
	if err != nil {
		return nil, err
	}

	avatarURL := profile.AvatarURL
	if r.avatars != nil && avatarURL != "" {
		if mirrored, err := r.avatars.Mirror(ctx, token.OpenID, avatarURL); err != nil {
			logger.Warn("微信头像转存失败", logger.String("openid", token.OpenID), logger.ErrorField(err))
		} else {
			avatarURL = mirrored
		}
	}

	isNew := false
	user, err := r.findByWechat(ctx, token.OpenID, token.UnionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{
			Username:       wechatUsername("wx_", token.OpenID),
			WechatOpenID:   strPtr(token.OpenID),
			WechatNickname: strPtr(profile.Nickname),
			WechatAvatar:   strPtr(avatarURL),
		}
		if token.UnionID != "" {
			user.WechatUnionID = strPtr(token.UnionID)
		}
		if err := r.users.Create(ctx, user); err != nil {
			if !repository.IsDuplicateKey(err) {
				return nil, err
			}
			user, err = r.findByWechat(ctx, token.OpenID, token.UnionID)
			if err != nil {
				return nil, err
			}
			if user == nil {
				return nil, ErrDuplicateOpenid
			}
		} else {
			isNew = true
		}
	}

	if !isNew {
		// 网页登录把微信资料当作权威来源，每次覆盖
		user.WechatOpenID = strPtr(token.OpenID)
		if token.UnionID != "" {
			user.WechatUnionID = strPtr(token.UnionID)
		}
		user.WechatNickname = strPtr(profile.Nickname)
		user.WechatAvatar = strPtr(avatarURL)
		fields := []string{"wechat_openid", "wechat_nickname", "wechat_avatar"}
		if token.UnionID != "" {
			fields = append(fields, "wechat_unionid")
		}
		if err := r.users.Save(ctx, user, fields...); err != nil {
			// 并发首登可能在读和写之间建出持有该 openid 的账号
			if repository.IsDuplicateKey(err) {
				return nil, ErrDuplicateOpenid
			}
			return nil, err
		}
	}

	r.recordLoginIP(ctx, user, ip)
	tokens, err := r.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:              user,
		IsNewUser:         isNew,
		NeedsPhoneBinding: isNew && deref(user.Phone) == "",
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		RedirectURL:       stateRec.RedirectURL,
	}, nil
}

// WechatMiniLogin 微信小程序登录
// 与网页登录归并顺序一致，但已有账号的字段只补空不覆盖。
func (r *Resolver) WechatMiniLogin(ctx context.Context, ticket string) (*LoginResult, error) {
	session, err := r.wxMini.ExchangeTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	isNew := false
	user, err := r.findByWechat(ctx, session.OpenID, session.UnionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{
			Username:     wechatUsername("微信用户_", session.OpenID),
			WechatOpenID: strPtr(session.OpenID),
		}
		if session.UnionID != "" {
			user.WechatUnionID = strPtr(session.UnionID)
		}
		if err := r.users.Create(ctx, user); err != nil {
			if !repository.IsDuplicateKey(err) {
				return nil, err
			}
			user, err = r.findByWechat(ctx, session.OpenID, session.UnionID)
			if err != nil {
				return nil, err
			}
			if user == nil {
				return nil, ErrDuplicateOpenid
			}
		} else {
			isNew = true
		}
	}

	if !isNew {
		var fields []string
		if deref(user.WechatOpenID) == "" && session.OpenID != "" {
			user.WechatOpenID = strPtr(session.OpenID)
			fields = append(fields, "wechat_openid")
		}
		if deref(user.WechatUnionID) == "" && session.UnionID != "" {
			user.WechatUnionID = strPtr(session.UnionID)
			fields = append(fields, "wechat_unionid")
		}
		if len(fields) > 0 {
			if err := r.users.Save(ctx, user, fields...); err != nil {
				if repository.IsDuplicateKey(err) {
					return nil, ErrDuplicateOpenid
				}
				return nil, err
			}
		}
	}

	tokens, err := r.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:              user,
		IsNewUser:         isNew,
		NeedsPhoneBinding: deref(user.Phone) == "",
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
	}, nil
}

// BindPhone 为当前账号绑定手机号，必要时合并持有该手机号的旧账号
// 字段拷贝、旧账号删除、手机号绑定在同一事务内完成。
func (r *Resolver) BindPhone(ctx context.Context, userID int64, phone, code string, merge bool) (*model.User, error) {
	current, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}

	if err := r.codes.Verify(ctx, phone, code, model.PurposeBindPhone); err != nil {
		return nil, err
	}

	err = r.users.Transaction(ctx, func(txRepo repository.UserRepository) error {
		existing, err := txRepo.FindByPhone(ctx, phone)
		if err != nil {
			return err
		}

		fields := []string{"phone", "is_phone_verified"}
		if existing != nil && existing.ID != current.ID {
			if !merge {
				return ErrPhoneInUse
			}
			// 只补当前账号的空字段，已有的微信身份保持不变
			if deref(current.WechatOpenID) == "" && deref(existing.WechatOpenID) != "" {
				current.WechatOpenID = existing.WechatOpenID
				fields = append(fields, "wechat_openid")
			}
			if deref(current.WechatUnionID) == "" && deref(existing.WechatUnionID) != "" {
				current.WechatUnionID = existing.WechatUnionID
				fields = append(fields, "wechat_unionid")
			}
			if deref(current.WechatNickname) == "" && deref(existing.WechatNickname) != "" {
				current.WechatNickname = existing.WechatNickname
				fields = append(fields, "wechat_nickname")
			}
			if deref(current.WechatAvatar) == "" && deref(existing.WechatAvatar) != "" {
				current.WechatAvatar = existing.WechatAvatar
				fields = append(fields, "wechat_avatar")
			}
			// 旧账号必须先删除，否则手机号唯一约束会挡住绑定
			if err := txRepo.Delete(ctx, existing); err != nil {
				return err
			}
		}

		current.Phone = strPtr(phone)
		current.IsPhoneVerified = true
		if err := txRepo.Save(ctx, current, fields...); err != nil {
			// 事务内读到无人占用后，并发绑定的赢家可能已经抢到了唯一约束
			if repository.IsDuplicateKey(err) {
				return ErrPhoneInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// RefreshTokens 校验 refresh token 并轮换新令牌对
func (r *Resolver) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	userID, err := r.issuer.RefreshUserID(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrSessionRevoked
	}
	tokens, err := r.issuer.Refresh(ctx, refreshToken, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// GetUser 查询用户
func (r *Resolver) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return r.users.FindByID(ctx, id)
}

// UpdateProfile 更新用户名/邮箱
func (r *Resolver) UpdateProfile(ctx context.Context, id int64, username, email *string) (*model.User, error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", id)
	}

	var fields []string
	if username != nil && *username != "" {
		user.Username = *username
		fields = append(fields, "username")
	}
	if email != nil {
		user.Email = email
		fields = append(fields, "email")
	}
	if len(fields) == 0 {
		return user, nil
	}
	if err := r.users.Save(ctx, user, fields...); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("username already taken: %w", err)
		}
		return nil, err
	}
	return user, nil
}
