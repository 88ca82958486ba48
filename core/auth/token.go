package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"TaskHub/model"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken token 无法解析或签名不匹配
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionRevoked refresh token 的会话已被撤销或轮换
	ErrSessionRevoked = errors.New("session revoked")
)

// Claims 自定义JWT声明
type Claims struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair 一次签发的访问/刷新令牌对
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionStore 记录有效的 refresh token 会话（jti -> userID）。
// 刷新时轮换，登出时删除。
type SessionStore interface {
	Put(ctx context.Context, jti string, userID int64, ttl time.Duration) error
	Get(ctx context.Context, jti string) (int64, bool, error)
	Delete(ctx context.Context, jti string) error
}

// Issuer 签发与校验会话令牌
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   SessionStore
	now        func() time.Time
}

// NewIssuer 创建令牌签发器
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, sessions SessionStore) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
		now:        time.Now,
	}
}

// WithClock 替换时钟，测试用
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) sign(user *model.User, tokenType string, ttl time.Duration, jti string) (string, error) {
	now := i.now()
	claims := &Claims{
		UserID:    user.ID,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// IssuePair 为用户签发访问/刷新令牌对，并登记 refresh 会话
func (i *Issuer) IssuePair(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := i.sign(user, tokenTypeAccess, i.accessTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}

	refreshJTI := uuid.NewString()
	refresh, err := i.sign(user, tokenTypeRefresh, i.refreshTTL, refreshJTI)
	if err != nil {
		return nil, err
	}

	if err := i.sessions.Put(ctx, refreshJTI, user.ID, i.refreshTTL); err != nil {
		return nil, fmt.Errorf("failed to register refresh session: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Parse 解析并校验访问令牌
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh 校验 refresh token 并轮换出新的令牌对
// 旧的 refresh 会话被删除，同一 refresh token 不能使用两次。
func (i *Issuer) Refresh(ctx context.Context, refreshToken string, user *model.User) (*TokenPair, error) {
	claims, err := i.parseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	_, ok, err := i.sessions.Get(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check refresh session: %w", err)
	}
	if !ok {
		return nil, ErrSessionRevoked
	}
	if err := i.sessions.Delete(ctx, claims.ID); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh session: %w", err)
	}

	return i.IssuePair(ctx, user)
}

// RefreshUserID 返回 refresh token 对应的用户ID，供边界层查库后调用 Refresh
func (i *Issuer) RefreshUserID(refreshToken string) (int64, error) {
	claims, err := i.parseRefresh(refreshToken)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (i *Issuer) parseRefresh(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
