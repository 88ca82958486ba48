package wechat

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

const defaultJSCodeURL = "https://api.weixin.qq.com/sns/jscode2session"

// SessionInfo 小程序登录凭证换取的身份信息
type SessionInfo struct {
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	SessionKey string `json:"session_key"`
}

// MiniClient 微信小程序登录客户端
type MiniClient struct {
	appID      string
	appSecret  string
	jscodeURL  string
	httpClient *http.Client
}

// NewMiniClient 创建小程序登录客户端
func NewMiniClient(appID, appSecret string) *MiniClient {
	return &MiniClient{
		appID:     appID,
		appSecret: appSecret,
		jscodeURL: defaultJSCodeURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURL 覆盖接口地址，测试用
func (m *MiniClient) SetBaseURL(jscodeURL string) {
	if jscodeURL != "" {
		m.jscodeURL = jscodeURL
	}
}

// ExchangeTicket 用小程序临时登录凭证换取 openid / unionid
func (m *MiniClient) ExchangeTicket(ctx context.Context, code string) (*SessionInfo, error) {
	params := url.Values{}
	params.Set("appid", m.appID)
	params.Set("secret", m.appSecret)
	params.Set("js_code", code)
	params.Set("grant_type", "authorization_code")

	// 复用网页客户端的请求逻辑
	c := &Client{httpClient: m.httpClient}
	var info SessionInfo
	if err := c.getJSON(ctx, "exchange ticket", m.jscodeURL, params, &info); err != nil {
		return nil, err
	}
	if info.OpenID == "" {
		return nil, &UpstreamError{Op: "exchange ticket", ErrMsg: "empty openid in response"}
	}
	return &info, nil
}
