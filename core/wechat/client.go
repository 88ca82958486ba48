package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// 微信开放平台接口地址
const (
	defaultOAuthURL       = "https://open.weixin.qq.com/connect/qrconnect"
	defaultAccessTokenURL = "https://api.weixin.qq.com/sns/oauth2/access_token"
	defaultUserInfoURL    = "https://api.weixin.qq.com/sns/userinfo"
)

// ScopeLogin 网页扫码登录授权作用域
const ScopeLogin = "snsapi_login"

// TokenInfo 授权码换取的令牌信息
type TokenInfo struct {
	AccessToken string `json:"access_token"`
	OpenID      string `json:"openid"`
	UnionID     string `json:"unionid"`
}

// Profile 微信用户公开信息
type Profile struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"headimgurl"`
}

// Client 微信网页扫码登录客户端
type Client struct {
	appID          string
	appSecret      string
	redirectURI    string
	oauthURL       string
	accessTokenURL string
	userInfoURL    string
	httpClient     *http.Client
}

// NewClient 创建微信登录客户端
func NewClient(appID, appSecret, redirectURI string) *Client {
	return &Client{
		appID:          appID,
		appSecret:      appSecret,
		redirectURI:    redirectURI,
		oauthURL:       defaultOAuthURL,
		accessTokenURL: defaultAccessTokenURL,
		userInfoURL:    defaultUserInfoURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURLs 覆盖接口地址，测试用
func (c *Client) SetBaseURLs(oauthURL, accessTokenURL, userInfoURL string) {
	if oauthURL != "" {
		c.oauthURL = oauthURL
	}
	if accessTokenURL != "" {
		c.accessTokenURL = accessTokenURL
	}
	if userInfoURL != "" {
		c.userInfoURL = userInfoURL
	}
}

// BuildLoginURL 构建微信扫码登录URL，纯字符串拼接，不发起网络请求
func (c *Client) BuildLoginURL(state, scope string) string {
	if scope == "" {
		scope = ScopeLogin
	}
	params := url.Values{}
	params.Set("appid", c.appID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", scope)
	params.Set("state", state)
	return fmt.Sprintf("%s?%s#wechat_redirect", c.oauthURL, params.Encode())
}

// wxErr 微信统一错误返回
type wxErr struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	// 微信的错误返回和成功返回共用 200 状态码，先检查 errcode
	var we wxErr
	if err := json.Unmarshal(raw, &we); err == nil && we.ErrCode != 0 {
		return &UpstreamError{Op: op, ErrCode: we.ErrCode, ErrMsg: we.ErrMsg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	return nil
}

// ExchangeCode 用授权临时票据换取访问令牌和用户标识
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenInfo, error) {
	params := url.Values{}
	params.Set("appid", c.appID)
	params.Set("secret", c.appSecret)
	params.Set("code", code)
	params.Set("grant_type", "authorization_code")

	var info TokenInfo
	if err := c.getJSON(ctx, "exchange code", c.accessTokenURL, params, &info); err != nil {
		return nil, err
	}
	if info.OpenID == "" {
		return nil, &UpstreamError{Op: "exchange code", ErrMsg: "empty openid in response"}
	}
	return &info, nil
}

// FetchProfile 拉取微信用户昵称和头像
func (c *Client) FetchProfile(ctx context.Context, accessToken, openID string) (*Profile, error) {
	params := url.Values{}
	params.Set("access_token", accessToken)
	params.Set("openid", openID)
	params.Set("lang", "zh_CN")

	var profile Profile
	if err := c.getJSON(ctx, "fetch profile", c.userInfoURL, params, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
