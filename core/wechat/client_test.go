package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLoginURL(t *testing.T) {
	c := NewClient("wx-app", "wx-secret", "https://example.com/cb")
	raw := c.BuildLoginURL("state-1", "")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "#wechat_redirect", "#"+u.Fragment)

	q := u.Query()
	assert.Equal(t, "wx-app", q.Get("appid"))
	assert.Equal(t, "https://example.com/cb", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, ScopeLogin, q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	var gotQuery url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok",
			"openid":       "open-1",
			"unionid":      "union-1",
		})
	}))
	defer ts.Close()

	c := NewClient("wx-app", "wx-secret", "https://example.com/cb")
	c.SetBaseURLs("", ts.URL, "")

	info, err := c.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "tok", info.AccessToken)
	assert.Equal(t, "open-1", info.OpenID)
	assert.Equal(t, "union-1", info.UnionID)

	assert.Equal(t, "wx-app", gotQuery.Get("appid"))
	assert.Equal(t, "wx-secret", gotQuery.Get("secret"))
	assert.Equal(t, "auth-code", gotQuery.Get("code"))
	assert.Equal(t, "authorization_code", gotQuery.Get("grant_type"))
}

func TestExchangeCodeUpstreamError(t *testing.T) {
	// 微信错误返回与成功返回共用 200 状态码
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errcode": 40029,
			"errmsg":  "invalid code",
		})
	}))
	defer ts.Close()

	c := NewClient("wx-app", "wx-secret", "https://example.com/cb")
	c.SetBaseURLs("", ts.URL, "")

	_, err := c.ExchangeCode(context.Background(), "bad-code")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 40029, upstream.ErrCode)
	assert.Equal(t, "invalid code", upstream.ErrMsg)
}

func TestExchangeCodeEmptyOpenID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	}))
	defer ts.Close()

	c := NewClient("wx-app", "wx-secret", "https://example.com/cb")
	c.SetBaseURLs("", ts.URL, "")

	_, err := c.ExchangeCode(context.Background(), "auth-code")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestFetchProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"nickname":   "昵称",
			"headimgurl": "https://wx.example.com/a.jpg",
		})
	}))
	defer ts.Close()

	c := NewClient("wx-app", "wx-secret", "https://example.com/cb")
	c.SetBaseURLs("", "", ts.URL)

	profile, err := c.FetchProfile(context.Background(), "tok", "open-1")
	require.NoError(t, err)
	assert.Equal(t, "昵称", profile.Nickname)
	assert.Equal(t, "https://wx.example.com/a.jpg", profile.AvatarURL)
}

func TestMiniExchangeTicket(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "js-code", r.URL.Query().Get("js_code"))
		json.NewEncoder(w).Encode(map[string]string{
			"openid":      "open-mini",
			"unionid":     "union-1",
			"session_key": "sk",
		})
	}))
	defer ts.Close()

	m := NewMiniClient("mini-app", "mini-secret")
	m.SetBaseURL(ts.URL)

	info, err := m.ExchangeTicket(context.Background(), "js-code")
	require.NoError(t, err)
	assert.Equal(t, "open-mini", info.OpenID)
	assert.Equal(t, "union-1", info.UnionID)
	assert.Equal(t, "sk", info.SessionKey)
}

func TestMiniExchangeTicketError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errcode": 40163,
			"errmsg":  "code been used",
		})
	}))
	defer ts.Close()

	m := NewMiniClient("mini-app", "mini-secret")
	m.SetBaseURL(ts.URL)

	_, err := m.ExchangeTicket(context.Background(), "js-code")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 40163, upstream.ErrCode)
}
