package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TaskHub/config"
	"TaskHub/logger"
	"TaskHub/model"
)

// Sender 短信下发能力接口
// 沙箱实现只打日志，生产实现调用第三方网关，启动时按配置选择一次。
type Sender interface {
	Send(ctx context.Context, phone, code string, purpose model.CodePurpose) error
}

// SandboxSender 沙箱短信服务，不实际发送短信
type SandboxSender struct{}

// Send 仅记录日志
func (s *SandboxSender) Send(ctx context.Context, phone, code string, purpose model.CodePurpose) error {
	logger.Info("[沙箱] 发送验证码",
		logger.String("phone", phone),
		logger.String("code", code),
		logger.String("purpose", string(purpose)))
	return nil
}

// GatewaySender 第三方短信网关
type GatewaySender struct {
	apiURL     string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewGatewaySender 创建网关短信服务
func NewGatewaySender(apiURL, apiKey, apiSecret string) *GatewaySender {
	return &GatewaySender{
		apiURL:    apiURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

type gatewayRequest struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type gatewayResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send 调用网关下发验证码短信
func (s *GatewaySender) Send(ctx context.Context, phone, code string, purpose model.CodePurpose) error {
	payload := gatewayRequest{
		Phone:     phone,
		Message:   fmt.Sprintf("您的验证码是: %s，5分钟内有效，请勿泄露。", code),
		APIKey:    s.apiKey,
		APISecret: s.apiSecret,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode sms gateway response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("sms gateway error %d: %s", result.Code, result.Message)
	}

	logger.Info("验证码短信已下发",
		logger.String("phone", phone),
		logger.String("purpose", string(purpose)))
	return nil
}

// NewSenderFromConfig 按配置选择短信实现
func NewSenderFromConfig(cfg *config.Config) Sender {
	if cfg.SMSSandbox {
		return &SandboxSender{}
	}
	return NewGatewaySender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.SMSAPISecret)
}
