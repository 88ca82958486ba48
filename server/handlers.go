package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"TaskHub/config"
	"TaskHub/core/account"
	"TaskHub/core/auth"
	"TaskHub/core/wechat"
	"TaskHub/logger"
	"TaskHub/repository"
)

// 业务错误码，与前端约定保持一致
const (
	codeOK              = 0
	codeAuthFailed      = 1001
	codeUnauthenticated = 1002
	codeNotFound        = 1004
	codeValidation      = 1006
	codeThrottled       = 1007
	codeIntegrity       = 1008
	codeUpstream        = 2001
	codeInternal        = 9999
)

// APIHandler 处理所有API请求
type APIHandler struct {
	accounts *account.Resolver
	codes    *account.CodeService
	taskRepo *repository.TaskRepository
	issuer   *auth.Issuer
	notifier *LoginNotifier
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	accounts *account.Resolver,
	codes *account.CodeService,
	taskRepo *repository.TaskRepository,
	issuer *auth.Issuer,
	notifier *LoginNotifier,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		accounts: accounts,
		codes:    codes,
		taskRepo: taskRepo,
		issuer:   issuer,
		notifier: notifier,
		cfg:      cfg,
	}
}

// pagination 分页信息，挂在响应信封上
type pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	TotalItems int64 `json:"total_items"`
}

// apiResponse 统一响应信封
type apiResponse struct {
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, apiResponse{Code: codeOK, Message: "success", Data: data})
}

func writePage(w http.ResponseWriter, data interface{}, p *pagination) {
	writeJSON(w, http.StatusOK, apiResponse{Code: codeOK, Message: "success", Data: data, Pagination: p})
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, apiResponse{Code: code, Message: message, Data: nil})
}

// writeServiceError 将业务层错误翻译为响应信封
func writeServiceError(w http.ResponseWriter, err error) {
	var upstream *wechat.UpstreamError

	switch {
	case errors.Is(err, account.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, codeValidation, "验证码无效或已使用")
	case errors.Is(err, account.ErrExpiredCode):
		writeError(w, http.StatusBadRequest, codeValidation, "验证码已过期")
	case errors.Is(err, account.ErrCodeCooldown):
		writeError(w, http.StatusTooManyRequests, codeThrottled, "发送过于频繁，请稍后再试")
	case errors.Is(err, account.ErrDuplicatePhone):
		writeError(w, http.StatusBadRequest, codeValidation, "该手机号已注册")
	case errors.Is(err, account.ErrNotRegistered):
		writeError(w, http.StatusBadRequest, codeValidation, "该手机号未注册")
	case errors.Is(err, account.ErrBadCredentials):
		writeError(w, http.StatusBadRequest, codeAuthFailed, "手机号或密码错误")
	case errors.Is(err, account.ErrPhoneInUse):
		writeError(w, http.StatusConflict, codeIntegrity, "该手机号已被其他账号绑定")
	case errors.Is(err, account.ErrDuplicateOpenid):
		writeError(w, http.StatusConflict, codeIntegrity, "该微信账号已被绑定")
	case errors.Is(err, account.ErrStateNotFound):
		writeError(w, http.StatusBadRequest, codeAuthFailed, "无效的微信登录状态，请重新发起登录")
	case errors.Is(err, account.ErrStateExpired):
		writeError(w, http.StatusBadRequest, codeAuthFailed, "微信登录状态已过期，请重新发起登录")
	case errors.Is(err, account.ErrSMSDelivery):
		writeError(w, http.StatusInternalServerError, codeUpstream, "验证码发送失败，请稍后重试")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "登录已失效，请重新登录")
	case errors.As(err, &upstream):
		logger.Error("微信接口调用失败", logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, codeUpstream, "微信服务暂不可用，请稍后重试")
	default:
		logger.Error("未分类的业务错误", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
	}
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{5,20}$`)

func validPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "请求体格式错误")
		return false
	}
	return true
}

// clientIP 解析客户端真实IP，优先取反向代理头
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "缺少Authorization请求头")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Authorization请求头格式错误")
			return
		}

		claims, err := h.issuer.Parse(parts[1])
		if err != nil {
			logger.Debug("Token校验失败", logger.ErrorField(err))
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "登录已失效，请重新登录")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
