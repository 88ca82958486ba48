package server

import (
	"net/http"
	"net/url"
	"strconv"

	"TaskHub/logger"
	"TaskHub/model"
	"TaskHub/repository"
)

// RegisterRequest 手机号注册请求体
type RegisterRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// RegisterHandler 手机号+验证码注册
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !validPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, codeValidation, "手机号格式错误")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "验证码不能为空")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, codeValidation, "密码长度不能小于6位")
		return
	}

	result, err := h.accounts.Register(r.Context(), req.Phone, req.Code, req.Password, req.Username, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger.Info("[Register] 注册成功",
		logger.Int64("userID", result.User.ID),
		logger.String("phone", req.Phone))
	writeSuccess(w, http.StatusCreated, result)
}

// PhonePasswordLoginHandler 手机号+密码登录
func (h *APIHandler) PhonePasswordLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "手机号和密码不能为空")
		return
	}

	result, err := h.accounts.LoginWithPassword(r.Context(), req.Phone, req.Password, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger.Info("[Login] 密码登录成功", logger.Int64("userID", result.User.ID))
	writeSuccess(w, http.StatusOK, result)
}

// PhoneCodeLoginHandler 手机号+验证码登录，未注册时自动建号
func (h *APIHandler) PhoneCodeLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !validPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, codeValidation, "手机号格式错误")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "验证码不能为空")
		return
	}

	result, err := h.accounts.LoginWithCode(r.Context(), req.Phone, req.Code, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger.Info("[Login] 验证码登录成功",
		logger.Int64("userID", result.User.ID),
		logger.Bool("isNewUser", result.IsNewUser))
	writeSuccess(w, http.StatusOK, result)
}

// SendCodeHandler 发送短信验证码
func (h *APIHandler) SendCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Purpose string `json:"purpose"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !validPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, codeValidation, "手机号格式错误")
		return
	}

	purpose := model.CodePurpose(req.Purpose)
	if !model.ValidPurpose(purpose) {
		writeError(w, http.StatusBadRequest, codeValidation, "不支持的验证码用途")
		return
	}

	rec, err := h.codes.Issue(r.Context(), req.Phone, purpose)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"phone":     rec.Phone,
		"expiresAt": rec.ExpiresAt,
	})
}

// WechatLoginURLHandler 生成微信扫码登录跳转地址
func (h *APIHandler) WechatLoginURLHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	loginURL, state, err := h.accounts.WechatLoginURL(r.Context(), req.RedirectURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{
		"loginUrl": loginURL,
		"state":    state,
	})
}

// WechatCallbackHandler 微信网页授权回调
// GET 由微信服务器跳转触发，POST 供前端把 code/state 转交给后端。
func (h *APIHandler) WechatCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var code, state string
	if r.Method == http.MethodGet {
		code = r.URL.Query().Get("code")
		state = r.URL.Query().Get("state")
	} else {
		var req struct {
			Code  string `json:"code"`
			State string `json:"state"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		code, state = req.Code, req.State
	}

	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "缺少code或state参数")
		return
	}

	result, err := h.accounts.WechatWebLogin(r.Context(), code, state, clientIP(r))
	if err != nil {
		h.notifier.NotifyFailure(state)
		writeServiceError(w, err)
		return
	}

	// 推给还挂在扫码页上的 WebSocket 连接
	h.notifier.NotifySuccess(state, result)

	logger.Info("[WechatLogin] 网页授权登录成功",
		logger.Int64("userID", result.User.ID),
		logger.Bool("isNewUser", result.IsNewUser))

	// 微信服务器直接跳转过来的 GET 请求带回前端页面，令牌挂在查询串上
	if r.Method == http.MethodGet && result.RedirectURL != "" {
		target, err := url.Parse(result.RedirectURL)
		if err == nil {
			q := target.Query()
			q.Set("access_token", result.AccessToken)
			q.Set("refresh_token", result.RefreshToken)
			q.Set("is_new_user", strconv.FormatBool(result.IsNewUser))
			target.RawQuery = q.Encode()
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
		logger.Warn("回跳地址解析失败", logger.String("redirectUrl", result.RedirectURL), logger.ErrorField(err))
	}
	writeSuccess(w, http.StatusOK, result)
}

// WechatMiniLoginHandler 小程序登录
func (h *APIHandler) WechatMiniLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "code不能为空")
		return
	}

	result, err := h.accounts.WechatMiniLogin(r.Context(), req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger.Info("[WechatLogin] 小程序登录成功",
		logger.Int64("userID", result.User.ID),
		logger.Bool("isNewUser", result.IsNewUser))
	writeSuccess(w, http.StatusOK, result)
}

// BindPhoneHandler 为当前登录账号绑定手机号
func (h *APIHandler) BindPhoneHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "未登录")
		return
	}

	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
		Merge bool   `json:"merge"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !validPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, codeValidation, "手机号格式错误")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "验证码不能为空")
		return
	}

	user, err := h.accounts.BindPhone(r.Context(), userID, req.Phone, req.Code, req.Merge)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger.Info("[BindPhone] 绑定成功",
		logger.Int64("userID", userID),
		logger.String("phone", req.Phone))
	writeSuccess(w, http.StatusOK, user)
}

// RefreshTokenHandler 用 refresh token 换新令牌对
func (h *APIHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "refreshToken不能为空")
		return
	}

	result, err := h.accounts.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// ProfileHandler 查询当前用户资料
func (h *APIHandler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "未登录")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "用户不存在")
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// UpdateProfileHandler 更新当前用户资料
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "未登录")
		return
	}

	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, req.Username, req.Email)
	if err != nil {
		if repository.IsDuplicateKey(err) {
			writeError(w, http.StatusConflict, codeIntegrity, "用户名已被占用")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}
