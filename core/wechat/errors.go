package wechat

import "fmt"

// UpstreamError 微信接口调用失败
// 包含微信返回的业务错误码，或底层传输错误。
type UpstreamError struct {
	Op      string // 出错的操作，如 "exchange code"
	ErrCode int    // 微信返回的 errcode，传输失败时为 0
	ErrMsg  string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wechat %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("wechat %s: errcode=%d errmsg=%s", e.Op, e.ErrCode, e.ErrMsg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
