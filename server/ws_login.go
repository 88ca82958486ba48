package server

import (
	"net/http"
	"sync"
	"time"

	"TaskHub/core/account"
	"TaskHub/logger"

	"github.com/gorilla/websocket"
)

const (
	loginWriteWait = 10 * time.Second // 写入超时
	loginWaitLimit = 10 * time.Minute // 扫码等待上限，与state有效期对齐
)

// loginEvent 推送给扫码页的登录结果
type loginEvent struct {
	Event  string               `json:"event"` // success / failure / timeout
	Result *account.LoginResult `json:"result,omitempty"`
}

// LoginNotifier 按state维护扫码页的WebSocket连接，
// 回调命中后把登录结果实时推给等待中的页面。
type LoginNotifier struct {
	upgrader    websocket.Upgrader
	connections sync.Map // map[string]*websocket.Conn - state to connection
}

// NewLoginNotifier creates a new LoginNotifier.
func NewLoginNotifier() *LoginNotifier {
	return &LoginNotifier{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// WaitHandler 扫码页建立WebSocket连接，等待该state的登录结果
func (n *LoginNotifier) WaitHandler(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Error(w, "state required", http.StatusBadRequest)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	// 同一个state重复连接时，踢掉旧连接
	if old, loaded := n.connections.LoadAndDelete(state); loaded {
		old.(*websocket.Conn).Close()
	}
	n.connections.Store(state, conn)

	logger.Debug("扫码等待连接建立", logger.String("state", state))

	// 读循环只为感知断开；到达等待上限后主动收尾
	go func() {
		defer n.drop(state, conn)

		conn.SetReadDeadline(time.Now().Add(loginWaitLimit))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				n.send(state, conn, loginEvent{Event: "timeout"})
				return
			}
		}
	}()
}

// NotifySuccess 把登录结果推给等待该state的连接
func (n *LoginNotifier) NotifySuccess(state string, result *account.LoginResult) {
	v, loaded := n.connections.LoadAndDelete(state)
	if !loaded {
		return
	}
	conn := v.(*websocket.Conn)
	n.send(state, conn, loginEvent{Event: "success", Result: result})
	conn.Close()
}

// NotifyFailure 通知扫码页登录失败
func (n *LoginNotifier) NotifyFailure(state string) {
	v, loaded := n.connections.LoadAndDelete(state)
	if !loaded {
		return
	}
	conn := v.(*websocket.Conn)
	n.send(state, conn, loginEvent{Event: "failure"})
	conn.Close()
}

func (n *LoginNotifier) send(state string, conn *websocket.Conn, ev loginEvent) {
	conn.SetWriteDeadline(time.Now().Add(loginWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		logger.Debug("扫码结果推送失败",
			logger.String("state", state),
			logger.ErrorField(err))
	}
}

func (n *LoginNotifier) drop(state string, conn *websocket.Conn) {
	// 只清理仍指向本连接的表项，避免误删新连接
	if v, ok := n.connections.Load(state); ok && v.(*websocket.Conn) == conn {
		n.connections.Delete(state)
	}
	conn.Close()
}
