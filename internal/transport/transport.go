package transport

import (
	"context"
	"fmt"
	"time"

	"thecloser/internal/model/bot"
)

// Inbound 一条来自终端用户的私聊消息
type Inbound struct {
	UserID   string // 消息平台内的用户ID
	UserName string
	Text     string
}

// Conn 一个 Bot 的在线连接
// 由 Supervisor 持有，生命周期与 Bot 的期望在线状态一致
type Conn interface {
	// Inbound 返回入站消息通道，连接关闭后通道关闭
	Inbound() <-chan Inbound

	// MarkRead 把某个用户的消息标记为已读
	MarkRead(ctx context.Context, userID string) error

	// Typing 向某个用户展示"正在输入"状态并保持指定时长
	// 实现必须阻塞满 d（或 ctx 取消）后才返回，调用方靠它做发送前的停顿
	Typing(ctx context.Context, userID string, d time.Duration) error

	// Send 发送文本回复
	Send(ctx context.Context, userID, text string) error

	// NotifyOwner 给 Bot 运营者发通知（新线索、人工接管请求）
	NotifyOwner(ctx context.Context, text string) error

	// KeepAlive 刷新在线状态
	KeepAlive(ctx context.Context) error

	// Close 断开连接
	Close() error
}

// Dialer 按 Bot 凭证建立平台连接
type Dialer interface {
	Dial(ctx context.Context, agent *bot.Agent) (Conn, error)
}

// AuthError 凭证无效或会话过期
// Supervisor 收到该错误会把 Bot 置为 error 状态，不再重试
type AuthError struct {
	BotID  string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("bot %s auth failed: %s", e.BotID, e.Reason)
}
