package transport

import (
	"context"
	"sync"
	"time"

	"thecloser/internal/model/bot"
)

// MemoryDialer 进程内传输实现
// 用于本地开发和测试：没有真实平台连接，消息通过 Push 注入
type MemoryDialer struct {
	mu    sync.Mutex
	conns map[string]*MemoryConn
}

// NewMemoryDialer 创建内存拨号器
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{conns: make(map[string]*MemoryConn)}
}

// Dial 建立内存连接；凭证不完整时返回 AuthError
func (d *MemoryDialer) Dial(_ context.Context, agent *bot.Agent) (Conn, error) {
	if !agent.Credentials.Valid() {
		return nil, &AuthError{BotID: agent.ID, Reason: "incomplete credentials"}
	}

	conn := &MemoryConn{
		botID:   agent.ID,
		inbound: make(chan Inbound, 16),
	}

	d.mu.Lock()
	d.conns[agent.ID] = conn
	d.mu.Unlock()
	return conn, nil
}

// Conn 返回某个 Bot 的活动连接（测试注入消息用）
func (d *MemoryDialer) Conn(botID string) *MemoryConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[botID]
}

// MemoryConn 内存连接，记录全部出站动作
type MemoryConn struct {
	botID   string
	inbound chan Inbound

	mu            sync.Mutex
	closed        bool
	Sent          []SentMessage
	Notifications []string
	ReadMarks     []string
	KeepAlives    int
}

// SentMessage 一条已发送的出站消息
type SentMessage struct {
	UserID string
	Text   string
}

// Push 注入一条入站消息；连接已关闭时静默丢弃
func (c *MemoryConn) Push(in Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inbound <- in
}

func (c *MemoryConn) Inbound() <-chan Inbound {
	return c.inbound
}

func (c *MemoryConn) MarkRead(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadMarks = append(c.ReadMarks, userID)
	return nil
}

func (c *MemoryConn) Typing(ctx context.Context, _ string, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *MemoryConn) Send(_ context.Context, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, SentMessage{UserID: userID, Text: text})
	return nil
}

func (c *MemoryConn) NotifyOwner(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications = append(c.Notifications, text)
	return nil
}

func (c *MemoryConn) KeepAlive(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.KeepAlives++
	return nil
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

// Closed 连接是否已关闭
func (c *MemoryConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
