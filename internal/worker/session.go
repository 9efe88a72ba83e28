package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"thecloser/internal/ai"
	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
	"thecloser/internal/transport"
)

// 拟人化节奏参数
const (
	readDelayBase   = 2 * time.Second // 已读前最短等待
	readDelayJitter = 4               // 额外随机秒数上限（不含）

	typingSpeedBase   = 5 // 模拟打字速度下限，字符/秒
	typingSpeedJitter = 4 // 速度随机增量上限（不含）

	minTypingDuration = 2 * time.Second
	maxTypingDuration = 15 * time.Second
)

type agentLoader interface {
	FindByID(ctx context.Context, botID string) (*bot.Agent, error)
}

type conversationStore interface {
	GetOrCreate(ctx context.Context, botID, userID, userName string) (*chat.Conversation, error)
	TouchLastMessage(ctx context.Context, convID string, at time.Time) error
}

type messageStore interface {
	Append(ctx context.Context, msg *chat.Message) error
	ListRecent(ctx context.Context, convID string, limit int64) ([]*chat.Message, error)
}

// answerer 回答生成入口
type answerer interface {
	Answer(ctx context.Context, agent *bot.Agent, conversationID, query string, history []*chat.Message) ai.Answer
}

// Session 会话管理器：处理单条入站消息的完整回合
// 一次回合：入站落库 -> 取历史 -> 已读停顿 -> 生成 -> 打字停顿 -> 发送 -> 出站落库
// 不同对话的回合并发执行，同一对话不做串行化
type Session struct {
	agents       agentLoader
	convs        conversationStore
	messages     messageStore
	composer     answerer
	historyLimit int64

	// 可注入，测试用假时钟
	sleep   func(ctx context.Context, d time.Duration) error
	randInt func(n int) int
}

// NewSession 创建会话管理器
func NewSession(agents agentLoader, convs conversationStore, messages messageStore, composer answerer, historyLimit int) *Session {
	if historyLimit <= 0 {
		historyLimit = 11
	}
	return &Session{
		agents:       agents,
		convs:        convs,
		messages:     messages,
		composer:     composer,
		historyLimit: int64(historyLimit),
		sleep:        sleepCtx,
		randInt:      rand.Intn,
	}
}

// HandleMessage 处理一条入站消息
// 入站消息先落库再生成，生成失败也不会丢历史；发送失败时该回合的回复丢失，
// 但用户消息已经在库里，下一回合还能带上
func (s *Session) HandleMessage(ctx context.Context, botID string, conn transport.Conn, in transport.Inbound) error {
	if in.Text == "" {
		return nil
	}

	// 每个回合重读 Bot 配置，暂停或改配置立即生效
	agent, err := s.agents.FindByID(ctx, botID)
	if err != nil {
		return err
	}
	if agent.Status != bot.StatusActive {
		return nil
	}

	log.Info().Str("bot", agent.Name).Str("user", in.UserName).Msg("inbound message")

	conv, err := s.convs.GetOrCreate(ctx, agent.ID, in.UserID, in.UserName)
	if err != nil {
		return err
	}
	if err := s.convs.TouchLastMessage(ctx, conv.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to touch conversation")
	}

	// 先持久化用户回合，再开始生成
	if err := s.messages.Append(ctx, &chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        in.Text,
	}); err != nil {
		return err
	}

	history, err := s.messages.ListRecent(ctx, conv.ID, s.historyLimit)
	if err != nil {
		return err
	}

	// 已读停顿
	readDelay := readDelayBase + time.Duration(s.randInt(readDelayJitter))*time.Second
	if err := s.sleep(ctx, readDelay); err != nil {
		return err
	}
	if err := conn.MarkRead(ctx, in.UserID); err != nil {
		log.Debug().Err(err).Msg("failed to mark message read")
	}

	answer := s.composer.Answer(ctx, agent, conv.ID, in.Text, history)

	// 打字停顿，时长与回复长度成正比
	typing := s.typingDuration(answer.Text)
	if err := conn.Typing(ctx, in.UserID, typing); err != nil {
		if serr := s.sleep(ctx, typing); serr != nil {
			return serr
		}
	}

	if err := conn.Send(ctx, in.UserID, answer.Text); err != nil {
		log.Error().Err(err).Str("bot", agent.Name).Str("user", in.UserID).Msg("failed to send reply")
		return err
	}

	if err := s.messages.Append(ctx, &chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleBot,
		Content:        answer.Text,
	}); err != nil {
		return err
	}

	log.Info().Str("bot", agent.Name).Str("user", in.UserName).Msg("replied")
	return nil
}

// typingDuration 按回复长度和随机打字速度计算停顿，夹在固定区间内
func (s *Session) typingDuration(text string) time.Duration {
	speed := typingSpeedBase + s.randInt(typingSpeedJitter)
	d := time.Duration(float64(len([]rune(text))) / float64(speed) * float64(time.Second))
	if d < minTypingDuration {
		d = minTypingDuration
	}
	if d > maxTypingDuration {
		d = maxTypingDuration
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
