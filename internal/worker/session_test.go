package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/ai"
	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
	"thecloser/internal/transport"
)

type fakeAgentLoader struct {
	agent *bot.Agent
}

func (f *fakeAgentLoader) FindByID(_ context.Context, _ string) (*bot.Agent, error) {
	if f.agent == nil {
		return nil, errors.New("not found")
	}
	return f.agent, nil
}

type fakeConversationStore struct {
	conv    *chat.Conversation
	touched int
}

func (f *fakeConversationStore) GetOrCreate(_ context.Context, botID, userID, userName string) (*chat.Conversation, error) {
	if f.conv == nil {
		f.conv = &chat.Conversation{ID: "conv-1", BotID: botID, UserID: userID, UserName: userName}
	}
	return f.conv, nil
}

func (f *fakeConversationStore) TouchLastMessage(_ context.Context, _ string, _ time.Time) error {
	f.touched++
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	appended []*chat.Message
}

func (f *fakeMessageStore) Append(_ context.Context, msg *chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeMessageStore) ListRecent(_ context.Context, _ string, limit int64) ([]*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.appended
	if int64(len(msgs)) > limit {
		msgs = msgs[int64(len(msgs))-limit:]
	}
	return msgs, nil
}

type fakeAnswerer struct {
	answer  ai.Answer
	history []*chat.Message
	calls   int
}

func (f *fakeAnswerer) Answer(_ context.Context, _ *bot.Agent, _ string, _ string, history []*chat.Message) ai.Answer {
	f.calls++
	f.history = history
	return f.answer
}

// fastConn 打字不真正等待的连接，测试不用耗时间
type fastConn struct {
	*transport.MemoryConn
}

func (c *fastConn) Typing(context.Context, string, time.Duration) error {
	return nil
}

// failingConn 发送必然失败的连接
type failingConn struct {
	*fastConn
}

func (c *failingConn) Send(context.Context, string, string) error {
	return errors.New("network down")
}

func newTestSession(agents agentLoader, convs conversationStore, messages messageStore, composer answerer) *Session {
	s := NewSession(agents, convs, messages, composer, 11)
	// 假时钟：不真正等待
	s.sleep = func(context.Context, time.Duration) error { return nil }
	s.randInt = func(int) int { return 0 }
	return s
}

func activeAgent() *bot.Agent {
	a := validAgent("bot-1")
	a.Model = "gpt-4o-mini"
	return a
}

func memConn(t *testing.T) *fastConn {
	t.Helper()
	dialer := transport.NewMemoryDialer()
	conn, err := dialer.Dial(context.Background(), activeAgent())
	if err != nil {
		t.Fatalf("建立内存连接失败: %v", err)
	}
	return &fastConn{MemoryConn: conn.(*transport.MemoryConn)}
}

func TestSession_HandleMessage(t *testing.T) {
	Convey("会话回合测试", t, func() {
		ctx := context.Background()
		in := transport.Inbound{UserID: "42", UserName: "Иван", Text: "Цена?"}

		Convey("完整回合：用户先落库，回复后落库", func() {
			agents := &fakeAgentLoader{agent: activeAgent()}
			convs := &fakeConversationStore{}
			messages := &fakeMessageStore{}
			composer := &fakeAnswerer{answer: ai.Answer{Text: "5000"}}
			conn := memConn(t)

			session := newTestSession(agents, convs, messages, composer)
			err := session.HandleMessage(ctx, "bot-1", conn, in)

			So(err, ShouldBeNil)
			So(messages.appended, ShouldHaveLength, 2)
			So(messages.appended[0].Role, ShouldEqual, chat.RoleUser)
			So(messages.appended[0].Content, ShouldEqual, "Цена?")
			So(messages.appended[1].Role, ShouldEqual, chat.RoleBot)
			So(messages.appended[1].Content, ShouldEqual, "5000")

			So(conn.Sent, ShouldHaveLength, 1)
			So(conn.Sent[0].Text, ShouldEqual, "5000")
			So(conn.ReadMarks, ShouldResemble, []string{"42"})
			So(convs.touched, ShouldEqual, 1)
		})

		Convey("发送失败时用户回合已保留，Bot 回合不落库", func() {
			agents := &fakeAgentLoader{agent: activeAgent()}
			convs := &fakeConversationStore{}
			messages := &fakeMessageStore{}
			composer := &fakeAnswerer{answer: ai.Answer{Text: "5000"}}
			conn := &failingConn{fastConn: memConn(t)}

			session := newTestSession(agents, convs, messages, composer)
			err := session.HandleMessage(ctx, "bot-1", conn, in)

			So(err, ShouldNotBeNil)
			So(messages.appended, ShouldHaveLength, 1)
			So(messages.appended[0].Role, ShouldEqual, chat.RoleUser)
		})

		Convey("非 active 状态的 Bot 不响应", func() {
			paused := activeAgent()
			paused.Status = bot.StatusPaused
			agents := &fakeAgentLoader{agent: paused}
			convs := &fakeConversationStore{}
			messages := &fakeMessageStore{}
			composer := &fakeAnswerer{answer: ai.Answer{Text: "x"}}
			conn := memConn(t)

			session := newTestSession(agents, convs, messages, composer)
			err := session.HandleMessage(ctx, "bot-1", conn, in)

			So(err, ShouldBeNil)
			So(messages.appended, ShouldBeEmpty)
			So(composer.calls, ShouldEqual, 0)
		})

		Convey("空文本直接忽略", func() {
			agents := &fakeAgentLoader{agent: activeAgent()}
			convs := &fakeConversationStore{}
			messages := &fakeMessageStore{}
			composer := &fakeAnswerer{}
			conn := memConn(t)

			session := newTestSession(agents, convs, messages, composer)
			err := session.HandleMessage(ctx, "bot-1", conn, transport.Inbound{UserID: "42"})

			So(err, ShouldBeNil)
			So(messages.appended, ShouldBeEmpty)
		})

		Convey("生成上下文包含刚落库的用户消息", func() {
			agents := &fakeAgentLoader{agent: activeAgent()}
			convs := &fakeConversationStore{}
			messages := &fakeMessageStore{}
			composer := &fakeAnswerer{answer: ai.Answer{Text: "ответ"}}
			conn := memConn(t)

			session := newTestSession(agents, convs, messages, composer)
			So(session.HandleMessage(ctx, "bot-1", conn, in), ShouldBeNil)

			So(composer.history, ShouldHaveLength, 1)
			So(composer.history[0].Content, ShouldEqual, "Цена?")
		})
	})
}

func TestSession_TypingDuration(t *testing.T) {
	Convey("打字停顿计算测试", t, func() {
		session := NewSession(nil, nil, nil, nil, 11)
		session.randInt = func(int) int { return 0 } // 速度固定 5 字符/秒

		Convey("短回复夹到下限 2 秒", func() {
			So(session.typingDuration("ок"), ShouldEqual, 2*time.Second)
		})

		Convey("超长回复夹到上限 15 秒", func() {
			So(session.typingDuration(strings.Repeat("а", 1000)), ShouldEqual, 15*time.Second)
		})

		Convey("中等长度与回复长度成正比", func() {
			// 25 字符 / 5 字符每秒 = 5 秒
			So(session.typingDuration(strings.Repeat("a", 25)), ShouldEqual, 5*time.Second)
		})
	})
}
