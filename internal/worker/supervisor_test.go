package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/model/bot"
	"thecloser/internal/transport"
)

// fakeDesiredSource 期望集合的内存实现
type fakeDesiredSource struct {
	mu       sync.Mutex
	desired  []*bot.Agent
	statuses map[string]bot.Status
}

func newFakeDesiredSource(agents ...*bot.Agent) *fakeDesiredSource {
	return &fakeDesiredSource{desired: agents, statuses: make(map[string]bot.Status)}
}

func (f *fakeDesiredSource) ListDesired(_ context.Context, _ bot.Platform) ([]*bot.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desired, nil
}

func (f *fakeDesiredSource) UpdateStatus(_ context.Context, botID string, status bot.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[botID] = status
	return nil
}

func (f *fakeDesiredSource) setDesired(agents ...*bot.Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desired = agents
}

// recordingDialer 记录拨号顺序
type recordingDialer struct {
	inner *transport.MemoryDialer
	mu    sync.Mutex
	dials []string
}

func (d *recordingDialer) Dial(ctx context.Context, agent *bot.Agent) (transport.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, agent.ID)
	d.mu.Unlock()
	return d.inner.Dial(ctx, agent)
}

// noopHandler 丢弃消息的回合处理器
type noopHandler struct{}

func (noopHandler) HandleMessage(context.Context, string, transport.Conn, transport.Inbound) error {
	return nil
}

func validAgent(id string) *bot.Agent {
	return &bot.Agent{
		ID:       id,
		Name:     "bot-" + id,
		Platform: bot.PlatformTelegram,
		Status:   bot.StatusActive,
		Credentials: bot.Credentials{
			APIID:         "12345",
			APIHash:       "hash",
			SessionString: "session",
		},
	}
}

func TestSupervisor_Reconcile(t *testing.T) {
	Convey("监督器对账测试", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dialer := &recordingDialer{inner: transport.NewMemoryDialer()}

		Convey("期望 {1,2} 在线 {2,3}：恰好启动 1、停止 3、不动 2", func() {
			source := newFakeDesiredSource(validAgent("2"), validAgent("3"))
			sup := NewSupervisor(source, dialer, noopHandler{}, nil, bot.PlatformTelegram, time.Second)

			// 第一轮：在线集合变成 {2,3}
			sup.reconcile(ctx)
			So(sup.registry.Snapshot(), ShouldResemble, []string{"2", "3"})

			conn2 := dialer.inner.Conn("2")
			conn3 := dialer.inner.Conn("3")

			// 期望集合变成 {1,2}
			source.setDesired(validAgent("1"), validAgent("2"))
			sup.reconcile(ctx)

			So(sup.registry.Snapshot(), ShouldResemble, []string{"1", "2"})
			So(dialer.dials, ShouldResemble, []string{"2", "3", "1"})
			So(conn3.Closed(), ShouldBeTrue)
			So(conn2.Closed(), ShouldBeFalse)

			sup.shutdown()
		})

		Convey("对账是水平触发的：重复对账不重复启动", func() {
			source := newFakeDesiredSource(validAgent("1"))
			sup := NewSupervisor(source, dialer, noopHandler{}, nil, bot.PlatformTelegram, time.Second)

			sup.reconcile(ctx)
			sup.reconcile(ctx)
			sup.reconcile(ctx)

			So(dialer.dials, ShouldResemble, []string{"1"})
			sup.shutdown()
		})

		Convey("凭证无效的 Bot 标记为 error 且不进在线集合", func() {
			broken := validAgent("1")
			broken.Credentials.SessionString = ""
			source := newFakeDesiredSource(broken)
			sup := NewSupervisor(source, dialer, noopHandler{}, nil, bot.PlatformTelegram, time.Second)

			sup.reconcile(ctx)

			So(sup.registry.Snapshot(), ShouldBeEmpty)
			So(source.statuses["1"], ShouldEqual, bot.StatusError)
			sup.shutdown()
		})

		Convey("停止 Bot 不打断进行中的回合", func() {
			source := newFakeDesiredSource(validAgent("1"))

			turnCtxCh := make(chan context.Context, 1)
			release := make(chan struct{})
			handler := handlerFunc(func(hctx context.Context, _ string, _ transport.Conn, _ transport.Inbound) error {
				turnCtxCh <- hctx
				<-release
				return nil
			})
			sup := NewSupervisor(source, dialer, handler, nil, bot.PlatformTelegram, time.Second)

			sup.reconcile(ctx)
			dialer.inner.Conn("1").Push(transport.Inbound{UserID: "42", Text: "Привет"})

			var turnCtx context.Context
			select {
			case turnCtx = <-turnCtxCh:
			case <-time.After(2 * time.Second):
				t.Fatal("回合处理器未被调用")
			}

			// Bot 退出期望集合，连接断开，但回合还在跑
			source.setDesired()
			sup.reconcile(ctx)

			So(sup.registry.Snapshot(), ShouldBeEmpty)
			So(turnCtx.Err(), ShouldBeNil)

			close(release)
			sup.shutdown()
		})

		Convey("入站消息派发到回合处理器", func() {
			source := newFakeDesiredSource(validAgent("1"))

			received := make(chan transport.Inbound, 1)
			handler := handlerFunc(func(_ context.Context, _ string, _ transport.Conn, in transport.Inbound) error {
				received <- in
				return nil
			})
			sup := NewSupervisor(source, dialer, handler, nil, bot.PlatformTelegram, time.Second)

			sup.reconcile(ctx)
			dialer.inner.Conn("1").Push(transport.Inbound{UserID: "42", Text: "Привет"})

			select {
			case in := <-received:
				So(in.Text, ShouldEqual, "Привет")
			case <-time.After(2 * time.Second):
				t.Fatal("回合处理器未被调用")
			}
			sup.shutdown()
		})
	})
}

type handlerFunc func(ctx context.Context, botID string, conn transport.Conn, in transport.Inbound) error

func (f handlerFunc) HandleMessage(ctx context.Context, botID string, conn transport.Conn, in transport.Inbound) error {
	return f(ctx, botID, conn, in)
}
