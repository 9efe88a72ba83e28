package transport

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/model/bot"
)

func testAgent() *bot.Agent {
	return &bot.Agent{
		ID:       "bot-1",
		Name:     "Алексей",
		Platform: bot.PlatformTelegram,
		Status:   bot.StatusActive,
		Credentials: bot.Credentials{
			APIID:         "12345",
			APIHash:       "hash",
			SessionString: "session",
		},
	}
}

func TestMemoryDialer(t *testing.T) {
	Convey("内存传输测试", t, func() {
		ctx := context.Background()
		dialer := NewMemoryDialer()

		Convey("凭证不完整时返回 AuthError", func() {
			agent := testAgent()
			agent.Credentials.SessionString = ""

			_, err := dialer.Dial(ctx, agent)

			var authErr *AuthError
			So(errors.As(err, &authErr), ShouldBeTrue)
			So(authErr.BotID, ShouldEqual, "bot-1")
		})

		Convey("关闭后 Push 被静默丢弃，不会 panic", func() {
			conn, err := dialer.Dial(ctx, testAgent())
			So(err, ShouldBeNil)
			mc := conn.(*MemoryConn)

			So(mc.Close(), ShouldBeNil)
			So(func() { mc.Push(Inbound{UserID: "42", Text: "Привет"}) }, ShouldNotPanic)

			// 入站通道已关闭且没有收到那条消息
			_, ok := <-mc.Inbound()
			So(ok, ShouldBeFalse)
		})

		Convey("Close 幂等", func() {
			conn, err := dialer.Dial(ctx, testAgent())
			So(err, ShouldBeNil)

			So(conn.Close(), ShouldBeNil)
			So(conn.Close(), ShouldBeNil)
			So(conn.(*MemoryConn).Closed(), ShouldBeTrue)
		})
	})
}
