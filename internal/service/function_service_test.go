package service

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
)

type fakeFunctionSource struct {
	fns map[string]*bot.Function // name -> function
}

func (f *fakeFunctionSource) FindByBotAndName(_ context.Context, _, name string) (*bot.Function, error) {
	fn, ok := f.fns[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return fn, nil
}

type fakeAgentSource struct {
	agent *bot.Agent
}

func (f *fakeAgentSource) FindByID(_ context.Context, _ string) (*bot.Agent, error) {
	if f.agent == nil {
		return nil, errors.New("not found")
	}
	return f.agent, nil
}

type fakeLeadStore struct {
	conv      *chat.Conversation
	markErr   error
	markCalls []markLeadCall
}

type markLeadCall struct {
	convID string
	phone  string
	email  string
	data   map[string]any
}

func (f *fakeLeadStore) FindByID(_ context.Context, _ string) (*chat.Conversation, error) {
	if f.conv == nil {
		return nil, errors.New("not found")
	}
	return f.conv, nil
}

func (f *fakeLeadStore) MarkLead(_ context.Context, convID, phone, email string, data map[string]any) error {
	f.markCalls = append(f.markCalls, markLeadCall{convID: convID, phone: phone, email: email, data: data})
	return f.markErr
}

type fakeNotifier struct {
	notes []string
	err   error
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, _, text string) error {
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, text)
	return nil
}

func TestFunctionService_Execute(t *testing.T) {
	Convey("函数执行服务测试", t, func() {
		ctx := context.Background()

		agent := &bot.Agent{ID: "bot-1", Name: "Алексей"}
		conv := &chat.Conversation{ID: "conv-1", BotID: "bot-1", UserID: "42", UserName: "Иван"}

		saveLead := &bot.Function{
			ID: "fn-1", BotID: "bot-1", Name: "save_lead",
			Kind: bot.FunctionSaveLead, IsActive: true,
		}
		callManager := &bot.Function{
			ID: "fn-2", BotID: "bot-1", Name: "call_manager",
			Kind: bot.FunctionCallManager, IsActive: true,
		}

		functions := &fakeFunctionSource{fns: map[string]*bot.Function{
			"save_lead":    saveLead,
			"call_manager": callManager,
		}}
		agents := &fakeAgentSource{agent: agent}
		store := &fakeLeadStore{conv: conv}
		notifier := &fakeNotifier{}

		svc := NewFunctionService(functions, agents, store, notifier, "https://example.com")

		Convey("save_lead 落库并通知运营者", func() {
			result, err := svc.Execute(ctx, "bot-1", "conv-1", "save_lead", map[string]any{
				"phone": "+998901234567",
				"name":  "Иван",
			})

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeTrue)

			So(store.markCalls, ShouldHaveLength, 1)
			So(store.markCalls[0].convID, ShouldEqual, "conv-1")
			So(store.markCalls[0].phone, ShouldEqual, "+998901234567")
			So(store.markCalls[0].data["name"], ShouldEqual, "Иван")

			So(notifier.notes, ShouldHaveLength, 1)
			So(notifier.notes[0], ShouldContainSubstring, "НОВЫЙ ЛИД")
			So(notifier.notes[0], ShouldContainSubstring, "+998901234567")
		})

		Convey("save_lead 支持俄语参数名", func() {
			result, err := svc.Execute(ctx, "bot-1", "conv-1", "save_lead", map[string]any{
				"телефон": "+79001112233",
				"почта":   "ivan@example.com",
			})

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeTrue)
			So(store.markCalls[0].phone, ShouldEqual, "+79001112233")
			So(store.markCalls[0].email, ShouldEqual, "ivan@example.com")
		})

		Convey("call_manager 通知运营者", func() {
			result, err := svc.Execute(ctx, "bot-1", "conv-1", "call_manager", map[string]any{
				"reason": "Сложный вопрос по оплате",
			})

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeTrue)
			So(result["message"], ShouldEqual, "Менеджер уведомлен.")

			So(notifier.notes, ShouldHaveLength, 1)
			So(notifier.notes[0], ShouldContainSubstring, "ТРЕБУЕТСЯ ЧЕЛОВЕК")
			So(notifier.notes[0], ShouldContainSubstring, "Сложный вопрос по оплате")
		})

		Convey("未知函数名返回失败结果而不是错误", func() {
			result, err := svc.Execute(ctx, "bot-1", "conv-1", "unknown_fn", nil)

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeFalse)
			So(result["error"], ShouldContainSubstring, "not found")
		})

		Convey("停用的函数拒绝执行", func() {
			saveLead.IsActive = false
			result, err := svc.Execute(ctx, "bot-1", "conv-1", "save_lead", nil)
			saveLead.IsActive = true

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeFalse)
			So(store.markCalls, ShouldBeEmpty)
		})

		Convey("通知失败不影响执行结果", func() {
			notifier.err = errors.New("offline")

			result, err := svc.Execute(ctx, "bot-1", "conv-1", "save_lead", map[string]any{"phone": "+1"})

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeTrue)
		})

		Convey("落库失败返回失败结果", func() {
			store.markErr = errors.New("db down")

			result, err := svc.Execute(ctx, "bot-1", "conv-1", "save_lead", map[string]any{"phone": "+1"})

			So(err, ShouldBeNil)
			So(result["success"], ShouldBeFalse)
			So(notifier.notes, ShouldBeEmpty)
		})
	})
}
