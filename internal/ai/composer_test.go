package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
	"thecloser/internal/rag"
)

// fakeChatModel 录制调用参数的模型桩
type fakeChatModel struct {
	responses []*schema.Message
	err       error
	calls     [][]*schema.Message
	opts      [][]model.Option
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls = append(f.calls, input)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// stubRetriever 固定命中结果的检索桩
type stubRetriever struct {
	hits  []rag.Hit
	err   error
	calls int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ string, _ int) ([]rag.Hit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

// stubFunctions 固定函数列表
type stubFunctions struct {
	fns []*bot.Function
}

func (s *stubFunctions) ListActiveByBotID(_ context.Context, _ string) ([]*bot.Function, error) {
	return s.fns, nil
}

// stubExecutor 录制调用的执行器桩
type stubExecutor struct {
	calls []executedCall
}

type executedCall struct {
	name string
	args map[string]any
}

func (s *stubExecutor) Execute(_ context.Context, _, _, name string, args map[string]any) (map[string]any, error) {
	s.calls = append(s.calls, executedCall{name: name, args: args})
	return map[string]any{"success": true, "message": "Данные успешно сохранены."}, nil
}

func testAgent() *bot.Agent {
	return &bot.Agent{
		ID:           "bot-1",
		Name:         "Алексей",
		CompanyName:  "Acme",
		SystemPrompt: "Продавай вежливо.",
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
		MaxTokens:    500,
		UseRAG:       true,
		RAGTopK:      5,
	}
}

func TestComposer_Answer(t *testing.T) {
	Convey("回答生成测试", t, func() {
		ctx := context.Background()

		Convey("检索命中时上下文进入系统消息且返回来源和置信度", func() {
			retriever := &stubRetriever{hits: []rag.Hit{
				{Text: "Our refund window is 14 days.", SourceTitle: "FAQ", Similarity: 0.9},
				{Text: "Shipping takes 3 days.", SourceTitle: "FAQ", Similarity: 0.7},
			}}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("14 дней", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			answer := composer.Answer(ctx, testAgent(), "conv-1", "What is your refund policy?", nil)

			So(answer.Text, ShouldEqual, "14 дней")
			So(answer.Sources, ShouldResemble, []string{"FAQ"})
			So(answer.Confidence, ShouldAlmostEqual, 0.8, 1e-9)

			So(chatModel.calls, ShouldHaveLength, 1)
			system := chatModel.calls[0][0]
			So(system.Role, ShouldEqual, schema.System)
			So(system.Content, ShouldContainSubstring, "Our refund window is 14 days.")
			So(system.Content, ShouldContainSubstring, "Алексей")
			So(system.Content, ShouldContainSubstring, "Acme")
			So(system.Content, ShouldContainSubstring, "Продавай вежливо.")
		})

		Convey("use_rag 关闭时不调用检索器", func() {
			retriever := &stubRetriever{hits: []rag.Hit{{Text: "x", SourceTitle: "FAQ", Similarity: 1}}}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("ответ", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false

			answer := composer.Answer(ctx, agent, "conv-1", "Цена?", nil)

			So(retriever.calls, ShouldEqual, 0)
			So(answer.Sources, ShouldBeEmpty)
			So(answer.Confidence, ShouldEqual, 0)
		})

		Convey("检索为空时不加上下文块且置信度为 0", func() {
			retriever := &stubRetriever{}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("ответ", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			answer := composer.Answer(ctx, testAgent(), "conv-1", "Цена?", nil)

			So(retriever.calls, ShouldEqual, 1)
			So(answer.Confidence, ShouldEqual, 0)
			So(chatModel.calls[0][0].Content, ShouldNotContainSubstring, "ИНФОРМАЦИЯ ИЗ БАЗЫ ЗНАНИЙ")
		})

		Convey("检索失败时退化为无上下文回答而不是中断回合", func() {
			retriever := &stubRetriever{err: &rag.EmbeddingError{Err: errors.New("rate limited")}}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("5000", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			answer := composer.Answer(ctx, testAgent(), "conv-1", "Цена?", nil)

			So(chatModel.calls, ShouldHaveLength, 1)
			So(answer.Text, ShouldEqual, "5000")
			So(answer.Sources, ShouldBeEmpty)
			So(answer.Confidence, ShouldEqual, 0)
			So(chatModel.calls[0][0].Content, ShouldNotContainSubstring, "ИНФОРМАЦИЯ ИЗ БАЗЫ ЗНАНИЙ")
		})

		Convey("传统模型带采样参数", func() {
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("ответ", nil)}}
			composer := NewComposer(chatModel, nil, nil, nil, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false
			composer.Answer(ctx, agent, "conv-1", "Цена?", nil)

			opts := model.GetCommonOptions(&model.Options{}, chatModel.opts[0]...)
			So(opts.Model, ShouldNotBeNil)
			So(*opts.Model, ShouldEqual, "gpt-4o-mini")
			So(opts.Temperature, ShouldNotBeNil)
			So(*opts.Temperature, ShouldAlmostEqual, 0.7, 1e-6)
			So(opts.MaxTokens, ShouldNotBeNil)
			So(*opts.MaxTokens, ShouldEqual, 500)
		})

		Convey("推理系模型不带采样参数", func() {
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("ответ", nil)}}
			composer := NewComposer(chatModel, nil, nil, nil, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false
			agent.Model = "gpt-5"
			composer.Answer(ctx, agent, "conv-1", "Цена?", nil)

			opts := model.GetCommonOptions(&model.Options{}, chatModel.opts[0]...)
			So(*opts.Model, ShouldEqual, "gpt-5")
			So(opts.Temperature, ShouldBeNil)
			So(opts.MaxTokens, ShouldBeNil)
		})

		Convey("函数回调完整走一轮后返回最终回答", func() {
			toolCall := schema.ToolCall{
				ID: "call-1",
				Function: schema.FunctionCall{
					Name:      "save_lead",
					Arguments: `{"phone": "+998901234567"}`,
				},
			}
			chatModel := &fakeChatModel{responses: []*schema.Message{
				schema.AssistantMessage("", []schema.ToolCall{toolCall}),
				schema.AssistantMessage("Записал, спасибо", nil),
			}}
			functions := &stubFunctions{fns: []*bot.Function{{
				ID:    "fn-1",
				BotID: "bot-1",
				Name:  "save_lead",
				Kind:  bot.FunctionSaveLead,
				Parameters: map[string]bot.ParameterSpec{
					"phone": {Type: "string", Description: "Телефон клиента", Required: true},
				},
				IsActive: true,
			}}}
			executor := &stubExecutor{}
			composer := NewComposer(chatModel, nil, functions, executor, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false
			answer := composer.Answer(ctx, agent, "conv-1", "Запишите мой номер +998901234567", nil)

			So(answer.Text, ShouldEqual, "Записал, спасибо")

			// 执行器恰好被调用一次，参数来自模型
			So(executor.calls, ShouldHaveLength, 1)
			So(executor.calls[0].name, ShouldEqual, "save_lead")
			So(executor.calls[0].args["phone"], ShouldEqual, "+998901234567")

			// 第一次调用声明了工具，第二次没有
			So(chatModel.calls, ShouldHaveLength, 2)
			firstOpts := model.GetCommonOptions(&model.Options{}, chatModel.opts[0]...)
			So(firstOpts.Tools, ShouldHaveLength, 1)
			secondOpts := model.GetCommonOptions(&model.Options{}, chatModel.opts[1]...)
			So(secondOpts.Tools, ShouldBeEmpty)

			// 第二次调用的消息里包含模型意图和工具结果
			second := chatModel.calls[1]
			So(second[len(second)-1].Role, ShouldEqual, schema.Tool)
			So(second[len(second)-1].Content, ShouldContainSubstring, "success")
			So(second[len(second)-2].ToolCalls, ShouldHaveLength, 1)
		})

		Convey("历史最后一条与当前提问相同时去重", func() {
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("ответ", nil)}}
			composer := NewComposer(chatModel, nil, nil, nil, nil, time.Minute)

			history := []*chat.Message{
				{Role: chat.RoleUser, Content: "Привет"},
				{Role: chat.RoleBot, Content: "На связи"},
				{Role: chat.RoleUser, Content: "Цена?"},
			}

			agent := testAgent()
			agent.UseRAG = false
			composer.Answer(ctx, agent, "conv-1", "Цена?", history)

			msgs := chatModel.calls[0]
			count := 0
			for _, m := range msgs {
				if m.Role == schema.User && m.Content == "Цена?" {
					count++
				}
			}
			So(count, ShouldEqual, 1)

			// bot 角色映射为 assistant
			So(msgs[2].Role, ShouldEqual, schema.Assistant)
			So(msgs[2].Content, ShouldEqual, "На связи")
		})

		Convey("模型调用失败时返回固定致歉话术", func() {
			chatModel := &fakeChatModel{err: errors.New("api down")}
			composer := NewComposer(chatModel, nil, nil, nil, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false
			answer := composer.Answer(ctx, agent, "conv-1", "Цена?", nil)

			So(answer.Text, ShouldEqual, ApologyReply)
			So(answer.Sources, ShouldBeEmpty)
			So(answer.Confidence, ShouldEqual, 0)
		})

		Convey("回答首尾空白被去除", func() {
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("  ответ  \n", nil)}}
			composer := NewComposer(chatModel, nil, nil, nil, nil, time.Minute)

			agent := testAgent()
			agent.UseRAG = false
			answer := composer.Answer(ctx, agent, "conv-1", "Цена?", nil)

			So(answer.Text, ShouldEqual, "ответ")
		})
	})
}
