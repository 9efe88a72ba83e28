package ai

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/rag"
)

func TestComposer_DirectAnswer(t *testing.T) {
	Convey("知识库直接问答测试", t, func() {
		ctx := context.Background()

		Convey("检索为空时返回固定话术且不调模型", func() {
			retriever := &stubRetriever{}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("x", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			answer := composer.DirectAnswer(ctx, testAgent(), "Что-то неизвестное?")

			So(answer.Text, ShouldEqual, NoInfoReply)
			So(answer.Confidence, ShouldEqual, 0)
			So(chatModel.calls, ShouldBeEmpty)
		})

		Convey("命中时上下文进入提问且带来源标注", func() {
			retriever := &stubRetriever{hits: []rag.Hit{
				{Text: "Our refund window is 14 days.", SourceTitle: "FAQ", Similarity: 0.92},
			}}
			chatModel := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("14 дней", nil)}}
			composer := NewComposer(chatModel, retriever, nil, nil, nil, time.Minute)

			answer := composer.DirectAnswer(ctx, testAgent(), "What is your refund policy?")

			So(answer.Text, ShouldEqual, "14 дней")
			So(answer.Sources, ShouldResemble, []string{"FAQ"})
			So(answer.Confidence, ShouldAlmostEqual, 0.92, 1e-9)

			msgs := chatModel.calls[0]
			So(msgs[0].Role, ShouldEqual, schema.System)
			So(msgs[1].Content, ShouldContainSubstring, "Our refund window is 14 days.")
			So(msgs[1].Content, ShouldContainSubstring, "[Источник: FAQ, часть 1]")

			opts := model.GetCommonOptions(&model.Options{}, chatModel.opts[0]...)
			So(opts.Temperature, ShouldNotBeNil)
			So(*opts.Temperature, ShouldAlmostEqual, 0.3, 1e-6)
		})
	})
}
