package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"thecloser/internal/model/bot"
)

// 直接问答模式的固定话术
const (
	// NoInfoReply 知识库里没有相关信息时的固定回答
	NoInfoReply = "К сожалению, я не нашел информации по вашему вопросу в базе знаний."

	// DirectErrorReply 直接问答失败时的固定回答
	DirectErrorReply = "Извините, произошла ошибка при генерации ответа. Пожалуйста, попробуйте позже."
)

// directSystemPrompt 直接问答的系统指令：严格只用检索到的上下文回答
const directSystemPrompt = `Ты — ассистент, который отвечает на вопросы СТРОГО на основе предоставленного контекста.

ВАЖНЫЕ ПРАВИЛА:
1. Используй ТОЛЬКО информацию из предоставленного контекста
2. Если ответа нет в контексте, честно скажи "В предоставленных документах нет информации по этому вопросу"
3. Не добавляй свои знания или домыслы
4. Отвечай четко и по существу
5. Указывай источник информации, если это уместно`

// directTemperature 直接问答用低温度，答案更贴近原文
const directTemperature float32 = 0.3

// DirectAnswer 不带人设和历史的知识库直接问答
// 用于运营方在后台测试自己的知识库：检索为空直接返回固定话术，不调模型
func (c *Composer) DirectAnswer(ctx context.Context, agent *bot.Agent, query string) Answer {
	if c.retriever == nil {
		return Answer{Text: NoInfoReply, Sources: []string{}, Confidence: 0}
	}

	topK := agent.RAGTopK
	if topK <= 0 {
		topK = 5
	}

	hits, err := c.retriever.Retrieve(ctx, agent.ID, query, topK)
	if err != nil {
		log.Error().Err(err).Str("bot_id", agent.ID).Msg("direct answer retrieval failed")
		return Answer{Text: DirectErrorReply, Sources: []string{}, Confidence: 0}
	}
	if len(hits) == 0 {
		return Answer{Text: NoInfoReply, Sources: []string{}, Confidence: 0}
	}

	var contextBlock strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&contextBlock, "[Источник: %s, часть %d]\n%s\n\n", h.SourceTitle, i+1, h.Text)
	}

	userPrompt := fmt.Sprintf("Контекст из базы знаний:\n%s\nВопрос пользователя: %s\n\nОтветь на вопрос на основе предоставленного контекста:", contextBlock.String(), query)

	messages := []*schema.Message{
		schema.SystemMessage(directSystemPrompt),
		schema.UserMessage(userPrompt),
	}

	opts := []model.Option{model.WithModel(agent.Model)}
	if c.registry.Resolve(agent.Model).SupportsSamplingParams {
		temp := directTemperature
		opts = append(opts, model.WithTemperature(temp))
		if agent.MaxTokens > 0 {
			opts = append(opts, model.WithMaxTokens(agent.MaxTokens))
		}
	}

	resp, err := c.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		log.Error().Err(err).Str("bot_id", agent.ID).Msg("direct answer generation failed")
		return Answer{Text: DirectErrorReply, Sources: []string{}, Confidence: 0}
	}

	return Answer{
		Text:       strings.TrimSpace(resp.Content),
		Sources:    dedupSources(hits),
		Confidence: meanSimilarity(hits),
	}
}
