package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
	"thecloser/internal/rag"
)

// humanizerTemplate 人设模板
// 所有 Bot 共用同一份行为风格指令，只替换名字和公司两个字段
const humanizerTemplate = `
Роль: Ты — %s, сотрудник %s. Пишешь с телефона в Telegram.
Задача: Решить вопрос или продать.

СТИЛЬ (СТРОГО):
1. **Формат:** Пиши предельно кратко. Избегай списков. Короткие фразы — без точки в конце, можно с маленькой буквы.
2. **Табу:** ЗАПРЕЩЕНО писать "Я ИИ", "Языковая модель", "Чем могу помочь?".
3. **Реакция:** На "Привет" отвечай "Привет" или "На связи". Не задавай вопросов, пока не поймешь суть.
4. **Конкретика:** Не зеркаль вопрос (User: "Цена?" -> Bot: "5000", а не "Цена составляет...").

Веди себя как занятой человек, а не как услужливый робот.
`

const (
	defaultCompanyName = "TheCloser"

	// ApologyReply 生成链路任何失败时回给终端用户的固定话术
	ApologyReply = "Извините, я сейчас не могу ответить. Попробуйте позже."
)

// ChatModel 生成所需的最小模型接口
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// KnowledgeRetriever 知识库检索接口
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, botID, query string, topK int) ([]rag.Hit, error)
}

// FunctionSource 提供 Bot 的启用函数列表
type FunctionSource interface {
	ListActiveByBotID(ctx context.Context, botID string) ([]*bot.Function, error)
}

// FunctionExecutor 执行模型请求的函数调用
type FunctionExecutor interface {
	Execute(ctx context.Context, botID, conversationID, name string, args map[string]any) (map[string]any, error)
}

// Answer 生成结果
type Answer struct {
	Text       string   `json:"text"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// Composer 回答生成器
// 组装人设、运营指令、检索上下文和对话历史，调用模型并处理函数回调
type Composer struct {
	chatModel ChatModel
	retriever KnowledgeRetriever
	functions FunctionSource
	executor  FunctionExecutor
	registry  *Registry
	timeout   time.Duration
}

// NewComposer 创建生成器
// retriever / functions / executor 允许为 nil，对应能力自动关闭
func NewComposer(chatModel ChatModel, retriever KnowledgeRetriever, functions FunctionSource, executor FunctionExecutor, registry *Registry, timeout time.Duration) *Composer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Composer{
		chatModel: chatModel,
		retriever: retriever,
		functions: functions,
		executor:  executor,
		registry:  registry,
		timeout:   timeout,
	}
}

// Answer 为一次用户提问生成回答
// 任何内部错误都不会抛给终端用户：记日志并返回固定致歉话术
func (c *Composer) Answer(ctx context.Context, agent *bot.Agent, conversationID, query string, history []*chat.Message) Answer {
	answer, err := c.answer(ctx, agent, conversationID, query, history)
	if err != nil {
		log.Error().Err(err).Str("bot_id", agent.ID).Msg("answer generation failed")
		return Answer{Text: ApologyReply, Sources: []string{}, Confidence: 0}
	}
	return answer
}

func (c *Composer) answer(ctx context.Context, agent *bot.Agent, conversationID, query string, history []*chat.Message) (Answer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// 1. 人设 + 运营指令
	companyName := agent.CompanyName
	if companyName == "" {
		companyName = defaultCompanyName
	}
	systemPrompt := fmt.Sprintf(humanizerTemplate, agent.Name, companyName)
	if agent.SystemPrompt != "" {
		systemPrompt += "\n\n" + agent.SystemPrompt
	}

	// 2. 检索上下文
	// 检索失败只丢上下文不丢回合：记日志后按无命中继续
	sources := []string{}
	confidence := 0.0
	if agent.UseRAG && agent.RAGTopK > 0 && c.retriever != nil {
		hits, err := c.retriever.Retrieve(ctx, agent.ID, query, agent.RAGTopK)
		if err != nil {
			log.Warn().Err(err).Str("bot_id", agent.ID).Msg("knowledge retrieval failed, answering without context")
			hits = nil
		}
		if len(hits) > 0 {
			systemPrompt += "\n\nВАЖНО: Используй информацию из базы знаний для ответа. Она приоритетнее твоих собственных знаний."
			systemPrompt += "\n\nИНФОРМАЦИЯ ИЗ БАЗЫ ЗНАНИЙ:\n" + joinHitTexts(hits)
			sources = dedupSources(hits)
			confidence = meanSimilarity(hits)
		}
	}

	// 3. 消息列表：system + 历史 + 当前提问
	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	messages = append(messages, historyMessages(history, query)...)
	messages = append(messages, schema.UserMessage(query))

	// 4. 模型参数与工具声明
	opts := c.modelOptions(agent)

	var tools []*schema.ToolInfo
	if c.functions != nil {
		fns, err := c.functions.ListActiveByBotID(ctx, agent.ID)
		if err != nil {
			return Answer{}, err
		}
		tools = toToolInfos(fns)
	}

	firstOpts := opts
	if len(tools) > 0 {
		firstOpts = append(append([]model.Option{}, opts...), model.WithTools(tools))
	}

	// 5. 第一次模型调用
	resp, err := c.chatModel.Generate(ctx, messages, firstOpts...)
	if err != nil {
		return Answer{}, err
	}

	// 6. 函数回调：执行后带着结果再调一次模型，最多一轮
	if len(resp.ToolCalls) > 0 {
		messages = append(messages, resp)

		for _, tc := range resp.ToolCalls {
			result := c.executeToolCall(ctx, agent.ID, conversationID, tc)
			messages = append(messages, schema.ToolMessage(result, tc.ID))
		}

		resp, err = c.chatModel.Generate(ctx, messages, opts...)
		if err != nil {
			return Answer{}, err
		}
	}

	return Answer{
		Text:       strings.TrimSpace(resp.Content),
		Sources:    sources,
		Confidence: confidence,
	}, nil
}

// modelOptions 按模型能力决定是否带采样参数
func (c *Composer) modelOptions(agent *bot.Agent) []model.Option {
	opts := []model.Option{model.WithModel(agent.Model)}

	caps := c.registry.Resolve(agent.Model)
	if caps.SupportsSamplingParams {
		opts = append(opts,
			model.WithTemperature(float32(agent.Temperature)),
			model.WithMaxTokens(agent.MaxTokens),
		)
	}
	return opts
}

// executeToolCall 执行单个函数调用，失败时把错误作为结果回给模型
func (c *Composer) executeToolCall(ctx context.Context, botID, conversationID string, tc schema.ToolCall) string {
	name := tc.Function.Name
	log.Info().Str("bot_id", botID).Str("function", name).Msg("executing model function call")

	if c.executor == nil {
		return toolResultJSON(map[string]any{"success": false, "error": "function execution is not available"})
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return toolResultJSON(map[string]any{"success": false, "error": "invalid function arguments"})
	}

	result, err := c.executor.Execute(ctx, botID, conversationID, name, args)
	if err != nil {
		log.Error().Err(err).Str("function", name).Msg("function execution failed")
		return toolResultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return toolResultJSON(result)
}

// historyMessages 历史按时间正序映射到模型角色，bot 映射为 assistant
// 最后一条如果与当前提问完全相同则丢弃，避免重复
func historyMessages(history []*chat.Message, query string) []*schema.Message {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == chat.RoleUser && last.Content == query {
			history = history[:n-1]
		}
	}

	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleBot:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		default:
			out = append(out, schema.UserMessage(msg.Content))
		}
	}
	return out
}

// toToolInfos 把函数定义转换成模型的工具声明格式
func toToolInfos(fns []*bot.Function) []*schema.ToolInfo {
	tools := make([]*schema.ToolInfo, 0, len(fns))
	for _, fn := range fns {
		params := make(map[string]*schema.ParameterInfo, len(fn.Parameters))
		for name, spec := range fn.Parameters {
			params[name] = &schema.ParameterInfo{
				Type:     toDataType(spec.Type),
				Desc:     spec.Description,
				Required: spec.Required,
			}
		}
		tools = append(tools, &schema.ToolInfo{
			Name:        fn.Name,
			Desc:        fn.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return tools
}

func toDataType(t string) schema.DataType {
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

func joinHitTexts(hits []rag.Hit) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}
	return strings.Join(texts, "\n\n")
}

func dedupSources(hits []rag.Hit) []string {
	seen := make(map[string]bool, len(hits))
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.SourceTitle == "" || seen[h.SourceTitle] {
			continue
		}
		seen[h.SourceTitle] = true
		sources = append(sources, h.SourceTitle)
	}
	return sources
}

func meanSimilarity(hits []rag.Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Similarity
	}
	return sum / float64(len(hits))
}

func toolResultJSON(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"error":"unserializable function result"}`
	}
	return string(data)
}
