package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
)

// functionSource 函数定义查询
type functionSource interface {
	FindByBotAndName(ctx context.Context, botID, name string) (*bot.Function, error)
}

// agentSource Bot 查询
type agentSource interface {
	FindByID(ctx context.Context, botID string) (*bot.Agent, error)
}

// leadStore 线索落库
type leadStore interface {
	FindByID(ctx context.Context, convID string) (*chat.Conversation, error)
	MarkLead(ctx context.Context, convID, phone, email string, data map[string]any) error
}

// OwnerNotifier 给 Bot 运营者发通知
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, botID, text string) error
}

// FunctionService 执行模型请求的函数调用
// 按函数定义里的 kind 标签分发到具体实现；未知 kind 在入库时已被拒绝
type FunctionService struct {
	functions functionSource
	agents    agentSource
	convs     leadStore
	notifier  OwnerNotifier
	baseURL   string // 通知里对话链接的前缀
}

// NewFunctionService 创建函数执行服务
// notifier 允许为 nil（Bot 不在线时通知静默跳过）
func NewFunctionService(functions functionSource, agents agentSource, convs leadStore, notifier OwnerNotifier, baseURL string) *FunctionService {
	return &FunctionService{
		functions: functions,
		agents:    agents,
		convs:     convs,
		notifier:  notifier,
		baseURL:   baseURL,
	}
}

// Execute 执行一次函数调用，结果以结构化 map 形式回给模型
// 执行失败不抛错误：错误信息放进结果里，由模型向用户解释
func (s *FunctionService) Execute(ctx context.Context, botID, conversationID, name string, args map[string]any) (map[string]any, error) {
	fn, err := s.functions.FindByBotAndName(ctx, botID, name)
	if err != nil {
		log.Error().Str("bot_id", botID).Str("function", name).Msg("function not found")
		return map[string]any{"success": false, "error": fmt.Sprintf("function %s not found", name)}, nil
	}
	if !fn.IsActive {
		return map[string]any{"success": false, "error": fmt.Sprintf("function %s is disabled", name)}, nil
	}

	log.Info().
		Str("bot_id", botID).
		Str("conversation_id", conversationID).
		Str("function", name).
		Str("kind", string(fn.Kind)).
		Msg("executing function")

	switch fn.Kind {
	case bot.FunctionSaveLead:
		return s.saveLead(ctx, botID, conversationID, args), nil
	case bot.FunctionCallManager:
		return s.callManager(ctx, botID, conversationID, args), nil
	default:
		// Validate 在入库时拒绝未知 kind，到这里说明数据被绕过校验写入
		return map[string]any{"success": false, "error": fmt.Sprintf("unknown function kind: %s", fn.Kind)}, nil
	}
}

// saveLead 把模型抽取的线索字段写进对话并通知运营者
func (s *FunctionService) saveLead(ctx context.Context, botID, conversationID string, args map[string]any) map[string]any {
	agent, err := s.agents.FindByID(ctx, botID)
	if err != nil {
		return map[string]any{"success": false, "error": "bot not found"}
	}
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return map[string]any{"success": false, "error": "conversation not found"}
	}

	phone := firstString(args, "phone", "телефон", "номер")
	email := firstString(args, "email", "почта")

	if err := s.convs.MarkLead(ctx, conv.ID, phone, email, args); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to save lead")
		return map[string]any{"success": false, "error": "Не удалось сохранить данные"}
	}

	s.notify(ctx, botID, s.leadNotification(agent, conv, args))

	return map[string]any{
		"success":   true,
		"message":   "Данные успешно сохранены.",
		"lead_data": args,
	}
}

// callManager 请求人工接管并通知运营者
func (s *FunctionService) callManager(ctx context.Context, botID, conversationID string, args map[string]any) map[string]any {
	agent, err := s.agents.FindByID(ctx, botID)
	if err != nil {
		return map[string]any{"success": false, "error": "bot not found"}
	}
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return map[string]any{"success": false, "error": "conversation not found"}
	}

	reason := firstString(args, "reason", "причина")
	if reason == "" {
		reason = "Клиент требует человека"
	}

	var sb strings.Builder
	sb.WriteString("ТРЕБУЕТСЯ ЧЕЛОВЕК!\n\n")
	fmt.Fprintf(&sb, "Юзер: @%s (%s)\n\n", conv.UserID, conv.UserName)
	fmt.Fprintf(&sb, "Ситуация:\n%s\n\n", reason)
	fmt.Fprintf(&sb, "Бот: %s\n", agent.Name)
	fmt.Fprintf(&sb, "Диалог: %s/dashboard/conversations/%s\n", s.baseURL, conv.ID)
	fmt.Fprintf(&sb, "%s", time.Now().Format("02.01.2006 15:04"))

	s.notify(ctx, botID, sb.String())

	return map[string]any{
		"success": true,
		"message": "Менеджер уведомлен.",
	}
}

// leadNotification 组装新线索通知文本，字段按名字排序保证稳定
func (s *FunctionService) leadNotification(agent *bot.Agent, conv *chat.Conversation, args map[string]any) string {
	var sb strings.Builder
	sb.WriteString("НОВЫЙ ЛИД!\n\n")

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := k
		if r := []rune(k); len(r) > 0 {
			label = strings.ToUpper(string(r[0])) + string(r[1:])
		}
		fmt.Fprintf(&sb, "%s: %v\n", strings.ReplaceAll(label, "_", " "), args[k])
	}

	fmt.Fprintf(&sb, "\nБот: %s\n", agent.Name)
	fmt.Fprintf(&sb, "Диалог: %s/dashboard/conversations/%s", s.baseURL, conv.ID)
	return sb.String()
}

func (s *FunctionService) notify(ctx context.Context, botID, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOwner(ctx, botID, text); err != nil {
		log.Warn().Err(err).Str("bot_id", botID).Msg("failed to notify bot owner")
	}
}

// firstString 按给定顺序取第一个非空字符串参数
func firstString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if str, ok := v.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}
