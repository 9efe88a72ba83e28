package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"thecloser/internal/model/analytics"
)

type retentionStore interface {
	ListIDsOlderThan(ctx context.Context, before time.Time) ([]string, error)
	DeleteByIDs(ctx context.Context, convIDs []string) (int64, error)
	ListIDsByBot(ctx context.Context, botID string) ([]string, error)
	CountByBotSince(ctx context.Context, botID string, since, until time.Time) (int64, error)
	CountLeadsByBotSince(ctx context.Context, botID string, since, until time.Time) (int64, error)
}

type messageJanitorStore interface {
	DeleteByConversationIDs(ctx context.Context, convIDs []string) (int64, error)
	CountByConversationsSince(ctx context.Context, convIDs []string, since, until time.Time) (int64, error)
}

type botLister interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type analyticsStore interface {
	Upsert(ctx context.Context, daily *analytics.Daily) error
}

// Janitor 后台维护任务：过期对话清理和按日统计汇总
// 每天跑一次；两类任务都设计为可重复执行
type Janitor struct {
	convs         retentionStore
	messages      messageJanitorStore
	bots          botLister
	analytics     analyticsStore
	retentionDays int
}

// NewJanitor 创建维护任务
func NewJanitor(convs retentionStore, messages messageJanitorStore, bots botLister, analyticsRepo analyticsStore, retentionDays int) *Janitor {
	if retentionDays <= 0 {
		retentionDays = 180
	}
	return &Janitor{
		convs:         convs,
		messages:      messages,
		bots:          bots,
		analytics:     analyticsRepo,
		retentionDays: retentionDays,
	}
}

// Run 每 24 小时执行一轮维护
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.SweepExpired(ctx); err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
			}
			if err := j.RollupDaily(ctx, time.Now().AddDate(0, 0, -1)); err != nil {
				log.Error().Err(err).Msg("daily rollup failed")
			}
		}
	}
}

// SweepExpired 删除最后活跃时间超过保留期的对话及其全部消息
func (j *Janitor) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	ids, err := j.convs.ListIDsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := j.messages.DeleteByConversationIDs(ctx, ids); err != nil {
		return 0, err
	}
	deleted, err := j.convs.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("expired conversations swept")
	return deleted, nil
}

// RollupDaily 汇总指定日期（按自然日）每个在线 Bot 的对话、线索和消息数
// 对 (bot, date) 做 upsert，重跑覆盖同一天的数据
func (j *Janitor) RollupDaily(ctx context.Context, day time.Time) error {
	since := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	until := since.AddDate(0, 0, 1)
	date := since.Format("2006-01-02")

	botIDs, err := j.bots.ListActiveIDs(ctx)
	if err != nil {
		return err
	}

	for _, botID := range botIDs {
		conversations, err := j.convs.CountByBotSince(ctx, botID, since, until)
		if err != nil {
			return err
		}
		leads, err := j.convs.CountLeadsByBotSince(ctx, botID, since, until)
		if err != nil {
			return err
		}

		convIDs, err := j.convs.ListIDsByBot(ctx, botID)
		if err != nil {
			return err
		}
		messages, err := j.messages.CountByConversationsSince(ctx, convIDs, since, until)
		if err != nil {
			return err
		}

		daily := &analytics.Daily{
			BotID:              botID,
			Date:               date,
			ConversationsCount: int(conversations),
			LeadsCount:         int(leads),
			MessagesCount:      int(messages),
		}
		if err := j.analytics.Upsert(ctx, daily); err != nil {
			return err
		}
	}

	log.Info().Str("date", date).Int("bots", len(botIDs)).Msg("daily analytics rolled up")
	return nil
}
