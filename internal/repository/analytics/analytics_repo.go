package analytics

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"thecloser/internal/model/analytics"
	"thecloser/internal/pkg/id"
)

// DailyRepo 按日统计仓库
type DailyRepo struct {
	collection *mongo.Collection
}

// NewDailyRepo 创建统计仓库
func NewDailyRepo(db *mongo.Database) *DailyRepo {
	return &DailyRepo{
		collection: db.Collection("analytics"),
	}
}

// Upsert 写入某个 Bot 某一天的统计，已存在则覆盖计数
// 汇总任务每天跑一次，重复执行结果一致
func (r *DailyRepo) Upsert(ctx context.Context, daily *analytics.Daily) error {
	now := time.Now()
	filter := bson.M{"bot_id": daily.BotID, "date": daily.Date}
	update := bson.M{
		"$set": bson.M{
			"conversations_count": daily.ConversationsCount,
			"leads_count":         daily.LeadsCount,
			"messages_count":      daily.MessagesCount,
			"updated_at":          now,
		},
		"$setOnInsert": bson.M{
			"id":         id.New(),
			"bot_id":     daily.BotID,
			"date":       daily.Date,
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// ListByBot 查询某个 Bot 一段时间的统计（按日期正序）
func (r *DailyRepo) ListByBot(ctx context.Context, botID, fromDate, toDate string) ([]*analytics.Daily, error) {
	filter := bson.M{
		"bot_id": botID,
		"date":   bson.M{"$gte": fromDate, "$lte": toDate},
	}
	opts := options.Find().SetSort(bson.D{bson.E{Key: "date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*analytics.Daily
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}
