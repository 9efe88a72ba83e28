package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"thecloser/internal/model/chat"
	"thecloser/internal/pkg/id"
)

// ConversationRepo 对话仓库
type ConversationRepo struct {
	collection *mongo.Collection
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
	}
}

// GetOrCreate 按 (bot_id, user_id) 查找对话，不存在则创建
// 唯一索引兜底并发创建：插入冲突时回读已有记录
func (r *ConversationRepo) GetOrCreate(ctx context.Context, botID, userID, userName string) (*chat.Conversation, error) {
	filter := bson.M{"bot_id": botID, "user_id": userID}

	var conv chat.Conversation
	err := r.collection.FindOne(ctx, filter).Decode(&conv)
	if err == nil {
		return &conv, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	now := time.Now()
	conv = chat.Conversation{
		ID:            id.New(),
		BotID:         botID,
		UserID:        userID,
		UserName:      userName,
		StartedAt:     now,
		LastMessageAt: now,
	}
	_, err = r.collection.InsertOne(ctx, &conv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing chat.Conversation
			if ferr := r.collection.FindOne(ctx, filter).Decode(&existing); ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &conv, nil
}

// FindByID 根据ID查询对话
func (r *ConversationRepo) FindByID(ctx context.Context, convID string) (*chat.Conversation, error) {
	var conv chat.Conversation
	err := r.collection.FindOne(ctx, bson.M{"id": convID}).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// TouchLastMessage 更新最后消息时间
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, convID string, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_message_at": at}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": convID}, update)
	return err
}

// MarkLead 标记线索并合并线索数据
// phone/email 非空才覆盖；data 逐键合并，不整体替换
func (r *ConversationRepo) MarkLead(ctx context.Context, convID, phone, email string, data map[string]any) error {
	set := bson.M{"is_lead": true}
	if phone != "" {
		set["lead_phone"] = phone
	}
	if email != "" {
		set["lead_email"] = email
	}
	for k, v := range data {
		set["lead_data."+k] = v
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"id": convID}, bson.M{"$set": set})
	return err
}

// ListByBotID 查询某个 Bot 的对话列表（按最后消息时间倒序）
func (r *ConversationRepo) ListByBotID(ctx context.Context, botID string, page, pageSize int64) ([]*chat.Conversation, int64, error) {
	filter := bson.M{"bot_id": botID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "last_message_at", Value: -1}}).
		SetLimit(pageSize).
		SetSkip((page - 1) * pageSize)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var convs []*chat.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// CountByBotSince 统计某个 Bot 在指定时间之后开始的对话数
func (r *ConversationRepo) CountByBotSince(ctx context.Context, botID string, since, until time.Time) (int64, error) {
	filter := bson.M{
		"bot_id":     botID,
		"started_at": bson.M{"$gte": since, "$lt": until},
	}
	return r.collection.CountDocuments(ctx, filter)
}

// CountLeadsByBotSince 统计某个 Bot 在指定时间窗口内的线索数（按最后消息时间归档）
func (r *ConversationRepo) CountLeadsByBotSince(ctx context.Context, botID string, since, until time.Time) (int64, error) {
	filter := bson.M{
		"bot_id":          botID,
		"is_lead":         true,
		"last_message_at": bson.M{"$gte": since, "$lt": until},
	}
	return r.collection.CountDocuments(ctx, filter)
}

// ListIDsByBot 查询某个 Bot 的全部对话ID（统计任务用）
func (r *ConversationRepo) ListIDsByBot(ctx context.Context, botID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"id": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"bot_id": botID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*chat.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// ListIDsOlderThan 查询最后消息早于给定时间的对话ID（清理任务用）
func (r *ConversationRepo) ListIDsOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	filter := bson.M{"last_message_at": bson.M{"$lt": before}}
	opts := options.Find().SetProjection(bson.M{"id": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*chat.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// DeleteByIDs 删除指定对话
func (r *ConversationRepo) DeleteByIDs(ctx context.Context, convIDs []string) (int64, error) {
	if len(convIDs) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"id": bson.M{"$in": convIDs}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
