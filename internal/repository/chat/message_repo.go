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

// MessageRepo 消息仓库
// 消息只追加，不支持修改和单条删除
type MessageRepo struct {
	collection *mongo.Collection
}

// NewMessageRepo 创建消息仓库
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
	}
}

// Append 追加一条消息
func (r *MessageRepo) Append(ctx context.Context, msg *chat.Message) error {
	if msg.ID == "" {
		msg.ID = id.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

// ListRecent 查询对话最近 N 条消息，按时间正序返回
// 先倒序取 N 条再翻转，保证窗口是最新的而顺序是时间正序
func (r *MessageRepo) ListRecent(ctx context.Context, convID string, limit int64) ([]*chat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListByConversation 查询对话全部消息（按时间正序，分页）
func (r *MessageRepo) ListByConversation(ctx context.Context, convID string, page, pageSize int64) ([]*chat.Message, int64, error) {
	filter := bson.M{"conversation_id": convID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: 1}}).
		SetLimit(pageSize).
		SetSkip((page - 1) * pageSize)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var msgs []*chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// CountByConversationsSince 统计一组对话在时间窗口内的消息数
func (r *MessageRepo) CountByConversationsSince(ctx context.Context, convIDs []string, since, until time.Time) (int64, error) {
	if len(convIDs) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"conversation_id": bson.M{"$in": convIDs},
		"created_at":      bson.M{"$gte": since, "$lt": until},
	}
	return r.collection.CountDocuments(ctx, filter)
}

// DeleteByConversationIDs 删除一组对话的全部消息（清理任务用）
func (r *MessageRepo) DeleteByConversationIDs(ctx context.Context, convIDs []string) (int64, error) {
	if len(convIDs) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"conversation_id": bson.M{"$in": convIDs}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
