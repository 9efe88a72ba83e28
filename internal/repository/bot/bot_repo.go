package bot

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"thecloser/internal/model/bot"
	"thecloser/internal/pkg/id"
)

// AgentRepo Bot 仓库
// 使用UUID作为ID，无需ObjectID转换
type AgentRepo struct {
	collection *mongo.Collection
}

// NewAgentRepo 创建 Bot 仓库
func NewAgentRepo(db *mongo.Database) *AgentRepo {
	return &AgentRepo{
		collection: db.Collection("bot_agents"),
	}
}

// Create 创建 Bot
func (r *AgentRepo) Create(ctx context.Context, agent *bot.Agent) error {
	now := time.Now()
	if agent.ID == "" {
		agent.ID = id.New()
	}
	if agent.Status == "" {
		agent.Status = bot.StatusInactive
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, agent)
	return err
}

// FindByID 根据ID查询 Bot
func (r *AgentRepo) FindByID(ctx context.Context, botID string) (*bot.Agent, error) {
	var agent bot.Agent
	err := r.collection.FindOne(ctx, bson.M{"id": botID}).Decode(&agent)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListByUserID 查询某个用户的全部 Bot
func (r *AgentRepo) ListByUserID(ctx context.Context, userID string) ([]*bot.Agent, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var agents []*bot.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// ListDesired 查询某个平台上期望在线的 Bot
// 期望集合 = status 为 active 且凭证完整的 Bot；调谐循环以此为准
func (r *AgentRepo) ListDesired(ctx context.Context, platform bot.Platform) ([]*bot.Agent, error) {
	filter := bson.M{
		"platform":                   platform,
		"status":                     bot.StatusActive,
		"credentials.session_string": bson.M{"$ne": ""},
		"credentials.api_id":         bson.M{"$ne": ""},
		"credentials.api_hash":       bson.M{"$ne": ""},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var agents []*bot.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// UpdateStatus 更新 Bot 状态
func (r *AgentRepo) UpdateStatus(ctx context.Context, botID string, status bot.Status) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": botID}, update)
	return err
}

// Update 更新 Bot
func (r *AgentRepo) Update(ctx context.Context, botID string, update bson.M) error {
	if setDoc, ok := update["$set"].(bson.M); ok {
		setDoc["updated_at"] = time.Now()
	} else {
		update["$set"] = bson.M{"updated_at": time.Now()}
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": botID}, update)
	return err
}

// Delete 删除 Bot
func (r *AgentRepo) Delete(ctx context.Context, botID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"id": botID})
	return err
}

// ListActiveIDs 查询全部 active 状态的 Bot ID（统计任务用）
func (r *AgentRepo) ListActiveIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"id": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"status": bot.StatusActive}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var agents []*bot.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	return ids, nil
}
