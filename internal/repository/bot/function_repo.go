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

// FunctionRepo Bot 函数仓库
type FunctionRepo struct {
	collection *mongo.Collection
}

// NewFunctionRepo 创建函数仓库
func NewFunctionRepo(db *mongo.Database) *FunctionRepo {
	return &FunctionRepo{
		collection: db.Collection("bot_functions"),
	}
}

// Create 创建函数定义（kind 在此校验，未知类型拒绝入库）
func (r *FunctionRepo) Create(ctx context.Context, fn *bot.Function) error {
	if err := fn.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if fn.ID == "" {
		fn.ID = id.New()
	}
	fn.CreatedAt = now
	fn.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, fn)
	return err
}

// ListActiveByBotID 查询某个 Bot 的全部启用函数
func (r *FunctionRepo) ListActiveByBotID(ctx context.Context, botID string) ([]*bot.Function, error) {
	filter := bson.M{"bot_id": botID, "is_active": true}
	opts := options.Find().SetSort(bson.D{bson.E{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var fns []*bot.Function
	if err := cursor.All(ctx, &fns); err != nil {
		return nil, err
	}
	return fns, nil
}

// FindByBotAndName 按 Bot 和函数名查询（模型回调时定位函数定义）
func (r *FunctionRepo) FindByBotAndName(ctx context.Context, botID, name string) (*bot.Function, error) {
	var fn bot.Function
	err := r.collection.FindOne(ctx, bson.M{"bot_id": botID, "name": name}).Decode(&fn)
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

// SetActive 启用/停用函数
func (r *FunctionRepo) SetActive(ctx context.Context, fnID string, active bool) error {
	update := bson.M{
		"$set": bson.M{
			"is_active":  active,
			"updated_at": time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": fnID}, update)
	return err
}

// DeleteByBotID 删除某个 Bot 的全部函数定义
func (r *FunctionRepo) DeleteByBotID(ctx context.Context, botID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"bot_id": botID})
	return err
}
