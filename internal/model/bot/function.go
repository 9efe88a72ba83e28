package bot

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FunctionKind 函数行为类型（封闭枚举，加载时校验）
type FunctionKind string

const (
	FunctionSaveLead    FunctionKind = "save_lead"    // 保存线索并通知运营
	FunctionCallManager FunctionKind = "call_manager" // 呼叫人工
)

// ParseFunctionKind 校验并解析函数类型，未知标签直接拒绝
func ParseFunctionKind(s string) (FunctionKind, error) {
	switch FunctionKind(s) {
	case FunctionSaveLead:
		return FunctionSaveLead, nil
	case FunctionCallManager:
		return FunctionCallManager, nil
	default:
		return "", fmt.Errorf("unknown function kind: %q", s)
	}
}

// ParameterSpec 函数参数定义
type ParameterSpec struct {
	Type        string `bson:"type" json:"type"` // string / number / integer / boolean
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Required    bool   `bson:"required,omitempty" json:"required,omitempty"`
}

// Function 运营方为 Bot 定义的可调用工具
// 生成链路只读；按请求转换为模型的 tool 声明格式
type Function struct {
	ID          string                   `bson:"id" json:"id"`
	BotID       string                   `bson:"bot_id" json:"bot_id"`
	Name        string                   `bson:"name" json:"name"` // 每个 Bot 内唯一
	Description string                   `bson:"description" json:"description"`
	Parameters  map[string]ParameterSpec `bson:"parameters,omitempty" json:"parameters,omitempty"`
	Kind        FunctionKind             `bson:"kind" json:"kind"`
	IsActive    bool                     `bson:"is_active" json:"is_active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Validate 校验函数定义（未知 kind 在此拒绝，而不是调用时）
func (f *Function) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("function name is required")
	}
	if _, err := ParseFunctionKind(string(f.Kind)); err != nil {
		return err
	}
	return nil
}

// Collection 返回集合名称
func (f *Function) Collection() string {
	return "bot_functions"
}

// EnsureIndexes 创建和维护索引
func (f *Function) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(f.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "bot_id", Value: 1}, bson.E{Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_bot_name").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "bot_id", Value: 1}, bson.E{Key: "is_active", Value: 1}},
			Options: options.Index().SetName("idx_bot_active"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
