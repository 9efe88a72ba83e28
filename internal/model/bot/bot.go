package bot

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Platform 消息平台
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
)

// Status Bot 生命周期状态
type Status string

const (
	StatusInactive    Status = "inactive"     // 未启动
	StatusWaitingCode Status = "waiting_code" // 等待登录验证码
	StatusActive      Status = "active"       // 运行中
	StatusPaused      Status = "paused"       // 暂停
	StatusError       Status = "error"        // 凭证失效等错误
)

// Credentials 平台登录凭证
type Credentials struct {
	PhoneNumber   string `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	APIID         string `bson:"api_id,omitempty" json:"api_id,omitempty"`
	APIHash       string `bson:"api_hash,omitempty" json:"-"`
	SessionString string `bson:"session_string,omitempty" json:"-"`
}

// Valid 凭证是否完整（可用于建立连接）
func (c Credentials) Valid() bool {
	return c.SessionString != "" && c.APIID != "" && c.APIHash != ""
}

// Agent Bot 实体
// 一个已部署的 AI 助手：人设、模型参数、RAG 开关、平台凭证
type Agent struct {
	ID          string   `bson:"id" json:"id"`
	UserID      string   `bson:"user_id" json:"user_id"` // 所属用户
	Name        string   `bson:"name" json:"name"`
	CompanyName string   `bson:"company_name,omitempty" json:"company_name,omitempty"` // 用于人设文案
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Platform    Platform `bson:"platform" json:"platform"`
	Status      Status   `bson:"status" json:"status"`

	Credentials Credentials `bson:"credentials" json:"credentials"`

	// AI 设置
	SystemPrompt string  `bson:"system_prompt" json:"system_prompt"` // 运营方自定义指令
	Model        string  `bson:"model" json:"model"`
	Temperature  float64 `bson:"temperature" json:"temperature"` // 推理系模型忽略
	MaxTokens    int     `bson:"max_tokens" json:"max_tokens"`   // 推理系模型忽略

	// RAG 设置
	UseRAG  bool `bson:"use_rag" json:"use_rag"`
	RAGTopK int  `bson:"rag_top_k" json:"rag_top_k"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Collection 返回集合名称
func (a *Agent) Collection() string {
	return "bot_agents"
}

// EnsureIndexes 创建和维护索引
func (a *Agent) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(a.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_user_status"),
		},
		{
			Keys:    bson.D{bson.E{Key: "platform", Value: 1}, bson.E{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_platform_status"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
