package knowledge

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FileType 知识库文件类型
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDocx FileType = "docx"
	FileTypeTxt  FileType = "txt"
	FileTypeMd   FileType = "md"
)

// ParseFileType 按扩展名解析文件类型
func ParseFileType(ext string) (FileType, error) {
	switch FileType(ext) {
	case FileTypePDF, FileTypeDocx, FileTypeTxt, FileTypeMd:
		return FileType(ext), nil
	default:
		return "", fmt.Errorf("unsupported file type: %q", ext)
	}
}

// Document 知识库文档
// 归属用户；与 Bot 是多对多（同一份文件可供多个 Bot 使用）
type Document struct {
	ID     string   `bson:"id" json:"id"`
	UserID string   `bson:"user_id" json:"user_id"`
	BotIDs []string `bson:"bot_ids,omitempty" json:"bot_ids,omitempty"`

	Title       string   `bson:"title" json:"title"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	StorageKey  string   `bson:"storage_key" json:"storage_key"`
	FileType    FileType `bson:"file_type" json:"file_type"`
	FileSize    int64    `bson:"file_size" json:"file_size"`

	// 索引状态
	IsIndexed     bool       `bson:"is_indexed" json:"is_indexed"`
	FragmentCount int        `bson:"fragment_count" json:"fragment_count"`
	IndexedAt     *time.Time `bson:"indexed_at,omitempty" json:"indexed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Collection 返回集合名称
func (d *Document) Collection() string {
	return "documents"
}

// EnsureIndexes 创建和维护索引
func (d *Document) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(d.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "is_indexed", Value: 1}},
			Options: options.Index().SetName("idx_user_indexed"),
		},
		{
			Keys:    bson.D{bson.E{Key: "bot_ids", Value: 1}},
			Options: options.Index().SetName("idx_bots"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
