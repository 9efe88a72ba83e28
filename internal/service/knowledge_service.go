package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"thecloser/internal/model/knowledge"
	"thecloser/internal/pkg/id"
	"thecloser/internal/pkg/storage"
	"thecloser/internal/rag"
	knowledgerepo "thecloser/internal/repository/knowledge"
)

// KnowledgeService 知识库服务
// 负责文档的上传、索引（提取 -> 清洗 -> 切分 -> 向量化 -> 入库）和删除
type KnowledgeService struct {
	docs     *knowledgerepo.DocumentRepo
	index    *rag.Index
	embedder rag.Embedder
	chunker  *rag.Chunker
	store    storage.Storage
}

// NewKnowledgeService 创建知识库服务
func NewKnowledgeService(docs *knowledgerepo.DocumentRepo, index *rag.Index, embedder rag.Embedder, chunker *rag.Chunker, store storage.Storage) *KnowledgeService {
	return &KnowledgeService{
		docs:     docs,
		index:    index,
		embedder: embedder,
		chunker:  chunker,
		store:    store,
	}
}

// UploadDocumentRequest 上传文档请求
type UploadDocumentRequest struct {
	UserID   string
	Title    string
	FileName string
	Size     int64
	BotIDs   []string
	Data     io.Reader
}

// UploadDocument 上传文档文件并登记（此时尚未索引）
func (s *KnowledgeService) UploadDocument(ctx context.Context, req *UploadDocumentRequest) (*knowledge.Document, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), ".")
	fileType, err := knowledge.ParseFileType(ext)
	if err != nil {
		return nil, err
	}

	docID := id.New()
	key := fmt.Sprintf("knowledge_base/%s/%s.%s", req.UserID, docID, ext)

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.store.Upload(ctx, key, req.Data, contentType); err != nil {
		return nil, fmt.Errorf("upload document file: %w", err)
	}

	title := req.Title
	if title == "" {
		title = req.FileName
	}

	doc := &knowledge.Document{
		ID:         docID,
		UserID:     req.UserID,
		BotIDs:     req.BotIDs,
		Title:      title,
		StorageKey: key,
		FileType:   fileType,
		FileSize:   req.Size,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		// 入库失败时清掉已上传的文件
		if derr := s.store.Delete(ctx, key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("failed to clean up uploaded file")
		}
		return nil, err
	}

	log.Info().Str("document_id", doc.ID).Str("title", doc.Title).Msg("document uploaded")
	return doc, nil
}

// IndexDocument 对文档做完整索引，返回切片数
// 任何一步失败都把文档标记为未索引；向量化失败（EmbeddingError）中止整个流程
func (s *KnowledgeService) IndexDocument(ctx context.Context, docID string) (int, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return 0, err
	}

	count, err := s.indexDocument(ctx, doc)
	if err != nil {
		if merr := s.docs.MarkUnindexed(ctx, docID); merr != nil {
			log.Warn().Err(merr).Str("document_id", docID).Msg("failed to mark document unindexed")
		}
		return 0, err
	}

	if err := s.docs.MarkIndexed(ctx, docID, count); err != nil {
		return 0, err
	}

	log.Info().Str("document_id", docID).Int("fragments", count).Msg("document indexed")
	return count, nil
}

func (s *KnowledgeService) indexDocument(ctx context.Context, doc *knowledge.Document) (int, error) {
	path, cleanup, err := s.fetchToTemp(ctx, doc)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	text, err := rag.Extract(path, doc.FileType)
	if err != nil {
		return 0, err
	}

	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s produced no fragments", doc.ID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, err
	}

	fragments := make([]*knowledge.Fragment, 0, len(chunks))
	for i, chunk := range chunks {
		fragments = append(fragments, &knowledge.Fragment{
			DocumentID: doc.ID,
			Position:   i,
			Text:       chunk,
			Vector:     vectors[i],
		})
	}

	if err := s.index.UpsertDocument(ctx, doc.ID, fragments); err != nil {
		return 0, err
	}
	return len(fragments), nil
}

// fetchToTemp 把存储里的文件取到临时目录（提取器按路径读取）
func (s *KnowledgeService) fetchToTemp(ctx context.Context, doc *knowledge.Document) (string, func(), error) {
	reader, err := s.store.Download(ctx, doc.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("download document file: %w", err)
	}
	defer reader.Close()

	f, err := os.CreateTemp("", "thecloser-doc-*."+string(doc.FileType))
	if err != nil {
		return "", nil, err
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}

	path := f.Name()
	return path, func() { os.Remove(path) }, nil
}

// DeleteDocument 删除文档：级联清掉切片和存储文件
func (s *KnowledgeService) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return err
	}

	if err := s.index.UpsertDocument(ctx, docID, nil); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		log.Warn().Err(err).Str("key", doc.StorageKey).Msg("failed to delete stored file")
	}
	if err := s.docs.Delete(ctx, docID); err != nil {
		return err
	}

	log.Info().Str("document_id", docID).Msg("document deleted")
	return nil
}

// SetBots 更新文档与 Bot 的关联
func (s *KnowledgeService) SetBots(ctx context.Context, docID string, botIDs []string) error {
	return s.docs.SetBots(ctx, docID, botIDs)
}

// ListDocuments 分页查询用户文档
func (s *KnowledgeService) ListDocuments(ctx context.Context, userID string, page, pageSize int64) ([]*knowledge.Document, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.docs.ListByUserID(ctx, userID, page, pageSize)
}
