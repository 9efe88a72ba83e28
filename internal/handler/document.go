package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"thecloser/internal/model/knowledge"
	"thecloser/internal/service"
)

// DocumentHandler 知识库文档处理器
type DocumentHandler struct {
	svc *service.KnowledgeService
}

// NewDocumentHandler 创建知识库文档处理器
func NewDocumentHandler(svc *service.KnowledgeService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// DocumentInfo 文档 DTO
type DocumentInfo struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	BotIDs        []string `json:"bot_ids,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	FileType      string   `json:"file_type"`
	FileSize      int64    `json:"file_size"`
	IsIndexed     bool     `json:"is_indexed"`
	FragmentCount int      `json:"fragment_count"`
}

func toDocumentInfo(doc *knowledge.Document) DocumentInfo {
	return DocumentInfo{
		ID:            doc.ID,
		UserID:        doc.UserID,
		BotIDs:        doc.BotIDs,
		Title:         doc.Title,
		Description:   doc.Description,
		FileType:      string(doc.FileType),
		FileSize:      doc.FileSize,
		IsIndexed:     doc.IsIndexed,
		FragmentCount: doc.FragmentCount,
	}
}

// Upload 上传知识库文档（multipart/form-data），上传后需要单独触发索引
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid file",
			Detail:  err.Error(),
		})
		return
	}

	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40002,
			Message: "user_id is required",
		})
		return
	}

	var botIDs []string
	if raw := c.PostForm("bot_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				botIDs = append(botIDs, id)
			}
		}
	}

	data, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40003,
			Message: "Failed to open file",
			Detail:  err.Error(),
		})
		return
	}
	defer data.Close()

	doc, err := h.svc.UploadDocument(c.Request.Context(), &service.UploadDocumentRequest{
		UserID:   userID,
		Title:    c.PostForm("title"),
		FileName: file.Filename,
		Size:     file.Size,
		BotIDs:   botIDs,
		Data:     data,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40004,
			Message: "Failed to upload document",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "document uploaded",
		"data":    toDocumentInfo(doc),
	})
}

// List 按用户分页列出文档
func (h *DocumentHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40002,
			Message: "user_id is required",
		})
		return
	}

	page, pageSize := pagination(c)
	docs, total, err := h.svc.ListDocuments(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to list documents",
			Detail:  err.Error(),
		})
		return
	}

	list := make([]DocumentInfo, len(docs))
	for i, doc := range docs {
		list[i] = toDocumentInfo(doc)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"documents": list,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

// Index 触发文档索引：抽取、切分、向量化并写入知识索引
func (h *DocumentHandler) Index(c *gin.Context) {
	docID := c.Param("id")

	count, err := h.svc.IndexDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50002,
			Message: "Failed to index document",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "document indexed",
		"data": gin.H{
			"document_id":    docID,
			"fragment_count": count,
		},
	})
}

// Delete 删除文档及其全部索引片段
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("id")

	if err := h.svc.DeleteDocument(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50003,
			Message: "Failed to delete document",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "document deleted",
	})
}

// SetBotsRequest 文档绑定 Bot 请求
type SetBotsRequest struct {
	BotIDs []string `json:"bot_ids"`
}

// SetBots 设置文档对哪些 Bot 可见
func (h *DocumentHandler) SetBots(c *gin.Context) {
	docID := c.Param("id")

	var req SetBotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	if err := h.svc.SetBots(c.Request.Context(), docID, req.BotIDs); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50004,
			Message: "Failed to update document bots",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "document bots updated",
	})
}
