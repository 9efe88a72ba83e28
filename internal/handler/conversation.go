package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	chatrepo "thecloser/internal/repository/chat"
)

// ConversationHandler 对话查询处理器
type ConversationHandler struct {
	convs    *chatrepo.ConversationRepo
	messages *chatrepo.MessageRepo
}

// NewConversationHandler 创建对话查询处理器
func NewConversationHandler(convs *chatrepo.ConversationRepo, messages *chatrepo.MessageRepo) *ConversationHandler {
	return &ConversationHandler{convs: convs, messages: messages}
}

// List 按 Bot 分页列出对话
func (h *ConversationHandler) List(c *gin.Context) {
	botID := c.Query("bot_id")
	if botID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40002,
			Message: "bot_id is required",
		})
		return
	}

	page, pageSize := pagination(c)
	convs, total, err := h.convs.ListByBotID(c.Request.Context(), botID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to list conversations",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"conversations": convs,
			"total":         total,
			"page":          page,
			"page_size":     pageSize,
		},
	})
}

// Messages 按时间正序分页列出一个对话的消息
func (h *ConversationHandler) Messages(c *gin.Context) {
	convID := c.Param("id")

	page, pageSize := pagination(c)
	msgs, total, err := h.messages.ListByConversation(c.Request.Context(), convID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to list messages",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"messages":  msgs,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}
