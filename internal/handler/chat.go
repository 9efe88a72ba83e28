package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"thecloser/internal/ai"
	botrepo "thecloser/internal/repository/bot"
)

// ChatHandler 知识库问答处理器
// 面向运营方的测试入口：不走消息平台，直接基于 Bot 的知识库回答
type ChatHandler struct {
	agents   *botrepo.AgentRepo
	composer *ai.Composer
}

// NewChatHandler 创建知识库问答处理器
func NewChatHandler(agents *botrepo.AgentRepo, composer *ai.Composer) *ChatHandler {
	return &ChatHandler{agents: agents, composer: composer}
}

// ChatRequest 问答请求
type ChatRequest struct {
	Query string `json:"query" binding:"required"`
}

// ChatResponseData 问答响应数据
type ChatResponseData struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Ask 严格基于知识库回答一个问题，不带人设和历史
func (h *ChatHandler) Ask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	agent, err := h.agents.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := 50001
		if err == mongo.ErrNoDocuments {
			status = http.StatusNotFound
			code = 40401
		}
		c.JSON(status, ErrorResponse{
			Code:    code,
			Message: "Failed to get bot",
			Detail:  err.Error(),
		})
		return
	}

	answer := h.composer.DirectAnswer(c.Request.Context(), agent, req.Query)

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": ChatResponseData{
			Answer:     answer.Text,
			Sources:    answer.Sources,
			Confidence: answer.Confidence,
		},
	})
}
