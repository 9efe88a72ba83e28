package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	analyticsrepo "thecloser/internal/repository/analytics"
	botrepo "thecloser/internal/repository/bot"

	"thecloser/internal/model/bot"
)

// BotHandler Bot 管理处理器
type BotHandler struct {
	agents    *botrepo.AgentRepo
	analytics *analyticsrepo.DailyRepo
}

// NewBotHandler 创建 Bot 管理处理器
func NewBotHandler(agents *botrepo.AgentRepo, analytics *analyticsrepo.DailyRepo) *BotHandler {
	return &BotHandler{agents: agents, analytics: analytics}
}

// CreateBotRequest 创建 Bot 请求
type CreateBotRequest struct {
	UserID       string          `json:"user_id" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	CompanyName  string          `json:"company_name"`
	Description  string          `json:"description"`
	Platform     string          `json:"platform"`
	SystemPrompt string          `json:"system_prompt"`
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature"`
	MaxTokens    int             `json:"max_tokens"`
	UseRAG       bool            `json:"use_rag"`
	RAGTopK      int             `json:"rag_top_k"`
	Credentials  bot.Credentials `json:"credentials"`
}

// Create 创建 Bot，初始状态 inactive
func (h *BotHandler) Create(c *gin.Context) {
	var req CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	platform := bot.Platform(req.Platform)
	if platform == "" {
		platform = bot.PlatformTelegram
	}

	agent := &bot.Agent{
		UserID:       req.UserID,
		Name:         req.Name,
		CompanyName:  req.CompanyName,
		Description:  req.Description,
		Platform:     platform,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		UseRAG:       req.UseRAG,
		RAGTopK:      req.RAGTopK,
		Credentials:  req.Credentials,
	}

	if err := h.agents.Create(c.Request.Context(), agent); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to create bot",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "bot created",
		"data":    agent,
	})
}

// List 按用户列出 Bot
func (h *BotHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40002,
			Message: "user_id is required",
		})
		return
	}

	agents, err := h.agents.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to list bots",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"bots": agents},
	})
}

// Get 查询单个 Bot
func (h *BotHandler) Get(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    agent,
	})
}

// Pause 暂停 Bot，worker 下一轮对账会断开连接
func (h *BotHandler) Pause(c *gin.Context) {
	h.setStatus(c, bot.StatusPaused, "bot paused")
}

// Resume 恢复 Bot，worker 下一轮对账会重新连接
func (h *BotHandler) Resume(c *gin.Context) {
	h.setStatus(c, bot.StatusActive, "bot resumed")
}

func (h *BotHandler) setStatus(c *gin.Context, status bot.Status, message string) {
	botID := c.Param("id")
	if err := h.agents.UpdateStatus(c.Request.Context(), botID, status); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to update bot status",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    gin.H{"bot_id": botID, "status": status},
	})
}

// Analytics 查询 Bot 的按日统计
func (h *BotHandler) Analytics(c *gin.Context) {
	botID := c.Param("id")
	from := c.Query("from")
	to := c.Query("to")

	daily, err := h.analytics.ListByBot(c.Request.Context(), botID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to load analytics",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"analytics": daily},
	})
}
