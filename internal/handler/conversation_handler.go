package handler

import (
	"errors"
	"net/http"
	"strconv"

	"medassist-go/internal/model"
	"medassist-go/internal/service"
	"medassist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConversationHandler 负责处理对话记录相关的 API 请求。
type ConversationHandler struct {
	convService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(convService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// CreateConversation 为当前用户创建一个新的活跃对话。
// 语音会话由编排器自行建会话；这个接口服务于纯文字对话入口。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conv, err := h.convService.CreateConversation(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("CreateConversation: create failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conv,
	})
}

// ListConversations 分页返回当前用户的历史对话列表。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	conversations, total, err := h.convService.ListConversations(c.Request.Context(), user.ID, (page-1)*size, size)
	if err != nil {
		log.Error("ListConversations: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取对话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"list":  conversations,
			"total": total,
			"page":  page,
			"size":  size,
		},
	})
}

// GetDetail 返回单个对话的详情，包含按时间排序的消息与图像时间线。
func (h *ConversationHandler) GetDetail(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的对话 ID"})
		return
	}

	detail, err := h.convService.GetDetail(c.Request.Context(), uint(conversationID), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("GetDetail: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取对话详情失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    detail,
	})
}

// AppendMessageRequest 定义了追加消息 API 的请求体结构。
type AppendMessageRequest struct {
	Role     string  `json:"role" binding:"required,oneof=user agent camera"`
	Content  string  `json:"content" binding:"required"`
	ToolName *string `json:"toolName"`
	ToolArgs *string `json:"toolArgs"`
}

// AppendMessage 向指定对话中追加一条消息。
// 每次写入都会重新校验对话归属，防止越权写入。
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的对话 ID"})
		return
	}

	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	message, err := h.convService.AppendMessage(c.Request.Context(), uint(conversationID), user.ID, req.Role, req.Content, req.ToolName, req.ToolArgs)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("AppendMessage: persist failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存消息失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    message,
	})
}

// EndConversation 将指定对话标记为已结束，并触发异步的标题与摘要生成。
func (h *ConversationHandler) EndConversation(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的对话 ID"})
		return
	}

	if err := h.convService.EndConversation(c.Request.Context(), uint(conversationID), user.ID); err != nil {
		if errors.Is(err, service.ErrNotOwner) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("EndConversation: update failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "结束对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    nil,
	})
}

// DeleteConversation 删除指定对话及其关联的消息与图像记录。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的对话 ID"})
		return
	}

	if err := h.convService.DeleteConversation(c.Request.Context(), uint(conversationID), user.ID); err != nil {
		if errors.Is(err, service.ErrNotOwner) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("DeleteConversation: delete failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "删除成功",
		"data":    nil,
	})
}
