package handler

import (
	"errors"
	"net/http"
	"strconv"

	"medassist-go/internal/service"
	"medassist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminHandler 负责处理医护端与管理端的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 分页返回全部用户，仅管理员可用。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	users, total, err := h.adminService.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		log.Error("ListUsers: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用户列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"list":  users,
			"total": total,
			"page":  page,
			"size":  size,
		},
	})
}

// UserConversations 分页返回指定患者的对话列表，供医护端查看。
func (h *AdminHandler) UserConversations(c *gin.Context) {
	targetUserID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户 ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	conversations, total, err := h.adminService.UserConversations(c.Request.Context(), uint(targetUserID), (page-1)*size, size)
	if err != nil {
		log.Error("UserConversations: query failed", err)
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

// UserConversationDetail 返回指定患者某次对话的完整时间线，供医护端查看。
func (h *AdminHandler) UserConversationDetail(c *gin.Context) {
	targetUserID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户 ID"})
		return
	}
	conversationID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的对话 ID"})
		return
	}

	detail, err := h.adminService.UserConversationDetail(c.Request.Context(), uint(targetUserID), uint(conversationID))
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("UserConversationDetail: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取对话详情失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    detail,
	})
}

// SearchTranscripts 在对话转写全文索引中检索，可选限定某个患者。
func (h *AdminHandler) SearchTranscripts(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少查询关键词"})
		return
	}

	var userID uint
	if v := c.Query("userId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户 ID"})
			return
		}
		userID = uint(id)
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if size < 1 || size > 100 {
		size = 20
	}

	results, err := h.adminService.SearchTranscripts(c.Request.Context(), query, userID, size)
	if err != nil {
		log.Error("SearchTranscripts: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    results,
	})
}
