package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"medassist-go/internal/model"
	"medassist-go/internal/service"
	"medassist-go/pkg/log"
	"medassist-go/pkg/vision"

	"github.com/gin-gonic/gin"
)

// CaptureHandler 负责处理图像采集与识别相关的 API 请求。
type CaptureHandler struct {
	captureService service.CaptureService
}

// NewCaptureHandler 创建一个新的 CaptureHandler 实例。
func NewCaptureHandler(captureService service.CaptureService) *CaptureHandler {
	return &CaptureHandler{captureService: captureService}
}

// PromoteCaptureRequest 定义了图像上传 API 的请求体结构。
// Frame 为 base64 编码的 JPEG 数据，可携带 data URL 前缀。
type PromoteCaptureRequest struct {
	Frame          string `json:"frame" binding:"required"`
	ConversationID *uint  `json:"conversationId"`
	Mode           string `json:"mode" binding:"omitempty,oneof=triage describe extract"`
}

// PromoteCapture 将一帧图像上传到对象存储，调用视觉模型识别，
// 并把识别结果落库为一条图像采集记录。
func (h *CaptureHandler) PromoteCapture(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	var req PromoteCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	payload := req.Frame
	if idx := strings.Index(payload, ";base64,"); idx >= 0 {
		payload = payload[idx+len(";base64,"):]
	}
	frame, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(frame) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的图像数据"})
		return
	}

	mode := vision.ModeDescribe
	if req.Mode != "" {
		mode = vision.Mode(req.Mode)
	}

	result, err := h.captureService.Promote(c.Request.Context(), user.ID, frame, req.ConversationID, mode)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Error("PromoteCapture: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "图像处理失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// ListCaptures 分页返回当前用户的历史图像采集记录。
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	captures, total, err := h.captureService.List(c.Request.Context(), user.ID, (page-1)*size, size)
	if err != nil {
		log.Error("ListCaptures: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取图像记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"list":  captures,
			"total": total,
			"page":  page,
			"size":  size,
		},
	})
}
