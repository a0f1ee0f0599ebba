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

// MedicationHandler 负责处理用药管理相关的 API 请求。
type MedicationHandler struct {
	medService service.MedicationService
}

// NewMedicationHandler 创建一个新的 MedicationHandler 实例。
func NewMedicationHandler(medService service.MedicationService) *MedicationHandler {
	return &MedicationHandler{medService: medService}
}

// ListMedications 返回当前用户的全部用药记录。
func (h *MedicationHandler) ListMedications(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	medications, err := h.medService.List(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("ListMedications: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用药列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    medications,
	})
}

// AddMedicationRequest 定义了新增用药 API 的请求体结构。
type AddMedicationRequest struct {
	Name   string `json:"name" binding:"required"`
	Dosage string `json:"dosage"`
	Notes  string `json:"notes"`
}

// AddMedication 为当前用户新增一条用药记录。
func (h *MedicationHandler) AddMedication(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	var req AddMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	medication, err := h.medService.Add(c.Request.Context(), user.ID, req.Name, req.Dosage, req.Notes)
	if err != nil {
		log.Error("AddMedication: create failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "新增用药失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    medication,
	})
}

// EditMedicationRequest 定义了编辑用药 API 的请求体结构，字段均为可选。
type EditMedicationRequest struct {
	Name   *string `json:"name"`
	Dosage *string `json:"dosage"`
	Notes  *string `json:"notes"`
}

// EditMedication 更新指定用药记录中被提供的字段。
func (h *MedicationHandler) EditMedication(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	medicationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用药 ID"})
		return
	}

	var req EditMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	medication, err := h.medService.Edit(c.Request.Context(), uint(medicationID), user.ID, req.Name, req.Dosage, req.Notes)
	if err != nil {
		if errors.Is(err, service.ErrMedicationNotOwned) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用药记录不存在"})
			return
		}
		log.Error("EditMedication: update failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "编辑用药失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    medication,
	})
}

// DeleteMedication 删除指定的用药记录。
func (h *MedicationHandler) DeleteMedication(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	medicationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用药 ID"})
		return
	}

	if err := h.medService.Delete(c.Request.Context(), uint(medicationID), user.ID); err != nil {
		if errors.Is(err, service.ErrMedicationNotOwned) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用药记录不存在"})
			return
		}
		log.Error("DeleteMedication: delete failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除用药失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "删除成功",
		"data":    nil,
	})
}

// ToggleRemindersRequest 定义了提醒开关 API 的请求体结构。
type ToggleRemindersRequest struct {
	On *bool `json:"on" binding:"required"`
}

// ToggleReminders 开启或关闭指定用药的提醒。
func (h *MedicationHandler) ToggleReminders(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	medicationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用药 ID"})
		return
	}

	var req ToggleRemindersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	medication, err := h.medService.ToggleReminders(c.Request.Context(), uint(medicationID), user.ID, *req.On)
	if err != nil {
		if errors.Is(err, service.ErrMedicationNotOwned) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用药记录不存在"})
			return
		}
		log.Error("ToggleReminders: update failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新提醒开关失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    medication,
	})
}

// SetReminderTimesRequest 定义了设置提醒时间 API 的请求体结构。
type SetReminderTimesRequest struct {
	Times []string `json:"times" binding:"required"`
}

// SetReminderTimes 覆盖指定用药的每日提醒时间列表。
func (h *MedicationHandler) SetReminderTimes(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	medicationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用药 ID"})
		return
	}

	var req SetReminderTimesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	medication, err := h.medService.SetReminderTimes(c.Request.Context(), uint(medicationID), user.ID, req.Times)
	if err != nil {
		if errors.Is(err, service.ErrMedicationNotOwned) || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用药记录不存在"})
			return
		}
		log.Error("SetReminderTimes: update failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "设置提醒时间失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    medication,
	})
}
