// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medassist-go/internal/model"
	"medassist-go/internal/repository"
)

// ErrMedicationNotOwned 表示操作的药品记录不属于当前认证用户。
var ErrMedicationNotOwned = errors.New("medication does not belong to user")

// MedicationService 定义了药品管理的业务接口。
// 网页端 CRUD 与语音智能体的工具调用走同一套实现。
type MedicationService interface {
	List(ctx context.Context, userID uint) ([]model.Medication, error)
	Add(ctx context.Context, userID uint, name, dosage, notes string) (*model.Medication, error)
	Edit(ctx context.Context, medicationID, userID uint, name, dosage, notes *string) (*model.Medication, error)
	Delete(ctx context.Context, medicationID, userID uint) error
	ToggleReminders(ctx context.Context, medicationID, userID uint, on bool) (*model.Medication, error)
	SetReminderTimes(ctx context.Context, medicationID, userID uint, times []string) (*model.Medication, error)
}

type medicationService struct {
	medRepo repository.MedicationRepository
}

// NewMedicationService 创建一个新的 MedicationService 实例。
func NewMedicationService(medRepo repository.MedicationRepository) MedicationService {
	return &medicationService{medRepo: medRepo}
}

// owned 加载药品记录并校验归属。
func (s *medicationService) owned(medicationID, userID uint) (*model.Medication, error) {
	med, err := s.medRepo.FindByID(medicationID)
	if err != nil {
		return nil, err
	}
	if med.UserID != userID {
		return nil, ErrMedicationNotOwned
	}
	return med, nil
}

// List 返回用户的全部药品记录。
func (s *medicationService) List(ctx context.Context, userID uint) ([]model.Medication, error) {
	return s.medRepo.FindByUserID(userID)
}

// Add 创建一条新的药品记录。
func (s *medicationService) Add(ctx context.Context, userID uint, name, dosage, notes string) (*model.Medication, error) {
	if name == "" {
		return nil, errors.New("药品名称不能为空")
	}
	med := &model.Medication{
		UserID: userID,
		Name:   name,
		Dosage: dosage,
		Notes:  notes,
	}
	if err := s.medRepo.Create(med); err != nil {
		return nil, err
	}
	return med, nil
}

// Edit 更新药品记录的名称/剂量/备注，nil 字段保持不变。
func (s *medicationService) Edit(ctx context.Context, medicationID, userID uint, name, dosage, notes *string) (*model.Medication, error) {
	med, err := s.owned(medicationID, userID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		med.Name = *name
	}
	if dosage != nil {
		med.Dosage = *dosage
	}
	if notes != nil {
		med.Notes = *notes
	}
	if err := s.medRepo.Update(med); err != nil {
		return nil, err
	}
	return med, nil
}

// Delete 删除药品记录。
func (s *medicationService) Delete(ctx context.Context, medicationID, userID uint) error {
	if _, err := s.owned(medicationID, userID); err != nil {
		return err
	}
	return s.medRepo.Delete(medicationID)
}

// ToggleReminders 打开或关闭药品提醒。
func (s *medicationService) ToggleReminders(ctx context.Context, medicationID, userID uint, on bool) (*model.Medication, error) {
	med, err := s.owned(medicationID, userID)
	if err != nil {
		return nil, err
	}
	med.RemindersOn = on
	if err := s.medRepo.Update(med); err != nil {
		return nil, err
	}
	return med, nil
}

// SetReminderTimes 设置每日提醒时刻列表（"HH:MM" 格式）。
func (s *medicationService) SetReminderTimes(ctx context.Context, medicationID, userID uint, times []string) (*model.Medication, error) {
	med, err := s.owned(medicationID, userID)
	if err != nil {
		return nil, err
	}
	for _, v := range times {
		if _, err := time.Parse("15:04", v); err != nil {
			return nil, fmt.Errorf("无效的提醒时刻: %q", v)
		}
	}
	timesJSON, err := json.Marshal(times)
	if err != nil {
		return nil, fmt.Errorf("序列化提醒时刻失败: %w", err)
	}
	med.ReminderTimes = string(timesJSON)
	if err := s.medRepo.Update(med); err != nil {
		return nil, err
	}
	return med, nil
}
