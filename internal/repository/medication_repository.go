// Package repository 提供了数据访问层的实现。
package repository

import (
	"medassist-go/internal/model"

	"gorm.io/gorm"
)

// MedicationRepository 定义了药品记录的持久化操作。
type MedicationRepository interface {
	Create(med *model.Medication) error
	FindByID(id uint) (*model.Medication, error)
	FindByUserID(userID uint) ([]model.Medication, error)
	Update(med *model.Medication) error
	Delete(id uint) error
}

type medicationRepository struct {
	db *gorm.DB
}

// NewMedicationRepository 创建一个新的 MedicationRepository 实例。
func NewMedicationRepository(db *gorm.DB) MedicationRepository {
	return &medicationRepository{db: db}
}

func (r *medicationRepository) Create(med *model.Medication) error {
	return r.db.Create(med).Error
}

func (r *medicationRepository) FindByID(id uint) (*model.Medication, error) {
	var med model.Medication
	if err := r.db.First(&med, id).Error; err != nil {
		return nil, err
	}
	return &med, nil
}

// FindByUserID 返回某个用户的全部药品记录。
func (r *medicationRepository) FindByUserID(userID uint) ([]model.Medication, error) {
	var meds []model.Medication
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&meds).Error
	return meds, err
}

func (r *medicationRepository) Update(med *model.Medication) error {
	return r.db.Save(med).Error
}

func (r *medicationRepository) Delete(id uint) error {
	return r.db.Delete(&model.Medication{}, id).Error
}
