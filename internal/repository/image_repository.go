// Package repository 提供了数据访问层的实现。
package repository

import (
	"medassist-go/internal/model"

	"gorm.io/gorm"
)

// ImageRepository 定义了图像捕获记录的持久化操作。
type ImageRepository interface {
	Create(capture *model.ImageCapture) error
	FindByID(id uint) (*model.ImageCapture, error)
	FindByConversationID(conversationID uint) ([]model.ImageCapture, error)
	FindByUserID(userID uint, offset, limit int) ([]model.ImageCapture, int64, error)
	Delete(id uint) error
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository 创建一个新的 ImageRepository 实例。
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(capture *model.ImageCapture) error {
	return r.db.Create(capture).Error
}

func (r *imageRepository) FindByID(id uint) (*model.ImageCapture, error) {
	var capture model.ImageCapture
	if err := r.db.First(&capture, id).Error; err != nil {
		return nil, err
	}
	return &capture, nil
}

// FindByConversationID 按创建时间升序返回会话关联的全部图像捕获。
func (r *imageRepository) FindByConversationID(conversationID uint) ([]model.ImageCapture, error) {
	var captures []model.ImageCapture
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").Find(&captures).Error
	return captures, err
}

// FindByUserID 分页检索某个用户的图像捕获记录，按创建时间倒序。
func (r *imageRepository) FindByUserID(userID uint, offset, limit int) ([]model.ImageCapture, int64, error) {
	var captures []model.ImageCapture
	var total int64

	db := r.db.Model(&model.ImageCapture{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&captures).Error
	if err != nil {
		return nil, 0, err
	}
	return captures, total, nil
}

func (r *imageRepository) Delete(id uint) error {
	return r.db.Delete(&model.ImageCapture{}, id).Error
}
