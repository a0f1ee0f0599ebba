// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"medassist-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话与会话消息的持久化操作。
type ConversationRepository interface {
	Create(conv *model.Conversation) error
	FindByID(id uint) (*model.Conversation, error)
	FindByUID(uid string) (*model.Conversation, error)
	FindByUserID(userID uint, offset, limit int) ([]model.Conversation, int64, error)
	MarkEnded(id uint, endedAt time.Time) error
	UpdateTitleAndSummary(id uint, title, summary, transcript string) error
	Delete(id uint) error

	CreateMessage(msg *model.ConversationMessage) error
	FindMessages(conversationID uint) ([]model.ConversationMessage, error)
	FindFirstMessages(conversationID uint, limit int) ([]model.ConversationMessage, error)
	FindLatestCameraMessage(conversationID uint) (*model.ConversationMessage, error)
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 在数据库中创建一条新的会话记录。
func (r *conversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByID 根据主键查找会话。
func (r *conversationRepository) FindByID(id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByUID 根据会话 UID 查找会话。
func (r *conversationRepository) FindByUID(uid string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("uid = ?", uid).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByUserID 分页检索某个用户的会话列表，按开始时间倒序。
func (r *conversationRepository) FindByUserID(userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	db := r.db.Model(&model.Conversation{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("started_at DESC").Offset(offset).Limit(limit).Find(&convs).Error
	if err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// MarkEnded 将会话标记为已结束并写入结束时间。
func (r *conversationRepository) MarkEnded(id uint, endedAt time.Time) error {
	return r.db.Model(&model.Conversation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   model.ConversationEnded,
			"ended_at": endedAt,
		}).Error
}

// UpdateTitleAndSummary 写入异步生成的标题、摘要与完整转写。
// 仅当标题仍为空时生效，保证标题一经写入不再被改写。
func (r *conversationRepository) UpdateTitleAndSummary(id uint, title, summary, transcript string) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ? AND title IS NULL", id).
		Updates(map[string]interface{}{
			"title":      title,
			"summary":    summary,
			"transcript": transcript,
		}).Error
}

// Delete 删除会话并级联删除其消息与图像捕获。
func (r *conversationRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ConversationMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ImageCapture{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, id).Error
	})
}

// CreateMessage 追加一条会话消息。消息创建后不可变。
func (r *conversationRepository) CreateMessage(msg *model.ConversationMessage) error {
	return r.db.Create(msg).Error
}

// FindMessages 按创建时间升序返回会话的全部消息。
func (r *conversationRepository) FindMessages(conversationID uint) ([]model.ConversationMessage, error) {
	var msgs []model.ConversationMessage
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").Find(&msgs).Error
	return msgs, err
}

// FindFirstMessages 返回会话最早的 limit 条消息（标题生成用）。
func (r *conversationRepository) FindFirstMessages(conversationID uint, limit int) ([]model.ConversationMessage, error) {
	var msgs []model.ConversationMessage
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// FindLatestCameraMessage 返回会话最近一条 camera 角色消息。
func (r *conversationRepository) FindLatestCameraMessage(conversationID uint) (*model.ConversationMessage, error) {
	var msg model.ConversationMessage
	err := r.db.Where("conversation_id = ? AND role = ?", conversationID, model.RoleMessageCamera).
		Order("created_at DESC, id DESC").First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
