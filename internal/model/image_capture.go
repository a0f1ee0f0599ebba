// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// ImageCapture 对应于数据库中的 'image_captures' 表。
// 它是被显式"升格"为持久制品的摄像头帧（用户发起完整提取时创建），
// 与采样循环每个周期写入的 camera 角色消息是两条独立的通道。
type ImageCapture struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"userId"`
	ConversationID *uint     `gorm:"index" json:"conversationId,omitempty"`
	ImageURL       string    `gorm:"type:varchar(512);not null" json:"imageUrl"`
	Description    *string   `gorm:"type:text" json:"description,omitempty"`
	ExtractedText  *string   `gorm:"type:text" json:"extractedText,omitempty"`
	// MedicationData 是结构化药品提取结果的 JSON 序列化。
	MedicationData *string   `gorm:"type:text" json:"medicationData,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ImageCapture) TableName() string {
	return "image_captures"
}
