// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Medication 对应于数据库中的 'medications' 表。
// 它既是网页端 CRUD 的对象，也是语音智能体工具调用的操作对象。
type Medication struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	Name   string `gorm:"type:varchar(255);not null" json:"name"`
	Dosage string `gorm:"type:varchar(100)" json:"dosage"`
	// ReminderTimes 是每日提醒时刻的 JSON 数组，如 ["08:00","20:00"]。
	ReminderTimes string    `gorm:"type:varchar(512)" json:"reminderTimes"`
	RemindersOn   bool      `gorm:"not null;default:false" json:"remindersOn"`
	Notes         string    `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Medication) TableName() string {
	return "medications"
}
