// Package model 包含了应用的数据模型定义。
package model

import "time"

// 会话状态常量。
const (
	ConversationActive = "active"
	ConversationEnded  = "ended"
)

// 消息角色常量。camera 角色的消息是采样循环写入的画面观察记录，
// 不作为聊天气泡展示，仅供"你看到了什么"类查询取最近一条。
const (
	RoleMessageUser   = "user"
	RoleMessageAgent  = "agent"
	RoleMessageCamera = "camera"
)

// Conversation 代表一次语音会话，从连接开始到挂断结束。
type Conversation struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UID    string `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	Status string `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	// Title 由会话结束后的异步任务根据前约 20 条消息生成；生成失败时保持为空。
	Title      *string    `gorm:"type:varchar(255)" json:"title"`
	Summary    *string    `gorm:"type:text" json:"summary"`
	Transcript *string    `gorm:"type:longtext" json:"transcript,omitempty"`
	StartedAt  time.Time  `gorm:"autoCreateTime" json:"startedAt"`
	EndedAt    *time.Time `gorm:"default:null" json:"endedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage 代表会话中的一条消息。创建后不可变，
// 仅随所属会话级联删除。CreatedAt 严格反映产生顺序，
// 时间线重建依赖它而不是插入顺序。
type ConversationMessage struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	ToolName       *string   `gorm:"type:varchar(100)" json:"toolName,omitempty"`
	ToolArgs       *string   `gorm:"type:text" json:"toolArgs,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}
