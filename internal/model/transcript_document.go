// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// TranscriptDocument 是写入 Elasticsearch 的会话转写文档，
// 供医护/管理员做全文检索。
type TranscriptDocument struct {
	ConversationUID string     `json:"conversation_uid"`
	UserID          uint       `json:"user_id"`
	Title           string     `json:"title"`
	Transcript      string     `json:"transcript"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}
