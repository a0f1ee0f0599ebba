// Package model 包含了应用的数据模型定义。
package model

import "time"

// 时间线条目的类型。
const (
	TimelineKindMessage = "message"
	TimelineKindImage   = "image"
)

// TimelineItem 是聊天消息与图像捕获按时间合并后的单个条目。
// Message 与 Image 二者恰有其一非空，由 Kind 区分。
type TimelineItem struct {
	Kind      string               `json:"kind"`
	CreatedAt time.Time            `json:"createdAt"`
	Message   *ConversationMessage `json:"message,omitempty"`
	Image     *ImageCapture        `json:"image,omitempty"`
}
