// Package service 包含了应用的业务逻辑层。
package service

import (
	"sort"

	"medassist-go/internal/model"
)

// MergeTimeline 将同一会话下独立落库的聊天消息与图像捕获合并为一条
// 按时间升序的时间线。两个集合各自的写入到达顺序不可靠（并发工具调用
// 的副作用可能乱序落库），排序一律以创建时间为准。
//
// 时间戳相等时保持稳定的来源顺序：消息在前，图像在后。
// 任一集合为空时无需特殊处理。每次读取重新计算，不做缓存。
func MergeTimeline(messages []model.ConversationMessage, images []model.ImageCapture) []model.TimelineItem {
	items := make([]model.TimelineItem, 0, len(messages)+len(images))

	for i := range messages {
		items = append(items, model.TimelineItem{
			Kind:      model.TimelineKindMessage,
			CreatedAt: messages[i].CreatedAt,
			Message:   &messages[i],
		})
	}
	for i := range images {
		items = append(items, model.TimelineItem{
			Kind:      model.TimelineKindImage,
			CreatedAt: images[i].CreatedAt,
			Image:     &images[i],
		})
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})

	return items
}
