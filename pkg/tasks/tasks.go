// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ConversationEndedTask represents the data structure for post-call processing:
// title/summary generation and transcript indexing.
type ConversationEndedTask struct {
	ConversationID uint   `json:"conversation_id"`
	ConversationUID string `json:"conversation_uid"`
	UserID         uint   `json:"user_id"`
}
