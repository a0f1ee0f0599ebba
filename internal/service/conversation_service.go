// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"time"

	"medassist-go/internal/model"
	"medassist-go/internal/repository"
	"medassist-go/pkg/log"
	"medassist-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotOwner 表示操作的会话不属于当前认证用户。
// 归属校验在服务端按请求执行，从不信任客户端持有的会话 id。
var ErrNotOwner = errors.New("conversation does not belong to user")

// TaskPublisher 将会话结束任务投递到消息队列。
// 以函数类型注入，解耦业务层与具体的 Kafka 生产者。
type TaskPublisher func(task tasks.ConversationEndedTask) error

// ConversationDetail 是会话详情接口的返回结构。
type ConversationDetail struct {
	Conversation *model.Conversation  `json:"conversation"`
	Timeline     []model.TimelineItem `json:"timeline"`
}

// ConversationService 定义了会话生命周期与消息追加的业务接口。
// 它同时充当语音编排器的消息持久化网关。
type ConversationService interface {
	CreateConversation(ctx context.Context, userID uint) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, userID uint, role, content string, toolName, toolArgs *string) (*model.ConversationMessage, error)
	EndConversation(ctx context.Context, conversationID, userID uint) error
	GetDetail(ctx context.Context, conversationID, userID uint) (*ConversationDetail, error)
	ListConversations(ctx context.Context, userID uint, offset, limit int) ([]model.Conversation, int64, error)
	DeleteConversation(ctx context.Context, conversationID, userID uint) error
	LatestObservation(ctx context.Context, conversationID, userID uint) (string, error)
}

type conversationService struct {
	convRepo  repository.ConversationRepository
	imageRepo repository.ImageRepository
	obsCache  repository.ObservationCache
	publish   TaskPublisher
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(convRepo repository.ConversationRepository, imageRepo repository.ImageRepository, obsCache repository.ObservationCache, publish TaskPublisher) ConversationService {
	return &conversationService{
		convRepo:  convRepo,
		imageRepo: imageRepo,
		obsCache:  obsCache,
		publish:   publish,
	}
}

// CreateConversation 为一次语音会话创建 active 状态的会话记录。
func (s *conversationService) CreateConversation(ctx context.Context, userID uint) (*model.Conversation, error) {
	conv := &model.Conversation{
		UID:    uuid.NewString(),
		UserID: userID,
		Status: model.ConversationActive,
	}
	if err := s.convRepo.Create(conv); err != nil {
		return nil, err
	}
	log.Infof("[ConversationService] 创建会话成功, id=%d, uid=%s, userID=%d", conv.ID, conv.UID, userID)
	return conv, nil
}

// ownedConversation 加载会话并校验归属。每次写入/读取都重新校验，不做缓存。
func (s *conversationService) ownedConversation(conversationID, userID uint) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotOwner
	}
	return conv, nil
}

// AppendMessage 向会话追加一条消息。归属校验失败时不产生任何写入。
func (s *conversationService) AppendMessage(ctx context.Context, conversationID, userID uint, role, content string, toolName, toolArgs *string) (*model.ConversationMessage, error) {
	if _, err := s.ownedConversation(conversationID, userID); err != nil {
		return nil, err
	}

	msg := &model.ConversationMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolName:       toolName,
		ToolArgs:       toolArgs,
		CreatedAt:      time.Now(),
	}
	if err := s.convRepo.CreateMessage(msg); err != nil {
		return nil, err
	}

	// camera 角色的观察同时写入缓存，供 check-camera 工具直接读取。
	// 缓存失败只记日志，不影响消息本身。
	if role == model.RoleMessageCamera {
		if err := s.obsCache.SetLatest(ctx, conversationID, content); err != nil {
			log.Warnf("[ConversationService] 缓存画面观察失败: %v", err)
		}
	}
	return msg, nil
}

// EndConversation 将会话标记为已结束，并投递异步的标题/转写生成任务。
// 任务投递失败只记日志：标题生成是尽力而为的增强，不阻塞挂断流程。
func (s *conversationService) EndConversation(ctx context.Context, conversationID, userID uint) error {
	conv, err := s.ownedConversation(conversationID, userID)
	if err != nil {
		return err
	}
	if conv.Status == model.ConversationEnded {
		return nil
	}

	if err := s.convRepo.MarkEnded(conversationID, time.Now()); err != nil {
		return err
	}

	if s.publish != nil {
		task := tasks.ConversationEndedTask{
			ConversationID:  conversationID,
			ConversationUID: conv.UID,
			UserID:          userID,
		}
		if err := s.publish(task); err != nil {
			log.Errorf("[ConversationService] 投递会话结束任务失败, conversationID=%d, error: %v", conversationID, err)
		}
	}
	return nil
}

// GetDetail 返回会话及其按时间合并的消息/图像时间线。
func (s *conversationService) GetDetail(ctx context.Context, conversationID, userID uint) (*ConversationDetail, error) {
	conv, err := s.ownedConversation(conversationID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.convRepo.FindMessages(conversationID)
	if err != nil {
		return nil, err
	}
	images, err := s.imageRepo.FindByConversationID(conversationID)
	if err != nil {
		return nil, err
	}

	return &ConversationDetail{
		Conversation: conv,
		Timeline:     MergeTimeline(messages, images),
	}, nil
}

// ListConversations 分页返回用户的会话列表。
func (s *conversationService) ListConversations(ctx context.Context, userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	return s.convRepo.FindByUserID(userID, offset, limit)
}

// DeleteConversation 删除会话，级联删除消息与图像捕获。
func (s *conversationService) DeleteConversation(ctx context.Context, conversationID, userID uint) error {
	if _, err := s.ownedConversation(conversationID, userID); err != nil {
		return err
	}
	return s.convRepo.Delete(conversationID)
}

// LatestObservation 返回会话最近一次的画面观察描述。
// 优先读缓存，未命中时回退到数据库中最近的 camera 消息。
func (s *conversationService) LatestObservation(ctx context.Context, conversationID, userID uint) (string, error) {
	if _, err := s.ownedConversation(conversationID, userID); err != nil {
		return "", err
	}

	if desc, err := s.obsCache.GetLatest(ctx, conversationID); err == nil && desc != "" {
		return desc, nil
	}

	msg, err := s.convRepo.FindLatestCameraMessage(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return msg.Content, nil
}
