// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"medassist-go/internal/config"
	"medassist-go/internal/model"
	"medassist-go/internal/repository"
	"medassist-go/pkg/es"
)

// AdminService 定义了医护/管理员侧的只读业务接口。
// 被查看的用户（effective user）在服务端逐请求解析与校验，
// 不缓存任何授权结果。
type AdminService interface {
	ListUsers(ctx context.Context, page, size int) ([]model.User, int64, error)
	// UserConversations 以只读方式返回指定用户的会话列表。
	UserConversations(ctx context.Context, targetUserID uint, offset, limit int) ([]model.Conversation, int64, error)
	// UserConversationDetail 以只读方式返回指定用户某个会话的时间线。
	UserConversationDetail(ctx context.Context, targetUserID, conversationID uint) (*ConversationDetail, error)
	// SearchTranscripts 在转写索引中全文检索。userID 为 0 时检索全部用户。
	SearchTranscripts(ctx context.Context, query string, userID uint, size int) ([]model.TranscriptDocument, error)
}

type adminService struct {
	userRepo  repository.UserRepository
	convRepo  repository.ConversationRepository
	imageRepo repository.ImageRepository
	esCfg     config.ElasticsearchConfig
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, convRepo repository.ConversationRepository, imageRepo repository.ImageRepository, esCfg config.ElasticsearchConfig) AdminService {
	return &adminService{
		userRepo:  userRepo,
		convRepo:  convRepo,
		imageRepo: imageRepo,
		esCfg:     esCfg,
	}
}

// ListUsers 分页返回用户列表。
func (s *adminService) ListUsers(ctx context.Context, page, size int) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return s.userRepo.FindWithPagination((page-1)*size, size)
}

// UserConversations 返回目标用户的会话列表。
// 调用方的管理员/医护身份由路由中间件保证，这里按请求解析目标用户。
func (s *adminService) UserConversations(ctx context.Context, targetUserID uint, offset, limit int) ([]model.Conversation, int64, error) {
	if _, err := s.userRepo.FindByID(targetUserID); err != nil {
		return nil, 0, err
	}
	return s.convRepo.FindByUserID(targetUserID, offset, limit)
}

// UserConversationDetail 返回目标用户某个会话的详情与时间线。
// 会话必须确实属于目标用户，防止路径参数拼接越权。
func (s *adminService) UserConversationDetail(ctx context.Context, targetUserID, conversationID uint) (*ConversationDetail, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != targetUserID {
		return nil, ErrNotOwner
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

// SearchTranscripts 在 Elasticsearch 转写索引中做全文检索。
func (s *adminService) SearchTranscripts(ctx context.Context, query string, userID uint, size int) ([]model.TranscriptDocument, error) {
	return es.SearchTranscripts(ctx, s.esCfg.IndexName, query, userID, size)
}
