// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"medassist-go/internal/config"
	"medassist-go/internal/model"
	"medassist-go/internal/repository"
	"medassist-go/pkg/log"
	"medassist-go/pkg/storage"
	"medassist-go/pkg/vision"

	"github.com/google/uuid"
)

// CaptureResult 是图像上传/提取接口的返回结构。
type CaptureResult struct {
	Capture     *model.ImageCapture `json:"capture"`
	Description string              `json:"description"`
	ImageURL    string              `json:"imageUrl"`
}

// CaptureService 将摄像头帧升格为持久的图像捕获制品：
// 上传对象存储、调用视觉分类/提取、落库。
// 这是与采样循环的轻量 camera 消息并行的重量级通道，两者触发条件不同。
type CaptureService interface {
	Promote(ctx context.Context, userID uint, frame []byte, conversationID *uint, mode vision.Mode) (*CaptureResult, error)
	List(ctx context.Context, userID uint, offset, limit int) ([]model.ImageCapture, int64, error)
}

type captureService struct {
	imageRepo    repository.ImageRepository
	convRepo     repository.ConversationRepository
	visionClient vision.Client
	minioCfg     config.MinIOConfig
}

// NewCaptureService 创建一个新的 CaptureService 实例。
func NewCaptureService(imageRepo repository.ImageRepository, convRepo repository.ConversationRepository, visionClient vision.Client, minioCfg config.MinIOConfig) CaptureService {
	return &captureService{
		imageRepo:    imageRepo,
		convRepo:     convRepo,
		visionClient: visionClient,
		minioCfg:     minioCfg,
	}
}

// Promote 处理一次显式的帧升格请求。
// 携带会话 id 时先校验归属，校验失败则整个请求被拒绝，不产生任何写入。
func (s *captureService) Promote(ctx context.Context, userID uint, frame []byte, conversationID *uint, mode vision.Mode) (*CaptureResult, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("空的图像帧")
	}

	if conversationID != nil {
		conv, err := s.convRepo.FindByID(*conversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != userID {
			return nil, ErrNotOwner
		}
	}

	// 1. 上传对象存储，得到持久对象
	objectKey, err := storage.UploadFrame(ctx, s.minioCfg.BucketName, userID, uuid.NewString(), frame)
	if err != nil {
		return nil, err
	}

	// 2. 视觉分类/提取
	result, err := s.visionClient.Classify(ctx, frame, mode)
	if err != nil {
		return nil, fmt.Errorf("视觉提取失败: %w", err)
	}

	// 3. 落库
	capture := &model.ImageCapture{
		UserID:         userID,
		ConversationID: conversationID,
		ImageURL:       objectKey,
		CreatedAt:      time.Now(),
	}
	if result.Description != "" {
		capture.Description = &result.Description
	}
	if result.ExtractedText != "" {
		capture.ExtractedText = &result.ExtractedText
	}
	if result.MedicationData != "" {
		capture.MedicationData = &result.MedicationData
	}
	if err := s.imageRepo.Create(capture); err != nil {
		return nil, err
	}

	// 4. 生成限时访问 URL（失败不致命，返回对象键即可）
	url, err := storage.GetPresignedURL(s.minioCfg.BucketName, objectKey, 24*time.Hour)
	if err != nil {
		log.Warnf("[CaptureService] 生成预签名 URL 失败: %v", err)
		url = objectKey
	}

	log.Infof("[CaptureService] 帧升格完成, captureID=%d, userID=%d, mode=%s", capture.ID, userID, mode)
	return &CaptureResult{
		Capture:     capture,
		Description: result.Description,
		ImageURL:    url,
	}, nil
}

// List 分页返回指定用户的历史图像捕获记录，图像地址替换为限时访问 URL。
func (s *captureService) List(ctx context.Context, userID uint, offset, limit int) ([]model.ImageCapture, int64, error) {
	captures, total, err := s.imageRepo.FindByUserID(userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	for i := range captures {
		url, err := storage.GetPresignedURL(s.minioCfg.BucketName, captures[i].ImageURL, 24*time.Hour)
		if err != nil {
			log.Warnf("[CaptureService] 生成预签名 URL 失败: %v", err)
			continue
		}
		captures[i].ImageURL = url
	}
	return captures, total, nil
}
