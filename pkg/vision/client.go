// Package vision provides a client for the image classification service.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"medassist-go/internal/config"
	"medassist-go/pkg/log"
)

// Mode 指定分类服务的工作模式。
type Mode string

const (
	// ModeTriage 仅判断画面是否与用药相关，附带一句话描述。
	ModeTriage Mode = "triage"
	// ModeDescribe 返回完整的自然语言描述。
	ModeDescribe Mode = "describe"
	// ModeExtract 对药盒/药瓶做结构化信息提取。
	ModeExtract Mode = "extract"
)

// Result 是分类服务的统一返回结构。
type Result struct {
	// Description 是画面的自然语言描述。
	Description string `json:"description"`
	// HasMedicalContent 表示画面中是否出现用药相关物品。
	HasMedicalContent bool `json:"hasMedicalContent"`
	// ExtractedText 是画面中识别到的文字（extract 模式）。
	ExtractedText string `json:"extractedText,omitempty"`
	// MedicationData 是结构化的药品提取结果，JSON 字符串（extract 模式）。
	MedicationData string `json:"medicationData,omitempty"`
}

// Client defines the interface for a vision classifier client.
type Client interface {
	// Classify 将一帧 JPEG 图像送往分类服务，按指定模式返回结果。
	Classify(ctx context.Context, image []byte, mode Mode) (*Result, error)
}

type httpClient struct {
	cfg    config.VisionConfig
	client *http.Client
}

// NewClient creates a new vision classifier client.
func NewClient(cfg config.VisionConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type classifyRequest struct {
	Model string `json:"model"`
	Mode  Mode   `json:"mode"`
	// Image 是 base64 之前的原始字节由 json 编码为 base64 字符串
	Image []byte `json:"image"`
}

// Classify calls the classifier endpoint with the given frame and mode.
func (c *httpClient) Classify(ctx context.Context, image []byte, mode Mode) (*Result, error) {
	reqBody := classifyRequest{
		Model: c.cfg.Model,
		Mode:  mode,
		Image: image,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/classify", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create classify request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[VisionClient] 调用分类服务失败, error: %v", err)
		return nil, fmt.Errorf("failed to call vision api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[VisionClient] 分类服务返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("vision api returned non-200 status: %s", resp.Status)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}

	return &result, nil
}
