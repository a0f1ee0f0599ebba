// Package pipeline 实现会话结束后的异步处理：标题与摘要生成、全文索引。
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"medassist-go/internal/config"
	"medassist-go/internal/model"
	"medassist-go/internal/repository"
	"medassist-go/pkg/es"
	"medassist-go/pkg/llm"
	"medassist-go/pkg/log"
	"medassist-go/pkg/tasks"
)

// titleMessageLimit 限制标题生成只看会话开头的消息。
const titleMessageLimit = 20

// Processor 消费 Kafka 中的会话结束任务。
// 每个任务做三件事：生成标题与摘要、写回会话记录、建立全文索引。
type Processor struct {
	convRepo  repository.ConversationRepository
	llmClient llm.Client
	esCfg     config.ElasticsearchConfig
	llmCfg    config.LLMConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(convRepo repository.ConversationRepository, llmClient llm.Client, esCfg config.ElasticsearchConfig, llmCfg config.LLMConfig) *Processor {
	return &Processor{
		convRepo:  convRepo,
		llmClient: llmClient,
		esCfg:     esCfg,
		llmCfg:    llmCfg,
	}
}

// Process 处理一条会话结束任务。
// 标题生成失败不算任务失败：会话保持无标题，界面按日期展示。
// 索引失败会返回错误，由消费端的重试机制兜底。
func (p *Processor) Process(ctx context.Context, task tasks.ConversationEndedTask) error {
	conv, err := p.convRepo.FindByID(task.ConversationID)
	if err != nil {
		return fmt.Errorf("加载会话失败: %w", err)
	}

	messages, err := p.convRepo.FindMessages(conv.ID)
	if err != nil {
		return fmt.Errorf("加载会话消息失败: %w", err)
	}
	if len(messages) == 0 {
		log.Infof("[Pipeline] 会话 %d 没有消息，跳过处理", conv.ID)
		return nil
	}

	transcript := buildTranscript(messages)

	title, summary := p.generateTitleAndSummary(ctx, messages)
	if title != "" {
		if err := p.convRepo.UpdateTitleAndSummary(conv.ID, title, summary, transcript); err != nil {
			log.Warnf("[Pipeline] 写回标题与摘要失败, conversationID=%d: %v", conv.ID, err)
		}
	}

	doc := model.TranscriptDocument{
		ConversationUID: conv.UID,
		UserID:          conv.UserID,
		Title:           title,
		Transcript:      transcript,
		StartedAt:       conv.StartedAt,
		EndedAt:         conv.EndedAt,
	}
	if err := es.IndexTranscript(ctx, p.esCfg.IndexName, doc); err != nil {
		return fmt.Errorf("索引会话转写失败: %w", err)
	}

	log.Infof("[Pipeline] 会话 %d 处理完成, title=%q", conv.ID, title)
	return nil
}

// generateTitleAndSummary 基于会话开头的消息调用 LLM 生成标题与摘要。
// 任一步失败只记日志并返回空值，不影响转写索引。
func (p *Processor) generateTitleAndSummary(ctx context.Context, messages []model.ConversationMessage) (title, summary string) {
	head := messages
	if len(head) > titleMessageLimit {
		head = head[:titleMessageLimit]
	}
	excerpt := buildTranscript(head)

	title, err := p.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: "你是一个医疗助理应用的标题生成器。请根据下面的对话内容生成一个不超过 20 字的简短标题，只返回标题本身。"},
		{Role: "user", Content: excerpt},
	})
	if err != nil {
		log.Warnf("[Pipeline] 标题生成失败: %v", err)
		return "", ""
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"“”`))

	summary, err = p.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: "你是一个医疗助理应用的摘要生成器。请用两三句话概括下面的对话，突出用药相关的内容。"},
		{Role: "user", Content: excerpt},
	})
	if err != nil {
		log.Warnf("[Pipeline] 摘要生成失败: %v", err)
		summary = ""
	}

	return title, strings.TrimSpace(summary)
}

// buildTranscript 把消息列表拼成带角色前缀的纯文本转写。
func buildTranscript(messages []model.ConversationMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleMessageUser:
			sb.WriteString("患者: ")
		case model.RoleMessageAgent:
			sb.WriteString("助理: ")
		case model.RoleMessageCamera:
			sb.WriteString("[画面] ")
		default:
			sb.WriteString(msg.Role + ": ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
