package voice

import (
	"context"
	"encoding/json"
	"fmt"

	"medassist-go/internal/service"
)

// 智能体可调用的工具名。
const (
	ToolListMedications  = "list_medications"
	ToolAddMedication    = "add_medication"
	ToolEditMedication   = "edit_medication"
	ToolDeleteMedication = "delete_medication"
	ToolToggleReminders  = "toggle_reminders"
	ToolSetReminderTimes = "set_reminder_times"
	ToolCheckCamera      = "check_camera"
)

// ToolDispatcher 把智能体的工具调用路由到药品/会话服务。
// 每次调用都带上会话归属的用户 id，授权在服务层逐请求校验。
type ToolDispatcher struct {
	medSvc  service.MedicationService
	convSvc service.ConversationService
}

// NewToolDispatcher 创建一个新的 ToolDispatcher。
func NewToolDispatcher(medSvc service.MedicationService, convSvc service.ConversationService) *ToolDispatcher {
	return &ToolDispatcher{medSvc: medSvc, convSvc: convSvc}
}

// Dispatch 执行一次工具调用并返回 JSON 编码的结果。
func (d *ToolDispatcher) Dispatch(ctx context.Context, userID, conversationID uint, name string, args json.RawMessage) (string, error) {
	switch name {
	case ToolListMedications:
		meds, err := d.medSvc.List(ctx, userID)
		if err != nil {
			return "", err
		}
		return marshalResult(meds)

	case ToolAddMedication:
		var p struct {
			Name   string `json:"name"`
			Dosage string `json:"dosage"`
			Notes  string `json:"notes"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("无效的工具参数: %w", err)
		}
		med, err := d.medSvc.Add(ctx, userID, p.Name, p.Dosage, p.Notes)
		if err != nil {
			return "", err
		}
		return marshalResult(med)

	case ToolEditMedication:
		var p struct {
			ID     uint    `json:"id"`
			Name   *string `json:"name"`
			Dosage *string `json:"dosage"`
			Notes  *string `json:"notes"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("无效的工具参数: %w", err)
		}
		med, err := d.medSvc.Edit(ctx, p.ID, userID, p.Name, p.Dosage, p.Notes)
		if err != nil {
			return "", err
		}
		return marshalResult(med)

	case ToolDeleteMedication:
		var p struct {
			ID uint `json:"id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("无效的工具参数: %w", err)
		}
		if err := d.medSvc.Delete(ctx, p.ID, userID); err != nil {
			return "", err
		}
		return `{"deleted":true}`, nil

	case ToolToggleReminders:
		var p struct {
			ID uint `json:"id"`
			On bool `json:"on"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("无效的工具参数: %w", err)
		}
		med, err := d.medSvc.ToggleReminders(ctx, p.ID, userID, p.On)
		if err != nil {
			return "", err
		}
		return marshalResult(med)

	case ToolSetReminderTimes:
		var p struct {
			ID    uint     `json:"id"`
			Times []string `json:"times"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("无效的工具参数: %w", err)
		}
		med, err := d.medSvc.SetReminderTimes(ctx, p.ID, userID, p.Times)
		if err != nil {
			return "", err
		}
		return marshalResult(med)

	case ToolCheckCamera:
		// 返回采样循环最近记录的画面观察，让"你看到了什么"有据可答。
		desc, err := d.convSvc.LatestObservation(ctx, conversationID, userID)
		if err != nil {
			return "", err
		}
		if desc == "" {
			return `{"observation":null}`, nil
		}
		return marshalResult(map[string]string{"observation": desc})

	default:
		return "", fmt.Errorf("未知的工具: %s", name)
	}
}

func marshalResult(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("序列化工具结果失败: %w", err)
	}
	return string(b), nil
}
