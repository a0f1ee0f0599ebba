package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"medassist-go/internal/config"
	"medassist-go/internal/model"
	"medassist-go/internal/service"
	"medassist-go/internal/voice"
	"medassist-go/pkg/log"
	"medassist-go/pkg/token"
	"medassist-go/pkg/vision"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// VoiceHandler 负责签发实时会话凭证并桥接语音会话的 WebSocket 连接。
type VoiceHandler struct {
	userService service.UserService
	convService service.ConversationService
	tools       *voice.ToolDispatcher
	visionCli   vision.Client
	jwtManager  *token.JWTManager
	realtimeCfg config.RealtimeConfig
}

// NewVoiceHandler 创建一个新的 VoiceHandler。
func NewVoiceHandler(
	userService service.UserService,
	convService service.ConversationService,
	medService service.MedicationService,
	visionCli vision.Client,
	jwtManager *token.JWTManager,
	realtimeCfg config.RealtimeConfig,
) *VoiceHandler {
	return &VoiceHandler{
		userService: userService,
		convService: convService,
		tools:       voice.NewToolDispatcher(medService, convService),
		visionCli:   visionCli,
		jwtManager:  jwtManager,
		realtimeCfg: realtimeCfg,
	}
}

// IssueRealtimeToken 为当前用户签发一个短时的实时会话凭证。
// 该凭证只能用于打开语音 WebSocket，不可用于普通 REST 接口。
func (h *VoiceHandler) IssueRealtimeToken(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	realtimeToken, err := h.userService.IssueRealtimeToken(user)
	if err != nil {
		log.Error("IssueRealtimeToken: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发实时凭证失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"token":     realtimeToken,
			"expiresIn": config.Conf.JWT.RealtimeTokenExpireSeconds,
		},
	})
}

// clientMessage 是客户端经 WebSocket 发来的控制消息。
type clientMessage struct {
	Type string `json:"type"`
	// Data 在 type=frame 时携带 base64 编码的 JPEG 帧。
	Data string `json:"data,omitempty"`
}

// Handle 处理一个语音会话 WebSocket 连接。
// 每个连接拥有独立的编排器、帧缓冲与会话状态，连接断开即全部销毁。
func (h *VoiceHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil || claims.Scope != token.ScopeRealtime {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的实时凭证", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("语音 WebSocket 连接已建立，用户: %s", claims.Username)

	// 所有服务端推送共用一把写锁：回调来自不同 goroutine
	var writeMu sync.Mutex
	push := func(payload interface{}) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}

	buffer := voice.NewLatestFrameBuffer()
	sampler := voice.NewSampler(func(facing voice.Facing) (voice.FrameSource, error) {
		// 帧由客户端推送；朝向切换发生在客户端，服务端只消费最新帧
		return buffer, nil
	})

	orchestrator := voice.NewOrchestrator(voice.Options{
		UserID:        user.ID,
		Conversations: h.convService,
		Tools:         h.tools,
		Vision:        h.visionCli,
		Sampler:       sampler,
		NewChannel: func(events voice.Events) voice.Channel {
			return voice.NewChannel(h.realtimeCfg, events)
		},
		Credential: func() (string, error) {
			return h.userService.IssueRealtimeToken(user)
		},
		SamplePeriod: time.Duration(h.realtimeCfg.SamplePeriodSeconds) * time.Second,
		OnToolComplete: func(name string) {
			push(gin.H{"type": "tool_complete", "name": name})
		},
		OnActivity: func(activity voice.Activity) {
			push(gin.H{"type": "activity", "activity": activity})
		},
		OnTranscript: func(entry voice.TranscriptEntry) {
			push(gin.H{"type": "transcript", "entry": entry})
		},
	})
	defer orchestrator.Disconnect()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从语音 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			push(gin.H{"type": "error", "message": "无效的消息格式"})
			continue
		}

		switch msg.Type {
		case "connect":
			if err := orchestrator.Connect(c.Request.Context()); err != nil {
				if err == voice.ErrAlreadyConnected {
					push(gin.H{"type": "error", "message": "会话已在进行中"})
				} else {
					log.Errorf("语音会话连接失败: %v", err)
					push(gin.H{"type": "error", "message": "连接失败，请稍后重试"})
				}
				continue
			}
			push(gin.H{
				"type":           "state",
				"state":          orchestrator.State(),
				"conversationId": orchestrator.ConversationID(),
			})
		case "disconnect":
			orchestrator.Disconnect()
			push(gin.H{"type": "state", "state": orchestrator.State()})
		case "frame":
			frame, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil || len(frame) == 0 {
				push(gin.H{"type": "error", "message": "无效的图像帧"})
				continue
			}
			buffer.Push(frame)
		case "flip":
			orchestrator.FlipCamera()
			push(gin.H{"type": "camera", "active": orchestrator.CameraActive()})
		default:
			push(gin.H{"type": "error", "message": "未知的消息类型"})
		}
	}
}
