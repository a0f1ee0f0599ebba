package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"medassist-go/internal/config"
	"medassist-go/pkg/log"

	"github.com/gorilla/websocket"
)

// Events 是实时通道向上层抛出的回调集合。
// 回调在通道的读循环 goroutine 中被调用，实现方需要自行保证并发安全。
type Events struct {
	// OnUserTranscript 在一段用户语音被转写完成时触发。
	OnUserTranscript func(text string)
	// OnAgentReply 在智能体产出一条文本回复时触发。
	OnAgentReply func(text string)
	// OnAudioStart / OnAudioStop 在智能体音频输出开始/结束时触发。
	OnAudioStart func()
	OnAudioStop  func()
	// OnToolCall 在智能体发起工具调用时触发，返回值会被回传给智能体。
	OnToolCall func(name string, args json.RawMessage) (string, error)
	// OnClosed 在通道因任何原因关闭后触发一次。
	OnClosed func(err error)
}

// Channel 抽象与上游实时语音智能体之间的双向流式通道。
// 通道句柄归编排器独占，一次连接一次性使用，断开后不复用。
type Channel interface {
	// Connect 使用短生命周期凭证打开通道。失败时通道保持不可用。
	Connect(ctx context.Context, credential string) error
	// InjectContext 向智能体的会话上下文注入一段带外文本（如画面观察）。
	InjectContext(text string) error
	// Close 关闭通道。可安全地重复调用。
	Close() error
}

// ChannelFactory 为一次新的会话连接创建通道。
type ChannelFactory func(events Events) Channel

// channelEvent 是上游通道事件的线格式。
type channelEvent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	CallID string          `json:"callId,omitempty"`
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// 上游事件类型。
const (
	eventSessionStart   = "session.start"
	eventUserTranscript = "transcript.user"
	eventAgentReply     = "response.agent"
	eventAudioStart     = "audio.start"
	eventAudioStop      = "audio.stop"
	eventToolCall       = "tool.call"
	eventToolResult     = "tool.result"
	eventContextInject  = "context.inject"
)

// wsChannel 是 Channel 的 WebSocket 实现。
type wsChannel struct {
	cfg    config.RealtimeConfig
	events Events

	writeMu   sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewChannel 创建一个尚未连接的 WebSocket 通道。
func NewChannel(cfg config.RealtimeConfig, events Events) Channel {
	return &wsChannel{cfg: cfg, events: events}
}

// Connect 拨号上游智能体并发送会话初始化事件。
// 拨号或初始化失败都会让整个连接尝试失败，不留下半开的通道。
func (c *wsChannel) Connect(ctx context.Context, credential string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.AgentURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("拨号实时通道失败 (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("拨号实时通道失败: %w", err)
	}
	c.conn = conn

	start := channelEvent{Type: eventSessionStart, Text: c.cfg.Model}
	if err := c.writeJSON(start); err != nil {
		_ = conn.Close()
		c.conn = nil
		return fmt.Errorf("发送会话初始化事件失败: %w", err)
	}

	go c.readLoop()
	return nil
}

// InjectContext 注入一段带外上下文文本。
func (c *wsChannel) InjectContext(text string) error {
	if c.conn == nil {
		return fmt.Errorf("通道未连接")
	}
	return c.writeJSON(channelEvent{Type: eventContextInject, Text: text})
}

// Close 关闭底层连接。
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *wsChannel) writeJSON(ev channelEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// readLoop 持续读取上游事件并分发回调，连接关闭时退出。
func (c *wsChannel) readLoop() {
	var loopErr error
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			loopErr = err
			break
		}

		var ev channelEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Warnf("[Channel] 无法解析上游事件: %v, payload: %s", err, string(message))
			continue
		}
		c.dispatch(ev)
	}

	_ = c.Close()
	if c.events.OnClosed != nil {
		c.events.OnClosed(loopErr)
	}
}

func (c *wsChannel) dispatch(ev channelEvent) {
	switch ev.Type {
	case eventUserTranscript:
		if c.events.OnUserTranscript != nil {
			c.events.OnUserTranscript(ev.Text)
		}
	case eventAgentReply:
		if c.events.OnAgentReply != nil {
			c.events.OnAgentReply(ev.Text)
		}
	case eventAudioStart:
		if c.events.OnAudioStart != nil {
			c.events.OnAudioStart()
		}
	case eventAudioStop:
		if c.events.OnAudioStop != nil {
			c.events.OnAudioStop()
		}
	case eventToolCall:
		c.handleToolCall(ev)
	default:
		log.Debugf("[Channel] 忽略未知事件类型: %s", ev.Type)
	}
}

// handleToolCall 执行工具调用并把结果回传给智能体。
// 工具执行失败时回传错误文本，让智能体能向用户解释，而不是中断会话。
func (c *wsChannel) handleToolCall(ev channelEvent) {
	if c.events.OnToolCall == nil {
		return
	}
	result, err := c.events.OnToolCall(ev.Name, ev.Args)
	if err != nil {
		log.Warnf("[Channel] 工具调用失败: name=%s, error: %v", ev.Name, err)
		result = fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	if err := c.writeJSON(channelEvent{
		Type:   eventToolResult,
		CallID: ev.CallID,
		Name:   ev.Name,
		Text:   result,
	}); err != nil {
		log.Warnf("[Channel] 回传工具结果失败: %v", err)
	}
}
