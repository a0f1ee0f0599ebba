package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"medassist-go/internal/model"
	"medassist-go/internal/service"
	"medassist-go/pkg/log"
	"medassist-go/pkg/vision"
)

// State 是会话生命周期状态。没有 error 状态：
// 连接失败回到 disconnected 并向调用方返回一次性错误。
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Activity 是连接期间的语音活动状态。
type Activity string

const (
	ActivityIdle      Activity = "idle"
	ActivityListening Activity = "listening"
	ActivitySpeaking  Activity = "speaking"
)

// TranscriptEntry 是供界面渲染的转写条目。
// Prominent 为 false 的 camera 条目只作低强调/调试展示。
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Prominent bool      `json:"prominent"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrAlreadyConnected 表示在非 disconnected 状态下再次调用 Connect。
// 双重连接被显式拒绝，而不是放任两次通道握手竞争。
var ErrAlreadyConnected = errors.New("session already connecting or connected")

// CredentialIssuer 为打开上游通道签发一次性短时凭证。
type CredentialIssuer func() (string, error)

// Options 聚合编排器的全部依赖。
type Options struct {
	UserID        uint
	Conversations service.ConversationService
	Tools         *ToolDispatcher
	Vision        vision.Client
	Sampler       *Sampler
	NewChannel    ChannelFactory
	Credential    CredentialIssuer
	// SamplePeriod 是摄像头采样周期，零值时取 5 秒。
	SamplePeriod time.Duration

	// OnToolComplete 在一次工具调用完成后触发，宿主界面据此刷新药品列表。
	OnToolComplete func(name string)
	// OnActivity 在语音活动状态变化时触发。
	OnActivity func(activity Activity)
	// OnTranscript 在新增一条转写条目时触发。
	OnTranscript func(entry TranscriptEntry)
}

// Orchestrator 把采样器、去重过滤器、持久化网关和实时通道
// 组装成一次语音会话。所有会话内可变状态都是它的字段，
// 随 Disconnect 复位；实例可以按连接创建与销毁。
type Orchestrator struct {
	opts   Options
	period time.Duration
	dedup  *DedupFilter

	mu             sync.Mutex
	state          State
	activity       Activity
	conversationID uint
	channel        Channel
	stopCh         chan struct{}
	sessionCancel  context.CancelFunc
	transcript     []TranscriptEntry

	// inFlight 保证任意时刻至多一次采样处理在进行，
	// 采样周期内未完成的上一轮会让本轮直接跳过。
	inFlight int32
}

// NewOrchestrator 创建一个处于 disconnected 状态的编排器。
func NewOrchestrator(opts Options) *Orchestrator {
	period := opts.SamplePeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Orchestrator{
		opts:     opts,
		period:   period,
		dedup:    NewDedupFilter(),
		state:    StateDisconnected,
		activity: ActivityIdle,
	}
}

// State 返回当前生命周期状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Activity 返回当前语音活动状态。
func (o *Orchestrator) Activity() Activity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activity
}

// ConversationID 返回当前会话记录的 id，未连接时为 0。
func (o *Orchestrator) ConversationID() uint {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// CameraActive 报告采样循环是否持有可用摄像头。
func (o *Orchestrator) CameraActive() bool {
	return o.opts.Sampler.Active()
}

// Transcript 返回转写条目的快照。
func (o *Orchestrator) Transcript() []TranscriptEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TranscriptEntry, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// Connect 打开一次语音会话：建会话记录、签发凭证、打开通道、启动采样。
// 任一步失败都完整回退，不留下半开的会话。
// 非 disconnected 状态下调用立即返回 ErrAlreadyConnected。
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateDisconnected {
		o.mu.Unlock()
		return ErrAlreadyConnected
	}
	o.state = StateConnecting
	o.mu.Unlock()

	fail := func(convID uint, err error) error {
		// 已建出的会话记录尽力标记结束，服务端可兜底回收
		if convID != 0 {
			if endErr := o.opts.Conversations.EndConversation(context.Background(), convID, o.opts.UserID); endErr != nil {
				log.Warnf("[Orchestrator] 回退时标记会话结束失败: %v", endErr)
			}
		}
		o.mu.Lock()
		o.state = StateDisconnected
		o.mu.Unlock()
		return err
	}

	// 1. 创建会话记录
	conv, err := o.opts.Conversations.CreateConversation(ctx, o.opts.UserID)
	if err != nil {
		return fail(0, err)
	}

	// 2. 签发短时凭证
	credential, err := o.opts.Credential()
	if err != nil {
		return fail(conv.ID, err)
	}

	// 3. 打开实时通道
	channel := o.opts.NewChannel(o.channelEvents(conv.ID))
	if err := channel.Connect(ctx, credential); err != nil {
		return fail(conv.ID, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.state = StateConnected
	o.activity = ActivityIdle
	o.conversationID = conv.ID
	o.channel = channel
	o.stopCh = make(chan struct{})
	o.sessionCancel = cancel
	o.transcript = nil
	stopCh := o.stopCh
	o.mu.Unlock()

	o.dedup.Reset()

	// 4. 启动摄像头与采样循环。摄像头获取失败被采样器吞掉，
	// 会话照常进行，只是没有视觉输入。
	o.opts.Sampler.Start(FacingEnvironment)
	go o.runSampleLoop(sessionCtx, conv.ID, stopCh)

	log.Infof("[Orchestrator] 会话已连接, conversationID=%d, userID=%d", conv.ID, o.opts.UserID)
	return nil
}

// Disconnect 是硬取消点：同步停掉采样定时器、释放摄像头、关闭通道，
// 尽力标记会话结束并清空会话 id。重复调用是安全的。
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.state == StateDisconnected {
		o.mu.Unlock()
		return
	}
	convID := o.conversationID
	channel := o.channel
	stopCh := o.stopCh
	cancel := o.sessionCancel

	o.state = StateDisconnected
	o.activity = ActivityIdle
	o.conversationID = 0
	o.channel = nil
	o.stopCh = nil
	o.sessionCancel = nil
	o.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if cancel != nil {
		cancel()
	}
	o.opts.Sampler.Stop()
	if channel != nil {
		_ = channel.Close()
	}

	// 标记结束是尽力而为：失败不阻塞本地清理，服务端状态可恢复
	if convID != 0 {
		if err := o.opts.Conversations.EndConversation(context.Background(), convID, o.opts.UserID); err != nil {
			log.Warnf("[Orchestrator] 标记会话结束失败, conversationID=%d: %v", convID, err)
		}
	}

	o.notifyActivity(ActivityIdle)
	log.Infof("[Orchestrator] 会话已断开, conversationID=%d", convID)
}

// FlipCamera 切换摄像头朝向。仅在连接状态下有效。
func (o *Orchestrator) FlipCamera() {
	o.mu.Lock()
	connected := o.state == StateConnected
	o.mu.Unlock()
	if connected {
		o.opts.Sampler.Flip()
	}
}

// runSampleLoop 是采样循环。stopCh 关闭后不再有任何 tick 执行。
func (o *Orchestrator) runSampleLoop(ctx context.Context, convID uint, stopCh chan struct{}) {
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// 定时器触发与 stopCh 关闭可能同时就绪，优先退出
			select {
			case <-stopCh:
				return
			default:
			}
			o.sampleTick(ctx, convID)
		}
	}
}

// sampleTick 执行一轮采样：取帧 → 分类 → 去重 → 持久化 → 按需注入。
// 单轮内的任何失败只记日志，绝不中断采样循环或语音会话。
func (o *Orchestrator) sampleTick(ctx context.Context, convID uint) {
	if !atomic.CompareAndSwapInt32(&o.inFlight, 0, 1) {
		// 上一轮还未完成，跳过本轮
		return
	}
	defer atomic.StoreInt32(&o.inFlight, 0)

	frame := o.opts.Sampler.Capture()
	if len(frame) == 0 {
		return
	}

	result, err := o.opts.Vision.Classify(ctx, frame, vision.ModeTriage)
	if err != nil {
		log.Debugf("[Orchestrator] 本轮画面分类失败: %v", err)
		return
	}

	// 迟到结果检查：分类期间会话可能已断开或换代，直接丢弃
	if o.ConversationID() != convID {
		return
	}

	if !o.dedup.Accept(result.Description) {
		return
	}

	// 画面观察无论是否用药相关都落库，供 check-camera 查询。
	// 追加是 fire-and-forget：失败不回滚、不阻塞会话。
	o.appendAsync(convID, model.RoleMessageCamera, result.Description)

	if result.HasMedicalContent {
		// 用药相关的观察额外注入智能体上下文，并在转写中醒目展示
		o.mu.Lock()
		channel := o.channel
		o.mu.Unlock()
		if channel != nil {
			if err := channel.InjectContext(result.Description); err != nil {
				log.Warnf("[Orchestrator] 注入画面观察失败: %v", err)
			}
		}
		o.appendTranscript(TranscriptEntry{
			Role:      model.RoleMessageCamera,
			Content:   result.Description,
			Prominent: true,
			CreatedAt: time.Now(),
		})
	} else {
		o.appendTranscript(TranscriptEntry{
			Role:      model.RoleMessageCamera,
			Content:   result.Description,
			Prominent: false,
			CreatedAt: time.Now(),
		})
	}
}

// channelEvents 构造绑定在指定会话代上的事件回调。
// 每个回调都先确认会话 id 仍是当前代，对迟到事件直接丢弃。
func (o *Orchestrator) channelEvents(convID uint) Events {
	current := func() bool { return o.ConversationID() == convID }

	return Events{
		OnUserTranscript: func(text string) {
			if !current() {
				return
			}
			o.appendAsync(convID, model.RoleMessageUser, text)
			o.appendTranscript(TranscriptEntry{Role: model.RoleMessageUser, Content: text, Prominent: true, CreatedAt: time.Now()})
			o.setActivity(ActivityListening)
		},
		OnAgentReply: func(text string) {
			if !current() {
				return
			}
			o.appendAsync(convID, model.RoleMessageAgent, text)
			o.appendTranscript(TranscriptEntry{Role: model.RoleMessageAgent, Content: text, Prominent: true, CreatedAt: time.Now()})
			o.setActivity(ActivityListening)
		},
		OnAudioStart: func() {
			if current() {
				o.setActivity(ActivitySpeaking)
			}
		},
		OnAudioStop: func() {
			if current() {
				o.setActivity(ActivityListening)
			}
		},
		OnToolCall: func(name string, args json.RawMessage) (string, error) {
			if !current() {
				return "", errors.New("session no longer active")
			}
			result, err := o.opts.Tools.Dispatch(context.Background(), o.opts.UserID, convID, name, args)
			if err == nil && o.opts.OnToolComplete != nil {
				o.opts.OnToolComplete(name)
			}
			return result, err
		},
		OnClosed: func(err error) {
			if !current() {
				return
			}
			if err != nil {
				log.Warnf("[Orchestrator] 实时通道意外关闭: %v", err)
			}
			o.Disconnect()
		},
	}
}

// appendAsync 把一条消息异步写入持久化网关。
// 写入失败只记日志：这是对活跃会话的尽力而为的留痕。
func (o *Orchestrator) appendAsync(convID uint, role, content string) {
	go func() {
		_, err := o.opts.Conversations.AppendMessage(context.Background(), convID, o.opts.UserID, role, content, nil, nil)
		if err != nil {
			log.Warnf("[Orchestrator] 追加消息失败, conversationID=%d, role=%s: %v", convID, role, err)
		}
	}()
}

func (o *Orchestrator) appendTranscript(entry TranscriptEntry) {
	o.mu.Lock()
	o.transcript = append(o.transcript, entry)
	o.mu.Unlock()
	if o.opts.OnTranscript != nil {
		o.opts.OnTranscript(entry)
	}
}

func (o *Orchestrator) setActivity(activity Activity) {
	o.mu.Lock()
	if o.state != StateConnected || o.activity == activity {
		o.mu.Unlock()
		return
	}
	o.activity = activity
	o.mu.Unlock()
	o.notifyActivity(activity)
}

func (o *Orchestrator) notifyActivity(activity Activity) {
	if o.opts.OnActivity != nil {
		o.opts.OnActivity(activity)
	}
}
