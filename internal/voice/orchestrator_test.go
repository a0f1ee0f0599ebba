package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medassist-go/internal/model"
	"medassist-go/internal/service"
	"medassist-go/pkg/log"
	"medassist-go/pkg/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	m.Run()
}

// fakeConversations 是 service.ConversationService 的内存实现。
type fakeConversations struct {
	mu       sync.Mutex
	nextID   uint
	messages []model.ConversationMessage
	ended    []uint

	createErr         error
	latestObservation string
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{}
}

func (f *fakeConversations) CreateConversation(ctx context.Context, userID uint) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &model.Conversation{ID: f.nextID, UserID: userID, Status: model.ConversationActive}, nil
}

func (f *fakeConversations) AppendMessage(ctx context.Context, conversationID, userID uint, role, content string, toolName, toolArgs *string) (*model.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := model.ConversationMessage{ConversationID: conversationID, Role: role, Content: content, CreatedAt: time.Now()}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeConversations) EndConversation(ctx context.Context, conversationID, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, conversationID)
	return nil
}

func (f *fakeConversations) GetDetail(ctx context.Context, conversationID, userID uint) (*service.ConversationDetail, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConversations) ListConversations(ctx context.Context, userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	return nil, 0, nil
}

func (f *fakeConversations) DeleteConversation(ctx context.Context, conversationID, userID uint) error {
	return nil
}

func (f *fakeConversations) LatestObservation(ctx context.Context, conversationID, userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestObservation, nil
}

func (f *fakeConversations) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeConversations) messageAt(i int) model.ConversationMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[i]
}

func (f *fakeConversations) endedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ended)
}

// fakeVision 返回固定的分类结果，可选在 block 上阻塞以模拟慢识别。
type fakeVision struct {
	mu     sync.Mutex
	result vision.Result
	err    error
	calls  int32
	block  chan struct{}
}

func (f *fakeVision) Classify(ctx context.Context, image []byte, mode vision.Mode) (*vision.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.result
	return &out, nil
}

func (f *fakeVision) setResult(r vision.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = r
}

func (f *fakeVision) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

// fakeChannel 记录注入的上下文文本，不做任何网络通信。
type fakeChannel struct {
	mu         sync.Mutex
	connectErr error
	injected   []string
	closed     bool
}

func (c *fakeChannel) Connect(ctx context.Context, credential string) error {
	return c.connectErr
}

func (c *fakeChannel) InjectContext(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injected = append(c.injected, text)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) injectedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.injected)
}

// staticSource 永远返回同一帧。
type staticSource struct{ frame []byte }

func (s *staticSource) CaptureFrame() ([]byte, error) { return s.frame, nil }
func (s *staticSource) Close() error                  { return nil }

type testHarness struct {
	conversations *fakeConversations
	visionCli     *fakeVision
	channel       *fakeChannel
	events        Events
	orchestrator  *Orchestrator
}

func newTestHarness(t *testing.T, period time.Duration) *testHarness {
	t.Helper()

	h := &testHarness{
		conversations: newFakeConversations(),
		visionCli:     &fakeVision{},
		channel:       &fakeChannel{},
	}
	sampler := NewSampler(func(facing Facing) (FrameSource, error) {
		return &staticSource{frame: []byte("jpeg-bytes")}, nil
	})
	h.orchestrator = NewOrchestrator(Options{
		UserID:        1,
		Conversations: h.conversations,
		Vision:        h.visionCli,
		Sampler:       sampler,
		NewChannel: func(events Events) Channel {
			h.events = events
			return h.channel
		},
		Credential:   func() (string, error) { return "ephemeral-credential", nil },
		SamplePeriod: period,
	})
	return h
}

func TestConnectTransitionsToConnected(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	assert.Equal(t, StateConnected, h.orchestrator.State())
	assert.NotZero(t, h.orchestrator.ConversationID())
	assert.True(t, h.orchestrator.CameraActive())
}

func TestConnectRejectsDoubleConnect(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	err := h.orchestrator.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectFailureRollsBack(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	h.channel.connectErr = errors.New("dial failed")

	err := h.orchestrator.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, h.orchestrator.State())
	assert.Zero(t, h.orchestrator.ConversationID())
	// 已创建的会话记录被尽力标记为结束
	assert.Equal(t, 1, h.conversations.endedCount())
}

func TestReconnectGetsFreshConversation(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	first := h.orchestrator.ConversationID()
	h.orchestrator.Disconnect()

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	second := h.orchestrator.ConversationID()
	assert.NotEqual(t, first, second)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHarness(t, time.Hour)

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	h.orchestrator.Disconnect()
	h.orchestrator.Disconnect()

	assert.Equal(t, StateDisconnected, h.orchestrator.State())
	assert.Equal(t, 1, h.conversations.endedCount())
}

func TestSampleTickPersistsAndInjectsMedicalObservation(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()
	h.visionCli.setResult(vision.Result{Description: "患者正在服药", HasMedicalContent: true})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	h.orchestrator.sampleTick(context.Background(), h.orchestrator.ConversationID())

	require.Eventually(t, func() bool {
		return h.conversations.messageCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, model.RoleMessageCamera, h.conversations.messageAt(0).Role)
	assert.Equal(t, 1, h.channel.injectedCount())

	entries := h.orchestrator.Transcript()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Prominent)
}

func TestSampleTickPersistsButDoesNotInjectSilentObservation(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()
	h.visionCli.setResult(vision.Result{Description: "空空的桌面", HasMedicalContent: false})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	h.orchestrator.sampleTick(context.Background(), h.orchestrator.ConversationID())

	require.Eventually(t, func() bool {
		return h.conversations.messageCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.channel.injectedCount())

	entries := h.orchestrator.Transcript()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Prominent)
}

func TestSampleTickSkipsConsecutiveDuplicates(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()
	h.visionCli.setResult(vision.Result{Description: "药瓶放在桌上", HasMedicalContent: true})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	convID := h.orchestrator.ConversationID()
	h.orchestrator.sampleTick(context.Background(), convID)
	h.orchestrator.sampleTick(context.Background(), convID)
	h.orchestrator.sampleTick(context.Background(), convID)

	require.Eventually(t, func() bool {
		return h.conversations.messageCount() == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.conversations.messageCount())
	assert.Equal(t, 1, h.channel.injectedCount())
}

func TestSampleTickDiscardsLateResultAfterDisconnect(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	h.visionCli.block = make(chan struct{})
	h.visionCli.setResult(vision.Result{Description: "患者正在服药", HasMedicalContent: true})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	convID := h.orchestrator.ConversationID()

	done := make(chan struct{})
	go func() {
		h.orchestrator.sampleTick(context.Background(), convID)
		close(done)
	}()

	// 等分类真正开始，再断开会话，最后放行迟到的结果
	require.Eventually(t, func() bool {
		return h.visionCli.callCount() == 1
	}, time.Second, 5*time.Millisecond)
	h.orchestrator.Disconnect()
	close(h.visionCli.block)
	<-done

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.conversations.messageCount())
	assert.Equal(t, 0, h.channel.injectedCount())
}

func TestSampleTickInFlightExclusivity(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()
	h.visionCli.block = make(chan struct{})
	h.visionCli.setResult(vision.Result{Description: "药瓶放在桌上"})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	convID := h.orchestrator.ConversationID()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.orchestrator.sampleTick(context.Background(), convID)
		}()
	}
	// 只有一轮能进入分类，其余都被直接跳过
	require.Eventually(t, func() bool {
		return h.visionCli.callCount() == 1
	}, time.Second, 5*time.Millisecond)
	close(h.visionCli.block)
	wg.Wait()
	assert.Equal(t, int32(1), h.visionCli.callCount())
}

func TestDisconnectStopsSampleLoop(t *testing.T) {
	h := newTestHarness(t, 10*time.Millisecond)
	h.visionCli.setResult(vision.Result{Description: "药瓶放在桌上"})

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return h.visionCli.callCount() >= 1
	}, time.Second, 5*time.Millisecond)

	h.orchestrator.Disconnect()
	// 已在途的一轮可能还在收尾，等它结束后计数必须不再变化
	time.Sleep(50 * time.Millisecond)
	settled := h.visionCli.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, h.visionCli.callCount())
}

func TestChannelEventsDiscardedAfterDisconnect(t *testing.T) {
	h := newTestHarness(t, time.Hour)

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	events := h.events
	h.orchestrator.Disconnect()

	events.OnUserTranscript("迟到的转写")
	events.OnAgentReply("迟到的回复")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.conversations.messageCount())
	assert.Empty(t, h.orchestrator.Transcript())
}

func TestChannelEventsAppendTranscriptAndPersist(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	defer h.orchestrator.Disconnect()

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	h.events.OnUserTranscript("我今天吃过降压药了吗")
	h.events.OnAgentReply("您今天早上八点已经服用过了")

	require.Eventually(t, func() bool {
		return h.conversations.messageCount() == 2
	}, time.Second, 10*time.Millisecond)

	entries := h.orchestrator.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, model.RoleMessageUser, entries[0].Role)
	assert.Equal(t, model.RoleMessageAgent, entries[1].Role)
}

func TestChannelClosedTriggersDisconnect(t *testing.T) {
	h := newTestHarness(t, time.Hour)

	require.NoError(t, h.orchestrator.Connect(context.Background()))
	h.events.OnClosed(errors.New("upstream gone"))

	assert.Equal(t, StateDisconnected, h.orchestrator.State())
	assert.Equal(t, 1, h.conversations.endedCount())
}
