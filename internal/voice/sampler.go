package voice

import (
	"sync"

	"medassist-go/pkg/log"
)

// Facing 表示摄像头朝向。
type Facing string

const (
	// FacingEnvironment 是后置（环境）摄像头，默认值。
	FacingEnvironment Facing = "environment"
	// FacingUser 是前置摄像头。
	FacingUser Facing = "user"
)

// FrameSource 抽象一个可以按需取帧的摄像头。
// CaptureFrame 返回当前帧的 JPEG 编码；设备尚未产出首帧时返回 nil，
// 调用方应将其视为"跳过本轮"而非错误。
type FrameSource interface {
	CaptureFrame() ([]byte, error)
	Close() error
}

// SourceFactory 按指定朝向获取一个新的 FrameSource。
// 每次会话连接都重新获取，不跨连接复用句柄。
type SourceFactory func(facing Facing) (FrameSource, error)

// Sampler 持有当前会话的摄像头句柄并在采样周期内按需取单帧。
// 定时器归编排器所有；Sampler 只负责设备句柄的获取、切换与释放。
type Sampler struct {
	mu      sync.Mutex
	factory SourceFactory
	source  FrameSource
	facing  Facing
}

// NewSampler 创建一个新的 Sampler。
func NewSampler(factory SourceFactory) *Sampler {
	return &Sampler{factory: factory}
}

// Start 按指定朝向获取摄像头。获取失败只记日志不上抛：
// 系统其余部分必须在没有视觉输入的情况下照常工作。
func (s *Sampler) Start(facing Facing) {
	if facing == "" {
		facing = FacingEnvironment
	}

	source, err := s.factory(facing)
	if err != nil {
		log.Warnf("[Sampler] 获取摄像头失败（facing=%s），继续无视觉运行: %v", facing, err)
		return
	}

	s.mu.Lock()
	old := s.source
	s.source = source
	s.facing = facing
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// Capture 取当前帧。摄像头不可用或尚无帧时返回 nil。
func (s *Sampler) Capture() []byte {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		return nil
	}
	frame, err := source.CaptureFrame()
	if err != nil {
		log.Debugf("[Sampler] 取帧失败: %v", err)
		return nil
	}
	return frame
}

// Flip 停掉当前流并以相反朝向重启。
// 与之并发的取帧可能落在旧流或新流上，以后到的流为准，不保证原子切换。
func (s *Sampler) Flip() {
	s.mu.Lock()
	next := FacingUser
	if s.facing == FacingUser {
		next = FacingEnvironment
	}
	s.mu.Unlock()

	s.Start(next)
}

// Stop 释放摄像头句柄。可安全地重复调用。
func (s *Sampler) Stop() {
	s.mu.Lock()
	source := s.source
	s.source = nil
	s.mu.Unlock()

	if source != nil {
		_ = source.Close()
	}
}

// Active 报告当前是否持有可用的摄像头句柄。
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

// LatestFrameBuffer 是由客户端推流驱动的 FrameSource 实现：
// 客户端持续推送最新帧，采样循环按周期取当前值。
type LatestFrameBuffer struct {
	mu     sync.Mutex
	frame  []byte
	closed bool
}

// NewLatestFrameBuffer 创建一个空的帧缓冲。
func NewLatestFrameBuffer() *LatestFrameBuffer {
	return &LatestFrameBuffer{}
}

// Push 写入一帧，覆盖之前的值。
func (b *LatestFrameBuffer) Push(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.frame = frame
}

// CaptureFrame 返回最近推送的一帧；尚无帧时返回 nil。
func (b *LatestFrameBuffer) CaptureFrame() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame, nil
}

// Close 关闭缓冲，之后的 Push 被忽略。
func (b *LatestFrameBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.frame = nil
	return nil
}
