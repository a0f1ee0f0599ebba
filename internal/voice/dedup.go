// Package voice 实现了实时语音会话的编排核心：
// 会话生命周期状态机、摄像头采样循环、观察去重，
// 以及与上游实时智能体通道的事件桥接。
package voice

import "sync"

// DedupFilter 抑制对同一画面的重复下游通知。
// 仅做字节级精确比较，不做语义相似度判断：非确定性的分类服务
// 改换措辞时会穿透过滤，这是已知并接受的局限。
type DedupFilter struct {
	mu   sync.Mutex
	last string
}

// NewDedupFilter 创建一个空状态的去重过滤器。
func NewDedupFilter() *DedupFilter {
	return &DedupFilter{}
}

// Accept 判断一条画面描述是否为新观察。
// 与上一条被接受的描述完全相同时返回 false；否则更新内部状态并返回 true。
func (f *DedupFilter) Accept(description string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if description == f.last {
		return false
	}
	f.last = description
	return true
}

// Reset 清空记忆的上一条描述。每次新会话开始时调用。
func (f *DedupFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = ""
}
