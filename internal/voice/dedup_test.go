package voice

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupFilterAcceptsFirstDescription(t *testing.T) {
	f := NewDedupFilter()
	assert.True(t, f.Accept("药瓶放在桌上"))
}

func TestDedupFilterRejectsConsecutiveDuplicate(t *testing.T) {
	f := NewDedupFilter()
	assert.True(t, f.Accept("药瓶放在桌上"))
	assert.False(t, f.Accept("药瓶放在桌上"))
	assert.False(t, f.Accept("药瓶放在桌上"))
}

func TestDedupFilterAcceptsChangedDescription(t *testing.T) {
	f := NewDedupFilter()
	assert.True(t, f.Accept("药瓶放在桌上"))
	assert.True(t, f.Accept("患者拿起了药瓶"))
	// 回到之前见过的画面也算变化：只和上一条比较
	assert.True(t, f.Accept("药瓶放在桌上"))
}

func TestDedupFilterResetForgetsLast(t *testing.T) {
	f := NewDedupFilter()
	assert.True(t, f.Accept("药瓶放在桌上"))
	f.Reset()
	assert.True(t, f.Accept("药瓶放在桌上"))
}

func TestDedupFilterConcurrentAcceptExactlyOne(t *testing.T) {
	f := NewDedupFilter()

	const workers = 16
	var wg sync.WaitGroup
	accepted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted <- f.Accept("同一帧描述")
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for ok := range accepted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
