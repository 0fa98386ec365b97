package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerials_Next(t *testing.T) {
	var s serials
	assert.Zero(t, s.issued())
	assert.Equal(t, int64(1), s.next())
	assert.Equal(t, int64(2), s.next())
	assert.Equal(t, int64(2), s.issued())
}

func TestSerials_Unique(t *testing.T) {
	var s serials
	const workers, per = 20, 50

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				n := s.next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*per)
}
