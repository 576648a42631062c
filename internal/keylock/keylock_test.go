package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	kl := New()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("tx-1")
			defer kl.Unlock("tx-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	kl := New()

	kl.Lock("device-a")
	done := make(chan struct{})
	go func() {
		kl.Lock("device-b")
		kl.Unlock("device-b")
		close(done)
	}()
	<-done
	kl.Unlock("device-a")
}

func TestEntriesAreDroppedWhenReleased(t *testing.T) {
	kl := New()

	kl.Lock("addr-1")
	kl.Unlock("addr-1")

	kl.mu.Lock()
	defer kl.mu.Unlock()
	require.Empty(t, kl.locks)
}

func TestUnlockUnheldPanics(t *testing.T) {
	kl := New()
	assert.Panics(t, func() { kl.Unlock("nope") })
}
