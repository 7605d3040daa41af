package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteRingEnqueueDequeueInOrder(t *testing.T) {
	r := NewByteRing(8)
	r.Enqueue([]byte("hello"))
	dst := make([]byte, 5)
	require.NoError(t, r.DequeueAsync(context.Background(), dst, 5))
	assert.Equal(t, "hello", string(dst))
}

func TestByteRingGrowsPastInitialCapacity(t *testing.T) {
	r := NewByteRing(4)
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	r.Enqueue(data)
	dst := make([]byte, len(data))
	require.NoError(t, r.DequeueAsync(context.Background(), dst, len(data)))
	assert.Equal(t, data, dst)
}

func TestByteRingWrapsAroundCorrectly(t *testing.T) {
	r := NewByteRing(8)
	r.Enqueue([]byte{1, 2, 3, 4, 5, 6})
	drained := make([]byte, 4)
	require.NoError(t, r.DequeueAsync(context.Background(), drained, 4))
	assert.Equal(t, []byte{1, 2, 3, 4}, drained)

	r.Enqueue([]byte{7, 8, 9, 10})
	rest := make([]byte, 6)
	require.NoError(t, r.DequeueAsync(context.Background(), rest, 6))
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10}, rest)
}

func TestByteRingDequeueAsyncBlocksUntilEnoughBytes(t *testing.T) {
	r := NewByteRing(8)
	dst := make([]byte, 3)
	done := make(chan error, 1)
	go func() {
		done <- r.DequeueAsync(context.Background(), dst, 3)
	}()

	r.Enqueue([]byte{1, 2})
	select {
	case err := <-done:
		t.Fatalf("dequeue returned early with err=%v, only 2 of 3 bytes enqueued", err)
	case <-time.After(20 * time.Millisecond):
	}

	r.Enqueue([]byte{3})
	require.NoError(t, <-done)
	assert.Equal(t, []byte{1, 2, 3}, dst)
}

func TestByteRingDequeueAsyncCancellation(t *testing.T) {
	r := NewByteRing(8)
	ctx, cancel := context.WithCancel(context.Background())
	dst := make([]byte, 5)
	done := make(chan error, 1)
	go func() {
		done <- r.DequeueAsync(ctx, dst, 5)
	}()

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Len(), "a cancelled dequeue must leave the buffer untouched")
}

func TestByteRingPeekDoesNotRemove(t *testing.T) {
	r := NewByteRing(8)
	r.Enqueue([]byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2}, r.Peek(2))
	assert.Equal(t, 3, r.Len())
}
