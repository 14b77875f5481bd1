package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// TestSender_HappyPath verifies a 100000-byte file produces two
// chunks of 65536 and 34464 bytes, reassembling to the original.
func TestSender_HappyPath(t *testing.T) {
	ch := newFakeChannel()
	sender := NewSender(ch, true, nil)

	content := randomBytes(t, 100000)
	file := SourceFile{Name: "photo.png", Size: int64(len(content)), MimeType: "image/png", Reader: bytes.NewReader(content)}

	err := sender.SendAll(context.Background(), []SourceFile{file})
	require.NoError(t, err)

	require.Len(t, ch.binaryFrames, 2)

	first, err := decodeChunkFrame(ch.binaryFrames[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first.ChunkIndex)
	assert.Equal(t, uint32(2), first.TotalChunks)
	assert.Len(t, first.Data, ChunkSize)

	second, err := decodeChunkFrame(ch.binaryFrames[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.ChunkIndex)
	assert.Len(t, second.Data, 100000-ChunkSize)

	reassembled := append(append([]byte(nil), first.Data...), second.Data...)
	assert.Equal(t, content, reassembled)

	assert.Equal(t, []string{tagFileMetadata, tagFileComplete}, ch.textTags())
}

// TestSender_Backpressure verifies the sender never lets its
// outstanding buffered bytes exceed HighWaterMark + ChunkSize, even
// against a channel that buffers indefinitely until drained.
func TestSender_Backpressure(t *testing.T) {
	ch := newFakeChannel()
	sender := NewSender(ch, false, nil)

	content := randomBytes(t, HighWaterMark*3)
	file := SourceFile{Name: "big.bin", Size: int64(len(content)), Reader: bytes.NewReader(content)}

	maxObserved := make(chan uint64, 1)
	stop := make(chan struct{})
	go func() {
		var peak uint64
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				maxObserved <- peak
				return
			case <-ticker.C:
				if b := ch.BufferedAmount(); b > peak {
					peak = b
				}
			}
		}
	}()

	go func() {
		drainTicker := time.NewTicker(20 * time.Millisecond)
		defer drainTicker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-drainTicker.C:
				ch.drain()
			}
		}
	}()

	err := sender.SendAll(context.Background(), []SourceFile{file})
	require.NoError(t, err)
	close(stop)

	peak := <-maxObserved
	assert.LessOrEqual(t, peak, uint64(HighWaterMark+ChunkSize))
}

func TestSender_SequentialFiles(t *testing.T) {
	ch := newFakeChannel()
	sender := NewSender(ch, false, nil)

	files := []SourceFile{
		{Name: "a.txt", Size: 10, Reader: bytes.NewReader(randomBytes(t, 10))},
		{Name: "b.txt", Size: 10, Reader: bytes.NewReader(randomBytes(t, 10))},
	}

	err := sender.SendAll(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, []string{tagFileMetadata, tagFileComplete, tagFileMetadata, tagFileComplete}, ch.textTags())
}
