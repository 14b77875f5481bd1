package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(ch *fakeChannel) (*Receiver, *[]string, *[]struct {
	name     string
	data     []byte
	degraded bool
}) {
	var errKinds []string
	var delivered []struct {
		name     string
		data     []byte
		degraded bool
	}
	r := NewReceiver(ch, nil, func(e *Error) {
		errKinds = append(errKinds, string(e.Kind))
	}, func(name string, data []byte, degraded bool) {
		delivered = append(delivered, struct {
			name     string
			data     []byte
			degraded bool
		}{name, data, degraded})
	})
	return r, &errKinds, &delivered
}

// TestReceiver_ReassemblyRoundTrip verifies that reassembling a
// file's chunks yields exactly the original bytes.
func TestReceiver_ReassemblyRoundTrip(t *testing.T) {
	ch := newFakeChannel()
	_, errKinds, delivered := newTestReceiver(ch)

	content := make([]byte, 100000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	ch.deliverText(newFileMetadata("photo.png", int64(len(content)), "image/png", time.Now()))
	ch.deliverBinary(encodeChunkFrame(0, 2, content[:ChunkSize]))
	ch.deliverBinary(encodeChunkFrame(1, 2, content[ChunkSize:]))
	ch.deliverText(newFileComplete("photo.png", 2, ""))

	require.Len(t, *delivered, 1)
	assert.Equal(t, content, (*delivered)[0].data)
	assert.False(t, (*delivered)[0].degraded)
	assert.Empty(t, *errKinds)
}

// TestReceiver_ChunkIdempotence verifies duplicates of chunk 1
// and 3 are acked but stored only once; reassembly matches the
// original, each duplicate surfaces a DuplicateChunk error, and no
// MissingChunk/SizeMismatch is raised.
func TestReceiver_ChunkIdempotence(t *testing.T) {
	ch := newFakeChannel()
	_, errKinds, delivered := newTestReceiver(ch)

	content := make([]byte, 200000)
	for i := range content {
		content[i] = byte(i % 200)
	}
	chunks := [][]byte{
		content[0*ChunkSize : 1*ChunkSize],
		content[1*ChunkSize : 2*ChunkSize],
		content[2*ChunkSize : 3*ChunkSize],
		content[3*ChunkSize:],
	}

	ch.deliverText(newFileMetadata("video.mp4", int64(len(content)), "video/mp4", time.Now()))
	ch.deliverBinary(encodeChunkFrame(0, 4, chunks[0]))
	ch.deliverBinary(encodeChunkFrame(1, 4, chunks[1]))
	ch.deliverBinary(encodeChunkFrame(1, 4, chunks[1])) // duplicate
	ch.deliverBinary(encodeChunkFrame(2, 4, chunks[2]))
	ch.deliverBinary(encodeChunkFrame(3, 4, chunks[3]))
	ch.deliverBinary(encodeChunkFrame(3, 4, chunks[3])) // duplicate
	ch.deliverText(newFileComplete("video.mp4", 4, ""))

	acks := ch.textTags()
	ackCount := 0
	for _, tag := range acks {
		if tag == tagChunkAck {
			ackCount++
		}
	}
	assert.Equal(t, 6, ackCount)

	require.Len(t, *delivered, 1)
	assert.Equal(t, content, (*delivered)[0].data)
	assert.False(t, (*delivered)[0].degraded)
	assert.Equal(t, []string{string(ErrDuplicateChunk), string(ErrDuplicateChunk)}, *errKinds)
}

// TestReceiver_MissingChunkDegradation verifies that when chunk 2
// never arrives, the file is still produced, zero-filled at that
// chunk's offsets, with a MissingChunk error surfaced.
func TestReceiver_MissingChunkDegradation(t *testing.T) {
	ch := newFakeChannel()
	_, errKinds, delivered := newTestReceiver(ch)

	size := int64(4 * ChunkSize)
	chunk := make([]byte, ChunkSize)
	for i := range chunk {
		chunk[i] = 0xAB
	}

	ch.deliverText(newFileMetadata("stream.bin", size, "application/octet-stream", time.Now()))
	ch.deliverBinary(encodeChunkFrame(0, 4, chunk))
	ch.deliverBinary(encodeChunkFrame(1, 4, chunk))
	ch.deliverBinary(encodeChunkFrame(3, 4, chunk))
	ch.deliverText(newFileComplete("stream.bin", 4, ""))

	require.Len(t, *delivered, 1)
	got := (*delivered)[0]
	assert.True(t, got.degraded)
	assert.Contains(t, *errKinds, string(ErrMissingChunk))
	assert.Len(t, got.data, int(size))

	missingRange := got.data[2*ChunkSize : 3*ChunkSize]
	for _, b := range missingRange {
		assert.Equal(t, byte(0), b)
	}
}

func TestReceiver_ChecksumMismatch(t *testing.T) {
	ch := newFakeChannel()
	_, errKinds, delivered := newTestReceiver(ch)

	content := []byte("the quick brown fox")
	ch.deliverText(newFileMetadata("note.txt", int64(len(content)), "text/plain", time.Now()))
	ch.deliverBinary(encodeChunkFrame(0, 1, content))

	wrongSum := sha256.Sum256([]byte("different content"))
	ch.deliverText(newFileComplete("note.txt", 1, hex.EncodeToString(wrongSum[:])))

	require.Len(t, *delivered, 1)
	assert.Contains(t, *errKinds, string(ErrChecksumMismatch))
}

func TestReceiver_LegacyBinaryFallback(t *testing.T) {
	ch := newFakeChannel()
	_, _, delivered := newTestReceiver(ch)

	content := []byte("legacy payload without a header")
	ch.deliverText(newFileMetadata("legacy.bin", int64(len(content)), "application/octet-stream", time.Now()))
	ch.deliverBinary(append([]byte{0x02}, content...))
	ch.deliverText(newFileComplete("legacy.bin", 1, ""))

	require.Len(t, *delivered, 1)
	assert.Equal(t, append([]byte{0x02}, content...), (*delivered)[0].data)
}

func TestReceiver_DropsBinaryFrameWithNoActiveFile(t *testing.T) {
	ch := newFakeChannel()
	_, _, delivered := newTestReceiver(ch)

	ch.deliverBinary(encodeChunkFrame(0, 1, []byte("orphan")))
	assert.Empty(t, *delivered)
}

func TestReceiver_ChunkOutOfRange(t *testing.T) {
	ch := newFakeChannel()
	_, errKinds, _ := newTestReceiver(ch)

	ch.deliverText(newFileMetadata("f.bin", 10, "application/octet-stream", time.Now()))
	ch.deliverBinary(encodeChunkFrame(5, 1, []byte("x")))

	assert.Contains(t, *errKinds, string(ErrChunkOutOfRange))
}
