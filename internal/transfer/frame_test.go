package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChunkFrame_RoundTrip(t *testing.T) {
	payload := []byte("hello chunk")
	frame := encodeChunkFrame(3, 10, payload)

	assert.False(t, isLegacyChunk(frame))

	decoded, err := decodeChunkFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), decoded.ChunkIndex)
	assert.Equal(t, uint32(10), decoded.TotalChunks)
	assert.Equal(t, payload, decoded.Data)
}

func TestIsLegacyChunk(t *testing.T) {
	assert.True(t, isLegacyChunk([]byte{0x02, 1, 2, 3}))
	assert.True(t, isLegacyChunk(nil))
	assert.False(t, isLegacyChunk([]byte{0x01, 0, 0, 0, 0}))
}

func TestDecodeChunkFrame_TruncatedHeader(t *testing.T) {
	_, err := decodeChunkFrame([]byte{0x01, 0, 0})
	assert.ErrorIs(t, err, errTruncatedFrame)
}

func TestDecodeChunkFrame_TruncatedPayload(t *testing.T) {
	frame := encodeChunkFrame(0, 1, []byte("full payload"))
	truncated := frame[:len(frame)-4]
	_, err := decodeChunkFrame(truncated)
	assert.ErrorIs(t, err, errTruncatedFrame)
}

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size int64
		want uint32
	}{
		{0, 0},
		{1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{100000, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, chunkCount(c.size), "size=%d", c.size)
	}
}
