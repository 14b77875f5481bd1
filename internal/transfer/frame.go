package transfer

import (
	"encoding/binary"
	"errors"
)

// ChunkSize is CHUNK_SIZE: every data chunk holds this many bytes
// except the final chunk of a file, which holds the remainder.
const ChunkSize = 65536

// chunkTag marks a binary frame as a sequence-headered data chunk.
// Any other leading byte is treated as a legacy raw chunk for
// backward interoperability.
const chunkTag byte = 0x01

// chunkHeaderSize is the byte length of the fixed header preceding a
// chunk's payload: tag(1) + chunk_index(4) + total_chunks(4) +
// data_length(4).
const chunkHeaderSize = 1 + 4 + 4 + 4

var errTruncatedFrame = errors.New("transfer: truncated chunk frame")

// chunkFrame is a decoded 0x01-tagged binary data frame.
//
// Wire layout (little-endian):
//
//	byte 0:      0x01
//	bytes 1-4:   chunk_index (u32)
//	bytes 5-8:   total_chunks (u32)
//	bytes 9-12:  data_length (u32)
//	bytes 13...: the chunk payload
type chunkFrame struct {
	ChunkIndex  uint32
	TotalChunks uint32
	Data        []byte
}

// encodeChunkFrame serializes a chunkFrame to its wire form.
func encodeChunkFrame(chunkIndex, totalChunks uint32, data []byte) []byte {
	buf := make([]byte, chunkHeaderSize+len(data))
	buf[0] = chunkTag
	binary.LittleEndian.PutUint32(buf[1:5], chunkIndex)
	binary.LittleEndian.PutUint32(buf[5:9], totalChunks)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(data)))
	copy(buf[chunkHeaderSize:], data)
	return buf
}

// isLegacyChunk reports whether raw is a binary frame that predates
// the sequence-header protocol (any leading byte other than 0x01).
func isLegacyChunk(raw []byte) bool {
	return len(raw) == 0 || raw[0] != chunkTag
}

// decodeChunkFrame parses a 0x01-tagged binary frame. Callers must
// check isLegacyChunk first.
func decodeChunkFrame(raw []byte) (chunkFrame, error) {
	if len(raw) < chunkHeaderSize {
		return chunkFrame{}, errTruncatedFrame
	}
	chunkIndex := binary.LittleEndian.Uint32(raw[1:5])
	totalChunks := binary.LittleEndian.Uint32(raw[5:9])
	dataLength := binary.LittleEndian.Uint32(raw[9:13])

	if uint32(len(raw)-chunkHeaderSize) < dataLength {
		return chunkFrame{}, errTruncatedFrame
	}

	return chunkFrame{
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Data:        raw[chunkHeaderSize : chunkHeaderSize+int(dataLength)],
	}, nil
}

// chunkCount returns ceil(size / ChunkSize).
func chunkCount(size int64) uint32 {
	if size <= 0 {
		return 0
	}
	return uint32((size + ChunkSize - 1) / ChunkSize)
}
