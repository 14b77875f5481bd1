package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dropwire/signalbridge/internal/logging"
	"github.com/dropwire/signalbridge/internal/metrics"
	"go.uber.org/zap"
)

// fileState is the per-in-flight-file record the receiver maintains
// between a file-metadata frame and its matching file-complete frame.
type fileState struct {
	name            string
	declaredSize    int64
	mimeType        string
	expectedChunks  uint32
	chunks          map[uint32][]byte
	receivedIndices map[uint32]bool
	bytesReceived   int64
	startTime       time.Time
}

// Receiver reassembles files from a Channel's incoming text and
// binary frames. One file is active at a time; files are processed
// sequentially end-to-end.
type Receiver struct {
	channel    Channel
	onProgress func(Progress)
	onError    func(*Error)
	onFile     func(name string, data []byte, degraded bool)

	current *fileState
}

// NewReceiver builds a Receiver wired to channel. onFile is called
// with the reassembled bytes once a file completes; onError surfaces
// structured error records for degraded or suspicious completions.
func NewReceiver(channel Channel, onProgress func(Progress), onError func(*Error), onFile func(name string, data []byte, degraded bool)) *Receiver {
	r := &Receiver{channel: channel, onProgress: onProgress, onError: onError, onFile: onFile}
	channel.OnMessage(r.handleMessage)
	return r
}

func (r *Receiver) handleMessage(isBinary bool, data []byte) {
	ctx := context.Background()
	if isBinary {
		r.handleBinaryFrame(ctx, data)
		return
	}
	r.handleTextFrame(ctx, data)
}

func (r *Receiver) handleTextFrame(ctx context.Context, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn(ctx, "dropping malformed control frame")
		return
	}

	switch env.Type {
	case tagFileMetadata:
		var meta FileMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			logging.Warn(ctx, "dropping malformed file-metadata frame")
			return
		}
		r.current = &fileState{
			name:            meta.Name,
			declaredSize:    meta.Size,
			mimeType:        meta.MimeType,
			expectedChunks:  chunkCount(meta.Size),
			chunks:          make(map[uint32][]byte),
			receivedIndices: make(map[uint32]bool),
			startTime:       time.Now(),
		}
	case tagFileComplete:
		var complete FileComplete
		if err := json.Unmarshal(data, &complete); err != nil {
			logging.Warn(ctx, "dropping malformed file-complete frame")
			return
		}
		r.finishFile(ctx, complete)
	}
}

// handleBinaryFrame accepts either a 0x01-tagged sequence-headered
// chunk or, for legacy interoperability, a raw chunk appended in
// arrival order.
func (r *Receiver) handleBinaryFrame(ctx context.Context, raw []byte) {
	if r.current == nil {
		logging.Warn(ctx, "dropping binary frame with no active file-metadata")
		return
	}

	if isLegacyChunk(raw) {
		r.storeLegacyChunk(ctx, raw)
		return
	}

	frame, err := decodeChunkFrame(raw)
	if err != nil {
		logging.Warn(ctx, "dropping truncated chunk frame")
		return
	}

	f := r.current
	if frame.ChunkIndex >= frame.TotalChunks {
		metrics.TransferChunksTotal.WithLabelValues("receive", "out_of_range").Inc()
		if r.onError != nil {
			r.onError(newTransferError(ErrChunkOutOfRange, f.name, "chunk index out of range"))
		}
		return
	}

	if f.receivedIndices[frame.ChunkIndex] {
		metrics.TransferChunksTotal.WithLabelValues("receive", "duplicate").Inc()
		if r.onError != nil {
			r.onError(newTransferError(ErrDuplicateChunk, f.name, "chunk already received, re-acking"))
		}
		r.ackChunk(ctx, frame.ChunkIndex)
		return
	}

	payload := append([]byte(nil), frame.Data...)
	f.chunks[frame.ChunkIndex] = payload
	f.receivedIndices[frame.ChunkIndex] = true
	f.bytesReceived += int64(len(payload))
	f.expectedChunks = frame.TotalChunks

	metrics.TransferChunksTotal.WithLabelValues("receive", "ok").Inc()
	metrics.TransferBytesTotal.WithLabelValues("receive").Add(float64(len(payload)))

	r.ackChunk(ctx, frame.ChunkIndex)
	r.reportProgress(f)
}

// storeLegacyChunk appends a raw pre-sequence-header chunk. Its
// correctness relies entirely on the channel's delivery order.
func (r *Receiver) storeLegacyChunk(ctx context.Context, raw []byte) {
	f := r.current
	index := uint32(len(f.receivedIndices))
	f.chunks[index] = append([]byte(nil), raw...)
	f.receivedIndices[index] = true
	f.bytesReceived += int64(len(raw))

	metrics.TransferChunksTotal.WithLabelValues("receive", "legacy").Inc()
	r.ackChunk(ctx, index)
	r.reportProgress(f)
}

func (r *Receiver) ackChunk(ctx context.Context, index uint32) {
	if err := r.channel.SendText(ctx, newChunkAck(index)); err != nil {
		logging.Warn(ctx, "failed to send chunk-ack", zap.Error(err))
	}
}

// finishFile reassembles the active file's chunks in index order,
// zero-filling any gap, optionally verifying a checksum, and hands the
// result to onFile before returning the receiver to idle.
func (r *Receiver) finishFile(ctx context.Context, complete FileComplete) {
	f := r.current
	if f == nil {
		return
	}
	r.current = nil

	expected := complete.TotalChunks
	if expected == 0 {
		expected = f.expectedChunks
	}

	var buf bytes.Buffer
	degraded := false
	for i := uint32(0); i < expected; i++ {
		chunk, ok := f.chunks[i]
		if !ok {
			degraded = true
			chunk = make([]byte, expectedChunkLen(i, expected, f.declaredSize))
		}
		buf.Write(chunk)
	}

	data := buf.Bytes()

	if degraded {
		metrics.TransferChunksTotal.WithLabelValues("receive", "missing").Inc()
		if r.onError != nil {
			r.onError(newTransferError(ErrMissingChunk, f.name, "completion has gaps; zero-filled"))
		}
	}

	if f.declaredSize > 0 && int64(len(data)) != f.declaredSize && !degraded {
		if r.onError != nil {
			r.onError(newTransferError(ErrSizeMismatch, f.name, "reassembled size does not match declared size"))
		}
	}

	if complete.Checksum != "" {
		sum := sha256.Sum256(data)
		actual := hex.EncodeToString(sum[:])
		if actual != complete.Checksum {
			if r.onError != nil {
				r.onError(newTransferError(ErrChecksumMismatch, f.name, "checksum mismatch"))
			}
		}
	}

	if r.onFile != nil {
		r.onFile(f.name, data, degraded)
	}
}

// expectedChunkLen returns the size a chunk at index i should have
// had, given the file's declared total size — ChunkSize for every
// chunk but the last, which holds the remainder.
func expectedChunkLen(i, total uint32, declaredSize int64) int64 {
	if total == 0 {
		return 0
	}
	if i == total-1 {
		remainder := declaredSize - int64(i)*ChunkSize
		if remainder > 0 {
			return remainder
		}
	}
	return ChunkSize
}

func (r *Receiver) reportProgress(f *fileState) {
	if r.onProgress == nil {
		return
	}
	percent := float64(100)
	if f.declaredSize > 0 {
		percent = float64(f.bytesReceived) / float64(f.declaredSize) * 100
	}
	r.onProgress(Progress{
		FileName:         f.name,
		Percent:          percent,
		BytesTransferred: f.bytesReceived,
		TotalBytes:       f.declaredSize,
		StartTime:        f.startTime,
	})
}
