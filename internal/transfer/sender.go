package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/dropwire/signalbridge/internal/metrics"
)

// HighWaterMark is the send-buffer backpressure threshold: 1 MiB.
const HighWaterMark = 1 << 20

// backpressureBackoff is how long the sender waits before re-checking
// the buffered-bytes counter once it crosses HighWaterMark.
const backpressureBackoff = 100 * time.Millisecond

// interFilePause separates consecutive files in the queue.
const interFilePause = 100 * time.Millisecond

// SourceFile is one file queued for transmission.
type SourceFile struct {
	Name         string
	Size         int64
	MimeType     string
	LastModified time.Time
	Reader       io.Reader
}

// Sender transmits a queue of files sequentially over a Channel,
// chunking each one and pacing sends against the channel's outbound
// buffer.
type Sender struct {
	channel     Channel
	onProgress  func(Progress)
	computeHash bool
}

// NewSender builds a Sender. computeHash controls whether a SHA-256
// digest is computed and attached to each file's file-complete frame;
// the protocol accepts the checksum field as optional either way.
func NewSender(channel Channel, computeHash bool, onProgress func(Progress)) *Sender {
	return &Sender{channel: channel, computeHash: computeHash, onProgress: onProgress}
}

// SendAll transmits each file strictly sequentially: file n+1 starts
// only after file n's file-complete frame has been enqueued.
func (s *Sender) SendAll(ctx context.Context, files []SourceFile) error {
	for i, f := range files {
		if err := s.sendFile(ctx, f); err != nil {
			return err
		}
		if i < len(files)-1 {
			time.Sleep(interFilePause)
		}
	}
	return nil
}

func (s *Sender) sendFile(ctx context.Context, f SourceFile) error {
	total := chunkCount(f.Size)
	start := time.Now()

	if err := s.channel.SendText(ctx, newFileMetadata(f.Name, f.Size, f.MimeType, f.LastModified)); err != nil {
		return newTransferError(ErrChannelClosedDuringXfer, f.Name, "channel closed sending file-metadata")
	}

	var hasher = sha256.New()
	var bytesSent int64
	buf := make([]byte, ChunkSize)

	for index := uint32(0); ; index++ {
		n, err := io.ReadFull(f.Reader, buf)
		if n == 0 {
			break
		}
		chunk := buf[:n]

		if err := s.waitForWindow(ctx); err != nil {
			return err
		}

		frame := encodeChunkFrame(index, total, chunk)
		if sendErr := s.channel.SendBinary(ctx, frame); sendErr != nil {
			return newTransferError(ErrChannelClosedDuringXfer, f.Name, "channel closed mid-transfer")
		}

		if s.computeHash {
			hasher.Write(chunk)
		}
		bytesSent += int64(n)
		metrics.TransferChunksTotal.WithLabelValues("send", "ok").Inc()
		metrics.TransferBytesTotal.WithLabelValues("send").Add(float64(n))

		s.reportProgress(f, bytesSent, start)

		if err == io.ErrUnexpectedEOF || err == io.EOF {
			break
		}
		if err != nil {
			return newTransferError(ErrChannelClosedDuringXfer, f.Name, "failed reading source file")
		}
	}

	checksum := ""
	if s.computeHash {
		checksum = hex.EncodeToString(hasher.Sum(nil))
	}

	if err := s.channel.SendText(ctx, newFileComplete(f.Name, total, checksum)); err != nil {
		return newTransferError(ErrChannelClosedDuringXfer, f.Name, "channel closed sending file-complete")
	}
	return nil
}

// waitForWindow blocks, polling the channel's buffered-bytes counter,
// until it drops back under HighWaterMark. Bounds peak memory in the
// transport and keeps the underlying layer out of flow-control
// collapse.
func (s *Sender) waitForWindow(ctx context.Context) error {
	for s.channel.BufferedAmount() > HighWaterMark {
		select {
		case <-ctx.Done():
			return newTransferError(ErrChannelClosedDuringXfer, "", "context cancelled while backpressured")
		case <-time.After(backpressureBackoff):
		}
	}
	return nil
}

func (s *Sender) reportProgress(f SourceFile, bytesSent int64, start time.Time) {
	if s.onProgress == nil {
		return
	}
	percent := float64(100)
	if f.Size > 0 {
		percent = float64(bytesSent) / float64(f.Size) * 100
	}
	s.onProgress(Progress{
		FileName:         f.Name,
		Percent:          percent,
		BytesTransferred: bytesSent,
		TotalBytes:       f.Size,
		StartTime:        start,
	})
}
