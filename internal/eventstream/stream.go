// Package eventstream pumps a tracer output pipe into a chunk handler.
package eventstream

import (
	"context"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"
)

// DefaultChunkSize is the read buffer size, close to a pipe's capacity.
const DefaultChunkSize = 64 * 1024

// ChunkHandler consumes raw chunks in read order.
type ChunkHandler interface {
	HandleChunk(chunk []byte) error
}

// ChunkHandlerFunc adapts a function to ChunkHandler.
type ChunkHandlerFunc func(chunk []byte) error

// HandleChunk implements ChunkHandler.
func (f ChunkHandlerFunc) HandleChunk(chunk []byte) error {
	return f(chunk)
}

// Stream reads chunks from a reader and dispatches them to a handler.
type Stream struct {
	name      string
	reader    io.Reader
	handler   ChunkHandler
	logger    *zap.Logger
	chunkSize int
	stopCh    chan struct{}
	chunks    int
}

// New creates a new Stream. name identifies the stream in logs.
func New(name string, reader io.Reader, handler ChunkHandler, logger *zap.Logger) *Stream {
	return &Stream{
		name:      name,
		reader:    reader,
		handler:   handler,
		logger:    logger,
		chunkSize: DefaultChunkSize,
		stopCh:    make(chan struct{}),
	}
}

// Run reads until EOF, a read error, Stop or context cancellation. Handler
// errors are logged and do not end the stream. Each chunk is handled before
// the next read.
func (s *Stream) Run(ctx context.Context) error {
	buf := make([]byte, s.chunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		n, err := s.reader.Read(buf)
		if n > 0 {
			s.chunks++
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if herr := s.handler.HandleChunk(chunk); herr != nil {
				s.logger.Warn("handling chunk", zap.String("stream", s.name), zap.Error(herr))
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				s.logger.Debug("stream closed", zap.String("stream", s.name), zap.Int("chunks", s.chunks))
				return nil
			}
			return err
		}
	}
}

// Stop signals Run to return before its next read.
func (s *Stream) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Chunks returns the number of chunks read so far.
func (s *Stream) Chunks() int {
	return s.chunks
}
