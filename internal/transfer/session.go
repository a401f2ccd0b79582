package transfer

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session is the receiver's state for one incoming file. Chunks are written
// in sequence order as soon as they become contiguous; out-of-order chunks
// wait in memory.
type Session struct {
	ID          string
	Filename    string
	Path        string
	Peer        net.IP
	TotalChunks uint32
	StartedAt   time.Time

	writeCursor  uint32
	pending      map[uint32][]byte
	sink         io.WriteCloser
	bytesWritten int64
}

// newSession creates the output file for name in dir, truncating any
// existing file. name must already be sanitized.
func newSession(dir, name string, total uint32, peer net.IP) (*Session, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return newSessionWithSink(name, path, total, peer, f), nil
}

func newSessionWithSink(name, path string, total uint32, peer net.IP, sink io.WriteCloser) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Filename:    name,
		Path:        path,
		Peer:        peer,
		TotalChunks: total,
		StartedAt:   time.Now(),
		writeCursor: 1,
		pending:     make(map[uint32][]byte),
		sink:        sink,
	}
}

// WriteCursor returns the next sequence to be written.
func (s *Session) WriteCursor() uint32 { return s.writeCursor }

// Pending returns the number of buffered chunks.
func (s *Session) Pending() int { return len(s.pending) }

// BytesWritten returns the bytes flushed to the sink so far.
func (s *Session) BytesWritten() int64 { return s.bytesWritten }

// Store buffers a chunk. It returns false when seq is 0, already written, or
// beyond TotalChunks. A later payload for a pending seq replaces the
// earlier one.
func (s *Session) Store(seq uint32, payload []byte) bool {
	if seq == 0 || seq < s.writeCursor || seq > s.TotalChunks {
		return false
	}
	s.pending[seq] = payload
	return true
}

// Flush writes every contiguous chunk starting at the write cursor. On a
// write error the unwritten remainder stays pending.
func (s *Session) Flush() (chunks, bytes int, err error) {
	if s.sink == nil {
		return 0, 0, fmt.Errorf("session %s is closed", s.ID)
	}
	for {
		chunk, ok := s.pending[s.writeCursor]
		if !ok {
			return chunks, bytes, nil
		}
		n, err := s.sink.Write(chunk)
		bytes += n
		s.bytesWritten += int64(n)
		if err != nil {
			s.pending[s.writeCursor] = chunk[n:]
			return chunks, bytes, fmt.Errorf("write chunk %d: %w", s.writeCursor, err)
		}
		delete(s.pending, s.writeCursor)
		s.writeCursor++
		chunks++
	}
}

// Complete reports whether every chunk has been written.
func (s *Session) Complete() bool {
	return s.writeCursor > s.TotalChunks
}

// Missing returns the number of chunks not yet written.
func (s *Session) Missing() uint32 {
	if s.Complete() {
		return 0
	}
	return s.TotalChunks - s.writeCursor + 1
}

// Close closes the sink. It is safe to call more than once.
func (s *Session) Close() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	s.sink = nil
	return err
}
