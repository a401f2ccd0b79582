package transfer

import (
	"errors"
	"fmt"
	"io"
)

// lookahead reads chunks ahead of the send loop into a bounded buffer.
// It is used only from the send loop.
type lookahead struct {
	r         io.Reader
	chunkSize int
	total     uint32
	capacity  int

	next uint32 // next sequence to read from r
	buf  map[uint32][]byte
}

func newLookahead(r io.Reader, chunkSize int, total uint32, capacity int) *lookahead {
	if capacity < 1 {
		capacity = 1
	}
	return &lookahead{
		r:         r,
		chunkSize: chunkSize,
		total:     total,
		capacity:  capacity,
		next:      1,
		buf:       make(map[uint32][]byte, capacity),
	}
}

// Chunk returns the bytes of chunk seq, topping up the buffer first.
func (l *lookahead) Chunk(seq uint32) ([]byte, error) {
	if err := l.fill(); err != nil {
		return nil, err
	}
	chunk, ok := l.buf[seq]
	if !ok {
		return nil, fmt.Errorf("chunk %d not buffered (next read %d)", seq, l.next)
	}
	return chunk, nil
}

// Release drops chunk seq once it has been acknowledged.
func (l *lookahead) Release(seq uint32) {
	delete(l.buf, seq)
}

// Len returns the number of buffered chunks.
func (l *lookahead) Len() int {
	return len(l.buf)
}

func (l *lookahead) fill() error {
	for len(l.buf) < l.capacity && l.next <= l.total {
		chunk := make([]byte, l.chunkSize)
		n, err := io.ReadFull(l.r, chunk)
		switch {
		case err == nil:
		case errors.Is(err, io.ErrUnexpectedEOF) && l.next == l.total:
			// Last chunk may be short
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("source ended at chunk %d of %d", l.next, l.total)
		default:
			return fmt.Errorf("read chunk %d: %w", l.next, err)
		}

		l.buf[l.next] = chunk[:n]
		l.next++
	}
	return nil
}
