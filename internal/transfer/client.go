package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/postalsys/pingdrop/internal/icmp"
	"github.com/postalsys/pingdrop/internal/logging"
	"github.com/postalsys/pingdrop/internal/metrics"
	"github.com/postalsys/pingdrop/internal/protocol"
	"github.com/postalsys/pingdrop/internal/recovery"
)

// Result summarizes a completed transfer.
type Result struct {
	TransferID  string
	Filename    string
	Bytes       int64
	TotalChunks uint32
	Retransmits int
	Duration    time.Duration
}

// Progress is reported after each acknowledged DATA frame.
type Progress struct {
	Seq         uint32
	TotalChunks uint32
	BytesSent   int64
	Size        int64
}

// Client sends files to a Server using stop-and-wait ARQ over ICMP echo.
type Client struct {
	cfg     ClientConfig
	tr      icmp.Transport
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a Client. The transport is not closed by the client.
func NewClient(cfg ClientConfig, tr icmp.Transport, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultClientConfig().PollInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Client{
		cfg:     cfg,
		tr:      tr,
		logger:  logging.ForComponent(logger, "sender"),
		metrics: cfg.Metrics,
	}, nil
}

// ChunkCount returns the number of DATA frames needed for size bytes.
func ChunkCount(size int64, chunkSize int) (uint32, error) {
	if size < 0 {
		return 0, fmt.Errorf("negative size %d", size)
	}
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive")
	}
	n := (size + int64(chunkSize) - 1) / int64(chunkSize)
	// FIN uses total+1, so the count must leave room for it.
	if n >= math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d chunks", ErrFileTooLarge, n)
	}
	return uint32(n), nil
}

// SendFile sends the file at path. The receiver stores it under the
// file's base name.
func (c *Client) SendFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	return c.Send(ctx, filepath.Base(path), f, info.Size())
}

// Send transfers size bytes read from r under the given name. It returns
// an *AbortError if any frame exhausts its retries.
func (c *Client) Send(ctx context.Context, name string, r io.Reader, size int64) (*Result, error) {
	if _, err := protocol.SanitizeFilename(name); err != nil {
		return nil, err
	}
	total, err := ChunkCount(size, c.cfg.ChunkSize())
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := logging.ForTransfer(c.logger, id, name)
	log.Info("starting transfer",
		slog.String(logging.KeyPeer, c.cfg.Destination.String()),
		slog.String(logging.KeySize, humanize.IBytes(uint64(size))),
		slog.Uint64(logging.KeyTotalChunks, uint64(total)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := newSendState()
	go c.listen(ctx, st, log)

	res := &Result{
		TransferID:  id,
		Filename:    name,
		Bytes:       size,
		TotalChunks: total,
	}
	start := time.Now()
	p := newPacer(c.cfg.Interval)

	fail := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		c.metrics.RecordTransfer(metrics.RoleSender, metrics.ResultAborted)
		log.Error("transfer failed", slog.String(logging.KeyError, err.Error()))
		return res, err
	}

	if err := c.sendFrame(ctx, st, p, res, protocol.FrameMetadata, protocol.MetadataSeq,
		protocol.EncodeMetadata(total, name), log); err != nil {
		return fail(err)
	}

	buf := newLookahead(r, c.cfg.ChunkSize(), total, c.cfg.BufferSize)
	var sent int64
	for seq := protocol.FirstDataSeq; seq <= total; seq++ {
		chunk, err := buf.Chunk(seq)
		if err != nil {
			return fail(err)
		}
		if err := c.sendFrame(ctx, st, p, res, protocol.FrameData, seq, chunk, log); err != nil {
			return fail(err)
		}
		buf.Release(seq)

		sent += int64(len(chunk))
		c.metrics.RecordBytesSent(len(chunk))
		if c.cfg.OnProgress != nil {
			c.cfg.OnProgress(Progress{Seq: seq, TotalChunks: total, BytesSent: sent, Size: size})
		}
	}

	if err := c.sendFrame(ctx, st, p, res, protocol.FrameFin, protocol.FinSeq(total), nil, log); err != nil {
		return fail(err)
	}

	res.Duration = time.Since(start)
	c.metrics.RecordTransfer(metrics.RoleSender, metrics.ResultComplete)
	log.Info("transfer complete",
		slog.Duration(logging.KeyDuration, res.Duration),
		slog.Int(logging.KeyCount, res.Retransmits))
	return res, nil
}

// sendFrame sends one frame and waits for its ACK, resending on timeout
// until MaxRetries sends have been made.
func (c *Client) sendFrame(ctx context.Context, st *sendState, p *pacer, res *Result,
	frameType protocol.FrameType, seq uint32, payload []byte, log *slog.Logger) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}

	frame := protocol.Encode(frameType, seq, payload)
	st.expect(seq)
	defer st.clear()

	state := StatePrepared
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		st.drain()
		if attempt > 1 {
			res.Retransmits++
			c.metrics.RecordRetransmit()
			log.Debug("retransmitting",
				logging.Frame(frameType.String(), seq),
				slog.Int(logging.KeyAttempt, attempt))
		}

		sentAt := time.Now()
		if err := c.tr.Send(c.cfg.Destination, icmp.EchoRequest, seq, frame); err != nil {
			log.Warn("send failed",
				logging.Frame(frameType.String(), seq),
				slog.String(logging.KeyError, err.Error()))
		} else {
			c.metrics.RecordFrameSent(frameType.String())
		}
		state = StateSent

		acked, err := c.awaitAck(ctx, st, seq)
		if err != nil {
			return err
		}
		if acked {
			state = StateAcked
			c.metrics.RecordAck(time.Since(sentAt).Seconds())
			return nil
		}
		state = StateTimedOut
	}

	log.Debug("frame abandoned",
		logging.Frame(frameType.String(), seq),
		slog.String("state", state.String()))
	return &AbortError{Type: frameType, Seq: seq, Attempts: c.cfg.MaxRetries}
}

// awaitAck waits up to AckTimeout for the ACK of seq. An ACK that slipped
// into the slot for an earlier sequence is skipped without restarting
// the timer.
func (c *Client) awaitAck(ctx context.Context, st *sendState, seq uint32) (bool, error) {
	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case got := <-st.acks:
			if got == seq {
				return true, nil
			}
		case <-timer.C:
			return false, nil
		}
	}
}

// listen delivers matching ACKs to the send loop until ctx is cancelled.
func (c *Client) listen(ctx context.Context, st *sendState, log *slog.Logger) {
	defer recovery.RecoverWithLog(log, "ack-listener")

	for ctx.Err() == nil {
		pkt, err := c.tr.ReadPacket(c.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, icmp.ErrTimeout) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Debug("read failed", slog.String(logging.KeyError, err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}

		if !icmp.IsOwned(pkt) {
			continue
		}
		msg, err := protocol.ParseBytes(pkt.Payload)
		if err != nil {
			continue
		}
		ack, ok := msg.(*protocol.Ack)
		if !ok {
			continue
		}
		if st.deliver(ack.Seq) {
			log.Debug("ack received", logging.Frame(protocol.FrameAck.String(), ack.Seq))
		}
	}
}
