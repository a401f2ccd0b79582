package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/postalsys/pingdrop/internal/echoguard"
	"github.com/postalsys/pingdrop/internal/icmp"
	"github.com/postalsys/pingdrop/internal/logging"
	"github.com/postalsys/pingdrop/internal/metrics"
	"github.com/postalsys/pingdrop/internal/protocol"
	"github.com/postalsys/pingdrop/internal/recovery"
)

var errListenTimeout = errors.New("listen timeout")

// Report describes a finished receive session.
type Report struct {
	TransferID    string
	Filename      string
	Path          string
	Peer          string
	TotalChunks   uint32
	ChunksWritten uint32
	Missing       uint32
	Bytes         int64
	Complete      bool
	Duration      time.Duration
}

// Status is a point-in-time view of the receiver, safe to read from any
// goroutine.
type Status struct {
	Running        bool
	EchoSuppressed bool
	TransferID     string
	Filename       string
	TotalChunks    uint32
	WriteCursor    uint32
	Pending        int
	BytesWritten   int64
	Completed      int
	Incomplete     int
}

// Server receives files sent by a Client. All frame handling happens on the
// goroutine running Serve.
type Server struct {
	cfg     ServerConfig
	tr      icmp.Transport
	logger  *slog.Logger
	metrics *metrics.Metrics

	session *Session
	stopped atomic.Bool
	status  atomic.Pointer[Status]

	running    bool
	suppressed bool
	completed  int
	incomplete int

	reportsMu sync.Mutex
	reports   []Report
}

// NewServer creates a Server. The transport is not closed by the server.
func NewServer(cfg ServerConfig, tr icmp.Transport, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultServerConfig().PollInterval
	}
	if cfg.Suppressor == nil {
		cfg.Suppressor = echoguard.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		cfg:     cfg,
		tr:      tr,
		logger:  logging.ForComponent(logger, "receiver"),
		metrics: cfg.Metrics,
	}
	s.publish()
	return s, nil
}

// Serve runs the receive loop until a FIN completes a transfer (unless
// KeepListening is set), Stop is called, the listen timeout expires, or ctx
// is cancelled. Only cancellation of ctx is reported as an error.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	restore := s.suppressEcho()
	defer restore()

	if s.cfg.ListenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.cfg.ListenTimeout, errListenTimeout)
		defer cancel()
	}

	s.running = true
	s.publish()
	defer func() {
		s.closeSession("receive loop ended")
		s.running = false
		s.publish()
	}()

	s.logger.Info("listening for transfers",
		slog.String(logging.KeyPath, s.cfg.OutputDir),
		slog.Duration("listen_timeout", s.cfg.ListenTimeout))

	for !s.stopped.Load() {
		if ctx.Err() != nil {
			if errors.Is(context.Cause(ctx), errListenTimeout) {
				s.logger.Info("listen timeout reached")
				return nil
			}
			return ctx.Err()
		}

		pkt, err := s.tr.ReadPacket(s.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, icmp.ErrTimeout) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				if s.stopped.Load() {
					return nil
				}
				return fmt.Errorf("transport closed: %w", err)
			}
			s.logger.Debug("read failed", slog.String(logging.KeyError, err.Error()))
			continue
		}
		s.dispatch(pkt)
	}
	return nil
}

// dispatch handles one packet, dropping it if its handler panics.
func (s *Server) dispatch(pkt *icmp.Packet) {
	defer recovery.RecoverWithCallback(s.logger, "packet-handler", func(any) {
		s.metrics.RecordFrameDropped(metrics.DropPanic)
	})
	s.HandlePacket(pkt)
}

// Stop makes Serve return after the current read.
func (s *Server) Stop() {
	s.stopped.Store(true)
}

// Stopped reports whether the receive loop has been told to stop.
func (s *Server) Stopped() bool {
	return s.stopped.Load()
}

// Session returns the open session, or nil. Only valid on the goroutine
// running Serve or when Serve is not running.
func (s *Server) Session() *Session {
	return s.session
}

// Status returns the latest published snapshot.
func (s *Server) Status() Status {
	return *s.status.Load()
}

// Reports returns the finished sessions in order.
func (s *Server) Reports() []Report {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// HandlePacket dispatches one inbound packet. Serve calls it for every
// packet read; tests may call it directly.
func (s *Server) HandlePacket(pkt *icmp.Packet) {
	defer s.publish()

	if pkt == nil || pkt.Kind != icmp.EchoRequest || !icmp.IsOwned(pkt) {
		return
	}

	msg, err := protocol.ParseBytes(pkt.Payload)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrInvalidMetadata):
			s.metrics.RecordFrameDropped(metrics.DropBadMetadata)
			s.logger.Warn("invalid metadata",
				slog.String(logging.KeyPeer, pkt.Src.String()),
				slog.String(logging.KeyError, err.Error()))
		case errors.Is(err, protocol.ErrUnknownFrameType):
			s.metrics.RecordFrameDropped(metrics.DropUnknownType)
		default:
			s.metrics.RecordFrameDropped(metrics.DropMalformed)
		}
		return
	}
	s.metrics.RecordFrameReceived(msg.FrameType().String())

	switch m := msg.(type) {
	case *protocol.Metadata:
		s.handleMetadata(pkt.Src, m)
	case *protocol.Data:
		s.handleData(pkt.Src, m)
	case *protocol.Fin:
		s.handleFin(pkt.Src, m)
	}
}

func (s *Server) handleMetadata(src net.IP, m *protocol.Metadata) {
	name, err := protocol.SanitizeFilename(m.Filename)
	if err != nil {
		s.metrics.RecordFrameDropped(metrics.DropBadFilename)
		s.logger.Warn("rejected filename",
			slog.String(logging.KeyPeer, src.String()),
			slog.String(logging.KeyFilename, m.Filename))
		return
	}

	// A repeated METADATA restarts the transfer.
	if sess := s.session; sess != nil && sess.WriteCursor() == 1 && sess.Pending() == 0 {
		s.discardSession()
	} else {
		s.closeSession("superseded by new metadata")
	}

	sess, err := newSession(s.cfg.OutputDir, name, m.TotalChunks, src)
	if err != nil {
		s.logger.Error("failed to open output file",
			slog.String(logging.KeyFilename, name),
			slog.String(logging.KeyError, err.Error()))
		return
	}
	s.session = sess
	s.metrics.RecordSessionOpen()

	s.logger.Info("receiving file",
		slog.String(logging.KeyTransferID, sess.ID),
		slog.String(logging.KeyFilename, name),
		slog.String(logging.KeyPeer, src.String()),
		slog.Uint64(logging.KeyTotalChunks, uint64(m.TotalChunks)))

	s.sendAck(src, m.Seq)
}

func (s *Server) handleData(src net.IP, m *protocol.Data) {
	sess := s.session
	if sess == nil {
		s.metrics.RecordFrameDropped(metrics.DropNoSession)
		return
	}

	if !sess.Store(m.Seq, m.Payload) {
		if m.Seq != 0 && m.Seq < sess.WriteCursor() {
			s.metrics.RecordFrameDropped(metrics.DropDuplicate)
		} else {
			s.metrics.RecordFrameDropped(metrics.DropOutOfRange)
		}
		s.sendAck(src, m.Seq)
		return
	}

	chunks, n, err := sess.Flush()
	if chunks > 0 || n > 0 {
		s.metrics.RecordChunksWritten(chunks, n)
	}
	s.metrics.SetChunksPending(sess.Pending())
	if err != nil {
		s.metrics.RecordFrameDropped(metrics.DropWriteFailure)
		s.logger.Error("write failed",
			slog.String(logging.KeyTransferID, sess.ID),
			logging.Frame(protocol.FrameData.String(), m.Seq),
			slog.String(logging.KeyError, err.Error()))
		return
	}

	s.sendAck(src, m.Seq)
}

func (s *Server) handleFin(src net.IP, m *protocol.Fin) {
	if s.session == nil {
		s.metrics.RecordFrameDropped(metrics.DropNoSession)
		return
	}

	s.sendAck(src, m.Seq)
	s.closeSession("fin received")

	if !s.cfg.KeepListening {
		s.Stop()
	}
}

// discardSession closes a session that has not received any data and
// removes its empty output file, without recording an outcome.
func (s *Server) discardSession() {
	sess := s.session
	s.session = nil
	if err := sess.Close(); err != nil {
		s.logger.Error("close failed",
			slog.String(logging.KeyTransferID, sess.ID),
			slog.String(logging.KeyError, err.Error()))
	}
	if sess.Path != "" {
		if err := os.Remove(sess.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove empty file",
				slog.String(logging.KeyPath, sess.Path),
				slog.String(logging.KeyError, err.Error()))
		}
	}
	s.metrics.RecordSessionClose()
	s.logger.Debug("session restarted",
		slog.String(logging.KeyTransferID, sess.ID),
		slog.String(logging.KeyPath, sess.Path))
}

// closeSession flushes and closes the open session and records its outcome.
func (s *Server) closeSession(reason string) {
	sess := s.session
	if sess == nil {
		return
	}
	s.session = nil

	log := logging.ForTransfer(s.logger, sess.ID, sess.Filename)

	if _, n, err := sess.Flush(); err != nil {
		log.Error("final flush failed", slog.String(logging.KeyError, err.Error()))
	} else if n > 0 {
		s.metrics.RecordChunksWritten(0, n)
	}
	if err := sess.Close(); err != nil {
		log.Error("close failed", slog.String(logging.KeyError, err.Error()))
	}
	s.metrics.RecordSessionClose()

	report := Report{
		TransferID:    sess.ID,
		Filename:      sess.Filename,
		Path:          sess.Path,
		Peer:          sess.Peer.String(),
		TotalChunks:   sess.TotalChunks,
		ChunksWritten: sess.WriteCursor() - 1,
		Missing:       sess.Missing(),
		Bytes:         sess.BytesWritten(),
		Complete:      sess.Complete(),
		Duration:      time.Since(sess.StartedAt),
	}
	s.reportsMu.Lock()
	s.reports = append(s.reports, report)
	s.reportsMu.Unlock()

	if report.Complete {
		s.completed++
		s.metrics.RecordTransfer(metrics.RoleReceiver, metrics.ResultComplete)
		log.Info("file received",
			slog.String(logging.KeyPath, sess.Path),
			slog.String(logging.KeySize, humanize.IBytes(uint64(report.Bytes))),
			slog.Duration(logging.KeyDuration, report.Duration))
		return
	}

	s.incomplete++
	s.metrics.RecordTransfer(metrics.RoleReceiver, metrics.ResultIncomplete)
	log.Warn("transfer incomplete, keeping partial file",
		slog.String(logging.KeyReason, reason),
		slog.String(logging.KeyPath, sess.Path),
		slog.Uint64(logging.KeyMissing, uint64(report.Missing)),
		slog.Uint64(logging.KeyTotalChunks, uint64(sess.TotalChunks)))
}

func (s *Server) sendAck(dst net.IP, seq uint32) {
	frame := protocol.Encode(protocol.FrameAck, seq, nil)
	if err := s.tr.Send(dst, icmp.EchoReply, seq, frame); err != nil {
		s.logger.Warn("failed to send ack",
			slog.String(logging.KeyPeer, dst.String()),
			logging.Frame(protocol.FrameAck.String(), seq),
			slog.String(logging.KeyError, err.Error()))
		return
	}
	s.metrics.RecordFrameSent(protocol.FrameAck.String())
}

// suppressEcho disables kernel echo replies. Failure is logged and the
// server carries on.
func (s *Server) suppressEcho() func() {
	if _, ok := s.cfg.Suppressor.(echoguard.Nop); ok {
		return func() {}
	}

	restore, err := s.cfg.Suppressor.Suppress()
	if err != nil {
		s.logger.Warn("could not suppress kernel echo replies",
			slog.String(logging.KeyError, err.Error()))
		return func() {}
	}

	s.suppressed = true
	s.metrics.SetEchoSuppressed(true)
	return func() {
		if err := restore(); err != nil {
			s.logger.Warn("could not restore kernel echo setting",
				slog.String(logging.KeyError, err.Error()))
		}
		s.suppressed = false
		s.metrics.SetEchoSuppressed(false)
		s.publish()
	}
}

// publish stores a fresh Status snapshot.
func (s *Server) publish() {
	st := &Status{
		Running:        s.running,
		EchoSuppressed: s.suppressed,
		Completed:      s.completed,
		Incomplete:     s.incomplete,
	}
	if sess := s.session; sess != nil {
		st.TransferID = sess.ID
		st.Filename = sess.Filename
		st.TotalChunks = sess.TotalChunks
		st.WriteCursor = sess.WriteCursor()
		st.Pending = sess.Pending()
		st.BytesWritten = sess.BytesWritten()
	}
	s.status.Store(st)
}
