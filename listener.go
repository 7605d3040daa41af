package modbus

/*
Listener accepts Modbus TCP clients and, for each one, runs a session that
reads frames through a ByteRing and dispatches them to a Handler. The
teacher's tcpServer.go binds one net.TCPListener, accepts in a monitor()
goroutine, and wires a fixed UnitID->Server map directly onto each
connection (NewTCPConn); this listener keeps the same bind/accept shape
but hands every session's raw bytes to a caller-supplied Handler instead
of an in-process register map, since request handling is the caller's
responsibility, not this engine's.
*/

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ListenerDiagnostics accumulates read-only counters about what a
// Listener has seen: messages dispatched, socket-level comm errors,
// exception responses, and frame-length overruns. Named after the
// teacher's BusDiagnostics (modbusDiagnostics.go); that type serialized
// every update through one channel-actor goroutine shared by a single
// bus, but a Listener runs one reader/dispatcher goroutine pair per
// accepted connection, so these counters are plain atomics instead.
type ListenerDiagnostics struct {
	messages   atomic.Int64
	commErrors atomic.Int64
	exceptions atomic.Int64
	overruns   atomic.Int64
}

// Messages is the number of request frames successfully read and
// dispatched to the handler, across every session.
func (d *ListenerDiagnostics) Messages() int64 { return d.messages.Load() }

// CommErrors is the number of session socket errors other than a clean
// close.
func (d *ListenerDiagnostics) CommErrors() int64 { return d.commErrors.Load() }

// Exceptions is the number of handler responses carrying the exception
// bit (function code high bit set).
func (d *ListenerDiagnostics) Exceptions() int64 { return d.exceptions.Load() }

// Overruns is the number of sessions closed because a client declared a
// frame length beyond the 254-byte cap.
func (d *ListenerDiagnostics) Overruns() int64 { return d.overruns.Load() }

// Listener accepts Modbus TCP connections and runs one session per client.
type Listener struct {
	cfg      listenerConfig
	handler  Handler
	listener net.Listener
	diag     ListenerDiagnostics

	mu       sync.Mutex
	sessions map[*session]struct{}
	stopping bool
}

// Diagnostics returns the listener's live counters. The returned pointer
// is updated in place as sessions run; callers wanting a point-in-time
// value should read the individual accessor methods together.
func (l *Listener) Diagnostics() *ListenerDiagnostics {
	return &l.diag
}

// NewListener binds the configured address in dual-stack mode and returns
// a Listener ready for Start.
func NewListener(handler Handler, opts ...ListenerOption) (*Listener, error) {
	cfg := defaultListenerConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.address == "" {
		return nil, errors.New("modbus: listener requires WithListenAddress")
	}
	ln, err := net.Listen("tcp", cfg.address)
	if err != nil {
		return nil, err
	}
	return &Listener{
		cfg:      cfg,
		handler:  handler,
		listener: ln,
		sessions: make(map[*session]struct{}),
	}, nil
}

// Addr returns the listener's bound local address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Start runs the accept loop until Stop closes the listener. It returns
// once accepting has stopped; it does not wait for sessions to drain (use
// Stop for that).
func (l *Listener) Start() error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.mu.Lock()
			stopping := l.stopping
			l.mu.Unlock()
			if stopping {
				return nil
			}
			return err
		}
		sess := newSession(conn, l.handler, l.cfg.logger, &l.diag)
		l.mu.Lock()
		l.sessions[sess] = struct{}{}
		l.mu.Unlock()
		go func() {
			sess.run()
			l.mu.Lock()
			delete(l.sessions, sess)
			l.mu.Unlock()
		}()
	}
}

// Stop stops accepting new connections and waits for open sessions to
// finish on their own until ctx is done, at which point it forcibly closes
// every remaining session's socket.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()
	err := l.listener.Close()

	done := make(chan struct{})
	go func() {
		for {
			l.mu.Lock()
			n := len(l.sessions)
			l.mu.Unlock()
			if n == 0 {
				close(done)
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.mu.Lock()
		for sess := range l.sessions {
			sess.close()
		}
		l.mu.Unlock()
	}
	return err
}

// session owns one accepted connection: a socket-read pump that enqueues
// into a ByteRing, and a frame pump that dequeues MBAP-framed requests and
// dispatches them to the Handler.
type session struct {
	conn    net.Conn
	handler Handler
	logger  *zap.Logger
	ring    *ByteRing
	diag    *ListenerDiagnostics

	closeOnce sync.Once
	stopRead  chan struct{}
}

func newSession(conn net.Conn, handler Handler, logger *zap.Logger, diag *ListenerDiagnostics) *session {
	return &session{
		conn:     conn,
		handler:  handler,
		logger:   logger,
		ring:     NewByteRing(autoTrimMinCapacity),
		diag:     diag,
		stopRead: make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.stopRead)
	})
}

func (s *session) run() {
	defer s.close()
	go s.readPump()
	s.framePump()
}

// readPump copies bytes from the socket into the ring until EOF or close;
// either one ends the session.
func (s *session) readPump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.ring.Enqueue(buf[:n])
		}
		if err != nil {
			s.logReadError(err)
			s.close()
			return
		}
	}
}

func (s *session) logReadError(err error) {
	if errors.Is(err, net.ErrClosed) {
		return
	}
	var ne net.Error
	if errors.As(err, &ne) {
		s.diag.commErrors.Add(1)
		s.logger.Warn("modbus session read error", zap.Error(err))
		return
	}
	s.logger.Debug("modbus session closed", zap.Error(err))
}

// framePump reads one MBAP frame at a time from the ring and dispatches it
// to the handler, writing back whatever the handler produces.
func (s *session) framePump() {
	ctx := contextFromChan(s.stopRead)
	header := make([]byte, 6)
	responseBuf := make([]byte, 260)
	for {
		if err := s.ring.DequeueAsync(ctx, header, 6); err != nil {
			return
		}
		txid := getWord(header, 0)
		length := int(getWord(header, 4))
		if length > 254 {
			s.diag.overruns.Add(1)
			s.logger.Warn("modbus session closed: declared length exceeds 254", zap.Int("length", length))
			return
		}
		body := make([]byte, length)
		if err := s.ring.DequeueAsync(ctx, body, length); err != nil {
			return
		}
		s.diag.messages.Add(1)
		n := s.handler.Handle(body, responseBuf)
		switch {
		case n == 0:
			continue
		case n < 0:
			return
		default:
			if isException(responseBuf[:n]) {
				s.diag.exceptions.Add(1)
			}
			frame := make([]byte, 6+n)
			setWord(frame, 0, txid)
			setWord(frame, 2, 0)
			setWord(frame, 4, uint16(n))
			copy(frame[6:], responseBuf[:n])
			if _, err := s.conn.Write(frame); err != nil {
				s.logger.Warn("modbus session write error", zap.Error(err))
				return
			}
		}
	}
}

// contextFromChan adapts a plain close-only stop channel to a
// context.Context so DequeueAsync can select on it the same way it would
// any caller cancellation.
func contextFromChan(stop <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}
