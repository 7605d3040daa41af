package modbus

/*
TCPTransport frames one request/response exchange with a Modbus MBAP
header. It keeps the teacher's tcp.go wire format (the 6-byte header, the
word helpers from helpers.go) but drops the teacher's background
read/write goroutines and channel-based demultiplexer: the client pipeline
in client_pipeline.go owns one connection exclusively and issues one request at a
time, so a synchronous, context-cancellable send/receive is enough and
avoids the actor machinery entirely.
*/

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TCPTransport sends and receives Modbus MBAP frames over one TCP stream.
type TCPTransport struct {
	conn   net.Conn
	txid   uint32
	logger *zap.Logger
}

// DialTCP opens a dual-stack TCP connection to addr and wraps it.
func DialTCP(ctx context.Context, addr string, logger *zap.Logger) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(60 * time.Second)
	}
	return NewTCPTransport(conn, logger), nil
}

// NewTCPTransport wraps an already-open stream as a TCPTransport.
func NewTCPTransport(conn net.Conn, logger *zap.Logger) *TCPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TCPTransport{conn: conn, logger: logger}
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error {
	return t.conn.Close()
}

// Send writes body as one MBAP-framed request and returns the body of the
// matching response frame. A transaction-ID mismatch is logged but does
// not fail the request: real gateways have been observed replying with
// the wrong echoed transaction ID, and rejecting an otherwise-good
// response over that would be worse than tolerating it.
func (t *TCPTransport) Send(ctx context.Context, body []byte) ([]byte, error) {
	stop := watchContext(ctx, t.conn)
	defer stop()

	txid := uint16(atomic.AddUint32(&t.txid, 1))
	frame := make([]byte, 6+len(body))
	setWord(frame, 0, txid)
	setWord(frame, 2, 0)
	setWord(frame, 4, uint16(len(body)))
	copy(frame[6:], body)

	if _, err := t.conn.Write(frame); err != nil {
		return nil, mapTimeoutErr(ctx, err)
	}

	header := make([]byte, 6)
	if err := readFullOrIncomplete(t.conn, header); err != nil {
		return nil, mapTimeoutErr(ctx, err)
	}
	gotTxid := getWord(header, 0)
	declared := int(getWord(header, 4))
	if declared > 254 {
		return nil, IncompleteResponseErrorF("tcp response declares %d PDU bytes, exceeding the 254-byte cap", declared)
	}
	respBody := make([]byte, declared)
	if err := readFullOrIncomplete(t.conn, respBody); err != nil {
		return nil, mapTimeoutErr(ctx, err)
	}
	if gotTxid != txid {
		t.logger.Warn("tcp transaction id mismatch", zap.Uint16("want", txid), zap.Uint16("got", gotTxid))
	}
	return respBody, nil
}

// watchContext arranges for conn's in-flight I/O to abort if ctx is
// cancelled before the returned stop func is called. net.Conn has no
// native context support, so a cancellation (as opposed to a deadline
// already installed on the connection) is translated into forcing the
// deadline to "now", which unblocks any pending Read/Write with an error.
func watchContext(ctx context.Context, conn net.Conn) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func mapTimeoutErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var ne net.Error
	if ok := asNetError(err, &ne); ok && ne.Timeout() {
		if ctx.Err() == context.DeadlineExceeded {
			return context.DeadlineExceeded
		}
	}
	return err
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}

func readFullOrIncomplete(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return IncompleteResponseErrorF("connection closed before the declared response length was read")
	}
	return err
}
