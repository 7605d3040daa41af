package modbus

/*
RTUTransport frames one request/response exchange over a serial line:
CRC-framed, with the response length inferred from the function code since
RTU carries no length prefix. The teacher's rtu.go runs a 1.5/3.5-char
timing state machine (wireFramer/ticker) to find frame boundaries on an
always-listening line; this engine's RTU transport instead serves one
client request at a time, so it flushes and reads exactly one reply per
send, inferring the reply's end by function code rather than by
wire-idle timing.
*/

import (
	"context"
	"io"
	"time"

	"github.com/goburrow/serial"
	"go.uber.org/zap"
)

// Parity values recognized by OpenRTU.
const (
	ParityNone = 'N'
	ParityOdd  = 'O'
	ParityEven = 'E'
)

type flusher interface {
	Flush() error
}

// RTUTransport sends and receives Modbus RTU frames over a serial port.
type RTUTransport struct {
	port   serial.Port
	logger *zap.Logger
}

// RTUConfig describes a serial line. Zero values for Baud and Parity
// resolve to defaults of 19200 baud, even parity, 1 stop bit (2 if parity
// is none).
type RTUConfig struct {
	Address string
	Baud    int
	Parity  byte
	RS485   bool
}

// OpenRTU opens the named serial port and wraps it as an RTUTransport.
func OpenRTU(cfg RTUConfig, logger *zap.Logger) (*RTUTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = 19200
	}
	parity := cfg.Parity
	if parity == 0 {
		parity = ParityEven
	}
	sc := serial.Config{
		Address:  cfg.Address,
		BaudRate: baud,
		DataBits: 8,
		Timeout:  50 * time.Millisecond,
	}
	switch parity {
	case ParityNone:
		sc.Parity = "N"
		sc.StopBits = 2
	case ParityOdd:
		sc.Parity = "O"
		sc.StopBits = 1
	case ParityEven:
		sc.Parity = "E"
		sc.StopBits = 1
	default:
		return nil, IllegalValueErrorF("rtu: unrecognized parity %q", parity)
	}
	port, err := serial.Open(&sc)
	if err != nil {
		return nil, err
	}
	if cfg.RS485 {
		if err := enableRS485(cfg.Address, port); err != nil {
			logger.Warn("rs-485 mode not enabled", zap.String("device", cfg.Address), zap.Error(err))
		}
	}
	return &RTUTransport{port: port, logger: logger}, nil
}

// Close closes the serial port.
func (t *RTUTransport) Close() error {
	return t.port.Close()
}

// Send flushes pending output and any stale input, writes body framed with
// its little-endian CRC-16, and reads back exactly one reply frame,
// inferring its length from the function code in body.
func (t *RTUTransport) Send(ctx context.Context, body []byte) ([]byte, error) {
	if f, ok := t.port.(flusher); ok {
		_ = f.Flush()
	}

	frame := putCRC16LE(append([]byte(nil), body...), body)
	if err := t.writeAll(ctx, frame); err != nil {
		return nil, err
	}

	header := make([]byte, 0, 8)
	for {
		length, needed, ok := rtuResponseLength(len(body), header)
		if ok {
			full := make([]byte, length+2)
			copy(full, header)
			if err := t.readInto(ctx, full[len(header):]); err != nil {
				return nil, err
			}
			want := crc16(full[:length])
			got := getWordLE(full, length)
			if want != got {
				return nil, CrcMismatchErrorF(want, got)
			}
			return full[:length], nil
		}
		extra := needed - len(header)
		if extra <= 0 {
			extra = 1
		}
		buf := make([]byte, extra)
		if err := t.readInto(ctx, buf); err != nil {
			return nil, err
		}
		header = append(header, buf...)
	}
}

func (t *RTUTransport) writeAll(ctx context.Context, frame []byte) error {
	for len(frame) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := t.port.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// readInto fills buf completely, polling ctx between the serial port's own
// short read timeouts since goburrow/serial has no per-call cancellation.
func (t *RTUTransport) readInto(ctx context.Context, buf []byte) error {
	got := 0
	for got < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := t.port.Read(buf[got:])
		if err != nil && err != io.EOF {
			return err
		}
		got += n
	}
	return nil
}

// rtuResponseLength infers the total response body length (device ID
// through the last payload byte, excluding the trailing CRC) from the
// function code once enough leading bytes of the response are available.
// requestLen is the length of the body just sent, needed for the
// diagnostics function (8), whose reply echoes the request byte-for-byte.
func rtuResponseLength(requestLen int, header []byte) (length int, headerNeeded int, ok bool) {
	if len(header) < 2 {
		return 0, 2, false
	}
	fc := header[1]
	if fc&0x80 != 0 {
		return 3, 3, true
	}
	switch fc {
	case 1, 2, 3, 4, 0x0C, 0x11, 0x17:
		if len(header) < 3 {
			return 0, 3, false
		}
		return 3 + int(header[2]), 3, true
	case 5, 6, 0x0F, 0x10, 0x0B:
		return 6, 6, true
	case 0x16:
		// Mask Write Register echoes deviceId, fc, addr, and, or: 8 bytes.
		return 8, 6, true
	case 0x07:
		return 3, 3, true
	case 0x08:
		return requestLen, 2, true
	case 0x18:
		if len(header) < 4 {
			return 0, 4, false
		}
		declared := int(header[2])<<8 | int(header[3])
		return 4 + declared, 4, true
	case 0x2B:
		if len(header) < 8 {
			return 0, 8, false
		}
		count := int(header[7])
		pos := 8
		for i := 0; i < count; i++ {
			if pos+1 >= len(header) {
				return 0, pos + 2, false
			}
			pos += 2 + int(header[pos+1])
		}
		return pos, pos, true
	default:
		return 0, 0, false
	}
}
