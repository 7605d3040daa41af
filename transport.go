package modbus

import "context"

// Transport sends one request body and returns the matching response body,
// with whatever framing (MBAP or CRC) its wire format requires. TCPTransport
// and RTUTransport are the two implementations this engine ships.
type Transport interface {
	Send(ctx context.Context, body []byte) ([]byte, error)
	Close() error
}
