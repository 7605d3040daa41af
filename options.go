package modbus

/*
Functional options, in the shape TheCount-go-modbus's tcp.go uses for
ListenTCP (TCPOption func(*tcpOptions) error) — applied here to both the
client pipeline and the TCP listener.
*/

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type clientConfig struct {
	responseTimeout      time.Duration
	exceptionRetryDelay  time.Duration
	busyRetryDelay       time.Duration
	retryCount           int
	idleTimeout          time.Duration
	idleTimeoutInfinite  bool
	maxRequestLength     int
	allowedRequestWaste  int
	logger               *zap.Logger
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		responseTimeout:     2 * time.Second,
		exceptionRetryDelay: 500 * time.Millisecond,
		busyRetryDelay:      1 * time.Second,
		retryCount:          4,
		idleTimeout:         7 * time.Second,
		maxRequestLength:    0,
		allowedRequestWaste: 0,
		logger:              zap.NewNop(),
	}
}

// ClientOption configures a Client constructed by NewClient.
type ClientOption func(*clientConfig) error

// WithResponseTimeout sets the per-attempt response deadline. Pass 0 for
// an infinite deadline.
func WithResponseTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("modbus: response timeout must be non-negative, got %s", d)
		}
		c.responseTimeout = d
		return nil
	}
}

// WithExceptionRetryDelay sets the delay applied after a non-busy protocol
// exception or transport error before retrying.
func WithExceptionRetryDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("modbus: exception retry delay must be non-negative, got %s", d)
		}
		c.exceptionRetryDelay = d
		return nil
	}
}

// WithBusyRetryDelay sets the delay applied after a ServerDeviceBusy reply
// before retrying.
func WithBusyRetryDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("modbus: busy retry delay must be non-negative, got %s", d)
		}
		c.busyRetryDelay = d
		return nil
	}
}

// WithRetryCount sets the maximum number of retries per request (so
// retryCount+1 total attempts).
func WithRetryCount(n int) ClientOption {
	return func(c *clientConfig) error {
		if n < 0 {
			return fmt.Errorf("modbus: retry count must be non-negative, got %d", n)
		}
		c.retryCount = n
		return nil
	}
}

// WithIdleTimeout sets how long the client keeps its connection open after
// the last request before closing it. 0 closes immediately after every
// request.
func WithIdleTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("modbus: idle timeout must be non-negative, got %s", d)
		}
		c.idleTimeout = d
		return nil
	}
}

// WithInfiniteIdleTimeout keeps the connection open indefinitely once
// opened.
func WithInfiniteIdleTimeout() ClientOption {
	return func(c *clientConfig) error {
		c.idleTimeoutInfinite = true
		return nil
	}
}

// WithMaxRequestLength overrides the per-request object count cap that
// RangePlanner uses. 0 (the default) uses the protocol cap for the object
// type being requested.
func WithMaxRequestLength(n int) ClientOption {
	return func(c *clientConfig) error {
		if n < 0 {
			return fmt.Errorf("modbus: max request length must be non-negative, got %d", n)
		}
		c.maxRequestLength = n
		return nil
	}
}

// WithAllowedRequestWaste sets the gap tolerance RangePlanner uses when
// deciding whether to merge two otherwise-separate ranges.
func WithAllowedRequestWaste(n int) ClientOption {
	return func(c *clientConfig) error {
		if n < 0 {
			return fmt.Errorf("modbus: allowed request waste must be non-negative, got %d", n)
		}
		c.allowedRequestWaste = n
		return nil
	}
}

// WithLogger sets the logger the client uses for its retry messages.
// Transports log through the logger passed to DialTCP or OpenRTU, not this
// one.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *clientConfig) error {
		if logger == nil {
			return fmt.Errorf("modbus: logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

type listenerConfig struct {
	address string
	logger  *zap.Logger
}

func defaultListenerConfig() listenerConfig {
	return listenerConfig{logger: zap.NewNop()}
}

// ListenerOption configures a Listener constructed by NewListener.
type ListenerOption func(*listenerConfig) error

// WithListenAddress sets the local dual-stack address to bind.
func WithListenAddress(addr string) ListenerOption {
	return func(c *listenerConfig) error {
		if addr == "" {
			return fmt.Errorf("modbus: listen address must not be empty")
		}
		c.address = addr
		return nil
	}
}

// WithListenerLogger sets the logger used for accept and session errors.
func WithListenerLogger(logger *zap.Logger) ListenerOption {
	return func(c *listenerConfig) error {
		if logger == nil {
			return fmt.Errorf("modbus: logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}
