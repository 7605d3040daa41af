//go:build linux

package modbus

import (
	"fmt"

	"github.com/goburrow/serial"
	"golang.org/x/sys/unix"
)

type fdProvider interface {
	Fd() uintptr
}

// enableRS485 puts the serial line into RS-485 transceiver mode via the
// kernel's TIOCSRS485 ioctl, so the driver toggles RTS around each
// transmission instead of leaving it asserted. port must expose its file
// descriptor (goburrow/serial's posix port does); anything else is
// reported rather than silently ignored.
func enableRS485(device string, port serial.Port) error {
	fp, ok := port.(fdProvider)
	if !ok {
		return fmt.Errorf("modbus: %s does not expose a file descriptor for the RS-485 ioctl", device)
	}
	rs := unix.SerialRS485{
		Flags: unix.SER_RS485_ENABLED | unix.SER_RS485_RTS_ON_SEND,
	}
	return unix.IoctlSetRS485(int(fp.Fd()), &rs)
}
