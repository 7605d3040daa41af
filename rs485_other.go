//go:build !linux

package modbus

import "github.com/goburrow/serial"

// enableRS485 is a no-op outside Linux: RS-485 mode is attempted where
// available and silently skipped elsewhere.
func enableRS485(device string, port serial.Port) error {
	return nil
}
