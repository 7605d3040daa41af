package modbus

/*
The supplemented diagnostic and device-identification operations, wired
onto the same doRequest retry policy as Read/Write. These correspond to
the teacher's clientMetadata.go methods (ReadExceptionStatus, ServerID,
DiagnosticRegister, DiagnosticEcho, DiagnosticClear, DiagnosticCount,
DiagnosticOverrunClear, CommEventCounter, CommEventLog,
DeviceIdentification) and clientHolding.go's MaskWriteHolding and
WriteReadMultipleHoldings/ReadFIFOQueue, restated against FrameCodec.
*/

import (
	"context"
	"errors"
)

// Device identification object IDs, per the Modbus device identification
// convention the category-2/3 recovery aids below reference by name.
const (
	ObjectVendorName         byte = 0x00
	ObjectProductCode        byte = 0x01
	ObjectMajorMinorRevision byte = 0x02
	ObjectVendorURL          byte = 0x03
	ObjectProductName        byte = 0x04
	ObjectModelName          byte = 0x05
	ObjectApplicationName    byte = 0x06
	ObjectFirstPrivateObject byte = 0x80
)

func (c *Client) readDeviceIdentificationOnce(ctx context.Context, deviceID, category, firstObjectID byte) (*DeviceIdentificationResponse, error) {
	body := BuildReadDeviceIdentificationRequest(deviceID, category, firstObjectID)
	resp, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	return DecodeReadDeviceIdentificationResponse(firstObjectID, resp)
}

// ReadDeviceIdentification walks every conformity category from 1 up to
// the level the device reports in its first reply, following moreFollows
// within each category, and returns every object it collected. A device
// that answers IllegalDataAddress on the very first object of category 2
// or 3 is retried once from VendorUrl or FirstPrivateObject respectively,
// a VIOLATION aid for devices that don't support the low object IDs in
// those categories.
func (c *Client) ReadDeviceIdentification(ctx context.Context, deviceID byte) (map[byte]string, error) {
	result := make(map[byte]string)
	maxCategory := byte(1)
	for category := byte(1); category <= maxCategory; category++ {
		firstObjectID := byte(0)
		retried := false
		for {
			resp, err := c.readDeviceIdentificationOnce(ctx, deviceID, category, firstObjectID)
			if err != nil {
				var pe *Error
				if !retried && firstObjectID == 0 && errors.As(err, &pe) && pe.Code() == IllegalDataAddress {
					retried = true
					switch category {
					case 2:
						firstObjectID = ObjectVendorURL
						continue
					case 3:
						firstObjectID = ObjectFirstPrivateObject
						continue
					}
				}
				return nil, err
			}
			if category == 1 {
				if lvl := resp.ConformityLevel & 0x7F; lvl > maxCategory {
					maxCategory = lvl
				}
			}
			for _, obj := range resp.Objects {
				result[obj.ID] = string(obj.Value)
			}
			if !resp.MoreFollows {
				break
			}
			firstObjectID = resp.NextObjectID
		}
	}
	return result, nil
}

// ReadExceptionStatus returns the device's exception status bitmask
// (function 7). The meaning of individual bits is device-specific.
func (c *Client) ReadExceptionStatus(ctx context.Context, deviceID byte) (byte, error) {
	resp, err := c.doRequest(ctx, BuildReadExceptionStatusRequest(deviceID))
	if err != nil {
		return 0, err
	}
	return DecodeReadExceptionStatusResponse(resp)
}

// ReportServerID returns the device's self-reported ID and run indicator
// (function 17).
func (c *Client) ReportServerID(ctx context.Context, deviceID byte) (*ServerID, error) {
	resp, err := c.doRequest(ctx, BuildReportServerIDRequest(deviceID))
	if err != nil {
		return nil, err
	}
	return DecodeReportServerIDResponse(resp)
}

// CommEventCounter returns the device's comm event counter (function 11).
func (c *Client) CommEventCounter(ctx context.Context, deviceID byte) (*CommEventCounter, error) {
	resp, err := c.doRequest(ctx, BuildCommEventCounterRequest(deviceID))
	if err != nil {
		return nil, err
	}
	return DecodeCommEventCounterResponse(resp)
}

// CommEventLog returns the device's comm event log (function 12).
func (c *Client) CommEventLog(ctx context.Context, deviceID byte) (*CommEventLog, error) {
	resp, err := c.doRequest(ctx, BuildCommEventLogRequest(deviceID))
	if err != nil {
		return nil, err
	}
	return DecodeCommEventLogResponse(resp)
}

// MaskWriteRegister applies (current AND and) OR (or AND (NOT and)) to a
// holding register on the device (function 22).
func (c *Client) MaskWriteRegister(ctx context.Context, deviceID byte, addr, and, or uint16) error {
	resp, err := c.doRequest(ctx, BuildMaskWriteRegisterRequest(deviceID, addr, and, or))
	if err != nil {
		return err
	}
	return DecodeMaskWriteRegisterResponse(addr, and, or, resp)
}

// ReadWriteRegisters writes writeValues starting at writeStart, then in
// the same request reads readRange, returning the read result (function
// 23). The addresses written and read need not overlap.
func (c *Client) ReadWriteRegisters(ctx context.Context, deviceID byte, readRange Range, writeStart uint16, writeValues []uint16) (*ObjectCollection, error) {
	body := BuildReadWriteRegistersRequest(deviceID, readRange, writeStart, writeValues)
	resp, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	objs, _, err := DecodeReadWriteRegistersResponse(readRange, resp)
	return objs, err
}

// ReadFIFOQueue reads the FIFO queue register at addr (function 24).
func (c *Client) ReadFIFOQueue(ctx context.Context, deviceID byte, addr uint16) ([]uint16, error) {
	resp, err := c.doRequest(ctx, BuildReadFIFOQueueRequest(deviceID, addr))
	if err != nil {
		return nil, err
	}
	return DecodeReadFIFOQueueResponse(resp)
}

// DiagnosticEcho returns the exact words the device echoed back (function
// 8, sub-function 0).
func (c *Client) DiagnosticEcho(ctx context.Context, deviceID byte, words []uint16) ([]uint16, error) {
	resp, err := c.doRequest(ctx, BuildDiagnosticsEchoRequest(deviceID, words))
	if err != nil {
		return nil, err
	}
	return DecodeDiagnosticsEchoResponse(resp)
}

// DiagnosticRegister reads the device's diagnostic register (function 8,
// sub-function 2).
func (c *Client) DiagnosticRegister(ctx context.Context, deviceID byte) (uint16, error) {
	resp, err := c.doRequest(ctx, BuildDiagnosticsRegisterRequest(deviceID))
	if err != nil {
		return 0, err
	}
	return DecodeDiagnosticsRegisterResponse(resp)
}

// DiagnosticClear resets all of the device's diagnostic counters and its
// event log (function 8, sub-function 10).
func (c *Client) DiagnosticClear(ctx context.Context, deviceID byte) error {
	resp, err := c.doRequest(ctx, BuildDiagnosticsClearRequest(deviceID))
	if err != nil {
		return err
	}
	return DecodeDiagnosticsClearResponse(resp)
}

// DiagnosticCount reads one of the device's diagnostic counters (function
// 8, sub-functions 11-18).
func (c *Client) DiagnosticCount(ctx context.Context, deviceID byte, counter Diagnostic) (uint16, error) {
	resp, err := c.doRequest(ctx, BuildDiagnosticsCountRequest(deviceID, counter))
	if err != nil {
		return 0, err
	}
	return DecodeDiagnosticsCountResponse(counter, resp)
}

// DiagnosticOverrunClear clears the device's character overrun counter
// (function 8, sub-function 20).
func (c *Client) DiagnosticOverrunClear(ctx context.Context, deviceID byte, echo uint16) error {
	resp, err := c.doRequest(ctx, BuildDiagnosticsOverrunClearRequest(deviceID, echo))
	if err != nil {
		return err
	}
	return DecodeDiagnosticsOverrunClearResponse(echo, resp)
}
