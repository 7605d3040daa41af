package modbus

/*
This file is the FrameCodec: it builds outgoing PDU bodies and decodes
incoming ones. The body format here folds the device (unit) ID into byte 0
of the body, ahead of the function code in byte 1 — the transports
(tcp_transport.go, rtu_transport.go) frame this body as-is rather than
carrying the unit ID as a separate field the way the teacher's adu did.
Builders reuse the teacher's dataBuilder (codec.go); decoders work
directly off the byte slice because the response shapes here (tolerant
short reads, VIOLATION handling) don't fit the teacher's panic-on-mismatch
dataReader idiom for every path.
*/

import "fmt"

func isException(body []byte) bool {
	return len(body) >= 2 && body[1]&0x80 != 0
}

func decodeException(body []byte) error {
	if len(body) < 3 {
		return IncompleteResponseErrorF("exception response too short: %d bytes", len(body))
	}
	return protocolErrorFromCode(body[2])
}

// BuildReadRequest builds a read request body for count objects of type t
// starting at r.Start: [deviceId, fc, startHi, startLo, countHi, countLo].
func BuildReadRequest(t ObjectType, deviceID byte, r Range) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(int(t.readFunction()))
	b.word(int(r.Start))
	b.word(r.Length())
	return b.payload()
}

// DecodeReadResponse decodes a read response body into an ObjectCollection
// covering as many addresses of r as the response actually delivered,
// starting from r.Start. The second return value is the count delivered;
// callers compare it against r.Length() to detect a short response.
func DecodeReadResponse(t ObjectType, r Range, body []byte) (*ObjectCollection, int, error) {
	if len(body) < 2 {
		return nil, 0, IncompleteResponseErrorF("read response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, 0, decodeException(body)
	}
	if len(body) < 3 {
		return nil, 0, IncompleteResponseErrorF("read response missing byte count")
	}
	byteCount := int(body[2])
	data := body[3:]
	if byteCount > len(data) {
		byteCount = len(data)
	}

	col := NewObjectCollection(t)
	if t.isBit() {
		delivered := byteCount * 8
		if delivered > r.Length() {
			delivered = r.Length()
		}
		for i := 0; i < delivered; i++ {
			mask := byte(1) << uint(i%8)
			col.SetBit(r.Start+uint16(i), data[i/8]&mask != 0)
		}
		return col, delivered, nil
	}
	delivered := byteCount / 2
	if delivered > r.Length() {
		delivered = r.Length()
	}
	for i := 0; i < delivered; i++ {
		col.SetWord(r.Start+uint16(i), getWord(data, i*2))
	}
	return col, delivered, nil
}

// BuildWriteSingleRequest builds a single-object write request body:
// [deviceId, 5 or 6, addrHi, addrLo, valueHi, valueLo].
func BuildWriteSingleRequest(t ObjectType, deviceID byte, addr uint16, obj Object) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	fc := 5
	if t == HoldingRegister {
		fc = 6
	}
	b.byte(fc)
	b.word(int(addr))
	b.word(singleWriteValue(t, obj))
	return b.payload()
}

func singleWriteValue(t ObjectType, obj Object) int {
	if t.isBit() {
		if obj.Bit {
			return 0xFF00
		}
		return 0x0000
	}
	return int(obj.Word)
}

// DecodeWriteSingleResponse validates the echoed address and value in a
// single-object write response.
func DecodeWriteSingleResponse(t ObjectType, addr uint16, obj Object, body []byte) error {
	if len(body) < 2 {
		return IncompleteResponseErrorF("write response too short: %d bytes", len(body))
	}
	if isException(body) {
		return decodeException(body)
	}
	if len(body) < 6 {
		return IncompleteResponseErrorF("write response too short: %d bytes", len(body))
	}
	if got := iGetWord(body, 2); got != int(addr) {
		return AddressMismatchErrorF(int(addr), got)
	}
	want := singleWriteValue(t, obj)
	if got := iGetWord(body, 4); got != want {
		return WriteMismatchErrorF("address %d: want 0x%04x, got 0x%04x", addr, want, got)
	}
	return nil
}

// BuildWriteMultipleRequest builds a multi-object write request body:
// [deviceId, 15 or 16, startHi, startLo, countHi, countLo, dataLen, data...].
func BuildWriteMultipleRequest(t ObjectType, deviceID byte, r Range, objs *ObjectCollection) ([]byte, error) {
	b := dataBuilder{}
	b.byte(int(deviceID))
	fc := 15
	if t == HoldingRegister {
		fc = 16
	}
	b.byte(fc)
	b.word(int(r.Start))
	b.word(r.Length())
	if t.isBit() {
		bits := make([]bool, r.Length())
		for i := range bits {
			v, err := objs.GetBit(r.Start + uint16(i))
			if err != nil {
				return nil, err
			}
			bits[i] = v
		}
		b.bits(bits...)
		return b.payload(), nil
	}
	words := make([]int, r.Length())
	for i := range words {
		v, err := objs.GetWord(r.Start + uint16(i))
		if err != nil {
			return nil, err
		}
		words[i] = int(v)
	}
	b.byte(len(words) * 2)
	b.words(words...)
	return b.payload(), nil
}

// DecodeWriteMultipleResponse decodes [deviceId, fc, startHi, startLo,
// countHi, countLo] and returns the number of objects the server confirmed.
// A confirmed count less than r.Length() is not itself an error here — the
// client pipeline re-requests the remainder.
func DecodeWriteMultipleResponse(r Range, body []byte) (int, error) {
	if len(body) < 2 {
		return 0, IncompleteResponseErrorF("write response too short: %d bytes", len(body))
	}
	if isException(body) {
		return 0, decodeException(body)
	}
	if len(body) < 6 {
		return 0, IncompleteResponseErrorF("write response too short: %d bytes", len(body))
	}
	if got := iGetWord(body, 2); got != int(r.Start) {
		return 0, AddressMismatchErrorF(int(r.Start), got)
	}
	confirmed := iGetWord(body, 4)
	if confirmed == 0 {
		return 0, WriteMismatchErrorF("address %d: server confirmed zero of %d", r.Start, r.Length())
	}
	if confirmed > r.Length() {
		return 0, WriteMismatchErrorF("address %d: server confirmed %d, more than the %d requested", r.Start, confirmed, r.Length())
	}
	return confirmed, nil
}

// DeviceIDObject is one {id, bytes} entry from a Read Device Identification
// response.
type DeviceIDObject struct {
	ID    byte
	Value []byte
}

// DeviceIdentificationResponse is one decoded Read Device Identification
// response, covering one category's worth of objects.
type DeviceIdentificationResponse struct {
	ConformityLevel byte
	MoreFollows     bool
	NextObjectID    byte
	Objects         []DeviceIDObject
}

// BuildReadDeviceIdentificationRequest builds a Read Device Identification
// request under MEI type 14: [deviceId, 43, 14, category, firstObjectId].
func BuildReadDeviceIdentificationRequest(deviceID byte, category byte, firstObjectID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x2B)
	b.byte(0x0E)
	b.byte(int(category))
	b.byte(int(firstObjectID))
	return b.payload()
}

// DecodeReadDeviceIdentificationResponse decodes [deviceId, 43, 14, category,
// conformityLevel, moreFollows, nextObjectId, objectCount, {id, len,
// bytes}...]. It ignores the stated objectCount and consumes objects until
// the body ends, and tolerates the VIOLATION of an authoritative error code
// appearing at offset 3 when offset 2 is not the expected MEI type echo.
func DecodeReadDeviceIdentificationResponse(lastRequested byte, body []byte) (*DeviceIdentificationResponse, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("device identification response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	if len(body) < 8 {
		return nil, IncompleteResponseErrorF("device identification response too short: %d bytes", len(body))
	}
	if body[2] != 0x0E {
		if ec := ErrorCode(body[3]); ec.IsProtocol() {
			return nil, protocolErrorFromCode(body[3])
		}
	}
	resp := &DeviceIdentificationResponse{
		ConformityLevel: body[4],
		MoreFollows:     body[5] != 0,
		NextObjectID:    body[6],
	}
	pos := 8
	for pos+1 < len(body) {
		id := body[pos]
		length := int(body[pos+1])
		pos += 2
		if pos+length > len(body) {
			length = len(body) - pos
		}
		resp.Objects = append(resp.Objects, DeviceIDObject{ID: id, Value: append([]byte(nil), body[pos:pos+length]...)})
		pos += length
	}
	if resp.MoreFollows && resp.NextObjectID <= lastRequested {
		return nil, ReadDeviceIdentificationLoopErrorF(int(resp.NextObjectID))
	}
	return resp, nil
}

// BuildReadExceptionStatusRequest builds a function-7 request body.
func BuildReadExceptionStatusRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x07)
	return b.payload()
}

// DecodeReadExceptionStatusResponse decodes the exception status byte.
func DecodeReadExceptionStatusResponse(body []byte) (byte, error) {
	if len(body) < 2 {
		return 0, IncompleteResponseErrorF("exception status response too short: %d bytes", len(body))
	}
	if isException(body) {
		return 0, decodeException(body)
	}
	if len(body) < 3 {
		return 0, IncompleteResponseErrorF("exception status response too short: %d bytes", len(body))
	}
	return body[2], nil
}

// ServerID is the decoded Report Server ID (function 17) response.
type ServerID struct {
	ID           []byte
	RunIndicator bool
}

// BuildReportServerIDRequest builds a function-17 request body.
func BuildReportServerIDRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x11)
	return b.payload()
}

// DecodeReportServerIDResponse decodes [deviceId, fc, byteCount, id...,
// runIndicator].
func DecodeReportServerIDResponse(body []byte) (*ServerID, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("report server id response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	if len(body) < 3 {
		return nil, IncompleteResponseErrorF("report server id response too short: %d bytes", len(body))
	}
	n := int(body[2])
	data := body[3:]
	if n > len(data) {
		n = len(data)
	}
	if n == 0 {
		return nil, IncompleteResponseErrorF("report server id: empty payload")
	}
	return &ServerID{ID: append([]byte(nil), data[:n-1]...), RunIndicator: data[n-1] != 0}, nil
}

// CommEventCounter is the decoded Get Comm Event Counter (function 11) response.
type CommEventCounter struct {
	Busy       bool
	EventCount int
}

// BuildCommEventCounterRequest builds a function-11 request body.
func BuildCommEventCounterRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x0B)
	return b.payload()
}

// DecodeCommEventCounterResponse decodes [deviceId, fc, statusHi, statusLo,
// countHi, countLo].
func DecodeCommEventCounterResponse(body []byte) (*CommEventCounter, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("comm event counter response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	if len(body) < 6 {
		return nil, IncompleteResponseErrorF("comm event counter response too short: %d bytes", len(body))
	}
	return &CommEventCounter{Busy: iGetWord(body, 2) == 0xFFFF, EventCount: iGetWord(body, 4)}, nil
}

// CommEventLog is the decoded Get Comm Event Log (function 12) response.
type CommEventLog struct {
	Busy         bool
	EventCount   int
	MessageCount int
	Events       []byte
}

// BuildCommEventLogRequest builds a function-12 request body.
func BuildCommEventLogRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x0C)
	return b.payload()
}

// DecodeCommEventLogResponse decodes [deviceId, fc, byteCount, statusHi,
// statusLo, eventCountHi, eventCountLo, messageCountHi, messageCountLo,
// events...].
func DecodeCommEventLogResponse(body []byte) (*CommEventLog, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("comm event log response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	if len(body) < 3 {
		return nil, IncompleteResponseErrorF("comm event log response too short: %d bytes", len(body))
	}
	n := int(body[2])
	data := body[3:]
	if n > len(data) {
		n = len(data)
	}
	if n < 6 {
		return nil, IncompleteResponseErrorF("comm event log response too short: %d bytes of payload", n)
	}
	return &CommEventLog{
		Busy:         iGetWord(data, 0) == 0xFFFF,
		EventCount:   iGetWord(data, 2),
		MessageCount: iGetWord(data, 4),
		Events:       append([]byte(nil), data[6:n]...),
	}, nil
}

// BuildMaskWriteRegisterRequest builds a function-22 (0x16) request body:
// [deviceId, 22, addrHi, addrLo, andHi, andLo, orHi, orLo].
func BuildMaskWriteRegisterRequest(deviceID byte, addr uint16, and uint16, or uint16) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x16)
	b.word(int(addr))
	b.word(int(and))
	b.word(int(or))
	return b.payload()
}

// DecodeMaskWriteRegisterResponse validates the echoed address and masks.
func DecodeMaskWriteRegisterResponse(addr uint16, and uint16, or uint16, body []byte) error {
	if len(body) < 2 {
		return IncompleteResponseErrorF("mask write register response too short: %d bytes", len(body))
	}
	if isException(body) {
		return decodeException(body)
	}
	if len(body) < 8 {
		return IncompleteResponseErrorF("mask write register response too short: %d bytes", len(body))
	}
	if got := iGetWord(body, 2); got != int(addr) {
		return AddressMismatchErrorF(int(addr), got)
	}
	gotAnd, gotOr := iGetWord(body, 4), iGetWord(body, 6)
	if gotAnd != int(and) || gotOr != int(or) {
		return WriteMismatchErrorF("mask write register %d: want AND 0x%04x OR 0x%04x, got AND 0x%04x OR 0x%04x", addr, and, or, gotAnd, gotOr)
	}
	return nil
}

// BuildReadWriteRegistersRequest builds a function-23 (0x17) request body:
// [deviceId, 23, readStartHi, readStartLo, readCountHi, readCountLo,
// writeStartHi, writeStartLo, writeCountHi, writeCountLo, writeByteCount,
// writeData...].
func BuildReadWriteRegistersRequest(deviceID byte, readRange Range, writeStart uint16, writeValues []uint16) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x17)
	b.word(int(readRange.Start))
	b.word(readRange.Length())
	b.word(int(writeStart))
	b.word(len(writeValues))
	b.byte(len(writeValues) * 2)
	for _, w := range writeValues {
		b.word(int(w))
	}
	return b.payload()
}

// DecodeReadWriteRegistersResponse decodes the read-back half of a
// function-23 exchange; the wire shape is identical to a plain holding
// register read response.
func DecodeReadWriteRegistersResponse(readRange Range, body []byte) (*ObjectCollection, int, error) {
	return DecodeReadResponse(HoldingRegister, readRange, body)
}

// BuildReadFIFOQueueRequest builds a function-24 (0x18) request body:
// [deviceId, 24, addrHi, addrLo].
func BuildReadFIFOQueueRequest(deviceID byte, addr uint16) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x18)
	b.word(int(addr))
	return b.payload()
}

// DecodeReadFIFOQueueResponse decodes [deviceId, fc, byteCountHi,
// byteCountLo, countHi, countLo, values...]. At most 31 values are legal on
// the wire; this decoder tolerates whatever the declared count and body
// length agree on.
func DecodeReadFIFOQueueResponse(body []byte) ([]uint16, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("read fifo queue response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	if len(body) < 6 {
		return nil, IncompleteResponseErrorF("read fifo queue response too short: %d bytes", len(body))
	}
	data := body[4:]
	count := iGetWord(data, 0)
	values := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		off := 2 + i*2
		if off+1 >= len(data) {
			break
		}
		values = append(values, uint16(iGetWord(data, off)))
	}
	return values, nil
}

// Diagnostic identifies a function-8 counter sub-function.
type Diagnostic uint16

// Diagnostic counter identifiers, matching the sub-function codes on the wire.
const (
	BusMessages Diagnostic = 0x0B + iota
	BusCommErrors
	BusExceptionErrors
	ServerMessages
	ServerNoResponses
	ServerNAKs
	ServerBusies
	BusCharacterOverruns
)

var diagnosticNames = [...]string{"BusMessages", "BusCommErrors", "BusExceptionErrors", "ServerMessages", "ServerNoResponses", "ServerNAKs", "ServerBusies", "BusCharacterOverruns"}

func (d Diagnostic) String() string {
	idx := int(d - BusMessages)
	if idx < 0 || idx >= len(diagnosticNames) {
		return fmt.Sprintf("Diagnostic(0x%04x)", uint16(d))
	}
	return diagnosticNames[idx]
}

func diagnosticsBody(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, IncompleteResponseErrorF("diagnostics response too short: %d bytes", len(body))
	}
	if isException(body) {
		return nil, decodeException(body)
	}
	return body[2:], nil
}

// BuildDiagnosticsEchoRequest builds a Return Query Data (sub-function 0)
// request echoing words back at the caller.
func BuildDiagnosticsEchoRequest(deviceID byte, words []uint16) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x08)
	b.word(0x0000)
	for _, w := range words {
		b.word(int(w))
	}
	return b.payload()
}

// DecodeDiagnosticsEchoResponse validates the echoed sub-function and
// returns the echoed words.
func DecodeDiagnosticsEchoResponse(body []byte) ([]uint16, error) {
	data, err := diagnosticsBody(body)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, IncompleteResponseErrorF("diagnostics echo response too short")
	}
	if sub := iGetWord(data, 0); sub != 0 {
		return nil, IncompleteResponseErrorF("diagnostics echo response has unexpected subfunction 0x%04x", sub)
	}
	rest := data[2:]
	got := make([]uint16, 0, len(rest)/2)
	for i := 0; i+1 < len(rest); i += 2 {
		got = append(got, uint16(iGetWord(rest, i)))
	}
	return got, nil
}

// BuildDiagnosticsRegisterRequest builds a Return Diagnostic Register
// (sub-function 2) request.
func BuildDiagnosticsRegisterRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x08)
	b.word(0x0002)
	b.word(0x0000)
	return b.payload()
}

// DecodeDiagnosticsRegisterResponse decodes the diagnostic register value.
func DecodeDiagnosticsRegisterResponse(body []byte) (uint16, error) {
	data, err := diagnosticsBody(body)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, IncompleteResponseErrorF("diagnostics register response too short")
	}
	if sub := iGetWord(data, 0); sub != 2 {
		return 0, IncompleteResponseErrorF("diagnostics register response has unexpected subfunction 0x%04x", sub)
	}
	return uint16(iGetWord(data, 2)), nil
}

// BuildDiagnosticsClearRequest builds a Clear Counters and Diagnostic
// Register (sub-function 10/0x0A) request.
func BuildDiagnosticsClearRequest(deviceID byte) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x08)
	b.word(0x000A)
	b.word(0x0000)
	return b.payload()
}

// DecodeDiagnosticsClearResponse validates the clear-counters echo.
func DecodeDiagnosticsClearResponse(body []byte) error {
	data, err := diagnosticsBody(body)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return IncompleteResponseErrorF("diagnostics clear response too short")
	}
	if sub := iGetWord(data, 0); sub != 0x0A {
		return IncompleteResponseErrorF("diagnostics clear response has unexpected subfunction 0x%04x", sub)
	}
	return nil
}

// BuildDiagnosticsCountRequest builds a per-counter read request for one of
// the Diagnostic sub-functions (0x0B..0x12).
func BuildDiagnosticsCountRequest(deviceID byte, counter Diagnostic) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x08)
	b.word(int(counter))
	b.word(0x0000)
	return b.payload()
}

// DecodeDiagnosticsCountResponse validates the echoed counter identifier
// and returns its value.
func DecodeDiagnosticsCountResponse(counter Diagnostic, body []byte) (uint16, error) {
	data, err := diagnosticsBody(body)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, IncompleteResponseErrorF("diagnostics count response too short")
	}
	if sub := Diagnostic(iGetWord(data, 0)); sub != counter {
		return 0, IncompleteResponseErrorF("diagnostics count response is for counter %v, not %v", sub, counter)
	}
	return uint16(iGetWord(data, 2)), nil
}

// BuildDiagnosticsOverrunClearRequest builds a Clear Overrun Counter and
// Flag (sub-function 20/0x14) request, echoing back echo.
func BuildDiagnosticsOverrunClearRequest(deviceID byte, echo uint16) []byte {
	b := dataBuilder{}
	b.byte(int(deviceID))
	b.byte(0x08)
	b.word(0x0014)
	b.word(int(echo))
	return b.payload()
}

// DecodeDiagnosticsOverrunClearResponse validates the echo.
func DecodeDiagnosticsOverrunClearResponse(echo uint16, body []byte) error {
	data, err := diagnosticsBody(body)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return IncompleteResponseErrorF("diagnostics overrun clear response too short")
	}
	if sub := iGetWord(data, 0); sub != 0x14 {
		return IncompleteResponseErrorF("diagnostics overrun clear response has unexpected subfunction 0x%04x", sub)
	}
	if got := uint16(iGetWord(data, 2)); got != echo {
		return WriteMismatchErrorF("diagnostics overrun clear: want echo 0x%04x, got 0x%04x", echo, got)
	}
	return nil
}
