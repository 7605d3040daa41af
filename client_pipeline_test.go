package modbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport replays a fixed script of responses/errors, one per call
// to Send, repeating the last entry once the script is exhausted.
type fakeTransport struct {
	mu        sync.Mutex
	responses [][]byte
	errs      []error
	calls     [][]byte
	closed    bool
}

func (f *fakeTransport) Send(ctx context.Context, body []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]byte(nil), body...))
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func dialFake(tr *fakeTransport) func(context.Context) (Transport, error) {
	return func(context.Context) (Transport, error) { return tr, nil }
}

func TestClientReadMatchesS1Scenario(t *testing.T) {
	tr := &fakeTransport{responses: [][]byte{
		{0x01, 0x03, 0x06, 0x00, 0x0A, 0x00, 0x14, 0x00, 0x1E},
	}}
	c, err := NewClient(dialFake(tr), WithRetryCount(0))
	require.NoError(t, err)

	col, err := c.Read(context.Background(), HoldingRegister, 1, []Range{mustRange(t, 100, 102)})
	require.NoError(t, err)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x03}, tr.calls[0])

	for addr, want := range map[uint16]uint16{100: 10, 101: 20, 102: 30} {
		got, err := col.GetWord(addr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClientReadRecoversFromShortResponse(t *testing.T) {
	// Scenario S4: first reply delivers only 2 of 4 requested registers.
	tr := &fakeTransport{responses: [][]byte{
		{0x01, 0x03, 0x04, 0x00, 0x01, 0x00, 0x02},
		{0x01, 0x03, 0x04, 0x00, 0x03, 0x00, 0x04},
	}}
	c, err := NewClient(dialFake(tr), WithRetryCount(0))
	require.NoError(t, err)

	col, err := c.Read(context.Background(), HoldingRegister, 1, []Range{mustRange(t, 0, 3)})
	require.NoError(t, err)
	require.Len(t, tr.calls, 2)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x02, 0x00, 0x02}, tr.calls[1], "second request covers Range(2,3)")

	for addr, want := range map[uint16]uint16{0: 1, 1: 2, 2: 3, 3: 4} {
		got, err := col.GetWord(addr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClientRetriesOnServerDeviceBusy(t *testing.T) {
	// Scenario S5: busy twice, then success.
	busy := []byte{0x01, 0x83, 0x06}
	ok := []byte{0x01, 0x03, 0x02, 0x00, 0x2A}
	tr := &fakeTransport{responses: [][]byte{busy, busy, ok}}
	c, err := NewClient(dialFake(tr),
		WithRetryCount(4),
		WithBusyRetryDelay(5*time.Millisecond),
		WithExceptionRetryDelay(5*time.Millisecond),
	)
	require.NoError(t, err)

	start := time.Now()
	col, err := c.Read(context.Background(), HoldingRegister, 1, []Range{mustRange(t, 0, 0)})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "two busy waits of at least busyRetryDelay must have elapsed")
	require.Len(t, tr.calls, 3)

	v, err := col.GetWord(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2A), v)
}

func TestClientWritePropagatesMismatch(t *testing.T) {
	// Scenario S3: write coil 5 = true, server echoes 0x0000.
	tr := &fakeTransport{responses: [][]byte{
		{0x01, 0x05, 0x00, 0x05, 0x00, 0x00},
	}}
	c, err := NewClient(dialFake(tr), WithRetryCount(0))
	require.NoError(t, err)

	objs := NewObjectCollection(Coil)
	objs.SetBit(5, true)
	err = c.Write(context.Background(), Coil, 1, objs)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, WriteMismatch, pe.Code())
}

func TestClientWriteSwitchesAutoModeOnceOnIllegalFunction(t *testing.T) {
	illegalFunction := []byte{0x01, 0x86, 0x01}
	multiOK := []byte{0x01, 0x10, 0x00, 0x07, 0x00, 0x01}
	tr := &fakeTransport{responses: [][]byte{illegalFunction, multiOK}}
	c, err := NewClient(dialFake(tr), WithRetryCount(0))
	require.NoError(t, err)

	objs := NewObjectCollection(HoldingRegister)
	objs.SetWord(7, 42)
	require.NoError(t, c.Write(context.Background(), HoldingRegister, 1, objs))
	require.Len(t, tr.calls, 2)
	assert.Equal(t, byte(0x06), tr.calls[0][1], "first attempt uses the single-write function")
	assert.Equal(t, byte(0x10), tr.calls[1][1], "after the switch, writes use the multi-write function")
	assert.Equal(t, modeMultiple, c.currentMode())
}

func TestClientWriteSwitchesAutoModeOnceOnIllegalFunctionMultiToSingle(t *testing.T) {
	illegalFunction := []byte{0x01, 0x90, 0x01}
	singleOK1 := []byte{0x01, 0x06, 0x00, 0x0A, 0x00, 0x05}
	singleOK2 := []byte{0x01, 0x06, 0x00, 0x0B, 0x00, 0x06}
	tr := &fakeTransport{responses: [][]byte{illegalFunction, singleOK1, singleOK2}}
	c, err := NewClient(dialFake(tr), WithRetryCount(0))
	require.NoError(t, err)

	objs := NewObjectCollection(HoldingRegister)
	objs.SetWord(10, 5)
	objs.SetWord(11, 6)
	require.NoError(t, c.Write(context.Background(), HoldingRegister, 1, objs))
	require.Len(t, tr.calls, 3)
	assert.Equal(t, byte(0x10), tr.calls[0][1], "first attempt uses the multi-write function")
	assert.Equal(t, byte(0x06), tr.calls[1][1], "after the switch, writes decompose into single-write requests")
	assert.Equal(t, byte(0x06), tr.calls[2][1])
	assert.Equal(t, modeSingle, c.currentMode())
}

func TestClientIdleTimeoutZeroClosesAfterEachRequest(t *testing.T) {
	tr := &fakeTransport{responses: [][]byte{
		{0x01, 0x03, 0x02, 0x00, 0x01},
	}}
	c, err := NewClient(dialFake(tr), WithIdleTimeout(0), WithRetryCount(0))
	require.NoError(t, err)

	_, err = c.Read(context.Background(), HoldingRegister, 1, []Range{mustRange(t, 0, 0)})
	require.NoError(t, err)
	assert.True(t, tr.closed, "idleTimeout=0 must close the connection right after the request")
}
