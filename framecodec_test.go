package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReadRequestMatchesS1Scenario(t *testing.T) {
	r := mustRange(t, 100, 102)
	body := BuildReadRequest(HoldingRegister, 1, r)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x03}, body)
}

func TestDecodeReadResponseMatchesS1Scenario(t *testing.T) {
	r := mustRange(t, 100, 102)
	body := []byte{0x01, 0x03, 0x06, 0x00, 0x0A, 0x00, 0x14, 0x00, 0x1E}
	col, delivered, err := DecodeReadResponse(HoldingRegister, r, body)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	for addr, want := range map[uint16]uint16{100: 10, 101: 20, 102: 30} {
		got, err := col.GetWord(addr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeReadResponseShortDelivery(t *testing.T) {
	// Scenario S4: requested Range(0,3) but only 2 registers returned.
	r := mustRange(t, 0, 3)
	body := []byte{0x01, 0x03, 0x04, 0x00, 0x01, 0x00, 0x02}
	_, delivered, err := DecodeReadResponse(HoldingRegister, r, body)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, mustRange(t, 2, 3), r.Subrange(delivered))
}

func TestDecodeReadResponseException(t *testing.T) {
	body := []byte{0x01, 0x83, 0x02}
	_, _, err := DecodeReadResponse(HoldingRegister, mustRange(t, 0, 0), body)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, IllegalDataAddress, pe.Code())
}

func TestDecodeWriteSingleResponseMismatch(t *testing.T) {
	// Scenario S3: write coil 5 = true, server echoes 0x0000.
	obj := Object{Address: 5, Bit: true}
	body := []byte{0x01, 0x05, 0x00, 0x05, 0x00, 0x00}
	err := DecodeWriteSingleResponse(Coil, 5, obj, body)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, WriteMismatch, pe.Code())
}

func TestDecodeWriteMultipleResponseZeroConfirmedIsMismatch(t *testing.T) {
	r := mustRange(t, 0, 3)
	body := []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x00}
	_, err := DecodeWriteMultipleResponse(r, body)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, WriteMismatch, pe.Code())
}

func TestDecodeReadDeviceIdentificationLoop(t *testing.T) {
	body := []byte{0x01, 0x2B, 0x0E, 0x01, 0x01, 0x01, 0x00, 0x00}
	_, err := DecodeReadDeviceIdentificationResponse(0x00, body)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReadDeviceIdentificationLoop, pe.Code())
}
