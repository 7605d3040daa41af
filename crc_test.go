package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16EmptyPayload(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), crc16(nil))
}

func TestCRC16RoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	framed := putCRC16LE(append([]byte(nil), payload...), payload)
	assert.Equal(t, uint16(0), crc16(framed))
}

func TestCRC16MatchesS6Scenario(t *testing.T) {
	request := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	assert.Equal(t, []byte{0xC4, 0x0B}, putCRC16LE(nil, request))

	response := []byte{0x01, 0x03, 0x04, 0x00, 0x01, 0x00, 0x02}
	assert.Equal(t, []byte{0x2A, 0x32}, putCRC16LE(nil, response))
}
