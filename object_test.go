package modbus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectCollectionWordRoundTrip(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	c.SetWord(10, 0xBEEF)
	v, err := c.GetWord(10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v)
}

func TestObjectCollectionBitRoundTrip(t *testing.T) {
	c := NewObjectCollection(Coil)
	c.SetBit(3, true)
	v, err := c.GetBit(3)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestObjectCollectionLookupErrorOnUnknownAddress(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	_, err := c.GetWord(5)
	assert.Error(t, err)
}

func TestObjectCollectionMultiWordRoundTrips(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)

	c.SetUint32(0, 0xDEADBEEF)
	u32, err := c.GetUint32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	c.SetInt32(10, -12345)
	i32, err := c.GetInt32(10)
	require.NoError(t, err)
	assert.Equal(t, int32(-12345), i32)

	c.SetUint64(20, 0x0102030405060708)
	u64, err := c.GetUint64(20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	c.SetInt64(30, -9876543210)
	i64, err := c.GetInt64(30)
	require.NoError(t, err)
	assert.Equal(t, int64(-9876543210), i64)
}

func TestObjectCollectionFloatRoundTrips(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)

	for _, f := range []float32{3.14, -0.0, float32(math.Inf(1)), float32(math.Inf(-1))} {
		c.SetFloat32(0, f)
		got, err := c.GetFloat32(0)
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	c.SetFloat32(0, float32(math.NaN()))
	got, err := c.GetFloat32(0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got)))

	c.SetFloat64(10, 2.71828)
	f64, err := c.GetFloat64(10)
	require.NoError(t, err)
	assert.Equal(t, 2.71828, f64)
}

func TestObjectCollectionMultiWordOverwritesPriorEntries(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	c.SetWord(0, 1)
	c.SetWord(1, 2)
	c.SetWord(2, 3)
	c.SetUint32(0, 0xAABBCCDD)

	_, err := c.GetWord(2)
	require.NoError(t, err, "SetUint32 at 0 must not disturb address 2")

	hi, err := c.GetWord(0)
	require.NoError(t, err)
	lo, err := c.GetWord(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xAABB), hi, "word ordering is big-endian across words")
	assert.Equal(t, uint16(0xCCDD), lo)
}

func TestObjectCollectionString8RoundTrip(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	require.NoError(t, c.SetString8(0, "AB"))
	s, err := c.GetString8(0, 2)
	require.NoError(t, err)
	assert.Equal(t, "AB", s)
}

func TestObjectCollectionString8OddLengthDoesNotDuplicateCharacter(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	require.NoError(t, c.SetString8(0, "ABC"))

	w, err := c.GetWord(1)
	require.NoError(t, err)
	assert.Equal(t, uint16('C')<<8, w, "character 2k goes in the high byte, the low byte is padding, not a repeat of 'C'")
}

func TestObjectCollectionString16RoundTrip(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	c.SetString16(0, "Hi!")
	s, err := c.GetString16(0, 3)
	require.NoError(t, err)
	assert.Equal(t, "Hi!", s)
}

func TestObjectCollectionString16DoesNotRecombineSurrogatePairs(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	c.SetWord(0, 0xD83D) // high surrogate half of U+1F600
	c.SetWord(1, 0xDE00) // low surrogate half of U+1F600

	s, err := c.GetString16(0, 2)
	require.NoError(t, err)
	assert.Len(t, []rune(s), 2, "the two code units must decode as two independent characters, not one recombined rune")
}

func TestUTF16DecodeEmitsOneRunePerCodeUnit(t *testing.T) {
	s := utf16Decode([]uint16{0xD83D, 0xDE00})
	assert.Len(t, []rune(s), 2)
}

func TestObjectCollectionGetRangesProjectsAddresses(t *testing.T) {
	c := NewObjectCollection(HoldingRegister)
	c.SetWord(5, 1)
	c.SetWord(6, 2)
	c.SetWord(20, 3)

	ranges, err := c.GetRanges(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []Range{mustRange(t, 5, 6), mustRange(t, 20, 20)}, ranges)
}

func TestObjectCollectionBitDecodingFromWireLSBFirst(t *testing.T) {
	// Scenario S2: server data bytes [0xCD, 0x01] for coils 0..9.
	data := []byte{0xCD, 0x01}
	c := NewObjectCollection(Coil)
	for i := 0; i < 10; i++ {
		byteIdx, mask := i/8, byte(1)<<uint(i%8)
		c.SetBit(uint16(i), data[byteIdx]&mask != 0)
	}
	want := map[uint16]bool{0: true, 1: false, 2: true, 3: true, 4: false, 5: false, 6: true, 7: true, 8: true, 9: false}
	for addr, expect := range want {
		v, err := c.GetBit(addr)
		require.NoError(t, err)
		assert.Equal(t, expect, v, "address %d", addr)
	}
}
