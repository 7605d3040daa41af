package modbus

// utf16Encode and utf16Decode convert between a Go string and the raw
// UTF-16 code units str16 objects carry, one per word. utf16Encode writes a
// character above U+FFFF as a surrogate pair. Unlike unicode/utf16,
// utf16Decode does not recombine surrogate pairs: it turns every word into
// one rune, and since a Go string cannot hold a lone surrogate, each
// surrogate word decodes as U+FFFD.

func utf16Encode(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range []rune(s) {
		if r <= 0xFFFF {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return units
}

func utf16Decode(units []uint16) string {
	runes := make([]rune, len(units))
	for i, u := range units {
		runes[i] = rune(u)
	}
	return string(runes)
}
