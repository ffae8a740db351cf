package bloom

import "math"

// CounterMax is the largest value a Counter mode cell can hold.
const CounterMax = math.MaxUint8

// bitOffsets locates the bit a hash value selects in BitMark mode. The byte
// index is taken from v/8 and the bit from v%8, so the low three bits of v
// pick the bit and the remaining bits pick the byte.
func bitOffsets(v uint32, size int) (idx int, bit uint8) {
	return int((v >> 3) % uint32(size)), uint8(v & 7)
}

// counterOffset locates the cell a hash value selects in Counter mode. Unlike
// bitOffsets there is no division by 8: each cell is a whole counter.
func counterOffset(v uint32, size int) int {
	return int(v % uint32(size))
}

func testBit(buf []byte, idx int, bit uint8) bool {
	return buf[idx]&(1<<bit) != 0
}

func setBit(buf []byte, idx int, bit uint8) {
	buf[idx] |= 1 << bit
}

// incrementCell adds one to buf[idx]. It reports false, leaving the cell
// untouched, when the cell is already saturated.
func incrementCell(buf []byte, idx int) bool {
	if buf[idx] == CounterMax {
		return false
	}
	buf[idx]++
	return true
}
