package hash

// Func maps a byte sequence to a 32-bit value. Implementations must be
// deterministic and stateless.
type Func func(data []byte) uint32

// RSHash is Robert Sedgewick's hash.
func RSHash(data []byte) uint32 {
	var (
		a    uint32 = 63689
		b    uint32 = 378551
		hash uint32
	)
	for _, c := range data {
		hash = hash*a + uint32(c)
		a *= b
	}
	return hash
}

// JSHash is Justin Sobel's bitwise hash.
func JSHash(data []byte) uint32 {
	var hash uint32 = 1315423911
	for _, c := range data {
		hash ^= (hash << 5) + uint32(c) + (hash >> 2)
	}
	return hash
}

// ELFHash is the hash used for Unix ELF object symbol tables.
func ELFHash(data []byte) uint32 {
	var hash uint32
	for _, c := range data {
		hash = (hash << 4) + uint32(c)
		x := hash & 0xF0000000
		if x != 0 {
			hash ^= x >> 24
		}
		hash &^= x
	}
	return hash
}

// BKDRHash is the Kernighan and Ritchie hash with seed 131.
func BKDRHash(data []byte) uint32 {
	const seed = 131
	var hash uint32
	for _, c := range data {
		hash = hash*seed + uint32(c)
	}
	return hash
}

// SDBMHash is the hash from the SDBM database library.
func SDBMHash(data []byte) uint32 {
	var hash uint32
	for _, c := range data {
		hash = uint32(c) + (hash << 6) + (hash << 16) - hash
	}
	return hash
}

// DJBHash is Daniel J. Bernstein's times-33 hash.
func DJBHash(data []byte) uint32 {
	var hash uint32 = 5381
	for _, c := range data {
		hash = (hash << 5) + hash + uint32(c)
	}
	return hash
}

// DEKHash is Donald E. Knuth's hash from TAOCP volume 3. It is seeded with
// the input length.
func DEKHash(data []byte) uint32 {
	hash := uint32(len(data))
	for _, c := range data {
		hash = ((hash << 5) ^ (hash >> 27)) ^ uint32(c)
	}
	return hash
}

// BPHash shifts the state left by 7 and xors in each byte.
func BPHash(data []byte) uint32 {
	var hash uint32
	for _, c := range data {
		hash = (hash << 7) ^ uint32(c)
	}
	return hash
}

// FNVHash multiplies then xors, using the FNV-1 32-bit offset basis as the
// multiplier and a zero start value.
func FNVHash(data []byte) uint32 {
	const prime uint32 = 0x811C9DC5
	var hash uint32
	for _, c := range data {
		hash *= prime
		hash ^= uint32(c)
	}
	return hash
}

// APHash is Arash Partow's hash, alternating two mixing steps on even and
// odd positions.
func APHash(data []byte) uint32 {
	var hash uint32 = 0xAAAAAAAA
	for i, c := range data {
		if i&1 == 0 {
			hash ^= (hash << 7) ^ (uint32(c) * (hash >> 3))
		} else {
			hash ^= ^(((hash << 11) + uint32(c)) ^ (hash >> 5))
		}
	}
	return hash
}
