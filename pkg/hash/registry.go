package hash

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

var ErrUnknownHash = fmt.Errorf("hash: unknown hash function")

// Class identifies one of the built-in strategies.
type Class uint8

const (
	RS Class = iota
	JS
	ELF
	BKDR
	SDBM
	DJB
	DEK
	BP
	FNV
	AP
	XX
	Murmur3
)

var classNames = [...]string{
	RS:      "rs",
	JS:      "js",
	ELF:     "elf",
	BKDR:    "bkdr",
	SDBM:    "sdbm",
	DJB:     "djb",
	DEK:     "dek",
	BP:      "bp",
	FNV:     "fnv",
	AP:      "ap",
	XX:      "xx",
	Murmur3: "murmur3",
}

var classFuncs = [...]Func{
	RS:      RSHash,
	JS:      JSHash,
	ELF:     ELFHash,
	BKDR:    BKDRHash,
	SDBM:    SDBMHash,
	DJB:     DJBHash,
	DEK:     DEKHash,
	BP:      BPHash,
	FNV:     FNVHash,
	AP:      APHash,
	XX:      XXHash,
	Murmur3: Murmur3Hash,
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// XXHash folds xxhash64 down to its low 32 bits.
func XXHash(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

// Murmur3Hash is murmur3 x86 32-bit with seed 0.
func Murmur3Hash(data []byte) uint32 {
	return murmur3.Sum32(data)
}

// Lookup returns the strategy for c.
func Lookup(c Class) (Func, bool) {
	if int(c) >= len(classFuncs) {
		return nil, false
	}
	return classFuncs[c], true
}

// ByName resolves a strategy by its case-insensitive name, e.g. "rs" or "DEK".
func ByName(name string) (Func, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range classNames {
		if n == name {
			return classFuncs[c], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHash, name)
}

// Set resolves names in order into a strategy list suitable for bloom.New.
func Set(names ...string) ([]Func, error) {
	funcs := make([]Func, 0, len(names))
	for _, n := range names {
		fn, err := ByName(n)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

// Classes returns every built-in class in declaration order.
func Classes() []Class {
	out := make([]Class, len(classFuncs))
	for i := range out {
		out[i] = Class(i)
	}
	return out
}
