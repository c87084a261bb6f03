// Package bnum holds small integer helpers shared by the config and
// gas-accounting code: overflow-checked arithmetic for gas-limit and
// cumulative-gas-used math, and hex-or-decimal parsing for CLI/env
// integer flags. Adapted from erigon-lib's common/math/integer.go: kept
// SafeAdd/SafeMul/ParseUint64/HexOrDecimal64, dropped CeilDiv,
// MustParseUint64 and RandInt64 (unused in this domain).
package bnum

import (
	"fmt"
	"math/bits"
	"strconv"
)

// HexOrDecimal64 marshals a uint64 as hex or decimal, accepting either form
// on unmarshal. Used by config fields that accept "0x..." or plain decimal
// on the command line and in BRC20PROG_* environment variables.
type HexOrDecimal64 uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *HexOrDecimal64) UnmarshalText(input []byte) error {
	n, ok := ParseUint64(string(input))
	if !ok {
		return fmt.Errorf("invalid hex or decimal integer %q", input)
	}
	*i = HexOrDecimal64(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (i HexOrDecimal64) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint64(i))), nil
}

// ParseUint64 parses s as an integer in decimal or hexadecimal syntax.
// Leading zeros are accepted. The empty string parses as zero.
func ParseUint64(s string) (uint64, bool) {
	if s == "" {
		return 0, true
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// SafeAdd returns x+y and whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// SafeMul returns x*y and whether the multiplication overflowed.
func SafeMul(x, y uint64) (uint64, bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}
