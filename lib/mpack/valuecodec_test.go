package mpack

import "testing"

func TestSplitJoinUint64(t *testing.T) {
	test := func(v uint64) {
		hi, lo := splitUint64(v)
		if got := joinUint64(hi, lo); got != v {
			t.Errorf("joinUint64(splitUint64(%d)) = %d", v, got)
		}
	}
	test(0)
	test(1)
	test(0xffffffff)
	test(0x100000000)
	test(0xffffffffffffffff)
}

func TestTwosComplementRoundTrip(t *testing.T) {
	test := func(v int64, length uint8) {
		hi, lo := splitTwosComplement(v)
		got := unsplitTwosComplement(hi, lo, length)
		if got != v {
			t.Errorf("unsplitTwosComplement(splitTwosComplement(%d), %d) = %d", v, length, got)
		}
	}
	test(-1, 8)
	test(-1, 1)
	test(-128, 2)
	test(-32768, 2)
	test(-2147483648, 4)
	test(-9223372036854775808, 8)
}

func TestSelectUnsignedWidth(t *testing.T) {
	test := func(v uint64, want uint8) {
		hi, lo := splitUint64(v)
		if got := SelectUnsignedWidth(hi, lo); got != want {
			t.Errorf("SelectUnsignedWidth(%#x) = %d, want %d", v, got, want)
		}
	}
	test(0, 1)
	test(0xff, 1)
	test(0xffff, 2)
	test(0x10000, 4)
	test(0xffffffff, 4)
	test(0x100000000, 8)
}

func TestFitsSingle(t *testing.T) {
	if !fitsSingle(1.5) {
		t.Error("1.5 should fit in float32")
	}
	if fitsSingle(1.0 / 3.0) {
		t.Error("1/3 should not round-trip through float32")
	}
	if fitsSingle(nan()) {
		t.Error("NaN must never be reported as fitting single precision")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestPackUnpackFloatFastPath(t *testing.T) {
	test := func(v float64, wantLen uint8) {
		hi, lo, length := PackFloat(v)
		if length != wantLen {
			t.Errorf("PackFloat(%v) length = %d, want %d", v, length, wantLen)
		}
		if got := UnpackFloat(hi, lo, length); got != v {
			t.Errorf("UnpackFloat(PackFloat(%v)) = %v", v, got)
		}
	}
	test(0, 4)
	test(2.5, 4)
	test(1.0/3.0, 8)
}

func TestPackUnpackFloatCompat(t *testing.T) {
	test := func(v float64) {
		hi, lo, length := PackFloatCompat(v)
		got := UnpackFloatCompat(hi, lo, length)
		diff := got - v
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Errorf("UnpackFloatCompat(PackFloatCompat(%v)) = %v", v, got)
		}
	}
	test(0)
	test(2.5)
	test(-2.5)
	test(100.25)
}
