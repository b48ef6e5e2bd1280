package schubfach

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
)

func TestDecomposeFloat64Known(t *testing.T) {
	cases := []struct {
		in  float64
		sig uint64
		exp int
	}{
		{1, 1, 0},
		{100, 1, 2},
		{0.1, 1, -1},
		{0.3, 3, -1},
		{0.1 + 0.2, 30000000000000004, -17},
		{4.35, 435, -2},
		{123456.789, 123456789, -3},
		{1e23, 1, 23},
		{1e-300, 1, -300},
		{1 << 60, 1152921504606847, 3},
		{9007199254740992, 9007199254740992, 0},
		{math.MaxFloat64, 17976931348623157, 292},
		{2.2250738585072014e-308, 22250738585072014, -324},
		// tiny subnormals keep two digits and pick the closer one
		{math.SmallestNonzeroFloat64, 49, -325},
	}
	for _, tc := range cases {
		d := DecomposeFloat64(tc.in)
		if d.Kind != Normal || d.Negative {
			t.Fatalf("%v: unexpected kind %v negative=%v", tc.in, d.Kind, d.Negative)
		}
		if d.Significand != tc.sig || d.Exponent != tc.exp {
			t.Fatalf("%v: got %v want %de%d", tc.in, d, tc.sig, tc.exp)
		}
		neg := DecomposeFloat64(-tc.in)
		if !neg.Negative || neg.Significand != tc.sig || neg.Exponent != tc.exp {
			t.Fatalf("-%v: got %v", tc.in, neg)
		}
	}
}

func TestDecomposeFloat64Special(t *testing.T) {
	cases := []struct {
		in   float64
		kind Kind
	}{
		{0, PlusZero},
		{math.Copysign(0, -1), MinusZero},
		{math.Inf(1), PlusInf},
		{math.Inf(-1), MinusInf},
		{math.NaN(), NaN},
		{math.Float64frombits(0x7FF0_0000_0000_0001), NaN},
		{math.Float64frombits(0xFFF8_0000_0000_0000), NaN},
	}
	for _, tc := range cases {
		d := DecomposeFloat64(tc.in)
		if d.Kind != tc.kind {
			t.Fatalf("%v: got kind %v want %v", tc.in, d.Kind, tc.kind)
		}
		if d.Significand != 0 || d.Exponent != 0 {
			t.Fatalf("%v: special value carries digits: %+v", tc.in, d)
		}
	}
}

func TestDecomposeFloat32(t *testing.T) {
	cases := []struct {
		in  float32
		sig uint64
		exp int
	}{
		{1, 1, 0},
		{0.1, 1, -1},
		{3.14159, 314159, -5},
		{1e-10, 1, -10},
		{16777216, 16777216, 0},
		{math.MaxFloat32, 34028235, 31},
		{math.SmallestNonzeroFloat32, 14, -46},
	}
	for _, tc := range cases {
		d := DecomposeFloat32(tc.in)
		if d.Kind != Normal {
			t.Fatalf("%v: unexpected kind %v", tc.in, d.Kind)
		}
		if d.Significand != tc.sig || d.Exponent != tc.exp {
			t.Fatalf("%v: got %v want %de%d", tc.in, d, tc.sig, tc.exp)
		}
	}
	if d := DecomposeFloat32(float32(math.Inf(-1))); d.Kind != MinusInf {
		t.Fatalf("float32 -inf: got %v", d.Kind)
	}
	if d := DecomposeFloat32(float32(math.NaN())); d.Kind != NaN {
		t.Fatalf("float32 NaN: got %v", d.Kind)
	}
	if d := DecomposeFloat32(float32(math.Copysign(0, -1))); d.Kind != MinusZero {
		t.Fatalf("float32 -0: got %v", d.Kind)
	}
}

func TestFloat64RoundTripAndShortest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200_000; i++ {
		v := math.Float64frombits(rng.Uint64())
		if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
			continue
		}
		d := DecomposeFloat64(v)
		got, err := strconv.ParseFloat(d.String(), 64)
		if err != nil {
			t.Fatalf("parse %s: %v", d, err)
		}
		if math.Float64bits(got) != math.Float64bits(v) {
			t.Fatalf("round trip %v: %s parsed as %v", v, d, got)
		}
		if d.Digits() > MaxDigits64 {
			t.Fatalf("%v: %d digits", v, d.Digits())
		}
		if math.Abs(v) >= 0x1p-1022 {
			if want := shortestDigits(strconv.FormatFloat(v, 'e', -1, 64)); d.Digits() > want {
				t.Fatalf("%v: %s has %d digits, shortest has %d", v, d, d.Digits(), want)
			}
		}
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200_000; i++ {
		v := math.Float32frombits(rng.Uint32())
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || v == 0 {
			continue
		}
		d := DecomposeFloat32(v)
		got, err := strconv.ParseFloat(d.String(), 32)
		if err != nil {
			t.Fatalf("parse %s: %v", d, err)
		}
		if math.Float32bits(float32(got)) != math.Float32bits(v) {
			t.Fatalf("round trip %v: %s parsed as %v", v, d, got)
		}
		if d.Digits() > MaxDigits32 {
			t.Fatalf("%v: %d digits", v, d.Digits())
		}
	}
}

func TestDigitCount(t *testing.T) {
	for n := 0; n < len(pow10); n++ {
		if got := DigitCount(pow10[n]); got != n+1 {
			t.Fatalf("DigitCount(10^%d) = %d", n, got)
		}
		if n > 0 {
			if got := DigitCount(pow10[n] - 1); got != n {
				t.Fatalf("DigitCount(10^%d-1) = %d", n, got)
			}
		}
	}
	if got := DigitCount(0); got != 1 {
		t.Fatalf("DigitCount(0) = %d", got)
	}
	if got := DigitCount(math.MaxUint64); got != 20 {
		t.Fatalf("DigitCount(max) = %d", got)
	}
}

func TestDiv10(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 10_000; i++ {
		x := rng.Uint64()
		if div10(x) != x/10 {
			t.Fatalf("div10(%d)", x)
		}
	}
	if div10(math.MaxUint64) != math.MaxUint64/10 {
		t.Fatalf("div10(max)")
	}
}

func shortestDigits(s string) int {
	mant, _, _ := strings.Cut(s, "e")
	mant = strings.TrimPrefix(mant, "-")
	mant = strings.Replace(mant, ".", "", 1)
	mant = strings.TrimLeft(mant, "0")
	mant = strings.TrimRight(mant, "0")
	if mant == "" {
		return 1
	}
	return len(mant)
}

func BenchmarkDecomposeFloat64(b *testing.B) {
	values := []float64{0.1, 1.0 / 3, 123456.789, 6.02214076e23, 1e-300}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = DecomposeFloat64(values[i%len(values)])
	}
}

func TestDecimalInverse(t *testing.T) {
	for _, v := range []float64{0.1, -2.5e-300, math.MaxFloat64, math.SmallestNonzeroFloat64, 3} {
		if got := DecomposeFloat64(v).Float64(); got != v {
			t.Fatalf("%v: got %v", v, got)
		}
	}
	if got := DecomposeFloat32(0.1).Float32(); got != float32(0.1) {
		t.Fatalf("float32: got %v", got)
	}
	if got := DecomposeFloat64(math.Copysign(0, -1)).Float64(); !math.Signbit(got) || got != 0 {
		t.Fatalf("minus zero: got %v", got)
	}
	if !math.IsNaN(DecomposeFloat64(math.NaN()).Float64()) {
		t.Fatalf("NaN lost")
	}
}
