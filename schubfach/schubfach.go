// Package schubfach decomposes IEEE-754 binary floating point values into the
// shortest decimal that rounds back to the same bits.
//
// The implementation follows Raffaello Giulietti, "The Schubfach way to render
// doubles" (2020). Only table lookups, 64x64->128 bit multiplication and shifts
// are used; there is no division on the hot path.
package schubfach

import (
	"math"
	"math/bits"
	"strconv"
)

// Kind classifies a decomposed value.
type Kind uint8

const (
	Normal Kind = iota
	PlusZero
	MinusZero
	PlusInf
	MinusInf
	NaN
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "NON_SPECIAL"
	case PlusZero:
		return "PLUS_ZERO"
	case MinusZero:
		return "MINUS_ZERO"
	case PlusInf:
		return "PLUS_INF"
	case MinusInf:
		return "MINUS_INF"
	case NaN:
		return "NAN"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Decimal is the decomposition of a floating point value.
//
// For Kind == Normal, Significand * 10^Exponent is the shortest decimal that
// rounds to the original value; Significand carries no trailing zeros. The
// other kinds leave Significand and Exponent zero.
type Decimal struct {
	Negative    bool
	Significand uint64
	Exponent    int
	Kind        Kind
}

// Digits returns the number of decimal digits in the significand.
func (d Decimal) Digits() int {
	return DigitCount(d.Significand)
}

// String renders d as <significand>e<exponent>, mainly for diagnostics.
func (d Decimal) String() string {
	if d.Kind != Normal {
		return d.Kind.String()
	}
	b := make([]byte, 0, 24)
	if d.Negative {
		b = append(b, '-')
	}
	b = strconv.AppendUint(b, d.Significand, 10)
	b = append(b, 'e')
	b = strconv.AppendInt(b, int64(d.Exponent), 10)
	return string(b)
}

// Float64 converts d back to the nearest float64. Use Float32 for a Decimal
// obtained from DecomposeFloat32.
func (d Decimal) Float64() float64 {
	return d.parse(64)
}

// Float32 converts d back to the nearest float32.
func (d Decimal) Float32() float32 {
	return float32(d.parse(32))
}

func (d Decimal) parse(bitSize int) float64 {
	switch d.Kind {
	case PlusZero:
		return 0
	case MinusZero:
		return math.Copysign(0, -1)
	case PlusInf:
		return math.Inf(1)
	case MinusInf:
		return math.Inf(-1)
	case NaN:
		return math.NaN()
	}
	v, _ := strconv.ParseFloat(d.String(), bitSize)
	return v
}

const (
	kMin = -324
	kMax = 292

	mask63 = 1<<63 - 1
	mask32 = 1<<32 - 1
)

// binary64
const (
	p64      = 53
	w64      = 11
	qMin64   = -1074
	cMin64   = 1 << (p64 - 1)
	bqMask64 = 1<<w64 - 1
	tMask64  = 1<<(p64-1) - 1
	cTiny64  = 3

	// MaxDigits64 is the maximum significand length for a float64.
	MaxDigits64 = 17
)

// binary32
const (
	p32      = 24
	w32      = 8
	qMin32   = -149
	cMin32   = 1 << (p32 - 1)
	bqMask32 = 1<<w32 - 1
	tMask32  = 1<<(p32-1) - 1
	cTiny32  = 8

	// MaxDigits32 is the maximum significand length for a float32.
	MaxDigits32 = 9
)

// DecomposeFloat64 returns the shortest decimal decomposition of v.
func DecomposeFloat64(v float64) Decimal {
	u := math.Float64bits(v)
	neg := u>>63 != 0
	t := u & tMask64
	bq := int(u>>(p64-1)) & bqMask64
	if bq < bqMask64 {
		if bq != 0 {
			// normal value, mq = -q
			mq := -qMin64 + 1 - bq
			c := cMin64 | t
			if 0 < mq && mq < p64 {
				f := c >> mq
				if f<<mq == c {
					return normal(neg, f, 0)
				}
			}
			s, e := toDecimal64(-mq, c, 0)
			return normal(neg, s, e)
		}
		if t != 0 {
			// subnormal value
			if t < cTiny64 {
				s, e := toDecimal64(qMin64, 10*t, -1)
				return normal(neg, s, e)
			}
			s, e := toDecimal64(qMin64, t, 0)
			return normal(neg, s, e)
		}
		if neg {
			return Decimal{Negative: true, Kind: MinusZero}
		}
		return Decimal{Kind: PlusZero}
	}
	if t != 0 {
		return Decimal{Kind: NaN}
	}
	if neg {
		return Decimal{Negative: true, Kind: MinusInf}
	}
	return Decimal{Kind: PlusInf}
}

// DecomposeFloat32 returns the shortest decimal decomposition of v, judged
// against float32 rounding.
func DecomposeFloat32(v float32) Decimal {
	u := math.Float32bits(v)
	neg := u>>31 != 0
	t := uint64(u & tMask32)
	bq := int(u>>(p32-1)) & bqMask32
	if bq < bqMask32 {
		if bq != 0 {
			mq := -qMin32 + 1 - bq
			c := cMin32 | t
			if 0 < mq && mq < p32 {
				f := c >> mq
				if f<<mq == c {
					return normal(neg, f, 0)
				}
			}
			s, e := toDecimal32(-mq, c, 0)
			return normal(neg, s, e)
		}
		if t != 0 {
			if t < cTiny32 {
				s, e := toDecimal32(qMin32, 10*t, -1)
				return normal(neg, s, e)
			}
			s, e := toDecimal32(qMin32, t, 0)
			return normal(neg, s, e)
		}
		if neg {
			return Decimal{Negative: true, Kind: MinusZero}
		}
		return Decimal{Kind: PlusZero}
	}
	if t != 0 {
		return Decimal{Kind: NaN}
	}
	if neg {
		return Decimal{Negative: true, Kind: MinusInf}
	}
	return Decimal{Kind: PlusInf}
}

func normal(neg bool, s uint64, e int) Decimal {
	for s != 0 {
		q := div10(s)
		if q*10 != s {
			break
		}
		s = q
		e++
	}
	return Decimal{Negative: neg, Significand: s, Exponent: e, Kind: Normal}
}

// toDecimal64 computes the decimal for c * 2^q.
func toDecimal64(q int, c uint64, dk int) (uint64, int) {
	out := c & 1
	cb := c << 2
	cbr := cb + 2
	var cbl uint64
	var k int
	if c != cMin64 || q == qMin64 {
		cbl = cb - 2
		k = flog10pow2(q)
	} else {
		// the lower boundary is closer at binade boundaries
		cbl = cb - 1
		k = flog10ThreeQuartersPow2(q)
	}
	h := q + flog2pow10(-k) + 2

	g1 := g[k-kMin][0]
	g0 := g[k-kMin][1]

	vb := rop64(g1, g0, cb<<h)
	vbl := rop64(g1, g0, cbl<<h)
	vbr := rop64(g1, g0, cbr<<h)

	s := vb >> 2
	if s >= 100 {
		// sp10 = 10 * floor(s / 10)
		hi, _ := bits.Mul64(s, 115_292_150_460_684_698<<4)
		sp10 := 10 * hi
		tp10 := sp10 + 10
		upin := vbl+out <= sp10<<2
		wpin := tp10<<2+out <= vbr
		if upin != wpin {
			if upin {
				return sp10, k
			}
			return tp10, k
		}
	}

	t := s + 1
	uin := vbl+out <= s<<2
	win := t<<2+out <= vbr
	if uin != win {
		if uin {
			return s, k + dk
		}
		return t, k + dk
	}
	cmp := int64(vb - (s+t)<<1)
	if cmp < 0 || cmp == 0 && s&1 == 0 {
		return s, k + dk
	}
	return t, k + dk
}

func toDecimal32(q int, c uint64, dk int) (uint64, int) {
	out := c & 1
	cb := c << 2
	cbr := cb + 2
	var cbl uint64
	var k int
	if c != cMin32 || q == qMin32 {
		cbl = cb - 2
		k = flog10pow2(q)
	} else {
		cbl = cb - 1
		k = flog10ThreeQuartersPow2(q)
	}
	h := q + flog2pow10(-k) + 33

	// float32 only needs the upper word of g
	gk := g[k-kMin][0] + 1

	vb := rop32(gk, cb<<h)
	vbl := rop32(gk, cbl<<h)
	vbr := rop32(gk, cbr<<h)

	s := vb >> 2
	if s >= 100 {
		sp10 := 10 * (s * 1_717_986_919 >> 34)
		tp10 := sp10 + 10
		upin := vbl+out <= sp10<<2
		wpin := tp10<<2+out <= vbr
		if upin != wpin {
			if upin {
				return sp10, k
			}
			return tp10, k
		}
	}

	t := s + 1
	uin := vbl+out <= s<<2
	win := t<<2+out <= vbr
	if uin != win {
		if uin {
			return s, k + dk
		}
		return t, k + dk
	}
	cmp := int64(vb - (s+t)<<1)
	if cmp < 0 || cmp == 0 && s&1 == 0 {
		return s, k + dk
	}
	return t, k + dk
}

// rop64 returns the round-to-odd top bits of g * cp / 2^127.
func rop64(g1, g0, cp uint64) uint64 {
	x1, _ := bits.Mul64(g0, cp)
	y1, y0 := bits.Mul64(g1, cp)
	z := y0>>1 + x1
	vbp := y1 + z>>63
	return vbp | (z&mask63+mask63)>>63
}

func rop32(gk, cp uint64) uint64 {
	x1, _ := bits.Mul64(gk, cp)
	vbp := x1 >> 31
	return vbp | (x1&mask32+mask32)>>32
}

// flog10pow2 returns floor(log10(2^e)) for |e| <= 5456721.
func flog10pow2(e int) int {
	return int(int64(e) * 661_971_961_083 >> 41)
}

// flog10ThreeQuartersPow2 returns floor(log10(3/4 * 2^e)) for |e| <= 2_114_297.
func flog10ThreeQuartersPow2(e int) int {
	return int((int64(e)*661_971_961_083 - 274_743_187_321) >> 41)
}

// flog2pow10 returns floor(log2(10^e)) for |e| <= 1233.
func flog2pow10(e int) int {
	return int(int64(e) * 1_741_647 >> 19)
}

// div10 returns x / 10 for any uint64.
func div10(x uint64) uint64 {
	hi, _ := bits.Mul64(x, 0xCCCC_CCCC_CCCC_CCCD)
	return hi >> 3
}

var pow10 = [...]uint64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
	10_000_000_000_000_000_000,
}

// Pow10 returns 10^n for 0 <= n <= 19.
func Pow10(n int) uint64 {
	return pow10[n]
}

// DigitCount returns the number of decimal digits of s; zero has one digit.
func DigitCount(s uint64) int {
	// 1233/4096 approximates log10(2)
	n := bits.Len64(s) * 1233 >> 12
	if n < len(pow10) && s >= pow10[n] {
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}
