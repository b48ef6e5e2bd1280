// Package numfmt renders floating point values as decimal strings in plain or
// exponential notation, using the shortest round-trip digits from schubfach.
package numfmt

import (
	"math/bits"
	"unicode/utf8"

	"github.com/starfederation/fxcodec/fault"
	"github.com/starfederation/fxcodec/schubfach"
)

const (
	// AllDigits selects every significant digit of the shortest decimal.
	AllDigits = -1

	// MaxPrecision is the largest fixed precision accepted by SetPrecision.
	MaxPrecision = 24

	// MaxMarkerLen is the longest exponent marker in bytes.
	MaxMarkerLen = 5

	// DefaultPlainThreshold is the largest decimal exponent rendered in plain
	// notation.
	DefaultPlainThreshold = 7

	// MaxPlainThreshold bounds SetPlainThreshold.
	MaxPlainThreshold = 24

	// maxLeadingFraction bounds the fraction length of a plain rendering of a
	// value below one in AllDigits mode. Longer renderings use exponential
	// notation instead.
	maxLeadingFraction = 24

	// MaxLength is the longest output Append produces for one value.
	MaxLength = 1 + MaxPlainThreshold + 1 + utf8.UTFMax + MaxPrecision

	// digits of the normalised significand
	width = schubfach.MaxDigits64

	mask28 = 1<<28 - 1
)

// roundOffset[n] = 5 * 10^(16-n) rounds a 17 digit significand half up at n
// significant digits.
var roundOffset = [width]uint64{
	50_000_000_000_000_000,
	5_000_000_000_000_000,
	500_000_000_000_000,
	50_000_000_000_000,
	5_000_000_000_000,
	500_000_000_000,
	50_000_000_000,
	5_000_000_000,
	500_000_000,
	50_000_000,
	5_000_000,
	500_000,
	50_000,
	5_000,
	500,
	50,
	5,
}

// Formatter holds rendering options and a scratch buffer reused across
// calls. A Formatter must not be used from several goroutines at once.
type Formatter struct {
	precision   int
	exponential bool
	threshold   int
	separator   []byte
	marker      []byte

	buf    []byte
	digits [width]byte
}

// New returns a Formatter printing all significant digits in plain notation
// with "." as decimal separator and "E" as exponent marker.
func New() *Formatter {
	return &Formatter{
		precision: AllDigits,
		threshold: DefaultPlainThreshold,
		separator: []byte{'.'},
		marker:    []byte{'E'},
		buf:       make([]byte, 0, MaxLength),
	}
}

// Precision returns the number of fraction digits or AllDigits.
func (f *Formatter) Precision() int { return f.precision }

// Exponential reports whether exponential notation is forced.
func (f *Formatter) Exponential() bool { return f.exponential }

// PlainThreshold returns the largest exponent rendered in plain notation.
func (f *Formatter) PlainThreshold() int { return f.threshold }

// Separator returns the decimal separator.
func (f *Formatter) Separator() string { return string(f.separator) }

// Marker returns the exponent marker.
func (f *Formatter) Marker() string { return string(f.marker) }

// SetPrecision sets the number of digits after the decimal separator, or
// AllDigits for the shortest round-trip rendering.
func (f *Formatter) SetPrecision(p int) error {
	if p != AllDigits && (p < 0 || p > MaxPrecision) {
		return fault.InvalidArgument("precision %d outside [0, %d]", p, MaxPrecision)
	}
	f.precision = p
	return nil
}

// SetExponential forces exponential notation for every value.
func (f *Formatter) SetExponential(on bool) {
	f.exponential = on
}

// SetPlainThreshold sets the largest decimal exponent still rendered in plain
// notation.
func (f *Formatter) SetPlainThreshold(n int) error {
	if n < 0 || n > MaxPlainThreshold {
		return fault.InvalidArgument("plain threshold %d outside [0, %d]", n, MaxPlainThreshold)
	}
	f.threshold = n
	return nil
}

// SetSymbols sets the decimal separator and the exponent marker. The
// separator must be a single UTF-8 character and the marker 1 to
// MaxMarkerLen bytes.
func (f *Formatter) SetSymbols(separator, marker string) error {
	if utf8.RuneCountInString(separator) != 1 || !utf8.ValidString(separator) {
		return fault.InvalidArgument("decimal separator %q must be one character", separator)
	}
	if len(marker) == 0 || len(marker) > MaxMarkerLen {
		return fault.InvalidArgument("exponent marker %q must be 1 to %d bytes", marker, MaxMarkerLen)
	}
	f.separator = append(f.separator[:0], separator...)
	f.marker = append(f.marker[:0], marker...)
	return nil
}

// Format returns the decimal rendering of v.
func (f *Formatter) Format(v float64) string {
	f.buf = f.Append(f.buf[:0], v)
	return string(f.buf)
}

// FormatFloat32 returns the decimal rendering of v using float32 digits.
func (f *Formatter) FormatFloat32(v float32) string {
	f.buf = f.AppendFloat32(f.buf[:0], v)
	return string(f.buf)
}

// Append appends the rendering of v to dst.
func (f *Formatter) Append(dst []byte, v float64) []byte {
	return f.AppendDecimal(dst, schubfach.DecomposeFloat64(v))
}

// AppendFloat32 appends the rendering of v to dst.
func (f *Formatter) AppendFloat32(dst []byte, v float32) []byte {
	return f.AppendDecimal(dst, schubfach.DecomposeFloat32(v))
}

// AppendDecimal appends the rendering of an already decomposed value.
func (f *Formatter) AppendDecimal(dst []byte, d schubfach.Decimal) []byte {
	switch d.Kind {
	case schubfach.PlusInf:
		return append(dst, "+inf"...)
	case schubfach.MinusInf:
		return append(dst, "-inf"...)
	case schubfach.NaN:
		return append(dst, "NaN"...)
	case schubfach.PlusZero, schubfach.MinusZero:
		return f.appendZero(dst)
	}
	if d.Negative {
		dst = append(dst, '-')
	}

	// value = 0.m * 10^e with m normalised to 17 digits
	n := d.Digits()
	m := d.Significand * schubfach.Pow10(width-n)
	e := d.Exponent + n

	if f.exponential || e-1 > f.threshold {
		if f.precision != AllDigits {
			m, e = roundAt(m, e, 1+f.precision)
		}
		return f.appendExponential(dst, m, e, n)
	}
	if f.precision != AllDigits {
		m, e = roundAt(m, e, e+f.precision)
		if e-1 > f.threshold {
			return f.appendExponential(dst, m, e, n)
		}
	}
	if e > 0 {
		return f.appendPlain(dst, m, e, n)
	}
	if f.precision == AllDigits && n-e > maxLeadingFraction {
		return f.appendExponential(dst, m, e, n)
	}
	return f.appendLeadingZeros(dst, m, e, n)
}

func (f *Formatter) appendZero(dst []byte) []byte {
	dst = append(dst, '0')
	if f.precision > 0 {
		dst = append(dst, f.separator...)
		for i := 0; i < f.precision; i++ {
			dst = append(dst, '0')
		}
	}
	if f.exponential {
		dst = append(dst, f.marker...)
		dst = append(dst, '0')
	}
	return dst
}

func (f *Formatter) appendExponential(dst []byte, m uint64, e, n int) []byte {
	f.extract(m)
	dst = append(dst, f.digits[0])
	count := f.precision
	if count == AllDigits {
		count = n - 1
	}
	if count > 0 {
		dst = append(dst, f.separator...)
		dst = f.appendDigits(dst, 1, count)
	}
	dst = append(dst, f.marker...)
	return appendExponent(dst, e-1)
}

func (f *Formatter) appendPlain(dst []byte, m uint64, e, n int) []byte {
	f.extract(m)
	dst = f.appendDigits(dst, 0, e)
	frac := f.precision
	if frac == AllDigits {
		frac = n - e
	}
	if frac > 0 {
		dst = append(dst, f.separator...)
		dst = f.appendDigits(dst, e, frac)
	}
	return dst
}

func (f *Formatter) appendLeadingZeros(dst []byte, m uint64, e, n int) []byte {
	f.extract(m)
	dst = append(dst, '0')
	frac := f.precision
	if frac == AllDigits {
		frac = n - e
	}
	if frac == 0 {
		return dst
	}
	dst = append(dst, f.separator...)
	zeros := min(-e, frac)
	for i := 0; i < zeros; i++ {
		dst = append(dst, '0')
	}
	return f.appendDigits(dst, 0, frac-zeros)
}

// appendDigits appends count digits starting at index from; positions past
// the significand are zeros.
func (f *Formatter) appendDigits(dst []byte, from, count int) []byte {
	for i := from; i < from+count; i++ {
		if i < width {
			dst = append(dst, f.digits[i])
		} else {
			dst = append(dst, '0')
		}
	}
	return dst
}

// extract writes the 17 digits of m < 10^17 into f.digits.
func (f *Formatter) extract(m uint64) {
	// hm = floor(m / 10^8)
	hm, _ := bits.Mul64(m, 193_428_131_138_340_668)
	hm >>= 20
	l := m - 100_000_000*hm
	h := hm * 1_441_151_881 >> 57
	mid := hm - 100_000_000*h
	f.digits[0] = '0' + byte(h)
	put8Digits(f.digits[1:9], mid)
	put8Digits(f.digits[9:17], l)
}

// put8Digits writes the 8 digits of a < 10^8, leftmost first, by iterating
// a 28-bit fixed point fraction.
func put8Digits(dst []byte, a uint64) {
	y, _ := bits.Mul64((a+1)<<28, 193_428_131_138_340_668)
	y = y>>20 - 1
	for i := range 8 {
		t := 10 * y
		dst[i] = '0' + byte(t>>28)
		y = t & mask28
	}
}

// roundAt rounds m half up at sd significant digits.
func roundAt(m uint64, e, sd int) (uint64, int) {
	switch {
	case sd >= width:
		return m, e
	case sd < 0:
		return 0, e
	}
	m += roundOffset[sd]
	if m >= schubfach.Pow10(width) {
		return schubfach.Pow10(width - 1), e + 1
	}
	return m, e
}

func appendExponent(dst []byte, e int) []byte {
	if e < 0 {
		dst = append(dst, '-')
		e = -e
	}
	if e < 10 {
		return append(dst, '0'+byte(e))
	}
	if e >= 100 {
		// e / 100 for e < 1000
		d := e * 1_311 >> 17
		dst = append(dst, '0'+byte(d))
		e -= 100 * d
	}
	// e / 10 for e < 100
	d := e * 103 >> 10
	return append(dst, '0'+byte(d), '0'+byte(e-10*d))
}
