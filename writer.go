package fxcodec

import (
	"encoding/binary"
	"maps"
	"math"
	"slices"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/starfederation/fxcodec/fault"
	"github.com/starfederation/fxcodec/pool"
)

const defaultWriterCapacity = 1024

// Writer appends a tagged buffer: header, fields, end marker. The backing
// array comes from the registry and goes back on Release. A Writer must not be
// shared between goroutines.
//
// Put methods record the first error and turn into no-ops afterwards; Err and
// PutEndMarker report it.
type Writer struct {
	registry *pool.Registry
	buf      []byte
	err      error
}

// NewWriter returns a Writer whose buffer holds at least sizeHint bytes
// before growing. registry may be nil.
func NewWriter(registry *pool.Registry, sizeHint int) *Writer {
	if sizeHint <= 0 {
		sizeHint = defaultWriterCapacity
	}
	w := &Writer{registry: registry}
	buf, err := pool.Get[byte](registry, pool.WriterBytes, sizeHint)
	if err != nil {
		w.err = err
		return w
	}
	w.buf = buf[:0]
	return w
}

// Bytes returns the encoded bytes. The slice is only valid until the next
// Put, Reset or Release.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first error recorded by a Put method.
func (w *Writer) Err() error { return w.err }

// Reset empties the buffer and clears the error, keeping the capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.err = nil
}

// Detach hands the encoded bytes to the caller, who then owns them, and
// leaves the Writer empty.
func (w *Writer) Detach() []byte {
	b := w.buf
	w.buf = nil
	return b
}

// Release returns the buffer to the pool. The Writer and any slice obtained
// from Bytes must not be used afterwards.
func (w *Writer) Release() {
	if w.buf != nil {
		pool.Release(w.registry, pool.WriterBytes, w.buf)
		w.buf = nil
	}
}

// grow makes room for n more bytes and reports whether it could.
func (w *Writer) grow(n int) bool {
	need := len(w.buf) + n
	if n < 0 || need < len(w.buf) {
		w.fail(fault.InvalidArgument("cannot grow buffer of %d bytes by %d", len(w.buf), n))
		return false
	}
	if need <= cap(w.buf) {
		return true
	}
	newCap := max(2*cap(w.buf), need, defaultWriterCapacity)
	nb, err := pool.Get[byte](w.registry, pool.WriterBytes, newCap)
	if err != nil {
		w.fail(err)
		return false
	}
	nb = nb[:len(w.buf)]
	copy(nb, w.buf)
	if w.buf != nil {
		pool.Release(w.registry, pool.WriterBytes, w.buf)
	}
	w.buf = nb
	return true
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// PutHeaderInfo writes the buffer preamble. It must be the first call.
func (w *Writer) PutHeaderInfo(producer string) {
	if w.err != nil {
		return
	}
	if !utf8.ValidString(producer) {
		w.fail(fault.InvalidArgument("producer %q is not valid UTF-8", producer))
		return
	}
	if !w.grow(len(HeaderMagic) + 3 + 4 + len(producer)) {
		return
	}
	w.buf = append(w.buf, HeaderMagic[:]...)
	w.buf = append(w.buf, VersionMajor, VersionMinor, VersionMicro)
	w.appendString(producer)
}

// PutEndMarker terminates the field sequence and returns the first error
// recorded while writing.
func (w *Writer) PutEndMarker() error {
	if w.err != nil {
		return w.err
	}
	w.putFieldHeader("", TypeEndMarker, 1)
	w.buf = append(w.buf, EndMarkerByte)
	return w.err
}

// putFieldHeader writes the header of a field and reserves room for a
// payload of payloadLen bytes.
func (w *Writer) putFieldHeader(name string, t DataType, payloadLen int) bool {
	if w.err != nil {
		return false
	}
	if !utf8.ValidString(name) {
		w.fail(fault.InvalidArgument("field name %q is not valid UTF-8", name))
		return false
	}
	if !norm.NFC.IsNormalString(name) {
		name = norm.NFC.String(name)
	}
	if len(name) > math.MaxInt32 {
		w.fail(fault.InvalidArgument("field name of %d bytes", len(name)))
		return false
	}
	if !w.grow(4 + len(name) + 1 + payloadLen) {
		return false
	}
	w.appendString(name)
	w.buf = append(w.buf, byte(t))
	return true
}

func (w *Writer) appendInt32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) appendString(s string) {
	w.appendInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) checkCount(name string, n int) bool {
	if n > math.MaxInt32 {
		w.fail(fault.InvalidArgument("field %q: %d elements exceed the format limit", name, n))
		return false
	}
	return true
}

// PutBool writes a BOOL field.
func (w *Writer) PutBool(name string, v bool) {
	if w.putFieldHeader(name, TypeBool, 1) {
		w.buf = append(w.buf, boolByte(v))
	}
}

// PutByte writes a BYTE field.
func (w *Writer) PutByte(name string, v int8) {
	if w.putFieldHeader(name, TypeByte, 1) {
		w.buf = append(w.buf, byte(v))
	}
}

// PutShort writes a SHORT field.
func (w *Writer) PutShort(name string, v int16) {
	if w.putFieldHeader(name, TypeShort, 2) {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	}
}

// PutInt writes an INT field.
func (w *Writer) PutInt(name string, v int32) {
	if w.putFieldHeader(name, TypeInt, 4) {
		w.appendInt32(v)
	}
}

// PutLong writes a LONG field.
func (w *Writer) PutLong(name string, v int64) {
	if w.putFieldHeader(name, TypeLong, 8) {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
	}
}

// PutFloat writes a FLOAT field.
func (w *Writer) PutFloat(name string, v float32) {
	if w.putFieldHeader(name, TypeFloat, 4) {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	}
}

// PutDouble writes a DOUBLE field.
func (w *Writer) PutDouble(name string, v float64) {
	if w.putFieldHeader(name, TypeDouble, 8) {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
	}
}

// PutString writes a STRING field.
func (w *Writer) PutString(name, v string) {
	if !w.checkCount(name, len(v)) {
		return
	}
	if w.putFieldHeader(name, TypeString, 4+len(v)) {
		w.appendString(v)
	}
}

// PutBoolArray writes a BOOL_ARRAY field.
func (w *Writer) PutBoolArray(name string, v []bool) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeBoolArray, 4+len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, b := range v {
		w.buf = append(w.buf, boolByte(b))
	}
}

// PutByteArray writes a BYTE_ARRAY field.
func (w *Writer) PutByteArray(name string, v []byte) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeByteArray, 4+len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// PutShortArray writes a SHORT_ARRAY field.
func (w *Writer) PutShortArray(name string, v []int16) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeShortArray, 4+2*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(x))
	}
}

// PutIntArray writes an INT_ARRAY field.
func (w *Writer) PutIntArray(name string, v []int32) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeIntArray, 4+4*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.appendInt32(x)
	}
}

// PutLongArray writes a LONG_ARRAY field.
func (w *Writer) PutLongArray(name string, v []int64) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeLongArray, 4+8*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(x))
	}
}

// PutFloatArray writes a FLOAT_ARRAY field.
func (w *Writer) PutFloatArray(name string, v []float32) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeFloatArray, 4+4*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(x))
	}
}

// PutDoubleArray writes a DOUBLE_ARRAY field.
func (w *Writer) PutDoubleArray(name string, v []float64) {
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeDoubleArray, 4+8*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(x))
	}
}

// PutNumberArray writes v as FLOAT_ARRAY when asFloat32 is set, halving the
// payload at the cost of precision, and as DOUBLE_ARRAY otherwise. Readers
// get float64 values back from DoubleArray either way.
func (w *Writer) PutNumberArray(name string, v []float64, asFloat32 bool) {
	if !asFloat32 {
		w.PutDoubleArray(name, v)
		return
	}
	if !w.checkCount(name, len(v)) || !w.putFieldHeader(name, TypeFloatArray, 4+4*len(v)) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, x := range v {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(x)))
	}
}

// PutStringArray writes a STRING_ARRAY field.
func (w *Writer) PutStringArray(name string, v []string) {
	size := 4
	for _, s := range v {
		size += 4 + len(s)
	}
	if !w.checkCount(name, len(v)) || !w.checkCount(name, size) || !w.putFieldHeader(name, TypeStringArray, size) {
		return
	}
	w.appendInt32(int32(len(v)))
	for _, s := range v {
		w.appendString(s)
	}
}

// PutStringMap writes a MAP field with string keys, sorted by key.
func (w *Writer) PutStringMap(name string, m map[string]string) {
	size := 6
	for k, v := range m {
		size += 8 + len(k) + len(v)
	}
	if !w.checkCount(name, size) || !w.putFieldHeader(name, TypeMap, size) {
		return
	}
	w.appendInt32(int32(len(m)))
	w.buf = append(w.buf, byte(TypeString), byte(TypeString))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.appendString(k)
		w.appendString(m[k])
	}
}

// PutIntKeyMap writes a MAP field with int keys, sorted by key.
func (w *Writer) PutIntKeyMap(name string, m map[int32]string) {
	size := 6
	for _, v := range m {
		size += 8 + len(v)
	}
	if !w.checkCount(name, size) || !w.putFieldHeader(name, TypeMap, size) {
		return
	}
	w.appendInt32(int32(len(m)))
	w.buf = append(w.buf, byte(TypeInt), byte(TypeString))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.appendInt32(k)
		w.appendString(m[k])
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
