package fxcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/starfederation/fxcodec/fault"
)

// Reader walks a tagged buffer with a monotonic cursor. Call CheckHeaderInfo
// once, then FieldHeader until it reports the end, reading each payload with
// the getter matching the header type or skipping it with Swallow. A payload
// left unread is swallowed by the next FieldHeader call.
//
// A Reader must not be shared between goroutines.
type Reader struct {
	buf     []byte
	pos     int
	field   FieldHeader
	pending bool
	done    bool
}

// NewReader returns a Reader over b. The Reader does not copy b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Reset points the Reader at a new buffer.
func (r *Reader) Reset(b []byte) {
	*r = Reader{buf: b}
}

// Position returns the cursor offset.
func (r *Reader) Position() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Done reports whether the end marker has been read.
func (r *Reader) Done() bool { return r.done }

// Current returns the header of the field whose payload is next.
func (r *Reader) Current() (FieldHeader, bool) {
	return r.field, r.pending
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.buf)-r.pos {
		return nil, fault.Truncated("need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) readInt32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readLen reads a length prefix and checks that n elements of elemSize bytes
// are still available.
func (r *Reader) readLen(elemSize int) (int, error) {
	n, err := r.readInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d at offset %d", fault.ErrInputMismatch, n, r.pos-4)
	}
	if elemSize > 0 && int(n) > (len(r.buf)-r.pos)/elemSize {
		return 0, fault.Truncated("%d elements of %d bytes at offset %d, have %d bytes", n, elemSize, r.pos, len(r.buf)-r.pos)
	}
	return int(n), nil
}

func (r *Reader) readString() (string, error) {
	n, err := r.readLen(1)
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckHeaderInfo reads the buffer preamble.
func (r *Reader) CheckHeaderInfo() (HeaderInfo, error) {
	magic, err := r.take(len(HeaderMagic) + 3)
	if err != nil {
		return HeaderInfo{}, err
	}
	if !bytes.Equal(magic[:len(HeaderMagic)], HeaderMagic[:]) {
		return HeaderInfo{}, fmt.Errorf("%w: missing %s header magic", fault.ErrInputMismatch, HeaderMagic[:])
	}
	info := HeaderInfo{
		Major: magic[len(HeaderMagic)],
		Minor: magic[len(HeaderMagic)+1],
		Micro: magic[len(HeaderMagic)+2],
	}
	if info.Major != VersionMajor {
		return info, fmt.Errorf("%w: format version %d.%d.%d, reader supports %d.x", fault.ErrInputMismatch, info.Major, info.Minor, info.Micro, VersionMajor)
	}
	if info.Producer, err = r.readString(); err != nil {
		return info, err
	}
	return info, nil
}

// FieldHeader reads the next field header. It returns false once the end
// marker has been consumed.
func (r *Reader) FieldHeader() (FieldHeader, bool, error) {
	if r.done {
		return FieldHeader{}, false, nil
	}
	if r.pending {
		if err := r.Swallow(); err != nil {
			return FieldHeader{}, false, err
		}
	}
	name, err := r.readString()
	if err != nil {
		return FieldHeader{}, false, err
	}
	tag, err := r.readByte()
	if err != nil {
		return FieldHeader{}, false, err
	}
	t := DataType(tag)
	if !t.Valid() {
		return FieldHeader{}, false, fmt.Errorf("%w: field %q has unknown type tag 0x%02x", fault.ErrInputMismatch, name, tag)
	}
	if t == TypeEndMarker {
		b, err := r.readByte()
		if err != nil {
			return FieldHeader{}, false, err
		}
		if b != EndMarkerByte {
			return FieldHeader{}, false, fmt.Errorf("%w: bad end marker payload 0x%02x", fault.ErrInputMismatch, b)
		}
		r.done = true
		r.field = FieldHeader{}
		return FieldHeader{}, false, nil
	}
	r.field = FieldHeader{Name: name, Type: t}
	r.pending = true
	return r.field, true, nil
}

// Swallow skips the payload of the current field using only its type tag.
func (r *Reader) Swallow() error {
	if !r.pending {
		return nil
	}
	f := r.field
	var err error
	switch t := f.Type; {
	case t == TypeString:
		err = r.skipScalar(TypeString)
	case t == TypeStringArray:
		var n int
		if n, err = r.readLen(4); err == nil {
			for i := 0; i < n && err == nil; i++ {
				err = r.skipScalar(TypeString)
			}
		}
	case t.IsArray():
		var n int
		if n, err = r.readLen(t.Size()); err == nil {
			_, err = r.take(n * t.Size())
		}
	case t == TypeMap:
		err = r.skipMap()
	default:
		_, err = r.take(t.Size())
	}
	if err != nil {
		return err
	}
	r.pending = false
	if ce := Logger().Check(zap.DebugLevel, "swallowed field"); ce != nil {
		ce.Write(zap.String("field", f.Name), zap.Stringer("type", f.Type))
	}
	return nil
}

// skipScalar skips one STRING or fixed-width value.
func (r *Reader) skipScalar(t DataType) error {
	if t == TypeString {
		n, err := r.readLen(1)
		if err != nil {
			return err
		}
		_, err = r.take(n)
		return err
	}
	if t.IsArray() || t.Size() == 0 {
		return fmt.Errorf("%w: cannot skip element of type %s", fault.ErrInputMismatch, t)
	}
	_, err := r.take(t.Size())
	return err
}

func (r *Reader) skipMap() error {
	n, keyType, valueType, err := r.mapHeader()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := r.skipScalar(keyType); err != nil {
			return err
		}
		if err := r.skipScalar(valueType); err != nil {
			return err
		}
	}
	return nil
}

// mapHeader reads the entry count and entry types, then checks that n
// entries of at least two bytes each still fit.
func (r *Reader) mapHeader() (int, DataType, DataType, error) {
	hdr, err := r.take(6)
	if err != nil {
		return 0, 0, 0, err
	}
	n := int32(binary.LittleEndian.Uint32(hdr))
	if n < 0 {
		return 0, 0, 0, fmt.Errorf("%w: negative length %d at offset %d", fault.ErrInputMismatch, n, r.pos-6)
	}
	if int(n) > r.Remaining()/2 {
		return 0, 0, 0, fault.Truncated("%d map entries at offset %d, have %d bytes", n, r.pos, r.Remaining())
	}
	return int(n), DataType(hdr[4]), DataType(hdr[5]), nil
}

// MapTypes returns the key and value types of the pending MAP field without
// consuming its payload.
func (r *Reader) MapTypes() (key, value DataType, err error) {
	if !r.pending || r.field.Type != TypeMap {
		return 0, 0, &fault.MismatchError{Field: r.field.Name, Expected: TypeMap.String(), Actual: r.pendingType()}
	}
	if r.Remaining() < 6 {
		return 0, 0, fault.Truncated("map header at offset %d", r.pos)
	}
	return DataType(r.buf[r.pos+4]), DataType(r.buf[r.pos+5]), nil
}

// ArrayLen returns the element count of the pending array field without
// consuming its payload, so callers can size the destination up front.
func (r *Reader) ArrayLen() (int, error) {
	if !r.pending || !r.field.Type.IsArray() {
		return 0, &fault.MismatchError{Field: r.field.Name, Expected: "ARRAY", Actual: r.pendingType()}
	}
	if r.Remaining() < 4 {
		return 0, fault.Truncated("array length at offset %d", r.pos)
	}
	n := int32(binary.LittleEndian.Uint32(r.buf[r.pos:]))
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d at offset %d", fault.ErrInputMismatch, n, r.pos)
	}
	size := r.field.Type.Size()
	if r.field.Type == TypeStringArray {
		// each element carries at least its length prefix
		size = 4
	}
	if int(n) > (r.Remaining()-4)/size {
		return 0, fault.Truncated("%d elements at offset %d, have %d bytes", n, r.pos+4, r.Remaining()-4)
	}
	return int(n), nil
}

func (r *Reader) pendingType() string {
	if !r.pending {
		return "NONE"
	}
	return r.field.Type.String()
}

// expect checks the current field against t and consumes the pending state.
func (r *Reader) expect(t DataType) error {
	if !r.pending || r.field.Type != t {
		return &fault.MismatchError{Field: r.field.Name, Expected: t.String(), Actual: r.pendingType()}
	}
	r.pending = false
	return nil
}

func (r *Reader) scalar(t DataType) ([]byte, error) {
	if err := r.expect(t); err != nil {
		return nil, err
	}
	return r.take(t.Size())
}

// Bool reads a BOOL payload.
func (r *Reader) Bool() (bool, error) {
	b, err := r.scalar(TypeBool)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Byte reads a BYTE payload.
func (r *Reader) Byte() (int8, error) {
	b, err := r.scalar(TypeByte)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// Short reads a SHORT payload.
func (r *Reader) Short() (int16, error) {
	b, err := r.scalar(TypeShort)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

// Int reads an INT payload.
func (r *Reader) Int() (int32, error) {
	b, err := r.scalar(TypeInt)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Long reads a LONG payload.
func (r *Reader) Long() (int64, error) {
	b, err := r.scalar(TypeLong)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// Float reads a FLOAT payload.
func (r *Reader) Float() (float32, error) {
	b, err := r.scalar(TypeFloat)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// Double reads a DOUBLE payload.
func (r *Reader) Double() (float64, error) {
	b, err := r.scalar(TypeDouble)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// String reads a STRING payload.
func (r *Reader) String() (string, error) {
	if err := r.expect(TypeString); err != nil {
		return "", err
	}
	return r.readString()
}

// array checks the field type and returns the element count and payload.
func (r *Reader) array(t DataType) (int, []byte, error) {
	if err := r.expect(t); err != nil {
		return 0, nil, err
	}
	n, err := r.readLen(t.Size())
	if err != nil {
		return 0, nil, err
	}
	b, err := r.take(n * t.Size())
	return n, b, err
}

// BoolArray reads a BOOL_ARRAY payload into dst, reusing its capacity.
func (r *Reader) BoolArray(dst []bool) ([]bool, error) {
	n, b, err := r.array(TypeBoolArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = b[i] != 0
	}
	return dst, nil
}

// ByteArray reads a BYTE_ARRAY payload into dst, reusing its capacity.
func (r *Reader) ByteArray(dst []byte) ([]byte, error) {
	n, b, err := r.array(TypeByteArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	copy(dst, b)
	return dst, nil
}

// ShortArray reads a SHORT_ARRAY payload into dst, reusing its capacity.
func (r *Reader) ShortArray(dst []int16) ([]int16, error) {
	n, b, err := r.array(TypeShortArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return dst, nil
}

// IntArray reads an INT_ARRAY payload into dst, reusing its capacity.
func (r *Reader) IntArray(dst []int32) ([]int32, error) {
	n, b, err := r.array(TypeIntArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return dst, nil
}

// LongArray reads a LONG_ARRAY payload into dst, reusing its capacity.
func (r *Reader) LongArray(dst []int64) ([]int64, error) {
	n, b, err := r.array(TypeLongArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = int64(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return dst, nil
}

// FloatArray reads a FLOAT_ARRAY payload into dst, reusing its capacity.
func (r *Reader) FloatArray(dst []float32) ([]float32, error) {
	n, b, err := r.array(TypeFloatArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return dst, nil
}

// DoubleArray reads a DOUBLE_ARRAY payload into dst, reusing its capacity. A
// FLOAT_ARRAY field is accepted too and widened to float64.
func (r *Reader) DoubleArray(dst []float64) ([]float64, error) {
	if r.pending && r.field.Type == TypeFloatArray {
		n, b, err := r.array(TypeFloatArray)
		if err != nil {
			return dst[:0], err
		}
		dst = resize(dst, n)
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
		}
		return dst, nil
	}
	n, b, err := r.array(TypeDoubleArray)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return dst, nil
}

// StringArray reads a STRING_ARRAY payload into dst, reusing its capacity.
func (r *Reader) StringArray(dst []string) ([]string, error) {
	if err := r.expect(TypeStringArray); err != nil {
		return dst[:0], err
	}
	n, err := r.readLen(4)
	if err != nil {
		return dst[:0], err
	}
	dst = resize(dst, n)
	for i := range dst {
		if dst[i], err = r.readString(); err != nil {
			return dst[:i], err
		}
	}
	return dst, nil
}

// mapOf checks the entry types of the pending MAP field before consuming it,
// so a mismatch leaves the field pending.
func (r *Reader) mapOf(keyType DataType) (int, error) {
	kt, vt, err := r.MapTypes()
	if err != nil {
		return 0, err
	}
	if kt != keyType || vt != TypeString {
		return 0, &fault.MismatchError{
			Field:    r.field.Name,
			Expected: "MAP<" + keyType.String() + ",STRING>",
			Actual:   "MAP<" + kt.String() + "," + vt.String() + ">",
		}
	}
	if err := r.expect(TypeMap); err != nil {
		return 0, err
	}
	n, _, _, err := r.mapHeader()
	return n, err
}

// StringMap reads a MAP payload with string keys.
func (r *Reader) StringMap() (map[string]string, error) {
	n, err := r.mapOf(TypeString)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, err := r.readString()
		if err != nil {
			return m, err
		}
		if m[k], err = r.readString(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// IntKeyMap reads a MAP payload with int keys.
func (r *Reader) IntKeyMap() (map[int32]string, error) {
	n, err := r.mapOf(TypeInt)
	if err != nil {
		return nil, err
	}
	m := make(map[int32]string, n)
	for i := 0; i < n; i++ {
		k, err := r.readInt32()
		if err != nil {
			return m, err
		}
		if m[k], err = r.readString(); err != nil {
			return m, err
		}
	}
	return m, nil
}

func resize[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]T, n)
}
