package fxcodec

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/delaneyj/toolbelt/bytebufferpool"
	"github.com/minio/simdjson-go"

	"github.com/starfederation/fxcodec/fault"
	"github.com/starfederation/fxcodec/numfmt"
)

// FromJSON parses a flat JSON object with simdjson-go and writes each member
// as a tagged field, in document order. Integers become LONG, other numbers
// DOUBLE; homogeneous arrays become the matching array type and objects with
// string values become MAP fields. Null members are skipped.
//
// FromJSON writes fields only: the caller owns the header and end marker.
func FromJSON(data []byte, w *Writer) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fault.InvalidArgument("json input is empty")
	}
	if trimmed[0] != '{' {
		return fault.InvalidArgument("json root must be an object")
	}
	if !simdjson.SupportedCPU() {
		return fmt.Errorf("json: simdjson is not supported on this CPU")
	}
	parsed, err := simdjson.Parse(trimmed, nil)
	if err != nil {
		return err
	}
	it := parsed.Iter()
	if it.Advance() != simdjson.TypeRoot {
		return fmt.Errorf("json root not found")
	}
	typ, root, err := it.Root(nil)
	if err != nil {
		return err
	}
	if typ != simdjson.TypeObject {
		return fault.InvalidArgument("json root must be an object, got %v", typ)
	}
	obj, err := root.Object(nil)
	if err != nil {
		return err
	}
	var fieldErr error
	err = obj.ForEach(func(key []byte, elem simdjson.Iter) {
		if fieldErr != nil {
			return
		}
		fieldErr = putJSONMember(w, string(key), elem.Type(), &elem)
	}, nil)
	if err != nil {
		return err
	}
	if fieldErr != nil {
		return fieldErr
	}
	return w.Err()
}

func putJSONMember(w *Writer, name string, typ simdjson.Type, it *simdjson.Iter) error {
	switch typ {
	case simdjson.TypeNull:
		return nil
	case simdjson.TypeBool:
		v, err := it.Bool()
		if err != nil {
			return err
		}
		w.PutBool(name, v)
	case simdjson.TypeInt:
		v, err := it.Int()
		if err != nil {
			return err
		}
		w.PutLong(name, v)
	case simdjson.TypeUint:
		v, err := it.Uint()
		if err != nil {
			return err
		}
		if v > math.MaxInt64 {
			w.PutDouble(name, float64(v))
		} else {
			w.PutLong(name, int64(v))
		}
	case simdjson.TypeFloat:
		v, err := it.Float()
		if err != nil {
			return err
		}
		w.PutDouble(name, v)
	case simdjson.TypeString:
		v, err := it.String()
		if err != nil {
			return err
		}
		w.PutString(name, v)
	case simdjson.TypeArray:
		arr, err := it.Array(nil)
		if err != nil {
			return err
		}
		return putJSONArray(w, name, arr)
	case simdjson.TypeObject:
		obj, err := it.Object(nil)
		if err != nil {
			return err
		}
		return putJSONObject(w, name, obj)
	default:
		return fault.InvalidArgument("json member %q: unsupported type %v", name, typ)
	}
	return w.Err()
}

// putJSONArray picks the narrowest array type that holds every element:
// all bools, all integers, all numbers or all strings. An empty array is
// written as DOUBLE_ARRAY.
func putJSONArray(w *Writer, name string, arr *simdjson.Array) error {
	sc := getJSONScratch()
	defer putJSONScratch(sc)

	elem := noElem
	iter := arr.Iter()
	for {
		t := iter.Advance()
		if t == simdjson.TypeNone {
			break
		}
		var err error
		switch t {
		case simdjson.TypeBool:
			elem, err = mergeElem(name, elem, TypeBool)
			if err == nil {
				var v bool
				v, err = iter.Bool()
				sc.bools = append(sc.bools, v)
			}
		case simdjson.TypeInt:
			elem, err = mergeElem(name, elem, TypeLong)
			if err == nil {
				var v int64
				v, err = iter.Int()
				sc.longs = append(sc.longs, v)
				sc.numbers = append(sc.numbers, float64(v))
			}
		case simdjson.TypeUint:
			var v uint64
			if v, err = iter.Uint(); err == nil {
				next := TypeLong
				if v > math.MaxInt64 {
					next = TypeDouble
				}
				elem, err = mergeElem(name, elem, next)
				sc.longs = append(sc.longs, int64(v))
				sc.numbers = append(sc.numbers, float64(v))
			}
		case simdjson.TypeFloat:
			elem, err = mergeElem(name, elem, TypeDouble)
			if err == nil {
				var v float64
				v, err = iter.Float()
				sc.numbers = append(sc.numbers, v)
			}
		case simdjson.TypeString:
			elem, err = mergeElem(name, elem, TypeString)
			if err == nil {
				var v string
				v, err = iter.String()
				sc.strings = append(sc.strings, v)
			}
		default:
			err = fault.InvalidArgument("json array %q: unsupported element type %v", name, t)
		}
		if err != nil {
			return err
		}
	}

	switch elem {
	case TypeBool:
		w.PutBoolArray(name, sc.bools)
	case TypeLong:
		w.PutLongArray(name, sc.longs)
	case TypeString:
		w.PutStringArray(name, sc.strings)
	default:
		w.PutDoubleArray(name, sc.numbers)
	}
	return w.Err()
}

const noElem DataType = 0xFF

// mergeElem widens LONG to DOUBLE and rejects any other mix.
func mergeElem(name string, have, next DataType) (DataType, error) {
	switch {
	case have == noElem || have == next:
		return next, nil
	case have == TypeLong && next == TypeDouble, have == TypeDouble && next == TypeLong:
		return TypeDouble, nil
	default:
		return have, fault.InvalidArgument("json array %q mixes %s and %s elements", name, have, next)
	}
}

func putJSONObject(w *Writer, name string, obj *simdjson.Object) error {
	m := make(map[string]string)
	var err error
	ferr := obj.ForEach(func(key []byte, elem simdjson.Iter) {
		if err != nil {
			return
		}
		if elem.Type() != simdjson.TypeString {
			err = fault.InvalidArgument("json object %q: member %q is %v, only strings are supported", name, key, elem.Type())
			return
		}
		var v string
		if v, err = elem.String(); err == nil {
			m[string(key)] = v
		}
	}, nil)
	if ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	w.PutStringMap(name, m)
	return w.Err()
}

// ToJSON renders a tagged buffer as a JSON object keyed by field name.
// Floating point values go through the numeric formatter; NaN and the
// infinities become null.
func ToJSON(b []byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	r := readerPool.Get()
	r.Reset(b)
	defer func() {
		r.Reset(nil)
		readerPool.Put(r)
	}()

	if _, err := r.CheckHeaderInfo(); err != nil {
		return nil, err
	}
	js := newJSONWriter(buf)
	defer js.release()

	buf.WriteByte('{')
	first := true
	for {
		f, ok, err := r.FieldHeader()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONStringBytes(buf, []byte(f.Name))
		buf.WriteByte(':')
		if err := js.field(r, f); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	out := append([]byte{}, buf.Bytes()...)
	return out, nil
}

type jsonWriter struct {
	buf     *bytebufferpool.ByteBuffer
	nf      *numfmt.Formatter
	scratch []byte
	sc      *jsonScratch
}

func newJSONWriter(buf *bytebufferpool.ByteBuffer) *jsonWriter {
	return &jsonWriter{
		buf: buf,
		nf:  jsonFormatterPool.Get(),
		sc:  getJSONScratch(),
	}
}

func (js *jsonWriter) release() {
	jsonFormatterPool.Put(js.nf)
	putJSONScratch(js.sc)
}

func (js *jsonWriter) field(r *Reader, f FieldHeader) error {
	sc := js.sc
	switch f.Type {
	case TypeBool:
		v, err := r.Bool()
		if err != nil {
			return err
		}
		js.writeBool(v)
	case TypeByte:
		v, err := r.Byte()
		if err != nil {
			return err
		}
		js.writeInt(int64(v))
	case TypeShort:
		v, err := r.Short()
		if err != nil {
			return err
		}
		js.writeInt(int64(v))
	case TypeInt:
		v, err := r.Int()
		if err != nil {
			return err
		}
		js.writeInt(int64(v))
	case TypeLong:
		v, err := r.Long()
		if err != nil {
			return err
		}
		js.writeInt(v)
	case TypeFloat:
		v, err := r.Float()
		if err != nil {
			return err
		}
		js.writeFloat32(v)
	case TypeDouble:
		v, err := r.Double()
		if err != nil {
			return err
		}
		js.writeFloat64(v)
	case TypeString:
		v, err := r.String()
		if err != nil {
			return err
		}
		writeJSONStringBytes(js.buf, []byte(v))
	case TypeBoolArray:
		v, err := r.BoolArray(sc.bools)
		sc.bools = v[:0]
		if err != nil {
			return err
		}
		writeJSONArray(js, v, (*jsonWriter).writeBool)
	case TypeByteArray:
		v, err := r.ByteArray(sc.raw)
		sc.raw = v[:0]
		if err != nil {
			return err
		}
		writeJSONArray(js, v, func(js *jsonWriter, b byte) { js.writeInt(int64(int8(b))) })
	case TypeShortArray:
		v, err := r.ShortArray(nil)
		if err != nil {
			return err
		}
		writeJSONArray(js, v, func(js *jsonWriter, x int16) { js.writeInt(int64(x)) })
	case TypeIntArray:
		v, err := r.IntArray(nil)
		if err != nil {
			return err
		}
		writeJSONArray(js, v, func(js *jsonWriter, x int32) { js.writeInt(int64(x)) })
	case TypeLongArray:
		v, err := r.LongArray(sc.longs)
		sc.longs = v[:0]
		if err != nil {
			return err
		}
		writeJSONArray(js, v, (*jsonWriter).writeInt)
	case TypeFloatArray:
		v, err := r.FloatArray(nil)
		if err != nil {
			return err
		}
		writeJSONArray(js, v, (*jsonWriter).writeFloat32)
	case TypeDoubleArray:
		v, err := r.DoubleArray(sc.numbers)
		sc.numbers = v[:0]
		if err != nil {
			return err
		}
		writeJSONArray(js, v, (*jsonWriter).writeFloat64)
	case TypeStringArray:
		v, err := r.StringArray(sc.strings)
		sc.strings = v[:0]
		if err != nil {
			return err
		}
		writeJSONArray(js, v, func(js *jsonWriter, s string) { writeJSONStringBytes(js.buf, []byte(s)) })
	case TypeMap:
		return js.mapField(r)
	default:
		return fmt.Errorf("%w: field %q has type %s", fault.ErrInputMismatch, f.Name, f.Type)
	}
	return nil
}

func (js *jsonWriter) mapField(r *Reader) error {
	keyType, _, err := r.MapTypes()
	if err != nil {
		return err
	}
	if keyType == TypeInt {
		m, err := r.IntKeyMap()
		if err != nil {
			return err
		}
		keys := slices.Sorted(maps.Keys(m))
		js.buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				js.buf.WriteByte(',')
			}
			js.buf.WriteByte('"')
			js.buf.Write(strconv.AppendInt(js.scratch[:0], int64(k), 10))
			js.buf.WriteString(`":`)
			writeJSONStringBytes(js.buf, []byte(m[k]))
		}
		js.buf.WriteByte('}')
		return nil
	}
	m, err := r.StringMap()
	if err != nil {
		return err
	}
	keys := slices.Sorted(maps.Keys(m))
	js.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			js.buf.WriteByte(',')
		}
		writeJSONStringBytes(js.buf, []byte(k))
		js.buf.WriteByte(':')
		writeJSONStringBytes(js.buf, []byte(m[k]))
	}
	js.buf.WriteByte('}')
	return nil
}

func (js *jsonWriter) writeBool(v bool) {
	if v {
		js.buf.WriteString("true")
	} else {
		js.buf.WriteString("false")
	}
}

func (js *jsonWriter) writeInt(v int64) {
	js.scratch = strconv.AppendInt(js.scratch[:0], v, 10)
	js.buf.Write(js.scratch)
}

func (js *jsonWriter) writeFloat64(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		js.buf.WriteString("null")
		return
	}
	js.scratch = js.nf.Append(js.scratch[:0], v)
	js.buf.Write(js.scratch)
}

func (js *jsonWriter) writeFloat32(v float32) {
	if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
		js.buf.WriteString("null")
		return
	}
	js.scratch = js.nf.AppendFloat32(js.scratch[:0], v)
	js.buf.Write(js.scratch)
}

func writeJSONArray[T any](js *jsonWriter, v []T, each func(*jsonWriter, T)) {
	js.buf.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			js.buf.WriteByte(',')
		}
		each(js, x)
	}
	js.buf.WriteByte(']')
}

func writeJSONStringBytes(buf *bytebufferpool.ByteBuffer, b []byte) {
	buf.WriteByte('"')
	for _, c := range b {
		switch c {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigit(c >> 4))
				buf.WriteByte(hexDigit(c & 0xF))
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}
