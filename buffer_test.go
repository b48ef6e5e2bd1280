package fxcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/starfederation/fxcodec/fault"
	"github.com/starfederation/fxcodec/pool"
)

func encodeBuffer(t testing.TB, r *pool.Registry, fill func(w *Writer)) []byte {
	t.Helper()
	w := NewWriter(r, 0)
	w.PutHeaderInfo("test")
	fill(w)
	if err := w.PutEndMarker(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return w.Detach()
}

func mustField(t *testing.T, r *Reader, name string, typ DataType) {
	t.Helper()
	f, ok, err := r.FieldHeader()
	if err != nil {
		t.Fatalf("field %q: %v", name, err)
	}
	if !ok {
		t.Fatalf("field %q: unexpected end marker", name)
	}
	if f.Name != name || f.Type != typ {
		t.Fatalf("got field %s, want %s:%s", f, name, typ)
	}
}

func mustEnd(t *testing.T, r *Reader) {
	t.Helper()
	if _, ok, err := r.FieldHeader(); err != nil || ok {
		t.Fatalf("expected end marker, got ok=%v err=%v", ok, err)
	}
	if !r.Done() || r.Remaining() != 0 {
		t.Fatalf("done=%v remaining=%d", r.Done(), r.Remaining())
	}
}

func TestDoubleArrayRoundTrip(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutDoubleArray("x", []float64{1.0, 2.5, -3.75})
	})
	r := NewReader(b)
	info, err := r.CheckHeaderInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Producer != "test" || info.Major != VersionMajor {
		t.Fatalf("unexpected header %+v", info)
	}
	mustField(t, r, "x", TypeDoubleArray)
	got, err := r.DoubleArray(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []float64{1.0, 2.5, -3.75}) {
		t.Fatalf("got %v", got)
	}
	mustEnd(t, r)
}

func TestFloatArrayWidensToDouble(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutNumberArray("x", []float64{1.0, 2.5, -3.75, 0.1}, true)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "x", TypeFloatArray)
	got, err := r.DoubleArray(make([]float64, 0, 8))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1.0, 2.5, -3.75, float64(float32(0.1))}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	mustEnd(t, r)
}

func TestAllTypesRoundTrip(t *testing.T) {
	b := encodeBuffer(t, pool.NewRegistry(), func(w *Writer) {
		w.PutBool("bool", true)
		w.PutByte("byte", -7)
		w.PutShort("short", -1234)
		w.PutInt("int", 1<<30)
		w.PutLong("long", math.MinInt64)
		w.PutFloat("float", 1.5)
		w.PutDouble("double", math.Pi)
		w.PutString("string", "héllo")
		w.PutBoolArray("bools", []bool{true, false, true})
		w.PutByteArray("bytes", []byte{0, 1, 255})
		w.PutShortArray("shorts", []int16{-1, 0, 1})
		w.PutIntArray("ints", []int32{math.MaxInt32, math.MinInt32})
		w.PutLongArray("longs", []int64{42})
		w.PutFloatArray("floats", []float32{0.25, -8})
		w.PutDoubleArray("doubles", nil)
		w.PutStringArray("strings", []string{"a", "", "ccc"})
		w.PutStringMap("meta", map[string]string{"b": "2", "a": "1"})
		w.PutIntKeyMap("styles", map[int32]string{3: "dashed", -1: "solid"})
	})

	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}

	mustField(t, r, "bool", TypeBool)
	if v, err := r.Bool(); err != nil || !v {
		t.Fatalf("bool: %v %v", v, err)
	}
	mustField(t, r, "byte", TypeByte)
	if v, err := r.Byte(); err != nil || v != -7 {
		t.Fatalf("byte: %v %v", v, err)
	}
	mustField(t, r, "short", TypeShort)
	if v, err := r.Short(); err != nil || v != -1234 {
		t.Fatalf("short: %v %v", v, err)
	}
	mustField(t, r, "int", TypeInt)
	if v, err := r.Int(); err != nil || v != 1<<30 {
		t.Fatalf("int: %v %v", v, err)
	}
	mustField(t, r, "long", TypeLong)
	if v, err := r.Long(); err != nil || v != math.MinInt64 {
		t.Fatalf("long: %v %v", v, err)
	}
	mustField(t, r, "float", TypeFloat)
	if v, err := r.Float(); err != nil || v != 1.5 {
		t.Fatalf("float: %v %v", v, err)
	}
	mustField(t, r, "double", TypeDouble)
	if v, err := r.Double(); err != nil || v != math.Pi {
		t.Fatalf("double: %v %v", v, err)
	}
	mustField(t, r, "string", TypeString)
	if v, err := r.String(); err != nil || v != "héllo" {
		t.Fatalf("string: %q %v", v, err)
	}
	mustField(t, r, "bools", TypeBoolArray)
	if v, err := r.BoolArray(nil); err != nil || !slices.Equal(v, []bool{true, false, true}) {
		t.Fatalf("bools: %v %v", v, err)
	}
	mustField(t, r, "bytes", TypeByteArray)
	if v, err := r.ByteArray(nil); err != nil || !bytes.Equal(v, []byte{0, 1, 255}) {
		t.Fatalf("bytes: %v %v", v, err)
	}
	mustField(t, r, "shorts", TypeShortArray)
	if v, err := r.ShortArray(nil); err != nil || !slices.Equal(v, []int16{-1, 0, 1}) {
		t.Fatalf("shorts: %v %v", v, err)
	}
	mustField(t, r, "ints", TypeIntArray)
	if v, err := r.IntArray(nil); err != nil || !slices.Equal(v, []int32{math.MaxInt32, math.MinInt32}) {
		t.Fatalf("ints: %v %v", v, err)
	}
	mustField(t, r, "longs", TypeLongArray)
	if v, err := r.LongArray(nil); err != nil || !slices.Equal(v, []int64{42}) {
		t.Fatalf("longs: %v %v", v, err)
	}
	mustField(t, r, "floats", TypeFloatArray)
	if v, err := r.FloatArray(nil); err != nil || !slices.Equal(v, []float32{0.25, -8}) {
		t.Fatalf("floats: %v %v", v, err)
	}
	mustField(t, r, "doubles", TypeDoubleArray)
	if v, err := r.DoubleArray(nil); err != nil || len(v) != 0 {
		t.Fatalf("doubles: %v %v", v, err)
	}
	mustField(t, r, "strings", TypeStringArray)
	if v, err := r.StringArray(nil); err != nil || !slices.Equal(v, []string{"a", "", "ccc"}) {
		t.Fatalf("strings: %v %v", v, err)
	}
	mustField(t, r, "meta", TypeMap)
	if k, v, err := r.MapTypes(); err != nil || k != TypeString || v != TypeString {
		t.Fatalf("map types: %s %s %v", k, v, err)
	}
	if m, err := r.StringMap(); err != nil || len(m) != 2 || m["a"] != "1" || m["b"] != "2" {
		t.Fatalf("meta: %v %v", m, err)
	}
	mustField(t, r, "styles", TypeMap)
	if m, err := r.IntKeyMap(); err != nil || len(m) != 2 || m[3] != "dashed" || m[-1] != "solid" {
		t.Fatalf("styles: %v %v", m, err)
	}
	mustEnd(t, r)
}

func TestTypeMismatchNamesBothTypes(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutDouble("y", 2)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "y", TypeDouble)
	_, err := r.Int()
	if !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected input mismatch, got %v", err)
	}
	var mm *MismatchError
	if !errors.As(err, &mm) || mm.Expected != "INT" || mm.Actual != "DOUBLE" || mm.Field != "y" {
		t.Fatalf("unexpected error %#v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "INT") || !strings.Contains(msg, "DOUBLE") {
		t.Fatalf("message does not name both types: %s", msg)
	}
	// a failed getter leaves the field pending
	if v, err := r.Double(); err != nil || v != 2 {
		t.Fatalf("double after mismatch: %v %v", v, err)
	}
	mustEnd(t, r)
}

func TestFloatArrayIsStrict(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutDoubleArray("d", []float64{1})
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "d", TypeDoubleArray)
	if _, err := r.FloatArray(nil); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestMapKeyTypeMismatch(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutIntKeyMap("m", map[int32]string{1: "a"})
		w.PutStringMap("s", map[string]string{"a": "b"})
		w.PutInt("n", 7)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "m", TypeMap)
	_, err := r.StringMap()
	var mm *MismatchError
	if !errors.As(err, &mm) || mm.Expected != "MAP<STRING,STRING>" || mm.Actual != "MAP<INT,STRING>" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, pending := r.Current(); !pending {
		t.Fatal("field consumed by failed getter")
	}
	m, err := r.IntKeyMap()
	if err != nil || m[1] != "a" {
		t.Fatalf("got %v %v", m, err)
	}

	// left unread after the mismatch, then skipped by the next header
	mustField(t, r, "s", TypeMap)
	if _, err := r.IntKeyMap(); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	mustField(t, r, "n", TypeInt)
	if v, err := r.Int(); err != nil || v != 7 {
		t.Fatalf("got %d %v", v, err)
	}
	mustEnd(t, r)
}

func TestMapHeaderBoundsEntryCount(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutStringMap("m", nil)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "m", TypeMap)
	// 6 bytes of end marker follow the map header, room for 3 entries
	binary.LittleEndian.PutUint32(b[r.Position():], 4)
	if _, _, _, err := r.mapHeader(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestSwallowSkipsUnknownFields(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutString("skip1", "ignored")
		w.PutStringArray("skip2", []string{"x", "yy"})
		w.PutDoubleArray("skip3", []float64{1, 2, 3})
		w.PutStringMap("skip4", map[string]string{"k": "v"})
		w.PutIntKeyMap("skip5", map[int32]string{7: "v"})
		w.PutLong("skip6", 9)
		w.PutInt("keep", 11)
	})

	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	for {
		f, ok, err := r.FieldHeader()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if f.Name != "keep" {
			if err := r.Swallow(); err != nil {
				t.Fatalf("swallow %s: %v", f, err)
			}
			continue
		}
		if v, err := r.Int(); err != nil || v != 11 {
			t.Fatalf("keep: %v %v", v, err)
		}
	}
	if n := logs.FilterMessage("swallowed field").Len(); n != 6 {
		t.Fatalf("swallowed %d fields", n)
	}
}

func TestFieldHeaderSwallowsUnreadPayload(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutLongArray("a", []int64{1, 2})
		w.PutBool("b", true)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "a", TypeLongArray)
	mustField(t, r, "b", TypeBool)
	if v, err := r.Bool(); err != nil || !v {
		t.Fatalf("b: %v %v", v, err)
	}
	mustEnd(t, r)
}

func TestHeaderChecks(t *testing.T) {
	good := encodeBuffer(t, nil, func(*Writer) {})

	bad := bytes.Clone(good)
	bad[0] = 'X'
	if _, err := NewReader(bad).CheckHeaderInfo(); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("bad magic: %v", err)
	}

	future := bytes.Clone(good)
	future[len(HeaderMagic)] = VersionMajor + 1
	if _, err := NewReader(future).CheckHeaderInfo(); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("future major: %v", err)
	}

	newerMinor := bytes.Clone(good)
	newerMinor[len(HeaderMagic)+1] = VersionMinor + 3
	info, err := NewReader(newerMinor).CheckHeaderInfo()
	if err != nil || info.Minor != VersionMinor+3 {
		t.Fatalf("newer minor: %+v %v", info, err)
	}

	if _, err := NewReader(good[:3]).CheckHeaderInfo(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short header: %v", err)
	}
}

func TestTruncatedPayload(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutDoubleArray("x", []float64{1, 2, 3})
	})
	// cut inside the array payload
	cut := b[:len(b)-10]
	r := NewReader(cut)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "x", TypeDoubleArray)
	if _, err := r.DoubleArray(nil); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestArrayLenRejectsForgedCount(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutDoubleArray("x", []float64{1, 2, 3})
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "x", TypeDoubleArray)
	binary.LittleEndian.PutUint32(b[r.Position():], 1<<30)
	if _, err := r.ArrayLen(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestBadEndMarker(t *testing.T) {
	b := encodeBuffer(t, nil, func(*Writer) {})
	b[len(b)-1] = 0
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.FieldHeader(); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestUnknownTypeTag(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutBool("b", true)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	// the type tag follows the int32 length and the one byte name
	b[r.Position()+4+1] = 0x42
	if _, _, err := r.FieldHeader(); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestFieldNamesAreNormalized(t *testing.T) {
	decomposed := "café"
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutBool(decomposed, true)
	})
	r := NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "caf\u00e9", TypeBool)
}

func TestWriterRejectsInvalidUTF8(t *testing.T) {
	w := NewWriter(nil, 0)
	w.PutHeaderInfo("test")
	w.PutBool("\xff", true)
	w.PutInt("after", 1)
	err := w.PutEndMarker()
	if !errors.Is(err, fault.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestWriterGrowsAndReleases(t *testing.T) {
	reg := pool.NewRegistry()
	w := NewWriter(reg, 16)
	w.PutHeaderInfo("grow")
	big := make([]float64, 4096)
	for i := range big {
		big[i] = float64(i) / 7
	}
	w.PutDoubleArray("big", big)
	if err := w.PutEndMarker(); err != nil {
		t.Fatal(err)
	}
	if w.Len() < 8*len(big) {
		t.Fatalf("buffer too small: %d", w.Len())
	}

	r := NewReader(w.Bytes())
	if _, err := r.CheckHeaderInfo(); err != nil {
		t.Fatal(err)
	}
	mustField(t, r, "big", TypeDoubleArray)
	got, err := r.DoubleArray(nil)
	if err != nil || !slices.Equal(got, big) {
		t.Fatalf("round trip failed: %v", err)
	}
	w.Release()

	var idle int
	for _, st := range reg.Stats() {
		if st.Name == pool.WriterBytes {
			idle = st.Idle
		}
	}
	if idle == 0 {
		t.Fatalf("writer buffers were not returned: %+v", reg.Stats())
	}
}

func TestWriterStopsAfterFailedGrow(t *testing.T) {
	w := NewWriter(nil, 0)
	if w.grow(-1) {
		t.Fatal("negative growth accepted")
	}
	w.PutHeaderInfo("test")
	w.PutInt("n", 1)
	if w.Len() != 0 {
		t.Fatalf("wrote %d bytes after failure", w.Len())
	}
	if err := w.PutEndMarker(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v", err)
	}
}

func TestReaderResetReusesDestination(t *testing.T) {
	b := encodeBuffer(t, nil, func(w *Writer) {
		w.PutLongArray("v", []int64{1, 2, 3})
	})
	dst := make([]int64, 0, 8)
	r := NewReader(nil)
	for range 2 {
		r.Reset(b)
		if _, err := r.CheckHeaderInfo(); err != nil {
			t.Fatal(err)
		}
		mustField(t, r, "v", TypeLongArray)
		got, err := r.LongArray(dst)
		if err != nil {
			t.Fatal(err)
		}
		if &got[0] != &dst[:1][0] {
			t.Fatalf("destination not reused")
		}
	}
}

func TestDataTypeNames(t *testing.T) {
	cases := map[DataType]string{
		TypeBool:        "BOOL",
		TypeDoubleArray: "DOUBLE_ARRAY",
		TypeMap:         "MAP",
		TypeEndMarker:   "END_MARKER",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Fatalf("%d: got %q want %q", typ, got, want)
		}
	}
	if TypeFloatArray.Elem() != TypeFloat || !TypeStringArray.IsArray() || TypeString.IsArray() {
		t.Fatalf("array helpers are inconsistent")
	}
}
