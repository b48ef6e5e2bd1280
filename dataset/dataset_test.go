package dataset

import (
	"bytes"
	"errors"
	"maps"
	"math"
	"slices"
	"testing"

	"github.com/starfederation/fxcodec"
	"github.com/starfederation/fxcodec/numfmt"
	"github.com/starfederation/fxcodec/pool"
)

func sample() *DataSet {
	return &DataSet{
		Name:      "scope",
		AxisNames: []string{"time", "value"},
		AxisUnits: []string{"s", "V"},
		Values: [][]float64{
			{0, 0.5, 1},
			{1, -2.25, math.NaN()},
		},
		Labels:   map[int]string{1: "peak"},
		Styles:   map[int]string{2: "color=red"},
		Info:     []string{"calibrated"},
		Warnings: []string{"clipped"},
		MetaInfo: map[string]string{"device": "osc-1"},
	}
}

func equalFloats(a, b []float64) bool {
	return slices.EqualFunc(a, b, func(x, y float64) bool {
		return x == y || math.IsNaN(x) && math.IsNaN(y)
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := pool.NewRegistry()
	in := sample()
	b, err := Encode(in, Options{Registry: reg})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(b, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release(reg)

	if out.Name != in.Name || !slices.Equal(out.AxisNames, in.AxisNames) || !slices.Equal(out.AxisUnits, in.AxisUnits) {
		t.Fatalf("axis description lost: %+v", out)
	}
	if out.Dims() != 2 || out.Len() != 3 {
		t.Fatalf("shape %dx%d", out.Dims(), out.Len())
	}
	for dim := range in.Values {
		if !equalFloats(out.Values[dim], in.Values[dim]) {
			t.Fatalf("dim %d: got %v want %v", dim, out.Values[dim], in.Values[dim])
		}
	}
	if !maps.Equal(out.Labels, in.Labels) || !maps.Equal(out.Styles, in.Styles) || !maps.Equal(out.MetaInfo, in.MetaInfo) {
		t.Fatalf("maps lost: %+v", out)
	}
	if !slices.Equal(out.Info, in.Info) || !slices.Equal(out.Warnings, in.Warnings) || len(out.Errors) != 0 {
		t.Fatalf("diagnostics lost: %+v", out)
	}
	if out.AxisMin[0] != 0 || out.AxisMax[0] != 1 || out.AxisMin[1] != -2.25 || out.AxisMax[1] != 1 {
		t.Fatalf("ranges: min=%v max=%v", out.AxisMin, out.AxisMax)
	}
}

func TestEncodeAsFloat32(t *testing.T) {
	in := &DataSet{Name: "f", Values: [][]float64{{0.1, 2}, {3, 4}}}
	full, err := Encode(in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	half, err := Encode(in, Options{AsFloat32: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(full)-len(half) != 4*4 {
		t.Fatalf("float32 saved %d bytes", len(full)-len(half))
	}
	out, err := Decode(half, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Values[0][0] != float64(float32(0.1)) || out.Values[1][1] != 4 {
		t.Fatalf("got %v", out.Values)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	w := fxcodec.NewWriter(nil, 0)
	w.PutHeaderInfo("newer")
	w.PutString("name", "ext")
	w.PutDoubleArray("values0", []float64{9})
	w.PutInt("nDims", 1)
	w.PutDoubleArray("future", []float64{1, 2, 3})
	w.PutStringMap("futureMap", map[string]string{"a": "b"})
	w.PutDoubleArray("values0", []float64{4, 5})
	w.PutLong("values7", 3)
	if err := w.PutEndMarker(); err != nil {
		t.Fatal(err)
	}
	out, err := Decode(w.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "ext" || out.Dims() != 1 || !slices.Equal(out.Values[0], []float64{4, 5}) {
		t.Fatalf("got %+v", out)
	}
}

func TestDecodeMissingValues(t *testing.T) {
	w := fxcodec.NewWriter(nil, 0)
	w.PutHeaderInfo("broken")
	w.PutInt("nDims", 2)
	w.PutDoubleArray("values0", []float64{1})
	if err := w.PutEndMarker(); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(w.Bytes(), nil); !errors.Is(err, fxcodec.ErrInputMismatch) {
		t.Fatalf("expected input mismatch, got %v", err)
	}
}

func TestDecodeWrongFieldType(t *testing.T) {
	w := fxcodec.NewWriter(nil, 0)
	w.PutHeaderInfo("broken")
	w.PutDouble("name", 1)
	if err := w.PutEndMarker(); err != nil {
		t.Fatal(err)
	}
	_, err := Decode(w.Bytes(), nil)
	var mm *fxcodec.MismatchError
	if !errors.As(err, &mm) || mm.Field != "name" {
		t.Fatalf("got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []*DataSet{
		nil,
		{Values: [][]float64{{1, 2}, {1}}},
		{AxisNames: []string{"a", "b"}, Values: [][]float64{{1}}},
		{Values: [][]float64{{1}}, Labels: map[int]string{1: "out"}},
		{Values: [][]float64{{1}}, Styles: map[int]string{-1: "neg"}},
	}
	for i, ds := range cases {
		if _, err := Encode(ds, Options{}); !errors.Is(err, fxcodec.ErrInvalidArgument) {
			t.Fatalf("case %d: got %v", i, err)
		}
	}
}

func TestReleaseReturnsColumns(t *testing.T) {
	reg := pool.NewRegistry()
	b, err := Encode(sample(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	first, err := Decode(b, reg)
	if err != nil {
		t.Fatal(err)
	}
	col := first.Values[1]
	first.Release(reg)
	first.Release(reg)
	if first.Values[0] != nil {
		t.Fatal("release kept columns")
	}

	second, err := Decode(b, reg)
	if err != nil {
		t.Fatal(err)
	}
	reused := false
	for _, c := range second.Values {
		if &c[0] == &col[0] {
			reused = true
		}
	}
	if !reused {
		t.Fatal("decoded columns did not come from the pool")
	}
}

func TestAxisNameFallback(t *testing.T) {
	ds := &DataSet{AxisNames: []string{"", "amp"}, Values: make([][]float64, 5)}
	got := []string{ds.AxisName(0), ds.AxisName(1), ds.AxisName(2), ds.AxisName(4)}
	if !slices.Equal(got, []string{"x", "amp", "z", "dim4"}) {
		t.Fatalf("got %v", got)
	}
}

func TestRangeWithoutFiniteValues(t *testing.T) {
	ds := &DataSet{Values: [][]float64{{math.NaN(), math.Inf(1)}}}
	lo, hi := ds.Range(0)
	if !math.IsNaN(lo) || !math.IsNaN(hi) {
		t.Fatalf("got %v %v", lo, hi)
	}
}

func TestWriteCSV(t *testing.T) {
	ds := sample()
	ds.Values[1][2] = 3
	var out bytes.Buffer
	if err := WriteCSV(&out, ds, nil); err != nil {
		t.Fatal(err)
	}
	want := "time [s],value [V],label\n0,1,\n0.5,-2.25,peak\n1,3,\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}

func TestWriteCSVWithCommaSeparator(t *testing.T) {
	f := numfmt.New()
	if err := f.SetSymbols(",", "E"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetPrecision(2); err != nil {
		t.Fatal(err)
	}
	ds := &DataSet{
		AxisNames: []string{"a;b", `q"t`},
		Values:    [][]float64{{0.5}, {-1}},
	}
	var out bytes.Buffer
	if err := WriteCSV(&out, ds, f); err != nil {
		t.Fatal(err)
	}
	want := "\"a;b\";\"q\"\"t\"\n0,50;-1,00\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}
