package fxcodec

import (
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/starfederation/fxcodec/pool"
)

type benchSeries struct {
	Name   string            `cbor:"name"`
	Axis   []string          `cbor:"axis"`
	Values [][]float64       `cbor:"values"`
	Meta   map[string]string `cbor:"meta"`
}

var (
	benchSample = newBenchSeries(4096)
	sinkBytes   []byte
	sinkFloats  []float64
)

func newBenchSeries(n int) benchSeries {
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = float64(i) * 0.001
		y[i] = math.Sin(x[i]) * 1e3
	}
	return benchSeries{
		Name:   "sine",
		Axis:   []string{"time", "amplitude"},
		Values: [][]float64{x, y},
		Meta:   map[string]string{"unit": "mV", "source": "bench"},
	}
}

func encodeBenchSeries(w *Writer, s benchSeries) error {
	w.PutHeaderInfo("bench")
	w.PutString("name", s.Name)
	w.PutStringArray("axis", s.Axis)
	w.PutDoubleArray("x", s.Values[0])
	w.PutDoubleArray("y", s.Values[1])
	w.PutStringMap("meta", s.Meta)
	return w.PutEndMarker()
}

func BenchmarkWriterPooled(b *testing.B) {
	reg := pool.NewRegistry()
	b.ReportAllocs()
	for b.Loop() {
		w := NewWriter(reg, 80_000)
		if err := encodeBenchSeries(w, benchSample); err != nil {
			b.Fatal(err)
		}
		sinkBytes = w.Bytes()
		w.Release()
	}
}

func BenchmarkWriterUnpooled(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		w := NewWriter(nil, 80_000)
		if err := encodeBenchSeries(w, benchSample); err != nil {
			b.Fatal(err)
		}
		sinkBytes = w.Bytes()
	}
}

func BenchmarkCBORMarshal(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		out, err := cbor.Marshal(benchSample)
		if err != nil {
			b.Fatal(err)
		}
		sinkBytes = out
	}
}

func BenchmarkReaderDoubleArray(b *testing.B) {
	w := NewWriter(nil, 0)
	if err := encodeBenchSeries(w, benchSample); err != nil {
		b.Fatal(err)
	}
	data := w.Detach()
	dst := make([]float64, 0, len(benchSample.Values[0]))
	r := NewReader(nil)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for b.Loop() {
		r.Reset(data)
		if _, err := r.CheckHeaderInfo(); err != nil {
			b.Fatal(err)
		}
		for {
			f, ok, err := r.FieldHeader()
			if err != nil {
				b.Fatal(err)
			}
			if !ok {
				break
			}
			if f.Type == TypeDoubleArray {
				if dst, err = r.DoubleArray(dst); err != nil {
					b.Fatal(err)
				}
				sinkFloats = dst
			}
		}
	}
}

func BenchmarkCBORUnmarshal(b *testing.B) {
	data, err := cbor.Marshal(benchSample)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for b.Loop() {
		var out benchSeries
		if err := cbor.Unmarshal(data, &out); err != nil {
			b.Fatal(err)
		}
		sinkFloats = out.Values[1]
	}
}

func TestEncodedSizeAgainstCBOR(t *testing.T) {
	w := NewWriter(nil, 0)
	if err := encodeBenchSeries(w, benchSample); err != nil {
		t.Fatal(err)
	}
	data, err := cbor.Marshal(benchSample)
	if err != nil {
		t.Fatal(err)
	}
	// cbor spends one head byte per float64 on top of the raw payload
	payload := 8 * 2 * len(benchSample.Values[0])
	if n := w.Len(); n < payload || n > payload+256 {
		t.Fatalf("tagged: %d bytes for %d payload bytes", n, payload)
	}
	if w.Len() >= len(data) {
		t.Fatalf("tagged buffer %d bytes, cbor %d bytes", w.Len(), len(data))
	}
}
